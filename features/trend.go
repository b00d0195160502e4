package features

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnordered is returned when a series is not sorted by timestamp.
// Sorting is the caller's job; the engine refuses to guess.
var ErrUnordered = errors.New("series not ordered by timestamp")

// TrendConfig carries the classification thresholds. A slope whose
// magnitude stays within the signal's dead-band is reported as stable.
type TrendConfig struct {
	MinSamples       int                `yaml:"min_samples" json:"min_samples"`
	MinSpan          time.Duration      `yaml:"min_span" json:"min_span"`
	DefaultThreshold float64            `yaml:"default_threshold" json:"default_threshold"`
	Thresholds       map[string]float64 `yaml:"thresholds,omitempty" json:"thresholds,omitempty"`
}

// DefaultTrendConfig returns the thresholds used when no override is configured.
func DefaultTrendConfig() TrendConfig {
	return TrendConfig{
		MinSamples:       3,
		MinSpan:          30 * time.Minute,
		DefaultThreshold: 0.1,
	}
}

// ThresholdFor resolves the dead-band for one signal. Lookup is
// case-insensitive so config labels do not have to match chart casing.
// When several config labels fold to the same key the lexicographically
// smallest one wins, keeping the result independent of map order.
func (c TrendConfig) ThresholdFor(signal string) float64 {
	if v, ok := c.Thresholds[signal]; ok {
		return v
	}
	key := strings.ToLower(strings.TrimSpace(signal))
	value := c.DefaultThreshold
	matched := ""
	for label, v := range c.Thresholds {
		if strings.ToLower(strings.TrimSpace(label)) != key {
			continue
		}
		if matched == "" || label < matched {
			matched = label
			value = v
		}
	}
	return value
}

// ComputeTrend fits an ordinary least-squares line through the series and
// classifies its direction. The x axis is hours since the first sample, so
// slopes and thresholds are in value units per hour. Series shorter than
// MinSamples or narrower than MinSpan classify as insufficient with no slope.
func ComputeTrend(signal string, points []TimeSeriesPoint, cfg TrendConfig) (TrendFeature, error) {
	feat := TrendFeature{
		Signal:         signal,
		SampleCount:    len(points),
		Classification: TrendInsufficient,
	}
	for i := 1; i < len(points); i++ {
		if points[i].Timestamp.Before(points[i-1].Timestamp) {
			return feat, fmt.Errorf("%w: %s index %d", ErrUnordered, signal, i)
		}
	}
	if len(points) > 0 {
		feat.TimeSpan = points[len(points)-1].Timestamp.Sub(points[0].Timestamp)
	}
	if len(points) < cfg.MinSamples || feat.TimeSpan < cfg.MinSpan {
		return feat, nil
	}

	start := points[0].Timestamp
	var sumX, sumY, sumXY, sumXX float64
	for _, p := range points {
		x := p.Timestamp.Sub(start).Hours()
		sumX += x
		sumY += p.Value
		sumXY += x * p.Value
		sumXX += x * x
	}
	n := float64(len(points))
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		// Every sample shares one timestamp; the slope is undefined.
		return feat, nil
	}

	feat.Slope = (n*sumXY - sumX*sumY) / denom
	feat.SlopeDefined = true
	threshold := cfg.ThresholdFor(signal)
	switch {
	case feat.Slope > threshold:
		feat.Classification = TrendRising
	case feat.Slope < -threshold:
		feat.Classification = TrendFalling
	default:
		feat.Classification = TrendStable
	}
	return feat, nil
}
