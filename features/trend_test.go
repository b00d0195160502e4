package features

import (
	"errors"
	"math"
	"testing"
	"time"
)

func mkSeries(t *testing.T, start time.Time, step time.Duration, values ...float64) []TimeSeriesPoint {
	t.Helper()
	points := make([]TimeSeriesPoint, len(values))
	for i, v := range values {
		points[i] = TimeSeriesPoint{Timestamp: start.Add(time.Duration(i) * step), Value: v}
	}
	return points
}

func TestComputeTrendClassification(t *testing.T) {
	start := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	cfg := DefaultTrendConfig()

	tests := []struct {
		name   string
		step   time.Duration
		values []float64
		want   string
		slope  float64
	}{
		{"rising over two hours", 30 * time.Minute, []float64{100, 105, 110, 115, 120}, TrendRising, 10},
		{"falling over two hours", 30 * time.Minute, []float64{120, 115, 110, 105, 100}, TrendFalling, -10},
		{"flat stays stable", 30 * time.Minute, []float64{98, 98, 98, 98, 98}, TrendStable, 0},
		{"drift inside dead-band", 30 * time.Minute, []float64{100, 100.01, 100.02, 100.03, 100.04}, TrendStable, 0.02},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			feat, err := ComputeTrend("heart_rate", mkSeries(t, start, tc.step, tc.values...), cfg)
			if err != nil {
				t.Fatalf("ComputeTrend: %v", err)
			}
			if feat.Classification != tc.want {
				t.Fatalf("classification = %q, want %q (slope %.4f)", feat.Classification, tc.want, feat.Slope)
			}
			if !feat.SlopeDefined {
				t.Fatalf("slope should be defined for %d samples over %s", len(tc.values), feat.TimeSpan)
			}
			if math.Abs(feat.Slope-tc.slope) > 1e-6 {
				t.Fatalf("slope = %.6f, want %.6f", feat.Slope, tc.slope)
			}
		})
	}
}

func TestComputeTrendInsufficient(t *testing.T) {
	start := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	cfg := DefaultTrendConfig()

	tests := []struct {
		name   string
		points []TimeSeriesPoint
	}{
		{"empty series", nil},
		{"two samples", mkSeries(t, start, time.Hour, 100, 110)},
		{"steep but narrow", mkSeries(t, start, 10*time.Second, 100, 110, 120, 130, 140)},
		{"single sample", mkSeries(t, start, time.Hour, 100)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			feat, err := ComputeTrend("creatinine", tc.points, cfg)
			if err != nil {
				t.Fatalf("ComputeTrend: %v", err)
			}
			if feat.Classification != TrendInsufficient {
				t.Fatalf("classification = %q, want %q", feat.Classification, TrendInsufficient)
			}
			if feat.SlopeDefined {
				t.Fatalf("insufficient series must not define a slope, got %.4f", feat.Slope)
			}
		})
	}
}

func TestComputeTrendZeroSpan(t *testing.T) {
	at := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	points := []TimeSeriesPoint{
		{Timestamp: at, Value: 90},
		{Timestamp: at, Value: 100},
		{Timestamp: at, Value: 110},
	}
	cfg := DefaultTrendConfig()
	cfg.MinSpan = 0

	feat, err := ComputeTrend("map", points, cfg)
	if err != nil {
		t.Fatalf("ComputeTrend: %v", err)
	}
	if feat.Classification != TrendInsufficient || feat.SlopeDefined {
		t.Fatalf("coincident timestamps must classify insufficient, got %q defined=%v", feat.Classification, feat.SlopeDefined)
	}
}

func TestComputeTrendRejectsUnordered(t *testing.T) {
	start := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	points := []TimeSeriesPoint{
		{Timestamp: start.Add(time.Hour), Value: 100},
		{Timestamp: start, Value: 110},
		{Timestamp: start.Add(2 * time.Hour), Value: 120},
	}
	_, err := ComputeTrend("spo2", points, DefaultTrendConfig())
	if !errors.Is(err, ErrUnordered) {
		t.Fatalf("err = %v, want ErrUnordered", err)
	}
}

func TestComputeTrendPerSignalThreshold(t *testing.T) {
	start := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	points := mkSeries(t, start, 30*time.Minute, 60, 61, 62, 63, 64)

	cfg := DefaultTrendConfig()
	base, err := ComputeTrend("Heart Rate", points, cfg)
	if err != nil {
		t.Fatalf("ComputeTrend: %v", err)
	}
	if base.Classification != TrendRising {
		t.Fatalf("default threshold: classification = %q, want rising", base.Classification)
	}

	cfg.Thresholds = map[string]float64{"heart rate": 5}
	wide, err := ComputeTrend("Heart Rate", points, cfg)
	if err != nil {
		t.Fatalf("ComputeTrend: %v", err)
	}
	if wide.Classification != TrendStable {
		t.Fatalf("override threshold: classification = %q, want stable", wide.Classification)
	}
}

func TestComputeTrendDeterministic(t *testing.T) {
	start := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	points := mkSeries(t, start, 45*time.Minute, 7.1, 7.4, 7.2, 7.9, 8.3, 8.1)
	cfg := DefaultTrendConfig()

	first, err := ComputeTrend("lactate", points, cfg)
	if err != nil {
		t.Fatalf("ComputeTrend: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := ComputeTrend("lactate", points, cfg)
		if err != nil {
			t.Fatalf("ComputeTrend: %v", err)
		}
		if again != first {
			t.Fatalf("run %d diverged: %+v vs %+v", i, again, first)
		}
	}
}
