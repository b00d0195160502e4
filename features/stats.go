package features

import "sort"

// SeriesStats summarizes the distribution of one measurement series.
type SeriesStats struct {
	Count  int     `json:"count"`
	Median float64 `json:"median"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Unit   string  `json:"unit,omitempty"`
}

// SummarizeSeries computes count, median, min, max and the modal unit of a
// series. An empty series yields a zero-valued summary.
func SummarizeSeries(points []TimeSeriesPoint) SeriesStats {
	if len(points) == 0 {
		return SeriesStats{}
	}
	values := make([]float64, len(points))
	obs := make([]unitObs, len(points))
	for i, p := range points {
		values[i] = p.Value
		obs[i] = unitObs{unit: p.Unit, at: p.Timestamp}
	}
	sort.Float64s(values)
	return SeriesStats{
		Count:  len(points),
		Median: median(values),
		Min:    values[0],
		Max:    values[len(values)-1],
		Unit:   modalUnit(obs),
	}
}

// ModalUnit picks the dominant unit string across a series, with the same
// order-independent tie-break as dosage aggregation.
func ModalUnit(points []TimeSeriesPoint) string {
	obs := make([]unitObs, len(points))
	for i, p := range points {
		obs[i] = unitObs{unit: p.Unit, at: p.Timestamp}
	}
	return modalUnit(obs)
}

// median expects its input already sorted.
func median(sorted []float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// SortPoints orders a series by timestamp in place, preserving the input
// order of equal timestamps.
func SortPoints(points []TimeSeriesPoint) {
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Timestamp.Before(points[j].Timestamp)
	})
}

// SortLabs orders lab results by timestamp in place.
func SortLabs(results []LabResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Timestamp.Before(results[j].Timestamp)
	})
}

// SortOutputs orders output events by timestamp in place.
func SortOutputs(events []OutputEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
}

// LabPoints projects lab results onto the generic series shape so the trend
// engine can run over them.
func LabPoints(results []LabResult) []TimeSeriesPoint {
	points := make([]TimeSeriesPoint, len(results))
	for i, r := range results {
		points[i] = TimeSeriesPoint{Timestamp: r.Timestamp, Value: r.Value, Unit: r.Unit}
	}
	return points
}

// AbnormalCount tallies flagged results in a lab series.
func AbnormalCount(results []LabResult) int {
	n := 0
	for _, r := range results {
		if r.Abnormal {
			n++
		}
	}
	return n
}
