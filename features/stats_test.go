package features

import (
	"testing"
	"time"
)

func TestSummarizeSeries(t *testing.T) {
	start := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	points := []TimeSeriesPoint{
		{Timestamp: start, Value: 88, Unit: "bpm"},
		{Timestamp: start.Add(time.Hour), Value: 122, Unit: "bpm"},
		{Timestamp: start.Add(2 * time.Hour), Value: 95, Unit: "bpm"},
		{Timestamp: start.Add(3 * time.Hour), Value: 104, Unit: "BPM"},
	}
	st := SummarizeSeries(points)
	if st.Count != 4 {
		t.Fatalf("count = %d, want 4", st.Count)
	}
	if st.Median != 99.5 {
		t.Fatalf("median = %v, want 99.5", st.Median)
	}
	if st.Min != 88 || st.Max != 122 {
		t.Fatalf("range = [%v, %v], want [88, 122]", st.Min, st.Max)
	}
	if st.Unit != "bpm" {
		t.Fatalf("unit = %q, want modal bpm", st.Unit)
	}
}

func TestSummarizeSeriesOddCount(t *testing.T) {
	start := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	points := []TimeSeriesPoint{
		{Timestamp: start, Value: 3, Unit: "mmol/L"},
		{Timestamp: start.Add(time.Hour), Value: 9, Unit: "mmol/L"},
		{Timestamp: start.Add(2 * time.Hour), Value: 5, Unit: "mmol/L"},
	}
	if st := SummarizeSeries(points); st.Median != 5 {
		t.Fatalf("median = %v, want 5", st.Median)
	}
}

func TestSummarizeSeriesEmpty(t *testing.T) {
	st := SummarizeSeries(nil)
	if st.Count != 0 || st.Median != 0 || st.Unit != "" {
		t.Fatalf("empty series should zero out, got %+v", st)
	}
}

func TestSortPointsStable(t *testing.T) {
	start := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	points := []TimeSeriesPoint{
		{Timestamp: start.Add(time.Hour), Value: 2},
		{Timestamp: start, Value: 1},
		{Timestamp: start.Add(time.Hour), Value: 3},
	}
	SortPoints(points)
	if points[0].Value != 1 || points[1].Value != 2 || points[2].Value != 3 {
		t.Fatalf("unexpected order: %+v", points)
	}
}

func TestModalUnitPrefersEarliestOnTie(t *testing.T) {
	start := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	points := []TimeSeriesPoint{
		{Timestamp: start.Add(time.Hour), Value: 37.1, Unit: "C"},
		{Timestamp: start, Value: 98.8, Unit: "F"},
		{Timestamp: start.Add(2 * time.Hour), Value: 37.4, Unit: "C"},
		{Timestamp: start.Add(3 * time.Hour), Value: 99.2, Unit: "F"},
	}
	if unit := ModalUnit(points); unit != "F" {
		t.Fatalf("unit = %q, want F (first observed on tie)", unit)
	}
}

func TestAbnormalCount(t *testing.T) {
	start := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	results := []LabResult{
		{Timestamp: start, Value: 1.0},
		{Timestamp: start.Add(time.Hour), Value: 2.4, Abnormal: true},
		{Timestamp: start.Add(2 * time.Hour), Value: 3.1, Abnormal: true},
	}
	if n := AbnormalCount(results); n != 2 {
		t.Fatalf("abnormal count = %d, want 2", n)
	}
}
