package eval

import (
	"math"
	"testing"
)

func TestAvgSentenceLength(t *testing.T) {
	tests := []struct {
		name string
		text string
		want float64
	}{
		{"empty", "", 0},
		{"punctuation only", "...!?", 0},
		{"one sentence", "The patient improved steadily.", 4},
		{"two sentences", "Admitted with sepsis. Discharged home after full recovery today.", 4.5},
		{"ignores blank splits", "Stable.   . Improving daily.", 1.5},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := AvgSentenceLength(tc.text); math.Abs(got-tc.want) > 1e-9 {
				t.Fatalf("AvgSentenceLength(%q) = %v, want %v", tc.text, got, tc.want)
			}
		})
	}
}

func TestTermDensity(t *testing.T) {
	tests := []struct {
		name string
		text string
		want float64
	}{
		{"empty", "", 0},
		{"numbers only", "120/80 99 7.4", 0},
		{"no clinical terms", "The weather was pleasant.", 0},
		{"half clinical", "Sepsis resolved; lactate normalized after treatment arrived.", 2.0 / 7.0},
		{"case insensitive", "SEPSIS SEPSIS", 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := TermDensity(tc.text); math.Abs(got-tc.want) > 1e-9 {
				t.Fatalf("TermDensity(%q) = %v, want %v", tc.text, got, tc.want)
			}
		})
	}
}

func TestScore(t *testing.T) {
	m := Score("Patient remained intubated in the ICU. Ventilation weaned on day three.")
	if m.AvgSentenceLength != 5.5 {
		t.Fatalf("avg sentence length = %v, want 5.5", m.AvgSentenceLength)
	}
	if m.TermDensity <= 0 {
		t.Fatalf("term density = %v, want > 0", m.TermDensity)
	}
}
