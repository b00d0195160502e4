package views

import (
	"strings"

	"discharge_pipeline/features"
)

// View names, in build order.
const (
	Admission       = "admission"
	DxProc          = "dx_proc"
	Labs            = "labs"
	Measurements    = "measurements"
	Meds            = "meds"
	Outputs         = "outputs"
	ProcedureEvents = "procedureevents"
)

// All lists every view the builder produces.
var All = []string{Admission, DxProc, Labs, Measurements, Meds, Outputs, ProcedureEvents}

// Statement is one linearized clinical fact. Higher priority statements
// survive budget truncation longer; among equal priorities the later
// position is dropped first.
type Statement struct {
	Label    string `json:"label"`
	Text     string `json:"text"`
	Priority int    `json:"priority"`
}

// View is a bounded, ordered list of statements for one clinical category.
type View struct {
	Name       string      `json:"name"`
	Statements []Statement `json:"statements"`
	// Dropped lists the labels cut by the view's entry cap, in the order
	// they would have appeared.
	Dropped []string `json:"dropped,omitempty"`
	// Empty marks a view whose only statement is the no-data marker.
	Empty bool `json:"empty,omitempty"`
}

// Render linearizes the view, one statement per line.
func (v View) Render() string {
	lines := make([]string, len(v.Statements))
	for i, s := range v.Statements {
		lines[i] = s.Text
	}
	return strings.Join(lines, "\n")
}

// Set holds every built view keyed by name. Order always equals All.
type Set struct {
	AdmissionID string          `json:"admission_id"`
	Views       map[string]View `json:"views"`
}

// Config bounds each view and carries the trend thresholds.
type Config struct {
	MaxDiagnoses       int                  `yaml:"max_diagnoses" json:"max_diagnoses"`
	MaxProcedures      int                  `yaml:"max_procedures" json:"max_procedures"`
	MaxLabs            int                  `yaml:"max_labs" json:"max_labs"`
	MaxMeasurements    int                  `yaml:"max_measurements" json:"max_measurements"`
	MaxMeds            int                  `yaml:"max_meds" json:"max_meds"`
	MaxOutputs         int                  `yaml:"max_outputs" json:"max_outputs"`
	MaxProcedureEvents int                  `yaml:"max_procedure_events" json:"max_procedure_events"`
	Trend              features.TrendConfig `yaml:"trend" json:"trend"`
}

// DefaultConfig mirrors the caps used for the reference cohort.
func DefaultConfig() Config {
	return Config{
		MaxDiagnoses:       15,
		MaxProcedures:      10,
		MaxLabs:            10,
		MaxMeasurements:    10,
		MaxMeds:            10,
		MaxOutputs:         15,
		MaxProcedureEvents: 15,
		Trend:              features.DefaultTrendConfig(),
	}
}
