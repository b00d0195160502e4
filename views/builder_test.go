package views

import (
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"discharge_pipeline/features"
)

func testAdmission(t *testing.T) features.Admission {
	t.Helper()
	admit := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	series := func(values ...float64) []features.TimeSeriesPoint {
		points := make([]features.TimeSeriesPoint, len(values))
		for i, v := range values {
			points[i] = features.TimeSeriesPoint{Timestamp: admit.Add(time.Duration(i) * time.Hour), Value: v, Unit: "bpm"}
		}
		return points
	}
	return features.Admission{
		AdmissionID:   "20001",
		SubjectID:     "101",
		AdmitTime:     admit,
		DischargeTime: admit.Add(96 * time.Hour),
		AdmissionType: "EMERGENCY",
		Insurance:     "Medicare",
		Gender:        "F",
		AnchorAge:     67,
		Diagnoses: []features.Diagnosis{
			{Code: "A419", Description: "Sepsis, unspecified organism", Seq: 1},
			{Code: "J9600", Description: "Acute respiratory failure", Seq: 2},
		},
		Procedures: []features.Procedure{
			{Code: "5A1945Z", Description: "Mechanical ventilation", Seq: 1},
		},
		Measurements: map[string][]features.TimeSeriesPoint{
			"Heart Rate": series(88, 92, 97, 103, 111),
		},
		Labs: map[string][]features.LabResult{
			"Lactate": {
				{Timestamp: admit, Value: 4.2, Unit: "mmol/L", Abnormal: true},
				{Timestamp: admit.Add(6 * time.Hour), Value: 2.9, Unit: "mmol/L", Abnormal: true},
				{Timestamp: admit.Add(12 * time.Hour), Value: 1.8, Unit: "mmol/L"},
			},
			"Sodium": {
				{Timestamp: admit, Value: 139, Unit: "mEq/L"},
				{Timestamp: admit.Add(24 * time.Hour), Value: 141, Unit: "mEq/L"},
			},
		},
		Dosages: []features.DosageRecord{
			{Drug: "heparin", Timestamp: admit, Quantity: 10, Unit: "mg"},
			{Drug: "heparin", Timestamp: admit.Add(30 * time.Minute), Quantity: 15, Unit: "mg"},
			{Drug: "heparin", Timestamp: admit.Add(time.Hour), Quantity: 2, Unit: "µg"},
		},
		ProcedureEvents: []features.ProcedureEvent{
			{Label: "Arterial line", StartTime: admit.Add(2 * time.Hour), EndTime: admit.Add(50 * time.Hour), Location: "Right radial"},
		},
		Outputs: []features.OutputEvent{
			{Label: "Foley", Timestamp: admit.Add(4 * time.Hour), Quantity: 300, Unit: "mL"},
			{Label: "Foley", Timestamp: admit.Add(8 * time.Hour), Quantity: 450, Unit: "mL"},
		},
	}
}

func TestBuildProducesEveryView(t *testing.T) {
	set, err := Build(testAdmission(t), DefaultConfig())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(set.Views) != len(All) {
		t.Fatalf("view count = %d, want %d", len(set.Views), len(All))
	}
	for _, name := range All {
		view, ok := set.Views[name]
		if !ok {
			t.Fatalf("missing view %q", name)
		}
		if len(view.Statements) == 0 {
			t.Fatalf("view %q has no statements", name)
		}
	}
}

func TestBuildMedsReportsExclusions(t *testing.T) {
	set, err := Build(testAdmission(t), DefaultConfig())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	text := set.Views[Meds].Render()
	if !strings.Contains(text, "heparin: 25 mg total across 2 administrations.") {
		t.Fatalf("meds view missing canonical total:\n%s", text)
	}
	if !strings.Contains(text, "(1 record in other units excluded.)") {
		t.Fatalf("meds view missing exclusion note:\n%s", text)
	}
}

func TestBuildLabsOrderedByAbnormality(t *testing.T) {
	set, err := Build(testAdmission(t), DefaultConfig())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	labs := set.Views[Labs]
	if labs.Statements[0].Label != "Lactate" {
		t.Fatalf("first lab = %q, want Lactate (most abnormal first)", labs.Statements[0].Label)
	}
	if labs.Statements[0].Priority <= labs.Statements[1].Priority {
		t.Fatalf("priorities not descending: %d then %d", labs.Statements[0].Priority, labs.Statements[1].Priority)
	}
	if !strings.Contains(labs.Statements[0].Text, "trend falling") {
		t.Fatalf("lactate statement missing falling trend: %q", labs.Statements[0].Text)
	}
}

func TestBuildEnforcesCaps(t *testing.T) {
	adm := testAdmission(t)
	adm.Labs = make(map[string][]features.LabResult, 12)
	for i := 0; i < 12; i++ {
		label := fmt.Sprintf("Assay %02d", i)
		adm.Labs[label] = []features.LabResult{
			{Timestamp: adm.AdmitTime, Value: float64(i)},
			{Timestamp: adm.AdmitTime.Add(time.Hour), Value: float64(i + 1)},
		}
	}
	cfg := DefaultConfig()
	set, err := Build(adm, cfg)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	labs := set.Views[Labs]
	if len(labs.Statements) != cfg.MaxLabs {
		t.Fatalf("lab statements = %d, want cap %d", len(labs.Statements), cfg.MaxLabs)
	}
	if len(labs.Dropped) != 2 {
		t.Fatalf("dropped = %v, want 2 labels", labs.Dropped)
	}
}

func TestBuildEmptyAdmissionUsesMarkers(t *testing.T) {
	adm := features.Admission{AdmissionID: "20002"}
	set, err := Build(adm, DefaultConfig())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	for _, name := range All {
		view := set.Views[name]
		if !view.Empty {
			t.Fatalf("view %q should be marked empty", name)
		}
		if len(view.Statements) != 1 || !strings.HasPrefix(view.Statements[0].Text, "(No ") {
			t.Fatalf("view %q marker malformed: %+v", name, view.Statements)
		}
	}
}

func TestBuildDeterministic(t *testing.T) {
	adm := testAdmission(t)
	first, err := Build(adm, DefaultConfig())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	for i := 0; i < 3; i++ {
		again, err := Build(adm, DefaultConfig())
		if err != nil {
			t.Fatalf("Build: %v", err)
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d produced a different view set", i)
		}
	}
}

func TestBuildPropagatesUnorderedSeries(t *testing.T) {
	adm := testAdmission(t)
	adm.Measurements["Heart Rate"] = []features.TimeSeriesPoint{
		{Timestamp: adm.AdmitTime.Add(time.Hour), Value: 90},
		{Timestamp: adm.AdmitTime, Value: 85},
		{Timestamp: adm.AdmitTime.Add(2 * time.Hour), Value: 95},
	}
	if _, err := Build(adm, DefaultConfig()); err == nil {
		t.Fatal("Build accepted an unordered series")
	}
}
