package batch

import (
	"testing"

	"discharge_pipeline/backend/generate"
	"discharge_pipeline/internal/store"
)

func planModels() []generate.ModelConfig {
	return []generate.ModelConfig{
		{ID: "flan-t5-large", Family: generate.FamilySeq2Seq, BaseURL: "http://localhost:8001"},
		{ID: "meditron-7b", Family: generate.FamilyCausal, BaseURL: "http://localhost:8002"},
	}
}

func TestPlanCrossesCohortWithModels(t *testing.T) {
	units, sum := Plan([]string{"20001", "20002"}, planModels(), nil, 0)
	want := []Unit{
		{AdmissionID: "20001", ModelID: "flan-t5-large"},
		{AdmissionID: "20001", ModelID: "meditron-7b"},
		{AdmissionID: "20002", ModelID: "flan-t5-large"},
		{AdmissionID: "20002", ModelID: "meditron-7b"},
	}
	if len(units) != len(want) {
		t.Fatalf("selected %d units, want %d", len(units), len(want))
	}
	for i, u := range units {
		if u != want[i] {
			t.Fatalf("unit %d = %+v, want %+v", i, u, want[i])
		}
	}
	if sum.TotalUnits != 4 || sum.AlreadyDone != 0 || sum.Pending != 4 || sum.Selected != 4 {
		t.Fatalf("summary = %+v", sum)
	}
}

func TestPlanSkipsCompletedUnits(t *testing.T) {
	done := map[store.UnitKey]struct{}{
		{AdmissionID: "20001", ModelID: "meditron-7b"}:   {},
		{AdmissionID: "20002", ModelID: "flan-t5-large"}: {},
	}
	units, sum := Plan([]string{"20001", "20002"}, planModels(), done, 0)
	if len(units) != 2 {
		t.Fatalf("selected %d units, want 2: %+v", len(units), units)
	}
	for _, u := range units {
		if _, ok := done[store.UnitKey{AdmissionID: u.AdmissionID, ModelID: u.ModelID}]; ok {
			t.Fatalf("completed unit %+v selected again", u)
		}
	}
	if sum.TotalUnits != 4 || sum.AlreadyDone != 2 || sum.Pending != 2 || sum.Selected != 2 {
		t.Fatalf("summary = %+v", sum)
	}
}

func TestPlanLimit(t *testing.T) {
	units, sum := Plan([]string{"20001", "20002", "20003"}, planModels(), nil, 3)
	if len(units) != 3 {
		t.Fatalf("selected %d units, want 3", len(units))
	}
	if sum.TotalUnits != 6 || sum.Pending != 6 || sum.Selected != 3 {
		t.Fatalf("summary = %+v", sum)
	}
	// A limit beyond the pending count selects everything.
	units, sum = Plan([]string{"20001"}, planModels(), nil, 50)
	if len(units) != 2 || sum.Selected != 2 {
		t.Fatalf("oversized limit: units=%d summary=%+v", len(units), sum)
	}
}

func TestPlanEmptyCohort(t *testing.T) {
	units, sum := Plan(nil, planModels(), nil, 0)
	if len(units) != 0 {
		t.Fatalf("selected %d units from empty cohort", len(units))
	}
	if sum.TotalUnits != 0 || sum.Selected != 0 {
		t.Fatalf("summary = %+v", sum)
	}
}
