package prompt

import (
	"errors"
	"reflect"
	"testing"

	"discharge_pipeline/views"
)

func TestAllocateBudgetsSpendsExactlyTotal(t *testing.T) {
	weights := map[string]float64{"labs": 2, "meds": 1, "outputs": 1}
	names := []string{"labs", "meds", "outputs"}

	out, err := AllocateBudgets(400, names, weights, 50)
	if err != nil {
		t.Fatalf("AllocateBudgets: %v", err)
	}
	sum := 0
	for name, alloc := range out {
		if alloc < 50 {
			t.Fatalf("view %s allocated %d, below floor 50", name, alloc)
		}
		sum += alloc
	}
	if sum != 400 {
		t.Fatalf("allocations sum to %d, want 400", sum)
	}
	if out["labs"] <= out["meds"] {
		t.Fatalf("weight 2 view got %d, weight 1 view got %d", out["labs"], out["meds"])
	}
}

func TestAllocateBudgetsFloorInfeasible(t *testing.T) {
	_, err := AllocateBudgets(100, []string{"a", "b", "c"}, nil, 64)
	if !errors.Is(err, ErrBudgetExceeded) {
		t.Fatalf("err = %v, want ErrBudgetExceeded", err)
	}
}

func TestAllocateBudgetsExactFloors(t *testing.T) {
	out, err := AllocateBudgets(120, []string{"a", "b", "c"}, nil, 40)
	if err != nil {
		t.Fatalf("AllocateBudgets: %v", err)
	}
	for name, alloc := range out {
		if alloc != 40 {
			t.Fatalf("view %s allocated %d, want exactly the floor", name, alloc)
		}
	}
}

func TestAllocateBudgetsMissingWeightDefaultsToOne(t *testing.T) {
	out, err := AllocateBudgets(300, []string{"a", "b"}, map[string]float64{"a": 1}, 10)
	if err != nil {
		t.Fatalf("AllocateBudgets: %v", err)
	}
	diff := out["a"] - out["b"]
	if diff < -1 || diff > 1 {
		t.Fatalf("equal weights should split evenly, got %v", out)
	}
}

func TestAllocateBudgetsDeterministic(t *testing.T) {
	cfg := DefaultConfig()
	first, err := AllocateBudgets(cfg.TotalBudget, views.All, cfg.Weights, cfg.MinFloor)
	if err != nil {
		t.Fatalf("AllocateBudgets: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := AllocateBudgets(cfg.TotalBudget, views.All, cfg.Weights, cfg.MinFloor)
		if err != nil {
			t.Fatalf("AllocateBudgets: %v", err)
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d diverged: %v vs %v", i, again, first)
		}
	}
}

func TestEstimateRoundsUp(t *testing.T) {
	est := DefaultEstimator()
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"abc", 1},
		{"abcd", 1},
		{"abcde", 2},
		{"12345678", 2},
	}
	for _, tc := range tests {
		if got := est.Estimate(tc.in); got != tc.want {
			t.Fatalf("Estimate(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
