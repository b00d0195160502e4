package features

import (
	"testing"
	"time"
)

func dosage(t *testing.T, drug string, minute int, qty float64, unit string) DosageRecord {
	t.Helper()
	base := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	return DosageRecord{Drug: drug, Timestamp: base.Add(time.Duration(minute) * time.Minute), Quantity: qty, Unit: unit}
}

func TestAggregateDosagesModalUnit(t *testing.T) {
	records := []DosageRecord{
		dosage(t, "heparin", 0, 10, "mg"),
		dosage(t, "heparin", 30, 15, "mg"),
		dosage(t, "heparin", 60, 2, "µg"),
	}
	out := AggregateDosages(records)
	agg, ok := out["heparin"]
	if !ok {
		t.Fatalf("missing heparin aggregate: %+v", out)
	}
	if agg.CanonicalUnit != "mg" {
		t.Fatalf("canonical unit = %q, want mg", agg.CanonicalUnit)
	}
	if agg.TotalQuantity != 25 {
		t.Fatalf("total = %v, want 25", agg.TotalQuantity)
	}
	if agg.RecordCount != 2 || agg.ExcludedCount != 1 {
		t.Fatalf("counts = %d included / %d excluded, want 2 / 1", agg.RecordCount, agg.ExcludedCount)
	}
}

func TestAggregateDosagesNeverConverts(t *testing.T) {
	records := []DosageRecord{
		dosage(t, "propofol", 0, 50, "mg"),
		dosage(t, "propofol", 10, 50000, "µg"),
		dosage(t, "propofol", 20, 60, "mg"),
	}
	agg := AggregateDosages(records)["propofol"]
	if agg.TotalQuantity != 110 {
		t.Fatalf("total = %v, want 110 (mismatched unit must be excluded, not converted)", agg.TotalQuantity)
	}
	if agg.ExcludedCount != 1 {
		t.Fatalf("excluded = %d, want 1", agg.ExcludedCount)
	}
}

func TestAggregateDosagesGroupsPerDrug(t *testing.T) {
	records := []DosageRecord{
		dosage(t, "insulin", 0, 4, "units"),
		dosage(t, "fentanyl", 5, 50, "µg"),
		dosage(t, "insulin", 15, 6, "units"),
	}
	out := AggregateDosages(records)
	if len(out) != 2 {
		t.Fatalf("drug count = %d, want 2", len(out))
	}
	if got := out["insulin"].TotalQuantity; got != 10 {
		t.Fatalf("insulin total = %v, want 10", got)
	}
	if got := out["fentanyl"].CanonicalUnit; got != "µg" {
		t.Fatalf("fentanyl unit = %q, want µg", got)
	}
}

func TestAggregateDosagesTieBreaksByFirstSeen(t *testing.T) {
	records := []DosageRecord{
		dosage(t, "vancomycin", 0, 1000, "mg"),
		dosage(t, "vancomycin", 10, 1, "g"),
		dosage(t, "vancomycin", 20, 1, "g"),
		dosage(t, "vancomycin", 30, 750, "mg"),
	}
	agg := AggregateDosages(records)["vancomycin"]
	if agg.CanonicalUnit != "mg" {
		t.Fatalf("canonical unit = %q, want mg (earliest unit wins the tie)", agg.CanonicalUnit)
	}
	if agg.TotalQuantity != 1750 {
		t.Fatalf("total = %v, want 1750", agg.TotalQuantity)
	}
}

func TestAggregateDosagesOrderIndependent(t *testing.T) {
	records := []DosageRecord{
		dosage(t, "norepinephrine", 0, 0.1, "mg"),
		dosage(t, "norepinephrine", 5, 0.3, "mg"),
		dosage(t, "norepinephrine", 10, 7, "mL"),
		dosage(t, "norepinephrine", 15, 0.2, "mg"),
	}
	want := AggregateDosages(records)["norepinephrine"]

	perms := [][]int{{3, 2, 1, 0}, {1, 3, 0, 2}, {2, 0, 3, 1}}
	for _, perm := range perms {
		shuffled := make([]DosageRecord, len(records))
		for i, idx := range perm {
			shuffled[i] = records[idx]
		}
		got := AggregateDosages(shuffled)["norepinephrine"]
		if got != want {
			t.Fatalf("permutation %v changed the aggregate: %+v vs %+v", perm, got, want)
		}
	}
}

func TestAggregateDosagesEmpty(t *testing.T) {
	if out := AggregateDosages(nil); len(out) != 0 {
		t.Fatalf("empty input produced %d aggregates", len(out))
	}
}
