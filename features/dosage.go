package features

import (
	"sort"
	"time"
)

// unitObs is one sighting of a unit string at a point in time.
type unitObs struct {
	unit string
	at   time.Time
}

// modalUnit picks the most frequent unit. Ties break to the unit first
// observed in time, then lexicographically, so the choice never depends
// on input order.
func modalUnit(obs []unitObs) string {
	type stat struct {
		count int
		first time.Time
	}
	stats := make(map[string]*stat, 4)
	for _, o := range obs {
		st, ok := stats[o.unit]
		if !ok {
			st = &stat{first: o.at}
			stats[o.unit] = st
		}
		st.count++
		if o.at.Before(st.first) {
			st.first = o.at
		}
	}
	var (
		top    string
		topSt  *stat
		picked bool
	)
	for unit, st := range stats {
		if !picked {
			top, topSt, picked = unit, st, true
			continue
		}
		if st.count != topSt.count {
			if st.count > topSt.count {
				top, topSt = unit, st
			}
			continue
		}
		if !st.first.Equal(topSt.first) {
			if st.first.Before(topSt.first) {
				top, topSt = unit, st
			}
			continue
		}
		if unit < top {
			top, topSt = unit, st
		}
	}
	return top
}

// AggregateOutputs applies the dosage unit policy to fluid output events,
// grouped by output label.
func AggregateOutputs(events []OutputEvent) map[string]AggregatedDosage {
	records := make([]DosageRecord, len(events))
	for i, ev := range events {
		records[i] = DosageRecord{Drug: ev.Label, Timestamp: ev.Timestamp, Quantity: ev.Quantity, Unit: ev.Unit}
	}
	return AggregateDosages(records)
}

// AggregateDosages resolves one canonical unit per drug and totals only the
// records expressed in that unit. Records in any other unit are counted as
// excluded, never converted.
func AggregateDosages(records []DosageRecord) map[string]AggregatedDosage {
	byDrug := make(map[string][]DosageRecord)
	for _, rec := range records {
		byDrug[rec.Drug] = append(byDrug[rec.Drug], rec)
	}

	out := make(map[string]AggregatedDosage, len(byDrug))
	for drug, recs := range byDrug {
		obs := make([]unitObs, len(recs))
		for i, rec := range recs {
			obs[i] = unitObs{unit: rec.Unit, at: rec.Timestamp}
		}
		unit := modalUnit(obs)

		// Fixed summation order keeps the float total identical across
		// shuffled inputs.
		matched := make([]DosageRecord, 0, len(recs))
		excluded := 0
		for _, rec := range recs {
			if rec.Unit != unit {
				excluded++
				continue
			}
			matched = append(matched, rec)
		}
		sort.SliceStable(matched, func(i, j int) bool {
			if !matched[i].Timestamp.Equal(matched[j].Timestamp) {
				return matched[i].Timestamp.Before(matched[j].Timestamp)
			}
			return matched[i].Quantity < matched[j].Quantity
		})

		agg := AggregatedDosage{
			Drug:          drug,
			CanonicalUnit: unit,
			RecordCount:   len(matched),
			ExcludedCount: excluded,
		}
		for _, rec := range matched {
			agg.TotalQuantity += rec.Quantity
		}
		out[drug] = agg
	}
	return out
}
