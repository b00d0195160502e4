package views

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"discharge_pipeline/features"
)

// Build linearizes one admission into the full set of bounded views. Views
// with no underlying data carry a single no-data marker instead of being
// omitted, so downstream stages always see the same shape.
func Build(adm features.Admission, cfg Config) (Set, error) {
	set := Set{AdmissionID: adm.AdmissionID, Views: make(map[string]View, len(All))}
	for _, name := range All {
		view, err := BuildOne(name, adm, cfg)
		if err != nil {
			return Set{}, fmt.Errorf("%s view: %w", name, err)
		}
		set.Views[name] = view
	}
	return set, nil
}

// BuildOne linearizes a single named view.
func BuildOne(name string, adm features.Admission, cfg Config) (View, error) {
	switch name {
	case Admission:
		return buildAdmission(adm), nil
	case DxProc:
		return buildDxProc(adm, cfg), nil
	case Labs:
		return buildLabs(adm, cfg)
	case Measurements:
		return buildMeasurements(adm, cfg)
	case Meds:
		return buildMeds(adm, cfg), nil
	case Outputs:
		return buildOutputs(adm, cfg), nil
	case ProcedureEvents:
		return buildProcedureEvents(adm, cfg), nil
	}
	return View{}, fmt.Errorf("unknown view %q", name)
}

func buildAdmission(adm features.Admission) View {
	var stmts []Statement
	if adm.AnchorAge > 0 || adm.Gender != "" {
		stmts = append(stmts, Statement{
			Label: "patient",
			Text:  fmt.Sprintf("Patient: %d-year-old %s.", adm.AnchorAge, fallback(adm.Gender, "patient")),
		})
	}
	if adm.AdmissionType != "" {
		text := fmt.Sprintf("Admission type: %s.", adm.AdmissionType)
		if adm.Insurance != "" {
			text = fmt.Sprintf("Admission type: %s; insurance: %s.", adm.AdmissionType, adm.Insurance)
		}
		stmts = append(stmts, Statement{Label: "admission_type", Text: text})
	}
	if !adm.AdmitTime.IsZero() && !adm.DischargeTime.IsZero() {
		days := adm.DischargeTime.Sub(adm.AdmitTime).Hours() / 24
		stmts = append(stmts, Statement{
			Label: "length_of_stay",
			Text: fmt.Sprintf("Length of stay: %s days (%s to %s).",
				fmtNum(days),
				adm.AdmitTime.Format("2006-01-02"),
				adm.DischargeTime.Format("2006-01-02")),
		})
	}
	if len(stmts) == 0 {
		return markerView(Admission, "admission context")
	}
	assignPriorities(stmts)
	return View{Name: Admission, Statements: stmts}
}

func buildDxProc(adm features.Admission, cfg Config) View {
	diagnoses := append([]features.Diagnosis(nil), adm.Diagnoses...)
	sort.SliceStable(diagnoses, func(i, j int) bool { return diagnoses[i].Seq < diagnoses[j].Seq })
	procedures := append([]features.Procedure(nil), adm.Procedures...)
	sort.SliceStable(procedures, func(i, j int) bool { return procedures[i].Seq < procedures[j].Seq })

	var stmts []Statement
	var dropped []string
	for i, dx := range diagnoses {
		if i >= cfg.MaxDiagnoses {
			dropped = append(dropped, dx.Description)
			continue
		}
		stmts = append(stmts, Statement{
			Label: dx.Code,
			Text:  fmt.Sprintf("Diagnosis %d: %s (%s).", dx.Seq, dx.Description, dx.Code),
		})
	}
	for i, proc := range procedures {
		if i >= cfg.MaxProcedures {
			dropped = append(dropped, proc.Description)
			continue
		}
		stmts = append(stmts, Statement{
			Label: proc.Code,
			Text:  fmt.Sprintf("Hospital procedure: %s (%s).", proc.Description, proc.Code),
		})
	}
	if len(stmts) == 0 {
		return markerView(DxProc, "diagnoses or procedures")
	}
	assignPriorities(stmts)
	return View{Name: DxProc, Statements: stmts, Dropped: dropped}
}

func buildLabs(adm features.Admission, cfg Config) (View, error) {
	type labRow struct {
		label    string
		count    int
		abnormal int
		latest   features.LabResult
		unit     string
		trend    string
	}
	rows := make([]labRow, 0, len(adm.Labs))
	for _, label := range sortedKeys(adm.Labs) {
		results := adm.Labs[label]
		if len(results) == 0 {
			continue
		}
		points := features.LabPoints(results)
		feat, err := features.ComputeTrend(label, points, cfg.Trend)
		if err != nil {
			return View{}, err
		}
		rows = append(rows, labRow{
			label:    label,
			count:    len(results),
			abnormal: features.AbnormalCount(results),
			latest:   results[len(results)-1],
			unit:     features.ModalUnit(points),
			trend:    feat.Classification,
		})
	}
	if len(rows) == 0 {
		return markerView(Labs, "laboratory results"), nil
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].abnormal != rows[j].abnormal {
			return rows[i].abnormal > rows[j].abnormal
		}
		if rows[i].count != rows[j].count {
			return rows[i].count > rows[j].count
		}
		return rows[i].label < rows[j].label
	})

	var stmts []Statement
	var droppedLabels []string
	for i, row := range rows {
		if i >= cfg.MaxLabs {
			droppedLabels = append(droppedLabels, row.label)
			continue
		}
		text := fmt.Sprintf("%s: %s, %d abnormal, latest %s%s, trend %s.",
			row.label, plural(row.count, "result"), row.abnormal,
			fmtNum(row.latest.Value), unitSuffix(row.unit), row.trend)
		stmts = append(stmts, Statement{Label: row.label, Text: text})
	}
	assignPriorities(stmts)
	return View{Name: Labs, Statements: stmts, Dropped: droppedLabels}, nil
}

func buildMeasurements(adm features.Admission, cfg Config) (View, error) {
	type measRow struct {
		label string
		stats features.SeriesStats
		trend string
	}
	rows := make([]measRow, 0, len(adm.Measurements))
	for _, label := range sortedKeys(adm.Measurements) {
		points := adm.Measurements[label]
		if len(points) == 0 {
			continue
		}
		feat, err := features.ComputeTrend(label, points, cfg.Trend)
		if err != nil {
			return View{}, err
		}
		rows = append(rows, measRow{label: label, stats: features.SummarizeSeries(points), trend: feat.Classification})
	}
	if len(rows) == 0 {
		return markerView(Measurements, "measurements"), nil
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].stats.Count != rows[j].stats.Count {
			return rows[i].stats.Count > rows[j].stats.Count
		}
		return rows[i].label < rows[j].label
	})

	var stmts []Statement
	var droppedLabels []string
	for i, row := range rows {
		if i >= cfg.MaxMeasurements {
			droppedLabels = append(droppedLabels, row.label)
			continue
		}
		text := fmt.Sprintf("%s: median %s%s, range %s to %s, %s, trend %s.",
			row.label, fmtNum(row.stats.Median), unitSuffix(row.stats.Unit),
			fmtNum(row.stats.Min), fmtNum(row.stats.Max), plural(row.stats.Count, "reading"), row.trend)
		stmts = append(stmts, Statement{Label: row.label, Text: text})
	}
	assignPriorities(stmts)
	return View{Name: Measurements, Statements: stmts, Dropped: droppedLabels}, nil
}

func buildMeds(adm features.Admission, cfg Config) View {
	aggs := features.AggregateDosages(adm.Dosages)
	if len(aggs) == 0 {
		return markerView(Meds, "medications")
	}
	drugs := make([]string, 0, len(aggs))
	for drug := range aggs {
		drugs = append(drugs, drug)
	}
	sort.SliceStable(drugs, func(i, j int) bool {
		a, b := aggs[drugs[i]], aggs[drugs[j]]
		if a.RecordCount != b.RecordCount {
			return a.RecordCount > b.RecordCount
		}
		return drugs[i] < drugs[j]
	})

	var stmts []Statement
	var droppedLabels []string
	for i, drug := range drugs {
		if i >= cfg.MaxMeds {
			droppedLabels = append(droppedLabels, drug)
			continue
		}
		agg := aggs[drug]
		text := fmt.Sprintf("%s: %s%s total across %s.",
			agg.Drug, fmtNum(agg.TotalQuantity), unitSuffix(agg.CanonicalUnit), plural(agg.RecordCount, "administration"))
		if agg.ExcludedCount > 0 {
			text += fmt.Sprintf(" (%s in other units excluded.)", plural(agg.ExcludedCount, "record"))
		}
		stmts = append(stmts, Statement{Label: drug, Text: text})
	}
	assignPriorities(stmts)
	return View{Name: Meds, Statements: stmts, Dropped: droppedLabels}
}

func buildOutputs(adm features.Admission, cfg Config) View {
	aggs := features.AggregateOutputs(adm.Outputs)
	if len(aggs) == 0 {
		return markerView(Outputs, "fluid outputs")
	}
	labels := make([]string, 0, len(aggs))
	for label := range aggs {
		labels = append(labels, label)
	}
	sort.SliceStable(labels, func(i, j int) bool {
		a, b := aggs[labels[i]], aggs[labels[j]]
		if a.TotalQuantity != b.TotalQuantity {
			return a.TotalQuantity > b.TotalQuantity
		}
		return labels[i] < labels[j]
	})

	var stmts []Statement
	var droppedLabels []string
	for i, label := range labels {
		if i >= cfg.MaxOutputs {
			droppedLabels = append(droppedLabels, label)
			continue
		}
		agg := aggs[label]
		text := fmt.Sprintf("%s: %s%s total across %s.",
			label, fmtNum(agg.TotalQuantity), unitSuffix(agg.CanonicalUnit), plural(agg.RecordCount, "event"))
		if agg.ExcludedCount > 0 {
			text += fmt.Sprintf(" (%s in other units excluded.)", plural(agg.ExcludedCount, "event"))
		}
		stmts = append(stmts, Statement{Label: label, Text: text})
	}
	assignPriorities(stmts)
	return View{Name: Outputs, Statements: stmts, Dropped: droppedLabels}
}

func buildProcedureEvents(adm features.Admission, cfg Config) View {
	events := append([]features.ProcedureEvent(nil), adm.ProcedureEvents...)
	if len(events) == 0 {
		return markerView(ProcedureEvents, "bedside procedures")
	}
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].StartTime.Equal(events[j].StartTime) {
			return events[i].StartTime.Before(events[j].StartTime)
		}
		return events[i].Label < events[j].Label
	})

	var stmts []Statement
	var droppedLabels []string
	for i, ev := range events {
		if i >= cfg.MaxProcedureEvents {
			droppedLabels = append(droppedLabels, ev.Label)
			continue
		}
		text := fmt.Sprintf("%s on %s", ev.Label, ev.StartTime.Format("2006-01-02"))
		if d := ev.EndTime.Sub(ev.StartTime); d > 0 {
			text += fmt.Sprintf(", duration %s", fmtDuration(d))
		}
		if ev.Location != "" {
			text += fmt.Sprintf(" (%s)", ev.Location)
		}
		stmts = append(stmts, Statement{Label: ev.Label, Text: text + "."})
	}
	assignPriorities(stmts)
	return View{Name: ProcedureEvents, Statements: stmts, Dropped: droppedLabels}
}

// markerView builds the single-statement placeholder for a view with no data.
func markerView(name, noun string) View {
	return View{
		Name:  name,
		Empty: true,
		Statements: []Statement{{
			Label:    "no_data",
			Text:     fmt.Sprintf("(No %s recorded in the data.)", noun),
			Priority: 1,
		}},
	}
}

// assignPriorities ranks statements by position, first kept longest.
func assignPriorities(stmts []Statement) {
	for i := range stmts {
		stmts[i].Priority = len(stmts) - i
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func fallback(s, alt string) string {
	if s == "" {
		return alt
	}
	return s
}

func unitSuffix(unit string) string {
	if unit == "" {
		return ""
	}
	return " " + unit
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}

// fmtNum rounds to one decimal and trims a trailing zero fraction.
func fmtNum(v float64) string {
	return strconv.FormatFloat(math.Round(v*10)/10, 'f', -1, 64)
}

func fmtDuration(d time.Duration) string {
	if d >= time.Hour {
		return fmt.Sprintf("%sh", fmtNum(d.Hours()))
	}
	return fmt.Sprintf("%d min", int(d.Round(time.Minute)/time.Minute))
}
