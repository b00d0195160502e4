package features

import "time"

// Classification labels assigned by ComputeTrend.
const (
	TrendRising       = "rising"
	TrendFalling      = "falling"
	TrendStable       = "stable"
	TrendInsufficient = "insufficient"
)

// TimeSeriesPoint is one clinical measurement inside an admission-scoped series.
type TimeSeriesPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
	Unit      string    `json:"unit,omitempty"`
}

// TrendFeature is the derived directional summary of one signal.
// Slope is only meaningful when SlopeDefined is true; insufficient series
// report an undefined slope, not zero.
type TrendFeature struct {
	Signal         string        `json:"signal"`
	Slope          float64       `json:"slope"`
	SlopeDefined   bool          `json:"slope_defined"`
	Classification string        `json:"classification"`
	SampleCount    int           `json:"sample_count"`
	TimeSpan       time.Duration `json:"time_span"`
}

// DosageRecord is one raw medication administration.
type DosageRecord struct {
	Drug      string    `json:"drug"`
	Timestamp time.Time `json:"timestamp"`
	Quantity  float64   `json:"quantity"`
	Unit      string    `json:"unit"`
}

// AggregatedDosage sums a drug's records in exactly one canonical unit.
type AggregatedDosage struct {
	Drug          string  `json:"drug"`
	CanonicalUnit string  `json:"canonical_unit"`
	TotalQuantity float64 `json:"total_quantity"`
	RecordCount   int     `json:"record_count"`
	ExcludedCount int     `json:"excluded_count"`
}

// LabResult is one laboratory measurement with its abnormal flag.
type LabResult struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
	Unit      string    `json:"unit,omitempty"`
	Abnormal  bool      `json:"abnormal"`
}

// Diagnosis is one coded diagnosis with its billing sequence rank.
type Diagnosis struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	Seq         int    `json:"seq"`
}

// Procedure is one coded hospital procedure.
type Procedure struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	Seq         int    `json:"seq"`
}

// ProcedureEvent is one bedside procedure performed during the stay.
type ProcedureEvent struct {
	Label     string    `json:"label"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Location  string    `json:"location,omitempty"`
}

// OutputEvent is one recorded fluid output.
type OutputEvent struct {
	Label     string    `json:"label"`
	Timestamp time.Time `json:"timestamp"`
	Quantity  float64   `json:"quantity"`
	Unit      string    `json:"unit"`
}

// Admission bundles everything loaded for one hospital stay. Series are
// keyed by signal or test label and sorted by timestamp at load time.
type Admission struct {
	AdmissionID     string                       `json:"admission_id"`
	SubjectID       string                       `json:"subject_id"`
	AdmitTime       time.Time                    `json:"admit_time"`
	DischargeTime   time.Time                    `json:"discharge_time"`
	AdmissionType   string                       `json:"admission_type"`
	Insurance       string                       `json:"insurance,omitempty"`
	Gender          string                       `json:"gender,omitempty"`
	AnchorAge       int                          `json:"anchor_age,omitempty"`
	Diagnoses       []Diagnosis                  `json:"diagnoses,omitempty"`
	Procedures      []Procedure                  `json:"procedures,omitempty"`
	Measurements    map[string][]TimeSeriesPoint `json:"measurements,omitempty"`
	Labs            map[string][]LabResult       `json:"labs,omitempty"`
	Dosages         []DosageRecord               `json:"dosages,omitempty"`
	ProcedureEvents []ProcedureEvent             `json:"procedure_events,omitempty"`
	Outputs         []OutputEvent                `json:"outputs,omitempty"`
	DischargeNote   string                       `json:"discharge_note,omitempty"`
}
