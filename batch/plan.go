package batch

import (
	"discharge_pipeline/backend/generate"
	"discharge_pipeline/internal/store"
)

// Unit is one (admission, model) work item.
type Unit struct {
	AdmissionID string `json:"admission_id"`
	ModelID     string `json:"model_id"`
}

// Summary captures how a plan was composed from the cohort and the
// checkpoint log.
type Summary struct {
	TotalUnits  int `json:"total"`
	AlreadyDone int `json:"already_done"`
	Pending     int `json:"pending"`
	Selected    int `json:"selected"`
}

// Plan crosses the cohort with the configured models and drops every unit
// the checkpoint log already covers. Order is cohort order crossed with
// model order, so a resumed run walks the remainder in the same sequence.
// A limit of zero selects everything pending.
func Plan(admissionIDs []string, models []generate.ModelConfig, done map[store.UnitKey]struct{}, limit int) ([]Unit, Summary) {
	var summary Summary
	units := make([]Unit, 0, len(admissionIDs)*len(models))
	for _, adm := range admissionIDs {
		for _, m := range models {
			summary.TotalUnits++
			if _, ok := done[store.UnitKey{AdmissionID: adm, ModelID: m.ID}]; ok {
				summary.AlreadyDone++
				continue
			}
			units = append(units, Unit{AdmissionID: adm, ModelID: m.ID})
		}
	}
	summary.Pending = len(units)
	if limit > 0 && limit < len(units) {
		units = units[:limit]
	}
	summary.Selected = len(units)
	return units, summary
}
