package document

import (
	"errors"
	"fmt"
	"strings"

	"discharge_pipeline/views"
)

// ErrPartialViews reports an assembly attempt with sections missing or
// blank. No partial document is ever produced.
var ErrPartialViews = errors.New("incomplete section set")

// SectionSpec pairs a view name with its fixed narrative header.
type SectionSpec struct {
	View   string `yaml:"view" json:"view"`
	Header string `yaml:"header" json:"header"`
}

// DefaultOrder is the canonical section order of the final note. The
// admission view is generated for inspection but never concatenated.
func DefaultOrder() []SectionSpec {
	return []SectionSpec{
		{View: views.DxProc, Header: "Diagnosis and admission context"},
		{View: views.Labs, Header: "Laboratory events during the ICU stay"},
		{View: views.Meds, Header: "Medications and therapies during the ICU stay"},
		{View: views.Measurements, Header: "ICU measurements and clinical course"},
		{View: views.ProcedureEvents, Header: "ICU bedside procedures and interventions"},
		{View: views.Outputs, Header: "Fluid outputs and drains"},
	}
}

// AssembledSummary is the final concatenated note for one admission and model.
type AssembledSummary struct {
	AdmissionID  string   `json:"admission_id"`
	ModelID      string   `json:"model_id"`
	Text         string   `json:"text"`
	SectionOrder []string `json:"section_order"`
}

// Assemble concatenates generated section texts in canonical order, each
// block prefixed by its header. Every view named by order must be present
// with non-blank text; otherwise the whole assembly fails. Pure
// concatenation, no editing of the section texts beyond whitespace trim.
func Assemble(admissionID, modelID string, sections map[string]string, order []SectionSpec) (AssembledSummary, error) {
	if len(order) == 0 {
		order = DefaultOrder()
	}
	var missing []string
	for _, spec := range order {
		if strings.TrimSpace(sections[spec.View]) == "" {
			missing = append(missing, spec.View)
		}
	}
	if len(missing) > 0 {
		return AssembledSummary{}, fmt.Errorf("%w: %s", ErrPartialViews, strings.Join(missing, ", "))
	}

	blocks := make([]string, len(order))
	names := make([]string, len(order))
	for i, spec := range order {
		blocks[i] = spec.Header + ":\n" + strings.TrimSpace(sections[spec.View])
		names[i] = spec.View
	}
	return AssembledSummary{
		AdmissionID:  admissionID,
		ModelID:      modelID,
		Text:         strings.Join(blocks, "\n\n"),
		SectionOrder: names,
	}, nil
}
