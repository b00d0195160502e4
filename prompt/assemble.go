package prompt

import (
	"fmt"
	"strings"

	"discharge_pipeline/views"
)

// GenerationJob is one budget-checked generation request for a single view.
type GenerationJob struct {
	AdmissionID     string   `json:"admission_id"`
	ViewName        string   `json:"view_name"`
	PromptText      string   `json:"prompt_text"`
	PromptTokens    int      `json:"prompt_tokens"`
	Budget          int      `json:"budget"`
	MaxNewTokens    int      `json:"max_new_tokens"`
	TotalStatements int      `json:"total_statements"`
	KeptStatements  int      `json:"kept_statements"`
	DroppedLabels   []string `json:"dropped_labels,omitempty"`
}

// Config carries the budgeting knobs.
type Config struct {
	TotalBudget         int                `yaml:"total_budget" json:"total_budget"`
	MinFloor            int                `yaml:"min_floor" json:"min_floor"`
	BytesPerToken       int                `yaml:"bytes_per_token" json:"bytes_per_token"`
	Weights             map[string]float64 `yaml:"weights,omitempty" json:"weights,omitempty"`
	OutputTokens        map[string]int     `yaml:"output_tokens,omitempty" json:"output_tokens,omitempty"`
	DefaultOutputTokens int                `yaml:"default_output_tokens" json:"default_output_tokens"`
}

// DefaultConfig mirrors the budgets tuned on the reference cohort.
func DefaultConfig() Config {
	return Config{
		TotalBudget:   2048,
		MinFloor:      64,
		BytesPerToken: 4,
		Weights: map[string]float64{
			views.Admission:       0.5,
			views.DxProc:          1,
			views.Labs:            1.5,
			views.Measurements:    1.25,
			views.Meds:            1.5,
			views.Outputs:         0.75,
			views.ProcedureEvents: 0.75,
		},
		OutputTokens: map[string]int{
			views.Admission:       100,
			views.DxProc:          180,
			views.Labs:            256,
			views.Measurements:    200,
			views.Meds:            256,
			views.Outputs:         200,
			views.ProcedureEvents: 180,
		},
		DefaultOutputTokens: 192,
	}
}

// OutputTokensFor resolves the generation length cap for one view.
func (c Config) OutputTokensFor(view string) int {
	if v, ok := c.OutputTokens[view]; ok && v > 0 {
		return v
	}
	if c.DefaultOutputTokens > 0 {
		return c.DefaultOutputTokens
	}
	return 192
}

// TokenEstimator builds the estimator configured for this budget.
func (c Config) TokenEstimator() Estimator {
	if c.BytesPerToken > 0 {
		return Estimator{BytesPerToken: c.BytesPerToken}
	}
	return DefaultEstimator()
}

// Assemble renders one view into a generation job that fits its budget. The
// instruction template always survives; statements are dropped lowest
// priority first, later position first on ties, until the estimate fits.
// Drops are recorded on the job for provenance. A template that alone
// exceeds the budget is a configuration error.
func Assemble(admissionID string, view views.View, template string, budget, maxNewTokens int, est Estimator) (GenerationJob, error) {
	job := GenerationJob{
		AdmissionID:     admissionID,
		ViewName:        view.Name,
		Budget:          budget,
		MaxNewTokens:    maxNewTokens,
		TotalStatements: len(view.Statements),
	}
	if budget <= 0 {
		return GenerationJob{}, fmt.Errorf("%w: view %s allocated %d tokens", ErrBudgetExceeded, view.Name, budget)
	}
	if est.Estimate(template) > budget {
		return GenerationJob{}, fmt.Errorf("%w: template for view %s does not fit %d tokens", ErrBudgetExceeded, view.Name, budget)
	}

	// The loop terminates: once every statement is dropped the render is
	// exactly the template, which fits by the check above.
	kept := append([]views.Statement(nil), view.Statements...)
	for {
		text := render(template, kept)
		tokens := est.Estimate(text)
		if tokens <= budget {
			job.PromptText = text
			job.PromptTokens = tokens
			job.KeptStatements = len(kept)
			return job, nil
		}
		victim := dropIndex(kept)
		job.DroppedLabels = append(job.DroppedLabels, kept[victim].Label)
		kept = append(kept[:victim], kept[victim+1:]...)
	}
}

// AssembleAll allocates the total budget across the set and assembles every
// view in canonical order. Templates are keyed by view name; a missing key
// means an empty template.
func AssembleAll(set views.Set, templates map[string]string, cfg Config) (map[string]GenerationJob, error) {
	budgets, err := AllocateBudgets(cfg.TotalBudget, views.All, cfg.Weights, cfg.MinFloor)
	if err != nil {
		return nil, err
	}
	est := cfg.TokenEstimator()
	jobs := make(map[string]GenerationJob, len(views.All))
	for _, name := range views.All {
		view, ok := set.Views[name]
		if !ok {
			return nil, fmt.Errorf("view %s missing from set for admission %s", name, set.AdmissionID)
		}
		job, err := Assemble(set.AdmissionID, view, templates[name], budgets[name], cfg.OutputTokensFor(name), est)
		if err != nil {
			return nil, err
		}
		jobs[name] = job
	}
	return jobs, nil
}

// dropIndex picks the statement to cut: lowest priority, and among equal
// priorities the one closest to the end.
func dropIndex(stmts []views.Statement) int {
	idx := -1
	for i, s := range stmts {
		if idx == -1 || s.Priority <= stmts[idx].Priority {
			idx = i
		}
	}
	return idx
}

func render(template string, stmts []views.Statement) string {
	lines := make([]string, len(stmts))
	for i, s := range stmts {
		lines[i] = s.Text
	}
	content := strings.Join(lines, "\n")
	switch {
	case template == "":
		return content
	case content == "":
		return template
	default:
		return template + "\n\n" + content
	}
}
