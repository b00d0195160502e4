package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"discharge_pipeline/backend/generate"
	"discharge_pipeline/views"
)

// PromptConfig carries the instruction templates prepended to each view's
// statements, keyed by view name. Seq2seq and causal models get separate
// phrasings; the backend applies any family-specific chat wrapping itself.
// Fields can be customized under the prompts: key of config.yaml (JSON is
// also accepted because it is a subset of YAML 1.2).
type PromptConfig struct {
	Seq2Seq map[string]string `json:"seq2seq" yaml:"seq2seq"`
	Causal  map[string]string `json:"causal" yaml:"causal"`
}

// DefaultPromptConfig returns the baked-in instruction templates.
func DefaultPromptConfig() PromptConfig {
	return PromptConfig{
		Seq2Seq: map[string]string{
			views.Admission:       "Summarize the admission context below as the opening of a hospital course narrative.",
			views.DxProc:          "Summarize the diagnoses and hospital procedures below for a discharge summary.",
			views.Labs:            "Summarize the laboratory findings below, noting abnormal results and their trends.",
			views.Measurements:    "Summarize the vital sign and measurement trends below.",
			views.Meds:            "Summarize the medications administered during this admission, keeping doses and units exactly as stated.",
			views.Outputs:         "Summarize the fluid outputs recorded during this admission.",
			views.ProcedureEvents: "Summarize the bedside procedures and device events below in the order they occurred.",
		},
		Causal: map[string]string{
			views.Admission:       "You are writing a hospital discharge summary. Open the hospital course narrative from the admission facts below.",
			views.DxProc:          "You are writing a hospital discharge summary. Describe the diagnoses and procedures from this admission using only the facts below.",
			views.Labs:            "You are writing a hospital discharge summary. Describe the laboratory course, covering abnormal results and their trends, using only the facts below.",
			views.Measurements:    "You are writing a hospital discharge summary. Describe the vital sign course using only the facts below.",
			views.Meds:            "You are writing a hospital discharge summary. Describe the medications given, keeping doses and units exactly as stated below.",
			views.Outputs:         "You are writing a hospital discharge summary. Describe the fluid outputs using only the facts below.",
			views.ProcedureEvents: "You are writing a hospital discharge summary. Describe the bedside procedures and device events using only the facts below.",
		},
	}
}

// TemplatesFor resolves the instruction templates for one model family.
// Views missing from the causal map fall back to the seq2seq phrasing.
func (c PromptConfig) TemplatesFor(family string) map[string]string {
	if family != generate.FamilyCausal {
		return c.Seq2Seq
	}
	merged := make(map[string]string, len(c.Seq2Seq))
	for view, tpl := range c.Seq2Seq {
		merged[view] = tpl
	}
	for view, tpl := range c.Causal {
		if strings.TrimSpace(tpl) != "" {
			merged[view] = tpl
		}
	}
	return merged
}

// LoadPromptConfig reads the prompts section of a YAML/JSON config file and
// merges it with the defaults.
func LoadPromptConfig(path string) (PromptConfig, error) {
	cfg := DefaultPromptConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if len(data) == 0 {
		return cfg, errors.New("empty config file")
	}
	var parsed struct {
		Prompts PromptConfig `json:"prompts" yaml:"prompts"`
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, &parsed); err != nil {
			return cfg, err
		}
	case ".yaml", ".yml", "":
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			return cfg, err
		}
	default:
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			return cfg, err
		}
	}
	return MergePromptConfig(cfg, parsed.Prompts), nil
}

// MergePromptConfig overlays non-empty templates onto the base config.
func MergePromptConfig(base PromptConfig, override PromptConfig) PromptConfig {
	for view, tpl := range override.Seq2Seq {
		if strings.TrimSpace(tpl) != "" {
			base.Seq2Seq[view] = tpl
		}
	}
	for view, tpl := range override.Causal {
		if strings.TrimSpace(tpl) != "" {
			base.Causal[view] = tpl
		}
	}
	return base
}
