// Package generate hosts the HTTP clients for the narrative generation
// backends. Two model families sit behind one Generator interface: seq2seq
// instruction models whose output is used verbatim, and causal chat models
// whose prompts need wrapping and whose responses may echo the prompt.
package generate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"discharge_pipeline/prompt"
)

// ErrUnavailable marks a transient backend condition worth retrying on a
// later run: timeouts, connection failures, 429 and 5xx responses.
var ErrUnavailable = errors.New("generation backend unavailable")

// Model families accepted in configuration.
const (
	FamilySeq2Seq = "seq2seq"
	FamilyCausal  = "causal"
)

// ModelConfig describes one backend endpoint.
type ModelConfig struct {
	ID         string `yaml:"id" json:"id"`
	Family     string `yaml:"family" json:"family"`
	BaseURL    string `yaml:"base_url" json:"base_url"`
	APIKeyEnv  string `yaml:"api_key_env,omitempty" json:"api_key_env,omitempty"`
	TimeoutSec int    `yaml:"timeout_sec,omitempty" json:"timeout_sec,omitempty"`
}

// timeout bounds one backend call.
func (c ModelConfig) timeout() time.Duration {
	if c.TimeoutSec > 0 {
		return time.Duration(c.TimeoutSec) * time.Second
	}
	return 120 * time.Second
}

// Generator produces one section text from an assembled prompt job.
type Generator interface {
	ModelID() string
	Family() string
	Generate(ctx context.Context, job prompt.GenerationJob) (string, error)
}

// New builds the client for one configured model. The API key, when an env
// var name is configured, is resolved once at construction.
func New(client *http.Client, cfg ModelConfig) (Generator, error) {
	if cfg.ID == "" {
		return nil, errors.New("model config missing id")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("model %s missing base_url", cfg.ID)
	}
	if client == nil {
		client = &http.Client{}
	}
	key := ""
	if cfg.APIKeyEnv != "" {
		key = os.Getenv(cfg.APIKeyEnv)
	}
	switch cfg.Family {
	case FamilySeq2Seq:
		return &seq2seqClient{client: client, cfg: cfg, key: key}, nil
	case FamilyCausal:
		return &causalClient{client: client, cfg: cfg, key: key}, nil
	}
	return nil, fmt.Errorf("model %s has unknown family %q", cfg.ID, cfg.Family)
}
