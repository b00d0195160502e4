// Package generate provides the public entrypoint for the internal
// generation backend clients. It simply re-exports the vetted
// backend/internal/generate implementation so that packages outside
// backend/ can construct model clients without depending on the internal
// package directly.
package generate

import (
	"net/http"

	"discharge_pipeline/backend/internal/generate"
)

// Generator re-exports the internal Generator interface.
type Generator = generate.Generator

// ModelConfig re-exports the internal ModelConfig type.
type ModelConfig = generate.ModelConfig

// ErrUnavailable re-exports the internal transient-failure sentinel.
var ErrUnavailable = generate.ErrUnavailable

// Model family names re-exported from the internal package.
const (
	FamilySeq2Seq = generate.FamilySeq2Seq
	FamilyCausal  = generate.FamilyCausal
)

// New re-exports the internal constructor.
func New(client *http.Client, cfg ModelConfig) (Generator, error) {
	return generate.New(client, cfg)
}
