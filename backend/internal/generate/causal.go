// SPDX-License-Identifier: MIT
// causal.go implements the chat-style causal model family client.
package generate

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"discharge_pipeline/prompt"
)

const (
	instOpen  = "[INST] "
	instClose = " [/INST]\nSummary:"
)

type causalClient struct {
	client *http.Client
	cfg    ModelConfig
	key    string
}

func (c *causalClient) ModelID() string { return c.cfg.ID }

func (c *causalClient) Family() string { return FamilyCausal }

// Generate wraps the prompt in the family's chat markers and keeps only the
// continuation; causal servers may echo the wrapped prompt before it.
func (c *causalClient) Generate(ctx context.Context, job prompt.GenerationJob) (string, error) {
	wrapped := wrapCausal(job.PromptText)
	text, err := postCompletion(ctx, c.client, c.cfg.BaseURL, c.key, completionRequest{
		Model:     c.cfg.ID,
		Prompt:    wrapped,
		MaxTokens: job.MaxNewTokens,
	}, c.cfg.timeout())
	if err != nil {
		return "", err
	}
	out := stripEcho(text, wrapped)
	if out == "" {
		return "", fmt.Errorf("model %s returned blank text for view %s", c.cfg.ID, job.ViewName)
	}
	return out, nil
}

func wrapCausal(p string) string {
	return instOpen + p + instClose
}

// stripEcho removes an echoed prompt prefix from the model output.
func stripEcho(output, wrapped string) string {
	out := strings.TrimSpace(output)
	trimmed := strings.TrimSpace(wrapped)
	if strings.HasPrefix(out, trimmed) {
		out = out[len(trimmed):]
	}
	out = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(out), "Summary:"))
	return out
}
