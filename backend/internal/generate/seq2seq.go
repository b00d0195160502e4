// SPDX-License-Identifier: MIT
// seq2seq.go implements the instruction-following model family client.
package generate

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"discharge_pipeline/prompt"
)

type seq2seqClient struct {
	client *http.Client
	cfg    ModelConfig
	key    string
}

func (c *seq2seqClient) ModelID() string { return c.cfg.ID }

func (c *seq2seqClient) Family() string { return FamilySeq2Seq }

// Generate posts the prompt as-is and uses the response text verbatim.
func (c *seq2seqClient) Generate(ctx context.Context, job prompt.GenerationJob) (string, error) {
	text, err := postCompletion(ctx, c.client, c.cfg.BaseURL, c.key, completionRequest{
		Model:     c.cfg.ID,
		Prompt:    job.PromptText,
		MaxTokens: job.MaxNewTokens,
	}, c.cfg.timeout())
	if err != nil {
		return "", err
	}
	out := strings.TrimSpace(text)
	if out == "" {
		return "", fmt.Errorf("model %s returned blank text for view %s", c.cfg.ID, job.ViewName)
	}
	return out, nil
}
