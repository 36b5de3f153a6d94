package agentruntime

import (
	"context"
	"fmt"

	"FinScout/internal/domain/models"
	domsvc "FinScout/internal/domain/service"
	xhttp "FinScout/pkg/http"
)

var _ domsvc.ModelBackend = (*ModelBackend)(nil)

type invokeRequest struct {
	Model       string  `json:"model"`
	Provider    string  `json:"provider"`
	Prompt      string  `json:"prompt"`
	System      string  `json:"system,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature"`
}

type invokeResponse struct {
	Text  string `json:"text"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	LatencyMs float64 `json:"latency_ms"`
}

// ModelBackend forwards prompts to the model gateway at
// POST {base}/v1/completions.
type ModelBackend struct {
	client *xhttp.Client
}

func NewModelBackend(client *xhttp.Client) *ModelBackend {
	return &ModelBackend{client: client}
}

func (b *ModelBackend) Invoke(ctx context.Context, prompt string, m models.ModelDescriptor, opts models.InvocationOptions) (models.InvocationResponse, error) {
	req := invokeRequest{
		Model:       m.ID,
		Provider:    m.Provider,
		Prompt:      prompt,
		System:      opts.System,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	}
	var resp invokeResponse
	if err := b.client.PostJSON(ctx, "/v1/completions", req, &resp); err != nil {
		return models.InvocationResponse{}, fmt.Errorf("invoke %s: %w", m.ID, err)
	}
	return models.InvocationResponse{
		Text:         resp.Text,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
		LatencyMs:    resp.LatencyMs,
	}, nil
}
