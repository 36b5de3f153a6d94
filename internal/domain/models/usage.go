package models

import "time"

type ModelUsage struct {
	ModelID      string  `json:"model_id"`
	Provider     string  `json:"provider"`
	Invocations  int64   `json:"invocations"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	Cost         float64 `json:"cost"`
}

// UsageReport is a point-in-time copy of the usage counters.
type UsageReport struct {
	Since             time.Time             `json:"since"`
	TotalInvocations  int64                 `json:"total_invocations"`
	TotalInputTokens  int64                 `json:"total_input_tokens"`
	TotalOutputTokens int64                 `json:"total_output_tokens"`
	TotalCost         float64               `json:"total_cost"`
	PerModel          map[string]ModelUsage `json:"per_model"`
}
