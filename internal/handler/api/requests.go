package api

import (
	"time"

	"FinScout/internal/domain/models"
)

// CycleRequest is a raw market observation. Price and change are checked by
// the engine so a missing field is reported as invalid market data.
type CycleRequest struct {
	Symbol           string    `json:"symbol"`
	Price            *float64  `json:"price"`
	Change24hPercent *float64  `json:"change_24h_percent"`
	VolumeRatio      *float64  `json:"volume_ratio,omitempty"`
	Timestamp        time.Time `json:"timestamp,omitempty"`
}

func (r *CycleRequest) Tick() models.RawTick {
	return models.RawTick{
		Symbol:           r.Symbol,
		Price:            r.Price,
		Change24hPercent: r.Change24hPercent,
		VolumeRatio:      r.VolumeRatio,
		Timestamp:        r.Timestamp,
	}
}

type InvokeRequest struct {
	Prompt      string                 `json:"prompt" validate:"required"`
	System      string                 `json:"system"`
	Criteria    models.RoutingCriteria `json:"criteria"`
	MaxTokens   int                    `json:"max_tokens" validate:"gte=0,lte=200000"`
	Temperature float64                `json:"temperature" validate:"gte=0,lte=2"`
	TimeoutMs   int                    `json:"timeout_ms" validate:"gte=0,lte=600000"`
}

func (r *InvokeRequest) Options() models.InvocationOptions {
	return models.InvocationOptions{
		MaxTokens:   r.MaxTokens,
		Temperature: r.Temperature,
		Timeout:     time.Duration(r.TimeoutMs) * time.Millisecond,
		System:      r.System,
	}
}

type CycleAccepted struct {
	JobID string `json:"job_id"`
}

type RoutingExplanation struct {
	Scores     map[string]float64 `json:"scores"`
	Rejections map[string]string  `json:"rejections"`
}
