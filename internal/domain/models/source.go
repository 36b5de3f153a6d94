package models

import (
	"encoding/json"
	"time"
)

// SourceName identifies an external intelligence source.
type SourceName string

const (
	SourceWhaleTracker      SourceName = "whale_tracker"
	SourceSocialSentiment   SourceName = "social_sentiment"
	SourceDerivatives       SourceName = "derivatives"
	SourceFearGreed         SourceName = "fear_greed"
	SourceArbitrageScanner  SourceName = "arbitrage_scanner"
	SourceTechnicalAnalysis SourceName = "technical_analysis"
	SourceNewsMonitor       SourceName = "news_monitor"
	SourceOnchainFlows      SourceName = "onchain_flows"
)

// AllSources is the canonical source order. Ranking ties and output
// ordering fall back to this order.
var AllSources = []SourceName{
	SourceWhaleTracker,
	SourceSocialSentiment,
	SourceDerivatives,
	SourceFearGreed,
	SourceArbitrageScanner,
	SourceTechnicalAnalysis,
	SourceNewsMonitor,
	SourceOnchainFlows,
}

// SourceIndex returns the canonical position of name, or -1.
func SourceIndex(name SourceName) int {
	for i, s := range AllSources {
		if s == name {
			return i
		}
	}
	return -1
}

func (s SourceName) Valid() bool { return SourceIndex(s) >= 0 }

// SourceMetrics is the learned reliability of one source.
type SourceMetrics struct {
	SuccessRate         float64 `json:"success_rate"`
	SignalQuality       float64 `json:"signal_quality"`
	TotalCalls          int64   `json:"total_calls"`
	QualitySignals      int64   `json:"quality_signals"`
	AverageResponseTime float64 `json:"average_response_time_ms"`
}

// Priors for a source that has never been queried.
const (
	InitialSuccessRate   = 0.5
	InitialSignalQuality = 0.5
)

func NewSourceMetrics() SourceMetrics {
	return SourceMetrics{
		SuccessRate:   InitialSuccessRate,
		SignalQuality: InitialSignalQuality,
	}
}

// SourceResponse is what the agent runtime returns for one query.
type SourceResponse struct {
	Success        bool            `json:"success"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	ResponseTimeMs float64         `json:"response_time_ms"`
	Error          string          `json:"error,omitempty"`
}

// SourceResult is the outcome of querying one selected source in a cycle.
type SourceResult struct {
	Source         SourceName    `json:"source"`
	Success        bool          `json:"success"`
	Payload        SourcePayload `json:"payload,omitempty"`
	ResponseTimeMs float64       `json:"response_time_ms"`
	Error          string        `json:"error,omitempty"`
	CompletedAt    time.Time     `json:"completed_at"`
}

// ScoredSource pairs a source with its score for a cycle.
type ScoredSource struct {
	Source SourceName `json:"source"`
	Score  float64    `json:"score"`
}

// Selection is the selector's output for one cycle.
type Selection struct {
	Sources  []SourceName `json:"sources"`
	Explored bool         `json:"explored"`
	// Set only when Explored is true.
	Dropped SourceName `json:"dropped,omitempty"`
	Added   SourceName `json:"added,omitempty"`
}
