package models

import "time"

// CycleResult is everything one decision cycle produced.
type CycleResult struct {
	ID        string                       `json:"id"`
	Context   MarketContext                `json:"context"`
	Scores    []ScoredSource               `json:"scores"`
	Selection Selection                    `json:"selection"`
	Results   []SourceResult               `json:"results"`
	Signals   []Signal                     `json:"signals"`
	Skipped   int                          `json:"skipped_rules"`
	Metrics   map[SourceName]SourceMetrics `json:"metrics"`
	StartedAt time.Time                    `json:"started_at"`
	Duration  time.Duration                `json:"duration_ns"`
}

// Failures counts selected sources that did not succeed.
func (r *CycleResult) Failures() int {
	n := 0
	for _, res := range r.Results {
		if !res.Success {
			n++
		}
	}
	return n
}

// PerformanceReport summarizes learning state across cycles.
type PerformanceReport struct {
	CyclesCompleted int64                        `json:"cycles_completed"`
	LastCycleAt     time.Time                    `json:"last_cycle_at,omitempty"`
	Sources         map[SourceName]SourceMetrics `json:"sources"`
	SignalHistogram map[SignalType]int64         `json:"signal_histogram"`
	ExplorationRuns int64                        `json:"exploration_runs"`
}
