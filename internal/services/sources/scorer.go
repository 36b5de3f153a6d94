package sources

import (
	"sort"

	"FinScout/internal/domain/models"
)

// ScoreWeights blend learned metrics into a performance multiplier:
// multiplier = Floor + (1-Floor) * (Success*success_rate + Quality*signal_quality).
type ScoreWeights struct {
	Floor   float64
	Success float64
	Quality float64
}

func DefaultScoreWeights() ScoreWeights {
	return ScoreWeights{Floor: 0.25, Success: 0.6, Quality: 0.4}
}

type Scorer struct {
	table   RelevanceTable
	weights ScoreWeights
}

func NewScorer(table RelevanceTable, weights ScoreWeights) *Scorer {
	if table == nil {
		table = DefaultRelevance()
	}
	return &Scorer{table: table, weights: weights}
}

// Score is in (0, 1] for any metrics within bounds.
func (s *Scorer) Score(src models.SourceName, mc models.MarketContext, m models.SourceMetrics) float64 {
	base := s.table.Weight(src, mc.Volatility, mc.Trend)
	perf := s.weights.Success*clamp01(m.SuccessRate) + s.weights.Quality*clamp01(m.SignalQuality)
	return base * (s.weights.Floor + (1-s.weights.Floor)*clamp01(perf))
}

// Rank scores every known source and orders them by score descending,
// falling back to canonical source order on ties. Sources missing from
// metrics are scored with the untested prior.
func (s *Scorer) Rank(mc models.MarketContext, metrics map[models.SourceName]models.SourceMetrics) []models.ScoredSource {
	out := make([]models.ScoredSource, 0, len(models.AllSources))
	for _, src := range models.AllSources {
		m, ok := metrics[src]
		if !ok {
			m = models.NewSourceMetrics()
		}
		out = append(out, models.ScoredSource{Source: src, Score: s.Score(src, mc, m)})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return models.SourceIndex(out[i].Source) < models.SourceIndex(out[j].Source)
	})
	return out
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
