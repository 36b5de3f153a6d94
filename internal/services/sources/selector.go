package sources

import (
	"fmt"
	"sync"

	"FinScout/internal/domain/models"
)

// Rand is the randomness the selector needs. *math/rand.Rand satisfies it.
type Rand interface {
	Float64() float64
	Intn(n int) int
}

const DefaultExplorationRate = 0.2

// DefaultCounts is how many sources a cycle queries per volatility tier.
func DefaultCounts() map[models.VolatilityTier]int {
	return map[models.VolatilityTier]int{
		models.VolatilityLow:    3,
		models.VolatilityMedium: 4,
		models.VolatilityHigh:   6,
	}
}

// Selector picks the sources to query: the top K by score, with an
// epsilon-greedy swap of one non-top member for an unselected source.
type Selector struct {
	counts          map[models.VolatilityTier]int
	explorationRate float64

	mu  sync.Mutex // guards rng
	rng Rand
}

func NewSelector(counts map[models.VolatilityTier]int, explorationRate float64, rng Rand) (*Selector, error) {
	if counts == nil {
		counts = DefaultCounts()
	}
	for _, vt := range models.VolatilityTiers {
		k, ok := counts[vt]
		if !ok {
			return nil, fmt.Errorf("selector: no source count for %s volatility", vt)
		}
		if k < 1 || k > len(models.AllSources) {
			return nil, fmt.Errorf("selector: source count for %s must be in [1,%d], got %d", vt, len(models.AllSources), k)
		}
	}
	if explorationRate < 0 || explorationRate > 1 {
		return nil, fmt.Errorf("selector: exploration rate must be in [0,1], got %v", explorationRate)
	}
	if rng == nil {
		return nil, fmt.Errorf("selector: rng is required")
	}
	return &Selector{counts: counts, explorationRate: explorationRate, rng: rng}, nil
}

// Count returns K for a volatility tier.
func (s *Selector) Count(vt models.VolatilityTier) int { return s.counts[vt] }

// Select takes sources already ranked by score (see Scorer.Rank) and returns
// exactly Count(vt) distinct names.
func (s *Selector) Select(ranked []models.ScoredSource, vt models.VolatilityTier) models.Selection {
	k := s.counts[vt]
	if k > len(ranked) {
		k = len(ranked)
	}

	picked := make([]models.SourceName, k)
	for i := 0; i < k; i++ {
		picked[i] = ranked[i].Source
	}
	sel := models.Selection{Sources: picked}

	rest := len(ranked) - k
	// Exploration needs a non-top member to drop and something to add.
	if rest == 0 || k < 2 {
		return sel
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rng.Float64() >= s.explorationRate {
		return sel
	}
	drop := 1 + s.rng.Intn(k-1)
	add := k + s.rng.Intn(rest)

	sel.Dropped = picked[drop]
	sel.Added = ranked[add].Source
	picked[drop] = sel.Added
	sel.Explored = true
	return sel
}
