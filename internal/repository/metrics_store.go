package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"FinScout/internal/domain/models"
	domrepo "FinScout/internal/domain/repository"
	"FinScout/pkg/cache"
)

const metricsKey = "source_metrics"

// CacheMetricsStore checkpoints source metrics as a single JSON document in
// a cache.Service (Redis in production, memory for a single process).
type CacheMetricsStore struct {
	cache cache.Service
	ttl   time.Duration
}

var _ domrepo.MetricsStore = (*CacheMetricsStore)(nil)

// NewCacheMetricsStore stores under ttl; zero keeps the checkpoint forever
// on Redis and for a week in memory.
func NewCacheMetricsStore(c cache.Service, ttl time.Duration) *CacheMetricsStore {
	return &CacheMetricsStore{cache: c, ttl: ttl}
}

func (s *CacheMetricsStore) Load(ctx context.Context) (map[models.SourceName]models.SourceMetrics, error) {
	out := make(map[models.SourceName]models.SourceMetrics)
	if err := s.cache.Get(ctx, metricsKey, &out); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return map[models.SourceName]models.SourceMetrics{}, nil
		}
		return nil, fmt.Errorf("load source metrics: %w", err)
	}
	return out, nil
}

func (s *CacheMetricsStore) Save(ctx context.Context, metrics map[models.SourceName]models.SourceMetrics) error {
	if err := s.cache.Set(ctx, metricsKey, metrics, s.ttl); err != nil {
		return fmt.Errorf("save source metrics: %w", err)
	}
	return nil
}

func (s *CacheMetricsStore) Close() error { return s.cache.Close() }
