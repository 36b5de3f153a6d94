package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	domrepo "FinScout/internal/domain/repository"
	"FinScout/pkg/cache"
	"FinScout/pkg/logger"
)

// Scheduler runs a cycle from the market feed on a fixed interval. The
// first cycle runs immediately.
type Scheduler struct {
	engine   *Engine
	feed     domrepo.MarketFeed
	interval time.Duration
	log      *logger.Logger

	locker  cache.Locker
	lockKey string

	consecutiveFailures int
	skipped             int
}

func NewScheduler(engine *Engine, feed domrepo.MarketFeed, interval time.Duration, log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.Nop()
	}
	return &Scheduler{
		engine:   engine,
		feed:     feed,
		interval: interval,
		log:      log.With(logger.String("component", "scheduler")),
	}
}

// WithLock makes replicas sharing locker take turns: a tick only runs a
// cycle when it wins the lease on key, which is held for 90% of the interval.
func (s *Scheduler) WithLock(locker cache.Locker, key string) *Scheduler {
	s.locker = locker
	s.lockKey = key
	return s
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.interval <= 0 {
		return fmt.Errorf("scheduler: interval must be positive, got %s", s.interval)
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info("scheduler started", logger.Duration("interval", s.interval))
	s.handle(s.runOnce(ctx))

	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return nil
		case <-ticker.C:
			s.handle(s.runOnce(ctx))
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) error {
	if s.locker != nil {
		won, err := s.locker.TryLock(ctx, s.lockKey, s.interval*9/10)
		if err != nil {
			return fmt.Errorf("acquire cycle lock: %w", err)
		}
		if !won {
			s.skipped++
			s.log.Debug("cycle lock held elsewhere, skipping tick")
			return nil
		}
	}
	tick, err := s.feed.FetchTick(ctx)
	if err != nil {
		return fmt.Errorf("fetch tick: %w", err)
	}
	if _, err := s.engine.ExecuteCycle(ctx, tick); err != nil {
		return fmt.Errorf("execute cycle: %w", err)
	}
	return nil
}

func (s *Scheduler) handle(err error) {
	if err == nil {
		if s.consecutiveFailures > 0 {
			s.log.Info("scheduled cycles recovered", logger.Int("after_failures", s.consecutiveFailures))
		}
		s.consecutiveFailures = 0
		return
	}
	if errors.Is(err, context.Canceled) {
		return
	}
	s.consecutiveFailures++
	s.log.Error("scheduled cycle failed", logger.Int("consecutive_failures", s.consecutiveFailures), logger.Error(err))
}

// ConsecutiveFailures is only safe to read after Run returns.
func (s *Scheduler) ConsecutiveFailures() int { return s.consecutiveFailures }

// Skipped counts ticks lost to another replica. Only safe to read after Run
// returns.
func (s *Scheduler) Skipped() int { return s.skipped }
