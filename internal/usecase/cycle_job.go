package usecase

import (
	"context"
	"errors"
	"fmt"

	"FinScout/internal/domain/models"
	"FinScout/pkg/logger"
	"FinScout/pkg/queue"
)

const CycleJobType = "cycle.run"

// CycleJob executes queued ticks. Invalid ticks are not retried.
type CycleJob struct {
	engine *Engine
	log    *logger.Logger
}

var _ queue.Job = (*CycleJob)(nil)

func NewCycleJob(engine *Engine, log *logger.Logger) *CycleJob {
	if log == nil {
		log = logger.Nop()
	}
	return &CycleJob{engine: engine, log: log.With(logger.String("job", CycleJobType))}
}

func (j *CycleJob) Name() string { return "decision cycle" }
func (j *CycleJob) Type() string { return CycleJobType }

func (j *CycleJob) Handle(ctx context.Context, payload interface{}) error {
	tick, err := queue.ParsePayload[models.RawTick](payload)
	if err != nil {
		j.log.Warn("discarding malformed cycle payload", logger.Error(err))
		return nil
	}
	res, err := j.engine.ExecuteCycle(ctx, *tick)
	if err != nil {
		if errors.Is(err, models.ErrInvalidMarketData) {
			j.log.Warn("discarding invalid tick", logger.Error(err))
			return nil
		}
		return fmt.Errorf("cycle job: %w", err)
	}
	j.log.Debug("queued cycle completed", logger.String("cycle_id", res.ID))
	return nil
}
