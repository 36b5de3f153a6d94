package repository

import (
	"context"
	"time"

	"FinScout/internal/domain/models"
)

// MarketFeed supplies the tick each scheduled cycle starts from.
type MarketFeed interface {
	FetchTick(ctx context.Context) (models.RawTick, error)
}

// MetricsStore checkpoints learned source metrics between restarts.
type MetricsStore interface {
	Load(ctx context.Context) (map[models.SourceName]models.SourceMetrics, error)
	Save(ctx context.Context, metrics map[models.SourceName]models.SourceMetrics) error
	Close() error
}

// CycleRecorder keeps an append-only history of cycles and their signals.
type CycleRecorder interface {
	Init(ctx context.Context) error
	RecordCycle(ctx context.Context, result *models.CycleResult) error
	RecentSignals(ctx context.Context, since time.Time, limit int) ([]models.Signal, error)
	Close() error
}

// SignalPublisher fans generated signals out to downstream agents.
type SignalPublisher interface {
	PublishSignals(ctx context.Context, signals []models.Signal) error
	Close() error
}

type Metrics interface {
	RecordCycle(seconds float64, explored bool, failures int)
	RecordCycleRejected(reason string)
	RecordSourceQuery(source string, success bool, seconds float64)
	RecordSourceState(source string, score float64, m models.SourceMetrics)
	RecordSignal(signalType, severity string)
	RecordSignalSkips(n int)
	RecordModelSelection(modelID, taskType string)
	RecordModelInvocation(modelID string, success bool, seconds float64)
	RecordUsage(modelID string, inputTokens, outputTokens int, cost float64)
	RecordError(kind string)
}
