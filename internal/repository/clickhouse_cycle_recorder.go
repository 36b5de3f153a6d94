package repository

import (
	"context"
	"fmt"
	"time"

	"FinScout/internal/domain/models"
	domrepo "FinScout/internal/domain/repository"
	pkgch "FinScout/pkg/clickhouse"
	applogger "FinScout/pkg/logger"
)

// CHCycleRecorder appends cycles and signals to ClickHouse MergeTree tables.
type CHCycleRecorder struct {
	ch       *pkgch.Client
	database string
	l        *applogger.Logger
}

var _ domrepo.CycleRecorder = (*CHCycleRecorder)(nil)

func NewCHCycleRecorder(ch *pkgch.Client, database string, l *applogger.Logger) *CHCycleRecorder {
	if l == nil {
		l = applogger.Nop()
	}
	return &CHCycleRecorder{ch: ch, database: database, l: l.With(applogger.String("component", "clickhouse_recorder"))}
}

func (r *CHCycleRecorder) schema() []string {
	return []string{
		fmt.Sprintf(`CREATE DATABASE IF NOT EXISTS %s`, r.database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.cycles (
			id          String,
			symbol      LowCardinality(String),
			started_at  DateTime64(3, 'UTC'),
			duration_ms Float64,
			volatility  LowCardinality(String),
			trend       LowCardinality(String),
			session     LowCardinality(String),
			explored    UInt8,
			sources     Array(String),
			failures    UInt16,
			signals     UInt16,
			skipped     UInt16
		) ENGINE = MergeTree
		PARTITION BY toYYYYMM(started_at)
		ORDER BY (symbol, started_at)`, r.database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.signals (
			id                 String,
			cycle_id           String,
			symbol             LowCardinality(String),
			type               LowCardinality(String),
			severity           LowCardinality(String),
			confidence         Float64,
			source             LowCardinality(String),
			message            String,
			recommended_action String,
			target_agents      Array(String),
			created_at         DateTime64(3, 'UTC')
		) ENGINE = MergeTree
		PARTITION BY toYYYYMM(created_at)
		ORDER BY (created_at, type)`, r.database),
	}
}

func (r *CHCycleRecorder) Init(ctx context.Context) error {
	return r.ch.InitSchema(ctx, r.schema())
}

func (r *CHCycleRecorder) RecordCycle(ctx context.Context, res *models.CycleResult) error {
	start := time.Now()
	sources := make([]string, len(res.Selection.Sources))
	for i, s := range res.Selection.Sources {
		sources[i] = string(s)
	}
	var explored uint8
	if res.Selection.Explored {
		explored = 1
	}

	err := r.ch.InsertBatch(ctx,
		fmt.Sprintf(`INSERT INTO %s.cycles (id, symbol, started_at, duration_ms, volatility, trend, session, explored, sources, failures, signals, skipped)`, r.database),
		[][]any{{
			res.ID, res.Context.Symbol, res.StartedAt.UTC(), float64(res.Duration) / float64(time.Millisecond),
			string(res.Context.Volatility), string(res.Context.Trend), string(res.Context.Session),
			explored, sources, uint16(res.Failures()), uint16(len(res.Signals)), uint16(res.Skipped),
		}})
	if err != nil {
		r.l.Error("clickhouse insert cycle error", applogger.String("cycle_id", res.ID), applogger.Error(err))
		return fmt.Errorf("insert cycle: %w", err)
	}

	if len(res.Signals) > 0 {
		rows := make([][]any, 0, len(res.Signals))
		for _, sig := range res.Signals {
			agents := sig.TargetAgents
			if agents == nil {
				agents = []string{}
			}
			rows = append(rows, []any{
				sig.ID, res.ID, res.Context.Symbol, string(sig.Type), string(sig.Severity), sig.Confidence,
				string(sig.Source), sig.Message, sig.RecommendedAction, agents, sig.CreatedAt.UTC(),
			})
		}
		err = r.ch.InsertBatch(ctx,
			fmt.Sprintf(`INSERT INTO %s.signals (id, cycle_id, symbol, type, severity, confidence, source, message, recommended_action, target_agents, created_at)`, r.database),
			rows)
		if err != nil {
			r.l.Error("clickhouse insert signals error", applogger.String("cycle_id", res.ID), applogger.Error(err))
			return fmt.Errorf("insert signals: %w", err)
		}
	}

	r.l.Debug("clickhouse record_cycle ok",
		applogger.String("cycle_id", res.ID),
		applogger.Int("signals", len(res.Signals)),
		applogger.Duration("duration_ms", time.Since(start)))
	return nil
}

func (r *CHCycleRecorder) RecentSignals(ctx context.Context, since time.Time, limit int) ([]models.Signal, error) {
	q := fmt.Sprintf(`
		SELECT id, type, severity, confidence, source, message, recommended_action, target_agents, created_at
		FROM %s.signals
		WHERE created_at >= ?
		ORDER BY created_at DESC
		LIMIT ?`, r.database)
	rows, err := r.ch.DB().QueryContext(ctx, q, since.UTC(), limit)
	if err != nil {
		r.l.Error("clickhouse recent_signals query error", applogger.Error(err))
		return nil, fmt.Errorf("query signals: %w", err)
	}
	defer rows.Close()

	out := make([]models.Signal, 0, limit)
	for rows.Next() {
		var sig models.Signal
		var typ, sev, src string
		if err := rows.Scan(&sig.ID, &typ, &sev, &sig.Confidence, &src, &sig.Message,
			&sig.RecommendedAction, &sig.TargetAgents, &sig.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		sig.Type = models.SignalType(typ)
		sig.Severity = models.Severity(sev)
		sig.Source = models.SourceName(src)
		sig.CreatedAt = sig.CreatedAt.UTC()
		out = append(out, sig)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

// Close is a no-op; the ClickHouse client is closed by its owner.
func (r *CHCycleRecorder) Close() error { return nil }
