package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"FinScout/internal/domain/models"
	domrepo "FinScout/internal/domain/repository"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS source_metrics (
		source          TEXT PRIMARY KEY,
		success_rate    REAL NOT NULL,
		signal_quality  REAL NOT NULL,
		total_calls     INTEGER NOT NULL,
		quality_signals INTEGER NOT NULL,
		avg_response_ms REAL NOT NULL,
		updated_at      INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS cycles (
		id          TEXT PRIMARY KEY,
		symbol      TEXT NOT NULL,
		started_at  INTEGER NOT NULL,
		duration_ms REAL NOT NULL,
		volatility  TEXT NOT NULL,
		trend       TEXT NOT NULL,
		session     TEXT NOT NULL,
		explored    INTEGER NOT NULL,
		sources     TEXT NOT NULL,
		failures    INTEGER NOT NULL,
		signals     INTEGER NOT NULL,
		skipped     INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS signals (
		id                 TEXT PRIMARY KEY,
		cycle_id           TEXT NOT NULL,
		type               TEXT NOT NULL,
		severity           TEXT NOT NULL,
		confidence         REAL NOT NULL,
		source             TEXT NOT NULL,
		message            TEXT NOT NULL,
		recommended_action TEXT NOT NULL,
		target_agents      TEXT NOT NULL,
		created_at         INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS signals_created_at ON signals (created_at)`,
}

// SQLiteStore is a single-file store for deployments without Redis or
// ClickHouse. It checkpoints source metrics and keeps cycle history.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

var (
	_ domrepo.MetricsStore  = (*SQLiteStore)(nil)
	_ domrepo.CycleRecorder = (*SQLiteStore)(nil)
)

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	// a single writer avoids SQLITE_BUSY under concurrent cycles
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.Init(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	for _, stmt := range sqliteSchema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite schema: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context) (map[models.SourceName]models.SourceMetrics, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source, success_rate, signal_quality, total_calls, quality_signals, avg_response_ms
		FROM source_metrics`)
	if err != nil {
		return nil, fmt.Errorf("load source metrics: %w", err)
	}
	defer rows.Close()

	out := make(map[models.SourceName]models.SourceMetrics)
	for rows.Next() {
		var name string
		var m models.SourceMetrics
		if err := rows.Scan(&name, &m.SuccessRate, &m.SignalQuality, &m.TotalCalls, &m.QualitySignals, &m.AverageResponseTime); err != nil {
			return nil, fmt.Errorf("scan source metrics: %w", err)
		}
		out[models.SourceName(name)] = m
	}
	return out, rows.Err()
}

// Save replaces the stored snapshot, so sources missing from metrics are
// forgotten.
func (s *SQLiteStore) Save(ctx context.Context, metrics map[models.SourceName]models.SourceMetrics) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save source metrics: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM source_metrics`); err != nil {
		return fmt.Errorf("clear source metrics: %w", err)
	}
	now := s.now().UnixMilli()
	for name, m := range metrics {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO source_metrics (source, success_rate, signal_quality, total_calls, quality_signals, avg_response_ms, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			string(name), m.SuccessRate, m.SignalQuality, m.TotalCalls, m.QualitySignals, m.AverageResponseTime, now,
		); err != nil {
			return fmt.Errorf("insert %s metrics: %w", name, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) RecordCycle(ctx context.Context, res *models.CycleResult) error {
	sources, err := json.Marshal(res.Selection.Sources)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record cycle: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO cycles (id, symbol, started_at, duration_ms, volatility, trend, session, explored, sources, failures, signals, skipped)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.ID, res.Context.Symbol, res.StartedAt.UnixMilli(), float64(res.Duration)/float64(time.Millisecond),
		string(res.Context.Volatility), string(res.Context.Trend), string(res.Context.Session),
		res.Selection.Explored, string(sources), res.Failures(), len(res.Signals), res.Skipped,
	); err != nil {
		return fmt.Errorf("insert cycle: %w", err)
	}

	for _, sig := range res.Signals {
		agents, err := json.Marshal(sig.TargetAgents)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO signals (id, cycle_id, type, severity, confidence, source, message, recommended_action, target_agents, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sig.ID, res.ID, string(sig.Type), string(sig.Severity), sig.Confidence, string(sig.Source),
			sig.Message, sig.RecommendedAction, string(agents), sig.CreatedAt.UnixMilli(),
		); err != nil {
			return fmt.Errorf("insert signal: %w", err)
		}
	}
	return tx.Commit()
}

// RecentSignals returns signals created at or after since, newest first.
func (s *SQLiteStore) RecentSignals(ctx context.Context, since time.Time, limit int) ([]models.Signal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, severity, confidence, source, message, recommended_action, target_agents, created_at
		FROM signals
		WHERE created_at >= ?
		ORDER BY created_at DESC
		LIMIT ?`, since.UnixMilli(), limit)
	if err != nil {
		return nil, fmt.Errorf("query signals: %w", err)
	}
	defer rows.Close()

	out := make([]models.Signal, 0, limit)
	for rows.Next() {
		var sig models.Signal
		var agents string
		var created int64
		if err := rows.Scan(&sig.ID, &sig.Type, &sig.Severity, &sig.Confidence, &sig.Source,
			&sig.Message, &sig.RecommendedAction, &agents, &created); err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		if err := json.Unmarshal([]byte(agents), &sig.TargetAgents); err != nil {
			return nil, fmt.Errorf("decode target agents: %w", err)
		}
		sig.CreatedAt = time.UnixMilli(created).UTC()
		out = append(out, sig)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
