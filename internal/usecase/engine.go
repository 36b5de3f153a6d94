package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"FinScout/internal/domain/models"
	domrepo "FinScout/internal/domain/repository"
	domsvc "FinScout/internal/domain/service"
	"FinScout/internal/services/learning"
	"FinScout/internal/services/market"
	"FinScout/internal/services/routing"
	"FinScout/internal/services/signals"
	"FinScout/internal/services/sources"
	"FinScout/internal/services/usage"
	"FinScout/pkg/logger"
	"FinScout/pkg/metrics"
)

const (
	defaultCycleTimeout = 30 * time.Second
	defaultSinkTimeout  = 5 * time.Second
)

// Components are the pure decision services the engine composes.
type Components struct {
	Assessor  *market.Assessor
	Scorer    *sources.Scorer
	Selector  *sources.Selector
	Generator *signals.Generator
	Updater   *learning.Updater
	Router    *routing.Router
	Usage     *usage.Tracker
}

func (c Components) validate() error {
	switch {
	case c.Assessor == nil:
		return errors.New("engine: assessor is required")
	case c.Scorer == nil:
		return errors.New("engine: scorer is required")
	case c.Selector == nil:
		return errors.New("engine: selector is required")
	case c.Generator == nil:
		return errors.New("engine: signal generator is required")
	case c.Updater == nil:
		return errors.New("engine: learning updater is required")
	case c.Router == nil:
		return errors.New("engine: model router is required")
	case c.Usage == nil:
		return errors.New("engine: usage tracker is required")
	}
	return nil
}

// Engine runs decision cycles and routes model calls. Cycles are serialized;
// reports and model calls may run concurrently with a cycle.
type Engine struct {
	Components

	gateway   domsvc.SourceGateway
	backend   domsvc.ModelBackend
	store     domrepo.MetricsStore
	recorder  domrepo.CycleRecorder
	publisher domrepo.SignalPublisher
	metrics   domrepo.Metrics
	log       *logger.Logger

	cycleTimeout time.Duration
	sinkTimeout  time.Duration

	cycleMu sync.Mutex

	stateMu      sync.RWMutex
	state        map[models.SourceName]models.SourceMetrics
	cycles       int64
	explorations int64
	lastCycleAt  time.Time
	histogram    map[models.SignalType]int64
}

type EngineOption func(*Engine)

func WithCycleTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.cycleTimeout = d
		}
	}
}

// WithSinkTimeout bounds each post-cycle write (store, history, publish).
func WithSinkTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.sinkTimeout = d
		}
	}
}

func WithMetricsStore(s domrepo.MetricsStore) EngineOption {
	return func(e *Engine) { e.store = s }
}

func WithCycleRecorder(r domrepo.CycleRecorder) EngineOption {
	return func(e *Engine) { e.recorder = r }
}

func WithSignalPublisher(p domrepo.SignalPublisher) EngineOption {
	return func(e *Engine) { e.publisher = p }
}

func WithMetrics(m domrepo.Metrics) EngineOption {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

func WithLogger(l *logger.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

func NewEngine(c Components, gateway domsvc.SourceGateway, backend domsvc.ModelBackend, opts ...EngineOption) (*Engine, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	if gateway == nil {
		return nil, errors.New("engine: source gateway is required")
	}
	e := &Engine{
		Components:   c,
		gateway:      gateway,
		backend:      backend,
		metrics:      metrics.Nop{},
		log:          logger.Nop(),
		cycleTimeout: defaultCycleTimeout,
		sinkTimeout:  defaultSinkTimeout,
		state:        make(map[models.SourceName]models.SourceMetrics),
		histogram:    make(map[models.SignalType]int64),
	}
	for _, o := range opts {
		o(e)
	}
	e.log = e.log.With(logger.String("component", "engine"))
	return e, nil
}

// Restore seeds learned metrics from the metrics store, if one is configured.
func (e *Engine) Restore(ctx context.Context) error {
	if e.store == nil {
		return nil
	}
	loaded, err := e.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("restore source metrics: %w", err)
	}

	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()
	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	restored := 0
	for name, m := range loaded {
		if !name.Valid() {
			e.log.Warn("ignoring metrics for unknown source", logger.String("source", string(name)))
			continue
		}
		e.state[name] = sanitize(m)
		restored++
	}
	e.log.Info("source metrics restored", logger.Int("sources", restored))
	return nil
}

func sanitize(m models.SourceMetrics) models.SourceMetrics {
	m.SuccessRate = clamp01(m.SuccessRate)
	m.SignalQuality = clamp01(m.SignalQuality)
	if m.TotalCalls < 0 {
		m.TotalCalls = 0
	}
	if m.QualitySignals < 0 {
		m.QualitySignals = 0
	}
	if m.QualitySignals > m.TotalCalls {
		m.QualitySignals = m.TotalCalls
	}
	if m.AverageResponseTime < 0 {
		m.AverageResponseTime = 0
	}
	return m
}

func clamp01(v float64) float64 {
	switch {
	case v < 0 || v != v:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// ExecuteCycle runs one full decision cycle for tick. An invalid tick or a
// cancelled ctx fails the cycle and leaves learned metrics untouched;
// source failures are recorded and learned from.
func (e *Engine) ExecuteCycle(ctx context.Context, tick models.RawTick) (*models.CycleResult, error) {
	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()

	started := time.Now()
	mc, err := e.Assessor.Assess(tick)
	if err != nil {
		e.metrics.RecordCycleRejected("invalid_market_data")
		return nil, err
	}

	prior := e.snapshot()
	ranked := e.Scorer.Rank(mc, prior)
	sel := e.Selector.Select(ranked, mc.Volatility)

	log := e.log.With(logger.String("volatility", string(mc.Volatility)), logger.String("trend", string(mc.Trend)))
	log.Debug("sources selected",
		logger.Strings("sources", sourceStrings(sel.Sources)),
		logger.Bool("explored", sel.Explored))

	results, err := e.querySources(ctx, sel.Sources, mc)
	if err != nil {
		e.metrics.RecordCycleRejected("cancelled")
		log.Warn("cycle abandoned by caller, metrics left unchanged", logger.Error(err))
		return nil, fmt.Errorf("cycle aborted: %w", err)
	}
	report := e.Generator.Generate(results, time.Now().UTC())

	outcomes := make([]learning.Outcome, 0, len(results))
	for _, r := range results {
		outcomes = append(outcomes, learning.Outcome{Source: r.Source, Success: r.Success, ResponseTimeMs: r.ResponseTimeMs})
	}
	next := e.Updater.Update(prior, outcomes, report.Signals)

	e.stateMu.Lock()
	e.state = next
	e.cycles++
	if sel.Explored {
		e.explorations++
	}
	e.lastCycleAt = time.Now().UTC()
	for _, s := range report.Signals {
		e.histogram[s.Type]++
	}
	e.stateMu.Unlock()

	res := &models.CycleResult{
		ID:        uuid.NewString(),
		Context:   mc,
		Scores:    ranked,
		Selection: sel,
		Results:   results,
		Signals:   report.Signals,
		Skipped:   len(report.Skips),
		Metrics:   copyMetrics(next),
		StartedAt: started.UTC(),
		Duration:  time.Since(started),
	}

	e.observe(res)
	e.sink(ctx, res)

	log.Info("cycle completed",
		logger.String("cycle_id", res.ID),
		logger.Int("selected", len(sel.Sources)),
		logger.Int("failures", res.Failures()),
		logger.Int("signals", len(res.Signals)),
		logger.Int("skipped_rules", res.Skipped),
		logger.Duration("duration", res.Duration))
	return res, nil
}

// querySources fans out one query per source and waits for all of them or
// the cycle timeout. Results come back in selection order. Only the cycle
// timeout marks a source as failed; if ctx itself ends first the whole
// fan-out is abandoned with ctx's error.
func (e *Engine) querySources(ctx context.Context, selected []models.SourceName, mc models.MarketContext) ([]models.SourceResult, error) {
	qctx, cancel := context.WithTimeout(ctx, e.cycleTimeout)
	defer cancel()

	started := time.Now()
	ch := make(chan models.SourceResult, len(selected))
	for _, name := range selected {
		go func(name models.SourceName) {
			ch <- e.querySource(qctx, name, mc)
		}(name)
	}

	got := make(map[models.SourceName]models.SourceResult, len(selected))
wait:
	for len(got) < len(selected) {
		select {
		case r := <-ch:
			got[r.Source] = r
			e.metrics.RecordSourceQuery(string(r.Source), r.Success, time.Since(started).Seconds())
		case <-qctx.Done():
			break wait
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]models.SourceResult, 0, len(selected))
	for _, name := range selected {
		r, ok := got[name]
		if !ok {
			elapsed := time.Since(started)
			r = models.SourceResult{
				Source:         name,
				Error:          fmt.Sprintf("timed out after %s", elapsed.Round(time.Millisecond)),
				ResponseTimeMs: float64(elapsed.Milliseconds()),
				CompletedAt:    time.Now().UTC(),
			}
			e.metrics.RecordSourceQuery(string(name), false, elapsed.Seconds())
			e.log.Warn("source query timed out", logger.String("source", string(name)))
		}
		out = append(out, r)
	}
	return out, nil
}

func (e *Engine) querySource(ctx context.Context, name models.SourceName, mc models.MarketContext) (res models.SourceResult) {
	start := time.Now()
	res.Source = name

	defer func() {
		if p := recover(); p != nil {
			res = models.SourceResult{Source: name, Error: fmt.Sprintf("panic: %v", p)}
			e.metrics.RecordError("source_panic")
		}
		elapsed := time.Since(start)
		if res.ResponseTimeMs <= 0 {
			res.ResponseTimeMs = float64(elapsed.Milliseconds())
		}
		res.CompletedAt = time.Now().UTC()
	}()

	resp, err := e.gateway.Query(ctx, name, mc)
	if err != nil {
		res.Error = err.Error()
		e.log.Warn("source query failed", logger.String("source", string(name)), logger.Error(err))
		return res
	}
	res.ResponseTimeMs = resp.ResponseTimeMs
	if !resp.Success {
		res.Error = resp.Error
		if res.Error == "" {
			res.Error = "source reported failure"
		}
		return res
	}

	res.Success = true
	payload, err := models.DecodePayload(name, resp.Payload)
	if err != nil {
		// Still a successful call; the generator will skip its rules.
		e.log.Warn("source payload not decodable", logger.String("source", string(name)), logger.Error(err))
		return res
	}
	res.Payload = payload
	return res
}

func (e *Engine) observe(res *models.CycleResult) {
	e.metrics.RecordCycle(res.Duration.Seconds(), res.Selection.Explored, res.Failures())
	for _, s := range res.Signals {
		e.metrics.RecordSignal(string(s.Type), string(s.Severity))
	}
	if res.Skipped > 0 {
		e.metrics.RecordSignalSkips(res.Skipped)
	}
	for _, sc := range res.Scores {
		m, ok := res.Metrics[sc.Source]
		if !ok {
			m = models.NewSourceMetrics()
		}
		e.metrics.RecordSourceState(string(sc.Source), sc.Score, m)
	}
}

// sink writes the cycle to the optional collaborators. Failures are logged
// and never fail the cycle.
func (e *Engine) sink(ctx context.Context, res *models.CycleResult) {
	base := context.WithoutCancel(ctx)

	if e.store != nil {
		sctx, cancel := context.WithTimeout(base, e.sinkTimeout)
		if err := e.store.Save(sctx, res.Metrics); err != nil {
			e.metrics.RecordError("metrics_store")
			e.log.Error("failed to save source metrics", logger.Error(err))
		}
		cancel()
	}
	if e.recorder != nil {
		sctx, cancel := context.WithTimeout(base, e.sinkTimeout)
		if err := e.recorder.RecordCycle(sctx, res); err != nil {
			e.metrics.RecordError("cycle_recorder")
			e.log.Error("failed to record cycle", logger.String("cycle_id", res.ID), logger.Error(err))
		}
		cancel()
	}
	if e.publisher != nil && len(res.Signals) > 0 {
		sctx, cancel := context.WithTimeout(base, e.sinkTimeout)
		if err := e.publisher.PublishSignals(sctx, res.Signals); err != nil {
			e.metrics.RecordError("signal_publisher")
			e.log.Error("failed to publish signals", logger.Int("signals", len(res.Signals)), logger.Error(err))
		}
		cancel()
	}
}

// SelectModel routes a request to the best catalog model.
func (e *Engine) SelectModel(criteria models.RoutingCriteria) (models.ModelDescriptor, error) {
	m, err := e.Router.Select(criteria)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrNoEligibleModel):
			e.metrics.RecordError("no_eligible_model")
		case errors.Is(err, models.ErrValidation):
			e.metrics.RecordError("routing_validation")
		}
		return models.ModelDescriptor{}, err
	}
	e.metrics.RecordModelSelection(m.ID, string(criteria.TaskType))
	return m, nil
}

// ExplainRouting returns per-model scores and rejection reasons.
func (e *Engine) ExplainRouting(criteria models.RoutingCriteria) (map[string]float64, map[string]string, error) {
	return e.Router.Explain(criteria)
}

// Models lists the catalog in registry order.
func (e *Engine) Models() []models.ModelDescriptor {
	return e.Router.Registry().All()
}

// InvokeModel selects a model for criteria, calls it and records usage.
// When the backend does not report token counts the criteria estimates are
// recorded instead.
func (e *Engine) InvokeModel(ctx context.Context, prompt string, criteria models.RoutingCriteria, opts models.InvocationOptions) (*models.InvocationResult, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, models.NewValidationError("prompt", "must not be empty")
	}
	if e.backend == nil {
		return nil, fmt.Errorf("%w: no model backend configured", models.ErrInvocationFailed)
	}
	model, err := e.SelectModel(criteria)
	if err != nil {
		return nil, err
	}

	ictx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ictx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := e.backend.Invoke(ictx, prompt, model, opts)
	elapsed := time.Since(start)
	if err != nil {
		e.metrics.RecordModelInvocation(model.ID, false, elapsed.Seconds())
		e.log.Warn("model invocation failed", logger.String("model", model.ID), logger.Error(err))
		return nil, fmt.Errorf("%w: %s: %w", models.ErrInvocationFailed, model.ID, err)
	}
	e.metrics.RecordModelInvocation(model.ID, true, elapsed.Seconds())

	in, out := resp.InputTokens, resp.OutputTokens
	if in == 0 && out == 0 {
		in, out = criteria.InputTokens, criteria.OutputTokens
	}
	cost, err := e.Usage.Record(model, in, out)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", models.ErrInvocationFailed, model.ID, err)
	}
	e.metrics.RecordUsage(model.ID, in, out, cost)

	latency := resp.LatencyMs
	if latency <= 0 {
		latency = float64(elapsed.Milliseconds())
	}
	return &models.InvocationResult{
		Model:        model,
		Text:         resp.Text,
		InputTokens:  in,
		OutputTokens: out,
		Cost:         cost,
		LatencyMs:    latency,
	}, nil
}

func (e *Engine) PerformanceReport() models.PerformanceReport {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()

	hist := make(map[models.SignalType]int64, len(e.histogram))
	for k, v := range e.histogram {
		hist[k] = v
	}
	srcs := make(map[models.SourceName]models.SourceMetrics, len(models.AllSources))
	for _, name := range models.AllSources {
		m, ok := e.state[name]
		if !ok {
			m = models.NewSourceMetrics()
		}
		srcs[name] = m
	}
	return models.PerformanceReport{
		CyclesCompleted: e.cycles,
		LastCycleAt:     e.lastCycleAt,
		Sources:         srcs,
		SignalHistogram: hist,
		ExplorationRuns: e.explorations,
	}
}

func (e *Engine) UsageReport() models.UsageReport { return e.Usage.Report() }

func (e *Engine) ResetUsage() {
	e.Usage.Reset()
	e.log.Info("usage counters reset")
}

// ResetSourceMetrics returns the named sources (all when none are given) to
// the untested prior. It waits for any running cycle to finish.
func (e *Engine) ResetSourceMetrics(ctx context.Context, names ...models.SourceName) error {
	for _, n := range names {
		if !n.Valid() {
			return models.NewValidationError("source", "unknown source %q", n)
		}
	}

	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()

	e.stateMu.Lock()
	if len(names) == 0 {
		e.state = make(map[models.SourceName]models.SourceMetrics)
	} else {
		next := copyMetrics(e.state)
		for _, n := range names {
			delete(next, n)
		}
		e.state = next
	}
	snapshot := copyMetrics(e.state)
	e.stateMu.Unlock()

	e.log.Info("source metrics reset", logger.Strings("sources", sourceStrings(names)))
	if e.store != nil {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.sinkTimeout)
		defer cancel()
		if err := e.store.Save(sctx, snapshot); err != nil {
			return fmt.Errorf("persist reset: %w", err)
		}
	}
	return nil
}

// RecentSignals reads signal history from the cycle recorder.
func (e *Engine) RecentSignals(ctx context.Context, since time.Time, limit int) ([]models.Signal, error) {
	if e.recorder == nil {
		return nil, fmt.Errorf("signal history: %w", models.ErrNotConfigured)
	}
	return e.recorder.RecentSignals(ctx, since, limit)
}

func (e *Engine) snapshot() map[models.SourceName]models.SourceMetrics {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return copyMetrics(e.state)
}

func copyMetrics(in map[models.SourceName]models.SourceMetrics) map[models.SourceName]models.SourceMetrics {
	out := make(map[models.SourceName]models.SourceMetrics, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func sourceStrings(in []models.SourceName) []string {
	out := make([]string, len(in))
	for i, n := range in {
		out[i] = string(n)
	}
	return out
}
