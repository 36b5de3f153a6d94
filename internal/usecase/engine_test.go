package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinScout/internal/domain/models"
	domsvc "FinScout/internal/domain/service"
	"FinScout/internal/services/learning"
	"FinScout/internal/services/market"
	"FinScout/internal/services/routing"
	"FinScout/internal/services/signals"
	"FinScout/internal/services/sources"
	"FinScout/internal/services/usage"
	"FinScout/pkg/metrics"
)

type queryFunc func(ctx context.Context, mc models.MarketContext) (models.SourceResponse, error)

type fakeGateway struct {
	mu       sync.Mutex
	handlers map[models.SourceName]queryFunc
	calls    map[models.SourceName]int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{handlers: map[models.SourceName]queryFunc{}, calls: map[models.SourceName]int{}}
}

func (g *fakeGateway) on(src models.SourceName, fn queryFunc) *fakeGateway {
	g.handlers[src] = fn
	return g
}

func (g *fakeGateway) Query(ctx context.Context, src models.SourceName, mc models.MarketContext) (models.SourceResponse, error) {
	g.mu.Lock()
	g.calls[src]++
	fn := g.handlers[src]
	g.mu.Unlock()

	if fn == nil {
		return models.SourceResponse{Success: true, Payload: json.RawMessage(`{}`), ResponseTimeMs: 10}, nil
	}
	return fn(ctx, mc)
}

func payload(v string) queryFunc {
	return func(context.Context, models.MarketContext) (models.SourceResponse, error) {
		return models.SourceResponse{Success: true, Payload: json.RawMessage(v), ResponseTimeMs: 25}, nil
	}
}

type fakeBackend struct {
	resp  models.InvocationResponse
	err   error
	block bool
	calls int32
}

func (b *fakeBackend) Invoke(ctx context.Context, _ string, _ models.ModelDescriptor, _ models.InvocationOptions) (models.InvocationResponse, error) {
	atomic.AddInt32(&b.calls, 1)
	if b.block {
		<-ctx.Done()
		return models.InvocationResponse{}, ctx.Err()
	}
	return b.resp, b.err
}

type memStore struct {
	mu     sync.Mutex
	data   map[models.SourceName]models.SourceMetrics
	saves  int
	failOn error
}

func (s *memStore) Load(context.Context) (map[models.SourceName]models.SourceMetrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyMetrics(s.data), nil
}

func (s *memStore) Save(_ context.Context, m map[models.SourceName]models.SourceMetrics) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.failOn != nil {
		return s.failOn
	}
	s.data = copyMetrics(m)
	return nil
}

func (s *memStore) Close() error { return nil }

type capturePublisher struct {
	mu      sync.Mutex
	signals []models.Signal
	err     error
}

func (p *capturePublisher) PublishSignals(_ context.Context, s []models.Signal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.signals = append(p.signals, s...)
	return p.err
}

func (p *capturePublisher) Close() error { return nil }

func components(t *testing.T, explorationRate float64, seed int64) Components {
	t.Helper()
	sel, err := sources.NewSelector(nil, explorationRate, rand.New(rand.NewSource(seed)))
	require.NoError(t, err)
	upd, err := learning.NewUpdater(learning.DefaultLearningRate)
	require.NoError(t, err)
	reg, err := routing.DefaultRegistry()
	require.NoError(t, err)

	return Components{
		Assessor:  market.NewAssessor(),
		Scorer:    sources.NewScorer(sources.DefaultRelevance(), sources.DefaultScoreWeights()),
		Selector:  sel,
		Generator: signals.NewGenerator(signals.DefaultThresholds(), nil),
		Updater:   upd,
		Router:    routing.NewRouter(reg),
		Usage:     usage.NewTracker(nil),
	}
}

func newEngine(t *testing.T, gw *fakeGateway, backend *fakeBackend, opts ...EngineOption) *Engine {
	t.Helper()
	var b domsvc.ModelBackend
	if backend != nil {
		b = backend
	}
	e, err := NewEngine(components(t, 0, 1), gw, b, opts...)
	require.NoError(t, err)
	return e
}

var asianMorning = time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC)

func TestExecuteCycle_HighVolatilityBullish(t *testing.T) {
	gw := newFakeGateway().
		on(models.SourceWhaleTracker, payload(`[{"amount":250},{"amount":180}]`)).
		on(models.SourceDerivatives, payload(`{"funding_rate":0.08}`))

	e, err := NewEngine(components(t, sources.DefaultExplorationRate, 7), gw, nil)
	require.NoError(t, err)

	res, err := e.ExecuteCycle(context.Background(), models.NewRawTick(45000, 6.5, 2.1, asianMorning))
	require.NoError(t, err)

	assert.Equal(t, models.VolatilityHigh, res.Context.Volatility)
	assert.Equal(t, models.TrendBullish, res.Context.Trend)
	assert.Equal(t, models.SessionAsian, res.Context.Session)
	require.Len(t, res.Selection.Sources, 6)
	require.Len(t, res.Results, 6)
	assert.Len(t, res.Scores, len(models.AllSources))
	assert.NotEmpty(t, res.ID)

	for _, r := range res.Results {
		assert.True(t, r.Success, r.Source)
		m := res.Metrics[r.Source]
		assert.Equal(t, int64(1), m.TotalCalls)
		assert.InDelta(t, 0.55, m.SuccessRate, 1e-12)
	}

	rep := e.PerformanceReport()
	assert.Equal(t, int64(1), rep.CyclesCompleted)
	assert.WithinDuration(t, time.Now(), rep.LastCycleAt, time.Minute)
	assert.Equal(t, asianMorning, res.Context.Timestamp)
	assert.Len(t, rep.Sources, len(models.AllSources))
}

func TestExecuteCycle_SignalsAreAttributedAndLearned(t *testing.T) {
	gw := newFakeGateway().
		on(models.SourceWhaleTracker, payload(`[{"amount":250},{"amount":180}]`)).
		on(models.SourceDerivatives, payload(`{"funding_rate":0.08}`))
	pub := &capturePublisher{}
	e := newEngine(t, gw, nil, WithSignalPublisher(pub))

	res, err := e.ExecuteCycle(context.Background(), models.NewRawTick(45000, 6.5, 1, asianMorning))
	require.NoError(t, err)

	types := map[models.SignalType]models.SourceName{}
	for _, s := range res.Signals {
		types[s.Type] = s.Source
	}
	assert.Equal(t, models.SourceWhaleTracker, types[models.SignalWhaleActivity])
	assert.Equal(t, models.SourceDerivatives, types[models.SignalExtremeFunding])

	whale := res.Metrics[models.SourceWhaleTracker]
	assert.InDelta(t, 0.55, whale.SignalQuality, 1e-12)
	assert.Equal(t, int64(1), whale.QualitySignals)

	rep := e.PerformanceReport()
	assert.Equal(t, int64(1), rep.SignalHistogram[models.SignalWhaleActivity])
	assert.Equal(t, int64(1), rep.SignalHistogram[models.SignalExtremeFunding])

	assert.Len(t, pub.signals, len(res.Signals))
}

func TestExecuteCycle_FailuresArePenalized(t *testing.T) {
	gw := newFakeGateway().
		on(models.SourceTechnicalAnalysis, func(context.Context, models.MarketContext) (models.SourceResponse, error) {
			return models.SourceResponse{}, errors.New("connection refused")
		}).
		on(models.SourceFearGreed, func(context.Context, models.MarketContext) (models.SourceResponse, error) {
			return models.SourceResponse{Success: false, Error: "upstream 503"}, nil
		})
	e := newEngine(t, gw, nil)

	// LOW/SIDEWAYS selects technical_analysis, onchain_flows, derivatives.
	res, err := e.ExecuteCycle(context.Background(), models.NewRawTick(100, 0.5, 1, asianMorning))
	require.NoError(t, err)
	require.Len(t, res.Selection.Sources, 3)

	failed := map[models.SourceName]string{}
	for _, r := range res.Results {
		if !r.Success {
			failed[r.Source] = r.Error
		}
	}
	for _, src := range res.Selection.Sources {
		m := res.Metrics[src]
		if _, bad := failed[src]; bad {
			assert.InDelta(t, 0.45, m.SuccessRate, 1e-12, src)
		} else {
			assert.InDelta(t, 0.55, m.SuccessRate, 1e-12, src)
		}
	}
	assert.Contains(t, failed, models.SourceTechnicalAnalysis)
	assert.Equal(t, "connection refused", failed[models.SourceTechnicalAnalysis])
	assert.Equal(t, res.Failures(), len(failed))
}

func TestExecuteCycle_TimeoutMarksUnfinishedSources(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	gw := newFakeGateway().on(models.SourceTechnicalAnalysis, func(context.Context, models.MarketContext) (models.SourceResponse, error) {
		<-release
		return models.SourceResponse{Success: true}, nil
	})
	e := newEngine(t, gw, nil, WithCycleTimeout(50*time.Millisecond))

	start := time.Now()
	res, err := e.ExecuteCycle(context.Background(), models.NewRawTick(100, 0.5, 1, asianMorning))
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)

	require.Contains(t, res.Selection.Sources, models.SourceTechnicalAnalysis)
	for _, r := range res.Results {
		if r.Source == models.SourceTechnicalAnalysis {
			assert.False(t, r.Success)
			assert.Contains(t, r.Error, "timed out")
			assert.InDelta(t, 0.45, res.Metrics[r.Source].SuccessRate, 1e-12)
		} else {
			assert.True(t, r.Success)
		}
	}
}

type queryCounter struct {
	metrics.Nop
	mu     sync.Mutex
	counts map[string]int
}

func (c *queryCounter) RecordSourceQuery(source string, _ bool, _ float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[source]++
}

func (c *queryCounter) snapshot() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int, len(c.counts))
	for k, v := range c.counts {
		out[k] = v
	}
	return out
}

func TestExecuteCycle_TimedOutSourceCountedOnce(t *testing.T) {
	release := make(chan struct{})
	finished := make(chan struct{})
	gw := newFakeGateway().on(models.SourceTechnicalAnalysis, func(context.Context, models.MarketContext) (models.SourceResponse, error) {
		<-release
		defer close(finished)
		return models.SourceResponse{Success: true}, nil
	})
	counter := &queryCounter{counts: map[string]int{}}
	e := newEngine(t, gw, nil, WithCycleTimeout(30*time.Millisecond), WithMetrics(counter))

	res, err := e.ExecuteCycle(context.Background(), models.NewRawTick(100, 0.5, 1, asianMorning))
	require.NoError(t, err)

	close(release)
	<-finished
	time.Sleep(50 * time.Millisecond)

	counts := counter.snapshot()
	for _, src := range res.Selection.Sources {
		assert.Equal(t, 1, counts[string(src)], src)
	}
}

func TestExecuteCycle_CallerCancelLeavesMetricsUntouched(t *testing.T) {
	block := func(ctx context.Context, _ models.MarketContext) (models.SourceResponse, error) {
		<-ctx.Done()
		return models.SourceResponse{}, ctx.Err()
	}
	gw := newFakeGateway()
	for _, src := range models.AllSources {
		gw.on(src, block)
	}
	store := &memStore{}
	e := newEngine(t, gw, nil, WithCycleTimeout(10*time.Second), WithMetricsStore(store))
	before := e.PerformanceReport().Sources

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	time.AfterFunc(20*time.Millisecond, cancel)

	start := time.Now()
	res, err := e.ExecuteCycle(ctx, models.NewRawTick(100, 0.5, 1, asianMorning))
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Less(t, time.Since(start), 5*time.Second)

	rep := e.PerformanceReport()
	assert.Equal(t, int64(0), rep.CyclesCompleted)
	assert.True(t, rep.LastCycleAt.IsZero())
	assert.Equal(t, before, rep.Sources)
	for _, m := range rep.Sources {
		assert.Equal(t, 0.5, m.SuccessRate)
		assert.Equal(t, int64(0), m.TotalCalls)
	}
	assert.Zero(t, store.saves)
}

func TestExecuteCycle_QualitySignalsNeverExceedCalls(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	payloads := map[models.SourceName][]string{
		models.SourceWhaleTracker:      {`[{"amount":250},{"amount":180}]`, `[{"amount":5}]`},
		models.SourceSocialSentiment:   {`{"score":0.9,"trending_topics":[{"name":"a","stance":"bullish"},{"name":"b","stance":"bullish"}]}`, `{"score":0.5}`},
		models.SourceDerivatives:       {`{"funding_rate":0.08}`, `{"funding_rate":0.01}`},
		models.SourceFearGreed:         {`{"index":90}`, `{"index":10}`, `{"index":50}`},
		models.SourceArbitrageScanner:  {`{"spreads":[{"spread_percent":1.2},{"spread_percent":0.9}]}`},
		models.SourceTechnicalAnalysis: {`{"breakout":{"confirmed":true,"direction":"up","magnitude_percent":6}}`},
		models.SourceNewsMonitor:       {`{"headlines":[{"title":"ETF","impact":0.95}]}`},
		models.SourceOnchainFlows:      {`{"exchange_netflow_btc":-2500}`, `{"exchange_netflow_btc":1500}`},
	}
	gw := newFakeGateway()
	var mu sync.Mutex
	for src, options := range payloads {
		options := options
		gw.on(src, func(context.Context, models.MarketContext) (models.SourceResponse, error) {
			mu.Lock()
			raw := options[rng.Intn(len(options))]
			mu.Unlock()
			return models.SourceResponse{Success: true, Payload: json.RawMessage(raw), ResponseTimeMs: 10}, nil
		})
	}
	e, err := NewEngine(components(t, 0.3, 9), gw, nil)
	require.NoError(t, err)

	for i := 0; i < 60; i++ {
		mu.Lock()
		chg := rng.Float64()*20 - 10
		mu.Unlock()
		res, err := e.ExecuteCycle(context.Background(), models.NewRawTick(100, chg, 1, asianMorning))
		require.NoError(t, err)
		for src, m := range res.Metrics {
			require.LessOrEqual(t, m.QualitySignals, m.TotalCalls, src)
		}
	}
}

func TestExecuteCycle_PanickingSourceIsAFailure(t *testing.T) {
	gw := newFakeGateway().on(models.SourceTechnicalAnalysis, func(context.Context, models.MarketContext) (models.SourceResponse, error) {
		panic("boom")
	})
	e := newEngine(t, gw, nil)

	res, err := e.ExecuteCycle(context.Background(), models.NewRawTick(100, 0.5, 1, asianMorning))
	require.NoError(t, err)
	for _, r := range res.Results {
		if r.Source == models.SourceTechnicalAnalysis {
			assert.False(t, r.Success)
			assert.Contains(t, r.Error, "panic")
		}
	}
}

func TestExecuteCycle_InvalidTick(t *testing.T) {
	gw := newFakeGateway()
	e := newEngine(t, gw, nil)

	_, err := e.ExecuteCycle(context.Background(), models.NewRawTick(-1, 2, 1, asianMorning))
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrInvalidMarketData))
	assert.Equal(t, int64(0), e.PerformanceReport().CyclesCompleted)
	assert.Empty(t, gw.calls)
}

func TestExecuteCycle_Serialized(t *testing.T) {
	var active, peak int32
	slow := func(context.Context, models.MarketContext) (models.SourceResponse, error) {
		n := atomic.AddInt32(&active, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		return models.SourceResponse{Success: true, Payload: json.RawMessage(`{}`)}, nil
	}
	gw := newFakeGateway()
	for _, src := range models.AllSources {
		gw.on(src, slow)
	}
	e := newEngine(t, gw, nil)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.ExecuteCycle(context.Background(), models.NewRawTick(100, 0.5, 1, asianMorning))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(3), "queries from different cycles overlapped")
	assert.Equal(t, int64(4), e.PerformanceReport().CyclesCompleted)
}

func TestExecuteCycle_DeterministicForSeed(t *testing.T) {
	run := func() []models.Selection {
		e, err := NewEngine(components(t, 0.5, 11), newFakeGateway(), nil)
		require.NoError(t, err)
		var out []models.Selection
		for i, chg := range []float64{0.5, 3, 7, -4, -9, 1} {
			res, err := e.ExecuteCycle(context.Background(), models.NewRawTick(100, chg, 1, asianMorning.Add(time.Duration(i)*time.Hour)))
			require.NoError(t, err)
			out = append(out, res.Selection)
		}
		return out
	}
	assert.Equal(t, run(), run())
}

func TestRestoreAndReset(t *testing.T) {
	store := &memStore{data: map[models.SourceName]models.SourceMetrics{
		models.SourceFearGreed:     {SuccessRate: 0.9, SignalQuality: 0.8, TotalCalls: 40},
		models.SourceName("ghost"): {SuccessRate: 1},
		models.SourceOnchainFlows:  {SuccessRate: 4, SignalQuality: -1},
	}}
	e := newEngine(t, newFakeGateway(), nil, WithMetricsStore(store))
	require.NoError(t, e.Restore(context.Background()))

	rep := e.PerformanceReport()
	assert.Equal(t, int64(40), rep.Sources[models.SourceFearGreed].TotalCalls)
	assert.Equal(t, 1.0, rep.Sources[models.SourceOnchainFlows].SuccessRate)
	assert.Equal(t, 0.0, rep.Sources[models.SourceOnchainFlows].SignalQuality)
	assert.NotContains(t, rep.Sources, models.SourceName("ghost"))

	_, err := e.ExecuteCycle(context.Background(), models.NewRawTick(100, 0.5, 1, asianMorning))
	require.NoError(t, err)
	assert.Equal(t, 1, store.saves)

	require.NoError(t, e.ResetSourceMetrics(context.Background(), models.SourceFearGreed))
	assert.Equal(t, models.NewSourceMetrics(), e.PerformanceReport().Sources[models.SourceFearGreed])
	assert.NotContains(t, store.data, models.SourceFearGreed)

	require.NoError(t, e.ResetSourceMetrics(context.Background()))
	for _, m := range e.PerformanceReport().Sources {
		assert.Equal(t, models.NewSourceMetrics(), m)
	}

	err = e.ResetSourceMetrics(context.Background(), "nope")
	assert.True(t, errors.Is(err, models.ErrValidation))
}

func TestExecuteCycle_SinkFailuresDoNotFailCycle(t *testing.T) {
	store := &memStore{failOn: errors.New("disk full")}
	pub := &capturePublisher{err: errors.New("broker down")}
	gw := newFakeGateway().on(models.SourceFearGreed, payload(`{"index":90}`))
	e := newEngine(t, gw, nil, WithMetricsStore(store), WithSignalPublisher(pub))

	res, err := e.ExecuteCycle(context.Background(), models.NewRawTick(100, 0.5, 1, asianMorning))
	require.NoError(t, err)
	assert.NotNil(t, res)
}

func TestInvokeModel(t *testing.T) {
	backend := &fakeBackend{resp: models.InvocationResponse{Text: "ok", InputTokens: 1200, OutputTokens: 300}}
	e := newEngine(t, newFakeGateway(), backend)

	crit := models.RoutingCriteria{
		TaskType: models.TaskComplexReasoning, InputTokens: 1000, OutputTokens: 500,
		MinCapability: models.CapabilityExpert, Region: "us",
	}
	res, err := e.InvokeModel(context.Background(), "summarize the market", crit, models.InvocationOptions{})
	require.NoError(t, err)
	assert.Equal(t, "claude-3-5-sonnet", res.Model.ID)
	assert.Equal(t, "ok", res.Text)
	assert.InDelta(t, 1.2*0.003+0.3*0.015, res.Cost, 1e-12)

	usage := e.UsageReport()
	assert.Equal(t, int64(1), usage.TotalInvocations)
	assert.Equal(t, int64(1200), usage.PerModel["claude-3-5-sonnet"].InputTokens)

	e.ResetUsage()
	assert.Zero(t, e.UsageReport().TotalInvocations)
	assert.Zero(t, e.UsageReport().TotalCost)
}

func TestInvokeModel_FallsBackToEstimates(t *testing.T) {
	backend := &fakeBackend{resp: models.InvocationResponse{Text: "ok"}}
	e := newEngine(t, newFakeGateway(), backend)

	crit := models.RoutingCriteria{TaskType: models.TaskGeneral, InputTokens: 800, OutputTokens: 200, Region: "eu"}
	res, err := e.InvokeModel(context.Background(), "hi", crit, models.InvocationOptions{})
	require.NoError(t, err)
	assert.Equal(t, 800, res.InputTokens)
	assert.Equal(t, 200, res.OutputTokens)
}

func TestInvokeModel_Failures(t *testing.T) {
	crit := models.RoutingCriteria{TaskType: models.TaskGeneral, InputTokens: 100, OutputTokens: 100, Region: "us"}

	t.Run("backend error", func(t *testing.T) {
		e := newEngine(t, newFakeGateway(), &fakeBackend{err: errors.New("rate limited")})
		_, err := e.InvokeModel(context.Background(), "hi", crit, models.InvocationOptions{})
		require.Error(t, err)
		assert.True(t, errors.Is(err, models.ErrInvocationFailed))
		assert.False(t, errors.Is(err, models.ErrNoEligibleModel))
		assert.Zero(t, e.UsageReport().TotalInvocations)
	})

	t.Run("timeout", func(t *testing.T) {
		e := newEngine(t, newFakeGateway(), &fakeBackend{block: true})
		_, err := e.InvokeModel(context.Background(), "hi", crit, models.InvocationOptions{Timeout: 20 * time.Millisecond})
		require.Error(t, err)
		assert.True(t, errors.Is(err, models.ErrInvocationFailed))
		assert.True(t, errors.Is(err, context.DeadlineExceeded))
	})

	t.Run("no eligible model", func(t *testing.T) {
		backend := &fakeBackend{}
		e := newEngine(t, newFakeGateway(), backend)
		c := crit
		c.MinCapability = models.CapabilityExpert
		c.MaxCost = 0.00001
		_, err := e.InvokeModel(context.Background(), "hi", c, models.InvocationOptions{})
		assert.True(t, errors.Is(err, models.ErrNoEligibleModel))
		assert.Zero(t, atomic.LoadInt32(&backend.calls))
	})

	t.Run("empty prompt", func(t *testing.T) {
		e := newEngine(t, newFakeGateway(), &fakeBackend{})
		_, err := e.InvokeModel(context.Background(), "  ", crit, models.InvocationOptions{})
		assert.True(t, errors.Is(err, models.ErrValidation))
	})

	t.Run("no backend", func(t *testing.T) {
		e := newEngine(t, newFakeGateway(), nil)
		_, err := e.InvokeModel(context.Background(), "hi", crit, models.InvocationOptions{})
		assert.True(t, errors.Is(err, models.ErrInvocationFailed))
	})
}
