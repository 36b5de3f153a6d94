package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"FinScout/internal/domain/models"
	"FinScout/internal/domain/repository"
)

const namespace = "finscout"

var _ repository.Metrics = (*Recorder)(nil)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	cycles        *prometheus.CounterVec
	cycleDuration prometheus.Histogram
	cycleRejected *prometheus.CounterVec
	cycleFailures prometheus.Histogram
	sourceQueries *prometheus.CounterVec
	sourceLatency *prometheus.HistogramVec
	sourceScore   *prometheus.GaugeVec
	sourceSuccess *prometheus.GaugeVec
	sourceQuality *prometheus.GaugeVec
	signals       *prometheus.CounterVec
	signalSkips   prometheus.Counter
	modelSelected *prometheus.CounterVec
	modelCalls    *prometheus.CounterVec
	modelLatency  *prometheus.HistogramVec
	tokens        *prometheus.CounterVec
	cost          *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
}

// New registers the engine's collectors on reg. Use prometheus.DefaultRegisterer
// in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		cycles: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "cycles_total",
			Help: "Completed decision cycles",
		}, []string{"explored"}),
		cycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "cycle_duration_seconds",
			Help:    "Wall time of a decision cycle",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		cycleRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "cycles_rejected_total",
			Help: "Cycles aborted before querying sources",
		}, []string{"reason"}),
		cycleFailures: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "cycle_source_failures",
			Help:    "Failed source queries per cycle",
			Buckets: []float64{0, 1, 2, 3, 4, 6},
		}),
		sourceQueries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "source", Name: "queries_total",
			Help: "Source queries by outcome",
		}, []string{"source", "result"}),
		sourceLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "source", Name: "query_duration_seconds",
			Help:    "Source query latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"source"}),
		sourceScore: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "source", Name: "score",
			Help: "Score of each source in the latest cycle",
		}, []string{"source"}),
		sourceSuccess: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "source", Name: "success_rate",
			Help: "Learned success rate",
		}, []string{"source"}),
		sourceQuality: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "source", Name: "signal_quality",
			Help: "Learned signal quality",
		}, []string{"source"}),
		signals: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "signals_total",
			Help: "Generated signals",
		}, []string{"type", "severity"}),
		signalSkips: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "signal_rule_skips_total",
			Help: "Signal rules skipped because of missing or malformed data",
		}),
		modelSelected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "model", Name: "selections_total",
			Help: "Router decisions",
		}, []string{"model", "task_type"}),
		modelCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "model", Name: "invocations_total",
			Help: "Model invocations by outcome",
		}, []string{"model", "result"}),
		modelLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "model", Name: "invocation_duration_seconds",
			Help:    "Model invocation latency",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
		}, []string{"model"}),
		tokens: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "model", Name: "tokens_total",
			Help: "Tokens consumed",
		}, []string{"model", "direction"}),
		cost: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "model", Name: "cost_usd_total",
			Help: "Accumulated model spend",
		}, []string{"model"}),
		errorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "errors_total",
			Help: "Errors by kind",
		}, []string{"type"}),
	}
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

func (r *Recorder) RecordCycle(seconds float64, explored bool, failures int) {
	label := "false"
	if explored {
		label = "true"
	}
	r.cycles.WithLabelValues(label).Inc()
	r.cycleDuration.Observe(seconds)
	r.cycleFailures.Observe(float64(failures))
}

func (r *Recorder) RecordCycleRejected(reason string) {
	r.cycleRejected.WithLabelValues(reason).Inc()
}

func (r *Recorder) RecordSourceQuery(source string, success bool, seconds float64) {
	r.sourceQueries.WithLabelValues(source, result(success)).Inc()
	r.sourceLatency.WithLabelValues(source).Observe(seconds)
}

func (r *Recorder) RecordSourceState(source string, score float64, m models.SourceMetrics) {
	r.sourceScore.WithLabelValues(source).Set(score)
	r.sourceSuccess.WithLabelValues(source).Set(m.SuccessRate)
	r.sourceQuality.WithLabelValues(source).Set(m.SignalQuality)
}

func (r *Recorder) RecordSignal(signalType, severity string) {
	r.signals.WithLabelValues(signalType, severity).Inc()
}

func (r *Recorder) RecordSignalSkips(n int) {
	r.signalSkips.Add(float64(n))
}

func (r *Recorder) RecordModelSelection(modelID, taskType string) {
	r.modelSelected.WithLabelValues(modelID, taskType).Inc()
}

func (r *Recorder) RecordModelInvocation(modelID string, success bool, seconds float64) {
	r.modelCalls.WithLabelValues(modelID, result(success)).Inc()
	r.modelLatency.WithLabelValues(modelID).Observe(seconds)
}

func (r *Recorder) RecordUsage(modelID string, inputTokens, outputTokens int, cost float64) {
	r.tokens.WithLabelValues(modelID, "input").Add(float64(inputTokens))
	r.tokens.WithLabelValues(modelID, "output").Add(float64(outputTokens))
	r.cost.WithLabelValues(modelID).Add(cost)
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// Nop discards all measurements.
type Nop struct{}

var _ repository.Metrics = Nop{}

func (Nop) RecordCycle(float64, bool, int) {}
func (Nop) RecordCycleRejected(string) {}
func (Nop) RecordSourceQuery(string, bool, float64) {}
func (Nop) RecordSourceState(string, float64, models.SourceMetrics) {}
func (Nop) RecordSignal(string, string) {}
func (Nop) RecordSignalSkips(int) {}
func (Nop) RecordModelSelection(string, string) {}
func (Nop) RecordModelInvocation(string, bool, float64) {}
func (Nop) RecordUsage(string, int, int, float64) {}
func (Nop) RecordError(string) {}
