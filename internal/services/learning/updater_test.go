package learning

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinScout/internal/domain/models"
)

func signal(src models.SourceName) models.Signal {
	return models.Signal{Source: src, Type: models.SignalWhaleActivity}
}

func TestUpdate_SuccessEMA(t *testing.T) {
	u, err := NewUpdater(0.1)
	require.NoError(t, err)

	prior := map[models.SourceName]models.SourceMetrics{
		models.SourceWhaleTracker: {SuccessRate: 0.5, SignalQuality: 0.5},
	}
	next := u.Update(prior, []Outcome{{Source: models.SourceWhaleTracker, Success: true, ResponseTimeMs: 120}}, nil)

	m := next[models.SourceWhaleTracker]
	assert.InDelta(t, 0.55, m.SuccessRate, 1e-12)
	assert.Equal(t, 0.5, m.SignalQuality, "quality only moves when signals are attributed")
	assert.Equal(t, int64(1), m.TotalCalls)
	assert.Equal(t, int64(0), m.QualitySignals)
	assert.Equal(t, 120.0, m.AverageResponseTime)

	// prior untouched
	assert.Equal(t, 0.5, prior[models.SourceWhaleTracker].SuccessRate)
	assert.Equal(t, int64(0), prior[models.SourceWhaleTracker].TotalCalls)
}

func TestUpdate_FailurePenalizes(t *testing.T) {
	u, _ := NewUpdater(0.1)
	next := u.Update(nil, []Outcome{{Source: models.SourceDerivatives, Success: false, ResponseTimeMs: 5000}}, nil)

	m := next[models.SourceDerivatives]
	assert.InDelta(t, 0.45, m.SuccessRate, 1e-12)
	assert.Equal(t, int64(1), m.TotalCalls)
	assert.Equal(t, 5000.0, m.AverageResponseTime)
}

func TestUpdate_SignalQuality(t *testing.T) {
	u, _ := NewUpdater(0.1)
	prior := map[models.SourceName]models.SourceMetrics{
		models.SourceFearGreed:    {SuccessRate: 0.8, SignalQuality: 0.4, TotalCalls: 3, QualitySignals: 1},
		models.SourceWhaleTracker: {SuccessRate: 0.8, SignalQuality: 0.4, TotalCalls: 3},
	}
	outcomes := []Outcome{
		{Source: models.SourceFearGreed, Success: true},
		{Source: models.SourceWhaleTracker, Success: true},
	}
	next := u.Update(prior, outcomes, []models.Signal{signal(models.SourceFearGreed)})

	fg := next[models.SourceFearGreed]
	assert.InDelta(t, 0.46, fg.SignalQuality, 1e-12)
	assert.Equal(t, int64(2), fg.QualitySignals)
	assert.Equal(t, int64(4), fg.TotalCalls)

	wt := next[models.SourceWhaleTracker]
	assert.Equal(t, 0.4, wt.SignalQuality)
	assert.Equal(t, int64(0), wt.QualitySignals)
}

func TestUpdate_MultipleSignalsClampQuality(t *testing.T) {
	u, _ := NewUpdater(0.5)
	prior := map[models.SourceName]models.SourceMetrics{
		models.SourceSocialSentiment: {SuccessRate: 1, SignalQuality: 0.9},
	}
	sigs := []models.Signal{signal(models.SourceSocialSentiment), signal(models.SourceSocialSentiment)}
	next := u.Update(prior, []Outcome{{Source: models.SourceSocialSentiment, Success: true}}, sigs)

	m := next[models.SourceSocialSentiment]
	assert.Equal(t, 1.0, m.SignalQuality)
	assert.Equal(t, 1.0, m.SuccessRate)
	assert.Equal(t, int64(1), m.QualitySignals)
	assert.Equal(t, int64(1), m.TotalCalls)
}

func TestUpdate_UnqueriedSourcesCarriedOver(t *testing.T) {
	u, _ := NewUpdater(0.1)
	prior := map[models.SourceName]models.SourceMetrics{
		models.SourceNewsMonitor: {SuccessRate: 0.3, SignalQuality: 0.2, TotalCalls: 9},
	}
	next := u.Update(prior, []Outcome{{Source: models.SourceFearGreed, Success: true}}, nil)
	assert.Equal(t, prior[models.SourceNewsMonitor], next[models.SourceNewsMonitor])
	assert.Contains(t, next, models.SourceFearGreed)
}

func TestUpdate_RatesStayInBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	u, _ := NewUpdater(0.1)
	metrics := map[models.SourceName]models.SourceMetrics{}

	for i := 0; i < 5000; i++ {
		src := models.AllSources[rng.Intn(len(models.AllSources))]
		var sigs []models.Signal
		for n := rng.Intn(4); n > 0; n-- {
			sigs = append(sigs, signal(src))
		}
		metrics = u.Update(metrics, []Outcome{{
			Source:         src,
			Success:        rng.Float64() < 0.6,
			ResponseTimeMs: rng.Float64() * 3000,
		}}, sigs)

		m := metrics[src]
		require.GreaterOrEqual(t, m.SuccessRate, 0.0)
		require.LessOrEqual(t, m.SuccessRate, 1.0)
		require.GreaterOrEqual(t, m.SignalQuality, 0.0)
		require.LessOrEqual(t, m.SignalQuality, 1.0)
		require.GreaterOrEqual(t, m.AverageResponseTime, 0.0)
		require.LessOrEqual(t, m.QualitySignals, m.TotalCalls)
	}
}

func TestUpdate_RunningMeanResponseTime(t *testing.T) {
	u, _ := NewUpdater(0.1)
	var metrics map[models.SourceName]models.SourceMetrics
	for _, rt := range []float64{100, 200, 600} {
		metrics = u.Update(metrics, []Outcome{{Source: models.SourceOnchainFlows, Success: true, ResponseTimeMs: rt}}, nil)
	}
	assert.InDelta(t, 300, metrics[models.SourceOnchainFlows].AverageResponseTime, 1e-9)
}

func TestNewUpdater_RejectsBadRate(t *testing.T) {
	for _, a := range []float64{0, -0.1, 1.1} {
		_, err := NewUpdater(a)
		assert.Error(t, err, "alpha %v", a)
	}
}
