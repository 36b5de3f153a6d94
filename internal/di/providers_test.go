package di

import (
	"math"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinScout/internal/domain/models"
	"FinScout/internal/service/binance"
	"FinScout/internal/service/kafkafeed"
	"FinScout/pkg/cache"
	"FinScout/pkg/config"
	"FinScout/pkg/logger"
	"FinScout/pkg/metrics"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Runtime.BaseURL = "http://runtime.local:8700"
	cfg.Engine.Seed = 7
	return cfg
}

func TestProvideComponents_FromConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Engine.Counts.High = 5
	cfg.Engine.Relevance = map[string]map[string]map[string]float64{
		"whale_tracker": {"HIGH": {"BULLISH": 0.05}},
	}

	reg, err := ProvideRegistry(cfg)
	require.NoError(t, err)
	c, err := ProvideComponents(cfg, reg, logger.Nop())
	require.NoError(t, err)

	assert.Equal(t, 5, c.Selector.Count(models.VolatilityHigh))
	assert.Equal(t, cfg.Engine.LearningRate, c.Updater.LearningRate())
	assert.Equal(t, 9, c.Router.Registry().Len())

	mc := models.MarketContext{Volatility: models.VolatilityHigh, Trend: models.TrendBullish}
	score := c.Scorer.Score(models.SourceWhaleTracker, mc, models.NewSourceMetrics())
	assert.False(t, math.IsNaN(score))
}

func TestProvideComponents_BadRelevance(t *testing.T) {
	cfg := testConfig(t)
	cfg.Engine.Relevance = map[string]map[string]map[string]float64{"astrology": {"HIGH": {"BULLISH": 1}}}
	reg, err := ProvideRegistry(cfg)
	require.NoError(t, err)

	_, err = ProvideComponents(cfg, reg, logger.Nop())
	require.Error(t, err)
}

func TestProvideEngine_MemoryDefaults(t *testing.T) {
	cfg := testConfig(t)
	log := logger.Nop()

	reg, err := ProvideRegistry(cfg)
	require.NoError(t, err)
	comps, err := ProvideComponents(cfg, reg, log)
	require.NoError(t, err)
	gw, err := ProvideSourceGateway(cfg, log)
	require.NoError(t, err)

	c, cleanup := ProvideCache(cfg, nil)
	defer cleanup()
	_, isMemory := c.(*cache.MemoryCache)
	assert.True(t, isMemory)

	sqlite, closeSQLite, err := ProvideSQLite(cfg)
	require.NoError(t, err)
	defer closeSQLite()
	assert.Nil(t, sqlite)

	rec, err := ProvideCycleRecorder(cfg, nil, nil, log)
	require.NoError(t, err)
	assert.Nil(t, rec)

	pub, closePub := ProvideSignalPublisher(cfg, nil, log)
	defer closePub()
	assert.Nil(t, pub)

	e, err := ProvideEngine(cfg, comps, gw, ProvideModelBackend(cfg),
		ProvideMetricsStore(cfg, c, sqlite), rec, pub,
		ProvideMetrics(cfg, prometheus.NewRegistry()), log)
	require.NoError(t, err)
	assert.Len(t, e.Models(), 9)
}

func TestProvideSourceGateway_RequiresURL(t *testing.T) {
	cfg := config.Default()
	_, err := ProvideSourceGateway(cfg, logger.Nop())
	require.Error(t, err)
}

func TestProvideMetrics_Disabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Metrics.Enabled = false
	_, ok := ProvideMetrics(cfg, prometheus.NewRegistry()).(metrics.Nop)
	assert.True(t, ok)
}

func TestProvideMarketFeed(t *testing.T) {
	cfg := testConfig(t)

	_, ok := ProvideMarketFeed(cfg, logger.Nop()).(*binance.Feed)
	assert.True(t, ok)

	cfg.Feed.Type = "kafka"
	feed := ProvideMarketFeed(cfg, logger.Nop())
	_, ok = feed.(*kafkafeed.Feed)
	assert.True(t, ok)

	cfg.Kafka.Brokers = []string{"localhost:9092"}
	consumer, err := ProvideKafkaConsumer(cfg, feed, prometheus.NewRegistry(), logger.Nop())
	require.NoError(t, err)
	assert.NotNil(t, consumer)

	cfg.Feed.Type = "none"
	assert.Nil(t, ProvideMarketFeed(cfg, logger.Nop()))
	assert.Nil(t, ProvideScheduler(cfg, nil, nil, nil, nil, logger.Nop()))
}

func TestProvideQueue_Disabled(t *testing.T) {
	cfg := testConfig(t)
	assert.Nil(t, ProvideQueue(cfg, nil, nil, logger.Nop()))
	assert.Len(t, ProvideHandlers(cfg, nil, nil, nil, logger.Nop()), 3)
}
