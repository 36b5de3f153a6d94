package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())

	assert.Equal(t, "development", c.Environment)
	assert.Equal(t, 8080, c.Server.Port)
	assert.Equal(t, "info", c.Log.Level)
	assert.Equal(t, 0.2, c.Engine.ExplorationRate)
	assert.Equal(t, 0.1, c.Engine.LearningRate)
	assert.Equal(t, 3, c.Engine.Counts.Low)
	assert.Equal(t, 4, c.Engine.Counts.Medium)
	assert.Equal(t, 6, c.Engine.Counts.High)
	assert.Equal(t, 5.0, c.Engine.Thresholds.HighVolatility)
	assert.Equal(t, 30*time.Second, c.Engine.CycleTimeout)
	assert.Equal(t, "memory", c.Store.Type)
	assert.Equal(t, "finscout:queue", c.Queue.KeyPrefix)
	assert.Equal(t, "localhost:6379", c.RedisAddr())
}

func TestParse_OverlaysYAML(t *testing.T) {
	c, err := Parse([]byte(`
environment: production
engine:
  symbol: ETHUSDT
  exploration_rate: 0.05
  cycle_interval: 30s
  counts:
    high: 5
  relevance:
    whale_tracker:
      HIGH:
        BULLISH: 0.99
store:
  type: sqlite
  sqlite_path: /var/lib/finscout/metrics.db
queue:
  enabled: true
  workers: 4
`))
	require.NoError(t, err)

	assert.Equal(t, "production", c.Environment)
	assert.Equal(t, "ETHUSDT", c.Engine.Symbol)
	assert.Equal(t, 0.05, c.Engine.ExplorationRate)
	assert.Equal(t, 30*time.Second, c.Engine.CycleInterval)
	assert.Equal(t, 5, c.Engine.Counts.High)
	assert.Equal(t, 3, c.Engine.Counts.Low, "untouched defaults survive the overlay")
	assert.Equal(t, 0.99, c.Engine.Relevance["whale_tracker"]["HIGH"]["BULLISH"])
	assert.Equal(t, "sqlite", c.Store.Type)
	assert.True(t, c.Queue.Enabled)
	assert.Equal(t, 4, c.Queue.Workers)
	assert.Equal(t, 3, c.Queue.RetryLimit)
}

func TestParse_Invalid(t *testing.T) {
	cases := map[string]string{
		"exploration above one": "engine:\n  exploration_rate: 1.5\n",
		"zero learning rate":    "engine:\n  learning_rate: 0\n",
		"unknown store":         "store:\n  type: etcd\n",
		"bad port":              "server:\n  port: 70000\n",
		"inverted thresholds":   "engine:\n  thresholds:\n    low_volatility: 6\n    high_volatility: 5\n",
		"kafka without brokers": "kafka:\n  enabled: true\n",
		"collection w/o kafka":  "log_collection:\n  enabled: true\n",
		"kafka feed w/o kafka":  "feed:\n  type: kafka\n",
		"malformed yaml":        "engine: [",
		"bad log level":         "log:\n  level: loud\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"APP_ENV":            "staging",
		"ENGINE_SEED":        "42",
		"SOURCE_RUNTIME_URL": "http://runtime:9000",
		"MODEL_API_KEY":      "sk-test",
		"REDIS_PORT":         "6380",
		"KAFKA_BROKERS":      "k1:9092, k2:9092,",
	}
	c := Default()
	require.NoError(t, c.applyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}))

	assert.Equal(t, "staging", c.Environment)
	assert.Equal(t, int64(42), c.Engine.Seed)
	assert.Equal(t, "http://runtime:9000", c.Runtime.BaseURL)
	assert.Equal(t, "sk-test", c.Model.APIKey)
	assert.Equal(t, 6380, c.Redis.Port)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
	assert.True(t, c.Kafka.Enabled)
	require.NoError(t, c.Validate())

	bad := Default()
	err := bad.applyEnv(func(k string) (string, bool) {
		if k == "ENGINE_SEED" {
			return "forty-two", true
		}
		return "", false
	})
	assert.Error(t, err)
}

func TestLoadWithEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine:\n  symbol: SOLUSDT\n"), 0o600))
	t.Setenv("ENGINE_SYMBOL", "BTCUSDT")
	t.Setenv("STORE_TYPE", "redis")

	c, err := LoadWithEnv(path)
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", c.Engine.Symbol)
	assert.Equal(t, "redis", c.Store.Type)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	c, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", c.Engine.Symbol)
}
