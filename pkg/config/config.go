package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"FinScout/pkg/logger"
	"FinScout/pkg/queue"
)

type Config struct {
	Environment string        `yaml:"environment" default:"development" validate:"oneof=development staging production test"`
	Log         logger.Config `yaml:"log"`

	Server struct {
		Port            int           `yaml:"port" default:"8080" validate:"min=1,max=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"90s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
	} `yaml:"server"`

	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`

	Engine EngineConfig `yaml:"engine"`

	// Runtime is the agent runtime that answers source queries.
	Runtime struct {
		BaseURL   string        `yaml:"base_url" validate:"omitempty,url"`
		Timeout   time.Duration `yaml:"timeout" default:"10s"`
		RateLimit float64       `yaml:"rate_limit" default:"5" validate:"gt=0"`
		Burst     int           `yaml:"burst" default:"2" validate:"min=1"`
		Breaker   struct {
			MaxFailures uint32        `yaml:"max_failures" default:"5" validate:"min=1"`
			OpenTimeout time.Duration `yaml:"open_timeout" default:"30s"`
		} `yaml:"breaker"`
	} `yaml:"runtime"`

	Model struct {
		BaseURL string        `yaml:"base_url" validate:"omitempty,url"`
		APIKey  string        `yaml:"api_key"`
		Timeout time.Duration `yaml:"timeout" default:"60s"`
	} `yaml:"model"`

	Feed struct {
		Type           string        `yaml:"type" default:"binance" validate:"oneof=binance kafka none"`
		URL            string        `yaml:"url" default:"wss://stream.binance.com:9443/ws"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"5s"`
		PingInterval   time.Duration `yaml:"ping_interval" default:"30s"`
		ReadTimeout    time.Duration `yaml:"read_timeout" default:"1m"`
		StaleAfter     time.Duration `yaml:"stale_after" default:"2m"`
	} `yaml:"feed"`

	Store struct {
		Type       string        `yaml:"type" default:"memory" validate:"oneof=memory redis sqlite"`
		SQLitePath string        `yaml:"sqlite_path" default:"finscout.db"`
		TTL        time.Duration `yaml:"ttl"`
	} `yaml:"store"`

	Redis struct {
		Host     string `yaml:"host" default:"localhost"`
		Port     int    `yaml:"port" default:"6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size" default:"10"`
		Prefix   string `yaml:"prefix" default:"finscout"`
	} `yaml:"redis"`

	Kafka struct {
		Enabled      bool          `yaml:"enabled"`
		Brokers      []string      `yaml:"brokers"`
		Topic        string        `yaml:"topic" default:"finscout.signals"`
		LogTopic     string        `yaml:"log_topic" default:"finscout.logs"`
		TickTopic    string        `yaml:"tick_topic" default:"finscout.ticks"`
		GroupID      string        `yaml:"group_id" default:"finscout"`
		RequiredAcks int           `yaml:"required_acks" default:"-1"`
		Compression  string        `yaml:"compression" default:"snappy" validate:"oneof=none gzip snappy lz4 zstd"`
		MaxAttempts  int           `yaml:"max_attempts" default:"5"`
		BatchSize    int           `yaml:"batch_size" default:"100"`
		BatchTimeout time.Duration `yaml:"batch_timeout" default:"50ms"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
	} `yaml:"kafka"`

	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"finscout"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
	} `yaml:"clickhouse"`

	Queue struct {
		Enabled      bool `yaml:"enabled"`
		queue.Config `yaml:",inline"`
	} `yaml:"queue"`

	LogCollection struct {
		Enabled        bool          `yaml:"enabled"`
		Interval       time.Duration `yaml:"interval" default:"1m"`
		CountThreshold int           `yaml:"count_threshold" default:"50"`
	} `yaml:"log_collection"`
}

type EngineConfig struct {
	Symbol string `yaml:"symbol" default:"BTCUSDT" validate:"required"`
	// Seed of the exploration RNG; 0 seeds from the clock.
	Seed            int64         `yaml:"seed"`
	CycleInterval   time.Duration `yaml:"cycle_interval" default:"5m"`
	CycleTimeout    time.Duration `yaml:"cycle_timeout" default:"30s"`
	SinkTimeout     time.Duration `yaml:"sink_timeout" default:"5s"`
	ExplorationRate float64       `yaml:"exploration_rate" default:"0.2" validate:"min=0,max=1"`
	LearningRate    float64       `yaml:"learning_rate" default:"0.1" validate:"gt=0,lte=1"`
	Counts          struct {
		Low    int `yaml:"low" default:"3" validate:"min=1"`
		Medium int `yaml:"medium" default:"4" validate:"min=1"`
		High   int `yaml:"high" default:"6" validate:"min=1"`
	} `yaml:"counts"`
	Thresholds struct {
		HighVolatility float64 `yaml:"high_volatility" default:"5" validate:"gt=0"`
		LowVolatility  float64 `yaml:"low_volatility" default:"2" validate:"gt=0"`
		Trend          float64 `yaml:"trend" default:"1.5" validate:"gt=0"`
	} `yaml:"thresholds"`
	// Relevance overlays the built-in table: source -> tier -> trend -> weight.
	Relevance map[string]map[string]map[string]float64 `yaml:"relevance"`
	// Catalog is an optional model catalog file replacing the embedded one.
	Catalog string `yaml:"catalog"`
}

var validate = validator.New()

// Default returns a configuration with every default applied.
func Default() *Config {
	var c Config
	if err := defaults.Set(&c); err != nil {
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	return &c
}

// Parse applies defaults, overlays the YAML document and validates.
func Parse(b []byte) (*Config, error) {
	c := Default()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// Load reads and parses a YAML configuration file. An empty path yields the
// defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		c := Default()
		return c, c.Validate()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// LoadWithEnv loads config from YAML and overrides it with environment
// variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := c.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("APP_ENV", &c.Environment)
	str("LOG_LEVEL", &c.Log.Level)
	str("ENGINE_SYMBOL", &c.Engine.Symbol)
	str("SOURCE_RUNTIME_URL", &c.Runtime.BaseURL)
	str("MODEL_BACKEND_URL", &c.Model.BaseURL)
	str("MODEL_API_KEY", &c.Model.APIKey)
	str("STORE_TYPE", &c.Store.Type)
	str("REDIS_HOST", &c.Redis.Host)
	str("REDIS_PASSWORD", &c.Redis.Password)
	str("KAFKA_TOPIC", &c.Kafka.Topic)
	str("CLICKHOUSE_HOST", &c.ClickHouse.Host)
	str("CLICKHOUSE_PASSWORD", &c.ClickHouse.Password)

	if v, ok := lookup("ENGINE_SEED"); ok && v != "" {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("ENGINE_SEED: %w", err)
		}
		c.Engine.Seed = seed
	}
	if v, ok := lookup("REDIS_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("REDIS_PORT: %w", err)
		}
		c.Redis.Port = port
	}
	if v, ok := lookup("KAFKA_BROKERS"); ok && v != "" {
		c.Kafka.Brokers = splitList(v)
		c.Kafka.Enabled = true
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks struct tags and the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Engine.Thresholds.LowVolatility > c.Engine.Thresholds.HighVolatility {
		return errors.New("engine.thresholds.low_volatility must not exceed high_volatility")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka.brokers is required when kafka is enabled")
	}
	if c.Feed.Type == "kafka" && !c.Kafka.Enabled {
		return errors.New("feed.type kafka requires kafka")
	}
	if c.LogCollection.Enabled && !c.Kafka.Enabled {
		return errors.New("log_collection requires kafka")
	}
	if c.Queue.Enabled && c.Queue.Workers < 1 {
		return errors.New("queue.workers must be at least 1")
	}
	return nil
}

// RedisAddr is host:port for go-redis.
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}
