package di

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"FinScout/internal/domain/models"
	domrepo "FinScout/internal/domain/repository"
	domsvc "FinScout/internal/domain/service"
	"FinScout/internal/handler/api"
	internalrepo "FinScout/internal/repository"
	"FinScout/internal/service/agentruntime"
	"FinScout/internal/service/binance"
	"FinScout/internal/service/kafkafeed"
	"FinScout/internal/service/ratelimit"
	"FinScout/internal/services/learning"
	"FinScout/internal/services/market"
	"FinScout/internal/services/routing"
	"FinScout/internal/services/signals"
	"FinScout/internal/services/sources"
	"FinScout/internal/services/usage"
	"FinScout/internal/usecase"
	"FinScout/pkg/cache"
	pkgch "FinScout/pkg/clickhouse"
	"FinScout/pkg/config"
	xhttp "FinScout/pkg/http"
	pkgkafka "FinScout/pkg/kafka"
	"FinScout/pkg/logger"
	"FinScout/pkg/metrics"
	"FinScout/pkg/queue"
	"FinScout/pkg/server"
)

const (
	initTimeout  = 10 * time.Second
	cycleLockKey = "cycle_lock"
	metricsKeyNS = "engine"
)

func ProvideLogger(cfg *config.Config) (*logger.Logger, func(), error) {
	l, err := logger.New(&cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	l = l.With(logger.String("env", cfg.Environment))
	return l, l.RemoveCollector, nil
}

// ProvidePrometheus returns a dedicated registry with the Go and process
// collectors.
func ProvidePrometheus() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

func ProvideMetrics(cfg *config.Config, reg *prometheus.Registry) domrepo.Metrics {
	if !cfg.Metrics.Enabled {
		return metrics.Nop{}
	}
	return metrics.New(reg)
}

// ProvideRedisClient connects to Redis when the metrics store or the cycle
// queue needs it; otherwise it returns nil.
func ProvideRedisClient(cfg *config.Config, log *logger.Logger) (*redis.Client, func(), error) {
	if cfg.Store.Type != "redis" && !cfg.Queue.Enabled {
		return nil, func() {}, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()

	client, err := cache.NewRedisClient(ctx,
		cache.WithRedisHost(cfg.Redis.Host),
		cache.WithRedisPort(cfg.Redis.Port),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPool(cfg.Redis.PoolSize, 2, 4*time.Second),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("redis client: %w", err)
	}
	log.Info("redis connected", logger.String("addr", cfg.RedisAddr()))
	return client, func() {
		if err := client.Close(); err != nil {
			log.Warn("redis close failed", logger.Error(err))
		}
	}, nil
}

// ProvideCache is Redis-backed when a client exists and in-process otherwise.
func ProvideCache(cfg *config.Config, client *redis.Client) (cache.Service, func()) {
	var c cache.Service
	if client != nil {
		c = cache.NewRedisCache(client, cache.GenerateKey(cfg.Redis.Prefix, metricsKeyNS))
	} else {
		c = cache.NewMemoryCache()
	}
	return c, func() { _ = c.Close() }
}

// ProvideSQLite opens the SQLite database when store.type is sqlite.
func ProvideSQLite(cfg *config.Config) (*internalrepo.SQLiteStore, func(), error) {
	if cfg.Store.Type != "sqlite" {
		return nil, func() {}, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()

	s, err := internalrepo.OpenSQLite(ctx, cfg.Store.SQLitePath)
	if err != nil {
		return nil, nil, err
	}
	return s, func() { _ = s.Close() }, nil
}

func ProvideMetricsStore(cfg *config.Config, c cache.Service, sqlite *internalrepo.SQLiteStore) domrepo.MetricsStore {
	if sqlite != nil {
		return sqlite
	}
	return internalrepo.NewCacheMetricsStore(c, cfg.Store.TTL)
}

func ProvideClickHouseClient(cfg *config.Config, log *logger.Logger) (*pkgch.Client, func(), error) {
	if !cfg.ClickHouse.Enabled {
		return nil, func() {}, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()

	client, err := pkgch.NewClient(ctx,
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, func() {
		if err := client.Close(); err != nil {
			log.Warn("clickhouse close failed", logger.Error(err))
		}
	}, nil
}

// ProvideCycleRecorder prefers ClickHouse, then SQLite. Without either,
// cycle history is off and the recorder is nil.
func ProvideCycleRecorder(cfg *config.Config, ch *pkgch.Client, sqlite *internalrepo.SQLiteStore, log *logger.Logger) (domrepo.CycleRecorder, error) {
	var rec domrepo.CycleRecorder
	switch {
	case ch != nil:
		rec = internalrepo.NewCHCycleRecorder(ch, cfg.ClickHouse.Database, log)
	case sqlite != nil:
		rec = sqlite
	default:
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()
	if err := rec.Init(ctx); err != nil {
		return nil, fmt.Errorf("cycle recorder schema: %w", err)
	}
	return rec, nil
}

func ProvideKafkaProducer(cfg *config.Config, reg *prometheus.Registry) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithMaxAttempts(cfg.Kafka.MaxAttempts),
		pkgkafka.WithBatching(cfg.Kafka.BatchSize, cfg.Kafka.BatchTimeout),
		pkgkafka.WithTimeouts(cfg.Kafka.WriteTimeout, 0),
		pkgkafka.WithHashByKey(true),
		pkgkafka.WithProducerRegisterer(reg),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideSignalPublisher publishes signals to Kafka and, when log
// collection is on, ships aggregated error logs through the same producer.
func ProvideSignalPublisher(cfg *config.Config, producer *pkgkafka.Producer, log *logger.Logger) (domrepo.SignalPublisher, func()) {
	if producer == nil {
		return nil, func() {}
	}
	pub := internalrepo.NewKafkaSignalPublisher(producer, cfg.Kafka.Topic)
	if cfg.LogCollection.Enabled {
		log.AddCollector(&logger.CollectionConfig{
			TimeInterval:   cfg.LogCollection.Interval,
			CountThreshold: cfg.LogCollection.CountThreshold,
			Topic:          cfg.Kafka.LogTopic,
			Publisher:      pub,
		})
	}
	return pub, func() {
		log.RemoveCollector()
		if err := pub.Close(); err != nil {
			log.Warn("kafka producer close failed", logger.Error(err))
		}
	}
}

func ProvideSourceGateway(cfg *config.Config, log *logger.Logger) (*agentruntime.SourceGateway, error) {
	if cfg.Runtime.BaseURL == "" {
		return nil, errors.New("runtime.base_url is required")
	}
	client := xhttp.NewClient(cfg.Runtime.BaseURL, xhttp.WithTimeout(cfg.Runtime.Timeout))
	return agentruntime.NewSourceGateway(
		client,
		ratelimit.New(cfg.Runtime.RateLimit, cfg.Runtime.Burst),
		agentruntime.BreakerSettings{
			MaxFailures: cfg.Runtime.Breaker.MaxFailures,
			OpenTimeout: cfg.Runtime.Breaker.OpenTimeout,
		},
		log,
	), nil
}

// ProvideModelBackend returns nil when no model gateway is configured;
// invocations then fail while selection keeps working.
func ProvideModelBackend(cfg *config.Config) domsvc.ModelBackend {
	if cfg.Model.BaseURL == "" {
		return nil
	}
	return agentruntime.NewModelBackend(xhttp.NewClient(cfg.Model.BaseURL,
		xhttp.WithTimeout(cfg.Model.Timeout),
		xhttp.WithBearerToken(cfg.Model.APIKey),
	))
}

// ProvideRegistry loads the catalog file when set, else the embedded one.
func ProvideRegistry(cfg *config.Config) (*routing.Registry, error) {
	if cfg.Engine.Catalog != "" {
		return routing.LoadRegistry(cfg.Engine.Catalog)
	}
	return routing.DefaultRegistry()
}

func ProvideComponents(cfg *config.Config, reg *routing.Registry, log *logger.Logger) (usecase.Components, error) {
	ec := cfg.Engine

	relevance, err := sources.RelevanceFromConfig(ec.Relevance)
	if err != nil {
		return usecase.Components{}, fmt.Errorf("relevance table: %w", err)
	}
	seed := ec.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	selector, err := sources.NewSelector(map[models.VolatilityTier]int{
		models.VolatilityLow:    ec.Counts.Low,
		models.VolatilityMedium: ec.Counts.Medium,
		models.VolatilityHigh:   ec.Counts.High,
	}, ec.ExplorationRate, rand.New(rand.NewSource(seed)))
	if err != nil {
		return usecase.Components{}, err
	}
	updater, err := learning.NewUpdater(ec.LearningRate)
	if err != nil {
		return usecase.Components{}, err
	}

	return usecase.Components{
		Assessor: market.NewAssessor(market.WithThresholds(market.Thresholds{
			HighVolatility: ec.Thresholds.HighVolatility,
			LowVolatility:  ec.Thresholds.LowVolatility,
			Trend:          ec.Thresholds.Trend,
		})),
		Scorer:    sources.NewScorer(relevance, sources.DefaultScoreWeights()),
		Selector:  selector,
		Generator: signals.NewGenerator(signals.DefaultThresholds(), log),
		Updater:   updater,
		Router:    routing.NewRouter(reg),
		Usage:     usage.NewTracker(nil),
	}, nil
}

func ProvideEngine(
	cfg *config.Config,
	c usecase.Components,
	gateway *agentruntime.SourceGateway,
	backend domsvc.ModelBackend,
	store domrepo.MetricsStore,
	recorder domrepo.CycleRecorder,
	publisher domrepo.SignalPublisher,
	m domrepo.Metrics,
	log *logger.Logger,
) (*usecase.Engine, error) {
	opts := []usecase.EngineOption{
		usecase.WithCycleTimeout(cfg.Engine.CycleTimeout),
		usecase.WithSinkTimeout(cfg.Engine.SinkTimeout),
		usecase.WithMetricsStore(store),
		usecase.WithMetrics(m),
		usecase.WithLogger(log),
	}
	if recorder != nil {
		opts = append(opts, usecase.WithCycleRecorder(recorder))
	}
	if publisher != nil {
		opts = append(opts, usecase.WithSignalPublisher(publisher))
	}
	return usecase.NewEngine(c, gateway, backend, opts...)
}

// ProvideMarketFeed builds the feed scheduled cycles read from, or nil when
// feed.type is none.
func ProvideMarketFeed(cfg *config.Config, log *logger.Logger) domrepo.MarketFeed {
	switch cfg.Feed.Type {
	case "binance":
		return binance.NewFeed(binance.Config{
			URL:            cfg.Feed.URL,
			Symbol:         cfg.Engine.Symbol,
			ReconnectDelay: cfg.Feed.ReconnectDelay,
			PingInterval:   cfg.Feed.PingInterval,
			ReadTimeout:    cfg.Feed.ReadTimeout,
			StaleAfter:     cfg.Feed.StaleAfter,
		}, log)
	case "kafka":
		return kafkafeed.New(cfg.Kafka.TickTopic, cfg.Engine.Symbol, cfg.Feed.StaleAfter)
	}
	return nil
}

// ProvideKafkaConsumer consumes the tick topic for the kafka feed.
func ProvideKafkaConsumer(cfg *config.Config, feed domrepo.MarketFeed, reg *prometheus.Registry, log *logger.Logger) (*pkgkafka.Consumer, error) {
	kf, ok := feed.(*kafkafeed.Feed)
	if !ok {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.GroupID),
		pkgkafka.WithConsumerWorkers(1),
		pkgkafka.WithConsumerLogger(log),
		pkgkafka.WithConsumerRegisterer(reg),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.RegisterHandler(kf)
	return consumer, nil
}

// ProvideQueue returns the cycle job queue with a single worker so queued
// cycles never overlap, or nil when disabled.
func ProvideQueue(cfg *config.Config, client *redis.Client, engine *usecase.Engine, log *logger.Logger) *queue.RedisQueue {
	if !cfg.Queue.Enabled || client == nil {
		return nil
	}
	qc := cfg.Queue.Config
	qc.Workers = 1
	q := queue.NewRedisQueue(log, qc, client, queue.ModeProducerConsumer)
	q.Register(usecase.NewCycleJob(engine, log))
	return q
}

// ProvideScheduler returns nil without a feed. Replicas sharing Redis take
// turns through the cache lock.
func ProvideScheduler(cfg *config.Config, engine *usecase.Engine, feed domrepo.MarketFeed, c cache.Service, client *redis.Client, log *logger.Logger) *usecase.Scheduler {
	if feed == nil {
		return nil
	}
	s := usecase.NewScheduler(engine, feed, cfg.Engine.CycleInterval, log)
	if client != nil {
		s.WithLock(c, cache.GenerateKey(cycleLockKey, cfg.Engine.Symbol))
	}
	return s
}

func ProvideHandlers(cfg *config.Config, engine *usecase.Engine, gateway *agentruntime.SourceGateway, q *queue.RedisQueue, log *logger.Logger) []xhttp.Handler {
	var (
		jobs  queue.Publisher
		stats api.QueueStats
	)
	if q != nil {
		jobs, stats = q, q
	}
	// Without a feed cycles are only triggered on demand, so age means nothing.
	var staleAfter time.Duration
	if cfg.Feed.Type != "" && cfg.Feed.Type != "none" {
		staleAfter = 3 * cfg.Engine.CycleInterval
	}
	return []xhttp.Handler{
		api.NewEngineHandler(log, engine, jobs),
		api.NewModelsHandler(log, engine),
		api.NewOpsHandler(engine, gateway, stats).WithStaleAfter(staleAfter),
	}
}

func ProvideHTTPServer(cfg *config.Config, handlers []xhttp.Handler, reg *prometheus.Registry, log *logger.Logger) *xhttp.Server {
	opts := []xhttp.ServerOption{
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithPrometheus(cfg.Metrics.Path, reg, reg))
	}
	return xhttp.NewServer(log, handlers, opts...)
}

func ProvideApp(
	cfg *config.Config,
	engine *usecase.Engine,
	httpServer *xhttp.Server,
	feed domrepo.MarketFeed,
	consumer *pkgkafka.Consumer,
	q *queue.RedisQueue,
	scheduler *usecase.Scheduler,
	log *logger.Logger,
) *server.App {
	opts := []server.Option{
		server.WithHTTPServer(httpServer),
		server.WithShutdownTimeout(cfg.Server.ShutdownTimeout + 5*time.Second),
	}
	if r, ok := feed.(server.Runner); ok {
		opts = append(opts, server.WithRunner("market feed", r))
	}
	if consumer != nil {
		opts = append(opts, server.WithConsumer(consumer))
	}
	if q != nil {
		opts = append(opts, server.WithQueue(q))
	}
	if scheduler != nil {
		opts = append(opts, server.WithRunner("scheduler", scheduler))
	}
	return server.New(engine, log, opts...)
}
