//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"FinScout/internal/usecase"
	"FinScout/pkg/config"
	"FinScout/pkg/server"
)

// engineSet builds a fully wired engine: components, the agent runtime
// gateway and every configured sink.
var engineSet = wire.NewSet(
	ProvideLogger,
	ProvidePrometheus,
	ProvideMetrics,

	// Storage
	ProvideRedisClient,
	ProvideCache,
	ProvideSQLite,
	ProvideMetricsStore,
	ProvideClickHouseClient,
	ProvideCycleRecorder,

	// Messaging
	ProvideKafkaProducer,
	ProvideSignalPublisher,

	// Agent runtime
	ProvideSourceGateway,
	ProvideModelBackend,

	// Decision engine
	ProvideRegistry,
	ProvideComponents,
	ProvideEngine,
)

// InitializeApp wires the long-running service.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		engineSet,
		ProvideMarketFeed,
		ProvideKafkaConsumer,
		ProvideQueue,
		ProvideScheduler,
		ProvideHandlers,
		ProvideHTTPServer,
		ProvideApp,
	)
	return nil, nil, nil
}

// InitializeEngine wires an engine for one-shot commands.
func InitializeEngine(cfg *config.Config) (*usecase.Engine, func(), error) {
	wire.Build(engineSet)
	return nil, nil, nil
}
