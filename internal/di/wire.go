//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"MacroPanel/pkg/config"
	"MacroPanel/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideKafkaProducer,
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideRedisClient,
		ProvideCache,
		ProvideQueue,

		// Repositories
		ProvidePanelStore,
		ProvideScorePublisher,

		// Use cases
		ProvideScoreUseCase,
		ProvideScoreJobs,
		ProvideSplitUseCase,
		ProvideWeightsUseCase,
		ProvideCompositeUseCase,
		ProvideHedgeUseCase,
		ProvideIngestHandler,

		// Transport
		ProvideLimiter,
		ProvidePanelHandler,
		ProvideHTTPServer,
		ProvideKafkaConsumer,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
