package di

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"MacroPanel/internal/domain/repository"
	"MacroPanel/internal/handler/api"
	internalrepo "MacroPanel/internal/repository"
	"MacroPanel/internal/service/ratelimit"
	"MacroPanel/internal/usecase"
	"MacroPanel/pkg/cache"
	pkgch "MacroPanel/pkg/clickhouse"
	"MacroPanel/pkg/config"
	xhttp "MacroPanel/pkg/http"
	pkgkafka "MacroPanel/pkg/kafka"
	applogger "MacroPanel/pkg/logger"
	"MacroPanel/pkg/metrics"
	"MacroPanel/pkg/queue"
	"MacroPanel/pkg/server"
)

// jobResultTTL bounds how long a finished score job keeps its result.
const jobResultTTL = 24 * time.Hour

// ProvideLogger builds the root logger. When error collection is enabled the
// collector is attached here, before any component derives a child logger.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	if cfg.Logging.CollectErrors && producer != nil {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   cfg.Logging.CollectInterval,
			CountThreshold: cfg.Logging.CollectThreshold,
			Topic:          cfg.Kafka.LogsTopic,
			Publisher:      producer,
		})
	}
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New(nil)
}

// ProvideClickHouseClient opens ClickHouse, or returns nil when it is disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(pkgch.FromConfig(cfg.ClickHouse)...)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvidePanelStore picks ClickHouse when available and the in-memory store
// otherwise, wraps it in the circuit breaker and creates the schema.
func ProvidePanelStore(cfg *config.Config, ch *pkgch.Client, l *applogger.Logger) (repository.PanelStore, error) {
	var store repository.PanelStore
	if ch != nil {
		chStore := internalrepo.NewCHPanelStore(ch, cfg.ClickHouse.Database, cfg.ClickHouse.BatchSize)
		chStore.SetLogger(l.With("panel_store"))
		store = chStore
	} else {
		l.Warn("clickhouse disabled, observations are kept in memory")
		store = internalrepo.NewMemoryPanelStore()
	}
	if cfg.Breaker.Enabled {
		store = internalrepo.NewBreakerStore(store, cfg.Breaker, l)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("panel schema: %w", err)
	}
	return store, nil
}

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(pkgkafka.ProducerOptions(cfg.Kafka)...)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideScorePublisher returns a nil publisher without a producer.
func ProvideScorePublisher(cfg *config.Config, producer *pkgkafka.Producer) repository.ScorePublisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaScorePublisher(producer, cfg.Kafka.ScoresTopic)
}

// ProvideRedisClient connects to Redis, or returns nil when it is disabled.
func ProvideRedisClient(cfg *config.Config) (*redis.Client, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	client, err := cache.NewRedisClient(cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("redis client: %w", err)
	}
	return client, nil
}

// ProvideCache layers a local LRU over Redis, or uses the LRU alone.
func ProvideCache(cfg *config.Config, client *redis.Client) cache.Service {
	if client == nil {
		return cache.NewMemoryCache(cfg.Redis.MemorySize)
	}
	l2 := cache.NewRedisCache(client, cfg.Redis.KeyPrefix)
	return cache.NewLayeredCache(l2, cfg.Redis.MemorySize, time.Minute)
}

// ProvideQueue builds the score job queue, or nil when the queue is disabled.
func ProvideQueue(cfg *config.Config, client *redis.Client, l *applogger.Logger) *queue.RedisQueue {
	if !cfg.Queue.Enabled || client == nil {
		return nil
	}
	return queue.NewRedisQueue(l, client, cfg.Redis.KeyPrefix, queue.Config{
		Workers:    cfg.Queue.Workers,
		RetryLimit: cfg.Queue.RetryLimit,
		RetryDelay: cfg.Queue.RetryDelay,
	})
}

func ProvideScoreUseCase(
	cfg *config.Config,
	store repository.PanelStore,
	publisher repository.ScorePublisher,
	c cache.Service,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.ScoreUseCase {
	uc := usecase.NewScoreUseCase(store, publisher, c, m, cfg.Scoring, cfg.Redis.CacheTTL)
	uc.SetLogger(l.With("score"))
	return uc
}

// ProvideScoreJobs registers the score job on the queue when there is one.
func ProvideScoreJobs(scores *usecase.ScoreUseCase, q *queue.RedisQueue, c cache.Service) *usecase.ScoreJobs {
	if q == nil {
		return usecase.NewScoreJobs(scores, nil, c, jobResultTTL)
	}
	jobs := usecase.NewScoreJobs(scores, q, c, jobResultTTL)
	q.Register(jobs)
	return jobs
}

func ProvideSplitUseCase(store repository.PanelStore, m repository.Metrics) *usecase.SplitUseCase {
	return usecase.NewSplitUseCase(store, m)
}

func ProvideWeightsUseCase(cfg *config.Config, m repository.Metrics) *usecase.WeightsUseCase {
	return usecase.NewWeightsUseCase(cfg.Scoring.MaxWeight, m)
}

func ProvideCompositeUseCase(store repository.PanelStore, m repository.Metrics, l *applogger.Logger) *usecase.CompositeUseCase {
	uc := usecase.NewCompositeUseCase(store, m)
	uc.SetLogger(l.With("composite"))
	return uc
}

func ProvideHedgeUseCase(store repository.PanelStore, m repository.Metrics) *usecase.HedgeUseCase {
	return usecase.NewHedgeUseCase(store, m)
}

// ProvideLimiter returns nil when rate limiting is disabled.
func ProvideLimiter(cfg *config.Config) *ratelimit.Limiter {
	if !cfg.RateLimit.Enabled {
		return nil
	}
	return ratelimit.New(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
}

func ProvidePanelHandler(
	l *applogger.Logger,
	scores *usecase.ScoreUseCase,
	jobs *usecase.ScoreJobs,
	splits *usecase.SplitUseCase,
	weights *usecase.WeightsUseCase,
	composites *usecase.CompositeUseCase,
	hedges *usecase.HedgeUseCase,
	store repository.PanelStore,
	limiter *ratelimit.Limiter,
) *api.PanelEchoHandler {
	return api.NewPanelEchoHandler(l, api.UseCases{
		Scores:     scores,
		Jobs:       jobs,
		Splits:     splits,
		Weights:    weights,
		Composites: composites,
		Hedges:     hedges,
	}, store, limiter)
}

func ProvideHTTPServer(cfg *config.Config, h *api.PanelEchoHandler, l *applogger.Logger) *xhttp.Server {
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	return xhttp.NewServer([]xhttp.Handler{h},
		xhttp.WithAddress("0.0.0.0", cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithBodyLimit(cfg.Server.BodyLimit),
		xhttp.WithCORS(cfg.Server.CORS),
		xhttp.WithMetricsPath(metricsPath),
		xhttp.WithLogger(l),
	)
}

func ProvideIngestHandler(
	cfg *config.Config,
	store repository.PanelStore,
	c cache.Service,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.ObservationIngestHandler {
	h := usecase.NewObservationIngestHandler(cfg.Kafka.ObservationsTopic, store, c, m)
	h.SetLogger(l.With("ingest"))
	return h
}

// ProvideKafkaConsumer subscribes the ingest handler, or returns nil when
// Kafka is disabled.
func ProvideKafkaConsumer(cfg *config.Config, ingest *usecase.ObservationIngestHandler, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	opts := append(pkgkafka.ConsumerOptions(cfg.Kafka), pkgkafka.WithConsumerLogger(l))
	consumer, err := pkgkafka.NewConsumer(opts...)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.LoggingHook(l.With("ingest")))
	consumer.RegisterHandler(ingest)
	return consumer, nil
}

// ProvideApp assembles the lifecycle: components start in order and stop in
// reverse, then clients are closed. The cache owns the Redis client.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	srv *xhttp.Server,
	consumer *pkgkafka.Consumer,
	q *queue.RedisQueue,
	limiter *ratelimit.Limiter,
	store repository.PanelStore,
	publisher repository.ScorePublisher,
	producer *pkgkafka.Producer,
	c cache.Service,
) *server.App {
	opts := []server.Option{server.WithShutdownTimeout(cfg.Server.ShutdownTimeout)}
	if q != nil {
		opts = append(opts, server.WithComponent(server.Func("queue", q.Start, q.Stop)))
	}
	if consumer != nil {
		opts = append(opts, server.WithComponent(server.Func("kafka_consumer", consumer.Start, consumer.Stop)))
	}
	if limiter != nil {
		opts = append(opts, server.WithComponent(server.Ticker("ratelimit_sweep", time.Minute, func(context.Context) {
			limiter.Sweep()
		})))
	}

	opts = append(opts,
		server.WithCloser("log_collector", func() error { l.RemoveCollector(); return nil }),
		server.WithCloser("panel_store", store.Close),
		server.WithCloser("cache", c.Close),
	)
	switch {
	case publisher != nil:
		opts = append(opts, server.WithCloser("score_publisher", publisher.Close))
	case producer != nil:
		opts = append(opts, server.WithCloser("kafka_producer", producer.Close))
	}
	return server.New(l, srv, opts...)
}
