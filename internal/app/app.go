package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	"github.com/utafrali/posledger/internal/config"
	"github.com/utafrali/posledger/internal/event"
	handler "github.com/utafrali/posledger/internal/handler/http"
	"github.com/utafrali/posledger/internal/repository"
	"github.com/utafrali/posledger/internal/repository/postgres"
	redisrepo "github.com/utafrali/posledger/internal/repository/redis"
	"github.com/utafrali/posledger/internal/service"
	"github.com/utafrali/posledger/migrations"
	"github.com/utafrali/posledger/pkg/database"
	"github.com/utafrali/posledger/pkg/health"
	pkgkafka "github.com/utafrali/posledger/pkg/kafka"
	"github.com/utafrali/posledger/pkg/middleware"
	"github.com/utafrali/posledger/pkg/tracing"
)

const serviceName = "posledger"

// App wires together all dependencies and runs the ledger service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	redis          *goredis.Client
	producer       *pkgkafka.Producer
	goodsReceived  *pkgkafka.Consumer
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    serviceName,
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres(), logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)
	database.RegisterPoolMetrics(pool, serviceName)

	if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations completed")

	if cfg.SlowQueryThresholdMs > 0 {
		database.SetSlowQueryLogging(cfg.SlowQueryThreshold(), logger)
	}

	isoLevel, err := postgres.IsolationLevel(cfg.TxIsolation)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("ledger isolation level: %w", err)
	}
	store := postgres.NewStore(pool, isoLevel)

	healthHandler := health.NewHandler()
	healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})

	a := &App{
		cfg:            cfg,
		logger:         logger,
		pool:           pool,
		tracerShutdown: tracerShutdown,
	}

	// Redis is optional: without it checkouts are not deduplicated by key
	// and consumed events are remembered in memory only.
	var idem repository.IdempotencyStore
	var processed pkgkafka.IdempotencyStore = pkgkafka.NewMemoryIdempotencyStore(24 * time.Hour)
	if cfg.RedisEnabled {
		client, err := database.NewRedisClient(ctx, cfg.Redis())
		if err != nil {
			logger.Warn("redis unavailable, idempotency keys disabled",
				slog.String("addr", cfg.Redis().Addr()),
				slog.String("error", err.Error()),
			)
		} else {
			a.redis = client
			idem = redisrepo.NewIdempotencyStore(client)
			processed = redisrepo.NewProcessedEventStore(client, 7*24*time.Hour)
			healthHandler.RegisterNonCritical("redis", func(ctx context.Context) error {
				return client.Ping(ctx).Err()
			})
			logger.Info("connected to Redis", slog.String("addr", cfg.Redis().Addr()))
		}
	}

	var events service.EventPublisher
	if cfg.KafkaEnabled {
		producer := pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		if err := pingKafkaWithRetry(ctx, producer, logger); err != nil {
			logger.Warn("kafka producer ping failed after retries, continuing in degraded mode",
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
		}
		a.producer = producer
		events = event.NewProducer(producer, logger)
		healthHandler.RegisterNonCritical("kafka", func(ctx context.Context) error {
			return producer.Ping(ctx)
		})
	}

	ledgerService := service.NewLedgerService(store, events, logger, cfg.LowStockThreshold)
	catalogService := service.NewCatalogService(store, events, logger)
	checkoutService := service.NewCheckoutService(store, idem, cfg.IdempotencyTTL(), events, logger, cfg.LowStockThreshold)

	if cfg.KafkaEnabled {
		eventConsumer := event.NewConsumer(ledgerService, logger)
		a.goodsReceived = pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
			Brokers:  cfg.KafkaBrokers,
			GroupID:  cfg.KafkaConsumerGroup + "-goods-received",
			Topic:    event.TopicGoodsReceived,
			MinBytes: 1,
			MaxBytes: 10e6,
		}, pkgkafka.IdempotentHandler(processed, eventConsumer.HandleGoodsReceived, logger), logger)
	}

	cors := middleware.DefaultCORSConfig()
	cors.AllowedOrigins = cfg.CORSAllowedOrigins
	router := handler.NewRouter(checkoutService, ledgerService, catalogService, healthHandler, logger, handler.RouterConfig{
		ServiceName: serviceName,
		CORS:        cors,
		PprofCIDRs:  cfg.PprofAllowedCIDRs,
		WriteLimit:  cfg.WriteRateLimit(),
	})

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// Run starts the HTTP server and Kafka consumer, then blocks until the
// context is canceled or a component fails.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 2)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	if a.goodsReceived != nil {
		go func() {
			if err := a.goodsReceived.Start(ctx); err != nil {
				errCh <- fmt.Errorf("goods received consumer: %w", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case runErr = <-errCh:
		a.logger.Error("component failed, shutting down", slog.String("error", runErr.Error()))
	}

	return errors.Join(runErr, a.Shutdown())
}

// Shutdown stops components in order: HTTP server, tracer, Kafka consumer,
// Kafka producer, Redis, PostgreSQL pool.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout())
	defer cancel()

	var errs []error

	if err := a.httpServer.Shutdown(ctx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// Flush spans after the HTTP drain so in-flight request spans are exported.
	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.goodsReceived != nil {
		if err := a.goodsReceived.Close(); err != nil {
			a.logger.Error("goods received consumer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	a.pool.Close()

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

// pingKafkaWithRetry attempts to ping the Kafka producer with exponential
// backoff (3 attempts, 1s/2s/4s with ±25% jitter).
func pingKafkaWithRetry(ctx context.Context, producer *pkgkafka.Producer, logger *slog.Logger) error {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		err := producer.Ping(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt == 2 {
			break
		}
		base := time.Duration(1<<uint(attempt)) * time.Second
		jitter := time.Duration(float64(base) * 0.25 * (2*rand.Float64() - 1)) // #nosec G404 -- retry jitter
		wait := base + jitter
		logger.Warn("kafka producer ping failed, retrying",
			slog.Int("attempt", attempt+1),
			slog.Int("max_attempts", 3),
			slog.Duration("backoff", wait),
			slog.String("error", lastErr.Error()),
		)
		select {
		case <-ctx.Done():
			return fmt.Errorf("kafka ping: context canceled during retry: %w", ctx.Err())
		case <-time.After(wait):
		}
	}
	return fmt.Errorf("kafka producer ping failed after 3 attempts: %w", lastErr)
}
