// Package app wires the search service together: index storage for the
// configured dialect, the Kafka task queue and event ingestion, the catalog
// client, and the HTTP surface.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	_ "modernc.org/sqlite"

	"github.com/shopforge/catalogsearch/internal/catalog"
	"github.com/shopforge/catalogsearch/internal/config"
	"github.com/shopforge/catalogsearch/internal/domain"
	"github.com/shopforge/catalogsearch/internal/event"
	handler "github.com/shopforge/catalogsearch/internal/handler/http"
	"github.com/shopforge/catalogsearch/internal/indexer"
	"github.com/shopforge/catalogsearch/internal/indexer/jobstore"
	"github.com/shopforge/catalogsearch/internal/job"
	"github.com/shopforge/catalogsearch/internal/service"
	"github.com/shopforge/catalogsearch/internal/store"
	"github.com/shopforge/catalogsearch/internal/store/memory"
	mysqlstore "github.com/shopforge/catalogsearch/internal/store/mysql"
	pgstore "github.com/shopforge/catalogsearch/internal/store/postgres"
	sqlitestore "github.com/shopforge/catalogsearch/internal/store/sqlite"
	"github.com/shopforge/catalogsearch/pkg/database"
	apperrors "github.com/shopforge/catalogsearch/pkg/errors"
	"github.com/shopforge/catalogsearch/pkg/health"
	"github.com/shopforge/catalogsearch/pkg/httpclient"
	pkgkafka "github.com/shopforge/catalogsearch/pkg/kafka"
	"github.com/shopforge/catalogsearch/pkg/middleware"
	"github.com/shopforge/catalogsearch/pkg/tracing"
)

// eventConsumerGroup is shared by all catalog event consumers so each topic
// partition is read by exactly one member.
const eventConsumerGroup = "catalogsearch-events"

// App wires together all dependencies and runs the search service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	db             *sql.DB
	redisClient    *redis.Client
	producer       *pkgkafka.Producer
	dlq            *pkgkafka.DLQProducer
	buffer         *job.Buffer
	taskConsumer   *pkgkafka.Consumer
	eventConsumers []*pkgkafka.Consumer
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}

	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    "catalogsearch",
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SampleRate:     1.0,
		Enabled:        cfg.OTLPEndpoint != "",
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	a.tracerShutdown = tracerShutdown

	engine, err := a.openEngine(ctx)
	if err != nil {
		return nil, err
	}

	jobs, err := a.openJobStore(ctx)
	if err != nil {
		a.closeStorage()
		return nil, err
	}

	// Kafka producer with connection validation and retry.
	producer := pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
	a.producer = producer
	if err := pingKafkaWithRetry(ctx, producer, logger); err != nil {
		logger.Warn("kafka producer ping failed after retries, continuing in degraded mode",
			slog.String("error", err.Error()),
		)
	} else {
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}
	a.dlq = pkgkafka.NewDLQProducer(cfg.KafkaBrokers, logger)

	// Task queue with the debounce buffer in front of it.
	queue := job.NewQueue(producer)
	a.buffer = job.NewBuffer(queue, logger,
		job.WithDebounce(time.Duration(cfg.BufferDebounceMillis)*time.Millisecond),
		job.WithMaxHold(time.Duration(cfg.BufferMaxHoldMillis)*time.Millisecond),
	)

	// Catalog service client behind a circuit breaker.
	catalogHTTP := httpclient.NewCircuitBreakerClient(
		httpclient.New(httpclient.DefaultConfig()),
		httpclient.DefaultCircuitBreakerConfig("catalog"),
		logger,
	)
	catalogClient := catalog.NewClient(cfg.CatalogServiceURL, catalogHTTP, logger)

	secret := []byte(cfg.SessionSecret)

	// The indexer consumes maintenance tasks from the single-partition
	// task topic; failed tasks land on the dead-letter topic.
	ix := indexer.New(engine, catalogClient, jobs, secret, logger)
	a.taskConsumer = indexer.NewTaskConsumer(cfg.KafkaBrokers, ix, a.dlq, logger)

	// Catalog events feed the debounce buffer. Redelivered events are
	// deduplicated before they reach the ingester.
	ingester := event.NewIngester(a.buffer, secret, cfg.DefaultChannelID, cfg.DefaultLanguageCode, logger)
	idempotency := pkgkafka.NewMemoryIdempotencyStore(24 * time.Hour)
	for _, topic := range event.Topics() {
		consumer := pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
			Brokers: cfg.KafkaBrokers,
			GroupID: eventConsumerGroup,
			Topic:   topic,
		}, pkgkafka.IdempotentHandler(idempotency, ingester.Handler(), logger), logger).WithDLQ(a.dlq)
		a.eventConsumers = append(a.eventConsumers, consumer)
	}

	searchService := service.NewSearchService(engine, catalogClient, queue, jobs, secret, logger)

	healthHandler := health.NewHandler()
	a.registerHealthChecks(healthHandler)

	router := handler.NewRouter(
		searchService,
		handler.Defaults{
			ChannelID:    cfg.DefaultChannelID,
			LanguageCode: cfg.DefaultLanguageCode,
			CurrencyCode: cfg.DefaultCurrencyCode,
		},
		sessionTokenValidator(secret),
		healthHandler,
		corsConfig(cfg),
		logger,
	)

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

// openEngine opens the index store for the configured dialect.
func (a *App) openEngine(ctx context.Context) (store.Engine, error) {
	cfg := a.cfg

	switch cfg.Dialect {
	case config.DialectPostgres:
		pgCfg := database.DefaultPostgresConfig()
		pgCfg.Host = cfg.PostgresHost
		pgCfg.Port = cfg.PostgresPort
		pgCfg.User = cfg.PostgresUser
		pgCfg.Password = cfg.PostgresPassword
		pgCfg.DBName = cfg.PostgresDB
		pgCfg.SSLMode = cfg.PostgresSSLMode

		pool, err := database.NewPostgresPool(ctx, &pgCfg, a.logger)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		a.pool = pool
		database.RegisterPoolMetrics(pool, "catalogsearch")

		if err := database.RunMigrations(ctx, pool, pgstore.Migrations, a.logger); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		a.logger.Info("index storage ready",
			slog.String("dialect", "postgres"),
			slog.String("host", cfg.PostgresHost),
			slog.String("database", cfg.PostgresDB),
		)
		return pgstore.New(pool), nil

	case config.DialectMySQL:
		db, err := sql.Open("mysql", cfg.MySQLDSN)
		if err != nil {
			return nil, fmt.Errorf("open mysql: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ping mysql: %w", err)
		}
		a.db = db

		engine := mysqlstore.New(db)
		if err := engine.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure mysql schema: %w", err)
		}
		a.logger.Info("index storage ready", slog.String("dialect", "mysql"))
		return engine, nil

	case config.DialectSQLite:
		db, err := sql.Open("sqlite", cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		// modernc.org/sqlite serializes writers; a single connection
		// avoids lock contention errors under concurrent writes.
		db.SetMaxOpenConns(1)
		a.db = db

		engine := sqlitestore.New(db)
		if err := engine.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure sqlite schema: %w", err)
		}
		a.logger.Info("index storage ready",
			slog.String("dialect", "sqlite"),
			slog.String("path", cfg.SQLitePath),
		)
		return engine, nil

	case config.DialectMemory:
		a.logger.Warn("index storage ready", slog.String("dialect", "memory"),
			slog.String("note", "index is lost on restart"))
		return memory.New(), nil

	default:
		return nil, fmt.Errorf("%w: %q", apperrors.ErrUnsupportedDialect, cfg.Dialect)
	}
}

// openJobStore opens the job progress store. Without Redis, progress records
// live in process memory and are lost on restart.
func (a *App) openJobStore(ctx context.Context) (jobstore.Store, error) {
	if a.cfg.RedisAddr == "" {
		a.logger.Info("no redis configured, job progress kept in memory")
		return jobstore.NewMemoryStore(), nil
	}

	client, err := database.NewRedisClient(ctx, &database.RedisConfig{
		Addr:     a.cfg.RedisAddr,
		Password: a.cfg.RedisPassword,
		DB:       a.cfg.RedisDB,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	a.redisClient = client
	a.logger.Info("job progress stored in redis", slog.String("addr", a.cfg.RedisAddr))
	return jobstore.NewRedisStore(client), nil
}

func (a *App) registerHealthChecks(h *health.Handler) {
	if a.pool != nil {
		h.Register("postgres", func(ctx context.Context) error {
			return a.pool.Ping(ctx)
		})
	}
	if a.db != nil {
		h.Register(string(a.cfg.Dialect), func(ctx context.Context) error {
			return a.db.PingContext(ctx)
		})
	}
	if a.redisClient != nil {
		h.Register("redis", func(ctx context.Context) error {
			return a.redisClient.Ping(ctx).Err()
		})
	}
	h.Register("kafka", func(ctx context.Context) error {
		return a.producer.Ping(ctx)
	})
}

// sessionTokenValidator verifies admin bearer tokens. Admin tokens are the
// same signed session tokens that queued tasks carry.
func sessionTokenValidator(secret []byte) middleware.TokenValidator {
	return func(token string) (*middleware.Claims, error) {
		sc, err := domain.VerifySession(secret, token)
		if err != nil {
			return nil, err
		}
		return &middleware.Claims{ActorID: sc.ActorID, Permissions: sc.Permissions}, nil
	}
}

func corsConfig(cfg *config.Config) middleware.CORSConfig {
	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.CORSAllowedOrigins
	corsCfg.Environment = cfg.Environment
	return corsCfg
}

// Run starts the HTTP server and Kafka consumers, then blocks until the
// context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 2+len(a.eventConsumers))

	go func() {
		a.logger.Info("starting HTTP server", slog.String("addr", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	go func() {
		if err := a.taskConsumer.Start(ctx); err != nil {
			errCh <- fmt.Errorf("task consumer: %w", err)
		}
	}()

	for _, consumer := range a.eventConsumers {
		go func() {
			if err := consumer.Start(ctx); err != nil {
				errCh <- fmt.Errorf("event consumer: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components: the HTTP server drains first,
// then the buffer flushes pending tasks onto the queue before the producer
// closes, and storage closes last.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	for _, consumer := range a.eventConsumers {
		if err := consumer.Close(); err != nil {
			a.logger.Error("event consumer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	// Flush buffered tasks before the producer goes away.
	bufferCtx, bufferCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer bufferCancel()
	a.buffer.Close(bufferCtx)

	if err := a.taskConsumer.Close(); err != nil {
		a.logger.Error("task consumer close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if err := a.dlq.Close(); err != nil {
		a.logger.Error("dlq producer close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}
	if err := a.producer.Close(); err != nil {
		a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closeStorage()

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

func (a *App) closeStorage() {
	if a.pool != nil {
		a.pool.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}

// pingKafkaWithRetry attempts to ping the Kafka producer with exponential
// backoff (3 attempts, 1s/2s/4s with ±25% jitter).
func pingKafkaWithRetry(ctx context.Context, producer *pkgkafka.Producer, logger *slog.Logger) error {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if err := producer.Ping(ctx); err == nil {
			return nil
		} else {
			lastErr = err
		}
		if attempt < 2 {
			base := time.Duration(1<<uint(attempt)) * time.Second
			jitter := time.Duration(float64(base) * 0.25 * (2*rand.Float64() - 1)) // #nosec G404 -- non-cryptographic jitter for retry backoff
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
	}
	return fmt.Errorf("kafka producer ping failed after 3 attempts: %w", lastErr)
}
