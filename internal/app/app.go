package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/utafrali/review-service/internal/access"
	"github.com/utafrali/review-service/internal/auth"
	"github.com/utafrali/review-service/internal/cache"
	"github.com/utafrali/review-service/internal/config"
	"github.com/utafrali/review-service/internal/domain"
	"github.com/utafrali/review-service/internal/event"
	handler "github.com/utafrali/review-service/internal/handler/http"
	"github.com/utafrali/review-service/internal/peer"
	"github.com/utafrali/review-service/internal/rating"
	"github.com/utafrali/review-service/internal/repository/postgres"
	"github.com/utafrali/review-service/internal/service"
	"github.com/utafrali/review-service/migrations"
	"github.com/utafrali/review-service/pkg/database"
	"github.com/utafrali/review-service/pkg/health"
	"github.com/utafrali/review-service/pkg/httpclient"
	pkgkafka "github.com/utafrali/review-service/pkg/kafka"
	"github.com/utafrali/review-service/pkg/middleware"
	"github.com/utafrali/review-service/pkg/tracing"
)

// ServiceName identifies the service in logs, metrics and traces.
const ServiceName = "review-service"

// Version is reported to the tracing backend. Set at build time via -ldflags.
var Version = "0.1.0"

// App wires together all dependencies and runs the review service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	redis          *redis.Client
	producer       *pkgkafka.Producer
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    ServiceName,
		ServiceVersion: Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	verifier, err := auth.NewVerifier(auth.Config{
		Algorithm:     cfg.JWTAlgorithm,
		Secret:        cfg.JWTSecret,
		PublicKeyFile: cfg.JWTPublicKeyFile,
		Issuer:        cfg.JWTIssuer,
		Audience:      cfg.JWTAudience,
	})
	if err != nil {
		return nil, fmt.Errorf("init token verifier: %w", err)
	}

	pool, err := connectPostgres(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := database.RegisterPoolMetrics(reg, pool, ServiceName); err != nil {
		pool.Close()
		return nil, fmt.Errorf("register pool metrics: %w", err)
	}

	// Run database migrations.
	if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations completed")

	// Configure slow query logging.
	if cfg.SlowQueryThresholdMs > 0 {
		database.SetSlowQueryLogging(time.Duration(cfg.SlowQueryThresholdMs)*time.Millisecond, logger)
	}

	// Redis backs the entity cache only; the service runs without it.
	var (
		redisClient  *redis.Client
		reviewCache  service.EntityCache[domain.Review]
		commentCache service.EntityCache[domain.Comment]
	)
	if cfg.CacheEnabled() {
		redisClient, err = database.NewRedisClient(ctx, database.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPass,
			DB:       cfg.RedisDB,
			PoolSize: cfg.RedisPoolSize,
		})
		if err != nil {
			logger.Warn("redis unavailable, entity cache disabled",
				slog.String("addr", cfg.RedisAddr),
				slog.String("error", err.Error()),
			)
			redisClient = nil
		} else {
			cacheMetrics := cache.NewMetrics(reg)
			fence := time.Duration(cfg.HTTPRequestTimeoutSec) * time.Second
			reviewCache = cache.New[domain.Review](redisClient, "review", cfg.CacheTTL(), cacheMetrics).WithFence(fence)
			commentCache = cache.New[domain.Comment](redisClient, "comment", cfg.CacheTTL(), cacheMetrics).WithFence(fence)
			logger.Info("entity cache enabled",
				slog.String("addr", cfg.RedisAddr),
				slog.Duration("ttl", cfg.CacheTTL()),
			)
		}
	}

	// Initialize Kafka producer.
	producer := pkgkafka.NewProducer(pkgkafka.ProducerConfig{
		Brokers:      cfg.KafkaBrokers,
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
	}, pkgkafka.NewProducerMetrics(reg), logger)
	logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))

	// Peer clients. Business calls carry rating deltas and are never
	// retried; notifications are idempotent enough to retry.
	breakerMetrics := httpclient.NewBreakerMetrics(reg)
	peerMetrics := peer.NewMetrics(reg)

	businessDoer := httpclient.NewCircuitBreakerClient(
		httpclient.New(peerHTTPConfig(cfg.BusinessTimeout(), 0)),
		breakerConfig(cfg, peer.BusinessService),
		breakerMetrics,
		logger,
	)
	notificationDoer := httpclient.NewCircuitBreakerClient(
		httpclient.New(peerHTTPConfig(cfg.NotificationTimeout(), cfg.PeerMaxRetries)),
		breakerConfig(cfg, peer.NotificationService),
		breakerMetrics,
		logger,
	)
	businessClient := peer.NewBusinessClient(cfg.BusinessServiceURL, businessDoer, cfg.BusinessTimeout(), peerMetrics)
	notificationClient := peer.NewNotificationClient(cfg.NotificationServiceURL, notificationDoer, cfg.NotificationTimeout(), peerMetrics)

	// Build the dependency graph.
	reviewRepo := postgres.NewReviewRepository(pool)
	commentRepo := postgres.NewCommentRepository(pool)
	eventProducer := event.NewProducer(producer, logger)
	policy := access.DefaultPolicy()
	serviceMetrics := service.NewMetrics(reg)

	reviewService := service.NewReviewService(
		reviewRepo,
		rating.NewReconciler(businessClient, reviewRepo, logger),
		policy,
		notificationClient,
		eventProducer,
		reviewCache,
		serviceMetrics,
		logger,
	)
	commentService := service.NewCommentService(
		commentRepo,
		policy,
		notificationClient,
		eventProducer,
		commentCache,
		serviceMetrics,
		logger,
	)

	// Health checks.
	healthHandler := health.NewHandler()
	healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthHandler.RegisterNonCritical("kafka", func(ctx context.Context) error {
		return producer.Ping(ctx)
	})
	if redisClient != nil {
		healthHandler.RegisterNonCritical("redis", func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}

	// HTTP router.
	router := handler.NewRouter(
		reviewService,
		commentService,
		commentRepo,
		verifier.Validate,
		healthHandler,
		handler.RouterOptions{
			ServiceName:    ServiceName,
			HTTPMetrics:    middleware.NewHTTPMetrics(reg, ServiceName),
			Gatherer:       reg,
			PprofCIDRs:     cfg.PprofAllowedCIDRs,
			CORS:           middleware.CORSConfig{AllowedOrigins: cfg.CORSAllowedOrigins},
			RequestTimeout: time.Duration(cfg.HTTPRequestTimeoutSec) * time.Second,
			WriteRateLimit: middleware.RateLimitConfig{
				RPS:   cfg.RateLimitRPS,
				Burst: cfg.RateLimitBurst,
			},
		},
		logger,
	)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      time.Duration(cfg.HTTPRequestTimeoutSec+5) * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		pool:           pool,
		redis:          redisClient,
		producer:       producer,
		httpServer:     httpServer,
		tracerShutdown: tracerShutdown,
	}, nil
}

func connectPostgres(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	pgCfg := database.PostgresConfig{
		Host:            cfg.PostgresHost,
		Port:            cfg.PostgresPort,
		User:            cfg.PostgresUser,
		Password:        cfg.PostgresPass,
		DBName:          cfg.PostgresDB,
		SSLMode:         cfg.PostgresSSL,
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		MaxConnLifetime: time.Duration(cfg.DBMaxConnLifetimeMins) * time.Minute,
		MaxConnIdleTime: time.Duration(cfg.DBMaxConnIdleTimeMins) * time.Minute,
	}

	pool, err := database.NewPostgresPool(ctx, &pgCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)
	return pool, nil
}

func peerHTTPConfig(timeout time.Duration, retries int) httpclient.Config {
	return httpclient.Config{
		Timeout:         timeout,
		MaxRetries:      retries,
		RetryWaitMin:    100 * time.Millisecond,
		RetryWaitMax:    time.Second,
		MaxConnsPerHost: 100,
	}
}

func breakerConfig(cfg *config.Config, name string) httpclient.CircuitBreakerConfig {
	return httpclient.CircuitBreakerConfig{
		Name:         name,
		MaxRequests:  cfg.CBMaxRequests,
		Interval:     time.Duration(cfg.CBInterval) * time.Second,
		Timeout:      time.Duration(cfg.CBTimeout) * time.Second,
		FailureRatio: cfg.CBFailureRatio,
		MinRequests:  cfg.CBMinRequests,
	}
}

// ListMigrations writes the embedded migration file names to w in the order
// they are applied.
func ListMigrations(w io.Writer) error {
	names, err := database.PendingMigrations(migrations.FS)
	if err != nil {
		return err
	}
	for _, name := range names {
		fmt.Fprintln(w, name)
	}
	return nil
}

// Migrate applies the embedded schema migrations and returns.
func Migrate(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	pool, err := connectPostgres(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations completed")
	return nil
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return errors.Join(err, a.Shutdown())
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components in the correct order:
// 1. HTTP server (drain in-flight requests)
// 2. Tracer (flush pending spans from drained requests)
// 3. Kafka producer
// 4. Redis client
// 5. PostgreSQL pool
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

	if err := a.producer.Close(); err != nil {
		a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		errs = append(errs, err)
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
