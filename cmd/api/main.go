package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/hmpv-lab-platform/cmd/mainconfig"
	"github.com/wolfman30/hmpv-lab-platform/internal/api/router"
	"github.com/wolfman30/hmpv-lab-platform/internal/app/bootstrap"
	"github.com/wolfman30/hmpv-lab-platform/internal/auth"
	appconfig "github.com/wolfman30/hmpv-lab-platform/internal/config"
	"github.com/wolfman30/hmpv-lab-platform/internal/events"
	"github.com/wolfman30/hmpv-lab-platform/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/hmpv-lab-platform/internal/http/middleware"
	"github.com/wolfman30/hmpv-lab-platform/internal/labtests"
	"github.com/wolfman30/hmpv-lab-platform/internal/latency"
	"github.com/wolfman30/hmpv-lab-platform/internal/notify"
	"github.com/wolfman30/hmpv-lab-platform/internal/observability/metrics"
	"github.com/wolfman30/hmpv-lab-platform/internal/reportfiles"
	"github.com/wolfman30/hmpv-lab-platform/internal/storage"
	"github.com/wolfman30/hmpv-lab-platform/pkg/logging"
)

const devJWTSecret = "dev-only-secret"

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting hmpv-lab API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"storage", cfg.StorageBackend,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	pipelineCtx, stopPipeline := context.WithCancel(context.Background())
	a.pipeline.Start(pipelineCtx)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      a.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	// Stop the event pipeline after HTTP so in-flight requests can still emit.
	stopPipeline()
	a.pipeline.Wait()
	if dropped := a.pipeline.Dispatcher.Dropped(); dropped > 0 {
		logger.Warn("events dropped during run", "count", dropped)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// app is the fully wired API.
type app struct {
	handler  http.Handler
	store    *labtests.Store
	pipeline *bootstrap.EventPipeline
	closers  []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func setupMetrics() (http.Handler, *metrics.LabMetrics, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewLabMetrics(reg)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), m, reg
}

func needsAWS(cfg *appconfig.Config) bool {
	return strings.TrimSpace(cfg.ReportsBucket) != "" ||
		strings.TrimSpace(cfg.EventsQueueURL) != "" ||
		strings.EqualFold(strings.TrimSpace(cfg.EmailProvider), "ses")
}

func buildApp(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (_ *app, err error) {
	if cfg.Env == "production" && cfg.JWTSecret == devJWTSecret {
		return nil, fmt.Errorf("JWT_SECRET must be set in production")
	}

	a := &app{}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	metricsHandler, labMetrics, registry := setupMetrics()

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		a.closers = append(a.closers, func() { _ = redisClient.Close() })
	}
	pool, err := bootstrap.BuildPostgresPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if pool != nil {
		a.closers = append(a.closers, pool.Close)
	}

	st, err := bootstrap.BuildStorage(cfg, redisClient, pool, logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() {
		if err := st.Close(); err != nil {
			logger.Warn("storage close failed", "error", err)
		}
	})

	var (
		s3Client  reportfiles.S3API
		sqsClient events.SQSAPI
		sesClient notify.SESAPI
	)
	if needsAWS(cfg) {
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		s3Client, sqsClient, sesClient = awsClients(awsCfg, cfg)
	}

	files := reportfiles.NewStore(s3Client, cfg.ReportsBucket, logger)
	email, emailKind := bootstrap.BuildEmailSender(cfg, sesClient, logger)

	deps := bootstrap.EventDeps{Email: email}
	if sqsClient != nil {
		deps.SQS = sqsClient
	}
	if pool != nil {
		deps.Outbox = pool
	}
	pipeline, err := bootstrap.BuildEventPipeline(cfg, deps, logger)
	if err != nil {
		return nil, err
	}
	a.pipeline = pipeline
	a.closers = append(a.closers, func() {
		if err := pipeline.Close(); err != nil {
			logger.Warn("event transports close failed", "error", err)
		}
	})
	logger.Info("event pipeline ready",
		"transports", pipeline.Transports,
		"outbox", pipeline.Deliverer != nil,
		"email", emailKind,
	)

	var delays latency.Profile
	if cfg.SimulatedLatency {
		delays = latency.Demo()
	}

	store := labtests.NewStore(labtests.NewAdapter(st.Backend),
		labtests.WithLogger(logger),
		labtests.WithMetrics(labMetrics),
		labtests.WithEventSink(pipeline.Dispatcher),
		labtests.WithLatency(delays),
		labtests.WithResync(cfg.StoreResync),
	)
	if err := store.Open(ctx); err != nil {
		return nil, fmt.Errorf("open lab store: %w", err)
	}
	a.store = store

	provider := auth.NewProvider(
		auth.DemoCredentials(cfg.AdminEmail, cfg.PatientEmail, cfg.DemoPassword),
		auth.NewSessionStore(st.Backend, cfg.SessionPrefix),
		auth.NewIssuer(cfg.JWTSecret, cfg.TokenTTL),
		auth.WithLogger(logger),
		auth.WithMetrics(labMetrics),
		auth.WithLatency(delays),
	)

	limiter := httpmiddleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	a.closers = append(a.closers, limiter.Stop)

	a.handler = router.New(&router.Config{
		Logger:             logger,
		Metrics:            labMetrics,
		Lab:                handlers.NewLabHandler(store, files, logger),
		Auth:               handlers.NewAuthHandler(provider, logger),
		Admin:              handlers.NewAdminHandler(store, files, registry, logger),
		Verifier:           provider,
		HealthChecks:       healthChecks(st.Backend, redisClient, pool),
		MetricsHandler:     metricsHandler,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		AuthRateLimiter:    limiter,
	})
	return a, nil
}

func awsClients(awsCfg aws.Config, cfg *appconfig.Config) (reportfiles.S3API, events.SQSAPI, notify.SESAPI) {
	return mainconfig.NewS3Client(awsCfg, cfg), sqs.NewFromConfig(awsCfg), sesv2.NewFromConfig(awsCfg)
}

func healthChecks(backend storage.Backend, redisClient *redis.Client, pool *pgxpool.Pool) []handlers.HealthChecker {
	checks := []handlers.HealthChecker{
		handlers.HealthCheckFunc{Label: "storage", Fn: func(ctx context.Context) error {
			_, err := backend.Get(ctx, labtests.KeyAppointments)
			if errors.Is(err, storage.ErrNotFound) {
				return nil
			}
			return err
		}},
	}
	if redisClient != nil {
		checks = append(checks, handlers.HealthCheckFunc{Label: "redis", Fn: func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}})
	}
	if pool != nil {
		checks = append(checks, handlers.HealthCheckFunc{Label: "postgres", Fn: pool.Ping})
	}
	return checks
}
