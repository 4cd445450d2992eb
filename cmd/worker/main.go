package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"github.com/noah-isme/toko-apparel/internal/app"
	"github.com/noah-isme/toko-apparel/internal/config"
	"github.com/noah-isme/toko-apparel/internal/lock"
	"github.com/noah-isme/toko-apparel/internal/obs"
	"github.com/noah-isme/toko-apparel/internal/resilience"
	"github.com/noah-isme/toko-apparel/internal/tasks"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("component", "worker").Logger()
	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "toko_apparel")
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)
	resilience.RegisterMetrics(metricsNamespace, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	redisClient, err := app.NewRedis(ctx, cfg.RedisURL, app.MeterProvider(false), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	backend, err := app.NewUpstream(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise upstream client")
	}
	catalogService, err := app.NewCatalog(cfg, backend, redisClient, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise catalog service")
	}

	taskRedis, err := app.TaskRedis(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("task redis")
	}
	srv := asynq.NewServer(taskRedis, asynq.Config{
		Concurrency:     cfg.WorkerConcurrency,
		ShutdownTimeout: 10 * time.Second,
		Logger:          asynqLogger{logger: logger},
		ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, task *asynq.Task, err error) {
			logger.Error().Err(err).Str("task", task.Type()).Msg("task_failed")
		}),
	})

	mux := tasks.NewMux(tasks.CatalogWarmer{
		Catalog: catalogService,
		Locker:  lock.Locker{Client: redisClient, Prefix: "lock:"},
		LockTTL: cfg.WarmLockTTL,
		Logger:  logger,
	})

	var metricsServer *http.Server
	if envBool("OBS_ENABLE_PROMETHEUS", true) {
		metricsServer = obs.NewMetricsServer(envOrDefault("WORKER_METRICS_ADDR", ":9091"), nil)
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("metrics server")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsServer.Shutdown(shutdownCtx)
		}()
	}

	logger.Info().Int("concurrency", cfg.WorkerConcurrency).Msg("worker starting")
	// Run blocks until SIGINT/SIGTERM and drains in-flight tasks.
	if err := srv.Run(mux); err != nil {
		logger.Error().Err(err).Msg("worker stopped with error")
		return
	}
	logger.Info().Msg("worker shutdown complete")
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(envOrDefault(key, strconv.FormatBool(fallback)))
	if err != nil {
		return fallback
	}
	return v
}
