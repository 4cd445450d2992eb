// Package app builds the shared clients used by the api, worker and storectl binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/noah-isme/toko-apparel/internal/cache"
	"github.com/noah-isme/toko-apparel/internal/catalog"
	"github.com/noah-isme/toko-apparel/internal/config"
	"github.com/noah-isme/toko-apparel/internal/obs"
	"github.com/noah-isme/toko-apparel/internal/resilience"
	"github.com/noah-isme/toko-apparel/internal/upstream"
)

// NewPool opens a traced pgx pool and verifies connectivity.
func NewPool(ctx context.Context, databaseURL, appName string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = appName

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// MeterProvider returns the global OpenTelemetry meter provider, or nil when
// metrics are disabled.
func MeterProvider(enabled bool) metric.MeterProvider {
	if !enabled {
		return nil
	}
	return otel.GetMeterProvider()
}

// NewRedis opens a Redis client instrumented with OpenTelemetry. Pool metrics
// are recorded only when meters is non-nil.
func NewRedis(ctx context.Context, redisURL string, meters metric.MeterProvider, logger zerolog.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if meters != nil {
		if err := redisotel.InstrumentMetrics(client, redisotel.WithMeterProvider(meters)); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// TaskRedis converts the Redis URL into asynq connection options.
func TaskRedis(redisURL string) (asynq.RedisConnOpt, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse task redis url: %w", err)
	}
	return opt, nil
}

// NewUpstream builds the backend client with retries and a circuit breaker.
func NewUpstream(cfg *config.Config, logger zerolog.Logger) (*upstream.Client, error) {
	breakerLogger := obs.Component(logger, "breaker")
	breaker := resilience.NewBreaker(resilience.BreakerConfig{
		Target:         "upstream",
		MinRequests:    cfg.BreakerMinRequests,
		FailureRatio:   cfg.BreakerFailureRatio,
		OpenFor:        cfg.BreakerOpenFor,
		Window:         cfg.BreakerWindow,
		HalfOpenProbes: cfg.BreakerProbes,
		Logger:         &breakerLogger,
	})
	return upstream.New(upstream.Config{
		BaseURL:      cfg.UpstreamBaseURL,
		ServiceToken: cfg.UpstreamServiceKey,
		HTTP: resilience.HTTPClient{
			Client:      resilience.NewTracedClient(nil),
			Breaker:     breaker,
			BaseBackoff: cfg.UpstreamBackoffBase,
			MaxAttempts: cfg.UpstreamMaxRetries + 1,
			Jitter:      0.2,
			Timeout:     cfg.UpstreamTimeout,
		},
		Logger: obs.Component(logger, "upstream"),
	})
}

// NewCatalog builds the storefront catalog over the backend and the Redis snapshot cache.
func NewCatalog(cfg *config.Config, source catalog.Source, rdb *redis.Client, logger zerolog.Logger) (*catalog.Service, error) {
	return catalog.NewService(catalog.ServiceConfig{
		Source:           source,
		Cache:            cache.New(rdb, cfg.CatalogCacheTTL),
		PriceScale:       cfg.PriceScale,
		DefaultLimit:     cfg.CatalogDefaultLimit,
		MaxLimit:         cfg.CatalogMaxLimit,
		BestSellersLimit: cfg.BestSellersLimit,
		Logger:           obs.Component(logger, "catalog"),
	})
}

// Readiness probes the database and Redis for the health endpoint.
type Readiness struct {
	DB    *pgxpool.Pool
	Redis *redis.Client
}

// PingDB implements health.Checker.
func (c Readiness) PingDB(ctx context.Context, timeout time.Duration) error {
	if c.DB == nil {
		return errors.New("db not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.DB.Ping(ctx)
}

// PingRedis implements health.Checker.
func (c Readiness) PingRedis(ctx context.Context, timeout time.Duration) error {
	if c.Redis == nil {
		return errors.New("redis not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.Redis.Ping(ctx).Err()
}
