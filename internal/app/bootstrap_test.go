package app

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/noah-isme/toko-apparel/internal/config"
)

func TestNewRedisAndReadiness(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	rdb, err := NewRedis(ctx, "redis://"+mr.Addr()+"/0", nil, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })

	r := Readiness{Redis: rdb}
	require.NoError(t, r.PingRedis(ctx, 100*time.Millisecond))
	require.EqualError(t, r.PingDB(ctx, 100*time.Millisecond), "db not configured")

	mr.Close()
	require.Error(t, r.PingRedis(ctx, 100*time.Millisecond))
}

func TestNewRedisWithMeterProvider(t *testing.T) {
	require.Nil(t, MeterProvider(false))
	require.NotNil(t, MeterProvider(true))

	mr := miniredis.RunT(t)
	rdb, err := NewRedis(context.Background(), "redis://"+mr.Addr(), noop.NewMeterProvider(), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })
	require.NoError(t, rdb.Set(context.Background(), "k", "v", 0).Err())
}

func TestNewRedisRejectsBadURL(t *testing.T) {
	_, err := NewRedis(context.Background(), "http://nope", nil, zerolog.Nop())
	require.Error(t, err)
}

func TestTaskRedis(t *testing.T) {
	opt, err := TaskRedis("redis://localhost:6379/3")
	require.NoError(t, err)
	client, ok := opt.(asynq.RedisClientOpt)
	require.True(t, ok)
	require.Equal(t, "localhost:6379", client.Addr)
	require.Equal(t, 3, client.DB)
}

func TestNewUpstreamAndCatalog(t *testing.T) {
	cfg, err := config.LoadForTests(map[string]string{
		"DATABASE_URL":      "postgres://localhost/toko",
		"REDIS_URL":         "redis://localhost:6379",
		"JWT_SECRET":        "secret",
		"UPSTREAM_BASE_URL": "http://backend.test/api",
	})
	require.NoError(t, err)

	up, err := NewUpstream(cfg, zerolog.Nop())
	require.NoError(t, err)
	require.NotNil(t, up)

	mr := miniredis.RunT(t)
	rdb, err := NewRedis(context.Background(), "redis://"+mr.Addr(), nil, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })

	svc, err := NewCatalog(cfg, up, rdb, zerolog.Nop())
	require.NoError(t, err)
	require.NotNil(t, svc)
}
