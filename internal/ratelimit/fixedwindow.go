package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// FixedWindow counts events per fixed period using a ulule limiter store.
type FixedWindow struct {
	Store limiter.Store
}

// NewRedisFixedWindow builds a FixedWindow on a Redis store.
func NewRedisFixedWindow(client *redis.Client, prefix string) (FixedWindow, error) {
	store, err := limiterredis.NewStoreWithOptions(client, limiter.StoreOptions{Prefix: prefix})
	if err != nil {
		return FixedWindow{}, fmt.Errorf("ratelimit: redis store: %w", err)
	}
	return FixedWindow{Store: store}, nil
}

// Allow implements Limiter.
func (f FixedWindow) Allow(ctx context.Context, key string, window time.Duration, max int) (bool, int, time.Time, error) {
	if f.Store == nil || max <= 0 || window <= 0 {
		return true, max, time.Now().Add(window), nil
	}
	lim := limiter.New(f.Store, limiter.Rate{Period: window, Limit: int64(max)})
	res, err := lim.Get(ctx, key)
	if err != nil {
		return false, 0, time.Now().Add(window), err
	}
	return !res.Reached, int(res.Remaining), time.Unix(res.Reset, 0).UTC(), nil
}

// New returns the limiter for strategy ("fixed" or "sliding").
func New(strategy string, client *redis.Client, prefix string) (Limiter, error) {
	switch strategy {
	case "fixed":
		return NewRedisFixedWindow(client, prefix)
	case "", "sliding":
		sw := SlidingWindow{Prefix: prefix}
		if client != nil {
			sw.Client = client
		}
		return sw, nil
	default:
		return nil, fmt.Errorf("ratelimit: unknown strategy %q", strategy)
	}
}
