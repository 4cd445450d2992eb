package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/toko-apparel/internal/obs"
)

// Cache stores JSON snapshots in Redis and reports hits and misses under its name.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	name   string
}

// New constructs a cache helper. A nil client disables caching.
func New(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl, name: "default"}
}

// Named returns a copy of the cache that reports metrics under name.
func (c *Cache) Named(name string) *Cache {
	if c == nil {
		return nil
	}
	cp := *c
	cp.name = name
	return &cp
}

// WithTTL returns a copy of the cache that stores entries for ttl.
func (c *Cache) WithTTL(ttl time.Duration) *Cache {
	if c == nil {
		return nil
	}
	cp := *c
	cp.ttl = ttl
	return &cp
}

// GetJSON unmarshals a cached JSON payload into dst. It reports whether the key existed.
func (c *Cache) GetJSON(ctx context.Context, key string, dst any) (bool, error) {
	if c == nil || c.client == nil || key == "" {
		return false, nil
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			obs.ObserveCache(c.name, false)
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, err
	}
	obs.ObserveCache(c.name, true)
	return true, nil
}

// SetJSON serialises v as JSON and stores it with the configured TTL.
func (c *Cache) SetJSON(ctx context.Context, key string, v any) error {
	if c == nil || c.client == nil || key == "" || c.ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, c.ttl).Err()
}

// Delete removes the given keys.
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if c == nil || c.client == nil || len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}
