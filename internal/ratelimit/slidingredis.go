package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindowScript trims entries older than the window and admits the
// request only while the log holds fewer than limit entries. Rejected calls are
// not recorded, so a client hammering a closed window does not extend it.
// Returns {allowed, remaining, reset_ms}.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
local allowed = 0
if count < limit then
  redis.call('ZADD', key, now, ARGV[4])
  count = count + 1
  allowed = 1
end
redis.call('PEXPIRE', key, window)

local reset = now + window
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if oldest[2] then
  reset = tonumber(oldest[2]) + window
end
return {allowed, limit - count, reset}
`)

// SlidingWindow is an exact sliding-log limiter kept in a Redis sorted set per key.
type SlidingWindow struct {
	Client redis.Scripter
	Prefix string
	// Now overrides the clock in tests.
	Now func() time.Time
}

// Allow records one request for key when it fits and reports the remaining
// budget. Reset is when the oldest request in the window expires.
func (l SlidingWindow) Allow(ctx context.Context, key string, window time.Duration, max int) (bool, int, time.Time, error) {
	now := time.Now()
	if l.Now != nil {
		now = l.Now()
	}
	if l.Client == nil || max <= 0 || window <= 0 {
		return true, max, now.Add(window), nil
	}

	nowMs := now.UnixMilli()
	res, err := slidingWindowScript.Run(ctx, l.Client,
		[]string{l.Prefix + key},
		nowMs, window.Milliseconds(), max, uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return false, 0, now.Add(window), fmt.Errorf("ratelimit: sliding window: %w", err)
	}
	if len(res) != 3 {
		return false, 0, now.Add(window), fmt.Errorf("ratelimit: sliding window: unexpected reply %v", res)
	}
	return res[0] == 1, int(res[1]), time.UnixMilli(res[2]).UTC(), nil
}
