package ratelimit

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/noah-isme/toko-apparel/internal/common"
	"github.com/noah-isme/toko-apparel/internal/obs"
)

// Limiter decides whether one more event fits in the window for key.
type Limiter interface {
	Allow(ctx context.Context, key string, window time.Duration, max int) (allowed bool, remaining int, reset time.Time, err error)
}

// Config describes one limit: how requests are keyed and how many fit per window.
type Config struct {
	// Name labels rejections in metrics, e.g. "api" or "orders".
	Name   string
	Key    func(*http.Request) string
	Window time.Duration
	Max    int
}

// Handler enforces a Config in front of the next handler.
type Handler struct {
	Limiter Limiter
	Config  Config
	OnError func(error)
}

// Middleware sets X-RateLimit-* headers on every response and answers 429
// with Retry-After once the key is over budget. Limiter failures fail open.
func (h Handler) Middleware(next http.Handler) http.Handler {
	if h.Config.Key == nil || h.Limiter == nil || h.Config.Max <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, remaining, resetAt, err := h.Limiter.Allow(r.Context(), h.Config.Key(r), h.Config.Window, h.Config.Max)
		if err != nil {
			if h.OnError != nil {
				h.OnError(err)
			}
			next.ServeHTTP(w, r)
			return
		}

		hdr := w.Header()
		hdr.Set("X-RateLimit-Limit", strconv.Itoa(h.Config.Max))
		hdr.Set("X-RateLimit-Remaining", strconv.Itoa(max(remaining, 0)))
		hdr.Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))
		if allowed {
			next.ServeHTTP(w, r)
			return
		}

		retryAfter := retryAfterSeconds(time.Until(resetAt))
		hdr.Set("Retry-After", strconv.Itoa(retryAfter))
		obs.ObserveRateLimited(h.Config.Name)
		common.JSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded",
			map[string]int{"retry_after": retryAfter})
	})
}

// retryAfterSeconds rounds up so clients never retry before the slot frees.
func retryAfterSeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	return max(secs, 1)
}

// ByClientIP keys requests by client address and route group.
func ByClientIP(group string) func(*http.Request) string {
	return func(r *http.Request) string {
		return group + ":ip:" + common.ClientIP(r)
	}
}

// ByUser keys authenticated requests by user and falls back to the client address.
func ByUser(group string) func(*http.Request) string {
	return func(r *http.Request) string {
		if id, ok := common.UserID(r.Context()); ok && strings.TrimSpace(id) != "" {
			return group + ":user:" + id
		}
		return group + ":ip:" + common.ClientIP(r)
	}
}
