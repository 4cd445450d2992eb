package health

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/noah-isme/toko-apparel/internal/common"
	"github.com/noah-isme/toko-apparel/internal/resilience"
)

// Checker represents dependencies that can be probed for readiness.
type Checker interface {
	PingDB(ctx context.Context, timeout time.Duration) error
	PingRedis(ctx context.Context, timeout time.Duration) error
}

// UpstreamPinger probes the storefront backend.
type UpstreamPinger interface {
	Ping(ctx context.Context) error
}

// CircuitReporter exposes a circuit breaker state. An open circuit is reported
// but does not fail readiness, since cached catalog reads still work.
type CircuitReporter interface {
	Snapshot() resilience.Snapshot
}

var ready atomic.Bool

func init() { ready.Store(true) }

// SetReady flips the readiness flag. Shutdown sets it to false before draining.
func SetReady(v bool) { ready.Store(v) }

// Handler exposes HTTP handlers for health endpoints.
type Handler struct {
	Checker         Checker
	Upstream        UpstreamPinger
	Circuits        []CircuitReporter
	DBTimeout       time.Duration
	RedisTimeout    time.Duration
	UpstreamTimeout time.Duration
}

// Live reports liveness status.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready reports readiness based on dependency probes.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if !ready.Load() {
		common.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "shutting_down"})
		return
	}
	if h.Checker == nil {
		common.JSONError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "dependencies unavailable", nil)
		return
	}
	ctx := r.Context()
	status := map[string]string{
		"db":    probe(h.Checker.PingDB(ctx, timeoutOr(h.DBTimeout, 500*time.Millisecond))),
		"redis": probe(h.Checker.PingRedis(ctx, timeoutOr(h.RedisTimeout, 300*time.Millisecond))),
	}
	if h.Upstream != nil {
		uctx, cancel := context.WithTimeout(ctx, timeoutOr(h.UpstreamTimeout, time.Second))
		status["upstream"] = probe(h.Upstream.Ping(uctx))
		cancel()
	}
	code := http.StatusOK
	for _, s := range status {
		if s != "ok" {
			code = http.StatusServiceUnavailable
			break
		}
	}
	for _, c := range h.Circuits {
		snap := c.Snapshot()
		status["circuit_"+snap.Target] = snap.StateName
	}
	common.JSON(w, code, status)
}

func probe(err error) string {
	if err != nil {
		return err.Error()
	}
	return "ok"
}

func timeoutOr(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
