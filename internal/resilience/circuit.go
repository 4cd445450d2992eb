package resilience

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// ErrOpenCircuit is returned when the circuit breaker refuses a request.
var ErrOpenCircuit = errors.New("resilience: circuit breaker open")

// State represents the current breaker state.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes a Breaker. Zero values fall back to defaults.
type BreakerConfig struct {
	// Target labels metrics and logs, e.g. "upstream".
	Target string
	// MinRequests is the sample size needed before the ratio is evaluated.
	MinRequests int
	// FailureRatio in (0,1] trips the breaker.
	FailureRatio float64
	// OpenFor is the cool-off before probing again.
	OpenFor time.Duration
	// Window resets the closed-state counters periodically. Zero keeps
	// counting until the breaker trips.
	Window time.Duration
	// HalfOpenProbes is how many concurrent probes are let through and how
	// many consecutive successes close the breaker.
	HalfOpenProbes int
	Logger         *zerolog.Logger
}

// Snapshot is a point-in-time view of a breaker.
type Snapshot struct {
	Target    string    `json:"target"`
	State     State     `json:"-"`
	StateName string    `json:"state"`
	Failures  int       `json:"failures"`
	Successes int       `json:"successes"`
	RetryAt   time.Time `json:"retry_at,omitzero"`
}

// Breaker is a failure-ratio circuit breaker. A nil *Breaker allows everything.
type Breaker struct {
	cfg BreakerConfig
	now func() time.Time

	mu             sync.Mutex
	state          State
	failures       int
	successes      int
	windowStart    time.Time
	openedAt       time.Time
	probesInFlight int
	probeOK        int
}

// NewBreaker applies defaults to cfg and returns a closed breaker.
func NewBreaker(cfg BreakerConfig) *Breaker {
	cfg.Target = strings.TrimSpace(cfg.Target)
	if cfg.Target == "" {
		cfg.Target = "default"
	}
	if cfg.MinRequests <= 0 {
		cfg.MinRequests = 1
	}
	if cfg.FailureRatio <= 0 {
		cfg.FailureRatio = 0.5
	}
	if cfg.FailureRatio > 1 {
		cfg.FailureRatio = 1
	}
	if cfg.OpenFor <= 0 {
		cfg.OpenFor = 30 * time.Second
	}
	if cfg.HalfOpenProbes <= 0 {
		cfg.HalfOpenProbes = 1
	}
	b := &Breaker{cfg: cfg, now: time.Now, state: Closed}
	b.windowStart = b.now()
	setStateGauge(cfg.Target, Closed)
	return b
}

// Allow reports whether a request may proceed. An open breaker past its
// cool-off moves to half-open and admits up to HalfOpenProbes requests.
func (b *Breaker) Allow(ctx context.Context) bool {
	if b == nil {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	switch b.state {
	case Open:
		if now.Sub(b.openedAt) < b.cfg.OpenFor {
			return false
		}
		b.transitionLocked(ctx, HalfOpen)
		b.probesInFlight = 1
		return true
	case HalfOpen:
		if b.probesInFlight >= b.cfg.HalfOpenProbes {
			return false
		}
		b.probesInFlight++
		return true
	default:
		if b.cfg.Window > 0 && now.Sub(b.windowStart) >= b.cfg.Window {
			b.failures, b.successes = 0, 0
			b.windowStart = now
		}
		return true
	}
}

// Report records the outcome of an allowed request.
func (b *Breaker) Report(ctx context.Context, success bool) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		return
	case HalfOpen:
		if b.probesInFlight > 0 {
			b.probesInFlight--
		}
		if !success {
			b.transitionLocked(ctx, Open)
			return
		}
		b.probeOK++
		if b.probeOK >= b.cfg.HalfOpenProbes {
			b.transitionLocked(ctx, Closed)
		}
		return
	}

	if success {
		b.successes++
	} else {
		b.failures++
	}
	total := b.failures + b.successes
	if total >= b.cfg.MinRequests && float64(b.failures)/float64(total) >= b.cfg.FailureRatio {
		b.transitionLocked(ctx, Open)
	}
}

// State returns the current state. An open breaker whose cool-off has
// elapsed stays open until the next Allow.
func (b *Breaker) State() State {
	if b == nil {
		return Closed
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Target returns the label used in telemetry.
func (b *Breaker) Target() string {
	if b == nil {
		return "default"
	}
	return b.cfg.Target
}

// Snapshot returns the breaker counters and, when open, the earliest retry time.
func (b *Breaker) Snapshot() Snapshot {
	if b == nil {
		return Snapshot{Target: "default", State: Closed, StateName: Closed.String()}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	s := Snapshot{
		Target:    b.cfg.Target,
		State:     b.state,
		StateName: b.state.String(),
		Failures:  b.failures,
		Successes: b.successes,
	}
	if b.state == Open {
		s.RetryAt = b.openedAt.Add(b.cfg.OpenFor)
	}
	return s
}

func (b *Breaker) transitionLocked(ctx context.Context, next State) {
	prev := b.state
	if prev == next {
		return
	}
	now := b.now()
	b.state = next
	b.failures, b.successes = 0, 0
	b.probesInFlight, b.probeOK = 0, 0
	b.windowStart = now
	if next == Open {
		b.openedAt = now
	}
	recordTransition(b.cfg.Target, prev, next)

	logger := b.cfg.Logger
	if l := zerolog.Ctx(ctx); l != nil && l.GetLevel() != zerolog.Disabled {
		logger = l
	}
	if logger == nil {
		return
	}
	evt := logger.Warn()
	if next == Closed {
		evt = logger.Info()
	}
	evt = evt.Str("target", b.cfg.Target).Str("from_state", prev.String()).Str("to_state", next.String())
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		evt = evt.Str("trace_id", sc.TraceID().String())
	}
	evt.Msg("breaker_transition")
}

const maxBackoff = 10 * time.Second

// Backoff returns base*2^(attempt-1), capped at 10s, with +/- jitterPct
// applied (0.2 == 20%).
func Backoff(base time.Duration, attempt int, jitterPct float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	d := base
	for i := 1; i < attempt && d < maxBackoff; i++ {
		d *= 2
	}
	d = min(d, maxBackoff)
	if jitterPct <= 0 {
		return d
	}
	delta := (rand.Float64()*2 - 1) * float64(d) * jitterPct
	return d + time.Duration(delta)
}
