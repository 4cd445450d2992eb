package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(cfg BreakerConfig) (*Breaker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	b := NewBreaker(cfg)
	b.now = clock.now
	b.windowStart = clock.t
	return b, clock
}

func TestBreakerOpensAndRecovers(t *testing.T) {
	ctx := context.Background()
	b, clock := newTestBreaker(BreakerConfig{MinRequests: 2, FailureRatio: 0.5, OpenFor: time.Second})

	require.True(t, b.Allow(ctx))
	b.Report(ctx, false)
	require.Equal(t, Closed, b.State(), "below sample size")
	require.True(t, b.Allow(ctx))
	b.Report(ctx, false)
	require.Equal(t, Open, b.State())
	require.False(t, b.Allow(ctx))

	snap := b.Snapshot()
	require.Equal(t, "open", snap.StateName)
	require.Equal(t, clock.t.Add(time.Second), snap.RetryAt)

	clock.advance(time.Second)
	require.True(t, b.Allow(ctx))
	require.Equal(t, HalfOpen, b.State())
	require.False(t, b.Allow(ctx), "only one probe in flight")
	b.Report(ctx, true)
	require.Equal(t, Closed, b.State())
}

func TestBreakerFailedProbeReopens(t *testing.T) {
	ctx := context.Background()
	b, clock := newTestBreaker(BreakerConfig{MinRequests: 1, OpenFor: time.Second, HalfOpenProbes: 2})
	b.Report(ctx, false)
	require.Equal(t, Open, b.State())

	clock.advance(time.Second)
	require.True(t, b.Allow(ctx))
	require.True(t, b.Allow(ctx))
	require.False(t, b.Allow(ctx))
	b.Report(ctx, true)
	require.Equal(t, HalfOpen, b.State(), "needs two successful probes")
	b.Report(ctx, false)
	require.Equal(t, Open, b.State())
	require.False(t, b.Allow(ctx))
}

func TestBreakerWindowResetsCounts(t *testing.T) {
	ctx := context.Background()
	b, clock := newTestBreaker(BreakerConfig{MinRequests: 4, FailureRatio: 0.5, Window: time.Minute})

	for range 3 {
		require.True(t, b.Allow(ctx))
		b.Report(ctx, false)
	}
	clock.advance(time.Minute)
	require.True(t, b.Allow(ctx))
	require.Zero(t, b.Snapshot().Failures)
	b.Report(ctx, false)
	require.Equal(t, Closed, b.State())
}

func TestNilBreakerAllowsEverything(t *testing.T) {
	var b *Breaker
	require.True(t, b.Allow(context.Background()))
	b.Report(context.Background(), false)
	require.Equal(t, Closed, b.State())
	require.Equal(t, "closed", b.Snapshot().StateName)
}

func TestBreakerMetrics(t *testing.T) {
	RegisterMetrics("toko", prometheus.NewRegistry())
	ctx := context.Background()
	b, clock := newTestBreaker(BreakerConfig{Target: "metrics-test", MinRequests: 1, OpenFor: time.Second})

	b.Report(ctx, false)
	require.Equal(t, 1.0, testutil.ToFloat64(BreakerState.WithLabelValues("metrics-test")))

	clock.advance(time.Second)
	require.True(t, b.Allow(ctx))
	require.Equal(t, 2.0, testutil.ToFloat64(BreakerState.WithLabelValues("metrics-test")))
	b.Report(ctx, true)
	require.Equal(t, 0.0, testutil.ToFloat64(BreakerState.WithLabelValues("metrics-test")))

	require.Equal(t, 1.0, testutil.ToFloat64(BreakerTransitions.WithLabelValues("metrics-test", "closed", "open")))
	require.Equal(t, 1.0, testutil.ToFloat64(BreakerTransitions.WithLabelValues("metrics-test", "open", "half_open")))
	require.Equal(t, 1.0, testutil.ToFloat64(BreakerTransitions.WithLabelValues("metrics-test", "half_open", "closed")))
}

func TestBackoff(t *testing.T) {
	base := 100 * time.Millisecond
	require.Equal(t, base, Backoff(base, 1, 0))
	require.Equal(t, base*4, Backoff(base, 3, 0))
	require.Equal(t, maxBackoff, Backoff(base, 40, 0))

	d := Backoff(base, 2, 0.2)
	require.GreaterOrEqual(t, d, base*2-base*2/5)
	require.LessOrEqual(t, d, base*2+base*2/5)
}
