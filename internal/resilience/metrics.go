package resilience

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricsOnce sync.Once

	// BreakerState is 0 closed, 1 open, 2 half-open per target.
	BreakerState *prometheus.GaugeVec
	// BreakerTransitions counts state changes per target.
	BreakerTransitions *prometheus.CounterVec
)

// RegisterMetrics creates and registers the breaker collectors. Breakers
// built before registration skip telemetry.
func RegisterMetrics(namespace string, reg prometheus.Registerer) {
	metricsOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		state := prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "breaker_state",
			Help:      "Circuit breaker state per target: 0=closed, 1=open, 2=half-open.",
		}, []string{"target"})
		transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "breaker_transitions_total",
			Help:      "Circuit breaker state transitions per target.",
		}, []string{"target", "from", "to"})
		reg.MustRegister(state, transitions)
		BreakerState, BreakerTransitions = state, transitions
	})
}

func setStateGauge(target string, s State) {
	if BreakerState != nil {
		BreakerState.WithLabelValues(target).Set(float64(s))
	}
}

func recordTransition(target string, from, to State) {
	setStateGauge(target, to)
	if BreakerTransitions != nil {
		BreakerTransitions.WithLabelValues(target, from.String(), to.String()).Inc()
	}
}
