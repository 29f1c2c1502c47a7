package metrics

import "github.com/prometheus/client_golang/prometheus"

// BreakerMetrics holds Prometheus metrics for the persistence circuit breaker.
type BreakerMetrics struct {
	State        prometheus.Gauge
	StateChanges *prometheus.CounterVec
	Rejected     prometheus.Counter
}

// NewBreakerMetrics creates and registers circuit breaker metrics on the given registry.
func NewBreakerMetrics(reg prometheus.Registerer) *BreakerMetrics {
	m := &BreakerMetrics{
		State: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "store_breaker",
			Name:      "state",
			Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open).",
		}),
		StateChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store_breaker",
			Name:      "state_changes_total",
			Help:      "Total number of circuit breaker state transitions, by new state.",
		}, []string{"state"}),
		Rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store_breaker",
			Name:      "rejected_total",
			Help:      "Total number of store calls rejected while the circuit was open.",
		}),
	}

	reg.MustRegister(m.State, m.StateChanges, m.Rejected)
	return m
}
