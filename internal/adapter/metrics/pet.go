package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PetMetrics holds Prometheus metrics for lifecycle operations.
type PetMetrics struct {
	Operations    *prometheus.CounterVec
	StoreFailures *prometheus.CounterVec
	Gauges        *prometheus.GaugeVec
	Alive         prometheus.Gauge
}

// NewPetMetrics creates and registers lifecycle metrics on the given registry.
func NewPetMetrics(reg prometheus.Registerer) *PetMetrics {
	m := &PetMetrics{
		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pet",
			Name:      "operations_total",
			Help:      "Total number of lifecycle operations, by operation and result.",
		}, []string{"operation", "result"}),
		StoreFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pet",
			Name:      "store_failures_total",
			Help:      "Total number of swallowed persistence failures, by direction.",
		}, []string{"direction"}),
		Gauges: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pet",
			Name:      "gauge",
			Help:      "Last observed value of each pet gauge.",
		}, []string{"gauge"}),
		Alive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pet",
			Name:      "alive",
			Help:      "1 while the last observed pet is alive, 0 otherwise.",
		}),
	}

	reg.MustRegister(m.Operations, m.StoreFailures, m.Gauges, m.Alive)
	return m
}
