package metrics

import "github.com/prometheus/client_golang/prometheus"

// StreamMetrics holds Prometheus metrics for streaming connections (SSE and WebSocket).
type StreamMetrics struct {
	ActiveConnections *prometheus.GaugeVec
	MessagesSent      *prometheus.CounterVec
}

// NewStreamMetrics creates and registers stream metrics on the given registry.
func NewStreamMetrics(reg prometheus.Registerer) *StreamMetrics {
	m := &StreamMetrics{
		ActiveConnections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "active_connections",
			Help:      "Number of open streaming connections, by transport.",
		}, []string{"transport"}),
		MessagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "messages_sent_total",
			Help:      "Total number of snapshots written to streaming clients, by transport.",
		}, []string{"transport"}),
	}

	reg.MustRegister(m.ActiveConnections, m.MessagesSent)
	return m
}
