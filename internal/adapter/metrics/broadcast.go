package metrics

import "github.com/prometheus/client_golang/prometheus"

// BroadcastMetrics holds Prometheus metrics for the snapshot fan-out hub.
type BroadcastMetrics struct {
	ActiveSubscribers  prometheus.Gauge
	SnapshotsPublished prometheus.Counter
	SubscribersEvicted prometheus.Counter
	CommandQueueDepth  prometheus.Gauge
}

// NewBroadcastMetrics creates and registers hub metrics on the given registry.
func NewBroadcastMetrics(reg prometheus.Registerer) *BroadcastMetrics {
	m := &BroadcastMetrics{
		ActiveSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "active_subscribers",
			Help:      "Number of subscribers currently registered with the hub.",
		}),
		SnapshotsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "snapshots_published_total",
			Help:      "Total number of snapshots fanned out by the hub.",
		}),
		SubscribersEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "subscribers_evicted_total",
			Help:      "Total number of subscribers dropped because they could not accept a snapshot.",
		}),
		CommandQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "command_queue_depth",
			Help:      "Number of commands waiting in the hub's command channel.",
		}),
	}

	reg.MustRegister(m.ActiveSubscribers, m.SnapshotsPublished, m.SubscribersEvicted, m.CommandQueueDepth)
	return m
}
