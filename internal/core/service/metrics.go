package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type SyncMetrics struct {
	Enqueued   prometheus.Counter
	Dropped    prometheus.Counter
	Persisted  prometheus.Counter
	Retried    prometheus.Counter
	Spilled    prometheus.Counter
	Duplicates prometheus.Counter
	Failed     prometheus.Counter
	QueueDepth prometheus.Gauge
}

// NewSyncMetrics registers the forwarder metrics on reg. A nil reg yields
// unregistered metrics, which tests use.
func NewSyncMetrics(reg prometheus.Registerer) *SyncMetrics {
	f := promauto.With(reg)
	counter := func(name, help string) prometheus.Counter {
		return f.NewCounter(prometheus.CounterOpts{
			Namespace: "brickparty",
			Subsystem: "sync",
			Name:      name,
			Help:      help,
		})
	}

	return &SyncMetrics{
		Enqueued:   counter("enqueued_total", "Owned changes accepted by the sync queue."),
		Dropped:    counter("dropped_total", "Owned changes dropped because cloud sync is off."),
		Persisted:  counter("persisted_total", "Owned changes written to cloud storage."),
		Retried:    counter("retried_total", "Retried cloud writes."),
		Spilled:    counter("spilled_total", "Owned changes saved to the offline outbox."),
		Duplicates: counter("duplicates_total", "Redelivered owned changes skipped."),
		Failed:     counter("failed_total", "Owned changes that exhausted their retries."),
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "brickparty",
			Subsystem: "sync",
			Name:      "queue_depth",
			Help:      "Owned changes waiting in the sync queue.",
		}),
	}
}
