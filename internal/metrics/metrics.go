// Package metrics centralizes the Prometheus instrumentation for the
// pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "logpatrol"

// Collector holds all application metrics.
type Collector struct {
	// Remote source adapter
	RemoteRequests        *prometheus.CounterVec
	RemoteRequestDuration *prometheus.HistogramVec
	RemoteRateLimited     *prometheus.CounterVec

	// Polling monitors
	MonitorTicks   *prometheus.CounterVec
	MonitorErrors  *prometheus.CounterVec
	MonitorsActive prometheus.Gauge
	CircuitTripped *prometheus.CounterVec
	TickDuration   *prometheus.HistogramVec

	// Ingestion and classification
	DeltaBytes       *prometheus.CounterVec
	EventsClassified *prometheus.CounterVec
	FileRotations    *prometheus.CounterVec

	// Sessions
	PlayersOnline *prometheus.GaugeVec

	// Notification routing
	Dispatches *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewCollector creates a collector with its own registry.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	c := &Collector{registry: registry}

	c.RemoteRequests = promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "remote",
			Name:      "requests_total",
			Help:      "Remote file API requests by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	c.RemoteRequestDuration = promauto.With(registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "remote",
			Name:      "request_duration_seconds",
			Help:      "Remote file API request latency",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"operation"},
	)

	c.RemoteRateLimited = promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "remote",
			Name:      "rate_limited_total",
			Help:      "Upstream 429 responses per service",
		},
		[]string{"service_id"},
	)

	c.MonitorTicks = promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "ticks_total",
			Help:      "Polling ticks by service and result",
		},
		[]string{"service_id", "result"},
	)

	c.MonitorErrors = promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "errors_total",
			Help:      "File-level failures per service",
		},
		[]string{"service_id"},
	)

	c.MonitorsActive = promauto.With(registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "active",
			Help:      "Number of currently active monitors",
		},
	)

	c.CircuitTripped = promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "circuit_tripped_total",
			Help:      "Monitors stopped by the consecutive-error breaker",
		},
		[]string{"service_id"},
	)

	c.TickDuration = promauto.With(registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "tick_duration_seconds",
			Help:      "Wall time of one polling tick",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		},
		[]string{"service_id"},
	)

	c.DeltaBytes = promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "delta_bytes_total",
			Help:      "New log bytes ingested per service",
		},
		[]string{"service_id"},
	)

	c.EventsClassified = promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "events_total",
			Help:      "Classified events by category",
		},
		[]string{"service_id", "category"},
	)

	c.FileRotations = promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "file_rotations_total",
			Help:      "Detected log file rotations",
		},
		[]string{"service_id"},
	)

	c.PlayersOnline = promauto.With(registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "players_online",
			Help:      "Players currently online per service",
		},
		[]string{"service_id"},
	)

	c.Dispatches = promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "dispatches_total",
			Help:      "Notification dispatches by destination and result",
		},
		[]string{"destination", "result"},
	)

	return c
}

// Registry returns the collector's registry for the metrics endpoint.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
