package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the runtime's Prometheus instruments.
type Metrics struct {
	ExecutionsTotal      *prometheus.CounterVec
	ExecutionDuration    *prometheus.HistogramVec
	ExecutionMemoryBytes *prometheus.HistogramVec

	RegisteredPlugins prometheus.Gauge
	ActivePlugins     prometheus.Gauge

	BusMessagesTotal   *prometheus.CounterVec
	BusRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all runtime metrics on a registry.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		ExecutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "animus_plugin_executions_total",
				Help: "Total number of plugin executions",
			},
			[]string{"plugin", "status"},
		),
		ExecutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "animus_plugin_execution_duration_seconds",
				Help:    "Plugin execution duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"plugin"},
		),
		ExecutionMemoryBytes: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "animus_plugin_execution_memory_bytes",
				Help:    "Heap growth per plugin execution in bytes",
				Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
			},
			[]string{"plugin"},
		),
		RegisteredPlugins: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "animus_plugins_registered",
				Help: "Number of registered plugins",
			},
		),
		ActivePlugins: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "animus_plugins_active",
				Help: "Number of active plugins",
			},
		),
		BusMessagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "animus_bus_messages_total",
				Help: "Total number of bus messages by operation",
			},
			[]string{"operation", "status"},
		),
		BusRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "animus_bus_request_duration_seconds",
				Help:    "Bus request/response round-trip duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"topic"},
		),
	}

	registry.MustRegister(
		m.ExecutionsTotal,
		m.ExecutionDuration,
		m.ExecutionMemoryBytes,
		m.RegisteredPlugins,
		m.ActivePlugins,
		m.BusMessagesTotal,
		m.BusRequestDuration,
	)

	return m
}
