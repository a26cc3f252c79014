package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's Prometheus instrumentation.
type Metrics struct {
	QueriesTotal    *prometheus.CounterVec
	QueryDuration   *prometheus.HistogramVec
	ActiveSessions  prometheus.Gauge
	BusyRejections  prometheus.Counter
	SchemaRefreshes *prometheus.CounterVec
}

// NewMetrics registers the engine metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		QueriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_queries_total",
			Help: "Processed queries by database type and outcome.",
		}, []string{"db_type", "outcome"}),

		QueryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "engine_query_duration_seconds",
			Help:    "Duration of query pipeline stages.",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),

		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "engine_active_sessions",
			Help: "Currently open sessions.",
		}),

		BusyRejections: factory.NewCounter(prometheus.CounterOpts{
			Name: "engine_busy_rejections_total",
			Help: "Queries rejected because the session was already processing one.",
		}),

		SchemaRefreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_schema_refreshes_total",
			Help: "Schema introspections by trigger.",
		}, []string{"trigger"}),
	}
}

// NopMetrics returns metrics bound to a throwaway registry, for tests.
func NopMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}
