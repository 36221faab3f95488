package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for tracking ingestion.
type Metrics struct {
	EventsIngested *prometheus.CounterVec
	SignalQuality  *prometheus.CounterVec
	AccuracyLevel  *prometheus.CounterVec
	CacheFailures  prometheus.Counter
}

// New creates a new Metrics instance with all tracking metrics registered.
func New() *Metrics {
	return &Metrics{
		EventsIngested: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lastmile_tracking_events_ingested_total",
			Help: "Ingested tracking events by type",
		}, []string{"type"}),
		SignalQuality: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lastmile_tracking_signal_quality_total",
			Help: "Ingested events by signal quality band",
		}, []string{"band"}),
		AccuracyLevel: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lastmile_tracking_accuracy_level_total",
			Help: "Ingested events by GPS accuracy band",
		}, []string{"band"}),
		CacheFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lastmile_tracking_position_cache_failures_total",
			Help: "Latest-position cache writes that failed",
		}),
	}
}
