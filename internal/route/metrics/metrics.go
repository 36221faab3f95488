package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the route module.
// Tracks route creation, transition outcomes, and estimation durations.
type Metrics struct {
	RoutesCreated      prometheus.Counter
	Transitions        *prometheus.CounterVec
	TransitionRejected *prometheus.CounterVec
	VersionConflicts   prometheus.Counter
	EstimateDuration   prometheus.Histogram
}

// New creates a new Metrics instance with all route module metrics registered.
func New() *Metrics {
	return &Metrics{
		RoutesCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lastmile_routes_created_total",
			Help: "Total number of routes created",
		}),
		Transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lastmile_route_transitions_total",
			Help: "Committed route status transitions by from/to status",
		}, []string{"from", "to"}),
		TransitionRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lastmile_route_transitions_rejected_total",
			Help: "Route status transitions rejected by the transition table",
		}, []string{"from", "to"}),
		VersionConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lastmile_route_version_conflicts_total",
			Help: "Route transitions lost to concurrent writers",
		}),
		EstimateDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "lastmile_route_estimate_duration_seconds",
			Help:    "Duration of route metrics estimation",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		}),
	}
}

// IncrementRouteCreated records a successful route creation.
func (m *Metrics) IncrementRouteCreated() {
	m.RoutesCreated.Inc()
}

// RecordTransition records a committed status transition.
func (m *Metrics) RecordTransition(from, to string) {
	m.Transitions.WithLabelValues(from, to).Inc()
}

// RecordRejected records a transition the table refused.
func (m *Metrics) RecordRejected(from, to string) {
	m.TransitionRejected.WithLabelValues(from, to).Inc()
}

// RecordVersionConflict records a compare-and-swap failure at commit.
func (m *Metrics) RecordVersionConflict() {
	m.VersionConflicts.Inc()
}

// ObserveEstimate records the duration of an estimation call.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveEstimate(start time.Time) {
	m.EstimateDuration.Observe(time.Since(start).Seconds())
}
