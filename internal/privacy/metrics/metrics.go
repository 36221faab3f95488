package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the privacy module: request lifecycle
// counts, deadline compliance, and sweep behavior.
type Metrics struct {
	RequestsCreated  *prometheus.CounterVec
	LifecycleOps     *prometheus.CounterVec
	RequestsExpired  prometheus.Counter
	OverdueCompleted prometheus.Counter
	ConsentGranted   prometheus.Counter
	ConsentRevoked   prometheus.Counter
	SweepRuns        prometheus.Counter
	SweepDuration    prometheus.Histogram
	SweepExpired     prometheus.Counter
}

// New creates a new Metrics instance with all privacy metrics registered.
func New() *Metrics {
	return &Metrics{
		RequestsCreated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lastmile_data_requests_created_total",
			Help: "Data-subject requests created, by type",
		}, []string{"type"}),
		LifecycleOps: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lastmile_data_request_lifecycle_total",
			Help: "Data request lifecycle operations, by operation and outcome",
		}, []string{"op", "outcome"}),
		RequestsExpired: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lastmile_data_requests_expired_total",
			Help: "Data requests expired past their legal deadline",
		}),
		OverdueCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lastmile_data_requests_completed_overdue_total",
			Help: "Data requests completed after the legal deadline had passed",
		}),
		ConsentGranted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lastmile_consents_granted_total",
			Help: "Consent records created",
		}),
		ConsentRevoked: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lastmile_consents_revoked_total",
			Help: "Consent records revoked",
		}),
		SweepRuns: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lastmile_privacy_sweep_runs_total",
			Help: "Expiry sweep executions",
		}),
		SweepDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "lastmile_privacy_sweep_duration_seconds",
			Help:    "Duration of one expiry sweep pass",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		}),
		SweepExpired: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lastmile_privacy_sweep_expired_total",
			Help: "Requests expired by the sweep",
		}),
	}
}

// RecordLifecycle records one lifecycle operation outcome.
func (m *Metrics) RecordLifecycle(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "rejected"
	}
	m.LifecycleOps.WithLabelValues(op, outcome).Inc()
}

// ObserveSweep records the duration of one sweep pass.
// Call with time.Now() at the start of the pass.
func (m *Metrics) ObserveSweep(start time.Time) {
	m.SweepDuration.Observe(time.Since(start).Seconds())
}
