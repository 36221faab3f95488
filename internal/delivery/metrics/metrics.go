package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the delivery module.
// Tracks creations, transitions, attempt outcomes, and ceiling escalations.
type Metrics struct {
	DeliveriesCreated  prometheus.Counter
	Transitions        *prometheus.CounterVec
	TransitionRejected *prometheus.CounterVec
	AttemptsRecorded   *prometheus.CounterVec
	AutoFailed         prometheus.Counter
	CeilingRejected    prometheus.Counter
	VersionConflicts   prometheus.Counter
}

// New creates a new Metrics instance with all delivery module metrics registered.
func New() *Metrics {
	return &Metrics{
		DeliveriesCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lastmile_deliveries_created_total",
			Help: "Total number of deliveries created",
		}),
		Transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lastmile_delivery_transitions_total",
			Help: "Committed delivery status transitions by from/to status",
		}, []string{"from", "to"}),
		TransitionRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lastmile_delivery_transitions_rejected_total",
			Help: "Delivery status transitions rejected by the transition table",
		}, []string{"from", "to"}),
		AttemptsRecorded: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lastmile_delivery_attempts_total",
			Help: "Recorded delivery attempts by result",
		}, []string{"result"}),
		AutoFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lastmile_delivery_auto_failed_total",
			Help: "Deliveries forced to failed by the attempt ceiling",
		}),
		CeilingRejected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lastmile_delivery_attempts_rejected_total",
			Help: "Attempt recordings rejected because they would exceed the ceiling",
		}),
		VersionConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lastmile_delivery_version_conflicts_total",
			Help: "Delivery writes lost to concurrent writers",
		}),
	}
}
