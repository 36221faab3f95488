// Package store persists deliveries and their attempts. Attempt recording is
// a single atomic commit: the delivery row moves (attempt count, status,
// version) and the attempt row is inserted together, guarded by the same
// compare-and-swap as plain status changes.
package store

import (
	"context"

	"lastmile/internal/delivery/models"
	id "lastmile/pkg/domain"
)

// Filter narrows List results. Zero values mean "any".
type Filter struct {
	Status  models.DeliveryStatus
	RouteID id.RouteID
	Limit   int
}

// AttemptCommit describes the delivery-row update that accompanies an
// attempt insert. FromStatus and Version are the CAS guard; the remaining
// fields are the post-attempt state computed by the service.
type AttemptCommit struct {
	DeliveryID    id.DeliveryID
	FromStatus    models.DeliveryStatus
	Version       int
	Attempts      int
	NewStatus     models.DeliveryStatus
	FailureReason string
	Proof         map[string]string
}

type Store interface {
	Create(ctx context.Context, delivery *models.Delivery) error
	Get(ctx context.Context, deliveryID id.DeliveryID) (*models.Delivery, error)
	GetByTrackingNumber(ctx context.Context, trackingNumber string) (*models.Delivery, error)
	List(ctx context.Context, filter Filter) ([]*models.Delivery, error)

	// UpdateStatus commits a plain status transition with a CAS on
	// (status, version). reason is stored as the failure reason when the
	// target status is failed; ignored otherwise.
	UpdateStatus(ctx context.Context, deliveryID id.DeliveryID, from, to models.DeliveryStatus, version int, reason string) (*models.Delivery, error)

	// RecordAttempt inserts the attempt and applies the commit atomically.
	// Returns sentinel.ErrVersionConflict when the delivery row moved under
	// the caller; the attempt is not inserted in that case.
	RecordAttempt(ctx context.Context, attempt *models.DeliveryAttempt, commit AttemptCommit) (*models.Delivery, error)

	ListAttempts(ctx context.Context, deliveryID id.DeliveryID) ([]*models.DeliveryAttempt, error)
}
