// Package store persists data requests and consent records. DataRequest
// updates are compare-and-swap on (id, version): lifecycle legality is
// validated on the entity, but the commit re-verifies nothing moved.
package store

import (
	"context"
	"time"

	"lastmile/internal/privacy/models"
	id "lastmile/pkg/domain"
)

// RequestFilter narrows data-request listings. Zero values mean "any".
type RequestFilter struct {
	UserID id.UserID
	Status models.RequestStatus
	Type   models.RequestType
	Limit  int
}

type DataRequestStore interface {
	Create(ctx context.Context, request *models.DataRequest) error
	Get(ctx context.Context, requestID id.DataRequestID) (*models.DataRequest, error)
	List(ctx context.Context, filter RequestFilter) ([]*models.DataRequest, error)

	// Update persists the mutated entity if the stored row still carries
	// expectedVersion. The entity's Version is bumped on success. Returns
	// sentinel.ErrVersionConflict when the row moved under the caller.
	Update(ctx context.Context, request *models.DataRequest, expectedVersion int) (*models.DataRequest, error)

	// ListPendingPastDue returns pending requests whose due date has passed,
	// oldest first, for the expiry sweep.
	ListPendingPastDue(ctx context.Context, now time.Time, limit int) ([]*models.DataRequest, error)
}

type ConsentStore interface {
	Create(ctx context.Context, consent *models.Consent) error
	Get(ctx context.Context, consentID id.ConsentID) (*models.Consent, error)
	ListByUser(ctx context.Context, userID id.UserID) ([]*models.Consent, error)

	// Update persists a revocation. Consents have no version column: the
	// only legal mutation is one-way, so a lost race converges on the same
	// terminal state.
	Update(ctx context.Context, consent *models.Consent) error
}
