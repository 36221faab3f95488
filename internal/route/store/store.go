// Package store persists routes. Both implementations honor the same
// contract: UpdateStatus is a compare-and-swap on (status, version) so a
// transition validated against a stale read cannot commit.
package store

import (
	"context"

	"lastmile/internal/route/models"
	id "lastmile/pkg/domain"
)

// Filter narrows List results. Zero values mean "any".
type Filter struct {
	Status   models.RouteStatus
	DriverID id.DriverID
	Limit    int
}

type Store interface {
	Create(ctx context.Context, route *models.Route) error
	Get(ctx context.Context, routeID id.RouteID) (*models.Route, error)
	List(ctx context.Context, filter Filter) ([]*models.Route, error)

	// UpdateStatus commits a transition only if the stored row still has the
	// expected status and version. Returns sentinel.ErrNotFound when the route
	// does not exist and sentinel.ErrVersionConflict when the row moved under
	// the caller.
	UpdateStatus(ctx context.Context, routeID id.RouteID, from, to models.RouteStatus, version int) (*models.Route, error)
}
