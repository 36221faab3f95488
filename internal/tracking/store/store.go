// Package store persists tracking events. Events are append-only: the
// interface has no update or delete.
package store

import (
	"context"

	"lastmile/internal/tracking/models"
	id "lastmile/pkg/domain"
)

// Filter narrows List results. Zero values mean "any".
type Filter struct {
	DriverID   id.DriverID
	RouteID    id.RouteID
	DeliveryID id.DeliveryID
	Type       models.EventType
	Limit      int
}

type Store interface {
	Append(ctx context.Context, event *models.Event) error
	List(ctx context.Context, filter Filter) ([]*models.Event, error)
}
