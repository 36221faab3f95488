// Package domain defines typed identifiers shared across the module.
//
// Each entity gets its own UUID-backed type so the compiler rejects
// cross-entity ID mix-ups. Parse helpers enforce the invariant that IDs are
// valid, non-empty, non-nil UUIDs at trust boundaries.
package domain

import (
	"github.com/google/uuid"

	dErrors "lastmile/pkg/domain-errors"
)

type (
	// UserID identifies a customer or back-office account.
	UserID uuid.UUID
	// DriverID identifies a driver.
	DriverID uuid.UUID
	// RouteID identifies a route.
	RouteID uuid.UUID
	// DeliveryID identifies a delivery.
	DeliveryID uuid.UUID
	// DataRequestID identifies an LGPD data-subject request.
	DataRequestID uuid.UUID
	// ConsentID identifies a consent record.
	ConsentID uuid.UUID
)

func parse(kind, raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" id must not be empty")
	}
	u, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid "+kind+" id")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" id must not be the nil UUID")
	}
	return u, nil
}

func ParseUserID(raw string) (UserID, error) {
	u, err := parse("user", raw)
	return UserID(u), err
}

func ParseDriverID(raw string) (DriverID, error) {
	u, err := parse("driver", raw)
	return DriverID(u), err
}

func ParseRouteID(raw string) (RouteID, error) {
	u, err := parse("route", raw)
	return RouteID(u), err
}

func ParseDeliveryID(raw string) (DeliveryID, error) {
	u, err := parse("delivery", raw)
	return DeliveryID(u), err
}

func ParseDataRequestID(raw string) (DataRequestID, error) {
	u, err := parse("data request", raw)
	return DataRequestID(u), err
}

func ParseConsentID(raw string) (ConsentID, error) {
	u, err := parse("consent", raw)
	return ConsentID(u), err
}

func NewUserID() UserID               { return UserID(uuid.New()) }
func NewDriverID() DriverID           { return DriverID(uuid.New()) }
func NewRouteID() RouteID             { return RouteID(uuid.New()) }
func NewDeliveryID() DeliveryID       { return DeliveryID(uuid.New()) }
func NewDataRequestID() DataRequestID { return DataRequestID(uuid.New()) }
func NewConsentID() ConsentID         { return ConsentID(uuid.New()) }

func (id UserID) String() string        { return uuid.UUID(id).String() }
func (id DriverID) String() string      { return uuid.UUID(id).String() }
func (id RouteID) String() string       { return uuid.UUID(id).String() }
func (id DeliveryID) String() string    { return uuid.UUID(id).String() }
func (id DataRequestID) String() string { return uuid.UUID(id).String() }
func (id ConsentID) String() string     { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
func (id DriverID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id RouteID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id DeliveryID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id DataRequestID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id ConsentID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
