// Package models defines the Route aggregate: statuses, types, restrictions,
// and the transition table that gates every status change.
package models

import (
	"time"

	"lastmile/internal/transition"
	id "lastmile/pkg/domain"
	dErrors "lastmile/pkg/domain-errors"
)

// RouteStatus is the lifecycle status of a route.
type RouteStatus string

const (
	RouteStatusPlanned    RouteStatus = "PLANNED"
	RouteStatusInProgress RouteStatus = "IN_PROGRESS"
	RouteStatusPaused     RouteStatus = "PAUSED"
	RouteStatusCompleted  RouteStatus = "COMPLETED"
	RouteStatusCancelled  RouteStatus = "CANCELLED"
)

// Transitions is the authoritative adjacency map for route statuses.
// COMPLETED and CANCELLED are terminal. Self-transitions are not listed and
// therefore invalid.
var Transitions = transition.Table[RouteStatus]{
	RouteStatusPlanned:    {RouteStatusInProgress, RouteStatusCancelled},
	RouteStatusInProgress: {RouteStatusPaused, RouteStatusCompleted, RouteStatusCancelled},
	RouteStatusPaused:     {RouteStatusInProgress, RouteStatusCancelled},
	RouteStatusCompleted:  {},
	RouteStatusCancelled:  {},
}

// ParseRouteStatus rejects unknown status strings at the boundary.
func ParseRouteStatus(raw string) (RouteStatus, error) {
	s := RouteStatus(raw)
	if _, ok := Transitions[s]; !ok {
		return "", dErrors.Newf(dErrors.CodeValidation, "unknown route status %q", raw)
	}
	return s, nil
}

// RouteType classifies a route for metrics estimation. Immutable once set:
// no transition table exists for type, so there is no legal way to change it.
type RouteType string

const (
	RouteTypeUrban      RouteType = "URBAN"
	RouteTypeInterstate RouteType = "INTERSTATE"
	RouteTypeRural      RouteType = "RURAL"
	RouteTypeExpress    RouteType = "EXPRESS"
	RouteTypeLocal      RouteType = "LOCAL"
)

func (t RouteType) IsValid() bool {
	switch t {
	case RouteTypeUrban, RouteTypeInterstate, RouteTypeRural, RouteTypeExpress, RouteTypeLocal:
		return true
	}
	return false
}

// GeoPoint is a WGS84 coordinate pair.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Address is a route endpoint. Coordinates are optional; geocoding is an
// external concern.
type Address struct {
	Street   string    `json:"street"`
	City     string    `json:"city"`
	State    string    `json:"state"`
	ZipCode  string    `json:"zipCode,omitempty"`
	Location *GeoPoint `json:"location,omitempty"`
}

// Restrictions are the operational constraints a route must respect.
type Restrictions struct {
	MaxWeightKg   float64 `json:"maxWeightKg,omitempty"`
	MaxHeightM    float64 `json:"maxHeightM,omitempty"`
	HazmatAllowed bool    `json:"hazmatAllowed"`
	AvoidTolls    bool    `json:"avoidTolls"`
	NightDelivery bool    `json:"nightDelivery"`
}

// Route is the aggregate root. Version is the optimistic-lock column:
// every status change must CAS on it.
type Route struct {
	ID           id.RouteID
	Version      int
	Status       RouteStatus
	Type         RouteType
	Origin       Address
	Destination  Address
	DistanceKm   float64
	EstimatedMin float64
	NumStops     int
	Restrictions Restrictions
	DriverID     id.DriverID
	// Optimization holds solver metadata (algorithm, score, batch id).
	// The solver itself is out of scope; the field is carried for it.
	Optimization map[string]string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Clone returns a deep-enough copy for before/after audit snapshots.
func (r *Route) Clone() *Route {
	cp := *r
	if r.Optimization != nil {
		cp.Optimization = make(map[string]string, len(r.Optimization))
		for k, v := range r.Optimization {
			cp.Optimization[k] = v
		}
	}
	return &cp
}

// Audit integration. Routes opt into mutation tracking explicitly; the
// recorder never reflects over struct fields.

func (r *Route) AuditKind() string   { return "route" }
func (r *Route) AuditID() string     { return r.ID.String() }
func (r *Route) AuditStatus() string { return string(r.Status) }

func (r *Route) DiffableFields() map[string]string {
	fields := map[string]string{
		"status":      string(r.Status),
		"type":        string(r.Type),
		"origin_city": r.Origin.City,
		"dest_city":   r.Destination.City,
	}
	if !r.DriverID.IsNil() {
		fields["driver_id"] = r.DriverID.String()
	}
	return fields
}
