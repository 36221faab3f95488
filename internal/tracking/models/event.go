// Package models defines tracking events and the pure quality classifiers
// applied to every ingested ping.
package models

import (
	"time"

	"github.com/google/uuid"

	id "lastmile/pkg/domain"
	dErrors "lastmile/pkg/domain-errors"
)

// EventType classifies a tracking ping by its origin.
type EventType string

const (
	EventRouteStart    EventType = "route_start"
	EventRouteEnd      EventType = "route_end"
	EventDeliveryStart EventType = "delivery_start"
	EventDeliveryEnd   EventType = "delivery_end"
	EventPickup        EventType = "pickup"
	EventStop          EventType = "stop"
	EventFuel          EventType = "fuel"
	EventMaintenance   EventType = "maintenance"
	EventCheckpoint    EventType = "checkpoint"
	EventEmergency     EventType = "emergency"
	EventManual        EventType = "manual"
	EventAutomatic     EventType = "automatic"
	EventGeofenceEntry EventType = "geofence_entry"
	EventGeofenceExit  EventType = "geofence_exit"
)

var knownEventTypes = map[EventType]bool{
	EventRouteStart: true, EventRouteEnd: true,
	EventDeliveryStart: true, EventDeliveryEnd: true,
	EventPickup: true, EventStop: true,
	EventFuel: true, EventMaintenance: true,
	EventCheckpoint: true, EventEmergency: true,
	EventManual: true, EventAutomatic: true,
	EventGeofenceEntry: true, EventGeofenceExit: true,
}

// ParseEventType rejects unknown event types at the boundary.
func ParseEventType(raw string) (EventType, error) {
	t := EventType(raw)
	if !knownEventTypes[t] {
		return "", dErrors.Newf(dErrors.CodeValidation, "unknown tracking event type %q", raw)
	}
	return t, nil
}

// DeviceType identifies the reporting device.
type DeviceType string

const (
	DeviceMobile  DeviceType = "mobile"
	DeviceVehicle DeviceType = "vehicle_unit"
	DeviceScanner DeviceType = "scanner"
)

func (d DeviceType) IsValid() bool {
	switch d {
	case DeviceMobile, DeviceVehicle, DeviceScanner:
		return true
	}
	return false
}

// Event is one ingested tracking ping. SignalQuality and AccuracyLevel are
// derived at ingest time and stored alongside the raw readings.
type Event struct {
	ID             uuid.UUID
	DriverID       id.DriverID
	RouteID        id.RouteID
	DeliveryID     id.DeliveryID
	Type           EventType
	DeviceType     DeviceType
	SignalStrength float64
	AccuracyM      float64
	Lat            float64
	Lng            float64
	SignalQuality  SignalQuality
	AccuracyLevel  AccuracyLevel
	Timestamp      time.Time
}

func (e *Event) AuditKind() string   { return "tracking_event" }
func (e *Event) AuditID() string     { return e.ID.String() }
func (e *Event) AuditStatus() string { return string(e.Type) }

func (e *Event) DiffableFields() map[string]string {
	return map[string]string{
		"type":           string(e.Type),
		"signal_quality": string(e.SignalQuality),
		"accuracy_level": string(e.AccuracyLevel),
		"driver_id":      e.DriverID.String(),
	}
}

// Position is the latest known location of a driver, kept hot in Redis.
type Position struct {
	DriverID  string    `json:"driverId"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	AccuracyM float64   `json:"accuracyM"`
	Timestamp time.Time `json:"timestamp"`
}
