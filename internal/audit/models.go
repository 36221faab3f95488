// Package audit captures append-only before/after snapshots of entity
// mutations for compliance. Entries are written in the same transaction as
// the mutation they describe and relayed to Kafka by the outbox publisher.
package audit

import (
	"time"

	"github.com/google/uuid"
)

// EventCategory classifies audit entries by their primary purpose.
// This enables different retention policies and routing.
type EventCategory string

const (
	// CategoryCompliance covers events with legal/regulatory significance:
	// LGPD request lifecycle, consent changes, delivery outcomes.
	// These require tamper-proof storage and long retention.
	CategoryCompliance EventCategory = "compliance"

	// CategoryOperations covers events useful for debugging and operational
	// visibility: routine status changes, tracking ingestion.
	CategoryOperations EventCategory = "operations"
)

// EventType names a tracked mutation.
type EventType string

const (
	// Route events
	EventRouteCreated       EventType = "route_created"
	EventRouteStatusChanged EventType = "route_status_changed"

	// Delivery events
	EventDeliveryCreated       EventType = "delivery_created"
	EventDeliveryStatusChanged EventType = "delivery_status_changed"
	EventAttemptRecorded       EventType = "delivery_attempt_recorded"
	EventDeliveryAutoFailed    EventType = "delivery_auto_failed"

	// LGPD events
	EventDataRequestCreated   EventType = "data_request_created"
	EventDataRequestStarted   EventType = "data_request_started"
	EventDataRequestCompleted EventType = "data_request_completed"
	EventDataRequestFailed    EventType = "data_request_failed"
	EventDataRequestCancelled EventType = "data_request_cancelled"
	EventDataRequestExpired   EventType = "data_request_expired"
	EventConsentGranted       EventType = "consent_granted"
	EventConsentRevoked       EventType = "consent_revoked"

	// Tracking events
	EventTrackingIngested EventType = "tracking_event_ingested"
)

// eventCategories maps each event type to its category.
// Compliance: legal/regulatory significance, long retention required.
// Operations: routine activity, can be sampled.
var eventCategories = map[EventType]EventCategory{
	EventRouteCreated:       CategoryOperations,
	EventRouteStatusChanged: CategoryOperations,

	EventDeliveryCreated:       CategoryOperations,
	EventDeliveryStatusChanged: CategoryCompliance,
	EventAttemptRecorded:       CategoryCompliance,
	EventDeliveryAutoFailed:    CategoryCompliance,

	EventDataRequestCreated:   CategoryCompliance,
	EventDataRequestStarted:   CategoryCompliance,
	EventDataRequestCompleted: CategoryCompliance,
	EventDataRequestFailed:    CategoryCompliance,
	EventDataRequestCancelled: CategoryCompliance,
	EventDataRequestExpired:   CategoryCompliance,
	EventConsentGranted:       CategoryCompliance,
	EventConsentRevoked:       CategoryCompliance,

	EventTrackingIngested: CategoryOperations,
}

// Category returns the EventCategory for this event type.
// Unknown events default to CategoryOperations.
func (e EventType) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// FieldChange holds one field's before/after values.
type FieldChange struct {
	Before string `json:"before"`
	After  string `json:"after"`
}

// Entry is one immutable audit record. Entries are never updated or deleted.
type Entry struct {
	ID             uuid.UUID
	Category       EventCategory
	EventType      EventType
	Timestamp      time.Time
	EntityKind     string
	EntityID       string
	Description    string
	PreviousStatus string
	NewStatus      string
	ChangedFields  map[string]FieldChange

	// Actor attribution
	ActorID   string
	ActorName string
	ActorType string

	// Request metadata
	ClientIP  string
	UserAgent string
	RequestID string
}

// Auditable is implemented by entities that opt into mutation tracking.
// It replaces reflection-driven metadata: each entity states explicitly
// which fields participate in diffs and how its audit rows are labeled.
type Auditable interface {
	AuditKind() string
	AuditID() string
	AuditStatus() string
	DiffableFields() map[string]string
}

// Diff computes the field-level changes between two snapshots of the same
// entity. A nil before (creation) reports every after field as changed with
// an empty Before.
func Diff(before, after Auditable) map[string]FieldChange {
	changes := make(map[string]FieldChange)
	var prev map[string]string
	if before != nil {
		prev = before.DiffableFields()
	}
	for field, now := range after.DiffableFields() {
		was := prev[field]
		if was != now {
			changes[field] = FieldChange{Before: was, After: now}
		}
	}
	if len(changes) == 0 {
		return nil
	}
	return changes
}
