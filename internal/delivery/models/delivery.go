// Package models defines the Delivery aggregate: statuses, the transition
// table, attempt records, and tracking-number generation.
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"lastmile/internal/transition"
	id "lastmile/pkg/domain"
	dErrors "lastmile/pkg/domain-errors"
)

// DeliveryStatus is the lifecycle status of a delivery. Lowercase on the
// wire, matching the tracking events feed.
type DeliveryStatus string

const (
	DeliveryStatusPending        DeliveryStatus = "pending"
	DeliveryStatusPickedUp       DeliveryStatus = "picked_up"
	DeliveryStatusInTransit      DeliveryStatus = "in_transit"
	DeliveryStatusOutForDelivery DeliveryStatus = "out_for_delivery"
	DeliveryStatusDelivered      DeliveryStatus = "delivered"
	DeliveryStatusFailed         DeliveryStatus = "failed"
	DeliveryStatusCancelled      DeliveryStatus = "cancelled"
	DeliveryStatusReturned       DeliveryStatus = "returned"
)

// Transitions is the authoritative adjacency map for delivery statuses.
// failed is not terminal: a failed delivery can go back out for delivery,
// be returned to sender, or be cancelled.
var Transitions = transition.Table[DeliveryStatus]{
	DeliveryStatusPending:        {DeliveryStatusPickedUp, DeliveryStatusCancelled, DeliveryStatusFailed},
	DeliveryStatusPickedUp:       {DeliveryStatusInTransit, DeliveryStatusFailed, DeliveryStatusCancelled},
	DeliveryStatusInTransit:      {DeliveryStatusOutForDelivery, DeliveryStatusFailed, DeliveryStatusCancelled},
	DeliveryStatusOutForDelivery: {DeliveryStatusDelivered, DeliveryStatusFailed, DeliveryStatusReturned},
	DeliveryStatusFailed:         {DeliveryStatusOutForDelivery, DeliveryStatusReturned, DeliveryStatusCancelled},
	DeliveryStatusDelivered:      {},
	DeliveryStatusCancelled:      {},
	DeliveryStatusReturned:       {},
}

// attemptTerminal is the status set that stops the attempt-ceiling rule:
// reaching max attempts in any other status forces failed.
var attemptTerminal = map[DeliveryStatus]bool{
	DeliveryStatusDelivered: true,
	DeliveryStatusFailed:    true,
	DeliveryStatusCancelled: true,
}

// StopsAttemptEscalation reports whether the ceiling rule leaves the given
// status alone.
func StopsAttemptEscalation(s DeliveryStatus) bool {
	return attemptTerminal[s]
}

// ParseDeliveryStatus rejects unknown status strings at the boundary.
func ParseDeliveryStatus(raw string) (DeliveryStatus, error) {
	s := DeliveryStatus(raw)
	if _, ok := Transitions[s]; !ok {
		return "", dErrors.Newf(dErrors.CodeValidation, "unknown delivery status %q", raw)
	}
	return s, nil
}

// Priority orders deliveries for dispatch.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// DeliveryType describes the cargo.
type DeliveryType string

const (
	TypeParcel       DeliveryType = "parcel"
	TypeDocument     DeliveryType = "document"
	TypeFragile      DeliveryType = "fragile"
	TypeRefrigerated DeliveryType = "refrigerated"
)

func (t DeliveryType) IsValid() bool {
	switch t {
	case TypeParcel, TypeDocument, TypeFragile, TypeRefrigerated:
		return true
	}
	return false
}

// DefaultMaxAttempts is the attempt ceiling applied when a delivery is
// created without an explicit one.
const DefaultMaxAttempts = 3

// DefaultFailureReason is set when the ceiling forces a delivery to failed
// and the triggering attempt carried no reason of its own.
const DefaultFailureReason = "maximum delivery attempts exhausted"

// Delivery is the aggregate root. Attempts is the denormalized count of
// recorded attempts; the invariant Attempts <= MaxAttempts holds after every
// write. Version is the optimistic-lock column.
type Delivery struct {
	ID             id.DeliveryID
	Version        int
	TrackingNumber string
	Status         DeliveryStatus
	Priority       Priority
	Type           DeliveryType
	RouteID        id.RouteID
	RecipientName  string
	Street         string
	City           string
	State          string
	Attempts       int
	MaxAttempts    int
	FailureReason  string
	// Proof holds proof-of-delivery evidence (signature ref, photo ref,
	// receiver document). Populated by the successful attempt.
	Proof     map[string]string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (d *Delivery) Clone() *Delivery {
	cp := *d
	if d.Proof != nil {
		cp.Proof = make(map[string]string, len(d.Proof))
		for k, v := range d.Proof {
			cp.Proof[k] = v
		}
	}
	return &cp
}

func (d *Delivery) AuditKind() string   { return "delivery" }
func (d *Delivery) AuditID() string     { return d.ID.String() }
func (d *Delivery) AuditStatus() string { return string(d.Status) }

func (d *Delivery) DiffableFields() map[string]string {
	return map[string]string{
		"status":         string(d.Status),
		"attempts":       fmt.Sprintf("%d", d.Attempts),
		"failure_reason": d.FailureReason,
		"priority":       string(d.Priority),
	}
}

// NewTrackingNumber generates a unique tracking number: LM + yymmdd + ten
// hex chars of UUID entropy. Uniqueness is still enforced by the store.
func NewTrackingNumber(now time.Time) string {
	entropy := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
	return fmt.Sprintf("LM%s%s", now.Format("060102"), entropy)
}
