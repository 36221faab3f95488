package models

import (
	"time"

	"github.com/google/uuid"

	id "lastmile/pkg/domain"
	dErrors "lastmile/pkg/domain-errors"
)

// AttemptResult is the outcome of one delivery attempt.
type AttemptResult string

const (
	AttemptSuccess     AttemptResult = "SUCCESS"
	AttemptFailed      AttemptResult = "FAILED"
	AttemptRescheduled AttemptResult = "RESCHEDULED"
)

func ParseAttemptResult(raw string) (AttemptResult, error) {
	switch r := AttemptResult(raw); r {
	case AttemptSuccess, AttemptFailed, AttemptRescheduled:
		return r, nil
	}
	return "", dErrors.Newf(dErrors.CodeValidation, "unknown attempt result %q", raw)
}

// DeliveryAttempt is one recorded attempt. AttemptNumber is sequential per
// delivery, starting at 1, and never reused.
type DeliveryAttempt struct {
	ID            uuid.UUID
	DeliveryID    id.DeliveryID
	AttemptNumber int
	Result        AttemptResult
	FailureReason string
	Lat           float64
	Lng           float64
	AccuracyM     float64
	// Evidence carries attempt-level proof (photo ref, signature ref,
	// refusal note).
	Evidence      map[string]string
	NextAttemptAt *time.Time
	RecordedAt    time.Time
}
