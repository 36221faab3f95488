package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"lastmile/internal/audit"
	"lastmile/internal/delivery/models"
	"lastmile/internal/delivery/store"
	id "lastmile/pkg/domain"
	dErrors "lastmile/pkg/domain-errors"
	"lastmile/pkg/platform/tx"
	"lastmile/pkg/requestcontext"
)

type DeliveryServiceSuite struct {
	suite.Suite
	ctx        context.Context
	store      *store.InMemoryStore
	auditStore *audit.InMemoryStore
	svc        *Service
}

func TestDeliveryServiceSuite(t *testing.T) {
	suite.Run(t, new(DeliveryServiceSuite))
}

func (s *DeliveryServiceSuite) SetupTest() {
	s.ctx = requestcontext.WithActor(context.Background(), requestcontext.ActorInfo{
		ID: "drv-7", Name: "driver", Type: "driver",
	})
	s.store = store.NewInMemoryStore()
	s.auditStore = audit.NewInMemoryStore()
	s.svc = NewService(s.store, tx.NopRunner{}, audit.NewRecorder(s.auditStore))
}

func (s *DeliveryServiceSuite) createDelivery() *models.Delivery {
	delivery, err := s.svc.Create(s.ctx, CreateInput{
		Priority:      models.PriorityNormal,
		Type:          models.TypeParcel,
		RecipientName: "Ana Souza",
		Street:        "Rua das Flores 45",
		City:          "São Paulo",
		State:         "SP",
	})
	s.Require().NoError(err)
	return delivery
}

func (s *DeliveryServiceSuite) advanceTo(deliveryID id.DeliveryID, path ...models.DeliveryStatus) *models.Delivery {
	var last *models.Delivery
	for _, target := range path {
		var err error
		last, err = s.svc.ChangeStatus(s.ctx, deliveryID, target, "")
		s.Require().NoError(err, "transition to %s", target)
	}
	return last
}

// ==================== Create ====================

func (s *DeliveryServiceSuite) TestCreateDefaults() {
	delivery := s.createDelivery()

	s.Equal(models.DeliveryStatusPending, delivery.Status)
	s.Equal(models.DefaultMaxAttempts, delivery.MaxAttempts)
	s.Zero(delivery.Attempts)
	s.NotEmpty(delivery.TrackingNumber)
	s.Regexp(`^LM\d{6}[0-9A-F]{10}$`, delivery.TrackingNumber)

	found, err := s.svc.GetByTrackingNumber(s.ctx, delivery.TrackingNumber)
	s.Require().NoError(err)
	s.Equal(delivery.ID, found.ID)
}

func (s *DeliveryServiceSuite) TestCreateKeepsProvidedTrackingNumber() {
	delivery, err := s.svc.Create(s.ctx, CreateInput{
		TrackingNumber: "CUSTOM-001",
		Priority:       models.PriorityHigh,
		Type:           models.TypeDocument,
		RecipientName:  "Bruno Lima",
		MaxAttempts:    5,
	})
	s.Require().NoError(err)
	s.Equal("CUSTOM-001", delivery.TrackingNumber)
	s.Equal(5, delivery.MaxAttempts)

	// Tracking numbers are unique.
	_, err = s.svc.Create(s.ctx, CreateInput{
		TrackingNumber: "CUSTOM-001",
		Priority:       models.PriorityHigh,
		Type:           models.TypeDocument,
		RecipientName:  "Carla Dias",
	})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *DeliveryServiceSuite) TestCreateValidation() {
	tests := []struct {
		name string
		in   CreateInput
	}{
		{"bad priority", CreateInput{Priority: "asap", Type: models.TypeParcel, RecipientName: "X"}},
		{"bad type", CreateInput{Priority: models.PriorityLow, Type: "livestock", RecipientName: "X"}},
		{"missing recipient", CreateInput{Priority: models.PriorityLow, Type: models.TypeParcel}},
		{"negative max attempts", CreateInput{Priority: models.PriorityLow, Type: models.TypeParcel, RecipientName: "X", MaxAttempts: -1}},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, err := s.svc.Create(s.ctx, tt.in)
			s.Require().Error(err)
			s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		})
	}
}

// ==================== ChangeStatus ====================

func (s *DeliveryServiceSuite) TestHappyPathToDelivered() {
	delivery := s.createDelivery()
	final := s.advanceTo(delivery.ID,
		models.DeliveryStatusPickedUp,
		models.DeliveryStatusInTransit,
		models.DeliveryStatusOutForDelivery,
		models.DeliveryStatusDelivered,
	)
	s.Equal(models.DeliveryStatusDelivered, final.Status)
	s.Equal(5, final.Version)
}

func (s *DeliveryServiceSuite) TestPendingCannotDeliver() {
	delivery := s.createDelivery()
	_, err := s.svc.ChangeStatus(s.ctx, delivery.ID, models.DeliveryStatusDelivered, "")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	s.Contains(err.Error(), "pending")
	s.Contains(err.Error(), "delivered")
}

func (s *DeliveryServiceSuite) TestFailedCanGoBackOut() {
	delivery := s.createDelivery()
	s.advanceTo(delivery.ID,
		models.DeliveryStatusPickedUp,
		models.DeliveryStatusInTransit,
		models.DeliveryStatusOutForDelivery,
	)
	_, err := s.svc.ChangeStatus(s.ctx, delivery.ID, models.DeliveryStatusFailed, "recipient absent")
	s.Require().NoError(err)

	// failed is not terminal: the re-attempt path reopens the delivery.
	reopened, err := s.svc.ChangeStatus(s.ctx, delivery.ID, models.DeliveryStatusOutForDelivery, "")
	s.Require().NoError(err)
	s.Equal(models.DeliveryStatusOutForDelivery, reopened.Status)
}

func (s *DeliveryServiceSuite) TestFailRequiresReason() {
	delivery := s.createDelivery()
	_, err := s.svc.ChangeStatus(s.ctx, delivery.ID, models.DeliveryStatusFailed, "")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *DeliveryServiceSuite) TestTerminalStatusesLocked() {
	delivery := s.createDelivery()
	s.advanceTo(delivery.ID, models.DeliveryStatusCancelled)

	for _, target := range []models.DeliveryStatus{
		models.DeliveryStatusPending,
		models.DeliveryStatusPickedUp,
		models.DeliveryStatusDelivered,
	} {
		_, err := s.svc.ChangeStatus(s.ctx, delivery.ID, target, "")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	}
}

// ==================== RecordAttempt ====================

func (s *DeliveryServiceSuite) TestAttemptsNumberSequentially() {
	delivery := s.createDelivery()
	s.advanceTo(delivery.ID,
		models.DeliveryStatusPickedUp,
		models.DeliveryStatusInTransit,
		models.DeliveryStatusOutForDelivery,
	)

	next := time.Now().Add(4 * time.Hour)
	_, err := s.svc.RecordAttempt(s.ctx, delivery.ID, AttemptInput{
		Result: models.AttemptRescheduled, FailureReason: "recipient absent", NextAttemptAt: &next,
	})
	s.Require().NoError(err)

	updated, err := s.svc.RecordAttempt(s.ctx, delivery.ID, AttemptInput{
		Result: models.AttemptSuccess, Evidence: map[string]string{"signature": "sig-123"},
	})
	s.Require().NoError(err)
	s.Equal(models.DeliveryStatusDelivered, updated.Status)
	s.Equal(2, updated.Attempts)
	s.Equal("sig-123", updated.Proof["signature"])

	attempts, err := s.svc.ListAttempts(s.ctx, delivery.ID)
	s.Require().NoError(err)
	s.Require().Len(attempts, 2)
	s.Equal(1, attempts[0].AttemptNumber)
	s.Equal(2, attempts[1].AttemptNumber)
}

func (s *DeliveryServiceSuite) TestThreeFailedAttemptsAutoFail() {
	delivery := s.createDelivery()
	s.advanceTo(delivery.ID,
		models.DeliveryStatusPickedUp,
		models.DeliveryStatusInTransit,
		models.DeliveryStatusOutForDelivery,
	)

	for i := 0; i < 2; i++ {
		updated, err := s.svc.RecordAttempt(s.ctx, delivery.ID, AttemptInput{Result: models.AttemptFailed})
		s.Require().NoError(err)
		s.Equal(models.DeliveryStatusOutForDelivery, updated.Status)
	}

	// Third failed attempt hits the ceiling: forced failed, default reason.
	updated, err := s.svc.RecordAttempt(s.ctx, delivery.ID, AttemptInput{Result: models.AttemptFailed})
	s.Require().NoError(err)
	s.Equal(models.DeliveryStatusFailed, updated.Status)
	s.Equal(3, updated.Attempts)
	s.Equal(models.DefaultFailureReason, updated.FailureReason)

	// Fourth attempt would exceed the ceiling: rejected, nothing written.
	_, err = s.svc.RecordAttempt(s.ctx, delivery.ID, AttemptInput{Result: models.AttemptFailed})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	final, err := s.svc.Get(s.ctx, delivery.ID)
	s.Require().NoError(err)
	s.Equal(3, final.Attempts)

	attempts, err := s.svc.ListAttempts(s.ctx, delivery.ID)
	s.Require().NoError(err)
	s.Len(attempts, 3)
}

func (s *DeliveryServiceSuite) TestAutoFailKeepsSuppliedReason() {
	delivery := s.createDelivery()
	s.advanceTo(delivery.ID,
		models.DeliveryStatusPickedUp,
		models.DeliveryStatusInTransit,
		models.DeliveryStatusOutForDelivery,
	)
	for i := 0; i < 2; i++ {
		_, err := s.svc.RecordAttempt(s.ctx, delivery.ID, AttemptInput{Result: models.AttemptFailed})
		s.Require().NoError(err)
	}

	updated, err := s.svc.RecordAttempt(s.ctx, delivery.ID, AttemptInput{
		Result: models.AttemptFailed, FailureReason: "address does not exist",
	})
	s.Require().NoError(err)
	s.Equal(models.DeliveryStatusFailed, updated.Status)
	s.Equal("address does not exist", updated.FailureReason)
}

func (s *DeliveryServiceSuite) TestSuccessOnLastAttemptIsNotAutoFailed() {
	delivery := s.createDelivery()
	s.advanceTo(delivery.ID,
		models.DeliveryStatusPickedUp,
		models.DeliveryStatusInTransit,
		models.DeliveryStatusOutForDelivery,
	)
	for i := 0; i < 2; i++ {
		_, err := s.svc.RecordAttempt(s.ctx, delivery.ID, AttemptInput{Result: models.AttemptFailed})
		s.Require().NoError(err)
	}

	// The final allowed attempt succeeds: delivered wins over the ceiling.
	updated, err := s.svc.RecordAttempt(s.ctx, delivery.ID, AttemptInput{Result: models.AttemptSuccess})
	s.Require().NoError(err)
	s.Equal(models.DeliveryStatusDelivered, updated.Status)
	s.Equal(3, updated.Attempts)
	s.Empty(updated.FailureReason)
}

func (s *DeliveryServiceSuite) TestAttemptRejectedOnTerminalDelivery() {
	delivery := s.createDelivery()
	s.advanceTo(delivery.ID, models.DeliveryStatusCancelled)

	_, err := s.svc.RecordAttempt(s.ctx, delivery.ID, AttemptInput{Result: models.AttemptFailed})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *DeliveryServiceSuite) TestRescheduledRequiresNextAttemptAt() {
	delivery := s.createDelivery()
	_, err := s.svc.RecordAttempt(s.ctx, delivery.ID, AttemptInput{Result: models.AttemptRescheduled})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

// ==================== Audit trail ====================

func (s *DeliveryServiceSuite) TestAuditTrailCoversAttemptLifecycle() {
	delivery := s.createDelivery()
	s.advanceTo(delivery.ID,
		models.DeliveryStatusPickedUp,
		models.DeliveryStatusInTransit,
		models.DeliveryStatusOutForDelivery,
	)
	for i := 0; i < 3; i++ {
		_, err := s.svc.RecordAttempt(s.ctx, delivery.ID, AttemptInput{Result: models.AttemptFailed})
		s.Require().NoError(err)
	}

	entries, err := s.auditStore.ListByEntity(s.ctx, "delivery", delivery.ID.String())
	s.Require().NoError(err)
	// creation + 3 transitions + 3 attempts + 1 auto-fail
	s.Require().Len(entries, 8)

	// Newest first: the auto-fail entry sits on top.
	s.Equal(audit.EventDeliveryAutoFailed, entries[0].EventType)
	s.Equal("out_for_delivery", entries[0].PreviousStatus)
	s.Equal("failed", entries[0].NewStatus)
	s.Equal("drv-7", entries[0].ActorID)
	s.Equal(audit.CategoryCompliance, entries[0].Category)

	change, ok := entries[0].ChangedFields["attempts"]
	s.Require().True(ok)
	s.Equal("2", change.Before)
	s.Equal("3", change.After)
}
