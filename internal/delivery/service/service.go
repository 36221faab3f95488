// Package service orchestrates the delivery lifecycle: status transitions
// through the transition table and attempt recording under the ceiling rule.
// Both run the same commit discipline as routes: validate on a snapshot,
// compare-and-swap at the store, audit in the same transaction.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"lastmile/internal/audit"
	"lastmile/internal/delivery/metrics"
	"lastmile/internal/delivery/models"
	"lastmile/internal/delivery/store"
	"lastmile/internal/notify"
	id "lastmile/pkg/domain"
	dErrors "lastmile/pkg/domain-errors"
	"lastmile/pkg/platform/sentinel"
	"lastmile/pkg/platform/tx"
	"lastmile/pkg/requestcontext"
)

// Recorder is the slice of the audit recorder this service needs.
type Recorder interface {
	RecordMutation(ctx context.Context, eventType audit.EventType, before, after audit.Auditable, description string) error
}

type Service struct {
	store    store.Store
	runner   tx.Runner
	recorder Recorder
	notifier notify.Notifier
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithNotifier(n notify.Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(st store.Store, runner tx.Runner, recorder Recorder, opts ...Option) *Service {
	s := &Service{
		store:    st,
		runner:   runner,
		recorder: recorder,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateInput carries everything needed to register a new delivery.
// TrackingNumber is generated when absent; MaxAttempts defaults to 3.
type CreateInput struct {
	TrackingNumber string
	Priority       models.Priority
	Type           models.DeliveryType
	RouteID        id.RouteID
	RecipientName  string
	Street         string
	City           string
	State          string
	MaxAttempts    int
}

func (s *Service) Create(ctx context.Context, in CreateInput) (*models.Delivery, error) {
	if !in.Priority.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeValidation, "invalid priority %q", in.Priority)
	}
	if !in.Type.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeValidation, "invalid delivery type %q", in.Type)
	}
	if in.MaxAttempts < 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "max attempts must not be negative")
	}
	if in.RecipientName == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "recipient name is required")
	}

	now := requestcontext.Now(ctx)
	maxAttempts := in.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = models.DefaultMaxAttempts
	}
	trackingNumber := in.TrackingNumber
	if trackingNumber == "" {
		trackingNumber = models.NewTrackingNumber(now)
	}

	delivery := &models.Delivery{
		ID:             id.NewDeliveryID(),
		Version:        1,
		TrackingNumber: trackingNumber,
		Status:         models.DeliveryStatusPending,
		Priority:       in.Priority,
		Type:           in.Type,
		RouteID:        in.RouteID,
		RecipientName:  in.RecipientName,
		Street:         in.Street,
		City:           in.City,
		State:          in.State,
		MaxAttempts:    maxAttempts,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.Create(ctx, delivery); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeConflict, "tracking number already in use")
			}
			return fmt.Errorf("create delivery: %w", err)
		}
		return s.recorder.RecordMutation(ctx, audit.EventDeliveryCreated, nil, delivery, "delivery registered")
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.DeliveriesCreated.Inc()
	}
	s.logger.InfoContext(ctx, "delivery created",
		"delivery_id", delivery.ID,
		"tracking_number", delivery.TrackingNumber,
	)
	return delivery, nil
}

func (s *Service) Get(ctx context.Context, deliveryID id.DeliveryID) (*models.Delivery, error) {
	delivery, err := s.store.Get(ctx, deliveryID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "delivery not found")
		}
		return nil, fmt.Errorf("get delivery: %w", err)
	}
	return delivery, nil
}

func (s *Service) GetByTrackingNumber(ctx context.Context, trackingNumber string) (*models.Delivery, error) {
	delivery, err := s.store.GetByTrackingNumber(ctx, trackingNumber)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "delivery not found")
		}
		return nil, fmt.Errorf("get delivery by tracking number: %w", err)
	}
	return delivery, nil
}

func (s *Service) List(ctx context.Context, filter store.Filter) ([]*models.Delivery, error) {
	return s.store.List(ctx, filter)
}

func (s *Service) ListAttempts(ctx context.Context, deliveryID id.DeliveryID) ([]*models.DeliveryAttempt, error) {
	if _, err := s.Get(ctx, deliveryID); err != nil {
		return nil, err
	}
	return s.store.ListAttempts(ctx, deliveryID)
}

// ChangeStatus moves a delivery to the target status. reason is required
// when the target is failed and ignored otherwise.
func (s *Service) ChangeStatus(ctx context.Context, deliveryID id.DeliveryID, target models.DeliveryStatus, reason string) (*models.Delivery, error) {
	if !models.Transitions.Known(target) {
		return nil, dErrors.Newf(dErrors.CodeValidation, "unknown delivery status %q", target)
	}
	if target == models.DeliveryStatusFailed && reason == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "failure reason is required when failing a delivery")
	}

	before, err := s.Get(ctx, deliveryID)
	if err != nil {
		return nil, err
	}
	if err := models.Transitions.Validate("delivery", before.Status, target); err != nil {
		if s.metrics != nil {
			s.metrics.TransitionRejected.WithLabelValues(string(before.Status), string(target)).Inc()
		}
		return nil, err
	}

	var after *models.Delivery
	err = s.runner.RunInTx(ctx, func(ctx context.Context) error {
		updated, err := s.store.UpdateStatus(ctx, deliveryID, before.Status, target, before.Version, reason)
		if err != nil {
			return err
		}
		after = updated
		return s.recorder.RecordMutation(ctx, audit.EventDeliveryStatusChanged, before, after,
			fmt.Sprintf("delivery %s -> %s", before.Status, target))
	})
	if err != nil {
		return nil, s.mapCommitError(err)
	}

	if s.metrics != nil {
		s.metrics.Transitions.WithLabelValues(string(before.Status), string(target)).Inc()
	}
	s.logger.InfoContext(ctx, "delivery status changed",
		"delivery_id", deliveryID,
		"from", before.Status,
		"to", target,
	)
	s.dispatch(ctx, after, "delivery.status_changed")
	return after, nil
}

// AttemptInput describes one driver-reported delivery attempt.
type AttemptInput struct {
	Result        models.AttemptResult
	FailureReason string
	Lat           float64
	Lng           float64
	AccuracyM     float64
	Evidence      map[string]string
	NextAttemptAt *time.Time
}

// RecordAttempt appends an attempt and applies the ceiling rule:
//   - an attempt that would push the count past MaxAttempts is rejected
//     outright, nothing is written;
//   - a successful attempt moves the delivery to delivered when the table
//     allows it, and the attempt evidence becomes the proof of delivery;
//   - reaching the ceiling in any status outside {delivered, failed,
//     cancelled} forces the delivery to failed, defaulting the failure
//     reason when the attempt carried none.
func (s *Service) RecordAttempt(ctx context.Context, deliveryID id.DeliveryID, in AttemptInput) (*models.Delivery, error) {
	if _, err := models.ParseAttemptResult(string(in.Result)); err != nil {
		return nil, err
	}
	if in.Result == models.AttemptRescheduled && in.NextAttemptAt == nil {
		return nil, dErrors.New(dErrors.CodeValidation, "rescheduled attempt requires a next attempt time")
	}

	before, err := s.Get(ctx, deliveryID)
	if err != nil {
		return nil, err
	}
	if models.Transitions.IsTerminal(before.Status) {
		return nil, dErrors.Newf(dErrors.CodeValidation,
			"cannot record attempt on %s delivery", before.Status)
	}

	newAttempts := before.Attempts + 1
	if newAttempts > before.MaxAttempts {
		if s.metrics != nil {
			s.metrics.CeilingRejected.Inc()
		}
		return nil, dErrors.Newf(dErrors.CodeValidation,
			"attempt %d would exceed maximum of %d", newAttempts, before.MaxAttempts)
	}

	commit := store.AttemptCommit{
		DeliveryID: deliveryID,
		FromStatus: before.Status,
		Version:    before.Version,
		Attempts:   newAttempts,
		NewStatus:  before.Status,
	}
	if in.Result == models.AttemptSuccess && models.Transitions.IsValid(before.Status, models.DeliveryStatusDelivered) {
		commit.NewStatus = models.DeliveryStatusDelivered
		commit.Proof = in.Evidence
	}

	autoFailed := false
	if newAttempts >= before.MaxAttempts && !models.StopsAttemptEscalation(commit.NewStatus) {
		commit.NewStatus = models.DeliveryStatusFailed
		commit.FailureReason = in.FailureReason
		if commit.FailureReason == "" {
			commit.FailureReason = models.DefaultFailureReason
		}
		autoFailed = true
	}

	now := requestcontext.Now(ctx)
	attempt := &models.DeliveryAttempt{
		ID:            uuid.New(),
		DeliveryID:    deliveryID,
		AttemptNumber: newAttempts,
		Result:        in.Result,
		FailureReason: in.FailureReason,
		Lat:           in.Lat,
		Lng:           in.Lng,
		AccuracyM:     in.AccuracyM,
		Evidence:      in.Evidence,
		NextAttemptAt: in.NextAttemptAt,
		RecordedAt:    now,
	}

	var after *models.Delivery
	err = s.runner.RunInTx(ctx, func(ctx context.Context) error {
		updated, err := s.store.RecordAttempt(ctx, attempt, commit)
		if err != nil {
			return err
		}
		after = updated
		if err := s.recorder.RecordMutation(ctx, audit.EventAttemptRecorded, before, after,
			fmt.Sprintf("attempt %d: %s", newAttempts, in.Result)); err != nil {
			return err
		}
		if autoFailed {
			return s.recorder.RecordMutation(ctx, audit.EventDeliveryAutoFailed, before, after,
				"attempt ceiling reached")
		}
		return nil
	})
	if err != nil {
		return nil, s.mapCommitError(err)
	}

	if s.metrics != nil {
		s.metrics.AttemptsRecorded.WithLabelValues(string(in.Result)).Inc()
		if autoFailed {
			s.metrics.AutoFailed.Inc()
		}
	}
	if autoFailed {
		s.logger.WarnContext(ctx, "delivery auto-failed at attempt ceiling",
			"delivery_id", deliveryID,
			"attempts", newAttempts,
		)
		s.dispatch(ctx, after, "delivery.auto_failed")
	} else {
		s.logger.InfoContext(ctx, "delivery attempt recorded",
			"delivery_id", deliveryID,
			"attempt", newAttempts,
			"result", in.Result,
		)
	}
	return after, nil
}

func (s *Service) mapCommitError(err error) error {
	switch {
	case errors.Is(err, sentinel.ErrVersionConflict):
		if s.metrics != nil {
			s.metrics.VersionConflicts.Inc()
		}
		return dErrors.New(dErrors.CodeConflict, "delivery was modified concurrently, retry")
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "delivery not found")
	}
	return err
}

func (s *Service) dispatch(ctx context.Context, delivery *models.Delivery, eventType string) {
	if s.notifier == nil {
		return
	}
	event := notify.Event{
		Type:       eventType,
		EntityKind: "delivery",
		EntityID:   delivery.ID.String(),
		Payload: map[string]string{
			"status":          string(delivery.Status),
			"tracking_number": delivery.TrackingNumber,
		},
	}
	if err := s.notifier.Notify(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "delivery notification failed",
			"delivery_id", delivery.ID,
			"error", err,
		)
	}
}
