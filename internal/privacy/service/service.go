// Package service orchestrates LGPD data-subject requests and consent
// records. Lifecycle legality lives on the entities; this layer loads,
// applies the entity method, and commits with a compare-and-swap so a
// concurrent transition cannot slip through between load and write.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"lastmile/internal/audit"
	"lastmile/internal/notify"
	"lastmile/internal/privacy/metrics"
	"lastmile/internal/privacy/models"
	"lastmile/internal/privacy/store"
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
	requests store.DataRequestStore
	consents store.ConsentStore
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

func NewService(requests store.DataRequestStore, consents store.ConsentStore, runner tx.Runner, recorder Recorder, opts ...Option) *Service {
	s := &Service{
		requests: requests,
		consents: consents,
		runner:   runner,
		recorder: recorder,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ==================== Data requests ====================

// CreateRequest opens a data-subject request. The due date is derived from
// the type's legal response window at creation and never moves.
func (s *Service) CreateRequest(ctx context.Context, userID id.UserID, requestType models.RequestType) (*models.DataRequest, error) {
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "user id is required")
	}
	if _, err := models.ParseRequestType(string(requestType)); err != nil {
		return nil, err
	}

	request := models.NewDataRequest(userID, requestType, requestcontext.Now(ctx))
	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.requests.Create(ctx, request); err != nil {
			return fmt.Errorf("create data request: %w", err)
		}
		return s.recorder.RecordMutation(ctx, audit.EventDataRequestCreated, nil, request,
			fmt.Sprintf("%s request opened", requestType))
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RequestsCreated.WithLabelValues(string(requestType)).Inc()
	}
	s.logger.InfoContext(ctx, "data request created",
		"request_id", request.ID,
		"type", requestType,
		"due_date", request.DueDate,
	)
	return request, nil
}

func (s *Service) GetRequest(ctx context.Context, requestID id.DataRequestID) (*models.DataRequest, error) {
	request, err := s.requests.Get(ctx, requestID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "data request not found")
		}
		return nil, fmt.Errorf("get data request: %w", err)
	}
	return request, nil
}

func (s *Service) ListRequests(ctx context.Context, filter store.RequestFilter) ([]*models.DataRequest, error) {
	return s.requests.List(ctx, filter)
}

// StartProcessing claims a pending request for the acting processor.
func (s *Service) StartProcessing(ctx context.Context, requestID id.DataRequestID) (*models.DataRequest, error) {
	actor := requestcontext.Actor(ctx)
	return s.transition(ctx, requestID, "start", audit.EventDataRequestStarted,
		func(r *models.DataRequest, now time.Time) error {
			return r.StartProcessing(actor.ID, now)
		})
}

// Complete finishes a processing request, attaching the produced artifact.
func (s *Service) Complete(ctx context.Context, requestID id.DataRequestID, file models.FileMetadata) (*models.DataRequest, error) {
	request, err := s.transition(ctx, requestID, "complete", audit.EventDataRequestCompleted,
		func(r *models.DataRequest, now time.Time) error {
			return r.Complete(file, now)
		})
	if err != nil {
		return nil, err
	}
	if s.metrics != nil && request.CompletedAt != nil && request.CompletedAt.After(request.DueDate) {
		s.metrics.OverdueCompleted.Inc()
	}
	return request, nil
}

func (s *Service) Fail(ctx context.Context, requestID id.DataRequestID, errorMessage string) (*models.DataRequest, error) {
	return s.transition(ctx, requestID, "fail", audit.EventDataRequestFailed,
		func(r *models.DataRequest, now time.Time) error {
			return r.Fail(errorMessage, now)
		})
}

func (s *Service) Cancel(ctx context.Context, requestID id.DataRequestID) (*models.DataRequest, error) {
	return s.transition(ctx, requestID, "cancel", audit.EventDataRequestCancelled,
		func(r *models.DataRequest, now time.Time) error {
			return r.Cancel(now)
		})
}

// Expire marks one overdue pending request expired. Exposed for the sweep;
// safe to call concurrently with user transitions because the commit
// re-checks the version the pending snapshot carried.
func (s *Service) Expire(ctx context.Context, requestID id.DataRequestID) (*models.DataRequest, error) {
	request, err := s.transition(ctx, requestID, "expire", audit.EventDataRequestExpired,
		func(r *models.DataRequest, now time.Time) error {
			return r.Expire(now)
		})
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.RequestsExpired.Inc()
	}
	return request, nil
}

// ExpireDue runs one sweep pass: every pending request past due is expired.
// Requests that moved between listing and commit are skipped, which is what
// makes the pass idempotent and safe alongside user traffic.
func (s *Service) ExpireDue(ctx context.Context, batchSize int) (int, error) {
	now := requestcontext.Now(ctx)
	due, err := s.requests.ListPendingPastDue(ctx, now, batchSize)
	if err != nil {
		return 0, fmt.Errorf("list overdue requests: %w", err)
	}

	expired := 0
	for _, request := range due {
		if _, err := s.Expire(ctx, request.ID); err != nil {
			if dErrors.HasCode(err, dErrors.CodeConflict) ||
				dErrors.HasCode(err, dErrors.CodeValidation) ||
				dErrors.HasCode(err, dErrors.CodeDeadline) {
				// Lost the race to a user transition; nothing to do.
				continue
			}
			return expired, err
		}
		expired++
	}
	return expired, nil
}

type lifecycleFn func(r *models.DataRequest, now time.Time) error

func (s *Service) transition(ctx context.Context, requestID id.DataRequestID, op string, eventType audit.EventType, apply lifecycleFn) (*models.DataRequest, error) {
	before, err := s.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	after := before.Clone()
	now := requestcontext.Now(ctx)
	if err := apply(after, now); err != nil {
		if s.metrics != nil {
			s.metrics.RecordLifecycle(op, err)
		}
		return nil, err
	}

	var committed *models.DataRequest
	err = s.runner.RunInTx(ctx, func(ctx context.Context) error {
		updated, err := s.requests.Update(ctx, after, before.Version)
		if err != nil {
			return err
		}
		committed = updated
		return s.recorder.RecordMutation(ctx, eventType, before, committed,
			fmt.Sprintf("data request %s", op))
	})
	if err != nil {
		switch {
		case errors.Is(err, sentinel.ErrVersionConflict):
			return nil, dErrors.New(dErrors.CodeConflict, "data request was modified concurrently, retry")
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.New(dErrors.CodeNotFound, "data request not found")
		}
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordLifecycle(op, nil)
	}
	s.logger.InfoContext(ctx, "data request transitioned",
		"request_id", requestID,
		"op", op,
		"from", before.Status,
		"to", committed.Status,
	)
	s.dispatch(ctx, committed)
	return committed, nil
}

func (s *Service) dispatch(ctx context.Context, request *models.DataRequest) {
	if s.notifier == nil {
		return
	}
	event := notify.Event{
		Type:       "privacy.request_" + string(request.Status),
		EntityKind: "data_request",
		EntityID:   request.ID.String(),
		Payload:    map[string]string{"type": string(request.Type)},
	}
	if err := s.notifier.Notify(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "privacy notification failed",
			"request_id", request.ID,
			"error", err,
		)
	}
}

// ==================== Consent ====================

// GrantInput describes one consent grant.
type GrantInput struct {
	UserID             id.UserID
	Type               models.ConsentType
	TermsVersion       string
	PurposeDescription string
	ExpiresAt          *time.Time
}

// GrantConsent inserts a new active consent record. Re-granting after a
// revocation always creates a new record; old records are never revived.
func (s *Service) GrantConsent(ctx context.Context, in GrantInput) (*models.Consent, error) {
	if in.UserID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "user id is required")
	}
	if _, err := models.ParseConsentType(string(in.Type)); err != nil {
		return nil, err
	}
	if in.TermsVersion == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "terms version is required")
	}

	consent := models.NewConsent(in.UserID, in.Type, in.TermsVersion, in.PurposeDescription, in.ExpiresAt, requestcontext.Now(ctx))
	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.consents.Create(ctx, consent); err != nil {
			return fmt.Errorf("create consent: %w", err)
		}
		return s.recorder.RecordMutation(ctx, audit.EventConsentGranted, nil, consent,
			fmt.Sprintf("consent granted: %s", in.Type))
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.ConsentGranted.Inc()
	}
	return consent, nil
}

// RevokeConsent deactivates one consent record.
func (s *Service) RevokeConsent(ctx context.Context, consentID id.ConsentID, reason string) (*models.Consent, error) {
	before, err := s.consents.Get(ctx, consentID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "consent not found")
		}
		return nil, fmt.Errorf("get consent: %w", err)
	}

	after := before.Clone()
	if err := after.Revoke(reason, requestcontext.Now(ctx)); err != nil {
		return nil, err
	}

	err = s.runner.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.consents.Update(ctx, after); err != nil {
			return fmt.Errorf("update consent: %w", err)
		}
		return s.recorder.RecordMutation(ctx, audit.EventConsentRevoked, before, after, "consent revoked")
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.ConsentRevoked.Inc()
	}
	s.logger.InfoContext(ctx, "consent revoked",
		"consent_id", consentID,
		"type", after.Type,
	)
	return after, nil
}

func (s *Service) ListConsents(ctx context.Context, userID id.UserID) ([]*models.Consent, error) {
	return s.consents.ListByUser(ctx, userID)
}
