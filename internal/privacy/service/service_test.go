package service

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"lastmile/internal/audit"
	"lastmile/internal/privacy/models"
	"lastmile/internal/privacy/store"
	id "lastmile/pkg/domain"
	dErrors "lastmile/pkg/domain-errors"
	"lastmile/pkg/platform/tx"
	"lastmile/pkg/requestcontext"
)

type PrivacyServiceSuite struct {
	suite.Suite
	ctx        context.Context
	base       time.Time
	requests   *store.InMemoryDataRequestStore
	consents   *store.InMemoryConsentStore
	auditStore *audit.InMemoryStore
	svc        *Service
}

func TestPrivacyServiceSuite(t *testing.T) {
	suite.Run(t, new(PrivacyServiceSuite))
}

func (s *PrivacyServiceSuite) SetupTest() {
	s.base = time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithActor(context.Background(), requestcontext.ActorInfo{
		ID: "dpo-1", Name: "privacy officer", Type: "admin",
	})
	s.ctx = requestcontext.WithTime(ctx, s.base)
	s.requests = store.NewInMemoryDataRequestStore()
	s.consents = store.NewInMemoryConsentStore()
	s.auditStore = audit.NewInMemoryStore()
	recorder := audit.NewRecorder(s.auditStore, audit.WithLogger(slog.Default()))
	s.svc = NewService(s.requests, s.consents, tx.NopRunner{}, recorder)
}

// at returns s.ctx with the clock moved by d past the base time.
func (s *PrivacyServiceSuite) at(d time.Duration) context.Context {
	return requestcontext.WithTime(s.ctx, s.base.Add(d))
}

func (s *PrivacyServiceSuite) createRequest(requestType models.RequestType) *models.DataRequest {
	request, err := s.svc.CreateRequest(s.ctx, id.NewUserID(), requestType)
	s.Require().NoError(err)
	return request
}

// ==================== CreateRequest ====================

func (s *PrivacyServiceSuite) TestCreateSetsLegalDueDate() {
	access := s.createRequest(models.RequestDataAccess)
	s.Equal(models.StatusPending, access.Status)
	s.Equal(1, access.Version)
	s.True(access.DueDate.Equal(s.base.Add(15*24*time.Hour)))

	revocation := s.createRequest(models.RequestConsentRevocation)
	s.True(revocation.DueDate.Equal(s.base.Add(2 * 24 * time.Hour)))

	entries, err := s.auditStore.ListByEntity(s.ctx, "data_request", access.ID.String())
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal(audit.EventDataRequestCreated, entries[0].EventType)
	s.Equal("dpo-1", entries[0].ActorID)
}

func (s *PrivacyServiceSuite) TestCreateRejectsBadInput() {
	_, err := s.svc.CreateRequest(s.ctx, id.UserID{}, models.RequestDataAccess)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = s.svc.CreateRequest(s.ctx, id.NewUserID(), models.RequestType("data_hoarding"))
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

// ==================== Lifecycle ====================

func (s *PrivacyServiceSuite) TestFullLifecycleToCompleted() {
	request := s.createRequest(models.RequestDataPortability)

	started, err := s.svc.StartProcessing(s.ctx, request.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusProcessing, started.Status)
	s.Equal("dpo-1", started.ProcessedBy)
	s.Equal(2, started.Version)

	file := models.FileMetadata{Path: "exports/u1.zip", Hash: "abc123", Size: 2048}
	completed, err := s.svc.Complete(s.ctx, request.ID, file)
	s.Require().NoError(err)
	s.Equal(models.StatusCompleted, completed.Status)
	s.Equal(file, completed.File)
	s.Equal(3, completed.Version)

	entries, err := s.auditStore.ListByEntity(s.ctx, "data_request", request.ID.String())
	s.Require().NoError(err)
	s.Require().Len(entries, 3)
	s.Equal(audit.EventDataRequestCompleted, entries[0].EventType)
	s.Equal("processing", entries[0].PreviousStatus)
	s.Equal("completed", entries[0].NewStatus)
}

func (s *PrivacyServiceSuite) TestIllegalTransitionsMapToCodes() {
	request := s.createRequest(models.RequestDataAccess)

	// Complete straight from pending: wrong live state.
	_, err := s.svc.Complete(s.ctx, request.ID, models.FileMetadata{})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	// Terminal states reject every lifecycle call with a deadline error.
	_, err = s.svc.Cancel(s.ctx, request.ID)
	s.Require().NoError(err)

	_, err = s.svc.StartProcessing(s.ctx, request.ID)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeDeadline))

	_, err = s.svc.Fail(s.ctx, request.ID, "boom")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeDeadline))

	// Rejections leave no audit trace.
	entries, err := s.auditStore.ListByEntity(s.ctx, "data_request", request.ID.String())
	s.Require().NoError(err)
	s.Len(entries, 2) // creation + cancellation
}

func (s *PrivacyServiceSuite) TestFailFromPendingAndProcessing() {
	fromPending := s.createRequest(models.RequestDataErasure)
	failed, err := s.svc.Fail(s.ctx, fromPending.ID, "user unreachable")
	s.Require().NoError(err)
	s.Equal(models.StatusFailed, failed.Status)
	s.Equal("user unreachable", failed.ErrorMessage)

	fromProcessing := s.createRequest(models.RequestDataErasure)
	_, err = s.svc.StartProcessing(s.ctx, fromProcessing.ID)
	s.Require().NoError(err)
	_, err = s.svc.Fail(s.ctx, fromProcessing.ID, "export pipeline error")
	s.Require().NoError(err)
}

func (s *PrivacyServiceSuite) TestCompletePastDeadlineStillCompletes() {
	request := s.createRequest(models.RequestDataAccess)
	_, err := s.svc.StartProcessing(s.ctx, request.ID)
	s.Require().NoError(err)

	// 20 days in: past the 15-day window, completion is late but legal.
	late := s.at(20 * 24 * time.Hour)
	completed, err := s.svc.Complete(late, request.ID, models.FileMetadata{Path: "exports/late.zip"})
	s.Require().NoError(err)
	s.Equal(models.StatusCompleted, completed.Status)
	s.False(completed.IsWithinLegalDeadline(s.base.Add(20 * 24 * time.Hour)))
}

// ==================== Expiry sweep ====================

func (s *PrivacyServiceSuite) TestExpireDueOnlyTouchesOverduePending() {
	overdue := s.createRequest(models.RequestConsentRevocation) // due in 2 days
	fresh := s.createRequest(models.RequestDataAccess)          // due in 15 days
	claimed := s.createRequest(models.RequestConsentRevocation)
	_, err := s.svc.StartProcessing(s.ctx, claimed.ID)
	s.Require().NoError(err)

	// Three days in: only the pending revocation request is expirable.
	sweepCtx := s.at(3 * 24 * time.Hour)
	expired, err := s.svc.ExpireDue(sweepCtx, 100)
	s.Require().NoError(err)
	s.Equal(1, expired)

	got, err := s.svc.GetRequest(s.ctx, overdue.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusExpired, got.Status)

	got, err = s.svc.GetRequest(s.ctx, fresh.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusPending, got.Status)

	got, err = s.svc.GetRequest(s.ctx, claimed.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusProcessing, got.Status)
}

func (s *PrivacyServiceSuite) TestExpireDueIsIdempotent() {
	request := s.createRequest(models.RequestConsentRevocation)

	sweepCtx := s.at(3 * 24 * time.Hour)
	expired, err := s.svc.ExpireDue(sweepCtx, 100)
	s.Require().NoError(err)
	s.Equal(1, expired)

	// Second pass finds nothing: expired is terminal, not pending.
	expired, err = s.svc.ExpireDue(sweepCtx, 100)
	s.Require().NoError(err)
	s.Equal(0, expired)

	got, err := s.svc.GetRequest(s.ctx, request.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusExpired, got.Status)
	s.Equal(2, got.Version)

	entries, err := s.auditStore.ListByEntity(s.ctx, "data_request", request.ID.String())
	s.Require().NoError(err)
	s.Len(entries, 2) // creation + one expiry, never two
}

func (s *PrivacyServiceSuite) TestExpireExactlyAtDueDateIsRejected() {
	request := s.createRequest(models.RequestDataAccess)

	atDue := requestcontext.WithTime(s.ctx, request.DueDate)
	expired, err := s.svc.ExpireDue(atDue, 100)
	s.Require().NoError(err)
	s.Equal(0, expired)

	got, err := s.svc.GetRequest(s.ctx, request.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusPending, got.Status)
}

// ==================== Consent ====================

func (s *PrivacyServiceSuite) TestGrantAndRevokeConsent() {
	userID := id.NewUserID()
	consent, err := s.svc.GrantConsent(s.ctx, GrantInput{
		UserID:             userID,
		Type:               models.ConsentGeolocation,
		TermsVersion:       "2026-03",
		PurposeDescription: "live delivery tracking",
	})
	s.Require().NoError(err)
	s.True(consent.Active)
	s.True(consent.IsActiveAt(s.base))

	revoked, err := s.svc.RevokeConsent(s.ctx, consent.ID, "user opted out")
	s.Require().NoError(err)
	s.False(revoked.Active)
	s.Equal("user opted out", revoked.RevocationReason)

	// Revoking twice is an error, the record stays as the first one left it.
	_, err = s.svc.RevokeConsent(s.ctx, consent.ID, "again")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	listed, err := s.svc.ListConsents(s.ctx, userID)
	s.Require().NoError(err)
	s.Require().Len(listed, 1)
	s.Equal("user opted out", listed[0].RevocationReason)

	entries, err := s.auditStore.ListByEntity(s.ctx, "consent", consent.ID.String())
	s.Require().NoError(err)
	s.Require().Len(entries, 2)
	s.Equal(audit.EventConsentRevoked, entries[0].EventType)
	s.Equal("active", entries[0].PreviousStatus)
	s.Equal("revoked", entries[0].NewStatus)
}

func (s *PrivacyServiceSuite) TestGrantConsentValidation() {
	_, err := s.svc.GrantConsent(s.ctx, GrantInput{
		UserID: id.NewUserID(), Type: models.ConsentType("mind_reading"), TermsVersion: "1",
	})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = s.svc.GrantConsent(s.ctx, GrantInput{
		UserID: id.NewUserID(), Type: models.ConsentMarketing,
	})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}
