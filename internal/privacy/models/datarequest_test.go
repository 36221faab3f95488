package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	id "lastmile/pkg/domain"
	dErrors "lastmile/pkg/domain-errors"
)

type DataRequestSuite struct {
	suite.Suite
	now time.Time
}

func TestDataRequestSuite(t *testing.T) {
	suite.Run(t, new(DataRequestSuite))
}

func (s *DataRequestSuite) SetupTest() {
	s.now = time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
}

func (s *DataRequestSuite) newRequest(t RequestType) *DataRequest {
	return NewDataRequest(id.NewUserID(), t, s.now)
}

// ==================== Due dates ====================

func (s *DataRequestSuite) TestDueDatePerType() {
	fifteenDays := s.now.Add(15 * 24 * time.Hour)
	twoDays := s.now.Add(2 * 24 * time.Hour)

	for _, t := range []RequestType{RequestDataPortability, RequestDataErasure, RequestDataAccess, RequestDataCorrection} {
		s.Run(string(t), func() {
			r := s.newRequest(t)
			s.True(r.DueDate.Equal(fifteenDays))
		})
	}
	r := s.newRequest(RequestConsentRevocation)
	s.True(r.DueDate.Equal(twoDays))
}

func (s *DataRequestSuite) TestIsWithinLegalDeadline() {
	r := s.newRequest(RequestDataAccess)
	s.True(r.IsWithinLegalDeadline(s.now))
	s.True(r.IsWithinLegalDeadline(r.DueDate)) // inclusive
	s.False(r.IsWithinLegalDeadline(r.DueDate.Add(time.Second)))
}

// ==================== Lifecycle ====================

func (s *DataRequestSuite) TestFullProcessingLifecycle() {
	r := s.newRequest(RequestDataPortability)

	s.Require().NoError(r.StartProcessing("admin-1", s.now.Add(time.Hour)))
	s.Equal(StatusProcessing, r.Status)
	s.Equal("admin-1", r.ProcessedBy)
	s.Require().NotNil(r.ProcessingStartedAt)

	file := FileMetadata{Path: "exports/user.zip", Hash: "abc123", Size: 2048}
	s.Require().NoError(r.Complete(file, s.now.Add(2*time.Hour)))
	s.Equal(StatusCompleted, r.Status)
	s.Require().NotNil(r.CompletedAt)
	s.Equal(file, r.File)
}

func (s *DataRequestSuite) TestIllegalLifecycleCalls() {
	s.Run("start from completed", func() {
		r := s.newRequest(RequestDataAccess)
		s.Require().NoError(r.StartProcessing("a", s.now))
		s.Require().NoError(r.Complete(FileMetadata{}, s.now))
		err := r.StartProcessing("b", s.now)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeDeadline))
	})

	s.Run("complete from pending", func() {
		r := s.newRequest(RequestDataAccess)
		err := r.Complete(FileMetadata{}, s.now)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.Equal(StatusPending, r.Status)
	})

	s.Run("expire from processing", func() {
		r := s.newRequest(RequestDataAccess)
		s.Require().NoError(r.StartProcessing("a", s.now))
		err := r.Expire(r.DueDate.Add(time.Hour))
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("start without processor", func() {
		r := s.newRequest(RequestDataAccess)
		err := r.StartProcessing("", s.now)
		s.Require().Error(err)
		s.Equal(StatusPending, r.Status)
	})

	s.Run("fail without message", func() {
		r := s.newRequest(RequestDataAccess)
		err := r.Fail("", s.now)
		s.Require().Error(err)
		s.Equal(StatusPending, r.Status)
	})
}

func (s *DataRequestSuite) TestFailLegalFromPendingAndProcessing() {
	r := s.newRequest(RequestDataErasure)
	s.Require().NoError(r.Fail("user identity could not be verified", s.now))
	s.Equal(StatusFailed, r.Status)

	r2 := s.newRequest(RequestDataErasure)
	s.Require().NoError(r2.StartProcessing("admin-1", s.now))
	s.Require().NoError(r2.Fail("export backend unavailable", s.now))
	s.Equal(StatusFailed, r2.Status)
	s.Equal("export backend unavailable", r2.ErrorMessage)
}

func (s *DataRequestSuite) TestCancelFromPendingAndProcessing() {
	r := s.newRequest(RequestDataCorrection)
	s.Require().NoError(r.Cancel(s.now))
	s.Equal(StatusCancelled, r.Status)

	r2 := s.newRequest(RequestDataCorrection)
	s.Require().NoError(r2.StartProcessing("admin-1", s.now))
	s.Require().NoError(r2.Cancel(s.now))
	s.Equal(StatusCancelled, r2.Status)
}

func (s *DataRequestSuite) TestExpireOnlyPastDue() {
	r := s.newRequest(RequestDataAccess)

	err := r.Expire(r.DueDate)
	s.Require().Error(err) // due date itself is still within the window
	s.Equal(StatusPending, r.Status)

	s.Require().NoError(r.Expire(r.DueDate.Add(time.Minute)))
	s.Equal(StatusExpired, r.Status)
}

func (s *DataRequestSuite) TestTerminalStatesAreFinal() {
	makeTerminal := map[string]func(*DataRequest){
		"completed": func(r *DataRequest) {
			_ = r.StartProcessing("a", s.now)
			_ = r.Complete(FileMetadata{}, s.now)
		},
		"failed":    func(r *DataRequest) { _ = r.Fail("x", s.now) },
		"cancelled": func(r *DataRequest) { _ = r.Cancel(s.now) },
		"expired":   func(r *DataRequest) { _ = r.Expire(r.DueDate.Add(time.Hour)) },
	}
	for name, setup := range makeTerminal {
		s.Run(name, func() {
			r := s.newRequest(RequestDataAccess)
			setup(r)
			s.True(r.Status.IsTerminal())

			late := r.DueDate.Add(48 * time.Hour)
			for opName, op := range map[string]func() error{
				"start":    func() error { return r.StartProcessing("b", late) },
				"complete": func() error { return r.Complete(FileMetadata{}, late) },
				"fail":     func() error { return r.Fail("y", late) },
				"cancel":   func() error { return r.Cancel(late) },
				"expire":   func() error { return r.Expire(late) },
			} {
				err := op()
				s.Require().Error(err, "%s on %s", opName, name)
				s.True(dErrors.HasCode(err, dErrors.CodeDeadline), "%s on %s", opName, name)
			}
		})
	}
}

// ==================== Consent ====================

func (s *DataRequestSuite) TestConsentRevokeIsOneWay() {
	c := NewConsent(id.NewUserID(), ConsentGeolocation, "v2", "fleet tracking", nil, s.now)
	s.True(c.IsActiveAt(s.now))

	s.Require().NoError(c.Revoke("user request", s.now.Add(time.Hour)))
	s.False(c.Active)
	s.False(c.IsActiveAt(s.now.Add(2*time.Hour)))
	s.Equal("user request", c.RevocationReason)

	err := c.Revoke("again", s.now.Add(3*time.Hour))
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *DataRequestSuite) TestConsentExpiry() {
	expires := s.now.Add(24 * time.Hour)
	c := NewConsent(id.NewUserID(), ConsentMarketing, "v1", "campaigns", &expires, s.now)
	s.True(c.IsActiveAt(s.now))
	s.True(c.IsActiveAt(expires))
	s.False(c.IsActiveAt(expires.Add(time.Second)))
}
