package models

import (
	"testing"

	"github.com/stretchr/testify/suite"

	dErrors "lastmile/pkg/domain-errors"
)

type RouteModelSuite struct {
	suite.Suite
}

func TestRouteModelSuite(t *testing.T) {
	suite.Run(t, new(RouteModelSuite))
}

// ==================== Transitions ====================

func (s *RouteModelSuite) TestValidTransitions() {
	valid := []struct {
		from, to RouteStatus
	}{
		{RouteStatusPlanned, RouteStatusInProgress},
		{RouteStatusPlanned, RouteStatusCancelled},
		{RouteStatusInProgress, RouteStatusPaused},
		{RouteStatusInProgress, RouteStatusCompleted},
		{RouteStatusInProgress, RouteStatusCancelled},
		{RouteStatusPaused, RouteStatusInProgress},
		{RouteStatusPaused, RouteStatusCancelled},
	}
	for _, tt := range valid {
		s.Run(string(tt.from)+"_to_"+string(tt.to), func() {
			s.True(Transitions.IsValid(tt.from, tt.to))
			s.NoError(Transitions.Validate("route", tt.from, tt.to))
		})
	}
}

func (s *RouteModelSuite) TestInvalidTransitions() {
	invalid := []struct {
		from, to RouteStatus
	}{
		{RouteStatusPlanned, RouteStatusCompleted},
		{RouteStatusPlanned, RouteStatusPaused},
		{RouteStatusPaused, RouteStatusCompleted},
		{RouteStatusCompleted, RouteStatusInProgress},
		{RouteStatusCancelled, RouteStatusPlanned},
		{RouteStatusInProgress, RouteStatusPlanned},
		{RouteStatusInProgress, RouteStatusInProgress},
	}
	for _, tt := range invalid {
		s.Run(string(tt.from)+"_to_"+string(tt.to), func() {
			s.False(Transitions.IsValid(tt.from, tt.to))
			err := Transitions.Validate("route", tt.from, tt.to)
			s.Require().Error(err)
			s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		})
	}
}

func (s *RouteModelSuite) TestTerminalStatuses() {
	s.True(Transitions.IsTerminal(RouteStatusCompleted))
	s.True(Transitions.IsTerminal(RouteStatusCancelled))
	s.False(Transitions.IsTerminal(RouteStatusPlanned))
	s.False(Transitions.IsTerminal(RouteStatusInProgress))
	s.False(Transitions.IsTerminal(RouteStatusPaused))
}

func (s *RouteModelSuite) TestValidFromIsSorted() {
	got := Transitions.ValidFrom(RouteStatusInProgress)
	want := []RouteStatus{RouteStatusCancelled, RouteStatusCompleted, RouteStatusPaused}
	s.Equal(want, got)
}

// ==================== Parsing ====================

func (s *RouteModelSuite) TestParseRouteStatus() {
	st, err := ParseRouteStatus("IN_PROGRESS")
	s.Require().NoError(err)
	s.Equal(RouteStatusInProgress, st)

	_, err = ParseRouteStatus("DELIVERING")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = ParseRouteStatus("in_progress")
	s.Require().Error(err)
}

func (s *RouteModelSuite) TestRouteTypeIsValid() {
	for _, t := range []RouteType{RouteTypeUrban, RouteTypeInterstate, RouteTypeRural, RouteTypeExpress, RouteTypeLocal} {
		s.True(t.IsValid(), string(t))
	}
	s.False(RouteType("DRONE").IsValid())
	s.False(RouteType("").IsValid())
}

// ==================== Audit hooks ====================

func (s *RouteModelSuite) TestRouteImplementsAuditable() {
	r := &Route{Status: RouteStatusPlanned}
	s.Equal("route", r.AuditKind())
	s.Equal("PLANNED", r.AuditStatus())
	s.Contains(r.DiffableFields(), "status")
	s.NotContains(r.DiffableFields(), "driver_id")
}

func (s *RouteModelSuite) TestCloneIsIndependent() {
	r := &Route{
		Status:       RouteStatusPlanned,
		Optimization: map[string]string{"algorithm": "greedy"},
	}
	cp := r.Clone()
	cp.Status = RouteStatusInProgress
	cp.Optimization["algorithm"] = "or-tools"

	s.Equal(RouteStatusPlanned, r.Status)
	s.Equal("greedy", r.Optimization["algorithm"])
}
