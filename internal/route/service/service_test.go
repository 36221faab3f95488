package service

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"lastmile/internal/audit"
	"lastmile/internal/route/models"
	"lastmile/internal/route/store"
	id "lastmile/pkg/domain"
	dErrors "lastmile/pkg/domain-errors"
	"lastmile/pkg/platform/tx"
	"lastmile/pkg/requestcontext"
)

type RouteServiceSuite struct {
	suite.Suite
	ctx        context.Context
	store      *store.InMemoryStore
	auditStore *audit.InMemoryStore
	svc        *Service
}

func TestRouteServiceSuite(t *testing.T) {
	suite.Run(t, new(RouteServiceSuite))
}

func (s *RouteServiceSuite) SetupTest() {
	s.ctx = requestcontext.WithActor(context.Background(), requestcontext.ActorInfo{
		ID: "op-1", Name: "dispatcher", Type: "operator",
	})
	s.store = store.NewInMemoryStore()
	s.auditStore = audit.NewInMemoryStore()
	recorder := audit.NewRecorder(s.auditStore, audit.WithLogger(slog.Default()))
	s.svc = NewService(s.store, tx.NopRunner{}, recorder)
}

func (s *RouteServiceSuite) createRoute() *models.Route {
	route, err := s.svc.Create(s.ctx, CreateInput{
		Type:        models.RouteTypeUrban,
		Origin:      models.Address{Street: "Av. Paulista 1000", City: "São Paulo", State: "SP"},
		Destination: models.Address{Street: "Rua XV 200", City: "Campinas", State: "SP"},
		DistanceKm:  90,
		NumStops:    4,
	})
	s.Require().NoError(err)
	return route
}

// ==================== Create ====================

func (s *RouteServiceSuite) TestCreateStartsPlanned() {
	route := s.createRoute()

	s.Equal(models.RouteStatusPlanned, route.Status)
	s.Equal(1, route.Version)
	s.False(route.ID.IsNil())
	s.Greater(route.EstimatedMin, 0.0)

	entries, err := s.auditStore.ListByEntity(s.ctx, "route", route.ID.String())
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal(audit.EventRouteCreated, entries[0].EventType)
	s.Equal("PLANNED", entries[0].NewStatus)
	s.Empty(entries[0].PreviousStatus)
	s.Equal("op-1", entries[0].ActorID)
}

func (s *RouteServiceSuite) TestCreateRejectsInvalidInput() {
	tests := []struct {
		name string
		in   CreateInput
		code dErrors.Code
	}{
		{
			"unknown type",
			CreateInput{Type: "DRONE", Origin: models.Address{City: "A"}, Destination: models.Address{City: "B"}, DistanceKm: 10},
			dErrors.CodeValidation,
		},
		{
			"missing cities",
			CreateInput{Type: models.RouteTypeUrban, DistanceKm: 10},
			dErrors.CodeValidation,
		},
		{
			"zero distance",
			CreateInput{Type: models.RouteTypeUrban, Origin: models.Address{City: "A"}, Destination: models.Address{City: "B"}},
			dErrors.CodeOutOfRange,
		},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, err := s.svc.Create(s.ctx, tt.in)
			s.Require().Error(err)
			s.True(dErrors.HasCode(err, tt.code))
		})
	}
}

// ==================== ChangeStatus ====================

func (s *RouteServiceSuite) TestFullLifecycle() {
	route := s.createRoute()

	for _, target := range []models.RouteStatus{
		models.RouteStatusInProgress,
		models.RouteStatusPaused,
		models.RouteStatusInProgress,
		models.RouteStatusCompleted,
	} {
		updated, err := s.svc.ChangeStatus(s.ctx, route.ID, target)
		s.Require().NoError(err, "transition to %s", target)
		s.Equal(target, updated.Status)
	}

	final, err := s.svc.Get(s.ctx, route.ID)
	s.Require().NoError(err)
	s.Equal(models.RouteStatusCompleted, final.Status)
	s.Equal(5, final.Version)

	entries, err := s.auditStore.ListByEntity(s.ctx, "route", route.ID.String())
	s.Require().NoError(err)
	s.Len(entries, 5) // creation + 4 transitions
}

func (s *RouteServiceSuite) TestPlannedCannotComplete() {
	route := s.createRoute()

	_, err := s.svc.ChangeStatus(s.ctx, route.ID, models.RouteStatusCompleted)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	s.Contains(err.Error(), "PLANNED")
	s.Contains(err.Error(), "COMPLETED")

	// Rejected transitions leave no trace beyond the creation entry.
	entries, err := s.auditStore.ListByEntity(s.ctx, "route", route.ID.String())
	s.Require().NoError(err)
	s.Len(entries, 1)

	unchanged, err := s.svc.Get(s.ctx, route.ID)
	s.Require().NoError(err)
	s.Equal(models.RouteStatusPlanned, unchanged.Status)
	s.Equal(1, unchanged.Version)
}

func (s *RouteServiceSuite) TestTerminalRoutesRejectEverything() {
	route := s.createRoute()
	_, err := s.svc.ChangeStatus(s.ctx, route.ID, models.RouteStatusCancelled)
	s.Require().NoError(err)

	for _, target := range []models.RouteStatus{
		models.RouteStatusPlanned,
		models.RouteStatusInProgress,
		models.RouteStatusCompleted,
	} {
		_, err := s.svc.ChangeStatus(s.ctx, route.ID, target)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.Contains(err.Error(), "terminal")
	}
}

func (s *RouteServiceSuite) TestSelfTransitionRejected() {
	route := s.createRoute()
	_, err := s.svc.ChangeStatus(s.ctx, route.ID, models.RouteStatusPlanned)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *RouteServiceSuite) TestUnknownTargetRejected() {
	route := s.createRoute()
	_, err := s.svc.ChangeStatus(s.ctx, route.ID, models.RouteStatus("SHIPPED"))
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *RouteServiceSuite) TestChangeStatusUnknownRoute() {
	_, err := s.svc.ChangeStatus(s.ctx, id.NewRouteID(), models.RouteStatusInProgress)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

// racingStore lets another writer commit between the service's validating
// read and its commit, which is the window optimistic locking exists for.
type racingStore struct {
	*store.InMemoryStore
	once bool
}

func (r *racingStore) UpdateStatus(ctx context.Context, routeID id.RouteID, from, to models.RouteStatus, version int) (*models.Route, error) {
	if !r.once {
		r.once = true
		if _, err := r.InMemoryStore.UpdateStatus(ctx, routeID, from, models.RouteStatusCancelled, version); err != nil {
			return nil, err
		}
	}
	return r.InMemoryStore.UpdateStatus(ctx, routeID, from, to, version)
}

func (s *RouteServiceSuite) TestConcurrentWriterLosesWithConflict() {
	route := s.createRoute()

	racing := &racingStore{InMemoryStore: s.store}
	recorder := audit.NewRecorder(s.auditStore)
	svc := NewService(racing, tx.NopRunner{}, recorder)

	_, err := svc.ChangeStatus(s.ctx, route.ID, models.RouteStatusInProgress)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))

	// The concurrent writer's cancellation stands.
	final, err := s.svc.Get(s.ctx, route.ID)
	s.Require().NoError(err)
	s.Equal(models.RouteStatusCancelled, final.Status)
	s.Equal(2, final.Version)
}

func (s *RouteServiceSuite) TestTransitionUsesRequestClock() {
	route := s.createRoute()
	pinned := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	ctx := requestcontext.WithTime(s.ctx, pinned)

	updated, err := s.svc.ChangeStatus(ctx, route.ID, models.RouteStatusInProgress)
	s.Require().NoError(err)
	s.True(updated.UpdatedAt.Equal(pinned))

	entries, err := s.auditStore.ListByEntity(ctx, "route", route.ID.String())
	s.Require().NoError(err)
	s.True(entries[0].Timestamp.Equal(pinned))
}

// ==================== Estimate ====================

func (s *RouteServiceSuite) TestEstimatePassthrough() {
	m, err := s.svc.Estimate(s.ctx, models.RouteTypeRural, 100, 2)
	s.Require().NoError(err)
	// 100km at 50km/h = 120 min, *1.2 = 144, + 2 stops * 12 min.
	s.InDelta(168.0, m.DurationMinutes, 0.001)

	_, err = s.svc.Estimate(s.ctx, models.RouteTypeRural, -1, 0)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeOutOfRange))
}
