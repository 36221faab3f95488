// Package service orchestrates route lifecycle operations. Every status
// change runs the same pipeline: load, validate against the transition table,
// commit with a compare-and-swap, audit in the same transaction, then notify.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"lastmile/internal/audit"
	"lastmile/internal/notify"
	"lastmile/internal/route/metrics"
	"lastmile/internal/route/models"
	"lastmile/internal/route/store"
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

// CreateInput carries everything needed to plan a new route. Metrics are
// estimated at creation time from type, distance, and stop count.
type CreateInput struct {
	Type         models.RouteType
	Origin       models.Address
	Destination  models.Address
	DistanceKm   float64
	NumStops     int
	Restrictions models.Restrictions
	DriverID     id.DriverID
}

func (s *Service) Create(ctx context.Context, in CreateInput) (*models.Route, error) {
	if !in.Type.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeValidation, "invalid route type %q", in.Type)
	}
	if in.Origin.City == "" || in.Destination.City == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "origin and destination cities are required")
	}

	estimated, err := models.Estimate(in.Type, in.DistanceKm, in.NumStops)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	route := &models.Route{
		ID:           id.NewRouteID(),
		Version:      1,
		Status:       models.RouteStatusPlanned,
		Type:         in.Type,
		Origin:       in.Origin,
		Destination:  in.Destination,
		DistanceKm:   in.DistanceKm,
		EstimatedMin: estimated.DurationMinutes,
		NumStops:     in.NumStops,
		Restrictions: in.Restrictions,
		DriverID:     in.DriverID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = s.runner.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.Create(ctx, route); err != nil {
			return fmt.Errorf("create route: %w", err)
		}
		return s.recorder.RecordMutation(ctx, audit.EventRouteCreated, nil, route, "route planned")
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.IncrementRouteCreated()
	}
	s.logger.InfoContext(ctx, "route created",
		"route_id", route.ID,
		"type", route.Type,
		"distance_km", route.DistanceKm,
	)
	return route, nil
}

func (s *Service) Get(ctx context.Context, routeID id.RouteID) (*models.Route, error) {
	route, err := s.store.Get(ctx, routeID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "route not found")
		}
		return nil, fmt.Errorf("get route: %w", err)
	}
	return route, nil
}

func (s *Service) List(ctx context.Context, filter store.Filter) ([]*models.Route, error) {
	return s.store.List(ctx, filter)
}

// ChangeStatus moves a route to the target status. The transition table is
// checked against the loaded snapshot; the store re-checks (status, version)
// at commit so a concurrent writer cannot sneak an illegal edge through.
func (s *Service) ChangeStatus(ctx context.Context, routeID id.RouteID, target models.RouteStatus) (*models.Route, error) {
	if !models.Transitions.Known(target) {
		return nil, dErrors.Newf(dErrors.CodeValidation, "unknown route status %q", target)
	}

	before, err := s.Get(ctx, routeID)
	if err != nil {
		return nil, err
	}

	if err := models.Transitions.Validate("route", before.Status, target); err != nil {
		if s.metrics != nil {
			s.metrics.RecordRejected(string(before.Status), string(target))
		}
		return nil, err
	}

	var after *models.Route
	err = s.runner.RunInTx(ctx, func(ctx context.Context) error {
		updated, err := s.store.UpdateStatus(ctx, routeID, before.Status, target, before.Version)
		if err != nil {
			return err
		}
		after = updated
		return s.recorder.RecordMutation(ctx, audit.EventRouteStatusChanged, before, after,
			fmt.Sprintf("route %s -> %s", before.Status, target))
	})
	if err != nil {
		switch {
		case errors.Is(err, sentinel.ErrVersionConflict):
			if s.metrics != nil {
				s.metrics.RecordVersionConflict()
			}
			return nil, dErrors.New(dErrors.CodeConflict, "route was modified concurrently, retry")
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.New(dErrors.CodeNotFound, "route not found")
		}
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordTransition(string(before.Status), string(target))
	}
	s.logger.InfoContext(ctx, "route status changed",
		"route_id", routeID,
		"from", before.Status,
		"to", target,
	)
	s.dispatch(ctx, after)
	return after, nil
}

// Estimate recomputes route metrics without touching stored state.
func (s *Service) Estimate(ctx context.Context, routeType models.RouteType, distanceKm float64, numStops int) (models.Metrics, error) {
	start := time.Now()
	m, err := models.Estimate(routeType, distanceKm, numStops)
	if s.metrics != nil {
		s.metrics.ObserveEstimate(start)
	}
	return m, err
}

// dispatch is fire-and-forget: a notification failure never unwinds a
// committed transition.
func (s *Service) dispatch(ctx context.Context, route *models.Route) {
	if s.notifier == nil {
		return
	}
	event := notify.Event{
		Type:       "route.status_changed",
		EntityKind: "route",
		EntityID:   route.ID.String(),
		Payload:    map[string]string{"status": string(route.Status)},
	}
	if err := s.notifier.Notify(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "route notification failed",
			"route_id", route.ID,
			"error", err,
		)
	}
}
