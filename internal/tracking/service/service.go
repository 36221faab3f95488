// Package service ingests tracking events: classify, persist, refresh the
// latest-position cache, audit. Ingestion is append-only; there are no
// transitions to validate.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"lastmile/internal/audit"
	"lastmile/internal/tracking/cache"
	"lastmile/internal/tracking/metrics"
	"lastmile/internal/tracking/models"
	"lastmile/internal/tracking/store"
	id "lastmile/pkg/domain"
	dErrors "lastmile/pkg/domain-errors"
	"lastmile/pkg/platform/sentinel"
	"lastmile/pkg/requestcontext"
)

// Recorder is the slice of the audit recorder this service needs.
type Recorder interface {
	RecordMutation(ctx context.Context, eventType audit.EventType, before, after audit.Auditable, description string) error
}

type Service struct {
	store     store.Store
	positions cache.Positions
	recorder  Recorder
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(st store.Store, positions cache.Positions, recorder Recorder, opts ...Option) *Service {
	s := &Service{
		store:     st,
		positions: positions,
		recorder:  recorder,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IngestInput is one raw tracking ping.
type IngestInput struct {
	DriverID       id.DriverID
	RouteID        id.RouteID
	DeliveryID     id.DeliveryID
	Type           models.EventType
	DeviceType     models.DeviceType
	SignalStrength float64
	AccuracyM      float64
	Lat            float64
	Lng            float64
}

// Ingest classifies and stores one tracking event. The position cache is
// best-effort: a cache failure is logged and counted but never fails the
// ingest.
func (s *Service) Ingest(ctx context.Context, in IngestInput) (*models.Event, error) {
	if _, err := models.ParseEventType(string(in.Type)); err != nil {
		return nil, err
	}
	if !in.DeviceType.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeValidation, "unknown device type %q", in.DeviceType)
	}
	if in.DriverID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "driver id is required")
	}
	if in.Lat < -90 || in.Lat > 90 || in.Lng < -180 || in.Lng > 180 {
		return nil, dErrors.Newf(dErrors.CodeOutOfRange, "coordinates (%.4f, %.4f) outside WGS84 bounds", in.Lat, in.Lng)
	}

	now := requestcontext.Now(ctx)
	event := &models.Event{
		ID:             uuid.New(),
		DriverID:       in.DriverID,
		RouteID:        in.RouteID,
		DeliveryID:     in.DeliveryID,
		Type:           in.Type,
		DeviceType:     in.DeviceType,
		SignalStrength: in.SignalStrength,
		AccuracyM:      in.AccuracyM,
		Lat:            in.Lat,
		Lng:            in.Lng,
		SignalQuality:  models.ClassifySignal(in.SignalStrength),
		AccuracyLevel:  models.ClassifyAccuracy(in.AccuracyM),
		Timestamp:      now,
	}

	if err := s.store.Append(ctx, event); err != nil {
		return nil, fmt.Errorf("append tracking event: %w", err)
	}
	if err := s.recorder.RecordMutation(ctx, audit.EventTrackingIngested, nil, event,
		fmt.Sprintf("tracking ping: %s", event.Type)); err != nil {
		return nil, fmt.Errorf("audit tracking event: %w", err)
	}

	if s.positions != nil {
		pos := models.Position{
			DriverID:  in.DriverID.String(),
			Lat:       in.Lat,
			Lng:       in.Lng,
			AccuracyM: in.AccuracyM,
			Timestamp: now,
		}
		if err := s.positions.Set(ctx, pos); err != nil {
			if s.metrics != nil {
				s.metrics.CacheFailures.Inc()
			}
			s.logger.WarnContext(ctx, "position cache update failed",
				"driver_id", in.DriverID,
				"error", err,
			)
		}
	}

	if s.metrics != nil {
		s.metrics.EventsIngested.WithLabelValues(string(event.Type)).Inc()
		s.metrics.SignalQuality.WithLabelValues(string(event.SignalQuality)).Inc()
		s.metrics.AccuracyLevel.WithLabelValues(string(event.AccuracyLevel)).Inc()
	}
	return event, nil
}

func (s *Service) List(ctx context.Context, filter store.Filter) ([]*models.Event, error) {
	return s.store.List(ctx, filter)
}

// LatestPosition returns the driver's most recent cached location.
func (s *Service) LatestPosition(ctx context.Context, driverID id.DriverID) (models.Position, error) {
	if s.positions == nil {
		return models.Position{}, dErrors.New(dErrors.CodeNotFound, "position tracking is not enabled")
	}
	pos, err := s.positions.Get(ctx, driverID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return models.Position{}, dErrors.New(dErrors.CodeNotFound, "no recent position for driver")
		}
		return models.Position{}, fmt.Errorf("latest position: %w", err)
	}
	return pos, nil
}
