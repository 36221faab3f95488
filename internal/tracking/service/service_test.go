package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"lastmile/internal/audit"
	"lastmile/internal/tracking/cache"
	"lastmile/internal/tracking/models"
	"lastmile/internal/tracking/store"
	id "lastmile/pkg/domain"
	dErrors "lastmile/pkg/domain-errors"
	"lastmile/pkg/requestcontext"
)

type TrackingServiceSuite struct {
	suite.Suite
	ctx        context.Context
	store      *store.InMemoryStore
	positions  *cache.MemoryPositions
	auditStore *audit.InMemoryStore
	svc        *Service
	driver     id.DriverID
}

func TestTrackingServiceSuite(t *testing.T) {
	suite.Run(t, new(TrackingServiceSuite))
}

func (s *TrackingServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = store.NewInMemoryStore()
	s.positions = cache.NewMemoryPositions()
	s.auditStore = audit.NewInMemoryStore()
	s.svc = NewService(s.store, s.positions, audit.NewRecorder(s.auditStore))
	s.driver = id.NewDriverID()
}

func (s *TrackingServiceSuite) ingest(in IngestInput) *models.Event {
	event, err := s.svc.Ingest(s.ctx, in)
	s.Require().NoError(err)
	return event
}

// ==================== Ingest ====================

func (s *TrackingServiceSuite) TestIngestClassifiesAndCaches() {
	pinned := time.Date(2026, 7, 2, 14, 30, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(s.ctx, pinned)

	event, err := s.svc.Ingest(ctx, IngestInput{
		DriverID:       s.driver,
		Type:           models.EventCheckpoint,
		DeviceType:     models.DeviceMobile,
		SignalStrength: 82,
		AccuracyM:      8,
		Lat:            -23.5505,
		Lng:            -46.6333,
	})
	s.Require().NoError(err)
	s.Equal(models.SignalGood, event.SignalQuality)
	s.Equal(models.AccuracyExcellent, event.AccuracyLevel)
	s.True(event.Timestamp.Equal(pinned))

	pos, err := s.svc.LatestPosition(ctx, s.driver)
	s.Require().NoError(err)
	s.InDelta(-23.5505, pos.Lat, 0.0001)
	s.True(pos.Timestamp.Equal(pinned))

	entries, err := s.auditStore.ListByEntity(ctx, "tracking_event", event.ID.String())
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal(audit.EventTrackingIngested, entries[0].EventType)
	s.Equal(audit.CategoryOperations, entries[0].Category)
}

func (s *TrackingServiceSuite) TestIngestValidation() {
	valid := IngestInput{
		DriverID:   s.driver,
		Type:       models.EventStop,
		DeviceType: models.DeviceVehicle,
		Lat:        10, Lng: 10,
	}

	tests := []struct {
		name   string
		mutate func(*IngestInput)
		code   dErrors.Code
	}{
		{"unknown type", func(in *IngestInput) { in.Type = "warp" }, dErrors.CodeValidation},
		{"unknown device", func(in *IngestInput) { in.DeviceType = "pager" }, dErrors.CodeValidation},
		{"missing driver", func(in *IngestInput) { in.DriverID = id.DriverID{} }, dErrors.CodeValidation},
		{"lat out of bounds", func(in *IngestInput) { in.Lat = 91 }, dErrors.CodeOutOfRange},
		{"lng out of bounds", func(in *IngestInput) { in.Lng = -181 }, dErrors.CodeOutOfRange},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			in := valid
			tt.mutate(&in)
			_, err := s.svc.Ingest(s.ctx, in)
			s.Require().Error(err)
			s.True(dErrors.HasCode(err, tt.code))
		})
	}
}

func (s *TrackingServiceSuite) TestLatestPositionFollowsNewestPing() {
	s.ingest(IngestInput{
		DriverID: s.driver, Type: models.EventAutomatic,
		DeviceType: models.DeviceVehicle, Lat: 1, Lng: 1,
	})
	s.ingest(IngestInput{
		DriverID: s.driver, Type: models.EventAutomatic,
		DeviceType: models.DeviceVehicle, Lat: 2, Lng: 2,
	})

	pos, err := s.svc.LatestPosition(s.ctx, s.driver)
	s.Require().NoError(err)
	s.InDelta(2.0, pos.Lat, 0.0001)
}

func (s *TrackingServiceSuite) TestLatestPositionUnknownDriver() {
	_, err := s.svc.LatestPosition(s.ctx, id.NewDriverID())
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

// ==================== List ====================

func (s *TrackingServiceSuite) TestListFilters() {
	other := id.NewDriverID()
	route := id.NewRouteID()

	s.ingest(IngestInput{DriverID: s.driver, RouteID: route, Type: models.EventRouteStart, DeviceType: models.DeviceMobile, Lat: 1, Lng: 1})
	s.ingest(IngestInput{DriverID: s.driver, Type: models.EventStop, DeviceType: models.DeviceMobile, Lat: 1, Lng: 1})
	s.ingest(IngestInput{DriverID: other, Type: models.EventStop, DeviceType: models.DeviceScanner, Lat: 1, Lng: 1})

	byDriver, err := s.svc.List(s.ctx, store.Filter{DriverID: s.driver})
	s.Require().NoError(err)
	s.Len(byDriver, 2)

	byRoute, err := s.svc.List(s.ctx, store.Filter{RouteID: route})
	s.Require().NoError(err)
	s.Require().Len(byRoute, 1)
	s.Equal(models.EventRouteStart, byRoute[0].Type)

	byType, err := s.svc.List(s.ctx, store.Filter{Type: models.EventStop})
	s.Require().NoError(err)
	s.Len(byType, 2)

	limited, err := s.svc.List(s.ctx, store.Filter{Limit: 1})
	s.Require().NoError(err)
	s.Len(limited, 1)
}
