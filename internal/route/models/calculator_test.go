package models

import (
	"testing"

	"github.com/stretchr/testify/suite"

	dErrors "lastmile/pkg/domain-errors"
)

type CalculatorSuite struct {
	suite.Suite
}

func TestCalculatorSuite(t *testing.T) {
	suite.Run(t, new(CalculatorSuite))
}

// ==================== Estimate ====================

func (s *CalculatorSuite) TestEstimateUrban() {
	m, err := Estimate(RouteTypeUrban, 30, 3)
	s.Require().NoError(err)

	// 30km at 30km/h = 60 min driving, *1.3 delay = 78, + 3 stops * 10 min.
	s.InDelta(108.0, m.DurationMinutes, 0.001)
	s.InDelta(75.0, m.CostEstimate, 0.001)
	s.InDelta(3.6, m.FuelLiters, 0.001)
	s.InDelta(30.0, m.AvgSpeedKmh, 0.001)
}

func (s *CalculatorSuite) TestEstimateInterstate() {
	m, err := Estimate(RouteTypeInterstate, 400, 2)
	s.Require().NoError(err)

	// 400km at 80km/h = 300 min, *1.1 = 330, + 2 stops * 15 min.
	s.InDelta(360.0, m.DurationMinutes, 0.001)
	s.InDelta(720.0, m.CostEstimate, 0.001)
	s.InDelta(140.0, m.FuelLiters, 0.001)
}

func (s *CalculatorSuite) TestEstimateUnknownTypeUsesDefaults() {
	m, err := Estimate(RouteType("DRONE"), 40, 0)
	s.Require().NoError(err)

	// 40km at 40km/h = 60 min, *1.2 = 72.
	s.InDelta(72.0, m.DurationMinutes, 0.001)
	s.InDelta(80.0, m.CostEstimate, 0.001)
	s.InDelta(5.2, m.FuelLiters, 0.001)
}

func (s *CalculatorSuite) TestEstimateZeroStops() {
	m, err := Estimate(RouteTypeExpress, 60, 0)
	s.Require().NoError(err)
	// 60km at 60km/h = 60 min, *1.15 = 69.
	s.InDelta(69.0, m.DurationMinutes, 0.001)
}

// ==================== Guards ====================

func (s *CalculatorSuite) TestEstimateRejectsBadInputs() {
	tests := []struct {
		name      string
		routeType RouteType
		distance  float64
		stops     int
	}{
		{"zero distance", RouteTypeUrban, 0, 1},
		{"negative distance", RouteTypeUrban, -5, 1},
		{"distance above ceiling", RouteTypeInterstate, 2000.5, 1},
		{"negative stops", RouteTypeUrban, 10, -1},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, err := Estimate(tt.routeType, tt.distance, tt.stops)
			s.Require().Error(err)
			s.True(dErrors.HasCode(err, dErrors.CodeOutOfRange))
		})
	}
}

func (s *CalculatorSuite) TestEstimateRejectsDurationOver24h() {
	// 1900km local at 25km/h is ~4560 driving minutes before delay; far past
	// the 24h cap even with zero stops.
	_, err := Estimate(RouteTypeLocal, 1900, 0)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeOutOfRange))
}

func (s *CalculatorSuite) TestEstimateDistanceAtCeiling() {
	// Exactly 2000km interstate: 1500 min driving, *1.1 = 1650 > 1440, so the
	// duration guard fires even though distance itself is legal.
	_, err := Estimate(RouteTypeInterstate, 2000, 0)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeOutOfRange))
}
