package models

import (
	dErrors "lastmile/pkg/domain-errors"
)

// Estimation guard rails. Inputs outside these bounds mean bad data, not an
// unusual route.
const (
	maxDistanceKm  = 2000.0
	minAvgSpeedKmh = 10.0
	maxAvgSpeedKmh = 120.0
	maxDurationMin = 24 * 60.0
)

// typeProfile is the per-type tuning used by the estimator.
type typeProfile struct {
	avgSpeedKmh    float64
	delayFactor    float64
	costPerKm      float64
	avgStopMinutes float64
	litersPerKm    float64
}

var typeProfiles = map[RouteType]typeProfile{
	RouteTypeUrban:      {avgSpeedKmh: 30, delayFactor: 0.3, costPerKm: 2.5, avgStopMinutes: 10, litersPerKm: 0.12},
	RouteTypeInterstate: {avgSpeedKmh: 80, delayFactor: 0.1, costPerKm: 1.8, avgStopMinutes: 15, litersPerKm: 0.35},
	RouteTypeRural:      {avgSpeedKmh: 50, delayFactor: 0.2, costPerKm: 2.0, avgStopMinutes: 12, litersPerKm: 0.15},
	RouteTypeExpress:    {avgSpeedKmh: 60, delayFactor: 0.15, costPerKm: 3.5, avgStopMinutes: 5, litersPerKm: 0.14},
	RouteTypeLocal:      {avgSpeedKmh: 25, delayFactor: 0.25, costPerKm: 2.2, avgStopMinutes: 8, litersPerKm: 0.10},
}

// defaultProfile covers unrecognized types so estimation degrades instead of
// failing when a new type ships before its tuning does.
var defaultProfile = typeProfile{
	avgSpeedKmh:    40,
	delayFactor:    0.2,
	costPerKm:      2.0,
	avgStopMinutes: 10,
	litersPerKm:    0.13,
}

// Metrics are the estimator outputs for one route.
type Metrics struct {
	DurationMinutes float64 `json:"durationMinutes"`
	CostEstimate    float64 `json:"costEstimate"`
	FuelLiters      float64 `json:"fuelLiters"`
	AvgSpeedKmh     float64 `json:"avgSpeedKmh"`
}

// Estimate computes duration, cost, and fuel for a route of the given type.
// Duration is driving time inflated by the type's delay factor plus a fixed
// per-stop handling allowance.
func Estimate(routeType RouteType, distanceKm float64, numStops int) (Metrics, error) {
	if distanceKm <= 0 {
		return Metrics{}, dErrors.Newf(dErrors.CodeOutOfRange, "distance must be positive, got %.2f km", distanceKm)
	}
	if distanceKm > maxDistanceKm {
		return Metrics{}, dErrors.Newf(dErrors.CodeOutOfRange, "distance %.2f km exceeds maximum %.0f km", distanceKm, maxDistanceKm)
	}
	if numStops < 0 {
		return Metrics{}, dErrors.Newf(dErrors.CodeOutOfRange, "number of stops must not be negative, got %d", numStops)
	}

	profile, ok := typeProfiles[routeType]
	if !ok {
		profile = defaultProfile
	}
	if profile.avgSpeedKmh < minAvgSpeedKmh || profile.avgSpeedKmh > maxAvgSpeedKmh {
		return Metrics{}, dErrors.Newf(dErrors.CodeOutOfRange, "average speed %.1f km/h outside [%.0f, %.0f]", profile.avgSpeedKmh, minAvgSpeedKmh, maxAvgSpeedKmh)
	}

	driving := distanceKm / profile.avgSpeedKmh * 60
	duration := driving*(1+profile.delayFactor) + float64(numStops)*profile.avgStopMinutes
	if duration > maxDurationMin {
		return Metrics{}, dErrors.Newf(dErrors.CodeOutOfRange, "estimated duration %.0f min exceeds 24h limit", duration)
	}

	return Metrics{
		DurationMinutes: duration,
		CostEstimate:    distanceKm * profile.costPerKm,
		FuelLiters:      distanceKm * profile.litersPerKm,
		AvgSpeedKmh:     profile.avgSpeedKmh,
	}, nil
}
