package routing

import (
	"fmt"
	"math"
)

const (
	// MinWaypoints and MaxWaypoints bound the round-trip points parameter.
	MinWaypoints = 3
	MaxWaypoints = 10

	// DefaultWaypoints is the waypoint count for a first attempt.
	DefaultWaypoints = 5

	// LoopClosureMeters is the maximum gap between the route end and its start.
	LoopClosureMeters = 100.0
)

// Tolerance returns the accepted deviation in percent for a requested distance.
// Short routes get a wider band since a few hundred meters is a large share of them.
func Tolerance(requestedKm float64) float64 {
	switch {
	case requestedKm < 2:
		return 20
	case requestedKm < 5:
		return 15
	case requestedKm < 10:
		return 12
	default:
		return 10
	}
}

// Validate compares a route's distance against the requested distance.
func Validate(route *Route, requestedKm float64) ValidationResult {
	return validateDistance(requestedKm, route.DistanceKm())
}

// IsDistanceAcceptable reports whether actualKm is within tolerance of requestedKm.
func IsDistanceAcceptable(requestedKm, actualKm float64) bool {
	return validateDistance(requestedKm, actualKm).Valid
}

// ValidateDistance is Validate for a bare distance pair.
func ValidateDistance(requestedKm, actualKm float64) ValidationResult {
	return validateDistance(requestedKm, actualKm)
}

func validateDistance(requestedKm, actualKm float64) ValidationResult {
	result := ValidationResult{
		ActualKm:    actualKm,
		RequestedKm: requestedKm,
	}
	if requestedKm <= 0 {
		result.PercentageOff = math.Inf(1)
		result.Message = fmt.Sprintf("Requested distance %.1fkm is not positive", requestedKm)
		return result
	}

	result.PercentageOff = math.Abs(actualKm-requestedKm) / requestedKm * 100
	result.Valid = result.PercentageOff <= Tolerance(requestedKm)
	if !result.Valid {
		direction := "shorter"
		if actualKm > requestedKm {
			direction = "longer"
		}
		result.Message = fmt.Sprintf(
			"Route is %.1fkm (%.0f%% %s) than requested. Requested: %.1fkm, Got: %.1fkm",
			math.Abs(actualKm-requestedKm), result.PercentageOff, direction, requestedKm, actualKm,
		)
	}
	return result
}

// SuggestRetry returns the waypoint count for the next attempt based on how far
// the last route missed. More waypoints lengthen a round trip, fewer shorten it.
func SuggestRetry(currentWaypoints int, result ValidationResult) RetrySuggestion {
	if result.Valid || result.RequestedKm <= 0 {
		return RetrySuggestion{WaypointCount: currentWaypoints}
	}

	ratio := result.ActualKm / result.RequestedKm
	next := currentWaypoints
	switch {
	case ratio > 2.0:
		next = MinWaypoints
	case ratio > 1.5:
		next = max(currentWaypoints-2, MinWaypoints)
	case ratio > 1.2:
		next = max(currentWaypoints-1, MinWaypoints)
	case ratio < 0.5:
		next = MaxWaypoints
	case ratio < 0.7:
		next = min(currentWaypoints+2, MaxWaypoints)
	case ratio < 0.8:
		next = min(currentWaypoints+1, MaxWaypoints)
	}
	next = min(max(next, MinWaypoints), MaxWaypoints)

	return RetrySuggestion{
		WaypointCount: next,
		ShouldRetry:   next != currentWaypoints,
	}
}

// ValidateLoopClosure reports whether the route ends within LoopClosureMeters of start.
func ValidateLoopClosure(route *Route, start Coordinate) bool {
	end, ok := route.End()
	if !ok {
		return false
	}
	return DistanceBetween(end, start) < LoopClosureMeters
}

// SelectBest returns the route closest to the requested distance, or nil when routes is empty.
// The earliest route wins ties.
func SelectBest(routes []*Route, requestedKm float64) *Route {
	var (
		best    *Route
		bestOff float64
	)
	for _, r := range routes {
		if r == nil {
			continue
		}
		off := Validate(r, requestedKm).PercentageOff
		if best == nil || off < bestOff {
			best, bestOff = r, off
		}
	}
	return best
}
