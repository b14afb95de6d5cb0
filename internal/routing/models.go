// Package routing generates, validates and selects closed-loop walking routes.
package routing

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for routing operations.
var (
	// ErrProviderUnavailable indicates the routing provider is down, timed out or the circuit breaker is open.
	ErrProviderUnavailable = errors.New("routing provider unavailable")
	// ErrNoRouteFound indicates the provider could not build a route for the request.
	ErrNoRouteFound = errors.New("no route found")
	// ErrRateLimitExceeded indicates the API quota has been exceeded.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	// ErrInvalidCoordinates indicates the provided coordinates are invalid or out of range.
	ErrInvalidCoordinates = errors.New("invalid coordinates")
	// ErrInvalidRequest indicates the provider rejected the request parameters.
	ErrInvalidRequest = errors.New("invalid routing request")
	// ErrDecode indicates the provider response could not be parsed into a route.
	ErrDecode = errors.New("malformed routing response")
	// ErrGenerationFailed indicates every attempt failed without producing a candidate.
	ErrGenerationFailed = errors.New("failed to generate any route")
)

// ErrorKind classifies provider failures.
type ErrorKind int

const (
	// KindTransport covers network failures and timeouts.
	KindTransport ErrorKind = iota
	// KindProtocol covers non-success HTTP statuses.
	KindProtocol
	// KindDecode covers response bodies that do not parse into a route.
	KindDecode
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindProtocol:
		return "protocol"
	case KindDecode:
		return "decode"
	default:
		return "unknown"
	}
}

// RoundTripProvider produces round-trip candidates from an external routing API.
type RoundTripProvider interface {
	// GenerateRoundTrip requests a single round trip. Implementations must not retry
	// on their own; retry policy belongs to the Generator.
	GenerateRoundTrip(ctx context.Context, req RoundTripRequest) (*Route, error)
	// Name returns the provider identifier for logging and metrics.
	Name() string
}

// DirectionsProvider computes point-to-point walking directions.
type DirectionsProvider interface {
	Directions(ctx context.Context, origin, destination Coordinate) (*Route, error)
	Name() string
}

// Coordinate represents a geographic point.
type Coordinate struct {
	Lat float64
	Lon float64
}

// Validate checks the coordinate is within valid ranges.
func (c Coordinate) Validate() error {
	if c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("%w: latitude %f out of range [-90, 90]", ErrInvalidCoordinates, c.Lat)
	}
	if c.Lon < -180 || c.Lon > 180 {
		return fmt.Errorf("%w: longitude %f out of range [-180, 180]", ErrInvalidCoordinates, c.Lon)
	}
	return nil
}

// Preferences are the soft, per-request route preferences.
type Preferences struct {
	Quiet         bool
	UrbanExplorer bool
	AvoidStairs   bool
}

// RoundTripRequest is the input for a single round-trip request.
type RoundTripRequest struct {
	Origin       Coordinate
	LengthMeters float64
	Waypoints    int // Round-trip "points" parameter (3-10)
	Preferences  Preferences
}

// RouteKind tags the origin of a Route.
type RouteKind int

const (
	// KindExternalAPI is a round trip produced by the routing API.
	KindExternalAPI RouteKind = iota
	// KindDeviceComputed is a point-to-point route from a directions provider.
	KindDeviceComputed
)

func (k RouteKind) String() string {
	if k == KindDeviceComputed {
		return "directions"
	}
	return "round_trip"
}

// Route is a generated route. Path is never empty for a route returned by a provider.
type Route struct {
	Kind                RouteKind
	Path                []Coordinate
	Steps               []Step
	DistanceMeters      float64
	DurationSeconds     *float64
	ElevationGainMeters *float64
}

// DistanceKm returns the authoritative route distance in kilometers.
func (r *Route) DistanceKm() float64 {
	return r.DistanceMeters / 1000
}

// Start returns the first path point.
func (r *Route) Start() (Coordinate, bool) {
	if len(r.Path) == 0 {
		return Coordinate{}, false
	}
	return r.Path[0], true
}

// End returns the last path point.
func (r *Route) End() (Coordinate, bool) {
	if len(r.Path) == 0 {
		return Coordinate{}, false
	}
	return r.Path[len(r.Path)-1], true
}

// Step is a turn-by-turn navigation step.
type Step struct {
	Instruction    string
	DistanceMeters float64
	Path           []Coordinate // Section of the route path covered by the step
}

// ValidationResult describes how a route's distance compares to the requested distance.
type ValidationResult struct {
	Valid         bool
	ActualKm      float64
	RequestedKm   float64
	PercentageOff float64
	Message       string // Empty when valid
}

// RetrySuggestion is the waypoint count to try next.
type RetrySuggestion struct {
	WaypointCount int
	ShouldRetry   bool
}

// Generation is the outcome of a Generate call.
type Generation struct {
	Route      *Route
	Validation ValidationResult
	Attempts   int
	// Accepted is false when the route is a best-effort fallback outside tolerance.
	Accepted bool
}

// Error provides detailed error information from a routing provider.
type Error struct {
	Provider string    // Provider that generated the error
	Kind     ErrorKind // Transport, protocol or decode failure
	Code     string    // Error code from the provider
	Message  string    // Human-readable error message
	Err      error     // Underlying error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the error is transient and the request can be retried.
func (e *Error) IsRetryable() bool {
	return e.Kind == KindTransport ||
		errors.Is(e.Err, ErrProviderUnavailable) ||
		errors.Is(e.Err, ErrRateLimitExceeded)
}
