package models

// RoutePreferences are the soft preferences of a generation request.
type RoutePreferences struct {
	Quiet         bool `json:"quiet"`
	UrbanExplorer bool `json:"urbanExplorer"`
	AvoidStairs   bool `json:"avoidStairs"`
}

// RouteGenerateRequest is the request body for generating a round trip.
type RouteGenerateRequest struct {
	Origin      *Point           `json:"origin" validate:"required"`
	DistanceKm  float64          `json:"distanceKm" validate:"gte=0.5,lte=50"`
	Preferences RoutePreferences `json:"preferences"`
}

// RouteGenerateResponse is the response for round-trip generation.
type RouteGenerateResponse struct {
	GeneratedAt        Timestamp       `json:"generatedAt"`
	Route              Route           `json:"route"`
	Summary            RouteSummary    `json:"summary"`
	Validation         RouteValidation `json:"validation"`
	Accepted           bool            `json:"accepted"`
	Attempts           int             `json:"attempts"`
	LoopClosed         bool            `json:"loopClosed"`
	MissingPreferences []string        `json:"missingPreferences"`
	Feedback           *string         `json:"feedback,omitempty"`
	Quota              *QuotaUsage     `json:"quota,omitempty"`
}

// RouteDirectionsRequest is the request body for point-to-point walking directions.
type RouteDirectionsRequest struct {
	Origin      *Point `json:"origin" validate:"required"`
	Destination *Point `json:"destination" validate:"required"`
}

// RouteDirectionsResponse is the response for walking directions.
type RouteDirectionsResponse struct {
	GeneratedAt Timestamp    `json:"generatedAt"`
	Route       Route        `json:"route"`
	Summary     RouteSummary `json:"summary"`
}

// RouteValidateRequest is the request body for checking a distance pair.
type RouteValidateRequest struct {
	RequestedKm float64 `json:"requestedKm" validate:"gt=0"`
	ActualKm    float64 `json:"actualKm" validate:"gte=0"`
	Waypoints   *int    `json:"waypoints,omitempty" validate:"omitempty,gte=3,lte=10"`
}

// RouteValidateResponse is the response for a distance check.
type RouteValidateResponse struct {
	Validation   RouteValidation `json:"validation"`
	TolerancePct float64         `json:"tolerancePct"`
	Retry        RetrySuggestion `json:"retry"`
}

// Route is a generated or computed route.
type Route struct {
	// Kind is "round_trip" or "directions".
	Kind                string      `json:"kind"`
	GeometryPolyline    string      `json:"geometryPolyline"`
	Bounds              *GeoBox     `json:"bounds,omitempty"`
	DistanceMeters      float64     `json:"distanceMeters"`
	DurationSeconds     *float64    `json:"durationSeconds,omitempty"`
	ElevationGainMeters *float64    `json:"elevationGainMeters,omitempty"`
	Steps               []RouteStep `json:"steps,omitempty"`
}

// RouteStep is a turn-by-turn instruction.
type RouteStep struct {
	Instruction    string  `json:"instruction"`
	DistanceMeters float64 `json:"distanceMeters"`
	Start          Point   `json:"start"`
}

// RouteSummary holds display figures for a route.
type RouteSummary struct {
	DistanceKm          float64  `json:"distanceKm"`
	DurationMinutes     *int     `json:"durationMinutes,omitempty"`
	ElevationGainMeters *float64 `json:"elevationGainMeters,omitempty"`
	Calories            int      `json:"calories"`
	DistanceLabel       string   `json:"distanceLabel"`
	DurationLabel       string   `json:"durationLabel"`
	ElevationLabel      string   `json:"elevationLabel"`
	CaloriesLabel       string   `json:"caloriesLabel"`
}

// RouteValidation compares a route's distance against the requested distance.
type RouteValidation struct {
	Valid         bool    `json:"valid"`
	RequestedKm   float64 `json:"requestedKm"`
	ActualKm      float64 `json:"actualKm"`
	PercentageOff float64 `json:"percentageOff"`
	Message       *string `json:"message,omitempty"`
}

// RetrySuggestion is the waypoint count to try next.
type RetrySuggestion struct {
	Waypoints   int  `json:"waypoints"`
	ShouldRetry bool `json:"shouldRetry"`
}

// QuotaUsage reports the caller's monthly generation allowance.
type QuotaUsage struct {
	Month string `json:"month"`
	Used  int    `json:"used"`
	// Limit and Remaining are omitted for unlimited users.
	Limit     *int `json:"limit,omitempty"`
	Remaining *int `json:"remaining,omitempty"`
}
