package openrouteservice

import "encoding/json"

// roundTripRequest is the ORS directions request body for a round trip.
type roundTripRequest struct {
	Coordinates  [][]float64    `json:"coordinates"`
	Options      requestOptions `json:"options"`
	Instructions bool           `json:"instructions"`
	Elevation    bool           `json:"elevation"`
	Units        string         `json:"units"`
	Language     string         `json:"language"`
}

// requestOptions holds the ORS "options" object.
type requestOptions struct {
	RoundTrip     roundTripOptions `json:"round_trip"`
	AvoidFeatures []string         `json:"avoid_features,omitempty"`
}

// roundTripOptions configures ORS round-trip generation.
type roundTripOptions struct {
	Length float64 `json:"length"` // Target length in meters
	Points int     `json:"points"` // Number of generated waypoints
	Seed   int     `json:"seed"`
}

// Avoidable features.
const (
	avoidFerries = "ferries"
	avoidSteps   = "steps"
)

// featureCollection is the ORS GeoJSON directions response.
type featureCollection struct {
	Type     string    `json:"type"`
	Features []feature `json:"features"`
	BBox     []float64 `json:"bbox,omitempty"`
}

// feature is a single route in the GeoJSON response.
type feature struct {
	Type       string            `json:"type"`
	BBox       []float64         `json:"bbox,omitempty"`
	Properties featureProperties `json:"properties"`
	Geometry   lineString        `json:"geometry"`
}

// featureProperties contains the route summary and instructions.
type featureProperties struct {
	Segments  []segment    `json:"segments,omitempty"`
	Summary   routeSummary `json:"summary"`
	WayPoints []int        `json:"way_points,omitempty"`
	Ascent    *float64     `json:"ascent,omitempty"`
	Descent   *float64     `json:"descent,omitempty"`
}

// lineString holds [lon, lat, ele?] positions.
type lineString struct {
	Type        string      `json:"type"`
	Coordinates [][]float64 `json:"coordinates"`
}

// routeSummary contains summary information for a route.
type routeSummary struct {
	Distance float64  `json:"distance"`           // Distance in meters
	Duration *float64 `json:"duration,omitempty"` // Duration in seconds
}

// segment is a leg of the route between two generated waypoints.
type segment struct {
	Distance float64 `json:"distance"`
	Duration float64 `json:"duration"`
	Steps    []step  `json:"steps,omitempty"`
}

// step is a single instruction in a segment.
type step struct {
	Distance    float64 `json:"distance"`
	Duration    float64 `json:"duration"`
	Type        int     `json:"type"`
	Instruction string  `json:"instruction"`
	Name        string  `json:"name"`
	WayPoints   []int   `json:"way_points"` // [start, end] inclusive indexes into the geometry
}

// errorResponse represents an error response from ORS.
type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Info json.RawMessage `json:"info,omitempty"`
}

// ORS error codes for error mapping.
const (
	orsErrorCodeInvalidParam  = 2003 // Invalid parameter value
	orsErrorCodeNotFound      = 2009 // Route could not be found
	orsErrorCodePointNotFound = 2010 // No routable point near the coordinate
)
