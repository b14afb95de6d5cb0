// Package openrouteservice provides a round-trip client for the OpenRouteService directions API.
package openrouteservice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/looproute/looproute/internal/provider/resilience"
	"github.com/looproute/looproute/internal/routing"
)

const (
	// ProviderName identifies this routing provider.
	ProviderName = "openrouteservice"

	// DefaultBaseURL is the OpenRouteService API base URL.
	DefaultBaseURL = "https://api.openrouteservice.org"

	// DefaultTimeout is the default per-call timeout.
	DefaultTimeout = 12 * time.Second

	// DefaultRequestsPerMinute matches the ORS free-tier directions quota.
	DefaultRequestsPerMinute = 40

	// MaxSeed is the upper bound of the random round-trip seed.
	MaxSeed = 1_000_000

	directionsPath = "/v2/directions/foot-walking/geojson"

	maxResponseBytes = 16 << 20
)

// ErrMissingAPIKey is returned by NewClient when no API key is configured.
var ErrMissingAPIKey = errors.New("openrouteservice: API key is required")

// HTTPDoer is an interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// SeedFunc returns the seed for a round-trip request.
type SeedFunc func() int

// ClientConfig holds configuration for the OpenRouteService client.
type ClientConfig struct {
	// APIKey is the ORS API key (required).
	APIKey string

	// BaseURL is the API base URL (optional, defaults to ORS API).
	BaseURL string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client with defaults.
	HTTPClient HTTPDoer

	// Timeout is the per-call timeout (optional, defaults to 12s).
	Timeout time.Duration

	// RequestsPerMinute paces outbound requests (optional, defaults to 40).
	// Ignored when Limiter is set.
	RequestsPerMinute int

	// Limiter paces outbound requests (optional). Share one limiter between
	// clients that use the same API key.
	Limiter *rate.Limiter

	// Seed returns the round-trip seed (optional, defaults to a random value in [1, MaxSeed]).
	Seed SeedFunc

	// Registry is the provider registry for health tracking (optional).
	Registry *resilience.Registry

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client is an OpenRouteService API client.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient HTTPDoer
	timeout    time.Duration
	limiter    *rate.Limiter
	seed       SeedFunc
	logger     zerolog.Logger
}

// NewClient creates a new OpenRouteService client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		clientCfg := resilience.DefaultClientConfig(ProviderName)
		clientCfg.Timeout = timeout
		// Retrying is the generator's job. The transport only trips the circuit.
		clientCfg.MaxRetries = 0
		clientCfg.Registry = cfg.Registry
		clientCfg.Logger = cfg.Logger
		httpClient = resilience.NewClient(clientCfg)
	}

	limiter := cfg.Limiter
	if limiter == nil {
		rpm := cfg.RequestsPerMinute
		if rpm <= 0 {
			rpm = DefaultRequestsPerMinute
		}
		// Burst covers one fan-out of concurrent candidate requests.
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 3)
	}

	seed := cfg.Seed
	if seed == nil {
		seed = randomSeed
	}

	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		httpClient: httpClient,
		timeout:    timeout,
		limiter:    limiter,
		seed:       seed,
		logger:     cfg.Logger,
	}, nil
}

func randomSeed() int {
	return rand.IntN(MaxSeed) + 1
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// GenerateRoundTrip requests a single walking round trip starting and ending at req.Origin.
// The call is never retried here beyond the transport's own 5xx handling.
func (c *Client) GenerateRoundTrip(ctx context.Context, req routing.RoundTripRequest) (*routing.Route, error) {
	if err := req.Origin.Validate(); err != nil {
		return nil, err
	}
	if !(req.LengthMeters > 0) {
		return nil, fmt.Errorf("%w: round trip length %.0fm must be positive", routing.ErrInvalidRequest, req.LengthMeters)
	}

	points := req.Waypoints
	if points == 0 {
		points = routing.DefaultWaypoints
	}

	avoid := []string{avoidFerries}
	if req.Preferences.AvoidStairs {
		avoid = append(avoid, avoidSteps)
	}

	orsReq := roundTripRequest{
		// ORS uses [lon, lat] order (GeoJSON)
		Coordinates: [][]float64{{req.Origin.Lon, req.Origin.Lat}},
		Options: requestOptions{
			RoundTrip: roundTripOptions{
				Length: req.LengthMeters,
				Points: points,
				Seed:   c.seed(),
			},
			AvoidFeatures: avoid,
		},
		Instructions: true,
		Elevation:    true,
		Units:        "m",
		Language:     "en",
	}

	body, err := json.Marshal(orsReq)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, transportError("RATE_LIMIT_WAIT", "waiting for request slot", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+directionsPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", c.apiKey)
	httpReq.Header.Set("Accept", "application/json, application/geo+json")

	c.logger.Debug().
		Float64("origin_lat", req.Origin.Lat).
		Float64("origin_lon", req.Origin.Lon).
		Float64("length_m", req.LengthMeters).
		Int("points", points).
		Int("seed", orsReq.Options.RoundTrip.Seed).
		Bool("avoid_steps", req.Preferences.AvoidStairs).
		Msg("requesting round trip from ORS")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, transportError("REQUEST_FAILED", "failed to reach routing provider", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, transportError("READ_FAILED", "failed to read routing response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, c.handleErrorResponse(resp.StatusCode, respBody)
	}

	var fc featureCollection
	if err := json.Unmarshal(respBody, &fc); err != nil {
		return nil, decodeError("INVALID_JSON", "routing response is not valid JSON", err)
	}

	route, err := toRoute(&fc)
	if err != nil {
		return nil, err
	}

	c.logger.Debug().
		Float64("distance_m", route.DistanceMeters).
		Int("points", len(route.Path)).
		Int("steps", len(route.Steps)).
		Msg("received round trip from ORS")

	return route, nil
}

// handleErrorResponse maps ORS error responses to domain errors.
func (c *Client) handleErrorResponse(statusCode int, body []byte) error {
	var orsErr errorResponse
	_ = json.Unmarshal(body, &orsErr) // best effort; the status code decides

	message := orsErr.Error.Message
	if message == "" {
		message = fmt.Sprintf("routing provider returned status %d", statusCode)
	}

	c.logger.Debug().
		Int("status", statusCode).
		Int("ors_code", orsErr.Error.Code).
		Str("message", message).
		Msg("ORS returned an error")

	protocolError := func(code string, err error) *routing.Error {
		return &routing.Error{
			Provider: ProviderName,
			Kind:     routing.KindProtocol,
			Code:     code,
			Message:  message,
			Err:      err,
		}
	}

	switch {
	case statusCode == http.StatusTooManyRequests:
		return protocolError("RATE_LIMIT", routing.ErrRateLimitExceeded)
	case statusCode == http.StatusNotFound,
		orsErr.Error.Code == orsErrorCodeNotFound,
		orsErr.Error.Code == orsErrorCodePointNotFound:
		return protocolError("NO_ROUTE", routing.ErrNoRouteFound)
	case statusCode == http.StatusForbidden, statusCode == http.StatusUnauthorized:
		return protocolError("FORBIDDEN", routing.ErrProviderUnavailable)
	case statusCode == http.StatusBadRequest:
		code := "BAD_REQUEST"
		if orsErr.Error.Code == orsErrorCodeInvalidParam {
			code = "INVALID_PARAMETER"
		}
		return protocolError(code, routing.ErrInvalidRequest)
	case statusCode >= 500:
		return protocolError(fmt.Sprintf("SERVER_%d", statusCode), routing.ErrProviderUnavailable)
	default:
		return protocolError(fmt.Sprintf("HTTP_%d", statusCode), routing.ErrProviderUnavailable)
	}
}

// toRoute converts the first feature of an ORS response to a domain route.
func toRoute(fc *featureCollection) (*routing.Route, error) {
	if len(fc.Features) == 0 {
		return nil, decodeError("NO_FEATURES", "routing response contains no route", nil)
	}
	f := &fc.Features[0]

	coords := f.Geometry.Coordinates
	if len(coords) == 0 {
		return nil, decodeError("EMPTY_GEOMETRY", "routing response has an empty geometry", nil)
	}

	path := make([]routing.Coordinate, len(coords))
	hasElevation := true
	for i, pos := range coords {
		if len(pos) < 2 {
			return nil, decodeError("INVALID_POSITION", fmt.Sprintf("position %d has %d components", i, len(pos)), nil)
		}
		path[i] = routing.Coordinate{Lat: pos[1], Lon: pos[0]}
		if len(pos) < 3 {
			hasElevation = false
		}
	}

	route := &routing.Route{
		Kind:            routing.KindExternalAPI,
		Path:            path,
		DistanceMeters:  f.Properties.Summary.Distance,
		DurationSeconds: f.Properties.Summary.Duration,
	}

	if hasElevation {
		gain := elevationGain(coords)
		route.ElevationGainMeters = &gain
	}

	for _, seg := range f.Properties.Segments {
		for _, s := range seg.Steps {
			if len(s.WayPoints) != 2 {
				return nil, decodeError("INVALID_WAY_POINTS", fmt.Sprintf("step has %d way points", len(s.WayPoints)), nil)
			}
			start, end := s.WayPoints[0], s.WayPoints[1]
			if start < 0 || end < start || end >= len(path) {
				return nil, decodeError("INVALID_WAY_POINTS",
					fmt.Sprintf("way points [%d, %d] outside path of %d points", start, end, len(path)), nil)
			}
			route.Steps = append(route.Steps, routing.Step{
				Instruction:    s.Instruction,
				DistanceMeters: s.Distance,
				Path:           path[start : end+1],
			})
		}
	}

	return route, nil
}

// elevationGain sums the positive deltas between consecutive elevation samples.
func elevationGain(coords [][]float64) float64 {
	var gain float64
	for i := 1; i < len(coords); i++ {
		if delta := coords[i][2] - coords[i-1][2]; delta > 0 {
			gain += delta
		}
	}
	return gain
}

func transportError(code, message string, err error) *routing.Error {
	return &routing.Error{
		Provider: ProviderName,
		Kind:     routing.KindTransport,
		Code:     code,
		Message:  message,
		Err:      fmt.Errorf("%w: %w", routing.ErrProviderUnavailable, err),
	}
}

func decodeError(code, message string, err error) *routing.Error {
	wrapped := routing.ErrDecode
	if err != nil {
		wrapped = fmt.Errorf("%w: %w", routing.ErrDecode, err)
	}
	return &routing.Error{
		Provider: ProviderName,
		Kind:     routing.KindDecode,
		Code:     code,
		Message:  message,
		Err:      wrapped,
	}
}
