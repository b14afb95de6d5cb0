// Package googlemaps provides point-to-point walking directions from the Google Maps Directions API.
package googlemaps

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/html"
	"googlemaps.github.io/maps"

	"github.com/looproute/looproute/internal/provider/resilience"
	"github.com/looproute/looproute/internal/routing"
	"github.com/looproute/looproute/pkg/polyline"
)

const (
	// ProviderName identifies this directions provider.
	ProviderName = "googlemaps"

	// DefaultTimeout is the default per-call timeout.
	DefaultTimeout = 10 * time.Second
)

// ErrMissingAPIKey is returned by NewClient when no API key is configured.
var ErrMissingAPIKey = errors.New("googlemaps: API key is required")

// NOT_FOUND means an endpoint could not be geocoded. ZERO_RESULTS is not an
// error to the maps client; it arrives as an empty route list.
var noRouteStatuses = []string{"NOT_FOUND"}

// ClientConfig holds configuration for the Google Maps client.
type ClientConfig struct {
	// APIKey is the Google Maps API key (required).
	APIKey string

	// BaseURL overrides the API base URL (optional, for tests).
	BaseURL string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client with defaults.
	HTTPClient *http.Client

	// Timeout is the per-call timeout (optional, defaults to 10s).
	Timeout time.Duration

	// Registry is the provider registry for health tracking (optional).
	Registry *resilience.Registry

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client is a Google Maps walking directions client.
type Client struct {
	maps    *maps.Client
	timeout time.Duration
	logger  zerolog.Logger
}

// NewClient creates a new Google Maps directions client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		clientCfg := resilience.DefaultClientConfig(ProviderName)
		clientCfg.Timeout = timeout
		clientCfg.Registry = cfg.Registry
		clientCfg.Logger = cfg.Logger
		httpClient = resilience.NewClient(clientCfg).StandardClient()
	}

	opts := []maps.ClientOption{
		maps.WithAPIKey(cfg.APIKey),
		maps.WithHTTPClient(httpClient),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, maps.WithBaseURL(cfg.BaseURL))
	}

	mc, err := maps.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("googlemaps: create client: %w", err)
	}

	return &Client{
		maps:    mc,
		timeout: timeout,
		logger:  cfg.Logger,
	}, nil
}

// Name returns the provider identifier.
func (c *Client) Name() string {
	return ProviderName
}

// Directions returns the first walking route from origin to destination.
func (c *Client) Directions(ctx context.Context, origin, destination routing.Coordinate) (*routing.Route, error) {
	if err := origin.Validate(); err != nil {
		return nil, err
	}
	if err := destination.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	routes, _, err := c.maps.Directions(ctx, &maps.DirectionsRequest{
		Origin:      latLng(origin),
		Destination: latLng(destination),
		Mode:        maps.TravelModeWalking,
	})
	if err != nil {
		c.logger.Warn().Err(err).
			Dur("duration", time.Since(start)).
			Msg("directions request failed")
		return nil, classify(err)
	}
	if len(routes) == 0 {
		return nil, &routing.Error{
			Provider: ProviderName,
			Kind:     routing.KindProtocol,
			Code:     "ZERO_RESULTS",
			Message:  "no walking route between the points",
			Err:      routing.ErrNoRouteFound,
		}
	}

	route, err := toRoute(&routes[0])
	if err != nil {
		return nil, err
	}

	c.logger.Debug().
		Float64("distance_m", route.DistanceMeters).
		Int("points", len(route.Path)).
		Dur("duration", time.Since(start)).
		Msg("directions fetched")
	return route, nil
}

func latLng(c routing.Coordinate) string {
	return fmt.Sprintf("%f,%f", c.Lat, c.Lon)
}

// classify maps a client error onto the routing error taxonomy. API statuses are
// reported as "maps: STATUS - message"; anything else failed in transport.
func classify(err error) error {
	msg := err.Error()
	if !strings.HasPrefix(msg, "maps: ") {
		return &routing.Error{
			Provider: ProviderName,
			Kind:     routing.KindTransport,
			Code:     "NETWORK_ERROR",
			Message:  "directions request failed",
			Err:      fmt.Errorf("%w: %w", routing.ErrProviderUnavailable, err),
		}
	}

	status := strings.TrimPrefix(msg, "maps: ")
	if i := strings.Index(status, " "); i >= 0 {
		status = status[:i]
	}

	rerr := &routing.Error{
		Provider: ProviderName,
		Kind:     routing.KindProtocol,
		Code:     status,
		Message:  "directions API error",
	}
	switch {
	case isNoRouteStatus(status):
		rerr.Err = fmt.Errorf("%w: %w", routing.ErrNoRouteFound, err)
	case status == "OVER_QUERY_LIMIT" || status == "OVER_DAILY_LIMIT":
		rerr.Err = fmt.Errorf("%w: %w", routing.ErrRateLimitExceeded, err)
	case status == "INVALID_REQUEST":
		rerr.Err = fmt.Errorf("%w: %w", routing.ErrInvalidRequest, err)
	default:
		rerr.Err = fmt.Errorf("%w: %w", routing.ErrProviderUnavailable, err)
	}
	return rerr
}

func isNoRouteStatus(status string) bool {
	for _, s := range noRouteStatuses {
		if status == s {
			return true
		}
	}
	return false
}

func toRoute(r *maps.Route) (*routing.Route, error) {
	points := polyline.Decode(r.OverviewPolyline.Points)
	if len(points) == 0 {
		return nil, &routing.Error{
			Provider: ProviderName,
			Kind:     routing.KindDecode,
			Code:     "EMPTY_GEOMETRY",
			Message:  "route has no overview polyline",
			Err:      routing.ErrDecode,
		}
	}

	route := &routing.Route{
		Kind: routing.KindDeviceComputed,
		Path: make([]routing.Coordinate, len(points)),
	}
	for i, p := range points {
		route.Path[i] = routing.Coordinate{Lat: p.Lat, Lon: p.Lon}
	}

	var duration time.Duration
	for _, leg := range r.Legs {
		route.DistanceMeters += float64(leg.Meters)
		duration += leg.Duration
		for _, step := range leg.Steps {
			route.Steps = append(route.Steps, toStep(step))
		}
	}
	if duration > 0 {
		seconds := duration.Seconds()
		route.DurationSeconds = &seconds
	}
	if route.DistanceMeters == 0 {
		route.DistanceMeters = polyline.Length(points)
	}
	return route, nil
}

func toStep(s *maps.Step) routing.Step {
	step := routing.Step{
		Instruction:    stripHTML(s.HTMLInstructions),
		DistanceMeters: float64(s.Meters),
	}
	for _, p := range polyline.Decode(s.Polyline.Points) {
		step.Path = append(step.Path, routing.Coordinate{Lat: p.Lat, Lon: p.Lon})
	}
	if len(step.Path) == 0 {
		step.Path = []routing.Coordinate{
			{Lat: s.StartLocation.Lat, Lon: s.StartLocation.Lng},
			{Lat: s.EndLocation.Lat, Lon: s.EndLocation.Lng},
		}
	}
	return step
}

// stripHTML returns the text content of an instruction fragment with
// whitespace collapsed. Block elements are separated by a space.
func stripHTML(s string) string {
	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(s))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(b.String()), " ")
		case html.TextToken:
			b.Write(z.Text())
		case html.StartTagToken, html.EndTagToken:
			name, _ := z.TagName()
			if string(name) == "div" || string(name) == "br" {
				b.WriteByte(' ')
			}
		}
	}
}
