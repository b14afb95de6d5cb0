// Package overpass counts points of interest with the Overpass API.
package overpass

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/serjvanilla/go-overpass"

	"github.com/looproute/looproute/internal/poi"
	"github.com/looproute/looproute/internal/provider/resilience"
)

const (
	// ProviderName identifies this POI provider.
	ProviderName = "overpass"

	// DefaultEndpoint is the public Overpass API interpreter.
	DefaultEndpoint = "https://overpass-api.de/api/interpreter"

	// DefaultTimeout is the default per-query timeout.
	DefaultTimeout = 10 * time.Second

	maxParallel = 2
)

// categoryFilters maps categories to OSM tag selectors.
var categoryFilters = map[poi.Category][]string{
	poi.CategoryMuseum:        {`["tourism"="museum"]`},
	poi.CategoryLandmark:      {`["tourism"="attraction"]`, `["historic"="monument"]`, `["historic"="memorial"]`},
	poi.CategoryCafe:          {`["amenity"="cafe"]`},
	poi.CategoryRestaurant:    {`["amenity"="restaurant"]`},
	poi.CategoryTheater:       {`["amenity"="theatre"]`},
	poi.CategoryNationalPark:  {`["boundary"="national_park"]`, `["leisure"="nature_reserve"]`},
	poi.CategoryGasStation:    {`["amenity"="fuel"]`},
	poi.CategoryStore:         {`["shop"]`},
	poi.CategoryAmusementPark: {`["tourism"="theme_park"]`},
}

// SearcherConfig holds configuration for the Overpass searcher.
type SearcherConfig struct {
	// Endpoint is the Overpass interpreter URL (optional).
	Endpoint string

	// Transport carries the Overpass requests (optional).
	// If nil, uses a resilient client with defaults.
	Transport http.RoundTripper

	// Timeout is the per-query timeout (optional, defaults to 10s).
	Timeout time.Duration

	// Registry is the provider registry for health tracking (optional).
	Registry *resilience.Registry

	// Logger for searcher operations.
	Logger zerolog.Logger
}

// Searcher counts OSM nodes and ways by category.
type Searcher struct {
	endpoint  string
	transport http.RoundTripper
	timeout   time.Duration
	logger    zerolog.Logger
}

// NewSearcher creates a new Overpass searcher.
func NewSearcher(cfg SearcherConfig) *Searcher {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	transport := cfg.Transport
	if transport == nil {
		clientCfg := resilience.DefaultClientConfig(ProviderName)
		clientCfg.Timeout = timeout
		clientCfg.Registry = cfg.Registry
		clientCfg.Logger = cfg.Logger
		transport = resilience.NewClient(clientCfg)
	}

	return &Searcher{
		endpoint:  endpoint,
		transport: transport,
		timeout:   timeout,
		logger:    cfg.Logger,
	}
}

// Count returns the number of distinct nodes and ways matching any category inside box.
func (s *Searcher) Count(ctx context.Context, box poi.BoundingBox, categories []poi.Category) (int, error) {
	if err := box.Validate(); err != nil {
		return 0, err
	}
	query, err := buildQuery(box, categories, s.timeout)
	if err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	// The library has no context support, so the context rides on the transport.
	httpClient := &http.Client{Transport: &contextTransport{ctx: ctx, next: s.transport}}
	client := overpass.NewWithSettings(s.endpoint, maxParallel, httpClient)
	result, err := client.Query(query)
	if err != nil {
		return 0, fmt.Errorf("overpass query failed: %w", err)
	}

	count := len(result.Nodes) + len(result.Ways)
	s.logger.Debug().
		Int("count", count).
		Int("categories", len(categories)).
		Msg("counted points of interest")
	return count, nil
}

// buildQuery builds an Overpass QL union over every tag selector of the categories.
func buildQuery(box poi.BoundingBox, categories []poi.Category, timeout time.Duration) (string, error) {
	if len(categories) == 0 {
		return "", fmt.Errorf("overpass: at least one category is required")
	}

	bbox := fmt.Sprintf("(%.6f,%.6f,%.6f,%.6f)", box.MinLat, box.MinLon, box.MaxLat, box.MaxLon)

	var b strings.Builder
	fmt.Fprintf(&b, "[out:json][timeout:%d];\n(\n", int(timeout.Seconds()))
	for _, c := range categories {
		filters, ok := categoryFilters[c]
		if !ok {
			return "", fmt.Errorf("overpass: unsupported category %q", c)
		}
		for _, f := range filters {
			fmt.Fprintf(&b, "  node%s%s;\n  way%s%s;\n", f, bbox, f, bbox)
		}
	}
	b.WriteString(");\nout ids;\n")
	return b.String(), nil
}

// contextTransport attaches a context to requests issued by the overpass library.
type contextTransport struct {
	ctx  context.Context
	next http.RoundTripper
}

func (t *contextTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.next.RoundTrip(req.WithContext(t.ctx))
}
