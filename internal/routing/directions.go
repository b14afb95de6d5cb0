package routing

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const (
	defaultDirectionsTTL   = 5 * time.Minute
	defaultDirectionsStale = 15 * time.Minute
	defaultDirectionsGrid  = 0.001 // about 110m of latitude
)

// DirectionsServiceConfig holds configuration for the directions service.
type DirectionsServiceConfig struct {
	Provider DirectionsProvider
	Logger   zerolog.Logger

	// CacheTTL is how long a fetched route is served without asking the provider. Default: 5m
	CacheTTL time.Duration

	// StaleIfErrorTTL is how long after fetching a route may still stand in for a
	// failed provider call. Entries older than this are swept. Default: 15m
	StaleIfErrorTTL time.Duration

	// CacheGridSize is the cell size in degrees that endpoints are snapped to
	// before lookup, so nearby requests share a route. Default: 0.001
	CacheGridSize float64

	// Now returns the current time (default: time.Now).
	Now func() time.Time
}

// DirectionsService caches point-to-point walking routes in front of a provider.
// Concurrent misses for the same cell pair share one provider call.
type DirectionsService struct {
	provider DirectionsProvider
	logger   zerolog.Logger
	ttl      time.Duration
	staleTTL time.Duration
	grid     float64
	now      func() time.Time

	calls singleflight.Group

	mu      sync.RWMutex
	entries map[string]directionsEntry
	sweptAt time.Time
}

type directionsEntry struct {
	route     *Route
	fetchedAt time.Time
}

// NewDirectionsService creates a directions service.
func NewDirectionsService(cfg DirectionsServiceConfig) *DirectionsService {
	s := &DirectionsService{
		provider: cfg.Provider,
		logger:   cfg.Logger,
		ttl:      cfg.CacheTTL,
		staleTTL: cfg.StaleIfErrorTTL,
		grid:     cfg.CacheGridSize,
		now:      cfg.Now,
		entries:  make(map[string]directionsEntry),
	}
	if s.ttl <= 0 {
		s.ttl = defaultDirectionsTTL
	}
	if s.staleTTL < s.ttl {
		s.staleTTL = max(defaultDirectionsStale, s.ttl)
	}
	if s.grid <= 0 {
		s.grid = defaultDirectionsGrid
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Name returns the name of the underlying provider.
func (s *DirectionsService) Name() string {
	return s.provider.Name()
}

// Directions returns a walking route from origin to destination. A cached route
// is served while fresh. When the provider fails, a route fetched within the
// stale window is served instead of the error.
func (s *DirectionsService) Directions(ctx context.Context, origin, destination Coordinate) (*Route, error) {
	if err := origin.Validate(); err != nil {
		return nil, s.invalid("INVALID_ORIGIN", "invalid origin coordinates", err)
	}
	if err := destination.Validate(); err != nil {
		return nil, s.invalid("INVALID_DESTINATION", "invalid destination coordinates", err)
	}

	key := s.cellKey(origin, destination)
	if e, ok := s.lookup(key); ok && s.now().Sub(e.fetchedAt) < s.ttl {
		return e.route, nil
	}

	// The shared call outlives any single caller so one cancellation cannot fail the others.
	shared := context.WithoutCancel(ctx)
	ch := s.calls.DoChan(key, func() (any, error) {
		return s.fetch(shared, key, origin, destination)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Route), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *DirectionsService) fetch(ctx context.Context, key string, origin, destination Coordinate) (*Route, error) {
	// A call that finished between the caller's lookup and joining the group already stored a route.
	if e, ok := s.lookup(key); ok && s.now().Sub(e.fetchedAt) < s.ttl {
		return e.route, nil
	}

	route, err := s.provider.Directions(ctx, origin, destination)
	if err == nil {
		s.store(key, route)
		return route, nil
	}

	s.logger.Error().Err(err).
		Str("provider", s.provider.Name()).
		Str("cell", key).
		Msg("directions request failed")

	if e, ok := s.lookup(key); ok && s.now().Sub(e.fetchedAt) < s.staleTTL {
		s.logger.Warn().
			Str("cell", key).
			Time("fetched_at", e.fetchedAt).
			Msg("serving stale directions")
		return e.route, nil
	}
	return nil, err
}

func (s *DirectionsService) lookup(key string) (directionsEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	return e, ok
}

// store saves route and sweeps entries past the stale window at most once per TTL.
func (s *DirectionsService) store(key string, route *Route) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = directionsEntry{route: route, fetchedAt: now}

	if now.Sub(s.sweptAt) < s.ttl {
		return
	}
	s.sweptAt = now
	for k, e := range s.entries {
		if now.Sub(e.fetchedAt) >= s.staleTTL {
			delete(s.entries, k)
		}
	}
}

// cellKey snaps both endpoints to the cache grid: "lat,lon:lat,lon".
func (s *DirectionsService) cellKey(origin, destination Coordinate) string {
	snap := func(v float64) float64 { return math.Floor(v/s.grid) * s.grid }
	return fmt.Sprintf("%.4f,%.4f:%.4f,%.4f",
		snap(origin.Lat), snap(origin.Lon), snap(destination.Lat), snap(destination.Lon))
}

func (s *DirectionsService) invalid(code, message string, err error) error {
	return &Error{
		Provider: s.provider.Name(),
		Kind:     KindProtocol,
		Code:     code,
		Message:  message,
		Err:      err,
	}
}

// InvalidateCache drops every cached route.
func (s *DirectionsService) InvalidateCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.entries)
}

// CacheStats describes the directions cache.
type CacheStats struct {
	Provider string
	Entries  int
	Fresh    int
	Stale    int
}

// CacheStats counts cached routes by freshness. Stale entries can only be
// served when the provider fails.
func (s *DirectionsService) CacheStats() CacheStats {
	now := s.now()
	stats := CacheStats{Provider: s.provider.Name()}

	s.mu.RLock()
	defer s.mu.RUnlock()
	stats.Entries = len(s.entries)
	for _, e := range s.entries {
		switch age := now.Sub(e.fetchedAt); {
		case age < s.ttl:
			stats.Fresh++
		case age < s.staleTTL:
			stats.Stale++
		}
	}
	return stats
}
