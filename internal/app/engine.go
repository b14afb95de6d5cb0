// Package app assembles the route generation engine shared by the API server and the worker.
package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/looproute/looproute/internal/config"
	"github.com/looproute/looproute/internal/poi"
	"github.com/looproute/looproute/internal/poi/overpass"
	"github.com/looproute/looproute/internal/preference"
	"github.com/looproute/looproute/internal/provider/resilience"
	"github.com/looproute/looproute/internal/routing"
	"github.com/looproute/looproute/internal/routing/googlemaps"
	"github.com/looproute/looproute/internal/routing/openrouteservice"
)

// Engine holds the routing components built from configuration.
type Engine struct {
	Registry  *resilience.Registry
	Generator *routing.Generator
	Evaluator *preference.Evaluator

	// Directions is nil when no Google Maps key is configured.
	Directions *routing.DirectionsService

	// Redis is nil when POI counts are cached in memory.
	Redis *redis.Client
}

// NewEngine wires the routing client, POI search, preference evaluator and generator.
func NewEngine(ctx context.Context, cfg *config.Config, metrics routing.MetricsRecorder, logger zerolog.Logger) (*Engine, error) {
	registry := resilience.NewRegistry()

	ors, err := openrouteservice.NewClient(openrouteservice.ClientConfig{
		APIKey:            cfg.ORSAPIKey,
		BaseURL:           cfg.ORSBaseURL,
		RequestsPerMinute: cfg.ORSRequestsPerMinute,
		Registry:          registry,
		Logger:            logger.With().Str("component", "openrouteservice").Logger(),
	})
	if err != nil {
		return nil, fmt.Errorf("create routing client: %w", err)
	}

	e := &Engine{Registry: registry}

	var cache poi.Cache
	if cfg.RedisAddr != "" {
		e.Redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := e.Redis.Ping(ctx).Err(); err != nil {
			_ = e.Redis.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		cache = poi.NewRedisCache(e.Redis, "looproute:poi:")
		logger.Info().Str("addr", cfg.RedisAddr).Msg("POI cache backed by redis")
	} else {
		cache = poi.NewMemoryCache()
		logger.Info().Msg("POI cache kept in memory")
	}

	searcher := poi.NewCachedSearcher(poi.CachedSearcherConfig{
		Searcher: overpass.NewSearcher(overpass.SearcherConfig{
			Endpoint: cfg.OverpassURL,
			Registry: registry,
			Logger:   logger.With().Str("component", "overpass").Logger(),
		}),
		Cache:  cache,
		TTL:    cfg.POICacheTTL,
		Logger: logger,
	})

	e.Evaluator = preference.NewEvaluator(preference.EvaluatorConfig{
		Searcher: searcher,
		Logger:   logger.With().Str("component", "preference").Logger(),
	})

	e.Generator = routing.NewGenerator(routing.GeneratorConfig{
		Provider:    ors,
		Scorer:      e.Evaluator,
		Metrics:     metrics,
		Logger:      logger.With().Str("component", "generator").Logger(),
		MaxAttempts: cfg.MaxAttempts,
	})

	if cfg.GoogleMapsAPIKey != "" {
		gm, err := googlemaps.NewClient(googlemaps.ClientConfig{
			APIKey:   cfg.GoogleMapsAPIKey,
			Registry: registry,
			Logger:   logger.With().Str("component", "googlemaps").Logger(),
		})
		if err != nil {
			e.Close()
			return nil, fmt.Errorf("create directions client: %w", err)
		}
		e.Directions = routing.NewDirectionsService(routing.DirectionsServiceConfig{
			Provider: gm,
			Logger:   logger.With().Str("component", "directions").Logger(),
		})
	} else {
		logger.Warn().Msg("GOOGLE_MAPS_API_KEY not set - directions disabled")
	}

	return e, nil
}

// PingRedis reports whether the POI cache is reachable. It is a no-op for the memory cache.
func (e *Engine) PingRedis(ctx context.Context) error {
	if e.Redis == nil {
		return nil
	}
	return e.Redis.Ping(ctx).Err()
}

// Close releases the engine's connections.
func (e *Engine) Close() {
	if e.Redis != nil {
		_ = e.Redis.Close()
	}
}
