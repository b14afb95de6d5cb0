package routing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/looproute/looproute/internal/routing"

const (
	// DefaultMaxAttempts is the attempt budget of a single Generate call.
	DefaultMaxAttempts = 5

	// urbanExplorerCandidates is the fan-out width when UrbanExplorer is requested.
	urbanExplorerCandidates = 3
)

// Generation outcomes reported to the MetricsRecorder.
const (
	OutcomeAccepted   = "accepted"
	OutcomeBestEffort = "best_effort"
	OutcomeFailed     = "failed"
	OutcomeCanceled   = "canceled"
)

// Scorer ranks candidate routes against the user's preferences. Higher is better.
type Scorer interface {
	Score(ctx context.Context, route *Route, prefs Preferences) (int, error)
}

// MetricsRecorder records the outcome of a Generate call.
type MetricsRecorder interface {
	RecordGeneration(ctx context.Context, attempts int, outcome string, duration time.Duration)
}

// GeneratorConfig holds configuration for the route generator.
type GeneratorConfig struct {
	// Provider produces round-trip candidates.
	Provider RoundTripProvider

	// Scorer ranks fan-out candidates. Optional; without it the first candidate wins.
	Scorer Scorer

	// Metrics records generation outcomes. Optional.
	Metrics MetricsRecorder

	// Tracer for generation spans (default: global otel tracer).
	Tracer trace.Tracer

	// Logger for generator operations.
	Logger zerolog.Logger

	// MaxAttempts bounds the attempts per Generate call (default: 5).
	MaxAttempts int
}

// Generator drives the generate, score, validate and retry loop.
// A Generator is safe for concurrent use; each Generate call keeps its own state.
type Generator struct {
	provider    RoundTripProvider
	scorer      Scorer
	metrics     MetricsRecorder
	tracer      trace.Tracer
	logger      zerolog.Logger
	maxAttempts int
}

// NewGenerator creates a new route generator.
func NewGenerator(cfg GeneratorConfig) *Generator {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}

	return &Generator{
		provider:    cfg.Provider,
		scorer:      cfg.Scorer,
		metrics:     cfg.Metrics,
		tracer:      tracer,
		logger:      cfg.Logger,
		maxAttempts: maxAttempts,
	}
}

// generationRun is the state of one Generate call.
type generationRun struct {
	attempts   int
	waypoints  int
	best       *Route
	bestResult ValidationResult
}

func (r *generationRun) consider(route *Route, result ValidationResult) {
	if r.best == nil || result.PercentageOff < r.bestResult.PercentageOff {
		r.best = route
		r.bestResult = result
	}
}

func (r *generationRun) generation(accepted bool) *Generation {
	return &Generation{
		Route:      r.best,
		Validation: r.bestResult,
		Attempts:   r.attempts,
		Accepted:   accepted,
	}
}

// Generate produces a round trip of roughly targetKm kilometers starting at origin.
//
// A route within tolerance is returned with Accepted set. When the attempt budget
// runs out, or the retry table has no better waypoint count to offer, the closest
// route seen is returned with Accepted false and its ValidationResult.
// ErrGenerationFailed is returned only when no attempt produced a route.
func (g *Generator) Generate(ctx context.Context, origin Coordinate, targetKm float64, prefs Preferences) (*Generation, error) {
	if err := origin.Validate(); err != nil {
		return nil, err
	}
	if !(targetKm > 0) || math.IsInf(targetKm, 0) {
		return nil, fmt.Errorf("%w: target distance %.2fkm must be positive", ErrInvalidRequest, targetKm)
	}

	ctx, span := g.tracer.Start(ctx, "routing.Generate", trace.WithAttributes(
		attribute.Float64("route.target_km", targetKm),
		attribute.Bool("route.pref.quiet", prefs.Quiet),
		attribute.Bool("route.pref.urban_explorer", prefs.UrbanExplorer),
		attribute.Bool("route.pref.avoid_stairs", prefs.AvoidStairs),
	))
	defer span.End()

	start := time.Now()
	run := &generationRun{waypoints: DefaultWaypoints}
	gen, err := g.loop(ctx, run, origin, targetKm, prefs)

	outcome := OutcomeAccepted
	switch {
	case err != nil && ctx.Err() != nil:
		outcome = OutcomeCanceled
	case err != nil:
		outcome = OutcomeFailed
	case !gen.Accepted:
		outcome = OutcomeBestEffort
	}
	if g.metrics != nil {
		g.metrics.RecordGeneration(ctx, run.attempts, outcome, time.Since(start))
	}

	span.SetAttributes(
		attribute.Int("route.attempts", run.attempts),
		attribute.String("route.outcome", outcome),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		g.logger.Warn().Err(err).
			Int("attempts", run.attempts).
			Float64("target_km", targetKm).
			Msg("route generation failed")
		return nil, err
	}

	g.logger.Info().
		Int("attempts", gen.Attempts).
		Bool("accepted", gen.Accepted).
		Float64("target_km", targetKm).
		Float64("actual_km", gen.Validation.ActualKm).
		Float64("percentage_off", gen.Validation.PercentageOff).
		Dur("duration", time.Since(start)).
		Msg("route generated")
	return gen, nil
}

func (g *Generator) loop(ctx context.Context, run *generationRun, origin Coordinate, targetKm float64, prefs Preferences) (*Generation, error) {
	candidates := 1
	if prefs.UrbanExplorer {
		candidates = urbanExplorerCandidates
	}

	var lastErr error
	for run.attempts < g.maxAttempts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		run.attempts++

		req := RoundTripRequest{
			Origin:       origin,
			LengthMeters: targetKm * 1000,
			Waypoints:    run.waypoints,
			Preferences:  prefs,
		}
		route, err := g.attempt(ctx, run.attempts, req, candidates)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			lastErr = err
			if run.best != nil {
				return run.generation(false), nil
			}
			if run.waypoints == DefaultWaypoints {
				run.waypoints = DefaultWaypoints - 1
			} else {
				run.waypoints = DefaultWaypoints
			}
			g.logger.Debug().Err(err).
				Int("attempt", run.attempts).
				Int("next_waypoints", run.waypoints).
				Msg("attempt failed, retrying")
			continue
		}

		result := Validate(route, targetKm)
		run.consider(route, result)
		if result.Valid {
			return run.generation(true), nil
		}
		if run.attempts >= g.maxAttempts {
			break
		}

		suggestion := SuggestRetry(run.waypoints, result)
		g.logger.Debug().
			Int("attempt", run.attempts).
			Float64("actual_km", result.ActualKm).
			Float64("percentage_off", result.PercentageOff).
			Int("waypoints", run.waypoints).
			Int("next_waypoints", suggestion.WaypointCount).
			Bool("retry", suggestion.ShouldRetry).
			Msg("route outside tolerance")
		if !suggestion.ShouldRetry {
			break
		}
		run.waypoints = suggestion.WaypointCount
	}

	if run.best != nil {
		return run.generation(false), nil
	}
	if lastErr == nil {
		return nil, ErrGenerationFailed
	}
	return nil, fmt.Errorf("%w after %d attempts: %w", ErrGenerationFailed, run.attempts, lastErr)
}

// attempt produces the candidate for one attempt. With more than one candidate the
// requests run concurrently and the highest-scoring route wins, the earliest on ties.
func (g *Generator) attempt(ctx context.Context, n int, req RoundTripRequest, candidates int) (*Route, error) {
	ctx, span := g.tracer.Start(ctx, "routing.Attempt", trace.WithAttributes(
		attribute.Int("route.attempt", n),
		attribute.Int("route.waypoints", req.Waypoints),
		attribute.Int("route.candidates", candidates),
	))
	defer span.End()

	if candidates <= 1 {
		route, err := g.provider.GenerateRoundTrip(ctx, req)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		return route, nil
	}

	routes := make([]*Route, candidates)
	scores := make([]int, candidates)
	errs := make([]error, candidates)

	// Failures are collected per slot so one bad candidate does not cancel the others.
	var wg sync.WaitGroup
	for i := range candidates {
		wg.Add(1)
		go func() {
			defer wg.Done()
			route, err := g.provider.GenerateRoundTrip(ctx, req)
			if err != nil {
				errs[i] = err
				return
			}
			routes[i] = route
			scores[i] = g.score(ctx, route, req.Preferences)
		}()
	}
	wg.Wait()

	best := -1
	for i, route := range routes {
		if route == nil {
			continue
		}
		if best < 0 || scores[i] > scores[best] {
			best = i
		}
	}
	if best >= 0 {
		span.SetAttributes(attribute.Int("route.score", scores[best]))
		return routes[best], nil
	}

	g.logger.Debug().
		Err(errors.Join(errs...)).
		Int("candidates", candidates).
		Msg("all candidates failed, issuing fallback request")

	route, err := g.provider.GenerateRoundTrip(ctx, req)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return route, nil
}

func (g *Generator) score(ctx context.Context, route *Route, prefs Preferences) int {
	if g.scorer == nil {
		return 0
	}
	score, err := g.scorer.Score(ctx, route, prefs)
	if err != nil {
		g.logger.Warn().Err(err).Msg("failed to score candidate route")
		return 0
	}
	return score
}
