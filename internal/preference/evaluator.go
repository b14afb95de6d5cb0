// Package preference scores routes against soft user preferences using nearby points of interest.
package preference

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/looproute/looproute/internal/poi"
	"github.com/looproute/looproute/internal/routing"
)

// Labels for preferences a route could not satisfy.
const (
	MissingUrbanLandmarks = "Urban Landmarks"
	MissingQuietStreets   = "Quiet Streets"
)

const (
	baseScore = 100

	// urbanPointsPerPlace is added per urban place found along the route.
	urbanPointsPerPlace = 15

	// Quiet routes have fewer than quietMaxCommercial commercial places;
	// busy routes have more than busyMinCommercial.
	quietMaxCommercial = 3
	busyMinCommercial  = 6
	quietBonus         = 30
	busyPenalty        = 20

	// minUrbanPlaces is the count an urban explorer route needs to be satisfying.
	minUrbanPlaces = 3

	// DefaultSearchTimeout bounds each POI lookup.
	DefaultSearchTimeout = 10 * time.Second
)

// EvaluatorConfig holds configuration for the preference evaluator.
type EvaluatorConfig struct {
	// Searcher counts points of interest.
	Searcher poi.Searcher

	// SearchTimeout bounds each lookup (default: 10s).
	SearchTimeout time.Duration

	// Logger for evaluator operations.
	Logger zerolog.Logger
}

// Evaluator scores routes and reports unmet preferences.
type Evaluator struct {
	searcher      poi.Searcher
	searchTimeout time.Duration
	logger        zerolog.Logger
}

// NewEvaluator creates a new preference evaluator.
func NewEvaluator(cfg EvaluatorConfig) *Evaluator {
	timeout := cfg.SearchTimeout
	if timeout == 0 {
		timeout = DefaultSearchTimeout
	}
	return &Evaluator{
		searcher:      cfg.Searcher,
		searchTimeout: timeout,
		logger:        cfg.Logger,
	}
}

// counts holds the POI lookups of one evaluation. A nil field was not requested.
type counts struct {
	urban      *int
	commercial *int
}

// lookup runs the requested POI searches concurrently over the route's bounding box.
// A failed search counts as zero places.
func (e *Evaluator) lookup(ctx context.Context, route *routing.Route, prefs routing.Preferences) (counts, error) {
	var c counts
	if !prefs.UrbanExplorer && !prefs.Quiet {
		return c, nil
	}

	bounds, ok := route.Bounds()
	if !ok {
		return c, fmt.Errorf("%w: route has no path", routing.ErrInvalidRequest)
	}
	box := poi.BoundingBox{
		MinLat: bounds.MinLat,
		MinLon: bounds.MinLon,
		MaxLat: bounds.MaxLat,
		MaxLon: bounds.MaxLon,
	}

	var (
		urban, commercial int
		wg                sync.WaitGroup
	)
	if prefs.UrbanExplorer {
		c.urban = &urban
		wg.Add(1)
		go func() {
			defer wg.Done()
			urban = e.count(ctx, box, poi.UrbanCategories)
		}()
	}
	if prefs.Quiet {
		c.commercial = &commercial
		wg.Add(1)
		go func() {
			defer wg.Done()
			commercial = e.count(ctx, box, poi.CommercialCategories)
		}()
	}
	wg.Wait()
	return c, nil
}

func (e *Evaluator) count(ctx context.Context, box poi.BoundingBox, categories []poi.Category) int {
	ctx, cancel := context.WithTimeout(ctx, e.searchTimeout)
	defer cancel()

	n, err := e.searcher.Count(ctx, box, categories)
	if err != nil {
		e.logger.Warn().Err(err).
			Int("categories", len(categories)).
			Msg("poi search failed, counting zero places")
		return 0
	}
	return n
}

// Evaluate returns the labels of requested preferences the route does not satisfy,
// urban landmarks first. Preferences that were not requested are never reported.
func (e *Evaluator) Evaluate(ctx context.Context, route *routing.Route, prefs routing.Preferences) ([]string, error) {
	c, err := e.lookup(ctx, route, prefs)
	if err != nil {
		return nil, err
	}

	var missing []string
	if c.urban != nil && *c.urban < minUrbanPlaces {
		missing = append(missing, MissingUrbanLandmarks)
	}
	if c.commercial != nil && *c.commercial >= quietMaxCommercial {
		missing = append(missing, MissingQuietStreets)
	}
	return missing, nil
}

// Score ranks a route for the requested preferences.
func (e *Evaluator) Score(ctx context.Context, route *routing.Route, prefs routing.Preferences) (int, error) {
	c, err := e.lookup(ctx, route, prefs)
	if err != nil {
		return 0, err
	}

	score := baseScore
	if c.urban != nil {
		score += *c.urban * urbanPointsPerPlace
	}
	if c.commercial != nil {
		switch {
		case *c.commercial < quietMaxCommercial:
			score += quietBonus
		case *c.commercial > busyMinCommercial:
			score -= busyPenalty
		}
	}
	return score, nil
}

// FeedbackMessage builds the user-facing message for unmet preferences.
// It returns an empty string when nothing is missing.
func FeedbackMessage(missing []string) string {
	if len(missing) == 0 {
		return ""
	}
	return fmt.Sprintf("Couldn't find a truly %s route nearby, here is the best we can offer!",
		strings.Join(missing, " and "))
}
