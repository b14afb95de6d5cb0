package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/looproute/looproute/internal/api/middleware"
	"github.com/looproute/looproute/internal/api/models"
	"github.com/looproute/looproute/internal/api/response"
	"github.com/looproute/looproute/internal/export"
	"github.com/looproute/looproute/internal/preference"
	"github.com/looproute/looproute/internal/quota"
	"github.com/looproute/looproute/internal/routing"
)

// maxBodyBytes bounds request bodies of route endpoints.
const maxBodyBytes = 1 << 16

// Generator produces round trips.
type Generator interface {
	Generate(ctx context.Context, origin routing.Coordinate, targetKm float64, prefs routing.Preferences) (*routing.Generation, error)
}

// PreferenceEvaluator reports requested preferences a route does not satisfy.
type PreferenceEvaluator interface {
	Evaluate(ctx context.Context, route *routing.Route, prefs routing.Preferences) ([]string, error)
}

// QuotaService meters generations per user.
type QuotaService interface {
	Consume(ctx context.Context, userID string, premium bool) (quota.Usage, error)
	Refund(ctx context.Context, userID string, premium bool) error
}

// DirectionsService computes point-to-point walking directions.
type DirectionsService interface {
	Directions(ctx context.Context, origin, destination routing.Coordinate) (*routing.Route, error)
}

// RouteHandlerConfig holds the dependencies of the route endpoints.
type RouteHandlerConfig struct {
	Generator  Generator
	Evaluator  PreferenceEvaluator // Optional
	Quota      QuotaService        // Optional; without it generation is unmetered
	Directions DirectionsService   // Optional; without it directions return 503
	Logger     zerolog.Logger
}

// RouteHandler handles routing endpoints.
type RouteHandler struct {
	generator  Generator
	evaluator  PreferenceEvaluator
	quota      QuotaService
	directions DirectionsService
	logger     zerolog.Logger
	now        func() time.Time
}

// NewRouteHandler creates a new RouteHandler.
func NewRouteHandler(cfg RouteHandlerConfig) *RouteHandler {
	return &RouteHandler{
		generator:  cfg.Generator,
		evaluator:  cfg.Evaluator,
		quota:      cfg.Quota,
		directions: cfg.Directions,
		logger:     cfg.Logger,
		now:        time.Now,
	}
}

// GenerateRoute handles POST /v1/routes:generate - generate a round trip.
// With ?format=gpx the route is returned as a GPX document.
func (h *RouteHandler) GenerateRoute(w http.ResponseWriter, r *http.Request) {
	var input models.RouteGenerateRequest
	if !decodeBody(w, r, &input) {
		return
	}
	if fields := validateRequest(&input); fields != nil {
		response.BadRequest(w, r, "invalid route request", fields)
		return
	}

	format := r.URL.Query().Get("format")
	if format != "" && format != "json" && format != "gpx" {
		response.BadRequest(w, r, "unsupported format", []models.FieldError{
			{Field: "format", Message: "must be json or gpx", Code: "INVALID"},
		})
		return
	}

	principal, _ := middleware.GetPrincipal(r.Context())
	var usage *quota.Usage
	if h.quota != nil {
		u, err := h.quota.Consume(r.Context(), principal.UserID, principal.Premium)
		if err != nil {
			if errors.Is(err, quota.ErrQuotaExceeded) {
				response.QuotaExceeded(w, r, fmt.Sprintf(
					"Monthly limit of %d generated routes reached for %s.", u.Limit, u.Month), u.ResetsAt())
				return
			}
			h.logger.Error().Err(err).Str("user_id", principal.UserID).Msg("failed to consume quota")
			response.InternalError(w, r, "could not check generation quota")
			return
		}
		usage = &u
	}

	origin := routing.Coordinate{Lat: input.Origin.Lat, Lon: input.Origin.Lon}
	prefs := routing.Preferences{
		Quiet:         input.Preferences.Quiet,
		UrbanExplorer: input.Preferences.UrbanExplorer,
		AvoidStairs:   input.Preferences.AvoidStairs,
	}

	gen, err := h.generator.Generate(r.Context(), origin, input.DistanceKm, prefs)
	if err != nil {
		if h.quota != nil {
			if rerr := h.quota.Refund(context.WithoutCancel(r.Context()), principal.UserID, principal.Premium); rerr != nil {
				h.logger.Warn().Err(rerr).Str("user_id", principal.UserID).Msg("failed to refund quota")
			}
		}
		h.writeRoutingError(w, r, err)
		return
	}

	var missing []string
	if h.evaluator != nil && (prefs.Quiet || prefs.UrbanExplorer) {
		missing, err = h.evaluator.Evaluate(r.Context(), gen.Route, prefs)
		if err != nil {
			h.logger.Warn().Err(err).Msg("failed to evaluate route preferences")
			missing = nil
		}
	}

	if format == "gpx" {
		data, err := export.MarshalGPX(gen.Route, export.GPXOptions{Time: h.now(), Waypoints: true})
		if err != nil {
			h.logger.Error().Err(err).Msg("failed to export route as gpx")
			response.InternalError(w, r, "could not export route")
			return
		}
		w.Header().Set("Content-Disposition", `attachment; filename="looproute.gpx"`)
		response.Body(w, r, http.StatusOK, export.ContentTypeGPX, data)
		return
	}

	resp := models.RouteGenerateResponse{
		GeneratedAt:        models.Timestamp(h.now()),
		Route:              toRouteModel(gen.Route),
		Summary:            toSummaryModel(routing.Summarize(gen.Route)),
		Validation:         toValidationModel(gen.Validation),
		Accepted:           gen.Accepted,
		Attempts:           gen.Attempts,
		LoopClosed:         routing.ValidateLoopClosure(gen.Route, origin),
		MissingPreferences: missing,
	}
	if resp.MissingPreferences == nil {
		resp.MissingPreferences = []string{}
	}
	if msg := preference.FeedbackMessage(missing); msg != "" {
		resp.Feedback = &msg
	}
	if usage != nil {
		resp.Quota = toQuotaModel(*usage)
	}

	response.JSON(w, r, http.StatusOK, resp)
}

// GetDirections handles POST /v1/routes:directions - walking directions between two points.
func (h *RouteHandler) GetDirections(w http.ResponseWriter, r *http.Request) {
	if h.directions == nil {
		response.ServiceUnavailable(w, r, "walking directions are not configured")
		return
	}

	var input models.RouteDirectionsRequest
	if !decodeBody(w, r, &input) {
		return
	}
	if fields := validateRequest(&input); fields != nil {
		response.BadRequest(w, r, "invalid directions request", fields)
		return
	}

	origin := routing.Coordinate{Lat: input.Origin.Lat, Lon: input.Origin.Lon}
	destination := routing.Coordinate{Lat: input.Destination.Lat, Lon: input.Destination.Lon}

	route, err := h.directions.Directions(r.Context(), origin, destination)
	if err != nil {
		h.writeRoutingError(w, r, err)
		return
	}

	response.JSON(w, r, http.StatusOK, models.RouteDirectionsResponse{
		GeneratedAt: models.Timestamp(h.now()),
		Route:       toRouteModel(route),
		Summary:     toSummaryModel(routing.Summarize(route)),
	})
}

// ValidateRoute handles POST /v1/routes:validate - check a distance pair against the tolerance band.
func (h *RouteHandler) ValidateRoute(w http.ResponseWriter, r *http.Request) {
	var input models.RouteValidateRequest
	if !decodeBody(w, r, &input) {
		return
	}
	if fields := validateRequest(&input); fields != nil {
		response.BadRequest(w, r, "invalid validation request", fields)
		return
	}

	waypoints := routing.DefaultWaypoints
	if input.Waypoints != nil {
		waypoints = *input.Waypoints
	}

	result := routing.ValidateDistance(input.RequestedKm, input.ActualKm)
	suggestion := routing.SuggestRetry(waypoints, result)

	response.JSON(w, r, http.StatusOK, models.RouteValidateResponse{
		Validation:   toValidationModel(result),
		TolerancePct: routing.Tolerance(input.RequestedKm),
		Retry: models.RetrySuggestion{
			Waypoints:   suggestion.WaypointCount,
			ShouldRetry: suggestion.ShouldRetry,
		},
	})
}

// decodeBody decodes a JSON request body, writing a 400 problem on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return false
	}
	return true
}

// writeRoutingError maps routing failures onto problem responses.
func (h *RouteHandler) writeRoutingError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, routing.ErrInvalidCoordinates), errors.Is(err, routing.ErrInvalidRequest):
		response.BadRequest(w, r, err.Error(), nil)
	case errors.Is(err, routing.ErrNoRouteFound):
		response.NoRoute(w, r, "No walking route could be found from this location.")
	case errors.Is(err, routing.ErrRateLimitExceeded):
		w.Header().Set("Retry-After", "60")
		response.ServiceUnavailable(w, r, "The routing service is busy. Please try again in a minute.")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		response.ServiceUnavailable(w, r, "Route generation timed out.")
	case errors.Is(err, routing.ErrGenerationFailed):
		h.logger.Warn().Err(err).Msg("route generation failed")
		response.GenerationFailed(w, r, "Could not generate a route. Please try again.")
	case errors.Is(err, routing.ErrProviderUnavailable), errors.Is(err, routing.ErrDecode):
		h.logger.Warn().Err(err).Msg("routing provider failed")
		response.GenerationFailed(w, r, "The routing service is unavailable. Please try again.")
	default:
		h.logger.Error().Err(err).Msg("unexpected routing error")
		response.InternalError(w, r, "unexpected routing error")
	}
}

func toRouteModel(route *routing.Route) models.Route {
	m := models.Route{
		Kind:                route.Kind.String(),
		GeometryPolyline:    route.Polyline(),
		DistanceMeters:      route.DistanceMeters,
		DurationSeconds:     route.DurationSeconds,
		ElevationGainMeters: route.ElevationGainMeters,
	}
	if box, ok := route.Bounds(); ok {
		m.Bounds = &models.GeoBox{MinLat: box.MinLat, MinLon: box.MinLon, MaxLat: box.MaxLat, MaxLon: box.MaxLon}
	}
	for _, s := range route.Steps {
		step := models.RouteStep{
			Instruction:    s.Instruction,
			DistanceMeters: s.DistanceMeters,
		}
		if len(s.Path) > 0 {
			step.Start = models.Point{Lat: s.Path[0].Lat, Lon: s.Path[0].Lon}
		}
		m.Steps = append(m.Steps, step)
	}
	return m
}

func toSummaryModel(s routing.Summary) models.RouteSummary {
	return models.RouteSummary{
		DistanceKm:          s.DistanceKm,
		DurationMinutes:     s.DurationMinutes,
		ElevationGainMeters: s.ElevationGainMeters,
		Calories:            s.Calories,
		DistanceLabel:       s.DistanceLabel,
		DurationLabel:       s.DurationLabel,
		ElevationLabel:      s.ElevationLabel,
		CaloriesLabel:       s.CaloriesLabel,
	}
}

func toValidationModel(v routing.ValidationResult) models.RouteValidation {
	m := models.RouteValidation{
		Valid:         v.Valid,
		RequestedKm:   v.RequestedKm,
		ActualKm:      v.ActualKm,
		PercentageOff: v.PercentageOff,
	}
	if v.Message != "" {
		msg := v.Message
		m.Message = &msg
	}
	return m
}

func toQuotaModel(u quota.Usage) *models.QuotaUsage {
	m := &models.QuotaUsage{Month: u.Month, Used: u.Count}
	if u.Limit > 0 {
		limit, remaining := u.Limit, u.Remaining()
		m.Limit = &limit
		m.Remaining = &remaining
	}
	return m
}
