// Package api provides the HTTP API for LoopRoute.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/looproute/looproute/internal/api/handler"
	"github.com/looproute/looproute/internal/api/middleware"
	"github.com/looproute/looproute/internal/api/response"
	"github.com/looproute/looproute/internal/provider/resilience"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics

	// RequireTLS rejects requests forwarded over plain HTTP.
	RequireTLS bool

	// Per-user limits; zero values fall back to the package defaults.
	GenerateRateLimit middleware.RateLimitConfig
	StandardRateLimit middleware.RateLimitConfig

	// TokenValidator verifies bearer tokens on authenticated endpoints.
	TokenValidator middleware.TokenValidator

	// Route endpoint dependencies.
	Generator  handler.Generator
	Evaluator  handler.PreferenceEvaluator
	Quota      handler.QuotaService
	Directions handler.DirectionsService

	// Ops endpoint dependencies.
	Registry *resilience.Registry
	Checks   []handler.DependencyCheck
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Set default service name if not provided
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "looproute-api"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)            // Generate/propagate request ID first
	r.Use(middleware.Tracing(serviceName)) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))   // Structured logging
	r.Use(middleware.Recovery(cfg.Logger)) // Panic recovery
	r.Use(chimiddleware.RealIP)            // Real IP extraction
	r.Use(middleware.SecurityHeaders)      // Security headers (HSTS, CSP, etc.)
	r.Use(middleware.RequireTLS(cfg.RequireTLS))
	r.Use(middleware.ContentTypeJSON)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.NotFound(w, r, "no such endpoint")
	})

	// Initialize handlers
	opsHandler := handler.NewOpsHandler(handler.OpsHandlerConfig{
		Version:   cfg.Version,
		BuildTime: cfg.BuildTime,
		Registry:  cfg.Registry,
		Checks:    cfg.Checks,
	})
	routeHandler := handler.NewRouteHandler(handler.RouteHandlerConfig{
		Generator:  cfg.Generator,
		Evaluator:  cfg.Evaluator,
		Quota:      cfg.Quota,
		Directions: cfg.Directions,
		Logger:     cfg.Logger,
	})

	// Create auth middleware
	authMiddleware := middleware.Auth(cfg.TokenValidator)

	// Create rate limit middleware for different endpoint categories
	expensiveRateLimit := middleware.RateLimitByUser(cfg.GenerateRateLimit.OrDefault(middleware.ExpensiveRateLimit))
	standardRateLimit := middleware.RateLimitByUser(cfg.StandardRateLimit.OrDefault(middleware.StandardRateLimit))

	// API v1 routes
	r.Route("/v1", func(r chi.Router) {
		// Ops endpoints (public)
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			// Status endpoint requires authentication
			r.With(authMiddleware).Get("/status", opsHandler.SystemStatus)
		})

		// Route endpoints (authenticated)
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware)
			r.Use(middleware.RequireJSON)

			// Generation is expensive compute and metered by the monthly quota
			r.With(expensiveRateLimit).Post("/routes:generate", routeHandler.GenerateRoute)
			r.With(standardRateLimit).Post("/routes:directions", routeHandler.GetDirections)
			r.With(standardRateLimit).Post("/routes:validate", routeHandler.ValidateRoute)
		})
	})

	return r
}
