// Package main provides the entrypoint for the LoopRoute API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/looproute/looproute/internal/api"
	"github.com/looproute/looproute/internal/api/handler"
	"github.com/looproute/looproute/internal/api/middleware"
	"github.com/looproute/looproute/internal/app"
	"github.com/looproute/looproute/internal/auth"
	"github.com/looproute/looproute/internal/config"
	"github.com/looproute/looproute/internal/database"
	"github.com/looproute/looproute/internal/quota"
	"github.com/looproute/looproute/internal/telemetry"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const (
	serviceName     = "looproute-api"
	devSigningKey   = "local-dev-signing-key-change-in-production"
	shutdownTimeout = 30 * time.Second
)

func main() {
	log := zerolog.New(os.Stdout).With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, log); err != nil {
		log.Error().Err(err).Msg("api exited")
		stop()
		os.Exit(1) //nolint:gocritic // deferred cleanup already ran inside run
	}
	log.Info().Msg("server stopped")
}

func run(ctx context.Context, log zerolog.Logger) error {
	log.Info().Str("build_time", BuildTime).Msg("starting LoopRoute API")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Environment,
		Enabled:        cfg.OTELEnabled,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Secure:         cfg.OTLPSecure,
		SampleRatio:    cfg.OTELSampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer flushTelemetry(tp, log)
	if cfg.OTELEnabled {
		log.Info().Str("otlp_endpoint", cfg.OTLPEndpoint).Msg("telemetry export enabled")
	}

	httpMetrics, err := middleware.NewMetrics()
	if err != nil {
		return fmt.Errorf("create http metrics: %w", err)
	}
	generationMetrics, err := telemetry.NewGenerationMetrics(tp.Meter)
	if err != nil {
		return fmt.Errorf("create generation metrics: %w", err)
	}

	engine, err := app.NewEngine(ctx, cfg, generationMetrics, log)
	if err != nil {
		return fmt.Errorf("build routing engine: %w", err)
	}
	defer engine.Close()

	checks := []handler.DependencyCheck{{Name: "poi-cache", Check: engine.PingRedis}}

	quotaRepo, dbCheck, closeDB, err := openQuotaStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeDB()
	if dbCheck != nil {
		checks = append(checks, *dbCheck)
	}

	quotaService := quota.NewService(quota.ServiceConfig{
		Repository:   quotaRepo,
		MonthlyLimit: cfg.MonthlyGenerationLimit,
		Logger:       log,
	})
	log.Info().Int("monthly_limit", quotaService.Limit()).Msg("quota service initialized")

	signingKey, err := jwtSigningKey(cfg, log)
	if err != nil {
		return err
	}
	tokens := auth.NewJWTService(auth.JWTConfig{
		SigningKey:          signingKey,
		PreviousSigningKeys: cfg.JWTPreviousSigningKeys,
		Issuer:              cfg.JWTIssuer,
		Audience:            cfg.JWTAudience,
	})

	routerCfg := api.RouterConfig{
		Version:        Version,
		BuildTime:      BuildTime,
		Logger:         log,
		ServiceName:    serviceName,
		Metrics:        httpMetrics,
		RequireTLS:     cfg.RequireTLS,
		TokenValidator: tokens,
		Generator:      engine.Generator,
		Evaluator:      engine.Evaluator,
		Quota:          quotaService,
		Registry:       engine.Registry,
		Checks:         checks,
	}
	routerCfg.GenerateRateLimit = middleware.RateLimitConfig{RequestLimit: cfg.GenerateRequestsPerMinute, WindowLength: time.Minute}
	routerCfg.StandardRateLimit = middleware.RateLimitConfig{RequestLimit: cfg.StandardRequestsPerMinute, WindowLength: time.Minute}
	// Assigned only when present so the handler sees a nil interface, not a typed nil.
	if engine.Directions != nil {
		routerCfg.Directions = engine.Directions
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.NewRouter(routerCfg),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      90 * time.Second, // a generate call may run several routing attempts
		IdleTimeout:       60 * time.Second,
	}
	return serve(ctx, server, log)
}

// serve runs server until ctx is canceled, then drains in-flight requests.
func serve(ctx context.Context, server *http.Server, log zerolog.Logger) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", server.Addr).Msg("server listening")
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// openQuotaStore connects to Postgres when a database is configured and falls
// back to an in-memory repository otherwise.
func openQuotaStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (quota.Repository, *handler.DependencyCheck, func(), error) {
	if cfg.Database == nil {
		log.Warn().Msg("no database configured - generation quota kept in memory")
		return quota.NewInMemoryRepository(), nil, func() {}, nil
	}

	pool, err := database.Connect(ctx, *cfg.Database)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	log.Info().Str("database", cfg.Database.Redacted()).Msg("database connected")

	repo := quota.NewPostgresRepository(pool)
	if err := repo.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("ensure quota schema: %w", err)
	}
	return repo, &handler.DependencyCheck{Name: "postgres", Check: pool.Ping}, pool.Close, nil
}

func jwtSigningKey(cfg *config.Config, log zerolog.Logger) (string, error) {
	if cfg.JWTSigningKey != "" {
		return cfg.JWTSigningKey, nil
	}
	if cfg.IsProduction() {
		return "", errors.New("JWT_SIGNING_KEY is required in production")
	}
	log.Warn().Msg("JWT_SIGNING_KEY not set - using the development key")
	return devSigningKey, nil
}

func flushTelemetry(tp *telemetry.Provider, log zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tp.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("failed to flush telemetry")
	}
}
