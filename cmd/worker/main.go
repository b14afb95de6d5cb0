// Package main provides the entrypoint for the LoopRoute generation worker.
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

	"cloud.google.com/go/pubsub/v2"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/looproute/looproute/internal/api/response"
	"github.com/looproute/looproute/internal/app"
	"github.com/looproute/looproute/internal/config"
	"github.com/looproute/looproute/internal/telemetry"
	"github.com/looproute/looproute/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const serviceName = "looproute-worker"

func main() {
	log := zerolog.New(os.Stdout).With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, log); err != nil {
		log.Error().Err(err).Msg("worker exited")
		stop()
		os.Exit(1) //nolint:gocritic // deferred cleanup already ran inside run
	}
	log.Info().Msg("worker stopped")
}

func run(ctx context.Context, log zerolog.Logger) error {
	log.Info().Str("build_time", BuildTime).Msg("starting LoopRoute worker")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if cfg.PubSubProjectID == "" {
		return errors.New("PUBSUB_PROJECT_ID is required")
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
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(flushCtx); err != nil {
			log.Error().Err(err).Msg("failed to flush telemetry")
		}
	}()

	generationMetrics, err := telemetry.NewGenerationMetrics(tp.Meter)
	if err != nil {
		return fmt.Errorf("create generation metrics: %w", err)
	}

	engine, err := app.NewEngine(ctx, cfg, generationMetrics, log)
	if err != nil {
		return fmt.Errorf("build routing engine: %w", err)
	}
	defer engine.Close()

	client, err := pubsub.NewClient(ctx, cfg.PubSubProjectID)
	if err != nil {
		return fmt.Errorf("create pubsub client: %w", err)
	}
	defer func() { _ = client.Close() }()

	publisher := worker.NewPubSubPublisher(client, cfg.PubSubResultsTopic)
	defer publisher.Stop()

	processor := worker.NewProcessor(worker.ProcessorConfig{
		Generator: engine.Generator,
		Publisher: publisher,
		Timeout:   cfg.JobTimeout,
		Logger:    log,
	})
	subscriber := worker.NewPubSubHandler(client, worker.PubSubConfig{
		SubscriptionName: cfg.PubSubSubscription,
		Processor:        processor,
		Logger:           log,
	})

	// Cloud Run probes the worker over HTTP even though it takes no requests.
	health := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           healthRouter(processor),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// Receive returns nil once gctx is canceled.
		if err := subscriber.Start(gctx); err != nil {
			return fmt.Errorf("pubsub receive: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		log.Info().Str("addr", health.Addr).Msg("health server listening")
		if err := health.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down worker")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return health.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

type workerHealth struct {
	Status  string         `json:"status"`
	Version string         `json:"version"`
	Jobs    map[string]any `json:"jobs"`
}

func healthRouter(processor *worker.Processor) http.Handler {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, workerHealth{
			Status:  "healthy",
			Version: Version,
			Jobs:    processor.MetricsSnapshot(),
		})
	})
	return r
}
