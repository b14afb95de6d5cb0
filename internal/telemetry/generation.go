package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// GenerationMetrics records route generation outcomes.
type GenerationMetrics struct {
	generations metric.Int64Counter
	attempts    metric.Int64Histogram
	duration    metric.Float64Histogram
}

// NewGenerationMetrics creates generation instruments on the given meter.
func NewGenerationMetrics(meter metric.Meter) (*GenerationMetrics, error) {
	generations, err := meter.Int64Counter(
		"route.generation.total",
		metric.WithDescription("Total number of route generations by outcome"),
		metric.WithUnit("{generation}"),
	)
	if err != nil {
		return nil, err
	}

	attempts, err := meter.Int64Histogram(
		"route.generation.attempts",
		metric.WithDescription("Routing attempts used per generation"),
		metric.WithUnit("{attempt}"),
		metric.WithExplicitBucketBoundaries(1, 2, 3, 4, 5),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram(
		"route.generation.duration",
		metric.WithDescription("Duration of route generations in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &GenerationMetrics{
		generations: generations,
		attempts:    attempts,
		duration:    duration,
	}, nil
}

// RecordGeneration records one generation.
func (m *GenerationMetrics) RecordGeneration(ctx context.Context, attempts int, outcome string, duration time.Duration) {
	attrs := metric.WithAttributes(attribute.String("route.outcome", outcome))

	m.generations.Add(ctx, 1, attrs)
	m.attempts.Record(ctx, int64(attempts), attrs)
	m.duration.Record(ctx, duration.Seconds(), attrs)
}
