package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/looproute/looproute/internal/routing"
)

// Generator produces round-trip routes.
type Generator interface {
	Generate(ctx context.Context, origin routing.Coordinate, targetKm float64, prefs routing.Preferences) (*routing.Generation, error)
}

// ResultPublisher delivers job results.
type ResultPublisher interface {
	Publish(ctx context.Context, result GenerationResult) error
}

// ProcessorConfig holds configuration for creating a Processor.
type ProcessorConfig struct {
	Generator Generator
	Publisher ResultPublisher

	// Timeout bounds each job (default: 60s).
	Timeout time.Duration

	// MaxDeliveries is the delivery attempt after which a retryable failure
	// is published and acked instead of nacked (default: 5).
	MaxDeliveries int

	// MaxRetryAge bounds redelivery on subscriptions that do not report delivery
	// attempts (no dead-letter policy): a retryable failure of a message older
	// than this is final (default: 15m).
	MaxRetryAge time.Duration

	// Now returns the current time (default: time.Now).
	Now func() time.Time

	Logger zerolog.Logger
}

// Processor runs generation jobs and publishes their results.
type Processor struct {
	generator     Generator
	publisher     ResultPublisher
	timeout       time.Duration
	maxDeliveries int
	maxRetryAge   time.Duration
	validate      *validator.Validate
	logger        zerolog.Logger
	now           func() time.Time

	metrics *JobMetrics
}

// JobMetrics tracks job statistics.
type JobMetrics struct {
	mu sync.RWMutex

	// Counters
	Received   int64
	Accepted   int64
	BestEffort int64
	Failed     int64
	Invalid    int64
	Retried    int64

	// Timings
	LastJobAt       time.Time
	LastJobDuration time.Duration
	TotalDuration   time.Duration
}

// NewProcessor creates a new job processor.
func NewProcessor(cfg ProcessorConfig) *Processor {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultJobTimeout
	}
	maxDeliveries := cfg.MaxDeliveries
	if maxDeliveries <= 0 {
		maxDeliveries = 5
	}
	maxRetryAge := cfg.MaxRetryAge
	if maxRetryAge <= 0 {
		maxRetryAge = DefaultMaxRetryAge
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonFieldName)

	return &Processor{
		generator:     cfg.Generator,
		publisher:     cfg.Publisher,
		timeout:       timeout,
		maxDeliveries: maxDeliveries,
		maxRetryAge:   maxRetryAge,
		validate:      v,
		logger:        cfg.Logger,
		now:           now,
		metrics:       &JobMetrics{},
	}
}

// Delivery is a received job message.
type Delivery struct {
	ID   string
	Data []byte
	// Attempt is the delivery attempt, or 0 when the subscription does not track it.
	Attempt int
	// PublishedAt is when the job was enqueued.
	PublishedAt time.Time
}

// Handle processes one delivery and reports whether it should be acked or nacked.
// Malformed jobs are acked and dropped. Failed jobs are published with their error
// and acked, except retryable failures which are nacked until MaxDeliveries, or
// until the message is MaxRetryAge old when attempts are not tracked.
func (p *Processor) Handle(ctx context.Context, d Delivery) Disposition {
	start := p.now()
	p.count(func(m *JobMetrics) { m.Received++ })

	logger := p.logger.With().Str("message_id", d.ID).Logger()

	job, err := p.decode(d.Data)
	if err != nil {
		logger.Warn().Err(err).Msg("dropping invalid job message")
		p.count(func(m *JobMetrics) { m.Invalid++ })
		return Ack
	}
	logger = logger.With().Str("job_id", job.JobID).Str("user_id", job.UserID).Logger()

	jobCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	gen, err := p.generator.Generate(jobCtx, job.coordinate(), job.DistanceKm, job.preferences())
	if err != nil {
		// Shutdown interrupts the job; let it be redelivered.
		if ctx.Err() != nil {
			logger.Info().Msg("job interrupted by shutdown")
			return Nack
		}
		if isRetryable(err) && p.mayRedeliver(d) {
			logger.Warn().Err(err).Int("delivery_attempt", d.Attempt).Msg("job failed, requesting redelivery")
			p.count(func(m *JobMetrics) { m.Retried++ })
			return Nack
		}
		logger.Error().Err(err).Msg("job failed")
		p.count(func(m *JobMetrics) { m.Failed++ })
		return p.publish(ctx, logger, GenerationResult{
			JobID:       job.JobID,
			UserID:      job.UserID,
			Error:       err.Error(),
			CompletedAt: p.now(),
		}, start)
	}

	result := GenerationResult{
		JobID:         job.JobID,
		UserID:        job.UserID,
		Accepted:      gen.Accepted,
		Attempts:      gen.Attempts,
		DistanceKm:    gen.Validation.ActualKm,
		PercentageOff: gen.Validation.PercentageOff,
		Polyline:      gen.Route.Polyline(),
		CompletedAt:   p.now(),
	}
	if gen.Accepted {
		p.count(func(m *JobMetrics) { m.Accepted++ })
	} else {
		p.count(func(m *JobMetrics) { m.BestEffort++ })
	}

	logger.Info().
		Bool("accepted", gen.Accepted).
		Int("attempts", gen.Attempts).
		Float64("distance_km", result.DistanceKm).
		Msg("job completed")
	return p.publish(ctx, logger, result, start)
}

func (p *Processor) mayRedeliver(d Delivery) bool {
	if d.Attempt > 0 {
		return d.Attempt < p.maxDeliveries
	}
	if d.PublishedAt.IsZero() {
		return false
	}
	return p.now().Sub(d.PublishedAt) < p.maxRetryAge
}

func (p *Processor) publish(ctx context.Context, logger zerolog.Logger, result GenerationResult, start time.Time) Disposition {
	if err := p.publisher.Publish(context.WithoutCancel(ctx), result); err != nil {
		logger.Error().Err(err).Msg("failed to publish job result")
		return Nack
	}

	duration := p.now().Sub(start)
	p.count(func(m *JobMetrics) {
		m.LastJobAt = result.CompletedAt
		m.LastJobDuration = duration
		m.TotalDuration += duration
	})
	return Ack
}

func (p *Processor) decode(data []byte) (GenerationJob, error) {
	var job GenerationJob
	if err := json.Unmarshal(data, &job); err != nil {
		return job, fmt.Errorf("decode job: %w", err)
	}
	if err := p.validate.Struct(job); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Field()+" "+fe.Tag())
			}
			return job, fmt.Errorf("invalid job: %s", strings.Join(fields, ", "))
		}
		return job, fmt.Errorf("invalid job: %w", err)
	}
	if job.JobID == "" {
		job.JobID = uuid.NewString()
	}
	return job, nil
}

func (p *Processor) count(update func(m *JobMetrics)) {
	p.metrics.mu.Lock()
	defer p.metrics.mu.Unlock()
	update(p.metrics)
}

// GetMetrics returns a copy of the current metrics.
func (p *Processor) GetMetrics() JobMetrics {
	p.metrics.mu.RLock()
	defer p.metrics.mu.RUnlock()

	return JobMetrics{
		Received:        p.metrics.Received,
		Accepted:        p.metrics.Accepted,
		BestEffort:      p.metrics.BestEffort,
		Failed:          p.metrics.Failed,
		Invalid:         p.metrics.Invalid,
		Retried:         p.metrics.Retried,
		LastJobAt:       p.metrics.LastJobAt,
		LastJobDuration: p.metrics.LastJobDuration,
		TotalDuration:   p.metrics.TotalDuration,
	}
}

// MetricsSnapshot returns a snapshot of the current metrics as a map.
func (p *Processor) MetricsSnapshot() map[string]any {
	m := p.GetMetrics()
	return map[string]any{
		"received":          m.Received,
		"accepted":          m.Accepted,
		"best_effort":       m.BestEffort,
		"failed":            m.Failed,
		"invalid":           m.Invalid,
		"retried":           m.Retried,
		"last_job_at":       m.LastJobAt,
		"last_job_duration": m.LastJobDuration.String(),
		"total_duration":    m.TotalDuration.String(),
	}
}

func jsonFieldName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	return name
}
