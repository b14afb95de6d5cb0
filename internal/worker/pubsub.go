package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

const defaultMaxOutstanding = 10

// PubSubConfig holds configuration for the Pub/Sub subscription handler.
type PubSubConfig struct {
	SubscriptionName string
	Processor        *Processor
	Logger           zerolog.Logger

	// MaxOutstandingMessages bounds the jobs processed concurrently (default: 10).
	MaxOutstandingMessages int
}

// PubSubHandler feeds messages from a subscription to a Processor and acks or
// nacks each according to the Processor's Disposition.
type PubSubHandler struct {
	sub       *pubsub.Subscriber
	processor *Processor
	logger    zerolog.Logger
}

// NewPubSubHandler creates a handler on an existing client.
func NewPubSubHandler(client *pubsub.Client, cfg PubSubConfig) *PubSubHandler {
	sub := client.Subscriber(cfg.SubscriptionName)

	outstanding := cfg.MaxOutstandingMessages
	if outstanding <= 0 {
		outstanding = defaultMaxOutstanding
	}
	sub.ReceiveSettings.MaxOutstandingMessages = outstanding
	// A job may outlive the default ack deadline across several routing attempts.
	sub.ReceiveSettings.MaxExtension = 10 * time.Minute

	return &PubSubHandler{
		sub:       sub,
		processor: cfg.Processor,
		logger:    cfg.Logger.With().Str("subscription", cfg.SubscriptionName).Logger(),
	}
}

// Start receives messages until ctx is canceled.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().Msg("receiving generation jobs")
	return h.sub.Receive(ctx, h.receive)
}

func (h *PubSubHandler) receive(ctx context.Context, msg *pubsub.Message) {
	// Continue the trace of whoever enqueued the job.
	ctx = otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(msg.Attributes))

	d := Delivery{ID: msg.ID, Data: msg.Data, PublishedAt: msg.PublishTime}
	if msg.DeliveryAttempt != nil {
		d.Attempt = *msg.DeliveryAttempt
	}
	h.logger.Debug().
		Str("message_id", msg.ID).
		Int("delivery_attempt", d.Attempt).
		Time("published_at", msg.PublishTime).
		Msg("job received")

	switch h.processor.Handle(ctx, d) {
	case Nack:
		msg.Nack()
	default:
		msg.Ack()
	}
}

// PubSubPublisher publishes job results to a topic.
type PubSubPublisher struct {
	pub *pubsub.Publisher
}

// NewPubSubPublisher creates a publisher for the results topic.
func NewPubSubPublisher(client *pubsub.Client, topic string) *PubSubPublisher {
	return &PubSubPublisher{pub: client.Publisher(topic)}
}

// Publish sends result and waits for the server to acknowledge it.
func (p *PubSubPublisher) Publish(ctx context.Context, result GenerationResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result %s: %w", result.JobID, err)
	}

	attrs := resultAttributes(ctx, result)
	if _, err := p.pub.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs}).Get(ctx); err != nil {
		return fmt.Errorf("publish result %s: %w", result.JobID, err)
	}
	return nil
}

// resultAttributes carries the job identity and the current trace context so
// subscribers can filter results and join the trace.
func resultAttributes(ctx context.Context, result GenerationResult) map[string]string {
	attrs := propagation.MapCarrier{
		"job_id":  result.JobID,
		"user_id": result.UserID,
	}
	otel.GetTextMapPropagator().Inject(ctx, attrs)
	return attrs
}

// Stop flushes pending results.
func (p *PubSubPublisher) Stop() {
	p.pub.Stop()
}
