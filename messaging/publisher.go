package messaging

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/mjones3/event-governance-poc-sub000/contracts"
	"github.com/mjones3/event-governance-poc-sub000/internal/reliability"
)

// EventValidator validates a candidate event against the registered schema
// for a subject. Implemented by schema.Validator.
type EventValidator interface {
	Validate(ctx context.Context, subject string, event contracts.CandidateEvent) (contracts.ValidationResult, error)
}

// PublishResult reports the outcome of a publish request. Accepted is true
// whenever the event reached the broker or the DLQ: from the caller's point
// of view the pipeline took responsibility for it either way.
type PublishResult struct {
	Accepted  bool
	EventID   string
	DLQRecord *contracts.DLQRecord
}

// EventPublisher validates, encodes and publishes candidate events with
// circuit breaker and retry protection, handing terminally failed chains to
// the DLQ router exactly once.
type EventPublisher struct {
	broker       Broker
	validator    EventValidator
	orchestrator *reliability.Orchestrator
	router       DLQRouter
	metrics      MetricsCollector
	logger       *slog.Logger
}

// EventPublisherOption configures the EventPublisher
type EventPublisherOption func(*EventPublisher)

// WithPublisherLogger sets the logger
func WithPublisherLogger(logger *slog.Logger) EventPublisherOption {
	return func(p *EventPublisher) {
		p.logger = logger
	}
}

// WithMetricsCollector sets the metrics collector
func WithMetricsCollector(metrics MetricsCollector) EventPublisherOption {
	return func(p *EventPublisher) {
		p.metrics = metrics
	}
}

// WithOrchestrator sets the resilience orchestrator
func WithOrchestrator(o *reliability.Orchestrator) EventPublisherOption {
	return func(p *EventPublisher) {
		p.orchestrator = o
	}
}

// NewEventPublisher creates an event publisher. The validator and router are
// required; metrics default to a no-op collector.
func NewEventPublisher(broker Broker, validator EventValidator, router DLQRouter, options ...EventPublisherOption) (*EventPublisher, error) {
	if broker == nil {
		return nil, fmt.Errorf("broker cannot be nil")
	}
	if validator == nil {
		return nil, fmt.Errorf("validator cannot be nil")
	}
	if router == nil {
		return nil, fmt.Errorf("router cannot be nil")
	}

	p := &EventPublisher{
		broker:    broker,
		validator: validator,
		router:    router,
		metrics:   NoOpMetricsCollector{},
		logger:    slog.Default(),
	}

	for _, opt := range options {
		opt(p)
	}

	if p.orchestrator == nil {
		p.orchestrator = reliability.NewOrchestrator(
			reliability.WithOrchestratorLogger(p.logger),
		)
	}

	return p, nil
}

// PublishOption configures a single publish call
type PublishOption func(*publishOptions)

type publishOptions struct {
	eventID       string
	correlationID string
	partitionKey  string
}

// WithEventID sets the event ID instead of generating one
func WithEventID(id string) PublishOption {
	return func(o *publishOptions) {
		o.eventID = id
	}
}

// WithCorrelationID sets the correlation ID carried into any DLQ record
func WithCorrelationID(id string) PublishOption {
	return func(o *publishOptions) {
		o.correlationID = id
	}
}

// WithPartitionKey sets the broker partition key; defaults to the event ID
func WithPartitionKey(key string) PublishOption {
	return func(o *publishOptions) {
		o.partitionKey = key
	}
}

// PublishEvent runs the full pipeline for one candidate event: validate
// against the schema for eventType, encode, publish to topic under breaker
// and retry protection. Any terminal failure produces exactly one DLQ record
// for the whole chain. The returned error is non-nil only when the event
// could not be accepted at all, which the DLQ fallbacks make exceptional.
func (p *EventPublisher) PublishEvent(ctx context.Context, module, eventType, topic string, event contracts.CandidateEvent, options ...PublishOption) (PublishResult, error) {
	opts := publishOptions{}
	for _, opt := range options {
		opt(&opts)
	}
	if opts.eventID == "" {
		opts.eventID = uuid.New().String()
	}
	if opts.partitionKey == "" {
		opts.partitionKey = opts.eventID
	}

	// Raw bytes are preserved for the DLQ record even when encoding of the
	// validated event fails later.
	rawPayload, rawErr := event.Encode()

	result, err := p.validator.Validate(ctx, eventType, event)
	if err != nil {
		// Schema could not be resolved; the event itself was never judged.
		p.logger.Error("schema resolution failed",
			"subject", eventType,
			"eventId", opts.eventID,
			"error", err)
		return PublishResult{EventID: opts.eventID}, err
	}

	p.metrics.RecordValidation(eventType, result.Valid)

	if !result.Valid {
		failure := &contracts.ValidationFailure{Subject: eventType, Reason: result.Reason}
		p.logger.Warn("event failed schema validation",
			"subject", eventType,
			"eventId", opts.eventID,
			"reason", result.Reason)
		return p.routeToDLQ(ctx, module, eventType, topic, rawPayload, opts, failure, 0), nil
	}

	payload := rawPayload
	if rawErr != nil {
		failure := &contracts.EncodingFailure{EventID: opts.eventID, Err: rawErr}
		p.logger.Error("failed to encode event",
			"eventId", opts.eventID,
			"error", rawErr)
		// The canonical encoding is unavailable, but the DLQ record must
		// still carry some representation of the original event.
		return p.routeToDLQ(ctx, module, eventType, topic,
			[]byte(fmt.Sprintf("%+v", event)), opts, failure, 0), nil
	}

	attempts, err := p.orchestrator.Execute(ctx, p.broker.Name(), func(ctx context.Context) error {
		if err := p.broker.Publish(ctx, topic, opts.partitionKey, payload); err != nil {
			return &TransportError{Topic: topic, Err: err}
		}
		return nil
	})
	p.metrics.RecordRetryAttempts(p.broker.Name(), attempts)

	if err != nil {
		p.logger.Error("publish failed after retries",
			"topic", topic,
			"eventId", opts.eventID,
			"attempts", attempts,
			"error", err)
		return p.routeToDLQ(ctx, module, eventType, topic, payload, opts, err, attempts), nil
	}

	p.metrics.RecordPublish(topic, true)
	p.logger.Debug("event published",
		"topic", topic,
		"eventId", opts.eventID,
		"attempts", attempts)

	return PublishResult{Accepted: true, EventID: opts.eventID}, nil
}

// Republish sends an already validated payload straight through the resilient
// broker path without creating a new DLQ record on failure. Used by the
// reprocessing service so a failed replay updates the existing record instead
// of spawning another chain.
func (p *EventPublisher) Republish(ctx context.Context, topic, key string, payload []byte) error {
	_, err := p.orchestrator.Execute(ctx, p.broker.Name(), func(ctx context.Context) error {
		if err := p.broker.Publish(ctx, topic, key, payload); err != nil {
			return &TransportError{Topic: topic, Err: err}
		}
		return nil
	})
	return err
}

func (p *EventPublisher) routeToDLQ(ctx context.Context, module, eventType, topic string, payload []byte, opts publishOptions, cause error, attempts int) PublishResult {
	p.metrics.RecordPublish(topic, false)

	record := p.router.Route(ctx, RouteInput{
		EventID:       opts.eventID,
		CorrelationID: opts.correlationID,
		Module:        module,
		EventType:     eventType,
		OriginalTopic: topic,
		Payload:       payload,
		Err:           cause,
		RetryCount:    attempts,
	})
	p.metrics.RecordDLQRouted(module, record.ErrorKind)

	return PublishResult{Accepted: true, EventID: opts.eventID, DLQRecord: record}
}

// Orchestrator exposes the underlying orchestrator, mainly so callers can
// inspect breaker state.
func (p *EventPublisher) Orchestrator() *reliability.Orchestrator {
	return p.orchestrator
}
