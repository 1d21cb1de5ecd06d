package dlq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/mjones3/event-governance-poc-sub000/contracts"
	"github.com/mjones3/event-governance-poc-sub000/internal/reliability"
	"github.com/mjones3/event-governance-poc-sub000/messaging"
)

// PriorityRule overrides the triage priority for records matching a
// module/eventType pair. Empty fields act as wildcards.
type PriorityRule struct {
	Module    string
	EventType string
	Priority  contracts.Priority
}

// Router builds exactly one DLQRecord per failed publish chain: classify the
// error, assign priority, persist, publish to the module's DLQ topic. When
// the DLQ topic publish fails the record is appended to the file sink; when
// that fails too the loss is logged. The caller always gets the record back.
type Router struct {
	store   Store
	broker  messaging.Broker
	sink    *FileSink
	rules   []PriorityRule
	logger  *slog.Logger
	nowFunc func() time.Time
}

// RouterOption configures the Router
type RouterOption func(*Router)

// WithDLQBroker sets the broker used to publish records to DLQ topics.
// Without one, records are only persisted.
func WithDLQBroker(broker messaging.Broker) RouterOption {
	return func(r *Router) {
		r.broker = broker
	}
}

// WithFileSink sets the durable fallback sink
func WithFileSink(sink *FileSink) RouterOption {
	return func(r *Router) {
		r.sink = sink
	}
}

// WithPriorityRules sets priority overrides, first match wins
func WithPriorityRules(rules ...PriorityRule) RouterOption {
	return func(r *Router) {
		r.rules = rules
	}
}

// WithRouterLogger sets the logger
func WithRouterLogger(logger *slog.Logger) RouterOption {
	return func(r *Router) {
		r.logger = logger
	}
}

// NewRouter creates a DLQ router persisting to the given store
func NewRouter(store Store, options ...RouterOption) *Router {
	r := &Router{
		store:   store,
		logger:  slog.Default(),
		nowFunc: time.Now,
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// Route implements messaging.DLQRouter
func (r *Router) Route(ctx context.Context, input messaging.RouteInput) *contracts.DLQRecord {
	now := r.nowFunc()
	kind := Classify(input.Err)

	record := &contracts.DLQRecord{
		DLQID:           uuid.New().String(),
		OriginalEventID: input.EventID,
		CorrelationID:   input.CorrelationID,
		Module:          input.Module,
		EventType:       input.EventType,
		ErrorKind:       kind,
		Priority:        r.priorityFor(kind, input.Module, input.EventType),
		ErrorMessage:    reliability.ExtractErrorContext(input.Err),
		RawTrace:        rawTrace(input.Err),
		OriginalPayload: input.Payload,
		OriginalTopic:   input.OriginalTopic,
		DLQTopic:        DLQTopic(input.Module),
		Status:          contracts.StatusPending,
		RetryCount:      input.RetryCount,
		CreatedAt:       now,
		DLQEnteredAt:    now,
	}

	if err := r.store.Save(ctx, record); err != nil {
		r.logger.Error("failed to persist dlq record",
			"dlqId", record.DLQID,
			"originalEventId", record.OriginalEventID,
			"error", err)
	}

	r.publish(ctx, record)

	r.logger.Warn("event routed to dlq",
		"dlqId", record.DLQID,
		"originalEventId", record.OriginalEventID,
		"module", record.Module,
		"eventType", record.EventType,
		"errorKind", record.ErrorKind,
		"priority", record.Priority,
		"retryCount", record.RetryCount)

	return record
}

func (r *Router) publish(ctx context.Context, record *contracts.DLQRecord) {
	if r.broker == nil {
		return
	}

	payload, err := json.Marshal(record)
	if err != nil {
		r.logger.Error("failed to encode dlq record",
			"dlqId", record.DLQID,
			"error", err)
		return
	}

	if err := r.broker.Publish(ctx, record.DLQTopic, record.OriginalEventID, payload); err != nil {
		r.logger.Error("failed to publish dlq record to dlq topic",
			"dlqId", record.DLQID,
			"dlqTopic", record.DLQTopic,
			"error", err)

		if r.sink == nil {
			return
		}
		if sinkErr := r.sink.Append(record); sinkErr != nil {
			r.logger.Error("dlq record lost: topic publish and file sink both failed",
				"dlqId", record.DLQID,
				"dlqTopic", record.DLQTopic,
				"sinkPath", r.sink.Path(),
				"publishError", err,
				"sinkError", sinkErr)
		}
	}
}

func (r *Router) priorityFor(kind contracts.ErrorKind, module, eventType string) contracts.Priority {
	for _, rule := range r.rules {
		if rule.Module != "" && rule.Module != module {
			continue
		}
		if rule.EventType != "" && rule.EventType != eventType {
			continue
		}
		return rule.Priority
	}

	switch kind {
	case contracts.ErrorKindSchemaValidation, contracts.ErrorKindDeserialization:
		return contracts.PriorityHigh
	default:
		return contracts.PriorityMedium
	}
}

// DLQTopic returns the dead letter topic for a module
func DLQTopic(module string) string {
	return module + ".dlq"
}

// Classify maps a failed chain's error to its DLQ error kind by walking the
// wrap chain. Specific kinds win over the generic processing bucket.
func Classify(err error) contracts.ErrorKind {
	if err == nil {
		return contracts.ErrorKindProcessing
	}

	var validationErr *contracts.ValidationFailure
	if errors.As(err, &validationErr) {
		return contracts.ErrorKindSchemaValidation
	}

	var encodingErr *contracts.EncodingFailure
	if errors.As(err, &encodingErr) {
		return contracts.ErrorKindDeserialization
	}

	var breakerErr *reliability.CircuitBreakerError
	if errors.As(err, &breakerErr) {
		return contracts.ErrorKindCircuitBreakerOpen
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return contracts.ErrorKindTimeout
	}

	var transportErr *messaging.TransportError
	if errors.As(err, &transportErr) {
		return contracts.ErrorKindKafkaPublish
	}

	return contracts.ErrorKindProcessing
}

func rawTrace(err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("%+v", err)
}
