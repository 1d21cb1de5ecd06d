// Package eventgov wires the event governance pipeline together: schema
// validation with a caching registry front, resilient publishing with
// circuit breaker and bounded retry, DLQ routing, and reprocessing.
package eventgov

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mjones3/event-governance-poc-sub000/contracts"
	"github.com/mjones3/event-governance-poc-sub000/dlq"
	"github.com/mjones3/event-governance-poc-sub000/internal/reliability"
	"github.com/mjones3/event-governance-poc-sub000/messaging"
	"github.com/mjones3/event-governance-poc-sub000/schema"
)

// Client is the main entry point for the event governance pipeline
type Client struct {
	broker      messaging.Broker
	registry    schema.Registry
	cache       *schema.Cache
	validator   *schema.Validator
	publisher   *messaging.EventPublisher
	store       dlq.Store
	router      *dlq.Router
	reprocessor *dlq.ReprocessingService
	logger      *slog.Logger
}

type clientConfig struct {
	logger         *slog.Logger
	metrics        messaging.MetricsCollector
	store          dlq.Store
	sinkPath       string
	cacheOptions   []schema.CacheOption
	validatorOpts  []schema.ValidatorOption
	priorityRules  []dlq.PriorityRule
	retryPolicy    reliability.RetryPolicy
	attemptTimeout time.Duration
	breakerOpts    []reliability.CircuitBreakerOption
}

// ClientOption configures the Client
type ClientOption func(*clientConfig)

// WithLogger sets the logger used by every component
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *clientConfig) {
		c.logger = logger
	}
}

// WithMetrics sets the metrics collector
func WithMetrics(metrics messaging.MetricsCollector) ClientOption {
	return func(c *clientConfig) {
		c.metrics = metrics
	}
}

// WithDLQStore replaces the default in-memory DLQ store
func WithDLQStore(store dlq.Store) ClientOption {
	return func(c *clientConfig) {
		c.store = store
	}
}

// WithDLQSinkPath enables the durable file sink fallback at the given path
func WithDLQSinkPath(path string) ClientOption {
	return func(c *clientConfig) {
		c.sinkPath = path
	}
}

// WithSchemaCacheOptions forwards options to the schema cache
func WithSchemaCacheOptions(opts ...schema.CacheOption) ClientOption {
	return func(c *clientConfig) {
		c.cacheOptions = append(c.cacheOptions, opts...)
	}
}

// WithValidatorOptions forwards options to the schema validator
func WithValidatorOptions(opts ...schema.ValidatorOption) ClientOption {
	return func(c *clientConfig) {
		c.validatorOpts = append(c.validatorOpts, opts...)
	}
}

// WithPriorityRules sets DLQ priority overrides
func WithPriorityRules(rules ...dlq.PriorityRule) ClientOption {
	return func(c *clientConfig) {
		c.priorityRules = append(c.priorityRules, rules...)
	}
}

// WithRetryPolicy replaces the default exponential backoff publish policy
func WithRetryPolicy(policy reliability.RetryPolicy) ClientOption {
	return func(c *clientConfig) {
		c.retryPolicy = policy
	}
}

// WithAttemptTimeout sets the per-attempt publish timeout
func WithAttemptTimeout(timeout time.Duration) ClientOption {
	return func(c *clientConfig) {
		c.attemptTimeout = timeout
	}
}

// WithCircuitBreakerOptions forwards options to every per-target breaker
func WithCircuitBreakerOptions(opts ...reliability.CircuitBreakerOption) ClientOption {
	return func(c *clientConfig) {
		c.breakerOpts = append(c.breakerOpts, opts...)
	}
}

// NewClient assembles the pipeline on top of a broker and a schema registry
func NewClient(broker messaging.Broker, registry schema.Registry, options ...ClientOption) (*Client, error) {
	if broker == nil {
		return nil, fmt.Errorf("broker cannot be nil")
	}
	if registry == nil {
		return nil, fmt.Errorf("registry cannot be nil")
	}

	cfg := &clientConfig{
		logger:  slog.Default(),
		metrics: messaging.NoOpMetricsCollector{},
	}
	for _, opt := range options {
		opt(cfg)
	}
	if cfg.store == nil {
		cfg.store = dlq.NewInMemoryStore()
	}

	cacheOpts := append([]schema.CacheOption{schema.WithCacheLogger(cfg.logger)}, cfg.cacheOptions...)
	cache := schema.NewCache(registry, cacheOpts...)

	validatorOpts := append([]schema.ValidatorOption{schema.WithValidatorLogger(cfg.logger)}, cfg.validatorOpts...)
	validator := schema.NewValidator(cache, validatorOpts...)

	orchestratorOpts := []reliability.OrchestratorOption{
		reliability.WithOrchestratorLogger(cfg.logger),
	}
	if cfg.retryPolicy != nil {
		orchestratorOpts = append(orchestratorOpts, reliability.WithRetryPolicy(cfg.retryPolicy))
	}
	if cfg.attemptTimeout > 0 {
		orchestratorOpts = append(orchestratorOpts, reliability.WithAttemptTimeout(cfg.attemptTimeout))
	}
	if len(cfg.breakerOpts) > 0 {
		orchestratorOpts = append(orchestratorOpts, reliability.WithBreakerOptions(cfg.breakerOpts...))
	}
	orchestrator := reliability.NewOrchestrator(orchestratorOpts...)

	routerOpts := []dlq.RouterOption{
		dlq.WithDLQBroker(broker),
		dlq.WithRouterLogger(cfg.logger),
	}
	if cfg.sinkPath != "" {
		routerOpts = append(routerOpts, dlq.WithFileSink(dlq.NewFileSink(cfg.sinkPath)))
	}
	if len(cfg.priorityRules) > 0 {
		routerOpts = append(routerOpts, dlq.WithPriorityRules(cfg.priorityRules...))
	}
	router := dlq.NewRouter(cfg.store, routerOpts...)

	publisher, err := messaging.NewEventPublisher(broker, validator, router,
		messaging.WithPublisherLogger(cfg.logger),
		messaging.WithMetricsCollector(cfg.metrics),
		messaging.WithOrchestrator(orchestrator),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create publisher: %w", err)
	}

	reprocessor := dlq.NewReprocessingService(cfg.store, publisher,
		dlq.WithReprocessingLogger(cfg.logger),
		dlq.WithReprocessingMetrics(cfg.metrics),
	)

	return &Client{
		broker:      broker,
		registry:    registry,
		cache:       cache,
		validator:   validator,
		publisher:   publisher,
		store:       cfg.store,
		router:      router,
		reprocessor: reprocessor,
		logger:      cfg.logger,
	}, nil
}

// PublishEvent runs the full governance pipeline for one candidate event
func (c *Client) PublishEvent(ctx context.Context, module, eventType, topic string, event contracts.CandidateEvent, options ...messaging.PublishOption) (messaging.PublishResult, error) {
	return c.publisher.PublishEvent(ctx, module, eventType, topic, event, options...)
}

// ValidateEvent validates an event without publishing it
func (c *Client) ValidateEvent(ctx context.Context, subject string, event contracts.CandidateEvent) (contracts.ValidationResult, error) {
	return c.validator.Validate(ctx, subject, event)
}

// CheckCompatibility asks the registry whether a candidate schema is
// compatible with the subject's registered version
func (c *Client) CheckCompatibility(ctx context.Context, subject string, candidate *contracts.Schema) (bool, error) {
	return c.registry.CheckCompatibility(ctx, subject, candidate)
}

// InvalidateSchema drops a subject from the schema cache
func (c *Client) InvalidateSchema(subject string) {
	c.cache.Invalidate(subject)
}

// Reprocess replays one DLQ record
func (c *Client) Reprocess(ctx context.Context, dlqID, actor string, options ...dlq.ReprocessOption) (*dlq.ReprocessResult, error) {
	return c.reprocessor.Reprocess(ctx, dlqID, actor, options...)
}

// ReprocessBatch replays every pending or failed record matching the filter
func (c *Client) ReprocessBatch(ctx context.Context, filter dlq.ListFilter, actor string) (*dlq.BatchResult, error) {
	return c.reprocessor.ReprocessBatch(ctx, filter, actor)
}

// Requeue moves a failed record back to pending
func (c *Client) Requeue(ctx context.Context, dlqID, actor string) error {
	return c.reprocessor.Requeue(ctx, dlqID, actor)
}

// DLQRecord returns one stored record
func (c *Client) DLQRecord(ctx context.Context, dlqID string) (*contracts.DLQRecord, error) {
	return c.store.Get(ctx, dlqID)
}

// DLQRecords lists stored records
func (c *Client) DLQRecords(ctx context.Context, filter dlq.ListFilter) ([]*contracts.DLQRecord, error) {
	return c.store.List(ctx, filter)
}

// DLQStats returns aggregate DLQ counts
func (c *Client) DLQStats(ctx context.Context) (dlq.StoreStats, error) {
	return c.store.Stats(ctx)
}

// SchemaCacheStats returns schema cache hit/miss/eviction counters
func (c *Client) SchemaCacheStats() schema.CacheStats {
	return c.cache.Stats()
}

// Close releases the broker connection
func (c *Client) Close() error {
	return c.broker.Close()
}
