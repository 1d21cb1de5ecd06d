package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
)

// Broker publishes events to Kafka through a sarama SyncProducer. It
// implements messaging.Broker; the partition key maps to the Kafka message
// key so events sharing a key stay ordered within a partition.
type Broker struct {
	producer sarama.SyncProducer
	name     string
	logger   *slog.Logger
}

type config struct {
	clientID     string
	requiredAcks sarama.RequiredAcks
	maxRetries   int
	timeout      time.Duration
	name         string
	logger       *slog.Logger
}

// BrokerOption configures the Kafka broker
type BrokerOption func(*config)

// WithClientID sets the Kafka client ID
func WithClientID(id string) BrokerOption {
	return func(c *config) {
		c.clientID = id
	}
}

// WithRequiredAcks sets the producer acknowledgment level
func WithRequiredAcks(acks sarama.RequiredAcks) BrokerOption {
	return func(c *config) {
		c.requiredAcks = acks
	}
}

// WithProduceTimeout sets the per-message produce timeout
func WithProduceTimeout(timeout time.Duration) BrokerOption {
	return func(c *config) {
		c.timeout = timeout
	}
}

// WithBrokerName overrides the name reported for breaker targeting
func WithBrokerName(name string) BrokerOption {
	return func(c *config) {
		c.name = name
	}
}

// WithBrokerLogger sets the logger
func WithBrokerLogger(logger *slog.Logger) BrokerOption {
	return func(c *config) {
		c.logger = logger
	}
}

// NewBroker connects a SyncProducer to the given brokers.
// Producer-level retries stay at 0: the retry budget belongs to the
// orchestrator, and double-retrying would multiply attempts.
func NewBroker(brokers []string, options ...BrokerOption) (*Broker, error) {
	cfg := &config{
		clientID:     "event-governance",
		requiredAcks: sarama.WaitForAll,
		timeout:      10 * time.Second,
		name:         "kafka",
		logger:       slog.Default(),
	}
	for _, opt := range options {
		opt(cfg)
	}

	sc := sarama.NewConfig()
	sc.ClientID = cfg.clientID
	sc.Producer.RequiredAcks = cfg.requiredAcks
	sc.Producer.Retry.Max = 0
	sc.Producer.Timeout = cfg.timeout
	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true

	producer, err := sarama.NewSyncProducer(brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("failed to create sync producer: %w", err)
	}

	return &Broker{
		producer: producer,
		name:     cfg.name,
		logger:   cfg.logger,
	}, nil
}

// NewBrokerFromProducer wraps an existing producer, used by tests with
// sarama's mock producer.
func NewBrokerFromProducer(producer sarama.SyncProducer, options ...BrokerOption) *Broker {
	cfg := &config{
		name:   "kafka",
		logger: slog.Default(),
	}
	for _, opt := range options {
		opt(cfg)
	}
	return &Broker{
		producer: producer,
		name:     cfg.name,
		logger:   cfg.logger,
	}
}

// Publish implements messaging.Broker
func (b *Broker) Publish(ctx context.Context, topic, key string, payload []byte) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.ByteEncoder(payload),
	}
	if key != "" {
		msg.Key = sarama.StringEncoder(key)
	}

	partition, offset, err := b.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	b.logger.Debug("message produced",
		"topic", topic,
		"partition", partition,
		"offset", offset)
	return nil
}

// Name implements messaging.Broker
func (b *Broker) Name() string {
	return b.name
}

// Close implements messaging.Broker
func (b *Broker) Close() error {
	return b.producer.Close()
}
