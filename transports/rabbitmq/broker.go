// Package rabbitmq implements the messaging.Broker contract on RabbitMQ.
//
// Events are published to a single durable topic exchange with the event
// topic as the routing key, so per-module DLQ topics bind naturally as
// `<module>.dlq` routing patterns. Publisher confirms are on by default.
package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const confirmTimeout = 5 * time.Second

// Channel is the subset of *amqp.Channel the broker publishes through.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Broker publishes events through an AMQP channel with publisher confirms.
type Broker struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  Channel
	confirms chan amqp.Confirmation

	exchange string
	reliable bool
	name     string
	logger   *slog.Logger
	closed   bool
}

// BrokerOption configures the RabbitMQ broker
type BrokerOption func(*Broker)

// WithExchange sets the topic exchange events are published to
func WithExchange(exchange string) BrokerOption {
	return func(b *Broker) {
		b.exchange = exchange
	}
}

// WithReliablePublishing toggles publisher confirms
func WithReliablePublishing(reliable bool) BrokerOption {
	return func(b *Broker) {
		b.reliable = reliable
	}
}

// WithBrokerName overrides the name reported for breaker targeting
func WithBrokerName(name string) BrokerOption {
	return func(b *Broker) {
		b.name = name
	}
}

// WithBrokerLogger sets the logger
func WithBrokerLogger(logger *slog.Logger) BrokerOption {
	return func(b *Broker) {
		b.logger = logger
	}
}

// NewBroker connects to the AMQP server and declares the event exchange
func NewBroker(url string, options ...BrokerOption) (*Broker, error) {
	b := &Broker{
		exchange: "events",
		reliable: true,
		name:     "rabbitmq",
		logger:   slog.Default(),
	}
	for _, opt := range options {
		opt(b)
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		b.exchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", b.exchange, err)
	}

	if b.reliable {
		if err := channel.Confirm(false); err != nil {
			channel.Close()
			conn.Close()
			return nil, fmt.Errorf("failed to enable publisher confirms: %w", err)
		}
		b.confirms = channel.NotifyPublish(make(chan amqp.Confirmation, 1))
	}

	b.conn = conn
	b.channel = channel
	return b, nil
}

// NewBrokerFromChannel wires the broker to an existing channel. Confirms are
// consumed from the given channel when non-nil; tests use this to drive the
// confirm path without a live server.
func NewBrokerFromChannel(channel Channel, confirms chan amqp.Confirmation, options ...BrokerOption) *Broker {
	b := &Broker{
		exchange: "events",
		reliable: true,
		name:     "rabbitmq",
		logger:   slog.Default(),
	}
	for _, opt := range options {
		opt(b)
	}

	b.channel = channel
	b.confirms = confirms
	if confirms == nil {
		b.reliable = false
	}
	return b
}

// Publish implements messaging.Broker. The key travels as a header since
// AMQP routing already happens on the topic.
func (b *Broker) Publish(ctx context.Context, topic, key string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("broker is closed")
	}

	headers := amqp.Table{}
	if key != "" {
		headers["x-partition-key"] = key
	}

	err := b.channel.PublishWithContext(ctx,
		b.exchange,
		topic,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			Headers:      headers,
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         payload,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	if b.reliable && b.confirms != nil {
		select {
		case confirm := <-b.confirms:
			if !confirm.Ack {
				return fmt.Errorf("message was not acknowledged by broker")
			}
		case <-time.After(confirmTimeout):
			return fmt.Errorf("timeout waiting for publish confirmation")
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	b.logger.Debug("message published",
		"exchange", b.exchange,
		"topic", topic)
	return nil
}

// Name implements messaging.Broker
func (b *Broker) Name() string {
	return b.name
}

// Close implements messaging.Broker
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	chanErr := b.channel.Close()
	if b.conn == nil {
		if chanErr != nil {
			return fmt.Errorf("failed to close channel: %w", chanErr)
		}
		return nil
	}
	if chanErr != nil {
		b.conn.Close()
		return fmt.Errorf("failed to close channel: %w", chanErr)
	}
	return b.conn.Close()
}
