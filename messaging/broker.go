package messaging

import (
	"context"
	"fmt"
)

// Broker defines the interface for publishing encoded events to a topic.
// Implementations live under transports/.
type Broker interface {
	// Publish sends the payload to the topic. The key selects the partition
	// (or routing key) when the transport supports one.
	Publish(ctx context.Context, topic string, key string, payload []byte) error

	// Name identifies the broker for circuit breaker targeting and metrics
	Name() string

	// Close closes the broker connection
	Close() error
}

// TransportError wraps a broker-level publish failure. Transport failures are
// retryable: the broker may recover between attempts.
type TransportError struct {
	Topic string
	Err   error
}

// Error implements error interface
func (e *TransportError) Error() string {
	return fmt.Sprintf("failed to publish to topic %s: %v", e.Topic, e.Err)
}

// Unwrap returns the underlying transport error
func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsRetryable indicates transport failures may be retried
func (e *TransportError) IsRetryable() bool {
	return true
}
