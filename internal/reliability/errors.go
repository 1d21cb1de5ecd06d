package reliability

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnknownState indicates the circuit breaker reached an undefined state
var ErrUnknownState = errors.New("circuit breaker in unknown state")

// CircuitBreakerError is returned when the breaker rejects a call without
// invoking it. It is never retryable within the same publish: rejected calls
// do not count as attempts.
type CircuitBreakerError struct {
	State       State
	Target      string
	FailureRate float64
	WindowCalls int
	OpenedAt    time.Time
	NextProbeAt time.Time
}

// Error implements error interface
func (e *CircuitBreakerError) Error() string {
	return fmt.Sprintf("circuit breaker '%s' is %s (failure rate %.0f%% over %d calls, next probe at %s)",
		e.Target, e.State, e.FailureRate*100, e.WindowCalls, e.NextProbeAt.Format(time.RFC3339))
}

// IsRetryable indicates the call should not be retried while the breaker
// rejects it
func (e *CircuitBreakerError) IsRetryable() bool {
	return false
}

// RetryError is returned when all retry attempts for an operation are
// exhausted. Attempts counts actual invocations of the operation.
type RetryError struct {
	Op          string
	Attempts    int
	MaxAttempts int
	Duration    time.Duration
	LastError   error
}

// Error implements error interface
func (e *RetryError) Error() string {
	return fmt.Sprintf("%s failed after %d/%d attempts in %s: %v",
		e.Op, e.Attempts, e.MaxAttempts, e.Duration.Round(time.Millisecond), e.LastError)
}

// Unwrap returns the last attempt's error
func (e *RetryError) Unwrap() error {
	return e.LastError
}
