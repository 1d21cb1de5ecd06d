package reliability

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// RetryPolicy defines the interface for retry policies
type RetryPolicy interface {
	// ShouldRetry determines if a retry should be attempted after the given
	// number of completed retries
	ShouldRetry(retries int, err error) (bool, time.Duration)
	// MaxAttempts returns the total attempt budget (first call included)
	MaxAttempts() int
	// NextDelay calculates the delay before the given retry
	NextDelay(retries int) time.Duration
}

// ExponentialBackoff implements exponential backoff retry policy
type ExponentialBackoff struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	Attempts        int
	Jitter          bool
}

// NewExponentialBackoff creates a new exponential backoff policy. Delays are
// deterministic (no jitter) unless Jitter is set.
func NewExponentialBackoff(initial, max time.Duration, multiplier float64, maxAttempts int) *ExponentialBackoff {
	return &ExponentialBackoff{
		InitialInterval: initial,
		MaxInterval:     max,
		Multiplier:      multiplier,
		Attempts:        maxAttempts,
	}
}

// DefaultPublishBackoff returns the publish-path policy: 3 attempts total
// with delays 1s, 2s, 4s... capped at 5 minutes.
func DefaultPublishBackoff() *ExponentialBackoff {
	return NewExponentialBackoff(time.Second, 5*time.Minute, 2.0, 3)
}

// ShouldRetry implements RetryPolicy
func (e *ExponentialBackoff) ShouldRetry(retries int, err error) (bool, time.Duration) {
	if retries+1 >= e.Attempts {
		return false, 0
	}
	if !isRetryableError(err) {
		return false, 0
	}
	return true, e.NextDelay(retries)
}

// MaxAttempts implements RetryPolicy
func (e *ExponentialBackoff) MaxAttempts() int {
	return e.Attempts
}

// NextDelay implements RetryPolicy
func (e *ExponentialBackoff) NextDelay(retries int) time.Duration {
	delay := float64(e.InitialInterval) * math.Pow(e.Multiplier, float64(retries))

	if delay > float64(e.MaxInterval) {
		delay = float64(e.MaxInterval)
	}

	if e.Jitter {
		jitter := rand.Float64() * 0.3 * delay // ±15% jitter
		delay = delay + jitter - (0.15 * delay)
	}

	return time.Duration(delay)
}

// FixedDelay implements a fixed delay retry policy
type FixedDelay struct {
	Delay    time.Duration
	Attempts int
}

// NewFixedDelay creates a new fixed delay policy
func NewFixedDelay(delay time.Duration, maxAttempts int) *FixedDelay {
	return &FixedDelay{
		Delay:    delay,
		Attempts: maxAttempts,
	}
}

// ShouldRetry implements RetryPolicy
func (f *FixedDelay) ShouldRetry(retries int, err error) (bool, time.Duration) {
	if retries+1 >= f.Attempts {
		return false, 0
	}
	if !isRetryableError(err) {
		return false, 0
	}
	return true, f.Delay
}

// MaxAttempts implements RetryPolicy
func (f *FixedDelay) MaxAttempts() int {
	return f.Attempts
}

// NextDelay implements RetryPolicy
func (f *FixedDelay) NextDelay(retries int) time.Duration {
	return f.Delay
}

// Retry executes a function with retry logic. The wait between attempts is a
// plain timer sleep holding no locks.
func Retry(ctx context.Context, policy RetryPolicy, fn func() error) error {
	var lastErr error

	for retries := 0; ; retries++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := fn()
		if err == nil {
			return nil
		}

		lastErr = err

		shouldRetry, delay := policy.ShouldRetry(retries, err)
		if !shouldRetry {
			return lastErr
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// isRetryableError determines if an error is retryable
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	type retryable interface {
		IsRetryable() bool
	}

	for e := err; e != nil; e = errors.Unwrap(e) {
		if r, ok := e.(retryable); ok {
			return r.IsRetryable()
		}
	}

	// Unknown errors default to retryable
	return true
}

// RetryableError wraps an error to mark it retryable or not
type RetryableError struct {
	Err       error
	Retryable bool
}

// Error implements error interface
func (r RetryableError) Error() string {
	return r.Err.Error()
}

// IsRetryable indicates if the error is retryable
func (r RetryableError) IsRetryable() bool {
	return r.Retryable
}

// Unwrap returns the wrapped error
func (r RetryableError) Unwrap() error {
	return r.Err
}
