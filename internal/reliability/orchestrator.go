package reliability

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

const defaultAttemptTimeout = 5 * time.Minute

// Orchestrator combines per-target circuit breakers with a retry policy.
// Breakers are created lazily per target so unrelated targets fail
// independently. A breaker rejection is not an attempt: the operation was
// never invoked, and no retries follow while the breaker rejects.
type Orchestrator struct {
	mu             sync.Mutex
	breakers       map[string]*CircuitBreaker
	policy         RetryPolicy
	attemptTimeout time.Duration
	breakerOpts    []CircuitBreakerOption
	logger         *slog.Logger
}

// OrchestratorOption configures an Orchestrator
type OrchestratorOption func(*Orchestrator)

// WithRetryPolicy sets the retry policy for all targets
func WithRetryPolicy(policy RetryPolicy) OrchestratorOption {
	return func(o *Orchestrator) {
		o.policy = policy
	}
}

// WithAttemptTimeout sets the per-attempt timeout
func WithAttemptTimeout(timeout time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		o.attemptTimeout = timeout
	}
}

// WithBreakerOptions sets the options applied to each lazily created breaker
func WithBreakerOptions(opts ...CircuitBreakerOption) OrchestratorOption {
	return func(o *Orchestrator) {
		o.breakerOpts = opts
	}
}

// WithOrchestratorLogger sets the logger
func WithOrchestratorLogger(logger *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// NewOrchestrator creates an orchestrator with the default publish backoff
// policy and a 5 minute per-attempt timeout.
func NewOrchestrator(opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		breakers:       make(map[string]*CircuitBreaker),
		policy:         DefaultPublishBackoff(),
		attemptTimeout: defaultAttemptTimeout,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Execute runs fn against the named target under its circuit breaker and the
// retry policy. It returns the number of times fn was actually invoked:
// breaker rejections never invoke fn and never count. On exhaustion the error
// is a *RetryError wrapping the last attempt's error.
func (o *Orchestrator) Execute(ctx context.Context, target string, fn func(ctx context.Context) error) (int, error) {
	cb := o.breaker(target)
	attempts := 0
	start := time.Now()

	err := Retry(ctx, o.policy, func() error {
		attemptCtx := ctx
		var cancel context.CancelFunc
		if o.attemptTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, o.attemptTimeout)
			defer cancel()
		}

		return cb.Execute(attemptCtx, func() error {
			attempts++
			return fn(attemptCtx)
		})
	})

	if err == nil {
		return attempts, nil
	}

	var cbErr *CircuitBreakerError
	if errors.As(err, &cbErr) && attempts == 0 {
		o.logger.Warn("call rejected by open circuit breaker",
			"target", target,
			"state", cbErr.State.String())
		return 0, err
	}

	o.logger.Error("operation failed after retries",
		"target", target,
		"attempts", attempts,
		"error", err)

	return attempts, &RetryError{
		Op:          target,
		Attempts:    attempts,
		MaxAttempts: o.policy.MaxAttempts(),
		Duration:    time.Since(start),
		LastError:   err,
	}
}

// Breaker returns the breaker for a target, creating it on first use
func (o *Orchestrator) Breaker(target string) *CircuitBreaker {
	return o.breaker(target)
}

func (o *Orchestrator) breaker(target string) *CircuitBreaker {
	o.mu.Lock()
	defer o.mu.Unlock()

	if cb, ok := o.breakers[target]; ok {
		return cb
	}

	opts := append([]CircuitBreakerOption{WithName(target)}, o.breakerOpts...)
	cb := NewCircuitBreaker(opts...)
	o.breakers[target] = cb
	return cb
}

// Targets returns the names of all targets with a breaker
func (o *Orchestrator) Targets() []string {
	o.mu.Lock()
	defer o.mu.Unlock()

	names := make([]string, 0, len(o.breakers))
	for name := range o.breakers {
		names = append(names, name)
	}
	return names
}
