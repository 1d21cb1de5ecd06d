package reliability

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// State represents the circuit breaker state
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// StateChangeListener receives circuit breaker state change notifications
type StateChangeListener interface {
	OnStateChange(from, to State, reason string)
}

// StateChangeListenerFunc is a function adapter for StateChangeListener
type StateChangeListenerFunc func(from, to State, reason string)

func (f StateChangeListenerFunc) OnStateChange(from, to State, reason string) {
	f(from, to, reason)
}

// CircuitBreaker guards one publish target with a sliding-window failure
// rate. The window holds the outcome of the last N admitted calls; once at
// least minimumCalls outcomes are recorded and the failure rate reaches the
// threshold, the breaker opens and rejects calls without touching the broker.
type CircuitBreaker struct {
	mu sync.Mutex

	state    State
	openedAt time.Time

	// Sliding window of call outcomes, true = failure.
	window         []bool
	head           int
	recorded       int
	windowFailures int

	halfOpenSuccesses int
	halfOpenInFlight  int

	totalRequests  int64
	totalFailures  int64
	totalSuccesses int64

	// Configuration
	windowSize           int
	minimumCalls         int
	failureRateThreshold float64
	openTimeout          time.Duration
	successThreshold     int
	halfOpenProbes       int
	name                 string

	listeners []StateChangeListener
}

// CircuitBreakerOption configures the circuit breaker
type CircuitBreakerOption func(*CircuitBreaker)

// WithWindowSize sets the number of call outcomes kept in the sliding window
func WithWindowSize(size int) CircuitBreakerOption {
	return func(cb *CircuitBreaker) {
		cb.windowSize = size
	}
}

// WithMinimumCalls sets how many outcomes must be recorded before the
// failure rate is considered meaningful
func WithMinimumCalls(calls int) CircuitBreakerOption {
	return func(cb *CircuitBreaker) {
		cb.minimumCalls = calls
	}
}

// WithFailureRateThreshold sets the failure rate (0..1] that opens the circuit
func WithFailureRateThreshold(rate float64) CircuitBreakerOption {
	return func(cb *CircuitBreaker) {
		cb.failureRateThreshold = rate
	}
}

// WithOpenTimeout sets how long the circuit stays open before probing
func WithOpenTimeout(timeout time.Duration) CircuitBreakerOption {
	return func(cb *CircuitBreaker) {
		cb.openTimeout = timeout
	}
}

// WithSuccessThreshold sets the consecutive probe successes needed to close
func WithSuccessThreshold(threshold int) CircuitBreakerOption {
	return func(cb *CircuitBreaker) {
		cb.successThreshold = threshold
	}
}

// WithHalfOpenProbes sets the max concurrent probe calls in half-open state
func WithHalfOpenProbes(probes int) CircuitBreakerOption {
	return func(cb *CircuitBreaker) {
		cb.halfOpenProbes = probes
	}
}

// WithName sets the circuit breaker name for identification
func WithName(name string) CircuitBreakerOption {
	return func(cb *CircuitBreaker) {
		cb.name = name
	}
}

// WithStateChangeListener registers a state change listener
func WithStateChangeListener(listener StateChangeListener) CircuitBreakerOption {
	return func(cb *CircuitBreaker) {
		cb.listeners = append(cb.listeners, listener)
	}
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(options ...CircuitBreakerOption) *CircuitBreaker {
	cb := &CircuitBreaker{
		state:                StateClosed,
		windowSize:           100,
		minimumCalls:         10,
		failureRateThreshold: 0.5,
		openTimeout:          60 * time.Second,
		successThreshold:     3,
		halfOpenProbes:       3,
		name:                 "default",
	}

	for _, opt := range options {
		opt(cb)
	}

	cb.window = make([]bool, cb.windowSize)
	return cb
}

// Execute runs a function with circuit breaker protection
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	cb.mu.Lock()
	cb.totalRequests++
	cb.mu.Unlock()

	if err := cb.canExecute(); err != nil {
		return err
	}

	// The slot taken by canExecute must always be settled by recordResult,
	// so a context already done counts as a failed call rather than
	// skipping the accounting.
	if err := ctx.Err(); err != nil {
		cb.recordResult(err)
		return err
	}

	err := fn()
	cb.recordResult(err)
	return err
}

// GetState returns the current state
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// FailureRate returns the current windowed failure rate and the number of
// recorded outcomes it is based on.
func (cb *CircuitBreaker) FailureRate() (rate float64, calls int) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failureRate(), cb.recorded
}

// Reset resets the circuit breaker to closed with an empty window
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = StateClosed
	cb.resetWindow()
	cb.halfOpenSuccesses = 0
	cb.halfOpenInFlight = 0
}

// canExecute checks if execution is allowed
func (cb *CircuitBreaker) canExecute() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return nil

	case StateOpen:
		nextProbe := cb.openedAt.Add(cb.openTimeout)
		if time.Now().After(nextProbe) {
			oldState := cb.state
			cb.state = StateHalfOpen
			cb.halfOpenSuccesses = 0
			cb.halfOpenInFlight = 1
			cb.notifyStateChange(oldState, cb.state, "open timeout expired")
			return nil
		}
		return cb.rejectionError(nextProbe)

	case StateHalfOpen:
		if cb.halfOpenInFlight >= cb.halfOpenProbes {
			return cb.rejectionError(time.Now().Add(time.Second))
		}
		cb.halfOpenInFlight++
		return nil

	default:
		return ErrUnknownState
	}
}

// recordResult records the outcome of an admitted call. One mutation per
// outcome; the window is only meaningful while closed.
func (cb *CircuitBreaker) recordResult(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.totalFailures++
		oldState := cb.state

		switch cb.state {
		case StateClosed:
			cb.recordOutcome(true)
			if cb.recorded >= cb.minimumCalls && cb.failureRate() >= cb.failureRateThreshold {
				cb.state = StateOpen
				cb.openedAt = time.Now()
				cb.notifyStateChange(oldState, cb.state,
					fmt.Sprintf("failure rate %.0f%% over %d calls", cb.failureRate()*100, cb.recorded))
				cb.resetWindow()
			}

		case StateHalfOpen:
			// A single probe failure reopens the circuit.
			cb.state = StateOpen
			cb.openedAt = time.Now()
			cb.halfOpenSuccesses = 0
			cb.halfOpenInFlight = 0
			cb.notifyStateChange(oldState, cb.state, "probe failed in half-open state")
		}
		return
	}

	cb.totalSuccesses++
	oldState := cb.state

	switch cb.state {
	case StateClosed:
		cb.recordOutcome(false)

	case StateHalfOpen:
		cb.halfOpenSuccesses++
		if cb.halfOpenInFlight > 0 {
			cb.halfOpenInFlight--
		}
		if cb.halfOpenSuccesses >= cb.successThreshold {
			cb.state = StateClosed
			cb.resetWindow()
			cb.halfOpenSuccesses = 0
			cb.halfOpenInFlight = 0
			cb.notifyStateChange(oldState, cb.state,
				fmt.Sprintf("success threshold reached (%d/%d)", cb.successThreshold, cb.successThreshold))
		}
	}
}

// recordOutcome pushes one outcome into the ring buffer, displacing the
// oldest once the window is full.
func (cb *CircuitBreaker) recordOutcome(failure bool) {
	if cb.recorded == cb.windowSize {
		if cb.window[cb.head] {
			cb.windowFailures--
		}
	} else {
		cb.recorded++
	}
	cb.window[cb.head] = failure
	if failure {
		cb.windowFailures++
	}
	cb.head = (cb.head + 1) % cb.windowSize
}

func (cb *CircuitBreaker) failureRate() float64 {
	if cb.recorded == 0 {
		return 0
	}
	return float64(cb.windowFailures) / float64(cb.recorded)
}

func (cb *CircuitBreaker) resetWindow() {
	for i := range cb.window {
		cb.window[i] = false
	}
	cb.head = 0
	cb.recorded = 0
	cb.windowFailures = 0
}

func (cb *CircuitBreaker) rejectionError(nextProbe time.Time) *CircuitBreakerError {
	return &CircuitBreakerError{
		State:       cb.state,
		Target:      cb.name,
		FailureRate: cb.failureRate(),
		WindowCalls: cb.recorded,
		OpenedAt:    cb.openedAt,
		NextProbeAt: nextProbe,
	}
}

// AddListener adds a state change listener
func (cb *CircuitBreaker) AddListener(listener StateChangeListener) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.listeners = append(cb.listeners, listener)
}

// notifyStateChange notifies all listeners of state change
func (cb *CircuitBreaker) notifyStateChange(from, to State, reason string) {
	// Copy so callbacks never run under the breaker lock
	listeners := make([]StateChangeListener, len(cb.listeners))
	copy(listeners, cb.listeners)

	for _, listener := range listeners {
		go listener.OnStateChange(from, to, reason)
	}
}

// CircuitBreakerMetrics represents circuit breaker metrics
type CircuitBreakerMetrics struct {
	Name           string
	State          State
	FailureRate    float64
	WindowCalls    int
	TotalRequests  int64
	TotalFailures  int64
	TotalSuccesses int64
	Timestamp      time.Time
}

// GetMetrics returns circuit breaker metrics
func (cb *CircuitBreaker) GetMetrics() CircuitBreakerMetrics {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return CircuitBreakerMetrics{
		Name:           cb.name,
		State:          cb.state,
		FailureRate:    cb.failureRate(),
		WindowCalls:    cb.recorded,
		TotalRequests:  cb.totalRequests,
		TotalFailures:  cb.totalFailures,
		TotalSuccesses: cb.totalSuccesses,
		Timestamp:      time.Now(),
	}
}
