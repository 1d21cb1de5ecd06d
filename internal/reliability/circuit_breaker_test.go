package reliability

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func failN(cb *CircuitBreaker, n int) {
	for i := 0; i < n; i++ {
		_ = cb.Execute(context.Background(), func() error { return errBoom })
	}
}

func succeedN(cb *CircuitBreaker, n int) {
	for i := 0; i < n; i++ {
		_ = cb.Execute(context.Background(), func() error { return nil })
	}
}

func TestCircuitBreakerOpening(t *testing.T) {
	t.Run("OpensAtFailureRateThreshold", func(t *testing.T) {
		cb := NewCircuitBreaker(WithName("kafka"))

		succeedN(cb, 5)
		failN(cb, 5)

		assert.Equal(t, StateOpen, cb.GetState(),
			"10 recorded calls at 50% failure rate should open the circuit")
	})

	t.Run("StaysClosedBelowMinimumCalls", func(t *testing.T) {
		cb := NewCircuitBreaker()

		failN(cb, 9)

		assert.Equal(t, StateClosed, cb.GetState(),
			"failure rate is not meaningful before minimum calls")
	})

	t.Run("StaysClosedBelowThreshold", func(t *testing.T) {
		cb := NewCircuitBreaker()

		succeedN(cb, 11)
		failN(cb, 9)

		assert.Equal(t, StateClosed, cb.GetState(), "9/20 failures is below 50%")
	})

	t.Run("RejectsWithoutInvokingWhenOpen", func(t *testing.T) {
		cb := NewCircuitBreaker(WithName("kafka"))
		succeedN(cb, 5)
		failN(cb, 5)
		require.Equal(t, StateOpen, cb.GetState())

		invoked := false
		err := cb.Execute(context.Background(), func() error {
			invoked = true
			return nil
		})

		assert.False(t, invoked, "open breaker must not invoke the call")

		var cbErr *CircuitBreakerError
		require.ErrorAs(t, err, &cbErr)
		assert.Equal(t, StateOpen, cbErr.State)
		assert.Equal(t, "kafka", cbErr.Target)
		assert.False(t, cbErr.IsRetryable())
	})
}

func TestCircuitBreakerRecovery(t *testing.T) {
	newOpenBreaker := func(opts ...CircuitBreakerOption) *CircuitBreaker {
		base := []CircuitBreakerOption{
			WithMinimumCalls(2),
			WithOpenTimeout(10 * time.Millisecond),
			WithSuccessThreshold(2),
		}
		cb := NewCircuitBreaker(append(base, opts...)...)
		failN(cb, 2)
		return cb
	}

	t.Run("HalfOpenAfterTimeout", func(t *testing.T) {
		cb := newOpenBreaker()
		require.Equal(t, StateOpen, cb.GetState())

		time.Sleep(20 * time.Millisecond)

		err := cb.Execute(context.Background(), func() error { return nil })
		require.NoError(t, err)
	})

	t.Run("ClosesAfterSuccessThreshold", func(t *testing.T) {
		cb := newOpenBreaker()
		time.Sleep(20 * time.Millisecond)

		succeedN(cb, 2)

		assert.Equal(t, StateClosed, cb.GetState())
	})

	t.Run("ProbeFailureReopens", func(t *testing.T) {
		cb := newOpenBreaker()
		time.Sleep(20 * time.Millisecond)

		failN(cb, 1)

		assert.Equal(t, StateOpen, cb.GetState())
	})

	t.Run("RejectsBeforeTimeoutExpires", func(t *testing.T) {
		cb := newOpenBreaker(WithOpenTimeout(time.Minute))

		err := cb.Execute(context.Background(), func() error { return nil })

		var cbErr *CircuitBreakerError
		assert.ErrorAs(t, err, &cbErr)
	})
}

func TestCircuitBreakerWindow(t *testing.T) {
	t.Run("OldOutcomesDisplaced", func(t *testing.T) {
		cb := NewCircuitBreaker(WithWindowSize(4), WithMinimumCalls(4))

		// 2 failures, then 4 successes push the failures out of the window.
		failN(cb, 2)
		succeedN(cb, 4)

		rate, calls := cb.FailureRate()
		assert.Equal(t, 4, calls)
		assert.Zero(t, rate)
	})

	t.Run("ResetRestoresClosedState", func(t *testing.T) {
		cb := NewCircuitBreaker(WithMinimumCalls(2))
		failN(cb, 2)
		require.Equal(t, StateOpen, cb.GetState())

		cb.Reset()

		assert.Equal(t, StateClosed, cb.GetState())
		_, calls := cb.FailureRate()
		assert.Zero(t, calls)
	})
}

func TestCircuitBreakerContext(t *testing.T) {
	t.Run("CancelledCallCountsAsFailure", func(t *testing.T) {
		cb := NewCircuitBreaker()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		invoked := false
		err := cb.Execute(ctx, func() error { invoked = true; return nil })

		assert.ErrorIs(t, err, context.Canceled)
		assert.False(t, invoked)

		rate, calls := cb.FailureRate()
		assert.Equal(t, 1, calls, "cancellation settles the admitted call as a failure")
		assert.Equal(t, 1.0, rate)
	})

	t.Run("CancelledProbesDoNotExhaustHalfOpen", func(t *testing.T) {
		cb := NewCircuitBreaker(
			WithMinimumCalls(2),
			WithOpenTimeout(10*time.Millisecond),
			WithSuccessThreshold(1),
		)
		failN(cb, 2)
		require.Equal(t, StateOpen, cb.GetState())

		// Each cancelled probe must release its half-open slot (by
		// reopening), never leak it.
		for i := 0; i < 3; i++ {
			time.Sleep(20 * time.Millisecond)
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			err := cb.Execute(ctx, func() error { return nil })
			require.ErrorIs(t, err, context.Canceled)
		}

		time.Sleep(20 * time.Millisecond)

		invoked := false
		err := cb.Execute(context.Background(), func() error { invoked = true; return nil })
		require.NoError(t, err)
		assert.True(t, invoked, "healthy probe must be admitted after cancelled ones")
		assert.Equal(t, StateClosed, cb.GetState())
	})
}

func TestCircuitBreakerListener(t *testing.T) {
	var mu sync.Mutex
	var transitions []State
	done := make(chan struct{}, 1)

	cb := NewCircuitBreaker(
		WithMinimumCalls(2),
		WithStateChangeListener(StateChangeListenerFunc(func(from, to State, reason string) {
			mu.Lock()
			transitions = append(transitions, to)
			mu.Unlock()
			done <- struct{}{}
		})),
	)

	failN(cb, 2)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("listener was not notified")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, transitions, 1)
	assert.Equal(t, StateOpen, transitions[0])
}

func TestCircuitBreakerMetrics(t *testing.T) {
	cb := NewCircuitBreaker(WithName("registry"))

	succeedN(cb, 3)
	failN(cb, 1)

	m := cb.GetMetrics()
	assert.Equal(t, "registry", m.Name)
	assert.Equal(t, StateClosed, m.State)
	assert.Equal(t, int64(4), m.TotalRequests)
	assert.Equal(t, int64(3), m.TotalSuccesses)
	assert.Equal(t, int64(1), m.TotalFailures)
	assert.InDelta(t, 0.25, m.FailureRate, 0.001)
}

func BenchmarkCircuitBreakerExecute(b *testing.B) {
	cb := NewCircuitBreaker()
	ctx := context.Background()
	fn := func() error { return nil }

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = cb.Execute(ctx, fn)
	}
}
