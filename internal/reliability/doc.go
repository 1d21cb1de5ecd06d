// Package reliability provides the resilience patterns wrapped around the
// broker publish path.
//
// This package implements:
//   - Circuit Breaker: sliding-window failure-rate breaker per publish target
//   - Retry Policies: bounded exponential backoff with configurable caps
//   - Orchestrator: composes breaker + retry + per-attempt timeouts into one
//     explicit resilientPublish call visible in the call graph
//   - Error context extraction: flattens a chain of causes into one
//     human-actionable message for DLQ records and logs
//
// Key features:
//   - Thread-safe implementations suitable for concurrent publishers
//   - One atomic window mutation per call outcome, no coarse global lock
//   - Non-busy retry waits that hold no shared locks
//   - State change listeners for observability wiring
//
// Example usage:
//
//	orch := NewOrchestrator(
//	    WithOrchestratorRetryPolicy(NewExponentialBackoff(time.Second, 5*time.Minute, 2.0, 3)),
//	)
//
//	attempts, err := orch.Execute(ctx, "broker", func(ctx context.Context) error {
//	    return broker.Publish(ctx, topic, key, payload)
//	})
package reliability
