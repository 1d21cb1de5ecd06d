package messaging

import (
	"github.com/mjones3/event-governance-poc-sub000/contracts"
	"github.com/mjones3/event-governance-poc-sub000/internal/reliability"
)

// MetricsCollector receives outcome-level pipeline metrics. Implementations
// must be safe for concurrent use. Emitted once per outcome transition, never
// per internal retry attempt.
type MetricsCollector interface {
	// RecordValidation records one validation outcome
	RecordValidation(subject string, valid bool)

	// RecordPublish records one terminal publish outcome
	RecordPublish(topic string, success bool)

	// RecordRetryAttempts records how many broker attempts a publish consumed
	RecordRetryAttempts(target string, attempts int)

	// RecordDLQRouted records one record entering the DLQ
	RecordDLQRouted(module string, kind contracts.ErrorKind)

	// RecordReprocessing records one reprocessing outcome
	RecordReprocessing(kind contracts.ErrorKind, success bool)

	// RecordCircuitBreakerState records a breaker state transition
	RecordCircuitBreakerState(target string, state reliability.State)
}

// NoOpMetricsCollector discards all metrics
type NoOpMetricsCollector struct{}

func (NoOpMetricsCollector) RecordValidation(subject string, valid bool)           {}
func (NoOpMetricsCollector) RecordPublish(topic string, success bool)              {}
func (NoOpMetricsCollector) RecordRetryAttempts(target string, attempts int)       {}
func (NoOpMetricsCollector) RecordDLQRouted(module string, kind contracts.ErrorKind) {
}
func (NoOpMetricsCollector) RecordReprocessing(kind contracts.ErrorKind, success bool) {}
func (NoOpMetricsCollector) RecordCircuitBreakerState(target string, state reliability.State) {
}
