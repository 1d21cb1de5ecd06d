package contracts

import (
	"encoding/json"
	"time"
)

// ErrorKind classifies why a publish attempt chain failed.
type ErrorKind string

const (
	ErrorKindSchemaValidation   ErrorKind = "SCHEMA_VALIDATION"
	ErrorKindDeserialization    ErrorKind = "DESERIALIZATION_ERROR"
	ErrorKindProcessing         ErrorKind = "PROCESSING_ERROR"
	ErrorKindTimeout            ErrorKind = "TIMEOUT"
	ErrorKindCircuitBreakerOpen ErrorKind = "CIRCUIT_BREAKER_OPEN"
	ErrorKindKafkaPublish       ErrorKind = "KAFKA_PUBLISH_ERROR"
)

// Priority ranks DLQ records for operational triage.
type Priority string

const (
	PriorityCritical Priority = "CRITICAL"
	PriorityHigh     Priority = "HIGH"
	PriorityMedium   Priority = "MEDIUM"
	PriorityLow      Priority = "LOW"
)

// Status tracks the reprocessing lifecycle of a DLQ record.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// CanTransitionTo reports whether the lifecycle allows moving to next.
// COMPLETED is terminal. A failed reprocessing attempt returns to FAILED,
// not PENDING; FAILED -> PENDING exists only for explicit requeueing.
// IN_PROGRESS is an exclusive claim, so re-entering it is never legal.
func (s Status) CanTransitionTo(next Status) bool {
	if s == next {
		return s != StatusInProgress
	}
	switch s {
	case StatusPending:
		return next == StatusInProgress
	case StatusInProgress:
		return next == StatusCompleted || next == StatusFailed
	case StatusFailed:
		return next == StatusInProgress || next == StatusPending
	default:
		return false
	}
}

// DLQRecord is the persistent representation of a failed publish attempt
// chain. Created exactly once per chain by the router, mutated only by the
// reprocessing service. The original payload is always preserved so the
// record is self-sufficient for replay.
type DLQRecord struct {
	DLQID           string `json:"dlqId"`
	OriginalEventID string `json:"originalEventId"`
	CorrelationID   string `json:"correlationId,omitempty"`

	Module    string    `json:"module"`
	EventType string    `json:"eventType"`
	ErrorKind ErrorKind `json:"errorKind"`
	Priority  Priority  `json:"priority"`

	ErrorMessage string `json:"errorMessage"`
	RawTrace     string `json:"rawTrace,omitempty"`

	OriginalPayload json.RawMessage `json:"originalPayload"`
	OriginalTopic   string          `json:"originalTopic"`
	DLQTopic        string          `json:"dlqTopic"`

	Status            Status     `json:"status"`
	RetryCount        int        `json:"retryCount"`
	ReprocessingCount int        `json:"reprocessingCount"`
	CreatedAt         time.Time  `json:"createdAt"`
	DLQEnteredAt      time.Time  `json:"dlqEnteredAt"`
	LastReprocessedAt *time.Time `json:"lastReprocessingAttemptAt,omitempty"`
	ReprocessedBy     string     `json:"reprocessedBy,omitempty"`
}
