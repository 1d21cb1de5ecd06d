package contracts

import "fmt"

// ValidationResult is the outcome of validating one CandidateEvent against a
// schema. Immutable; produced once per event per attempt.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Reason   string   `json:"reason,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// ValidationFailure is the failure carried to the DLQ path when an event
// fails schema validation. Known-invalid events are never retried against
// the broker, so this error is always terminal.
type ValidationFailure struct {
	Subject string
	Reason  string
}

func (e *ValidationFailure) Error() string {
	return fmt.Sprintf("schema validation failed for subject %s: %s", e.Subject, e.Reason)
}

// IsRetryable marks validation failures as non-retryable.
func (e *ValidationFailure) IsRetryable() bool {
	return false
}

// EncodingFailure is the failure carried to the DLQ path when a validated
// event cannot be encoded for transport.
type EncodingFailure struct {
	EventID string
	Err     error
}

func (e *EncodingFailure) Error() string {
	return fmt.Sprintf("failed to encode event %s: %v", e.EventID, e.Err)
}

func (e *EncodingFailure) Unwrap() error {
	return e.Err
}

// IsRetryable marks encoding failures as non-retryable.
func (e *EncodingFailure) IsRetryable() bool {
	return false
}
