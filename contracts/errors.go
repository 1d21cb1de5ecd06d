package contracts

import (
	"errors"
	"fmt"
)

var (
	// ErrRegistryUnavailable indicates the schema registry could not be
	// reached and no cached schema exists for the subject.
	ErrRegistryUnavailable = errors.New("schema registry unavailable")

	// ErrSchemaNotFound indicates the registry holds no schema for the subject.
	ErrSchemaNotFound = errors.New("schema not found for subject")

	// ErrRecordNotFound indicates a DLQ record lookup missed.
	ErrRecordNotFound = errors.New("dlq record not found")

	// ErrInvalidTransition indicates a disallowed DLQ status change.
	ErrInvalidTransition = errors.New("invalid dlq status transition")
)

// RegistryError wraps a registry collaborator failure with the subject that
// was being resolved.
type RegistryError struct {
	Subject string
	Op      string
	Err     error
}

func (e *RegistryError) Error() string {
	return fmt.Sprintf("registry: %s failed for subject %s: %v", e.Op, e.Subject, e.Err)
}

func (e *RegistryError) Unwrap() error {
	return e.Err
}
