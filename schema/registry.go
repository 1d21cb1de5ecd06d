package schema

import (
	"context"

	"github.com/mjones3/event-governance-poc-sub000/contracts"
)

// Registry is the external schema registry collaborator. Implementations
// talk to the platform registry service; tests substitute mocks.
type Registry interface {
	// FetchLatestSchema returns the latest registered schema version for the
	// subject, or contracts.ErrSchemaNotFound.
	FetchLatestSchema(ctx context.Context, subject string) (*contracts.Schema, error)

	// CheckCompatibility reports whether the candidate schema is compatible
	// with the subject's registered compatibility mode.
	CheckCompatibility(ctx context.Context, subject string, candidate *contracts.Schema) (bool, error)
}
