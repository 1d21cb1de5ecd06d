package messaging

import (
	"context"

	"github.com/mjones3/event-governance-poc-sub000/contracts"
)

// RouteInput carries everything the DLQ router needs to build a record from a
// terminally failed publish chain. Payload is the original bytes, preserved
// unmodified.
type RouteInput struct {
	EventID       string
	CorrelationID string
	Module        string
	EventType     string
	OriginalTopic string
	Payload       []byte
	Err           error
	RetryCount    int
}

// DLQRouter routes a terminally failed publish chain into the dead letter
// queue. Routing never fails: the router degrades through its fallbacks and
// always returns the record it built.
type DLQRouter interface {
	Route(ctx context.Context, input RouteInput) *contracts.DLQRecord
}
