// Package dlq implements dead letter queue routing, storage and reprocessing.
//
// Router turns a terminally failed publish chain into exactly one DLQRecord:
// it classifies the error chain, assigns a triage priority, persists the
// record and publishes it to the module's DLQ topic, degrading to a durable
// file sink when the DLQ topic itself is unreachable. Routing never fails
// from the caller's point of view.
//
// Store holds records through their reprocessing lifecycle
// (PENDING -> IN_PROGRESS -> COMPLETED or FAILED) and enforces the legal
// transitions. ReprocessingService replays stored records through the
// publisher path, idempotently for already completed records.
package dlq
