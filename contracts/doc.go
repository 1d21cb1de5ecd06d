// Package contracts provides the core value types for the event governance pipeline.
//
// This package defines the shapes that flow between the governance components:
//   - CandidateEvent: A structured event a caller wants to publish
//   - Value: Tagged variant type for event field values
//   - Schema / FieldDef: Structural schema fetched from the registry
//   - ValidationResult: Outcome of validating a candidate against a schema
//   - DLQRecord: Persistent record of a failed publish attempt chain
//
// All types are designed to be serializable so records survive transport to
// the dead-letter topic and the durable fallback sink.
package contracts
