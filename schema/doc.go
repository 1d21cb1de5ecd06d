// Package schema provides schema resolution and event validation for the
// governance pipeline.
//
// The package wraps the external schema registry collaborator behind a
// time-bounded, capacity-bounded cache so the hot publish path avoids a
// network round trip per event, and validates candidate events structurally
// against the resolved schema.
//
// Key behaviors:
//   - TTL-based expiry (default 30 minutes) with LRU eviction (default 1000 subjects)
//   - Concurrent cache misses for the same subject share one in-flight fetch
//   - Registry unreachable with no cached entry surfaces contracts.ErrRegistryUnavailable
//   - Validation short-circuits on the first failure with a precise reason
//   - Unknown fields hard-fail in strict mode (default) or warn in permissive mode
//
// Basic usage:
//
//	cache := schema.NewCache(registry)
//	validator := schema.NewValidator(cache)
//
//	result, err := validator.Validate(ctx, "OrderCreated", event)
//	if err != nil {
//	    // schema could not be resolved; validation-phase failure
//	}
//	if !result.Valid {
//	    log.Printf("rejected: %s", result.Reason)
//	}
package schema
