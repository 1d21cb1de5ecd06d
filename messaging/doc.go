// Package messaging provides the event publishing pipeline.
//
// EventPublisher is the entry point: it validates a candidate event against
// its registered schema, encodes it, and publishes through a Broker under
// circuit breaker and bounded retry protection. Any terminal failure in that
// chain is handed to the DLQRouter exactly once, so a single publish request
// never produces more than one dead letter record.
//
// The package defines the collaborator interfaces (Broker, EventValidator,
// DLQRouter, MetricsCollector) and their error types; concrete
// implementations live in transports/, schema/, dlq/ and metrics/.
//
// Example usage:
//
//	publisher, err := messaging.NewEventPublisher(broker, validator, router,
//		messaging.WithMetricsCollector(collector),
//	)
//	if err != nil {
//		return err
//	}
//
//	result, err := publisher.PublishEvent(ctx, "orders", "OrderCreated", "orders.events",
//		event,
//		messaging.WithCorrelationID(correlationID),
//	)
//	if result.DLQRecord != nil {
//		// event was accepted but routed to the DLQ
//	}
package messaging
