// Package pipeline contains delivery pipelines the forwarding engine can push
// accepted events to: a signed HTTP POST, a Kafka topic, and a fan-out over
// several pipelines.
//
// Every error a pipeline returns is retried by the engine, so pipelines must
// tolerate receiving the same event more than once. Downstream consumers
// deduplicate on the event id carried with each delivery.
package pipeline
