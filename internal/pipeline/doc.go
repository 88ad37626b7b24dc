// Package pipeline implements the four queue-chained stages of the bulk
// email pipeline:
//
//	validate → upsert run → create email items → send
//
// plus the auto-resume guard that shields relational-store stages from
// serverless database cold starts.
//
// Each stage is a stateless per-message handler. Concurrency comes from
// the consumer loops running many handler invocations in parallel, never
// from threading inside a handler. Every handler acknowledges its inbound
// message only after the unit of work is durably recorded, so queue
// redelivery is always safe: the run upsert, the count-existing item
// guard, and terminal item statuses make re-processing a no-op.
package pipeline
