// Package email implements per-recipient email item tracking.
//
// An item is created PENDING and moves to SUCCESS or FAILED exactly once;
// there is no path back. The count-existing guard makes item creation
// idempotent under at-least-once message delivery.
package email
