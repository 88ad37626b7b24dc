// Package queue provides the message-queue abstraction chaining the
// pipeline stages together, backed by SQS in production and an in-memory
// queue in tests.
//
// Delivery is at-least-once: a message stays invisible while a consumer
// holds it and is redelivered if not deleted before the visibility window
// expires. Stages therefore delete their inbound message only after the
// unit of work is durably recorded.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
)

// Message is one received queue message.
type Message struct {
	ID            string
	Body          string
	ReceiptHandle string
}

// Queue is the minimal contract the pipeline needs from a queue.
type Queue interface {
	// Send enqueues a message body and returns the provider message id.
	Send(ctx context.Context, body string) (string, error)
	// Receive fetches up to max messages, long-polling up to waitSeconds.
	Receive(ctx context.Context, max int32, waitSeconds int32) ([]Message, error)
	// Delete acknowledges a message so it will not be redelivered.
	Delete(ctx context.Context, receiptHandle string) error
}

// SendJSON marshals v and enqueues it.
func SendJSON(ctx context.Context, q Queue, v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal queue message: %w", err)
	}
	return q.Send(ctx, string(data))
}
