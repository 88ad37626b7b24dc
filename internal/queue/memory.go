package queue

import (
	"context"
	"strconv"
	"sync"
)

// MemoryQueue is an in-process Queue for tests and local development.
// Received messages stay in-flight until deleted; Requeue puts all
// in-flight messages back, simulating visibility-timeout redelivery.
type MemoryQueue struct {
	mu       sync.Mutex
	next     int
	pending  []Message
	inflight map[string]Message
}

// NewMemoryQueue returns an empty in-memory queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{inflight: make(map[string]Message)}
}

func (q *MemoryQueue) Send(_ context.Context, body string) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.next++
	id := "mem-" + strconv.Itoa(q.next)
	q.pending = append(q.pending, Message{ID: id, Body: body, ReceiptHandle: id})
	return id, nil
}

func (q *MemoryQueue) Receive(_ context.Context, max int32, _ int32) ([]Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := int(max)
	if n > len(q.pending) {
		n = len(q.pending)
	}
	msgs := q.pending[:n]
	q.pending = q.pending[n:]
	for _, m := range msgs {
		q.inflight[m.ReceiptHandle] = m
	}
	return msgs, nil
}

func (q *MemoryQueue) Delete(_ context.Context, receiptHandle string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.inflight, receiptHandle)
	return nil
}

// Requeue returns every in-flight message to the pending list.
func (q *MemoryQueue) Requeue() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, m := range q.inflight {
		q.pending = append(q.pending, m)
	}
	q.inflight = make(map[string]Message)
}

// Len reports how many messages are waiting to be received.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
