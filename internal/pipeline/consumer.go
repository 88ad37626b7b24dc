package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/aws-educate-tw/tpet-pipeline/internal/dedup"
	"github.com/aws-educate-tw/tpet-pipeline/internal/pkg/logger"
	"github.com/aws-educate-tw/tpet-pipeline/internal/queue"
)

// Handler processes one message body. A nil return acknowledges the
// message; an error leaves it for redelivery.
type Handler interface {
	Handle(ctx context.Context, body string) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, body string) error

func (f HandlerFunc) Handle(ctx context.Context, body string) error { return f(ctx, body) }

// Consumer runs a pool of goroutines draining one queue into one handler.
type Consumer struct {
	name    string
	q       queue.Queue
	handler Handler
	guard   *dedup.Guard
	workers int
	log     *logger.Scoped

	wg sync.WaitGroup
}

// NewConsumer creates a consumer. guard may be nil to disable message
// dedup; workers defaults to 1 when non-positive.
func NewConsumer(name string, q queue.Queue, handler Handler, guard *dedup.Guard, workers int) *Consumer {
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{
		name:    name,
		q:       q,
		handler: handler,
		guard:   guard,
		workers: workers,
		log:     logger.Component(name),
	}
}

// Start launches the worker goroutines. They exit when ctx is cancelled;
// Wait blocks until all of them have drained.
func (c *Consumer) Start(ctx context.Context) {
	for i := 0; i < c.workers; i++ {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.loop(ctx)
		}()
	}
	c.log.Info("consumer started", "workers", c.workers)
}

// Wait blocks until every worker goroutine has returned.
func (c *Consumer) Wait() { c.wg.Wait() }

func (c *Consumer) loop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		msgs, err := c.q.Receive(ctx, 1, 20)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Error("receive failed", "error", err.Error())
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}

		for _, msg := range msgs {
			c.process(ctx, msg)
		}
	}
}

func (c *Consumer) process(ctx context.Context, msg queue.Message) {
	if c.guard != nil {
		first, err := c.guard.FirstDelivery(ctx, msg.ID)
		if err != nil {
			// Redis being down never blocks the pipeline; the DB-level
			// idempotence guards still hold.
			c.log.Warn("dedup check failed, proceeding", "message_id", msg.ID, "error", err.Error())
		} else if !first {
			c.log.Info("duplicate delivery, acknowledging", "message_id", msg.ID)
			c.ack(ctx, msg)
			return
		}
	}

	if err := c.handler.Handle(ctx, msg.Body); err != nil {
		c.log.Error("handler failed, message left for redelivery",
			"message_id", msg.ID, "error", err.Error())
		if c.guard != nil {
			if fErr := c.guard.Forget(ctx, msg.ID); fErr != nil {
				c.log.Warn("dedup forget failed", "message_id", msg.ID, "error", fErr.Error())
			}
		}
		return
	}

	c.ack(ctx, msg)
}

func (c *Consumer) ack(ctx context.Context, msg queue.Message) {
	if err := c.q.Delete(ctx, msg.ReceiptHandle); err != nil {
		// The handler already ran; redelivery will hit the idempotence
		// guards, so a failed delete costs a duplicate, not correctness.
		c.log.Warn("delete failed", "message_id", msg.ID, "error", err.Error())
	}
}
