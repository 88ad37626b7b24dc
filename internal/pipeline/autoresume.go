package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aws-educate-tw/tpet-pipeline/internal/pkg/logger"
	"github.com/aws-educate-tw/tpet-pipeline/internal/queue"
)

// AutoResume forwards queued messages to a relational-store-backed stage
// only once the store answers its health endpoint. It exists to absorb
// the cold-start latency of an auto-pausing serverless database; it adds
// no correctness, only latency hiding.
type AutoResume struct {
	healthURL  string
	target     queue.Queue
	client     *http.Client
	maxRetries int
	retryDelay time.Duration
	log        *logger.Scoped
}

// NewAutoResume wires the guard. Defaults match the production tuning:
// up to 10 polls, 7 seconds apart, 5-second request timeout.
func NewAutoResume(healthURL string, target queue.Queue) *AutoResume {
	return &AutoResume{
		healthURL:  healthURL,
		target:     target,
		client:     &http.Client{Timeout: 5 * time.Second},
		maxRetries: 10,
		retryDelay: 7 * time.Second,
		log:        logger.Component("auto-resume"),
	}
}

// Handle polls the health endpoint until it reports healthy, then forwards
// the message body unchanged. If the store never wakes within the retry
// budget the error propagates, the message is not acknowledged, and the
// queue redelivers it later.
func (a *AutoResume) Handle(ctx context.Context, body string) error {
	for attempt := 1; attempt <= a.maxRetries; attempt++ {
		if a.healthy(ctx) {
			msgID, err := a.target.Send(ctx, body)
			if err != nil {
				return fmt.Errorf("forward message: %w", err)
			}
			a.log.Info("store healthy, message forwarded",
				"attempt", attempt, "message_id", msgID)
			return nil
		}

		a.log.Warn("store not healthy yet", "attempt", attempt, "max", a.maxRetries)
		if attempt == a.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(a.retryDelay):
		}
	}
	return fmt.Errorf("store did not become healthy after %d attempts", a.maxRetries)
}

func (a *AutoResume) healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.healthURL, nil)
	if err != nil {
		return false
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
