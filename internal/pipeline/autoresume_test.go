package pipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aws-educate-tw/tpet-pipeline/internal/queue"
)

func TestAutoResumeForwardsWhenHealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	target := queue.NewMemoryQueue()
	a := NewAutoResume(srv.URL, target)
	a.retryDelay = time.Millisecond

	require.NoError(t, a.Handle(context.Background(), `{"run_id":"run-1"}`))

	require.Equal(t, 1, target.Len())
	msgs, _ := target.Receive(context.Background(), 1, 0)
	// Body is forwarded byte for byte.
	assert.Equal(t, `{"run_id":"run-1"}`, msgs[0].Body)
}

func TestAutoResumeWaitsForWakeUp(t *testing.T) {
	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt64(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	target := queue.NewMemoryQueue()
	a := NewAutoResume(srv.URL, target)
	a.retryDelay = time.Millisecond

	require.NoError(t, a.Handle(context.Background(), "payload"))
	assert.Equal(t, int64(3), atomic.LoadInt64(&calls))
	assert.Equal(t, 1, target.Len())
}

func TestAutoResumeGivesUpAfterRetryBudget(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	target := queue.NewMemoryQueue()
	a := NewAutoResume(srv.URL, target)
	a.retryDelay = time.Millisecond
	a.maxRetries = 3

	err := a.Handle(context.Background(), "payload")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "3 attempts")
	// Message was not forwarded; the queue will redeliver it.
	assert.Equal(t, 0, target.Len())
}
