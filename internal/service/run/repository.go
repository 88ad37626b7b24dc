package run

import (
	"context"

	"github.com/aws-educate-tw/tpet-pipeline/internal/domain"
)

// Repository defines the data access contract for runs.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Get returns a single run. Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, runID string) (*domain.Run, error)

	// List returns runs matching the filter, newest first, plus the total
	// count for pagination.
	List(ctx context.Context, filter ListFilter) ([]domain.Run, int, error)

	// Upsert inserts the run or, when run_id already exists, refreshes its
	// mutable fields. created_at, counters, and the snapshots set at first
	// insert survive re-upserts, which makes message redelivery harmless.
	Upsert(ctx context.Context, r *domain.Run) error

	// IncrementSuccessCount bumps success_email_count by one as a single
	// storage-side operation. Never read-modify-write.
	IncrementSuccessCount(ctx context.Context, runID string) error

	// IncrementExpectedCount bumps expected_email_send_count by delta as a
	// single storage-side operation. Webhook triggers grow a run's expected
	// total long after the run was provisioned.
	IncrementExpectedCount(ctx context.Context, runID string, delta int) error
}

// ListFilter controls pagination and filtering for run lists.
type ListFilter struct {
	RunType string
	Limit   int
	Offset  int
}
