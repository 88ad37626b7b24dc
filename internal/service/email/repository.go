package email

import (
	"context"
	"time"

	"github.com/aws-educate-tw/tpet-pipeline/internal/domain"
)

// Repository defines the data access contract for email items.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Get returns one item by its composite key. Returns ErrNotFound if it
	// doesn't exist.
	Get(ctx context.Context, runID, emailID string) (*domain.EmailItem, error)

	// ListByRun returns a run's items matching the filter plus the total
	// count for pagination.
	ListByRun(ctx context.Context, runID string, filter ListFilter) ([]domain.EmailItem, int, error)

	// CountByRun returns how many items exist under a run, regardless of
	// status. The item creator uses this as its idempotence guard.
	CountByRun(ctx context.Context, runID string) (int, error)

	// Upsert inserts the item or refreshes it when (run_id, email_id)
	// already exists. created_at survives re-upserts.
	Upsert(ctx context.Context, item *domain.EmailItem) error

	// UpdateStatus transitions an item to a terminal status and stamps
	// sent_at/updated_at. Re-applying the same terminal status is a no-op
	// at the caller's level; the repository just writes what it is given.
	UpdateStatus(ctx context.Context, runID, emailID string, status domain.EmailStatus, at time.Time) error
}

// ListFilter controls pagination and filtering for item lists.
type ListFilter struct {
	Status string
	Limit  int
	Offset int
}
