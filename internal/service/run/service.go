package run

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws-educate-tw/tpet-pipeline/internal/domain"
)

// Service implements run business logic on top of the repository.
// All public methods are safe for concurrent use if the underlying
// repository is concurrency-safe.
type Service struct {
	repo Repository
}

// NewService creates a run service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Get returns a single run.
func (s *Service) Get(ctx context.Context, runID string) (*domain.Run, error) {
	return s.repo.Get(ctx, runID)
}

// List returns runs matching the filter.
func (s *Service) List(ctx context.Context, f ListFilter) ([]domain.Run, int, error) {
	return s.repo.List(ctx, f)
}

// Upsert persists a run. WEBHOOK-type runs are only accepted when a run
// with this id already exists and is itself of type WEBHOOK; an id that
// exists under a different type means two incompatible flows collided and
// the message must not proceed.
func (s *Service) Upsert(ctx context.Context, r *domain.Run) error {
	if r.RunID == "" {
		return fmt.Errorf("run_id is required")
	}

	if r.RunType == domain.RunTypeWebhook {
		existing, err := s.repo.Get(ctx, r.RunID)
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("webhook run %s: %w", r.RunID, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("look up webhook run %s: %w", r.RunID, err)
		}
		if existing.RunType != domain.RunTypeWebhook {
			return fmt.Errorf("run %s: %w", r.RunID, ErrWebhookMismatch)
		}
	}

	if r.CreatedAt.IsZero() {
		r.StampCreated(time.Now())
	}
	return s.repo.Upsert(ctx, r)
}

// ProvisionWebhookRun registers the placeholder run a webhook definition
// binds to. This is the only path that may create a WEBHOOK-type run from
// nothing; later upserts for the same id pass the Upsert guard.
func (s *Service) ProvisionWebhookRun(ctx context.Context, r *domain.Run) error {
	if r.RunID == "" {
		return fmt.Errorf("run_id is required")
	}
	r.RunType = domain.RunTypeWebhook
	if r.CreatedAt.IsZero() {
		r.StampCreated(time.Now())
	}
	return s.repo.Upsert(ctx, r)
}

// RecordSuccess atomically bumps the run's success counter after one
// email item completes.
func (s *Service) RecordSuccess(ctx context.Context, runID string) error {
	return s.repo.IncrementSuccessCount(ctx, runID)
}

// AddExpected atomically grows the run's expected send total. Used when a
// webhook trigger appends recipients to its pre-provisioned run.
func (s *Service) AddExpected(ctx context.Context, runID string, delta int) error {
	if delta <= 0 {
		return nil
	}
	return s.repo.IncrementExpectedCount(ctx, runID, delta)
}
