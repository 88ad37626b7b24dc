package email

import (
	"context"
	"fmt"
	"time"

	"github.com/aws-educate-tw/tpet-pipeline/internal/domain"
)

// Service implements email item business logic.
type Service struct {
	repo Repository
}

// NewService creates an email service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Get returns one item.
func (s *Service) Get(ctx context.Context, runID, emailID string) (*domain.EmailItem, error) {
	return s.repo.Get(ctx, runID, emailID)
}

// ListByRun returns a run's items.
func (s *Service) ListByRun(ctx context.Context, runID string, f ListFilter) ([]domain.EmailItem, int, error) {
	return s.repo.ListByRun(ctx, runID, f)
}

// HasItems reports whether any items already exist for the run.
func (s *Service) HasItems(ctx context.Context, runID string) (bool, error) {
	n, err := s.repo.CountByRun(ctx, runID)
	if err != nil {
		return false, fmt.Errorf("count items for run %s: %w", runID, err)
	}
	return n > 0, nil
}

// CreatePending persists a new PENDING item.
func (s *Service) CreatePending(ctx context.Context, item *domain.EmailItem) error {
	if item.RunID == "" || item.EmailID == "" {
		return fmt.Errorf("run_id and email_id are required")
	}
	item.Status = domain.EmailPending
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	return s.repo.Upsert(ctx, item)
}

// MarkSuccess transitions an item to SUCCESS and reports whether the
// transition applied. An item already in a terminal state keeps it, so a
// redelivered message can neither flip history nor double-count.
func (s *Service) MarkSuccess(ctx context.Context, runID, emailID string) (bool, error) {
	return s.markTerminal(ctx, runID, emailID, domain.EmailSuccess)
}

// MarkFailed transitions an item to FAILED and reports whether the
// transition applied.
func (s *Service) MarkFailed(ctx context.Context, runID, emailID string) (bool, error) {
	return s.markTerminal(ctx, runID, emailID, domain.EmailFailed)
}

func (s *Service) markTerminal(ctx context.Context, runID, emailID string, status domain.EmailStatus) (bool, error) {
	item, err := s.repo.Get(ctx, runID, emailID)
	if err != nil {
		return false, err
	}
	if item.Status.IsTerminal() {
		return false, nil
	}
	if err := s.repo.UpdateStatus(ctx, runID, emailID, status, time.Now().UTC()); err != nil {
		return false, err
	}
	return true, nil
}
