package run

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aws-educate-tw/tpet-pipeline/internal/domain"
)

type memRepo struct {
	mu   sync.Mutex
	runs map[string]domain.Run
}

func newMemRepo() *memRepo {
	return &memRepo{runs: make(map[string]domain.Run)}
}

func (m *memRepo) Get(_ context.Context, runID string) (*domain.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[runID]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (m *memRepo) List(_ context.Context, f ListFilter) ([]domain.Run, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Run
	for _, r := range m.runs {
		if f.RunType != "" && r.RunType != domain.RunType(f.RunType) {
			continue
		}
		out = append(out, r)
	}
	return out, len(out), nil
}

func (m *memRepo) Upsert(_ context.Context, r *domain.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[r.RunID] = *r
	return nil
}

func (m *memRepo) IncrementSuccessCount(_ context.Context, runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[runID]
	if !ok {
		return ErrNotFound
	}
	r.SuccessEmailCount++
	m.runs[runID] = r
	return nil
}

func (m *memRepo) IncrementExpectedCount(_ context.Context, runID string, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[runID]
	if !ok {
		return ErrNotFound
	}
	r.ExpectedEmailSendCount += delta
	m.runs[runID] = r
	return nil
}

func TestUpsertStampsCreated(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo)

	err := svc.Upsert(context.Background(), &domain.Run{RunID: "run-1", RunType: domain.RunTypeEmail})
	require.NoError(t, err)

	got, err := svc.Get(context.Background(), "run-1")
	require.NoError(t, err)
	assert.False(t, got.CreatedAt.IsZero())
	assert.Equal(t, got.CreatedAt.Format("2006"), got.CreatedYear)
}

func TestUpsertRejectsEmptyRunID(t *testing.T) {
	svc := NewService(newMemRepo())
	err := svc.Upsert(context.Background(), &domain.Run{RunType: domain.RunTypeEmail})
	require.Error(t, err)
}

func TestUpsertWebhookRequiresExistingWebhookRun(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo)
	ctx := context.Background()

	// No run with this id exists yet.
	err := svc.Upsert(ctx, &domain.Run{RunID: "wh-1", RunType: domain.RunTypeWebhook})
	require.ErrorIs(t, err, ErrNotFound)

	// The id exists but belongs to an EMAIL run.
	require.NoError(t, svc.Upsert(ctx, &domain.Run{RunID: "run-1", RunType: domain.RunTypeEmail}))
	err = svc.Upsert(ctx, &domain.Run{RunID: "run-1", RunType: domain.RunTypeWebhook})
	require.ErrorIs(t, err, ErrWebhookMismatch)

	// A pre-registered WEBHOOK run accepts the upsert.
	repo.runs["wh-2"] = domain.Run{RunID: "wh-2", RunType: domain.RunTypeWebhook, CreatedAt: time.Now()}
	err = svc.Upsert(ctx, &domain.Run{RunID: "wh-2", RunType: domain.RunTypeWebhook, Subject: "triggered"})
	require.NoError(t, err)

	got, err := svc.Get(ctx, "wh-2")
	require.NoError(t, err)
	assert.Equal(t, "triggered", got.Subject)
}

func TestAddExpectedGrowsCount(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo)
	ctx := context.Background()

	repo.runs["wh-1"] = domain.Run{RunID: "wh-1", RunType: domain.RunTypeWebhook, ExpectedEmailSendCount: 3}

	require.NoError(t, svc.AddExpected(ctx, "wh-1", 5))
	// Zero and negative deltas are no-ops, not errors.
	require.NoError(t, svc.AddExpected(ctx, "wh-1", 0))

	got, err := svc.Get(ctx, "wh-1")
	require.NoError(t, err)
	assert.Equal(t, 8, got.ExpectedEmailSendCount)
}

func TestRecordSuccessUnknownRun(t *testing.T) {
	svc := NewService(newMemRepo())
	err := svc.RecordSuccess(context.Background(), "ghost")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListFiltersByType(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo)
	ctx := context.Background()

	require.NoError(t, svc.Upsert(ctx, &domain.Run{RunID: "run-1", RunType: domain.RunTypeEmail}))
	repo.runs["wh-1"] = domain.Run{RunID: "wh-1", RunType: domain.RunTypeWebhook}

	runs, total, err := svc.List(ctx, ListFilter{RunType: string(domain.RunTypeEmail)})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].RunID)
}
