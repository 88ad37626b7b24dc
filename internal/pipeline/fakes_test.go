package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/aws-educate-tw/tpet-pipeline/internal/certificate"
	"github.com/aws-educate-tw/tpet-pipeline/internal/domain"
	"github.com/aws-educate-tw/tpet-pipeline/internal/mail"
)

// fakeFiles serves file metadata and downloads from maps.
type fakeFiles struct {
	infos     map[string]*domain.FileRef
	downloads map[string][]byte
}

func (f *fakeFiles) GetFileInfo(_ context.Context, fileID, _ string) (*domain.FileRef, error) {
	info, ok := f.infos[fileID]
	if !ok {
		return nil, fmt.Errorf("file %s not found", fileID)
	}
	return info, nil
}

func (f *fakeFiles) Download(_ context.Context, fileURL string) ([]byte, error) {
	data, ok := f.downloads[fileURL]
	if !ok {
		return nil, fmt.Errorf("download %s failed", fileURL)
	}
	return data, nil
}

// fakeIdentity returns a fixed sender.
type fakeIdentity struct{ sender domain.Sender }

func (f *fakeIdentity) Me(_ context.Context, _ string) (*domain.Sender, error) {
	s := f.sender
	return &s, nil
}

// fakeObjects serves S3 objects from a map.
type fakeObjects struct{ objects map[string][]byte }

func (f *fakeObjects) Get(_ context.Context, key string) ([]byte, error) {
	data, ok := f.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %s not found", key)
	}
	return data, nil
}

func (f *fakeObjects) GetText(ctx context.Context, key string) (string, error) {
	data, err := f.Get(ctx, key)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// memRuns is an in-memory run store with an atomic success counter.
type memRuns struct {
	mu   sync.Mutex
	runs map[string]*domain.Run
}

func newMemRuns() *memRuns { return &memRuns{runs: make(map[string]*domain.Run)} }

func (m *memRuns) Upsert(_ context.Context, r *domain.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.runs[r.RunID]; ok {
		// Counter and creation stamp survive re-upserts.
		r.SuccessEmailCount = existing.SuccessEmailCount
		r.ExpectedEmailSendCount = existing.ExpectedEmailSendCount
		r.CreatedAt = existing.CreatedAt
	}
	cp := *r
	m.runs[r.RunID] = &cp
	return nil
}

func (m *memRuns) Get(_ context.Context, runID string) (*domain.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[runID]
	if !ok {
		return nil, fmt.Errorf("run %s not found", runID)
	}
	cp := *r
	return &cp, nil
}

func (m *memRuns) AddExpected(_ context.Context, runID string, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[runID]
	if !ok {
		return fmt.Errorf("run %s not found", runID)
	}
	r.ExpectedEmailSendCount += delta
	return nil
}

func (m *memRuns) RecordSuccess(_ context.Context, runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[runID]
	if !ok {
		return fmt.Errorf("run %s not found", runID)
	}
	r.SuccessEmailCount++
	return nil
}

// memItems is an in-memory email item store.
type memItems struct {
	mu    sync.Mutex
	items map[string]map[string]*domain.EmailItem // run_id → email_id → item
}

func newMemItems() *memItems {
	return &memItems{items: make(map[string]map[string]*domain.EmailItem)}
}

func (m *memItems) HasItems(_ context.Context, runID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items[runID]) > 0, nil
}

func (m *memItems) CreatePending(_ context.Context, item *domain.EmailItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.items[item.RunID] == nil {
		m.items[item.RunID] = make(map[string]*domain.EmailItem)
	}
	item.Status = domain.EmailPending
	cp := *item
	m.items[item.RunID][item.EmailID] = &cp
	return nil
}

func (m *memItems) setStatus(runID, emailID string, status domain.EmailStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[runID][emailID]
	if !ok {
		return false, fmt.Errorf("item %s/%s not found", runID, emailID)
	}
	if item.Status.IsTerminal() {
		return false, nil
	}
	now := time.Now().UTC()
	item.Status = status
	item.SentAt = &now
	item.UpdatedAt = &now
	return true, nil
}

func (m *memItems) MarkSuccess(_ context.Context, runID, emailID string) (bool, error) {
	return m.setStatus(runID, emailID, domain.EmailSuccess)
}

func (m *memItems) MarkFailed(_ context.Context, runID, emailID string) (bool, error) {
	return m.setStatus(runID, emailID, domain.EmailFailed)
}

func (m *memItems) count(runID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items[runID])
}

func (m *memItems) byStatus(runID string, status domain.EmailStatus) []*domain.EmailItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.EmailItem
	for _, item := range m.items[runID] {
		if item.Status == status {
			cp := *item
			out = append(out, &cp)
		}
	}
	return out
}

// fakeTransport records sends and fails for selected recipients.
type fakeTransport struct {
	mu     sync.Mutex
	sent   []*mail.Message
	failFor map[string]bool
}

func (f *fakeTransport) Send(_ context.Context, msg *mail.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[msg.To] {
		return "", fmt.Errorf("transport rejected %s", msg.To)
	}
	f.sent = append(f.sent, msg)
	return fmt.Sprintf("ses-%d", len(f.sent)), nil
}

func (f *fakeTransport) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// fakeCerts returns a canned certificate or an error.
type fakeCerts struct{ err error }

func (f *fakeCerts) Generate(_ context.Context, runID, name, _ string) (*certificate.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &certificate.Result{
		Key:      fmt.Sprintf("runs/%s/certificates/%s_certificate.pdf", runID, name),
		FileName: name + "_certificate.pdf",
		PDF:      []byte("%PDF fake"),
	}, nil
}

// buildSheet produces xlsx bytes for spreadsheet-mode tests.
func buildSheet(t *testing.T, rows [][]interface{}) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return buf.Bytes()
}
