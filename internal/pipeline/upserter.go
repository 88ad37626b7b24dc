package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws-educate-tw/tpet-pipeline/internal/domain"
	"github.com/aws-educate-tw/tpet-pipeline/internal/pkg/logger"
	"github.com/aws-educate-tw/tpet-pipeline/internal/queue"
)

// UpsertStore is the slice of the run service the upserter needs.
type UpsertStore interface {
	Upsert(ctx context.Context, r *domain.Run) error
	Get(ctx context.Context, runID string) (*domain.Run, error)
	AddExpected(ctx context.Context, runID string, delta int) error
}

// Upserter consumes validated jobs, resolves file and identity snapshots,
// persists the run, and forwards the enriched job to item creation.
type Upserter struct {
	files    FileResolver
	identity IdentityResolver
	runs     UpsertStore
	next     queue.Queue
	log      *logger.Scoped
}

// NewUpserter wires the run upserter stage.
func NewUpserter(files FileResolver, identity IdentityResolver, runs UpsertStore, next queue.Queue) *Upserter {
	return &Upserter{
		files:    files,
		identity: identity,
		runs:     runs,
		next:     next,
		log:      logger.Component("run-upserter"),
	}
}

// Handle processes one validated-job message. Returning nil acknowledges
// the message; returning an error leaves it for redelivery, which is safe
// because the upsert is idempotent.
func (u *Upserter) Handle(ctx context.Context, body string) error {
	var job domain.ValidatedJob
	if err := json.Unmarshal([]byte(body), &job); err != nil {
		return fmt.Errorf("decode validated job: %w", err)
	}

	enriched := domain.EnrichedRunJob{ValidatedJob: job}

	tmpl, err := u.files.GetFileInfo(ctx, job.TemplateFileID, job.AccessToken)
	if err != nil {
		return fmt.Errorf("resolve template snapshot for run %s: %w", job.RunID, err)
	}
	enriched.TemplateFile = tmpl

	if job.SpreadsheetFileID != "" {
		sheet, err := u.files.GetFileInfo(ctx, job.SpreadsheetFileID, job.AccessToken)
		if err != nil {
			return fmt.Errorf("resolve spreadsheet snapshot for run %s: %w", job.RunID, err)
		}
		enriched.SpreadsheetFile = sheet
	}

	for _, id := range job.AttachmentFileIDs {
		att, err := u.files.GetFileInfo(ctx, id, job.AccessToken)
		if err != nil {
			return fmt.Errorf("resolve attachment %s for run %s: %w", id, job.RunID, err)
		}
		enriched.AttachmentFiles = append(enriched.AttachmentFiles, *att)
	}

	// Webhook triggers are machine calls with no user credential; the
	// sender snapshot stays empty for them.
	sender := &domain.Sender{}
	if job.AccessToken != "" {
		sender, err = u.identity.Me(ctx, job.AccessToken)
		if err != nil {
			return fmt.Errorf("resolve sender identity for run %s: %w", job.RunID, err)
		}
	}
	enriched.Sender = sender

	r := &domain.Run{
		RunID:                 job.RunID,
		RunType:               job.RunType,
		RecipientSource:       job.RecipientSource,
		Subject:               job.Subject,
		DisplayName:           job.DisplayName,
		ReplyTo:               job.ReplyTo,
		SenderLocalPart:       job.SenderLocalPart,
		CC:                    job.CC,
		BCC:                   job.BCC,
		TemplateFileID:        job.TemplateFileID,
		SpreadsheetFileID:     job.SpreadsheetFileID,
		AttachmentFileIDs:     job.AttachmentFileIDs,
		TemplateFile:          enriched.TemplateFile,
		SpreadsheetFile:       enriched.SpreadsheetFile,
		AttachmentFiles:       enriched.AttachmentFiles,
		Recipients:            job.Recipients,
		IsGenerateCertificate: job.IsGenerateCertificate,
		SenderID:              sender.UserID,
		Sender:                sender,
	}
	if existing, err := u.runs.Get(ctx, job.RunID); err == nil {
		// Keep the counter baseline fixed at what the validator computed.
		r.ExpectedEmailSendCount = existing.ExpectedEmailSendCount
		r.CreatedAt = existing.CreatedAt
		r.CreatedYear = existing.CreatedYear
		r.CreatedYearMonth = existing.CreatedYearMonth
		r.CreatedYearMonthDay = existing.CreatedYearMonthDay
	} else {
		r.StampCreated(time.Now())
	}

	if err := u.runs.Upsert(ctx, r); err != nil {
		return fmt.Errorf("upsert run %s: %w", job.RunID, err)
	}

	if job.RunType == domain.RunTypeWebhook && len(job.Recipients) > 0 {
		if err := u.runs.AddExpected(ctx, job.RunID, len(job.Recipients)); err != nil {
			return fmt.Errorf("grow expected count for run %s: %w", job.RunID, err)
		}
	}

	msgID, err := queue.SendJSON(ctx, u.next, enriched)
	if err != nil {
		return fmt.Errorf("forward enriched run %s: %w", job.RunID, err)
	}

	u.log.Info("run upserted", "run_id", job.RunID, "message_id", msgID,
		"sender_id", sender.UserID)
	return nil
}
