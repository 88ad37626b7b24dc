package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aws-educate-tw/tpet-pipeline/internal/domain"
	"github.com/aws-educate-tw/tpet-pipeline/internal/pkg/logger"
	"github.com/aws-educate-tw/tpet-pipeline/internal/queue"
	"github.com/aws-educate-tw/tpet-pipeline/internal/spreadsheet"
)

// ItemStore is the slice of the email service the item creator needs.
type ItemStore interface {
	HasItems(ctx context.Context, runID string) (bool, error)
	CreatePending(ctx context.Context, item *domain.EmailItem) error
	MarkFailed(ctx context.Context, runID, emailID string) (bool, error)
}

// ItemCreator expands an enriched run into one PENDING email item per
// recipient and enqueues one send job per item.
type ItemCreator struct {
	store ObjectGetter
	items ItemStore
	next  queue.Queue
	log   *logger.Scoped
}

// NewItemCreator wires the email item creation stage.
func NewItemCreator(store ObjectGetter, items ItemStore, next queue.Queue) *ItemCreator {
	return &ItemCreator{
		store: store,
		items: items,
		next:  next,
		log:   logger.Component("item-creator"),
	}
}

// Handle processes one enriched-run message. For EMAIL runs, existing items
// mean the message was delivered before; the whole expansion is skipped and
// the message is still acknowledged as handled. WEBHOOK runs append on every
// trigger, so they bypass the guard and rely on the delivery dedup layer.
func (c *ItemCreator) Handle(ctx context.Context, body string) error {
	var job domain.EnrichedRunJob
	if err := json.Unmarshal([]byte(body), &job); err != nil {
		return fmt.Errorf("decode enriched run job: %w", err)
	}

	if job.RunType != domain.RunTypeWebhook {
		exists, err := c.items.HasItems(ctx, job.RunID)
		if err != nil {
			return fmt.Errorf("check existing items for run %s: %w", job.RunID, err)
		}
		if exists {
			c.log.Info("items already created, skipping", "run_id", job.RunID)
			return nil
		}
	}

	rows, err := c.recipientRows(ctx, &job)
	if err != nil {
		return err
	}

	created, failed := 0, 0
	for _, row := range rows {
		item := &domain.EmailItem{
			RunID:                 job.RunID,
			EmailID:               strings.ReplaceAll(uuid.NewString(), "-", ""),
			RecipientEmail:        row[FieldEmail],
			RowData:               row,
			Subject:               job.Subject,
			DisplayName:           job.DisplayName,
			ReplyTo:               job.ReplyTo,
			SenderLocalPart:       job.SenderLocalPart,
			CC:                    job.CC,
			BCC:                   job.BCC,
			TemplateFileID:        job.TemplateFileID,
			SpreadsheetFileID:     job.SpreadsheetFileID,
			AttachmentFileIDs:     job.AttachmentFileIDs,
			IsGenerateCertificate: job.IsGenerateCertificate,
			CreatedAt:             time.Now().UTC(),
		}
		if err := c.items.CreatePending(ctx, item); err != nil {
			return fmt.Errorf("create item for run %s: %w", job.RunID, err)
		}

		sendJob := domain.EmailItemJob{
			RunID:                 item.RunID,
			EmailID:               item.EmailID,
			RecipientEmail:        item.RecipientEmail,
			RowData:               item.RowData,
			Subject:               item.Subject,
			DisplayName:           item.DisplayName,
			ReplyTo:               item.ReplyTo,
			SenderLocalPart:       item.SenderLocalPart,
			CC:                    item.CC,
			BCC:                   item.BCC,
			TemplateFileID:        item.TemplateFileID,
			AttachmentFileIDs:     item.AttachmentFileIDs,
			IsGenerateCertificate: item.IsGenerateCertificate,
			AccessToken:           job.AccessToken,
		}
		if _, err := queue.SendJSON(ctx, c.next, sendJob); err != nil {
			// A send job that never reaches the queue would leave the item
			// PENDING forever; record the failure instead.
			c.log.Error("enqueue send job failed, marking item failed",
				"run_id", item.RunID, "email_id", item.EmailID, "error", err.Error())
			if _, mErr := c.items.MarkFailed(ctx, item.RunID, item.EmailID); mErr != nil {
				return fmt.Errorf("mark item %s failed after enqueue error: %w", item.EmailID, mErr)
			}
			failed++
			continue
		}
		created++
	}

	c.log.Info("items created", "run_id", job.RunID, "created", created, "failed", failed)
	return nil
}

// recipientRows resolves the per-recipient variable bindings, either from
// the spreadsheet snapshot or the inline DIRECT list.
func (c *ItemCreator) recipientRows(ctx context.Context, job *domain.EnrichedRunJob) ([]map[string]string, error) {
	if job.RecipientSource == domain.RecipientSourceDirect {
		rows := make([]map[string]string, 0, len(job.Recipients))
		for _, rcpt := range job.Recipients {
			row := make(map[string]string, len(rcpt.TemplateVariables)+1)
			for k, v := range rcpt.TemplateVariables {
				row[k] = v
			}
			row[FieldEmail] = rcpt.Email
			rows = append(rows, row)
		}
		return rows, nil
	}

	if job.SpreadsheetFile == nil {
		return nil, fmt.Errorf("run %s has no spreadsheet snapshot", job.RunID)
	}
	data, err := c.store.Get(ctx, job.SpreadsheetFile.S3ObjectKey)
	if err != nil {
		return nil, fmt.Errorf("fetch spreadsheet for run %s: %w", job.RunID, err)
	}
	sheet, err := spreadsheet.Load(data)
	if err != nil {
		return nil, fmt.Errorf("parse spreadsheet for run %s: %w", job.RunID, err)
	}
	return sheet.Rows, nil
}
