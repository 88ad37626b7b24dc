package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aws-educate-tw/tpet-pipeline/internal/domain"
	"github.com/aws-educate-tw/tpet-pipeline/internal/service/email"
)

// EmailRepo implements email.Repository against PostgreSQL.
type EmailRepo struct{ db *sql.DB }

// NewEmailRepo creates a Postgres-backed email item repository.
func NewEmailRepo(db *sql.DB) *EmailRepo { return &EmailRepo{db: db} }

const emailColumns = `
	run_id, email_id, recipient_email, row_data, subject, display_name,
	COALESCE(reply_to,''), COALESCE(sender_local_part,''), cc, bcc,
	template_file_id, COALESCE(spreadsheet_file_id,''), attachment_file_ids,
	is_generate_certificate, status, created_at, sent_at, updated_at`

func scanEmail(scan func(dest ...any) error) (*domain.EmailItem, error) {
	e := &domain.EmailItem{}
	err := scan(
		&e.RunID, &e.EmailID, &e.RecipientEmail, asJSONB(&e.RowData),
		&e.Subject, &e.DisplayName, &e.ReplyTo, &e.SenderLocalPart,
		asJSONB(&e.CC), asJSONB(&e.BCC),
		&e.TemplateFileID, &e.SpreadsheetFileID, asJSONB(&e.AttachmentFileIDs),
		&e.IsGenerateCertificate, &e.Status, &e.CreatedAt, &e.SentAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (r *EmailRepo) Get(ctx context.Context, runID, emailID string) (*domain.EmailItem, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+emailColumns+` FROM emails WHERE run_id = $1 AND email_id = $2`,
		runID, emailID)
	out, err := scanEmail(row.Scan)
	if err == sql.ErrNoRows {
		return nil, email.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get email item: %w", err)
	}
	return out, nil
}

func (r *EmailRepo) ListByRun(ctx context.Context, runID string, f email.ListFilter) ([]domain.EmailItem, int, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 10
	}

	countQ := `SELECT COUNT(*) FROM emails WHERE run_id = $1`
	args := []interface{}{runID}
	idx := 2
	if f.Status != "" {
		countQ += fmt.Sprintf(" AND status = $%d", idx)
		args = append(args, f.Status)
		idx++
	}

	var total int
	if err := r.db.QueryRowContext(ctx, countQ, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count email items: %w", err)
	}

	q := `SELECT ` + emailColumns + ` FROM emails WHERE run_id = $1`
	qArgs := []interface{}{runID}
	qIdx := 2
	if f.Status != "" {
		q += fmt.Sprintf(" AND status = $%d", qIdx)
		qArgs = append(qArgs, f.Status)
		qIdx++
	}
	q += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", qIdx, qIdx+1)
	qArgs = append(qArgs, limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, q, qArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("list email items: %w", err)
	}
	defer rows.Close()

	var out []domain.EmailItem
	for rows.Next() {
		item, err := scanEmail(rows.Scan)
		if err != nil {
			return nil, 0, fmt.Errorf("scan email item: %w", err)
		}
		out = append(out, *item)
	}
	return out, total, rows.Err()
}

func (r *EmailRepo) CountByRun(ctx context.Context, runID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM emails WHERE run_id = $1`, runID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count email items: %w", err)
	}
	return n, nil
}

func (r *EmailRepo) Upsert(ctx context.Context, e *domain.EmailItem) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO emails
			(run_id, email_id, recipient_email, row_data, subject, display_name,
			 reply_to, sender_local_part, cc, bcc,
			 template_file_id, spreadsheet_file_id, attachment_file_ids,
			 is_generate_certificate, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (run_id, email_id) DO UPDATE SET
			recipient_email = EXCLUDED.recipient_email,
			row_data = EXCLUDED.row_data,
			subject = EXCLUDED.subject,
			display_name = EXCLUDED.display_name,
			reply_to = EXCLUDED.reply_to,
			sender_local_part = EXCLUDED.sender_local_part,
			cc = EXCLUDED.cc,
			bcc = EXCLUDED.bcc,
			template_file_id = EXCLUDED.template_file_id,
			spreadsheet_file_id = EXCLUDED.spreadsheet_file_id,
			attachment_file_ids = EXCLUDED.attachment_file_ids,
			is_generate_certificate = EXCLUDED.is_generate_certificate,
			status = EXCLUDED.status
	`, e.RunID, e.EmailID, e.RecipientEmail, asJSONB(e.RowData), e.Subject, e.DisplayName,
		e.ReplyTo, e.SenderLocalPart, asJSONB(e.CC), asJSONB(e.BCC),
		e.TemplateFileID, e.SpreadsheetFileID, asJSONB(e.AttachmentFileIDs),
		e.IsGenerateCertificate, e.Status, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert email item: %w", err)
	}
	return nil
}

func (r *EmailRepo) UpdateStatus(ctx context.Context, runID, emailID string, status domain.EmailStatus, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE emails SET status = $1, sent_at = $2, updated_at = $2
		WHERE run_id = $3 AND email_id = $4
	`, status, at, runID, emailID)
	if err != nil {
		return fmt.Errorf("update email status: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return email.ErrNotFound
	}
	return nil
}
