package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aws-educate-tw/tpet-pipeline/internal/domain"
	"github.com/aws-educate-tw/tpet-pipeline/internal/service/run"
)

// RunRepo implements run.Repository against PostgreSQL.
type RunRepo struct{ db *sql.DB }

// NewRunRepo creates a Postgres-backed run repository.
func NewRunRepo(db *sql.DB) *RunRepo { return &RunRepo{db: db} }

const runColumns = `
	run_id, run_type, recipient_source, subject, display_name,
	COALESCE(reply_to,''), COALESCE(sender_local_part,''),
	cc, bcc, template_file_id, COALESCE(spreadsheet_file_id,''),
	attachment_file_ids, template_file, spreadsheet_file, attachment_files,
	recipients, expected_email_send_count, success_email_count,
	is_generate_certificate, COALESCE(sender_id,''), sender,
	created_at, created_year, created_year_month, created_year_month_day`

func scanRun(scan func(dest ...any) error) (*domain.Run, error) {
	r := &domain.Run{}
	err := scan(
		&r.RunID, &r.RunType, &r.RecipientSource, &r.Subject, &r.DisplayName,
		&r.ReplyTo, &r.SenderLocalPart,
		asJSONB(&r.CC), asJSONB(&r.BCC), &r.TemplateFileID, &r.SpreadsheetFileID,
		asJSONB(&r.AttachmentFileIDs), asJSONB(&r.TemplateFile), asJSONB(&r.SpreadsheetFile),
		asJSONB(&r.AttachmentFiles), asJSONB(&r.Recipients),
		&r.ExpectedEmailSendCount, &r.SuccessEmailCount,
		&r.IsGenerateCertificate, &r.SenderID, asJSONB(&r.Sender),
		&r.CreatedAt, &r.CreatedYear, &r.CreatedYearMonth, &r.CreatedYearMonthDay,
	)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (r *RunRepo) Get(ctx context.Context, runID string) (*domain.Run, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE run_id = $1`, runID)
	out, err := scanRun(row.Scan)
	if err == sql.ErrNoRows {
		return nil, run.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return out, nil
}

func (r *RunRepo) List(ctx context.Context, f run.ListFilter) ([]domain.Run, int, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 10
	}

	countQ := `SELECT COUNT(*) FROM runs WHERE 1=1`
	args := []interface{}{}
	idx := 1
	if f.RunType != "" {
		countQ += fmt.Sprintf(" AND run_type = $%d", idx)
		args = append(args, f.RunType)
		idx++
	}

	var total int
	if err := r.db.QueryRowContext(ctx, countQ, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count runs: %w", err)
	}

	q := `SELECT ` + runColumns + ` FROM runs WHERE 1=1`
	qArgs := []interface{}{}
	qIdx := 1
	if f.RunType != "" {
		q += fmt.Sprintf(" AND run_type = $%d", qIdx)
		qArgs = append(qArgs, f.RunType)
		qIdx++
	}
	q += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", qIdx, qIdx+1)
	qArgs = append(qArgs, limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, q, qArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []domain.Run
	for rows.Next() {
		item, err := scanRun(rows.Scan)
		if err != nil {
			return nil, 0, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, *item)
	}
	return out, total, rows.Err()
}

// Upsert inserts the run, or on run_id conflict refreshes the mutable
// fields. created_at, the date partitions, expected_email_send_count and
// success_email_count are fixed at first insert so a redelivered upsert
// message cannot rewrite history or reset counters.
func (r *RunRepo) Upsert(ctx context.Context, rn *domain.Run) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO runs
			(run_id, run_type, recipient_source, subject, display_name,
			 reply_to, sender_local_part, cc, bcc,
			 template_file_id, spreadsheet_file_id, attachment_file_ids,
			 template_file, spreadsheet_file, attachment_files, recipients,
			 expected_email_send_count, success_email_count,
			 is_generate_certificate, sender_id, sender,
			 created_at, created_year, created_year_month, created_year_month_day)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
		        $13, $14, $15, $16, $17, 0, $18, $19, $20, $21, $22, $23, $24)
		ON CONFLICT (run_id) DO UPDATE SET
			run_type = EXCLUDED.run_type,
			recipient_source = EXCLUDED.recipient_source,
			subject = EXCLUDED.subject,
			display_name = EXCLUDED.display_name,
			reply_to = EXCLUDED.reply_to,
			sender_local_part = EXCLUDED.sender_local_part,
			cc = EXCLUDED.cc,
			bcc = EXCLUDED.bcc,
			template_file_id = EXCLUDED.template_file_id,
			spreadsheet_file_id = EXCLUDED.spreadsheet_file_id,
			attachment_file_ids = EXCLUDED.attachment_file_ids,
			template_file = EXCLUDED.template_file,
			spreadsheet_file = EXCLUDED.spreadsheet_file,
			attachment_files = EXCLUDED.attachment_files,
			recipients = EXCLUDED.recipients,
			is_generate_certificate = EXCLUDED.is_generate_certificate,
			sender_id = EXCLUDED.sender_id,
			sender = EXCLUDED.sender
	`, rn.RunID, rn.RunType, rn.RecipientSource, rn.Subject, rn.DisplayName,
		rn.ReplyTo, rn.SenderLocalPart, asJSONB(rn.CC), asJSONB(rn.BCC),
		rn.TemplateFileID, rn.SpreadsheetFileID, asJSONB(rn.AttachmentFileIDs),
		asJSONB(rn.TemplateFile), asJSONB(rn.SpreadsheetFile), asJSONB(rn.AttachmentFiles),
		asJSONB(rn.Recipients), rn.ExpectedEmailSendCount,
		rn.IsGenerateCertificate, rn.SenderID, asJSONB(rn.Sender),
		rn.CreatedAt, rn.CreatedYear, rn.CreatedYearMonth, rn.CreatedYearMonthDay)
	if err != nil {
		return fmt.Errorf("upsert run: %w", err)
	}
	return nil
}

// IncrementSuccessCount bumps the counter in a single UPDATE so concurrent
// senders never lose updates.
func (r *RunRepo) IncrementSuccessCount(ctx context.Context, runID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE runs SET success_email_count = success_email_count + 1
		WHERE run_id = $1
	`, runID)
	if err != nil {
		return fmt.Errorf("increment success count: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return run.ErrNotFound
	}
	return nil
}

// IncrementExpectedCount grows the expected total in a single UPDATE.
// Webhook triggers append recipients to an already-provisioned run.
func (r *RunRepo) IncrementExpectedCount(ctx context.Context, runID string, delta int) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE runs SET expected_email_send_count = expected_email_send_count + $2
		WHERE run_id = $1
	`, runID, delta)
	if err != nil {
		return fmt.Errorf("increment expected count: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return run.ErrNotFound
	}
	return nil
}

// Ping verifies the backing database answers queries. The auto-resume
// guard's health endpoint sits on top of this.
func (r *RunRepo) Ping(ctx context.Context) error {
	var one int
	if err := r.db.QueryRowContext(ctx, `SELECT 1`).Scan(&one); err != nil {
		return fmt.Errorf("ping runs store: %w", err)
	}
	return nil
}
