package domain

import "time"

// EmailStatus enumerates the lifecycle states of an email item.
// PENDING is the only non-terminal state; SUCCESS and FAILED are final.
type EmailStatus string

const (
	EmailPending EmailStatus = "PENDING"
	EmailSuccess EmailStatus = "SUCCESS"
	EmailFailed  EmailStatus = "FAILED"
)

// IsTerminal reports whether the status permits no further transition.
func (s EmailStatus) IsTerminal() bool {
	return s == EmailSuccess || s == EmailFailed
}

// EmailItem is one recipient's send attempt within a run, keyed by
// (run_id, email_id). Exactly one item exists per recipient per run.
type EmailItem struct {
	RunID   string `json:"run_id" db:"run_id"`
	EmailID string `json:"email_id" db:"email_id"`

	RecipientEmail string `json:"recipient_email" db:"recipient_email"`

	// RowData holds the recipient's template-variable bindings. Numeric
	// spreadsheet cells are normalized to exact decimal strings before
	// they land here, so persistence never introduces float drift.
	RowData map[string]string `json:"row_data" db:"row_data"`

	Subject         string `json:"subject" db:"subject"`
	DisplayName     string `json:"display_name" db:"display_name"`
	ReplyTo         string `json:"reply_to" db:"reply_to"`
	SenderLocalPart string `json:"sender_local_part" db:"sender_local_part"`

	CC  []string `json:"cc" db:"cc"`
	BCC []string `json:"bcc" db:"bcc"`

	TemplateFileID    string   `json:"template_file_id" db:"template_file_id"`
	SpreadsheetFileID string   `json:"spreadsheet_file_id" db:"spreadsheet_file_id"`
	AttachmentFileIDs []string `json:"attachment_file_ids" db:"attachment_file_ids"`

	IsGenerateCertificate bool `json:"is_generate_certificate" db:"is_generate_certificate"`

	Status EmailStatus `json:"status" db:"status"`

	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	SentAt    *time.Time `json:"sent_at,omitempty" db:"sent_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty" db:"updated_at"`
}
