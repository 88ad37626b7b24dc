package domain

import "time"

// RunType distinguishes how a run was initiated.
type RunType string

const (
	RunTypeEmail   RunType = "EMAIL"
	RunTypeWebhook RunType = "WEBHOOK"
)

// RecipientSource identifies where a run's recipient rows come from.
type RecipientSource string

const (
	RecipientSourceDirect      RecipientSource = "DIRECT"
	RecipientSourceSpreadsheet RecipientSource = "SPREADSHEET"
)

// Sender is the identity snapshot of the authenticated caller who created
// a run, captured once at creation time.
type Sender struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Recipient is one inline DIRECT-mode recipient with its template bindings.
type Recipient struct {
	Email             string            `json:"email"`
	TemplateVariables map[string]string `json:"template_variables"`
}

// Run is one bulk-send job. The file snapshots and the sender snapshot are
// captured when the run is upserted and never re-resolved afterwards.
type Run struct {
	RunID           string          `json:"run_id" db:"run_id"`
	RunType         RunType         `json:"run_type" db:"run_type"`
	RecipientSource RecipientSource `json:"recipient_source" db:"recipient_source"`

	Subject         string   `json:"subject" db:"subject"`
	DisplayName     string   `json:"display_name" db:"display_name"`
	ReplyTo         string   `json:"reply_to" db:"reply_to"`
	SenderLocalPart string   `json:"sender_local_part" db:"sender_local_part"`
	CC              []string `json:"cc" db:"cc"`
	BCC             []string `json:"bcc" db:"bcc"`

	TemplateFileID    string   `json:"template_file_id" db:"template_file_id"`
	SpreadsheetFileID string   `json:"spreadsheet_file_id" db:"spreadsheet_file_id"`
	AttachmentFileIDs []string `json:"attachment_file_ids" db:"attachment_file_ids"`

	// Resolved metadata snapshots, immutable after creation.
	TemplateFile    *FileRef  `json:"template_file,omitempty" db:"template_file"`
	SpreadsheetFile *FileRef  `json:"spreadsheet_file,omitempty" db:"spreadsheet_file"`
	AttachmentFiles []FileRef `json:"attachment_files,omitempty" db:"attachment_files"`

	// DIRECT mode only; empty for SPREADSHEET runs.
	Recipients []Recipient `json:"recipients,omitempty" db:"recipients"`

	ExpectedEmailSendCount int `json:"expected_email_send_count" db:"expected_email_send_count"`
	SuccessEmailCount      int `json:"success_email_count" db:"success_email_count"`

	IsGenerateCertificate bool `json:"is_generate_certificate" db:"is_generate_certificate"`

	SenderID string  `json:"sender_id" db:"sender_id"`
	Sender   *Sender `json:"sender,omitempty" db:"sender"`

	CreatedAt           time.Time `json:"created_at" db:"created_at"`
	CreatedYear         string    `json:"created_year" db:"created_year"`
	CreatedYearMonth    string    `json:"created_year_month" db:"created_year_month"`
	CreatedYearMonthDay string    `json:"created_year_month_day" db:"created_year_month_day"`
}

// FailedEmailCount is derived, never stored: expected minus success.
func (r *Run) FailedEmailCount() int {
	return r.ExpectedEmailSendCount - r.SuccessEmailCount
}

// StampCreated sets created_at and the derived date partition fields.
func (r *Run) StampCreated(now time.Time) {
	now = now.UTC()
	r.CreatedAt = now
	r.CreatedYear = now.Format("2006")
	r.CreatedYearMonth = now.Format("2006-01")
	r.CreatedYearMonthDay = now.Format("2006-01-02")
}
