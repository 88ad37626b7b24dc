package domain

// The pipeline stages communicate through three queue-message schemas.
// Each stage consumes one schema and produces the next; messages are JSON
// on the wire and redelivered until acknowledged.

// ValidatedJob is emitted by the input validator after a send request
// passes all validation rules. AccessToken carries the caller's credential
// so downstream stages can resolve files and identity on the caller's
// behalf.
type ValidatedJob struct {
	RunID           string          `json:"run_id"`
	RunType         RunType         `json:"run_type"`
	RecipientSource RecipientSource `json:"recipient_source"`

	Subject         string   `json:"subject"`
	DisplayName     string   `json:"display_name"`
	ReplyTo         string   `json:"reply_to"`
	SenderLocalPart string   `json:"sender_local_part"`
	CC              []string `json:"cc,omitempty"`
	BCC             []string `json:"bcc,omitempty"`

	TemplateFileID    string   `json:"template_file_id"`
	SpreadsheetFileID string   `json:"spreadsheet_file_id,omitempty"`
	AttachmentFileIDs []string `json:"attachment_file_ids,omitempty"`

	Recipients []Recipient `json:"recipients,omitempty"`

	IsGenerateCertificate bool `json:"is_generate_certificate"`

	AccessToken string `json:"access_token"`
}

// EnrichedRunJob is the validated job after the run upserter has resolved
// file snapshots and the caller identity and persisted the run.
type EnrichedRunJob struct {
	ValidatedJob

	TemplateFile    *FileRef  `json:"template_file,omitempty"`
	SpreadsheetFile *FileRef  `json:"spreadsheet_file,omitempty"`
	AttachmentFiles []FileRef `json:"attachment_files,omitempty"`
	Sender          *Sender   `json:"sender,omitempty"`
}

// EmailItemJob is one per-recipient send instruction for the email sender.
type EmailItemJob struct {
	RunID   string `json:"run_id"`
	EmailID string `json:"email_id"`

	RecipientEmail string            `json:"recipient_email"`
	RowData        map[string]string `json:"row_data"`

	Subject         string   `json:"subject"`
	DisplayName     string   `json:"display_name"`
	ReplyTo         string   `json:"reply_to"`
	SenderLocalPart string   `json:"sender_local_part"`
	CC              []string `json:"cc,omitempty"`
	BCC             []string `json:"bcc,omitempty"`

	TemplateFileID    string   `json:"template_file_id"`
	AttachmentFileIDs []string `json:"attachment_file_ids,omitempty"`

	IsGenerateCertificate bool `json:"is_generate_certificate"`

	AccessToken string `json:"access_token"`
}
