package pipeline

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aws-educate-tw/tpet-pipeline/internal/domain"
	"github.com/aws-educate-tw/tpet-pipeline/internal/pkg/logger"
	"github.com/aws-educate-tw/tpet-pipeline/internal/queue"
	"github.com/aws-educate-tw/tpet-pipeline/internal/spreadsheet"
	"github.com/aws-educate-tw/tpet-pipeline/internal/template"
)

var emailPattern = regexp.MustCompile(`^[^@]+@[^@]+\.[^@]+$`)

// ValidationError is a client error: the request itself is wrong and
// retrying it unchanged can never succeed.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// IsValidationError reports whether err is a request-level rejection.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// SendRequest is the inbound payload of the send-email endpoint.
type SendRequest struct {
	RunID             string             `json:"run_id,omitempty"`
	Subject           string             `json:"subject"`
	DisplayName       string             `json:"display_name,omitempty"`
	ReplyTo           string             `json:"reply_to,omitempty"`
	SenderLocalPart   string             `json:"sender_local_part,omitempty"`
	CC                []string           `json:"cc,omitempty"`
	BCC               []string           `json:"bcc,omitempty"`
	TemplateFileID    string             `json:"template_file_id"`
	SpreadsheetFileID string             `json:"spreadsheet_file_id,omitempty"`
	AttachmentFileIDs []string           `json:"attachment_file_ids,omitempty"`
	RecipientSource   string             `json:"recipient_source,omitempty"`
	Recipients        []domain.Recipient `json:"recipients,omitempty"`

	IsGenerateCertificate bool `json:"is_generate_certificate,omitempty"`
}

// RunStore is the slice of the run service the validator needs.
type RunStore interface {
	Upsert(ctx context.Context, r *domain.Run) error
}

// Validator is the pipeline's entry stage: it turns a send request into a
// persisted run plus a queued job, or rejects it with a ValidationError.
type Validator struct {
	files FileResolver
	store ObjectGetter
	runs  RunStore
	jobs  queue.Queue
	log   *logger.Scoped
}

// NewValidator wires the input validator.
func NewValidator(files FileResolver, store ObjectGetter, runs RunStore, jobs queue.Queue) *Validator {
	return &Validator{
		files: files,
		store: store,
		runs:  runs,
		jobs:  jobs,
		log:   logger.Component("validator"),
	}
}

// Accepted is the 202 payload returned for a validated request.
type Accepted struct {
	RunID                  string `json:"run_id"`
	ExpectedEmailSendCount int    `json:"expected_email_send_count"`
}

// Validate applies every rule in order, persists the run, and enqueues the
// validated job. accessToken is the caller's credential, forwarded so
// downstream stages resolve files and identity as the caller.
func (v *Validator) Validate(ctx context.Context, req *SendRequest, accessToken string) (*Accepted, error) {
	source, err := v.resolveSource(req)
	if err != nil {
		return nil, err
	}
	if err := v.checkRequired(req, source); err != nil {
		return nil, err
	}

	applyDefaults(req)

	for _, addr := range append(append([]string{}, req.CC...), req.BCC...) {
		if !emailPattern.MatchString(addr) {
			return nil, &ValidationError{Field: "cc/bcc", Message: fmt.Sprintf("invalid email address %q", addr)}
		}
	}
	if req.ReplyTo != "" && !emailPattern.MatchString(req.ReplyTo) {
		return nil, &ValidationError{Field: "reply_to", Message: fmt.Sprintf("invalid email address %q", req.ReplyTo)}
	}

	placeholders, err := v.templatePlaceholders(ctx, req.TemplateFileID, accessToken)
	if err != nil {
		return nil, err
	}

	var expected int
	switch source {
	case domain.RecipientSourceSpreadsheet:
		expected, err = v.validateSpreadsheet(ctx, req, placeholders, accessToken)
	case domain.RecipientSourceDirect:
		expected, err = v.validateDirect(req, placeholders)
	}
	if err != nil {
		return nil, err
	}

	runID := req.RunID
	if runID == "" {
		runID = strings.ReplaceAll(uuid.NewString(), "-", "")
	}

	r := &domain.Run{
		RunID:                  runID,
		RunType:                domain.RunTypeEmail,
		RecipientSource:        source,
		Subject:                req.Subject,
		DisplayName:            req.DisplayName,
		ReplyTo:                req.ReplyTo,
		SenderLocalPart:        req.SenderLocalPart,
		CC:                     req.CC,
		BCC:                    req.BCC,
		TemplateFileID:         req.TemplateFileID,
		SpreadsheetFileID:      req.SpreadsheetFileID,
		AttachmentFileIDs:      req.AttachmentFileIDs,
		Recipients:             req.Recipients,
		ExpectedEmailSendCount: expected,
		IsGenerateCertificate:  req.IsGenerateCertificate,
	}
	r.StampCreated(time.Now())

	if err := v.runs.Upsert(ctx, r); err != nil {
		return nil, fmt.Errorf("persist run %s: %w", runID, err)
	}

	job := domain.ValidatedJob{
		RunID:                 runID,
		RunType:               domain.RunTypeEmail,
		RecipientSource:       source,
		Subject:               req.Subject,
		DisplayName:           req.DisplayName,
		ReplyTo:               req.ReplyTo,
		SenderLocalPart:       req.SenderLocalPart,
		CC:                    req.CC,
		BCC:                   req.BCC,
		TemplateFileID:        req.TemplateFileID,
		SpreadsheetFileID:     req.SpreadsheetFileID,
		AttachmentFileIDs:     req.AttachmentFileIDs,
		Recipients:            req.Recipients,
		IsGenerateCertificate: req.IsGenerateCertificate,
		AccessToken:           accessToken,
	}
	msgID, err := queue.SendJSON(ctx, v.jobs, job)
	if err != nil {
		return nil, fmt.Errorf("enqueue validated job %s: %w", runID, err)
	}

	v.log.Info("request accepted", "run_id", runID, "message_id", msgID,
		"recipient_source", string(source), "expected", expected)

	return &Accepted{RunID: runID, ExpectedEmailSendCount: expected}, nil
}

func (v *Validator) resolveSource(req *SendRequest) (domain.RecipientSource, error) {
	switch req.RecipientSource {
	case string(domain.RecipientSourceDirect):
		return domain.RecipientSourceDirect, nil
	case string(domain.RecipientSourceSpreadsheet), "":
		// Spreadsheet is the historical default.
		return domain.RecipientSourceSpreadsheet, nil
	default:
		return "", &ValidationError{Field: "recipient_source",
			Message: fmt.Sprintf("must be %s or %s", domain.RecipientSourceDirect, domain.RecipientSourceSpreadsheet)}
	}
}

func (v *Validator) checkRequired(req *SendRequest, source domain.RecipientSource) error {
	if req.Subject == "" {
		return &ValidationError{Field: "subject", Message: "is required"}
	}
	if req.TemplateFileID == "" {
		return &ValidationError{Field: "template_file_id", Message: "is required"}
	}
	if source == domain.RecipientSourceSpreadsheet && req.SpreadsheetFileID == "" {
		return &ValidationError{Field: "spreadsheet_file_id", Message: "is required for SPREADSHEET mode"}
	}
	if source == domain.RecipientSourceDirect && len(req.Recipients) == 0 {
		return &ValidationError{Field: "recipients", Message: "must be non-empty for DIRECT mode"}
	}
	return nil
}

func applyDefaults(req *SendRequest) {
	if req.DisplayName == "" {
		req.DisplayName = DefaultDisplayName
	}
	if req.ReplyTo == "" {
		req.ReplyTo = DefaultReplyTo
	}
	if req.SenderLocalPart == "" {
		req.SenderLocalPart = DefaultSenderLocalPart
	}
}

func (v *Validator) templatePlaceholders(ctx context.Context, templateFileID, accessToken string) ([]string, error) {
	info, err := v.files.GetFileInfo(ctx, templateFileID, accessToken)
	if err != nil {
		return nil, fmt.Errorf("resolve template file %s: %w", templateFileID, err)
	}
	content, err := v.store.GetText(ctx, info.S3ObjectKey)
	if err != nil {
		return nil, fmt.Errorf("fetch template %s: %w", info.S3ObjectKey, err)
	}
	return template.Placeholders(content), nil
}

// validateSpreadsheet loads the workbook, checks every row's address, and
// checks every placeholder has a column. All offending rows are collected
// before failing so the caller sees the full picture at once.
func (v *Validator) validateSpreadsheet(ctx context.Context, req *SendRequest, placeholders []string, accessToken string) (int, error) {
	info, err := v.files.GetFileInfo(ctx, req.SpreadsheetFileID, accessToken)
	if err != nil {
		return 0, fmt.Errorf("resolve spreadsheet file %s: %w", req.SpreadsheetFileID, err)
	}
	data, err := v.store.Get(ctx, info.S3ObjectKey)
	if err != nil {
		return 0, fmt.Errorf("fetch spreadsheet %s: %w", info.S3ObjectKey, err)
	}
	sheet, err := spreadsheet.Load(data)
	if err != nil {
		return 0, &ValidationError{Field: "spreadsheet_file_id", Message: err.Error()}
	}
	if len(sheet.Rows) == 0 {
		return 0, &ValidationError{Field: "spreadsheet_file_id", Message: "spreadsheet has no data rows"}
	}

	var badRows []string
	for i, row := range sheet.Rows {
		if !emailPattern.MatchString(row[FieldEmail]) {
			// Row numbers are 1-based and skip the header.
			badRows = append(badRows, fmt.Sprintf("%d", i+2))
		}
	}
	if len(badRows) > 0 {
		return 0, &ValidationError{Field: FieldEmail,
			Message: "missing or invalid email address in rows " + strings.Join(badRows, ", ")}
	}

	var missing []string
	for _, p := range placeholders {
		if !sheet.HasColumn(p) {
			missing = append(missing, p)
		}
	}
	if len(missing) > 0 {
		return 0, &ValidationError{Field: "template",
			Message: "missing required columns for placeholders: " + strings.Join(missing, ", ")}
	}

	if req.IsGenerateCertificate {
		for _, col := range []string{FieldName, FieldCertificateText} {
			if !sheet.HasColumn(col) {
				return 0, &ValidationError{Field: col, Message: "column is required when generating certificates"}
			}
		}
	}

	return len(sheet.Rows), nil
}

func (v *Validator) validateDirect(req *SendRequest, placeholders []string) (int, error) {
	for i, rcpt := range req.Recipients {
		if !emailPattern.MatchString(rcpt.Email) {
			return 0, &ValidationError{Field: "recipients",
				Message: fmt.Sprintf("recipient %d has an invalid email address %q", i+1, rcpt.Email)}
		}
		for _, p := range placeholders {
			if _, ok := rcpt.TemplateVariables[p]; !ok {
				return 0, &ValidationError{Field: "recipients",
					Message: fmt.Sprintf("recipient %d is missing template variable %q", i+1, p)}
			}
		}
		if req.IsGenerateCertificate {
			for _, f := range []string{FieldName, FieldCertificateText} {
				if rcpt.TemplateVariables[f] == "" {
					return 0, &ValidationError{Field: f,
						Message: fmt.Sprintf("recipient %d is missing %q required for certificates", i+1, f)}
				}
			}
		}
	}
	return len(req.Recipients), nil
}
