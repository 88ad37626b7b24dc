package api

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/aws-educate-tw/tpet-pipeline/internal/auth"
	"github.com/aws-educate-tw/tpet-pipeline/internal/domain"
	"github.com/aws-educate-tw/tpet-pipeline/internal/pipeline"
	"github.com/aws-educate-tw/tpet-pipeline/internal/pkg/httputil"
	"github.com/aws-educate-tw/tpet-pipeline/internal/queue"
	"github.com/aws-educate-tw/tpet-pipeline/internal/repository/dynamo"
	"github.com/aws-educate-tw/tpet-pipeline/internal/service/email"
	"github.com/aws-educate-tw/tpet-pipeline/internal/service/run"
)

var webhookEmailPattern = regexp.MustCompile(`^[^@]+@[^@]+\.[^@]+$`)

// runView decorates a run with its derived failure count for responses.
type runView struct {
	domain.Run
	FailedEmailCount int `json:"failed_email_count"`
}

func newRunView(r domain.Run) runView {
	return runView{Run: r, FailedEmailCount: r.FailedEmailCount()}
}

// handleSendEmail accepts a send request, validates it synchronously, and
// queues the work. Responds 202 with the run id on success.
//
//	POST /send-email
func (s *Server) handleSendEmail(w http.ResponseWriter, r *http.Request) {
	var req pipeline.SendRequest
	if !httputil.Decode(w, r, &req) {
		return
	}

	acc, err := s.validator.Validate(r.Context(), &req, auth.TokenFromContext(r.Context()))
	if err != nil {
		if pipeline.IsValidationError(err) {
			httputil.BadRequest(w, err.Error())
			return
		}
		httputil.InternalError(w, err)
		return
	}

	httputil.Accepted(w, acc)
}

// handleListRuns lists runs newest first.
//
//	GET /runs?page=&limit=&run_type=
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	p := ParsePagination(r, 10, 100)

	runs, total, err := s.runs.List(r.Context(), run.ListFilter{
		RunType: r.URL.Query().Get("run_type"),
		Limit:   p.Limit,
		Offset:  p.Offset,
	})
	if err != nil {
		httputil.InternalError(w, err)
		return
	}

	views := make([]runView, 0, len(runs))
	for _, item := range runs {
		views = append(views, newRunView(item))
	}
	httputil.OK(w, NewPaginatedResponse(views, p, total))
}

// handleGetRun returns one run with its derived failed count.
//
//	GET /runs/{run_id}
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")

	got, err := s.runs.Get(r.Context(), runID)
	if err != nil {
		if errors.Is(err, run.ErrNotFound) {
			httputil.NotFound(w, fmt.Sprintf("run %s not found", runID))
			return
		}
		httputil.InternalError(w, err)
		return
	}

	httputil.OK(w, newRunView(*got))
}

// handleListRunEmails lists a run's email items.
//
//	GET /runs/{run_id}/emails?page=&limit=&status=
func (s *Server) handleListRunEmails(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")
	p := ParsePagination(r, 10, 100)

	status := strings.ToUpper(r.URL.Query().Get("status"))
	items, total, err := s.emails.ListByRun(r.Context(), runID, email.ListFilter{
		Status: status,
		Limit:  p.Limit,
		Offset: p.Offset,
	})
	if err != nil {
		httputil.InternalError(w, err)
		return
	}

	httputil.OK(w, NewPaginatedResponse(items, p, total))
}

// handleGetRunEmail returns a single email item.
//
//	GET /runs/{run_id}/emails/{email_id}
func (s *Server) handleGetRunEmail(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")
	emailID := chi.URLParam(r, "email_id")

	item, err := s.emails.Get(r.Context(), runID, emailID)
	if err != nil {
		if errors.Is(err, email.ErrNotFound) {
			httputil.NotFound(w, fmt.Sprintf("email %s not found in run %s", emailID, runID))
			return
		}
		httputil.InternalError(w, err)
		return
	}

	httputil.OK(w, item)
}

// createWebhookRequest is the payload for registering a webhook definition.
type createWebhookRequest struct {
	WebhookType           string   `json:"webhook_type"`
	Subject               string   `json:"subject"`
	DisplayName           string   `json:"display_name,omitempty"`
	ReplyTo               string   `json:"reply_to,omitempty"`
	SenderLocalPart       string   `json:"sender_local_part,omitempty"`
	TemplateFileID        string   `json:"template_file_id"`
	AttachmentFileIDs     []string `json:"attachment_file_ids,omitempty"`
	IsGenerateCertificate bool     `json:"is_generate_certificate,omitempty"`
}

// handleCreateWebhook registers a webhook definition and provisions the
// WEBHOOK-type run every future trigger appends to.
//
//	POST /webhooks
func (s *Server) handleCreateWebhook(w http.ResponseWriter, r *http.Request) {
	var req createWebhookRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.Subject == "" {
		httputil.BadRequest(w, "subject is required")
		return
	}
	if req.TemplateFileID == "" {
		httputil.BadRequest(w, "template_file_id is required")
		return
	}

	def := &domain.WebhookDefinition{
		WebhookID:             newID(),
		WebhookType:           req.WebhookType,
		RunID:                 newID(),
		Subject:               req.Subject,
		DisplayName:           req.DisplayName,
		ReplyTo:               req.ReplyTo,
		SenderLocalPart:       req.SenderLocalPart,
		TemplateFileID:        req.TemplateFileID,
		AttachmentFileIDs:     req.AttachmentFileIDs,
		IsGenerateCertificate: req.IsGenerateCertificate,
		CreatedAt:             time.Now().UTC().Format(time.RFC3339),
	}

	if err := s.runs.ProvisionWebhookRun(r.Context(), &domain.Run{
		RunID:           def.RunID,
		Subject:         def.Subject,
		DisplayName:     def.DisplayName,
		ReplyTo:         def.ReplyTo,
		SenderLocalPart: def.SenderLocalPart,
		TemplateFileID:  def.TemplateFileID,
	}); err != nil {
		httputil.InternalError(w, err)
		return
	}
	if err := s.webhooks.Put(r.Context(), def); err != nil {
		httputil.InternalError(w, err)
		return
	}

	s.log.Info("webhook registered", "webhook_id", def.WebhookID, "run_id", def.RunID)
	httputil.Created(w, def)
}

// handleListWebhooks returns every registered webhook definition.
//
//	GET /webhooks
func (s *Server) handleListWebhooks(w http.ResponseWriter, r *http.Request) {
	defs, err := s.webhooks.List(r.Context())
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{"data": defs})
}

// handleUpdateWebhook rewrites the mutable fields of a definition. The
// webhook id, its bound run and the creation stamp never change; triggers
// in flight keep appending to the same run.
//
//	PUT /webhooks/{webhook_id}
func (s *Server) handleUpdateWebhook(w http.ResponseWriter, r *http.Request) {
	webhookID := chi.URLParam(r, "webhook_id")

	def, err := s.webhooks.Get(r.Context(), webhookID)
	if err != nil {
		if errors.Is(err, dynamo.ErrWebhookNotFound) {
			httputil.NotFound(w, fmt.Sprintf("webhook %s not found", webhookID))
			return
		}
		httputil.InternalError(w, err)
		return
	}

	var req createWebhookRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.Subject != "" {
		def.Subject = req.Subject
	}
	if req.WebhookType != "" {
		def.WebhookType = req.WebhookType
	}
	if req.DisplayName != "" {
		def.DisplayName = req.DisplayName
	}
	if req.ReplyTo != "" {
		def.ReplyTo = req.ReplyTo
	}
	if req.SenderLocalPart != "" {
		def.SenderLocalPart = req.SenderLocalPart
	}
	if req.TemplateFileID != "" {
		def.TemplateFileID = req.TemplateFileID
	}
	if req.AttachmentFileIDs != nil {
		def.AttachmentFileIDs = req.AttachmentFileIDs
	}

	if err := s.webhooks.Put(r.Context(), def); err != nil {
		httputil.InternalError(w, err)
		return
	}

	s.log.Info("webhook updated", "webhook_id", webhookID)
	httputil.OK(w, def)
}

// handleGetWebhook returns one webhook definition.
//
//	GET /webhooks/{webhook_id}
func (s *Server) handleGetWebhook(w http.ResponseWriter, r *http.Request) {
	webhookID := chi.URLParam(r, "webhook_id")

	def, err := s.webhooks.Get(r.Context(), webhookID)
	if err != nil {
		if errors.Is(err, dynamo.ErrWebhookNotFound) {
			httputil.NotFound(w, fmt.Sprintf("webhook %s not found", webhookID))
			return
		}
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, def)
}

// triggerWebhookRequest carries the recipients an external system wants the
// pre-registered webhook to mail.
type triggerWebhookRequest struct {
	Recipients []domain.Recipient `json:"recipients"`
}

// handleTriggerWebhook resolves the definition and enqueues a WEBHOOK-type
// job onto the validated queue. The run itself was provisioned when the
// webhook was registered, so the downstream guard accepts the upsert.
//
//	POST /webhooks/{webhook_id}/trigger
func (s *Server) handleTriggerWebhook(w http.ResponseWriter, r *http.Request) {
	webhookID := chi.URLParam(r, "webhook_id")

	def, err := s.webhooks.Get(r.Context(), webhookID)
	if err != nil {
		if errors.Is(err, dynamo.ErrWebhookNotFound) {
			httputil.NotFound(w, fmt.Sprintf("webhook %s not found", webhookID))
			return
		}
		httputil.InternalError(w, err)
		return
	}

	var req triggerWebhookRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if len(req.Recipients) == 0 {
		httputil.BadRequest(w, "recipients must be non-empty")
		return
	}
	for i, rcpt := range req.Recipients {
		if !webhookEmailPattern.MatchString(rcpt.Email) {
			httputil.BadRequest(w, fmt.Sprintf("recipient %d has an invalid email address %q", i+1, rcpt.Email))
			return
		}
	}

	job := domain.ValidatedJob{
		RunID:                 def.RunID,
		RunType:               domain.RunTypeWebhook,
		RecipientSource:       domain.RecipientSourceDirect,
		Subject:               def.Subject,
		DisplayName:           def.DisplayName,
		ReplyTo:               def.ReplyTo,
		SenderLocalPart:       def.SenderLocalPart,
		TemplateFileID:        def.TemplateFileID,
		AttachmentFileIDs:     def.AttachmentFileIDs,
		Recipients:            req.Recipients,
		IsGenerateCertificate: def.IsGenerateCertificate,
	}
	if _, err := queue.SendJSON(r.Context(), s.validatedQ, job); err != nil {
		httputil.InternalError(w, fmt.Errorf("enqueue webhook job %s: %w", def.RunID, err))
		return
	}

	s.log.Info("webhook triggered", "webhook_id", webhookID, "run_id", def.RunID,
		"recipients", len(req.Recipients))
	httputil.Accepted(w, map[string]interface{}{
		"run_id":                    def.RunID,
		"expected_email_send_count": len(req.Recipients),
	})
}

func newID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
