package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws-educate-tw/tpet-pipeline/internal/certificate"
	"github.com/aws-educate-tw/tpet-pipeline/internal/domain"
	"github.com/aws-educate-tw/tpet-pipeline/internal/mail"
	"github.com/aws-educate-tw/tpet-pipeline/internal/pkg/logger"
	"github.com/aws-educate-tw/tpet-pipeline/internal/template"
)

// StatusStore is the slice of the email service the sender needs. The
// bool reports whether the transition applied; false means the item was
// already terminal.
type StatusStore interface {
	MarkSuccess(ctx context.Context, runID, emailID string) (bool, error)
	MarkFailed(ctx context.Context, runID, emailID string) (bool, error)
}

// RunCounter records one successful send against the run.
type RunCounter interface {
	RecordSuccess(ctx context.Context, runID string) error
}

// CertGenerator produces the certificate attachment for one recipient.
type CertGenerator interface {
	Generate(ctx context.Context, runID, participantName, certificateText string) (*certificate.Result, error)
}

// Sender is the terminal pipeline stage: render, attach, dispatch, and
// record the item's terminal status.
type Sender struct {
	files     FileResolver
	store     ObjectGetter
	items     StatusStore
	runs      RunCounter
	transport mail.Transport
	certs     CertGenerator
	log       *logger.Scoped
}

// NewSender wires the email sending stage. certs may be nil when
// certificate generation is disabled for the deployment.
func NewSender(files FileResolver, store ObjectGetter, items StatusStore, runs RunCounter, transport mail.Transport, certs CertGenerator) *Sender {
	return &Sender{
		files:     files,
		store:     store,
		items:     items,
		runs:      runs,
		transport: transport,
		certs:     certs,
		log:       logger.Component("email-sender"),
	}
}

// Handle processes one email-item message. The item always reaches a
// terminal status before the message is acknowledged: SUCCESS when the
// transport accepts the message, FAILED for an invalid recipient, a
// certificate failure, or a transport error. The first terminal status
// wins; a redelivered message finds the item already terminal and the
// run counter is only bumped when the SUCCESS transition actually
// applied.
func (s *Sender) Handle(ctx context.Context, body string) error {
	var job domain.EmailItemJob
	if err := json.Unmarshal([]byte(body), &job); err != nil {
		return fmt.Errorf("decode email item job: %w", err)
	}

	if !emailPattern.MatchString(job.RecipientEmail) {
		s.log.Warn("invalid recipient address", "run_id", job.RunID, "email_id", job.EmailID,
			"recipient", job.RecipientEmail)
		return s.fail(ctx, &job)
	}

	msg, err := s.buildMessage(ctx, &job)
	if err != nil {
		s.log.Error("build message failed", "run_id", job.RunID, "email_id", job.EmailID,
			"error", err.Error())
		return s.fail(ctx, &job)
	}

	messageID, err := s.transport.Send(ctx, msg)
	if err != nil {
		s.log.Error("transport send failed", "run_id", job.RunID, "email_id", job.EmailID,
			"recipient", job.RecipientEmail, "error", err.Error())
		return s.fail(ctx, &job)
	}

	applied, err := s.items.MarkSuccess(ctx, job.RunID, job.EmailID)
	if err != nil {
		return fmt.Errorf("mark item %s success: %w", job.EmailID, err)
	}
	if applied {
		if err := s.runs.RecordSuccess(ctx, job.RunID); err != nil {
			return fmt.Errorf("record success for run %s: %w", job.RunID, err)
		}
	}

	s.log.Info("email sent", "run_id", job.RunID, "email_id", job.EmailID,
		"recipient", job.RecipientEmail, "provider_message_id", messageID)
	return nil
}

func (s *Sender) fail(ctx context.Context, job *domain.EmailItemJob) error {
	if _, err := s.items.MarkFailed(ctx, job.RunID, job.EmailID); err != nil {
		return fmt.Errorf("mark item %s failed: %w", job.EmailID, err)
	}
	return nil
}

func (s *Sender) buildMessage(ctx context.Context, job *domain.EmailItemJob) (*mail.Message, error) {
	info, err := s.files.GetFileInfo(ctx, job.TemplateFileID, job.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("resolve template %s: %w", job.TemplateFileID, err)
	}
	content, err := s.store.GetText(ctx, info.S3ObjectKey)
	if err != nil {
		return nil, fmt.Errorf("fetch template %s: %w", info.S3ObjectKey, err)
	}
	content = strings.ReplaceAll(content, "\r", "")
	body := template.Render(content, job.RowData)

	msg := &mail.Message{
		Subject:   job.Subject,
		FromName:  job.DisplayName,
		FromEmail: job.SenderLocalPart + "@" + SenderEmailDomain,
		To:        job.RecipientEmail,
		ReplyTo:   job.ReplyTo,
		CC:        job.CC,
		BCC:       job.BCC,
		Body:      body,
	}

	// One broken attachment never fails the whole item.
	for _, fileID := range job.AttachmentFileIDs {
		att, err := s.fetchAttachment(ctx, fileID, job.AccessToken)
		if err != nil {
			s.log.Error("attachment skipped", "run_id", job.RunID, "email_id", job.EmailID,
				"file_id", fileID, "error", err.Error())
			continue
		}
		msg.Attachments = append(msg.Attachments, *att)
	}

	// A certificate failure is fatal for the item: sending a certificate
	// run's email without its certificate would silently break the promise
	// the run was created for.
	if job.IsGenerateCertificate {
		if s.certs == nil {
			return nil, fmt.Errorf("certificate generation requested but not configured")
		}
		res, err := s.certs.Generate(ctx, job.RunID, job.RowData[FieldName], job.RowData[FieldCertificateText])
		if err != nil {
			return nil, fmt.Errorf("generate certificate: %w", err)
		}
		msg.Attachments = append(msg.Attachments, mail.Attachment{
			FileName: res.FileName,
			Content:  res.PDF,
		})
	}

	return msg, nil
}

func (s *Sender) fetchAttachment(ctx context.Context, fileID, accessToken string) (*mail.Attachment, error) {
	info, err := s.files.GetFileInfo(ctx, fileID, accessToken)
	if err != nil {
		return nil, fmt.Errorf("resolve attachment %s: %w", fileID, err)
	}
	if info.FileURL == "" || info.FileName == "" {
		return nil, fmt.Errorf("attachment %s has incomplete metadata", fileID)
	}
	content, err := s.files.Download(ctx, info.FileURL)
	if err != nil {
		return nil, fmt.Errorf("download attachment %s: %w", fileID, err)
	}
	return &mail.Attachment{FileName: info.FileName, Content: content}, nil
}
