package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aws-educate-tw/tpet-pipeline/internal/domain"
)

func senderFixture(transport *fakeTransport, certs CertGenerator) (*Sender, *memRuns, *memItems) {
	files := &fakeFiles{
		infos: map[string]*domain.FileRef{
			"tpl-1": {FileID: "tpl-1", S3ObjectKey: "templates/t.html"},
			"att-1": {FileID: "att-1", FileName: "agenda.pdf", FileURL: "https://files/agenda.pdf"},
			"att-broken": {FileID: "att-broken", FileName: "broken.pdf", FileURL: "https://files/broken.pdf"},
		},
		downloads: map[string][]byte{
			"https://files/agenda.pdf": []byte("agenda bytes"),
		},
	}
	objects := &fakeObjects{objects: map[string][]byte{
		"templates/t.html": []byte("Hello {{Name}}, see {{Missing}}\r\n"),
	}}
	runs := newMemRuns()
	items := newMemItems()
	return NewSender(files, objects, items, runs, transport, certs), runs, items
}

func itemJobBody(t *testing.T, job domain.EmailItemJob) string {
	t.Helper()
	data, err := json.Marshal(job)
	require.NoError(t, err)
	return string(data)
}

func seedItem(t *testing.T, runs *memRuns, items *memItems, runID, emailID, email string, vars map[string]string) domain.EmailItemJob {
	t.Helper()
	ctx := context.Background()
	if _, err := runs.Get(ctx, runID); err != nil {
		require.NoError(t, runs.Upsert(ctx, &domain.Run{RunID: runID, ExpectedEmailSendCount: 1}))
	}
	require.NoError(t, items.CreatePending(ctx, &domain.EmailItem{
		RunID: runID, EmailID: emailID, RecipientEmail: email, RowData: vars,
	}))
	return domain.EmailItemJob{
		RunID:           runID,
		EmailID:         emailID,
		RecipientEmail:  email,
		RowData:         vars,
		Subject:         "Welcome",
		DisplayName:     "AWS Educate",
		SenderLocalPart: "cloudambassador",
		TemplateFileID:  "tpl-1",
	}
}

func TestSenderSuccess(t *testing.T) {
	transport := &fakeTransport{}
	s, runs, items := senderFixture(transport, nil)

	job := seedItem(t, runs, items, "run-1", "em-1", "a@x.com", map[string]string{"Name": "Ann"})
	require.NoError(t, s.Handle(context.Background(), itemJobBody(t, job)))

	require.Equal(t, 1, transport.sentCount())
	msg := transport.sent[0]
	// Rendered with pass-through for the unbound placeholder.
	assert.Contains(t, msg.Body, "Hello Ann")
	assert.Contains(t, msg.Body, "{{Missing}}")
	assert.NotContains(t, msg.Body, "\r")
	assert.Equal(t, "cloudambassador@"+SenderEmailDomain, msg.FromEmail)

	assert.Len(t, items.byStatus("run-1", domain.EmailSuccess), 1)
	r, _ := runs.Get(context.Background(), "run-1")
	assert.Equal(t, 1, r.SuccessEmailCount)
	assert.Equal(t, 0, r.FailedEmailCount())
}

func TestSenderInvalidRecipientFailsWithoutTransportCall(t *testing.T) {
	transport := &fakeTransport{}
	s, runs, items := senderFixture(transport, nil)

	job := seedItem(t, runs, items, "run-1", "em-1", "not-an-address", nil)
	require.NoError(t, s.Handle(context.Background(), itemJobBody(t, job)))

	assert.Equal(t, 0, transport.sentCount())
	assert.Len(t, items.byStatus("run-1", domain.EmailFailed), 1)
	r, _ := runs.Get(context.Background(), "run-1")
	assert.Equal(t, 0, r.SuccessEmailCount)
}

func TestSenderTransportFailureIsolatedPerItem(t *testing.T) {
	transport := &fakeTransport{failFor: map[string]bool{"c@x.com": true}}
	s, runs, items := senderFixture(transport, nil)

	ctx := context.Background()
	require.NoError(t, runs.Upsert(ctx, &domain.Run{RunID: "run-5", ExpectedEmailSendCount: 5}))
	for i := 1; i <= 5; i++ {
		addr := fmt.Sprintf("%c@x.com", 'a'+i-1)
		job := seedItem(t, runs, items, "run-5", fmt.Sprintf("em-%d", i), addr,
			map[string]string{"Name": "R"})
		require.NoError(t, s.Handle(ctx, itemJobBody(t, job)))
	}

	assert.Len(t, items.byStatus("run-5", domain.EmailSuccess), 4)
	assert.Len(t, items.byStatus("run-5", domain.EmailFailed), 1)
	r, _ := runs.Get(ctx, "run-5")
	assert.Equal(t, 4, r.SuccessEmailCount)
	assert.Equal(t, 1, r.FailedEmailCount())
}

func TestSenderBrokenAttachmentIsSkippedNotFatal(t *testing.T) {
	transport := &fakeTransport{}
	s, runs, items := senderFixture(transport, nil)

	job := seedItem(t, runs, items, "run-1", "em-1", "a@x.com", map[string]string{"Name": "Ann"})
	job.AttachmentFileIDs = []string{"att-1", "att-broken"}
	require.NoError(t, s.Handle(context.Background(), itemJobBody(t, job)))

	require.Equal(t, 1, transport.sentCount())
	// Only the healthy attachment made it.
	require.Len(t, transport.sent[0].Attachments, 1)
	assert.Equal(t, "agenda.pdf", transport.sent[0].Attachments[0].FileName)
	assert.Len(t, items.byStatus("run-1", domain.EmailSuccess), 1)
}

func TestSenderCertificateFailureFailsItem(t *testing.T) {
	transport := &fakeTransport{}
	s, runs, items := senderFixture(transport, &fakeCerts{err: fmt.Errorf("template corrupt")})

	job := seedItem(t, runs, items, "run-1", "em-1", "a@x.com",
		map[string]string{"Name": "Ann", "Certificate Text": "Completed the program"})
	job.IsGenerateCertificate = true
	require.NoError(t, s.Handle(context.Background(), itemJobBody(t, job)))

	assert.Equal(t, 0, transport.sentCount())
	assert.Len(t, items.byStatus("run-1", domain.EmailFailed), 1)
}

func TestSenderCertificateAttached(t *testing.T) {
	transport := &fakeTransport{}
	s, runs, items := senderFixture(transport, &fakeCerts{})

	job := seedItem(t, runs, items, "run-1", "em-1", "a@x.com",
		map[string]string{"Name": "Ann", "Certificate Text": "Completed the program"})
	job.IsGenerateCertificate = true
	require.NoError(t, s.Handle(context.Background(), itemJobBody(t, job)))

	require.Equal(t, 1, transport.sentCount())
	require.Len(t, transport.sent[0].Attachments, 1)
	assert.Equal(t, "Ann_certificate.pdf", transport.sent[0].Attachments[0].FileName)
	assert.Len(t, items.byStatus("run-1", domain.EmailSuccess), 1)
}

func TestSenderRedeliveryAfterFailureIsStable(t *testing.T) {
	transport := &fakeTransport{failFor: map[string]bool{"a@x.com": true}}
	s, runs, items := senderFixture(transport, nil)

	job := seedItem(t, runs, items, "run-1", "em-1", "a@x.com", nil)
	body := itemJobBody(t, job)
	require.NoError(t, s.Handle(context.Background(), body))
	require.NoError(t, s.Handle(context.Background(), body))

	// Re-marking FAILED as FAILED is a no-op; the counter never moved.
	assert.Len(t, items.byStatus("run-1", domain.EmailFailed), 1)
	r, _ := runs.Get(context.Background(), "run-1")
	assert.Equal(t, 0, r.SuccessEmailCount)
}

func TestSenderRedeliveredSuccessDoesNotDoubleCount(t *testing.T) {
	transport := &fakeTransport{}
	s, runs, items := senderFixture(transport, nil)

	job := seedItem(t, runs, items, "run-1", "em-1", "a@x.com", map[string]string{"Name": "Ann"})
	body := itemJobBody(t, job)
	require.NoError(t, s.Handle(context.Background(), body))
	require.NoError(t, s.Handle(context.Background(), body))

	// The item was already SUCCESS on the second delivery, so the counter
	// only moved once.
	assert.Len(t, items.byStatus("run-1", domain.EmailSuccess), 1)
	r, _ := runs.Get(context.Background(), "run-1")
	assert.Equal(t, 1, r.SuccessEmailCount)
	assert.Equal(t, 0, r.FailedEmailCount())
}
