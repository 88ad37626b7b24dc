package mail

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageFrom(t *testing.T) {
	m := &Message{FromName: "AWS Educate", FromEmail: "cloudambassador@aws-educate.tw"}
	assert.Equal(t, "AWS Educate <cloudambassador@aws-educate.tw>", m.From())
}

func TestMessageFromNoName(t *testing.T) {
	m := &Message{FromEmail: "cloudambassador@aws-educate.tw"}
	assert.Equal(t, "cloudambassador@aws-educate.tw", m.From())
}

func TestMessageFromUnicodeName(t *testing.T) {
	m := &Message{FromName: "AWS Educate 雲端大使", FromEmail: "cloudambassador@aws-educate.tw"}
	assert.Contains(t, m.From(), "=?utf-8?q?")
	assert.Contains(t, m.From(), "<cloudambassador@aws-educate.tw>")
}

func TestDestinations(t *testing.T) {
	m := &Message{
		To:  "a@x.com",
		CC:  []string{"c@x.com"},
		BCC: []string{"b1@x.com", "b2@x.com"},
	}
	assert.Equal(t, []string{"a@x.com", "c@x.com", "b1@x.com", "b2@x.com"}, m.Destinations())
}

func TestEncodeStructure(t *testing.T) {
	m := &Message{
		Subject:   "Welcome",
		FromName:  "AWS Educate",
		FromEmail: "cloudambassador@aws-educate.tw",
		To:        "a@x.com",
		ReplyTo:   "reply@x.com",
		CC:        []string{"c@x.com"},
		Body:      "<p>Hello Ann</p>",
		Attachments: []Attachment{
			{FileName: "cert.pdf", Content: []byte("%PDF-1.4 fake")},
		},
	}

	raw, err := m.Encode()
	require.NoError(t, err)
	s := string(raw)

	assert.Contains(t, s, "Subject: Welcome")
	assert.Contains(t, s, "To: a@x.com")
	assert.Contains(t, s, "Reply-To: reply@x.com")
	assert.Contains(t, s, "Cc: c@x.com")
	assert.Contains(t, s, "multipart/mixed")
	assert.Contains(t, s, "multipart/alternative")
	assert.Contains(t, s, `charset="utf-8"`)
	assert.Contains(t, s, `filename="cert.pdf"`)
	// Both body renderings are present.
	assert.Equal(t, 1, strings.Count(s, "text/plain"))
	assert.Equal(t, 1, strings.Count(s, "text/html"))
}

func TestEncodeNoBccHeaderWhenEmpty(t *testing.T) {
	m := &Message{
		Subject:   "Hi",
		FromEmail: "s@x.com",
		To:        "a@x.com",
		Body:      "hello",
	}
	raw, err := m.Encode()
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "Bcc:")
	assert.NotContains(t, string(raw), "Cc:")
}
