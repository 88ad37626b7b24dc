// Package mail builds MIME messages for the pipeline and dispatches them
// through SES.
package mail

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"mime"
	"mime/multipart"
	"net/textproto"
	"strings"
)

// Attachment is one binary part of an outgoing message.
type Attachment struct {
	FileName string
	Content  []byte
}

// Message is a fully-rendered outgoing email ready to be encoded.
// The body is attached twice, as text/plain and text/html alternatives,
// inside a multipart/alternative child of the multipart/mixed parent.
type Message struct {
	Subject     string
	FromName    string
	FromEmail   string
	To          string
	ReplyTo     string
	CC          []string
	BCC         []string
	Body        string
	Attachments []Attachment
}

// From returns the formatted From header value, e.g. `Ann <ann@x.com>`.
// Display names with non-ASCII characters are RFC 2047 encoded.
func (m *Message) From() string {
	if m.FromName == "" {
		return m.FromEmail
	}
	return fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", m.FromName), m.FromEmail)
}

// Destinations returns every address the transport must deliver to:
// the recipient plus all cc and bcc addresses.
func (m *Message) Destinations() []string {
	out := make([]string, 0, 1+len(m.CC)+len(m.BCC))
	out = append(out, m.To)
	out = append(out, m.CC...)
	out = append(out, m.BCC...)
	return out
}

// Encode renders the message as raw RFC 5322 bytes.
func (m *Message) Encode() ([]byte, error) {
	var buf bytes.Buffer
	mixed := multipart.NewWriter(&buf)

	writeHeader := func(key, value string) {
		fmt.Fprintf(&buf, "%s: %s\r\n", key, value)
	}
	writeHeader("MIME-Version", "1.0")
	writeHeader("Subject", mime.QEncoding.Encode("utf-8", m.Subject))
	writeHeader("From", m.From())
	writeHeader("To", m.To)
	if m.ReplyTo != "" {
		writeHeader("Reply-To", m.ReplyTo)
	}
	if len(m.CC) > 0 {
		writeHeader("Cc", strings.Join(m.CC, ", "))
	}
	if len(m.BCC) > 0 {
		writeHeader("Bcc", strings.Join(m.BCC, ", "))
	}
	writeHeader("Content-Type", `multipart/mixed; boundary="`+mixed.Boundary()+`"`)
	buf.WriteString("\r\n")

	if err := m.writeBody(mixed); err != nil {
		return nil, err
	}

	for _, att := range m.Attachments {
		if err := writeAttachment(mixed, att); err != nil {
			return nil, err
		}
	}

	if err := mixed.Close(); err != nil {
		return nil, fmt.Errorf("close mixed part: %w", err)
	}
	return buf.Bytes(), nil
}

// writeBody adds the multipart/alternative child with plain and HTML
// renderings of the body.
func (m *Message) writeBody(mixed *multipart.Writer) error {
	var altBuf bytes.Buffer
	alt := multipart.NewWriter(&altBuf)

	for _, contentType := range []string{"text/plain", "text/html"} {
		part, err := alt.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {contentType + `; charset="utf-8"`},
			"Content-Transfer-Encoding": {"base64"},
		})
		if err != nil {
			return fmt.Errorf("create %s part: %w", contentType, err)
		}
		if err := writeBase64(part, []byte(m.Body)); err != nil {
			return err
		}
	}
	if err := alt.Close(); err != nil {
		return fmt.Errorf("close alternative part: %w", err)
	}

	body, err := mixed.CreatePart(textproto.MIMEHeader{
		"Content-Type": {`multipart/alternative; boundary="` + alt.Boundary() + `"`},
	})
	if err != nil {
		return fmt.Errorf("create alternative container: %w", err)
	}
	if _, err := body.Write(altBuf.Bytes()); err != nil {
		return fmt.Errorf("write alternative container: %w", err)
	}
	return nil
}

func writeAttachment(mixed *multipart.Writer, att Attachment) error {
	part, err := mixed.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {"application/octet-stream"},
		"Content-Transfer-Encoding": {"base64"},
		"Content-Disposition":       {fmt.Sprintf(`attachment; filename="%s"`, att.FileName)},
	})
	if err != nil {
		return fmt.Errorf("create attachment part %s: %w", att.FileName, err)
	}
	return writeBase64(part, att.Content)
}

// writeBase64 encodes data in 76-character lines per RFC 2045.
func writeBase64(w interface{ Write([]byte) (int, error) }, data []byte) error {
	encoded := base64.StdEncoding.EncodeToString(data)
	for len(encoded) > 0 {
		n := 76
		if n > len(encoded) {
			n = len(encoded)
		}
		if _, err := w.Write([]byte(encoded[:n] + "\r\n")); err != nil {
			return fmt.Errorf("write base64 chunk: %w", err)
		}
		encoded = encoded[n:]
	}
	return nil
}
