package mail

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// Transport delivers one encoded message. Implementations return the
// provider's message id on success.
type Transport interface {
	Send(ctx context.Context, msg *Message) (string, error)
}

// SESAPI is the subset of the SES v2 client the transport uses.
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESTransport sends raw MIME messages through SES v2.
type SESTransport struct {
	client SESAPI
}

// NewSESTransport wraps an SES v2 client.
func NewSESTransport(client SESAPI) *SESTransport {
	return &SESTransport{client: client}
}

// Send encodes the message and dispatches it. The destination set covers
// recipient, cc and bcc; for a raw send SES takes the envelope recipients
// from the Destination field, not from the MIME headers.
func (t *SESTransport) Send(ctx context.Context, msg *Message) (string, error) {
	raw, err := msg.Encode()
	if err != nil {
		return "", fmt.Errorf("encode message: %w", err)
	}

	out, err := t.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(msg.From()),
		Destination: &types.Destination{
			ToAddresses: msg.Destinations(),
		},
		Content: &types.EmailContent{
			Raw: &types.RawMessage{Data: raw},
		},
	})
	if err != nil {
		return "", fmt.Errorf("ses send: %w", err)
	}
	return aws.ToString(out.MessageId), nil
}

// SendResult records the outcome of one delivery attempt.
type SendResult struct {
	Success   bool
	MessageID string
	Error     string
	SentAt    time.Time
}
