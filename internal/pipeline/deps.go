package pipeline

import (
	"context"

	"github.com/aws-educate-tw/tpet-pipeline/internal/domain"
)

// FileResolver looks up file metadata on behalf of the caller.
type FileResolver interface {
	GetFileInfo(ctx context.Context, fileID, accessToken string) (*domain.FileRef, error)
	Download(ctx context.Context, fileURL string) ([]byte, error)
}

// IdentityResolver resolves a bearer credential to the caller's identity.
type IdentityResolver interface {
	Me(ctx context.Context, accessToken string) (*domain.Sender, error)
}

// ObjectGetter reads template and spreadsheet objects from storage.
type ObjectGetter interface {
	Get(ctx context.Context, key string) ([]byte, error)
	GetText(ctx context.Context, key string) (string, error)
}

// Default sender fields applied when a request leaves them blank.
const (
	DefaultDisplayName     = "AWS Educate 雲端大使"
	DefaultReplyTo         = "awseducate.cloudambassador@gmail.com"
	DefaultSenderLocalPart = "cloudambassador"

	// SenderEmailDomain is the verified sending domain; the local part is
	// chosen per run.
	SenderEmailDomain = "aws-educate.tw"

	// Certificate runs require these two recipient fields.
	FieldName            = "Name"
	FieldCertificateText = "Certificate Text"

	// FieldEmail is the recipient address column in spreadsheet mode.
	FieldEmail = "Email"
)
