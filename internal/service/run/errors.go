package run

import "errors"

// Sentinel errors for the run service layer.
var (
	ErrNotFound        = errors.New("run not found")
	ErrWebhookMismatch = errors.New("run id exists with a non-webhook type")
)
