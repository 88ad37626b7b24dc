package email

import "errors"

// Sentinel errors for the email service layer.
var (
	ErrNotFound = errors.New("email item not found")
)
