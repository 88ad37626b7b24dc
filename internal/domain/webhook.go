package domain

// WebhookDefinition binds an inbound webhook to a pre-provisioned run.
// Stored in DynamoDB keyed by webhook_id; triggering the webhook starts a
// WEBHOOK-type run whose run_id must match this binding.
type WebhookDefinition struct {
	WebhookID             string   `json:"webhook_id" dynamodbav:"webhook_id"`
	WebhookType           string   `json:"webhook_type" dynamodbav:"webhook_type"`
	RunID                 string   `json:"run_id" dynamodbav:"run_id"`
	Subject               string   `json:"subject" dynamodbav:"subject"`
	DisplayName           string   `json:"display_name" dynamodbav:"display_name"`
	TemplateFileID        string   `json:"template_file_id" dynamodbav:"template_file_id"`
	ReplyTo               string   `json:"reply_to" dynamodbav:"reply_to"`
	SenderLocalPart       string   `json:"sender_local_part" dynamodbav:"sender_local_part"`
	AttachmentFileIDs     []string `json:"attachment_file_ids" dynamodbav:"attachment_file_ids"`
	IsGenerateCertificate bool     `json:"is_generate_certificate" dynamodbav:"is_generate_certificate"`
	CreatedAt             string   `json:"created_at" dynamodbav:"created_at"`
}
