// Package api exposes the pipeline over HTTP: the send-email acceptance
// endpoint, run and email read endpoints, webhook management, and health.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/aws-educate-tw/tpet-pipeline/internal/auth"
	"github.com/aws-educate-tw/tpet-pipeline/internal/domain"
	"github.com/aws-educate-tw/tpet-pipeline/internal/pipeline"
	"github.com/aws-educate-tw/tpet-pipeline/internal/pkg/logger"
	"github.com/aws-educate-tw/tpet-pipeline/internal/queue"
	"github.com/aws-educate-tw/tpet-pipeline/internal/service/email"
	"github.com/aws-educate-tw/tpet-pipeline/internal/service/run"
)

// WebhookStore is the slice of the definition store the API uses.
type WebhookStore interface {
	Get(ctx context.Context, webhookID string) (*domain.WebhookDefinition, error)
	List(ctx context.Context) ([]domain.WebhookDefinition, error)
	Put(ctx context.Context, def *domain.WebhookDefinition) error
}

// Server holds the handlers' dependencies.
type Server struct {
	validator  *pipeline.Validator
	runs       *run.Service
	emails     *email.Service
	webhooks   WebhookStore
	validatedQ queue.Queue
	authorizer *auth.Authorizer
	health     *HealthChecker
	log        *logger.Scoped
}

// NewServer wires the API server. authorizer may be nil, which disables
// token checks (local development only).
func NewServer(
	validator *pipeline.Validator,
	runs *run.Service,
	emails *email.Service,
	webhooks WebhookStore,
	validatedQ queue.Queue,
	authorizer *auth.Authorizer,
	health *HealthChecker,
) *Server {
	return &Server{
		validator:  validator,
		runs:       runs,
		emails:     emails,
		webhooks:   webhooks,
		validatedQ: validatedQ,
		authorizer: authorizer,
		health:     health,
		log:        logger.Component("api"),
	}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"https://*", "http://*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	if s.health != nil {
		r.Get("/health", s.health.HandleHealth)
		r.Get("/health/live", s.health.HandleLiveness)
		r.Get("/health/ready", s.health.HandleReadiness)
	}

	r.Group(func(r chi.Router) {
		if s.authorizer != nil {
			r.Use(s.authorizer.Middleware)
		}

		r.Post("/send-email", s.handleSendEmail)

		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{run_id}", s.handleGetRun)
		r.Get("/runs/{run_id}/emails", s.handleListRunEmails)
		r.Get("/runs/{run_id}/emails/{email_id}", s.handleGetRunEmail)

		r.Post("/webhooks", s.handleCreateWebhook)
		r.Get("/webhooks", s.handleListWebhooks)
		r.Get("/webhooks/{webhook_id}", s.handleGetWebhook)
		r.Put("/webhooks/{webhook_id}", s.handleUpdateWebhook)
	})

	// Trigger is called by external systems holding only the webhook id,
	// not a user token.
	r.Post("/webhooks/{webhook_id}/trigger", s.handleTriggerWebhook)

	return r
}
