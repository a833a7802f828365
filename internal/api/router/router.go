package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	httpmiddleware "github.com/chathive/chathive-platform/internal/http/middleware"
	"github.com/chathive/chathive-platform/internal/inbox"
	"github.com/chathive/chathive-platform/internal/webhook"
	"github.com/chathive/chathive-platform/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger         *logging.Logger
	WebhookHandler *webhook.Handler
	InboxHandler   *inbox.Handler
	MetricsHandler http.Handler
}

// New creates a new Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", cfg.WebhookHandler.HealthCheck)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/webhooks/whatsapp", func(r chi.Router) {
		r.Get("/", cfg.WebhookHandler.Verify)
		r.Post("/", cfg.WebhookHandler.Receive)
	})

	if cfg.InboxHandler != nil {
		r.Route("/api/conversations/{conversationID}/messages", func(r chi.Router) {
			r.Get("/", cfg.InboxHandler.List)
			r.Post("/", cfg.InboxHandler.Send)
		})
	}

	return r
}
