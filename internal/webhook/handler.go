package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	observemetrics "github.com/chathive/chathive-platform/internal/observability/metrics"
	"github.com/chathive/chathive-platform/internal/whatsapp"
	"github.com/chathive/chathive-platform/pkg/logging"
)

var webhookTracer = otel.Tracer("chathive.internal.webhook")

type batchProcessor interface {
	Process(ctx context.Context, n whatsapp.Notification)
}

// Handler exposes the WhatsApp webhook endpoints: the GET verification
// challenge and the POST event delivery.
type Handler struct {
	verifyToken string
	appSecret   string
	processor   batchProcessor
	logger      *logging.Logger
	metrics     *observemetrics.WebhookMetrics
}

func NewHandler(verifyToken, appSecret string, processor batchProcessor, logger *logging.Logger, metrics *observemetrics.WebhookMetrics) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	if processor == nil {
		panic("webhook: processor cannot be nil")
	}
	return &Handler{
		verifyToken: verifyToken,
		appSecret:   appSecret,
		processor:   processor,
		logger:      logger,
		metrics:     metrics,
	}
}

// Verify handles GET /webhooks/whatsapp, the provider's subscription
// challenge.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("hub.mode")
	token := r.URL.Query().Get("hub.verify_token")
	challenge := r.URL.Query().Get("hub.challenge")

	if mode == "subscribe" && token == h.verifyToken {
		h.logger.Info("webhook verified")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, challenge)
		return
	}

	h.logger.Warn("webhook verification failed", "mode", mode)
	http.Error(w, "Forbidden", http.StatusForbidden)
}

// Receive handles POST /webhooks/whatsapp. Only a signature mismatch
// produces a non-200: the provider retries the whole batch on any other
// status, so payload-level problems are acknowledged and logged instead
// of surfaced.
func (h *Handler) Receive(w http.ResponseWriter, r *http.Request) {
	ctx, span := webhookTracer.Start(r.Context(), "webhook.whatsapp.receive")
	defer span.End()
	start := time.Now()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.Error("failed to read webhook body", "error", err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		span.RecordError(err)
		return
	}

	if !whatsapp.VerifySignature(h.appSecret, body, r.Header.Get(whatsapp.SignatureHeader)) {
		h.logger.Warn("invalid webhook signature")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		span.RecordError(errors.New("invalid webhook signature"))
		return
	}

	n, err := whatsapp.ParseNotification(body)
	if err != nil {
		// Still acknowledge: a malformed body will not improve on retry.
		h.logger.Error("failed to decode webhook payload", "error", err)
		span.RecordError(err)
		h.respond(w, map[string]string{"status": "error", "message": "invalid payload"})
		return
	}
	span.SetAttributes(
		attribute.String("chathive.webhook.object", n.Object),
		attribute.Int("chathive.webhook.entries", len(n.Entry)),
	)

	if n.Object == whatsapp.ObjectBusinessAccount {
		h.processor.Process(ctx, n)
	} else {
		h.logger.Info("ignoring webhook for unexpected object", "object", n.Object)
	}

	h.metrics.ObserveLatency("delivery", time.Since(start).Seconds())
	h.respond(w, map[string]string{"status": "received"})
}

// HealthCheck returns a simple health check response.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.respond(w, map[string]string{"status": "ok"})
}

func (h *Handler) respond(w http.ResponseWriter, payload map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(payload)
}
