package inbox

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/chathive/chathive-platform/internal/conversation"
	"github.com/chathive/chathive-platform/internal/events"
	"github.com/chathive/chathive-platform/internal/messages"
	"github.com/chathive/chathive-platform/internal/org"
	"github.com/chathive/chathive-platform/internal/tenancy"
	"github.com/chathive/chathive-platform/internal/whatsapp"
	"github.com/chathive/chathive-platform/pkg/logging"
)

type conversationStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*conversation.Conversation, error)
	RecordOutbound(ctx context.Context, id uuid.UUID, preview string) error
}

type messageStore interface {
	InsertOutbound(ctx context.Context, rec messages.Record) (uuid.UUID, error)
	IDByProviderID(ctx context.Context, orgID uuid.UUID, waMessageID string) (uuid.UUID, error)
	ListByConversation(ctx context.Context, conversationID uuid.UUID, limit int) ([]messages.Record, error)
}

type orgDirectory interface {
	ByID(ctx context.Context, id uuid.UUID) (*org.Organization, error)
}

type messageSender interface {
	SendText(ctx context.Context, phoneNumberID, to, body, replyTo string) (string, error)
	SendTemplate(ctx context.Context, phoneNumberID, to, name, languageCode string, components []whatsapp.TemplateComponent) (string, error)
}

// SendRequest is the agent-facing send body. Content is required for a
// free-form message; a template name is required instead once the
// customer-service window has lapsed.
type SendRequest struct {
	Content          string `json:"content" validate:"required_without=TemplateName,max=4096"`
	TemplateName     string `json:"template_name" validate:"max=512"`
	TemplateLanguage string `json:"template_language" validate:"max=16"`
	ReplyTo          string `json:"reply_to,omitempty" validate:"max=256"`
}

// SendResponse reports the stored message and the provider-assigned id.
type SendResponse struct {
	MessageID         uuid.UUID `json:"message_id"`
	WhatsAppMessageID string    `json:"whatsapp_message_id"`
	Status            string    `json:"status"`
}

// Handler serves the agent inbox surface: sending replies into a
// conversation and reading its history.
type Handler struct {
	conversations conversationStore
	messages      messageStore
	orgs          orgDirectory
	sender        messageSender
	publisher     events.Publisher
	validate      *validator.Validate
	logger        *logging.Logger
	now           func() time.Time
}

func NewHandler(conversations conversationStore, msgs messageStore, orgs orgDirectory, sender messageSender, publisher events.Publisher, logger *logging.Logger) *Handler {
	if conversations == nil || msgs == nil || orgs == nil {
		panic("inbox: stores cannot be nil")
	}
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		conversations: conversations,
		messages:      msgs,
		orgs:          orgs,
		sender:        sender,
		publisher:     publisher,
		validate:      validator.New(),
		logger:        logger,
		now:           time.Now,
	}
}

// Send handles POST /api/conversations/{conversationID}/messages.
func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	conversationID, err := uuid.Parse(chi.URLParam(r, "conversationID"))
	if err != nil {
		http.Error(w, "Invalid conversation id", http.StatusBadRequest)
		return
	}

	var req SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("failed to decode send request", "error", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.writeValidationError(w, err)
		return
	}

	ctx := r.Context()
	conv, err := h.conversations.GetByID(ctx, conversationID)
	if err != nil {
		if errors.Is(err, conversation.ErrConversationNotFound) {
			http.Error(w, "Conversation not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to load conversation", "error", err, "conversation_id", conversationID)
		http.Error(w, "Failed to load conversation", http.StatusInternalServerError)
		return
	}
	ctx = tenancy.WithOrgID(ctx, conv.OrganizationID.String())

	if req.TemplateName == "" && !conv.WindowOpen(h.now()) {
		h.writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error": "customer-service window has expired; a template message is required",
		})
		return
	}

	if h.sender == nil {
		http.Error(w, "Outbound messaging is not configured", http.StatusServiceUnavailable)
		return
	}

	organization, err := h.orgs.ByID(ctx, conv.OrganizationID)
	if err != nil {
		h.logger.Error("failed to load organization", "error", err, "org_id", conv.OrganizationID)
		http.Error(w, "Failed to load organization", http.StatusInternalServerError)
		return
	}

	wamid, content, messageType, err := h.dispatch(ctx, organization.PhoneNumberID, conv.CustomerPhone, req)
	if err != nil {
		h.logger.Error("failed to send message", "error", err, "conversation_id", conversationID)
		http.Error(w, "Failed to send message", http.StatusBadGateway)
		return
	}

	rec := messages.Record{
		OrganizationID:    conv.OrganizationID,
		ConversationID:    conv.ID,
		CustomerID:        conv.CustomerID,
		WhatsAppMessageID: wamid,
		Direction:         messages.DirectionOutbound,
		SenderType:        messages.SenderUser,
		MessageType:       messageType,
		Content:           content,
		Status:            messages.StatusSent,
	}
	if req.ReplyTo != "" {
		if replyID, err := h.messages.IDByProviderID(ctx, conv.OrganizationID, req.ReplyTo); err == nil && replyID != uuid.Nil {
			rec.ReplyToMessageID = &replyID
		}
	}

	messageID, err := h.messages.InsertOutbound(ctx, rec)
	if err != nil {
		// The provider accepted the send; losing the row is worse than
		// a duplicate, so report the failure rather than pretend.
		h.logger.Error("failed to persist outbound message", "error", err, "wamid", wamid)
		http.Error(w, "Message sent but not recorded", http.StatusInternalServerError)
		return
	}

	if err := h.conversations.RecordOutbound(ctx, conv.ID, content); err != nil {
		h.logger.Warn("failed to update conversation preview", "error", err, "conversation_id", conv.ID)
	}
	h.publish(ctx, conv, messageID)

	h.writeJSON(w, http.StatusCreated, SendResponse{
		MessageID:         messageID,
		WhatsAppMessageID: wamid,
		Status:            messages.StatusSent,
	})
}

func (h *Handler) dispatch(ctx context.Context, phoneNumberID, to string, req SendRequest) (wamid, content, messageType string, err error) {
	if req.TemplateName != "" {
		lang := req.TemplateLanguage
		if lang == "" {
			lang = "en_US"
		}
		wamid, err = h.sender.SendTemplate(ctx, phoneNumberID, to, req.TemplateName, lang, nil)
		return wamid, "[Template: " + req.TemplateName + "]", "template", err
	}
	wamid, err = h.sender.SendText(ctx, phoneNumberID, to, req.Content, req.ReplyTo)
	return wamid, req.Content, "text", err
}

func (h *Handler) publish(ctx context.Context, conv *conversation.Conversation, messageID uuid.UUID) {
	orgID, ok := tenancy.OrgIDFromContext(ctx)
	if !ok {
		orgID = conv.OrganizationID.String()
	}
	evt := events.Event{
		OrganizationID: orgID,
		Data: map[string]any{
			"message_id":      messageID.String(),
			"conversation_id": conv.ID.String(),
			"direction":       messages.DirectionOutbound,
		},
	}
	if err := h.publisher.Publish(ctx, events.KeyMessageCreated, evt); err != nil {
		h.logger.Warn("failed to publish message event", "error", err)
	}
}

// List handles GET /api/conversations/{conversationID}/messages.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	conversationID, err := uuid.Parse(chi.URLParam(r, "conversationID"))
	if err != nil {
		http.Error(w, "Invalid conversation id", http.StatusBadRequest)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
	}

	if _, err := h.conversations.GetByID(r.Context(), conversationID); err != nil {
		if errors.Is(err, conversation.ErrConversationNotFound) {
			http.Error(w, "Conversation not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to load conversation", "error", err, "conversation_id", conversationID)
		http.Error(w, "Failed to load conversation", http.StatusInternalServerError)
		return
	}

	records, err := h.messages.ListByConversation(r.Context(), conversationID, limit)
	if err != nil {
		h.logger.Error("failed to list messages", "error", err, "conversation_id", conversationID)
		http.Error(w, "Failed to list messages", http.StatusInternalServerError)
		return
	}

	out := make([]messageView, 0, len(records))
	for _, rec := range records {
		out = append(out, newMessageView(rec))
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"messages": out})
}

type messageView struct {
	ID                uuid.UUID  `json:"id"`
	WhatsAppMessageID string     `json:"whatsapp_message_id,omitempty"`
	Direction         string     `json:"direction"`
	SenderType        string     `json:"sender_type"`
	MessageType       string     `json:"message_type"`
	Content           string     `json:"content"`
	MediaURL          string     `json:"media_url,omitempty"`
	ReplyToMessageID  *uuid.UUID `json:"reply_to_message_id,omitempty"`
	Status            string     `json:"status"`
	ErrorCode         string     `json:"error_code,omitempty"`
	ErrorMessage      string     `json:"error_message,omitempty"`
	Timestamp         time.Time  `json:"timestamp"`
}

func newMessageView(rec messages.Record) messageView {
	ts := rec.CreatedAt
	if rec.WhatsAppTimestamp != nil {
		ts = *rec.WhatsAppTimestamp
	}
	return messageView{
		ID:                rec.ID,
		WhatsAppMessageID: rec.WhatsAppMessageID,
		Direction:         rec.Direction,
		SenderType:        rec.SenderType,
		MessageType:       rec.MessageType,
		Content:           rec.Content,
		MediaURL:          rec.MediaURL,
		ReplyToMessageID:  rec.ReplyToMessageID,
		Status:            rec.Status,
		ErrorCode:         rec.ErrorCode,
		ErrorMessage:      rec.ErrorMessage,
		Timestamp:         ts,
	}
}

func (h *Handler) writeValidationError(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		details := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			details[fe.Field()] = fe.Tag()
		}
		h.writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":   "validation failed",
			"details": details,
		})
		return
	}
	http.Error(w, "Invalid request body", http.StatusBadRequest)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", "error", err)
	}
}
