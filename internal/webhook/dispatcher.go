package webhook

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/chathive/chathive-platform/internal/events"
	"github.com/chathive/chathive-platform/internal/identity"
	"github.com/chathive/chathive-platform/internal/messages"
	"github.com/chathive/chathive-platform/internal/org"
	observemetrics "github.com/chathive/chathive-platform/internal/observability/metrics"
	"github.com/chathive/chathive-platform/internal/tenancy"
	"github.com/chathive/chathive-platform/internal/whatsapp"
	"github.com/chathive/chathive-platform/pkg/logging"
)

type orgDirectory interface {
	ByPhoneNumberID(ctx context.Context, phoneNumberID string) (*org.Organization, error)
}

type identityResolver interface {
	Resolve(ctx context.Context, orgID uuid.UUID, contact identity.Contact) (uuid.UUID, error)
}

type conversationRouter interface {
	Route(ctx context.Context, orgID, customerID uuid.UUID) (uuid.UUID, error)
	RecordInbound(ctx context.Context, id uuid.UUID, preview string) error
}

type messageStore interface {
	Exists(ctx context.Context, orgID uuid.UUID, waMessageID string) (bool, error)
	IDByProviderID(ctx context.Context, orgID uuid.UUID, waMessageID string) (uuid.UUID, error)
	InsertInbound(ctx context.Context, rec messages.Record) (uuid.UUID, bool, error)
}

type readMarker interface {
	MarkRead(ctx context.Context, phoneNumberID, messageID string) error
}

// Dispatcher routes webhook units through identity resolution,
// conversation routing, and normalization, or straight to status
// reconciliation. Every unit either lands or is logged and skipped;
// nothing a unit does changes the HTTP-level acknowledgement.
type Dispatcher struct {
	orgs          orgDirectory
	identities    identityResolver
	conversations conversationRouter
	messages      messageStore
	reconciler    *Reconciler
	publisher     events.Publisher
	marker        readMarker
	logger        *logging.Logger
	metrics       *observemetrics.WebhookMetrics
	unitTimeout   time.Duration
}

// DispatcherConfig wires the dispatcher's collaborators. Marker and
// Publisher are optional; Metrics may be nil.
type DispatcherConfig struct {
	Orgs          orgDirectory
	Identities    identityResolver
	Conversations conversationRouter
	Messages      messageStore
	Reconciler    *Reconciler
	Publisher     events.Publisher
	Marker        readMarker
	Logger        *logging.Logger
	Metrics       *observemetrics.WebhookMetrics
	UnitTimeout   time.Duration
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Orgs == nil || cfg.Identities == nil || cfg.Conversations == nil || cfg.Messages == nil {
		panic("webhook: dispatcher requires org, identity, conversation, and message collaborators")
	}
	if cfg.Reconciler == nil {
		panic("webhook: dispatcher requires a reconciler")
	}
	if cfg.Publisher == nil {
		cfg.Publisher = events.NoopPublisher{}
	}
	if cfg.UnitTimeout <= 0 {
		cfg.UnitTimeout = 5 * time.Second
	}
	return &Dispatcher{
		orgs:          cfg.Orgs,
		identities:    cfg.Identities,
		conversations: cfg.Conversations,
		messages:      cfg.Messages,
		reconciler:    cfg.Reconciler,
		publisher:     cfg.Publisher,
		marker:        cfg.Marker,
		logger:        cfg.Logger,
		metrics:       cfg.Metrics,
		unitTimeout:   cfg.UnitTimeout,
	}
}

// Process walks the nested batch structure and handles each unit
// independently. Per-unit failures are logged with identifying context
// and never propagate.
func (d *Dispatcher) Process(ctx context.Context, n whatsapp.Notification) {
	for _, entry := range n.Entry {
		for _, change := range entry.Changes {
			if change.Field != whatsapp.FieldMessages {
				continue
			}
			d.processChange(ctx, change.Value)
		}
	}
}

func (d *Dispatcher) processChange(ctx context.Context, value whatsapp.Value) {
	tenant, err := d.resolveOrg(ctx, value.Metadata.PhoneNumberID)
	if err != nil {
		if errors.Is(err, org.ErrOrgNotFound) {
			d.logger.Warn("no organization for phone number id, skipping change",
				"phone_number_id", value.Metadata.PhoneNumberID)
			d.metrics.ObserveUnit("change", "unknown_org")
			return
		}
		d.logger.Error("organization lookup failed, skipping change",
			"error", err, "phone_number_id", value.Metadata.PhoneNumberID)
		d.metrics.ObserveUnit("change", "org_lookup_error")
		return
	}
	ctx = tenancy.WithOrgID(ctx, tenant.ID.String())
	log := d.logger.With("org_id", tenant.ID)

	for _, msg := range value.Messages {
		outcome := d.processMessage(ctx, log, tenant, value, msg)
		d.metrics.ObserveUnit("message", outcome)
	}
	for _, st := range value.Statuses {
		unitCtx, cancel := context.WithTimeout(ctx, d.unitTimeout)
		if err := d.reconciler.Apply(unitCtx, st); err != nil {
			log.Error("status reconciliation failed", "error", err, "wa_message_id", st.ID)
			d.metrics.ObserveUnit("status", "error")
		} else {
			d.metrics.ObserveUnit("status", "reconciled")
		}
		cancel()
	}
}

func (d *Dispatcher) resolveOrg(ctx context.Context, phoneNumberID string) (*org.Organization, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, d.unitTimeout)
	defer cancel()
	return d.orgs.ByPhoneNumberID(lookupCtx, phoneNumberID)
}

func (d *Dispatcher) processMessage(ctx context.Context, log *logging.Logger, tenant *org.Organization, value whatsapp.Value, msg whatsapp.Message) string {
	ctx, cancel := context.WithTimeout(ctx, d.unitTimeout)
	defer cancel()

	// Cheap replay check before any writes; the unique index on
	// (organization_id, whatsapp_message_id) closes the remaining
	// race window at insert time.
	exists, err := d.messages.Exists(ctx, tenant.ID, msg.ID)
	if err != nil {
		log.Error("duplicate check failed, skipping message", "error", err, "wa_message_id", msg.ID)
		return "error"
	}
	if exists {
		log.Info("skipping redelivered message", "wa_message_id", msg.ID)
		return "duplicate"
	}

	customerID, err := d.identities.Resolve(ctx, tenant.ID, identity.Contact{
		WaID:  msg.From,
		Name:  value.ContactName(msg.From),
		Phone: msg.From,
	})
	if err != nil {
		log.Error("customer resolution failed, skipping message", "error", err, "wa_message_id", msg.ID)
		return "error"
	}

	conversationID, err := d.conversations.Route(ctx, tenant.ID, customerID)
	if err != nil {
		log.Error("conversation routing failed, skipping message",
			"error", err, "customer_id", customerID, "wa_message_id", msg.ID)
		return "error"
	}

	var replyTo *uuid.UUID
	if msg.Context != nil && msg.Context.MessageID != "" {
		replyID, err := d.messages.IDByProviderID(ctx, tenant.ID, msg.Context.MessageID)
		if err != nil {
			log.Warn("reply-to lookup failed, omitting reference", "error", err, "wa_message_id", msg.ID)
		} else if replyID != uuid.Nil {
			replyTo = &replyID
		}
	}

	rec := Normalize(msg, tenant.ID, conversationID, customerID, replyTo)
	messageID, inserted, err := d.messages.InsertInbound(ctx, rec)
	if err != nil {
		log.Error("message insert failed", "error", err, "wa_message_id", msg.ID)
		return "error"
	}
	if !inserted {
		log.Info("message already stored, replay ignored", "wa_message_id", msg.ID)
		return "duplicate"
	}

	if err := d.conversations.RecordInbound(ctx, conversationID, rec.Content); err != nil {
		log.Warn("conversation preview update failed", "error", err, "conversation_id", conversationID)
	}

	d.publish(ctx, log, events.KeyMessageCreated, map[string]string{
		"message_id":      messageID.String(),
		"conversation_id": conversationID.String(),
		"customer_id":     customerID.String(),
	})
	d.publish(ctx, log, events.KeyConversationUpdated, map[string]string{
		"conversation_id": conversationID.String(),
	})

	if d.marker != nil {
		if err := d.marker.MarkRead(ctx, tenant.PhoneNumberID, msg.ID); err != nil {
			log.Warn("mark-read failed", "error", err, "wa_message_id", msg.ID)
		}
	}

	log.Info("inbound message processed",
		"wa_message_id", msg.ID,
		"conversation_id", conversationID,
		"message_type", rec.MessageType,
	)
	return "processed"
}

// publish stamps the event with the tenant scoped onto the context by
// processChange, so every event leaves with the org id that routed it.
func (d *Dispatcher) publish(ctx context.Context, log *logging.Logger, key string, data map[string]string) {
	evt := events.Event{Data: data}
	if orgID, ok := tenancy.OrgIDFromContext(ctx); ok {
		evt.OrganizationID = orgID
	}
	if err := d.publisher.Publish(ctx, key, evt); err != nil {
		log.Warn("event publish failed", "error", err, "key", key)
	}
}
