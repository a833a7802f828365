package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"

	"github.com/chathive/chathive-platform/pkg/logging"
)

// Routing keys for dashboard-facing change events.
const (
	KeyMessageCreated      = "message.created"
	KeyConversationUpdated = "conversation.updated"
)

// Event is the envelope published for each row-level change the
// dashboard cares about.
type Event struct {
	ID             string    `json:"id"`
	Type           string    `json:"type"`
	OrganizationID string    `json:"organization_id"`
	OccurredAt     time.Time `json:"occurred_at"`
	Data           any       `json:"data,omitempty"`
}

// Publisher delivers change events to whatever realtime fabric the
// dashboard subscribes to.
type Publisher interface {
	Publish(ctx context.Context, key string, evt Event) error
	Close() error
}

type rmqPublisher struct {
	conn     *amqp091.Connection
	exchange string
	log      *logging.Logger
}

// NewRabbitPublisher connects to RabbitMQ and declares a durable topic
// exchange for change events.
func NewRabbitPublisher(url, exchange string, logger *logging.Logger) (Publisher, error) {
	if logger == nil {
		logger = logging.Default()
	}
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("events: dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("events: open channel: %w", err)
	}
	defer ch.Close()
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("events: declare exchange: %w", err)
	}

	return &rmqPublisher{conn: conn, exchange: exchange, log: logger}, nil
}

func (p *rmqPublisher) Publish(ctx context.Context, key string, evt Event) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("events: open channel: %w", err)
	}
	defer ch.Close()

	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}
	if evt.Type == "" {
		evt.Type = key
	}
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("events: marshal event: %w", err)
	}

	err = ch.PublishWithContext(ctx, p.exchange, key, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    evt.ID,
		Timestamp:    evt.OccurredAt,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("events: publish %s: %w", key, err)
	}
	p.log.Debug("event published", "key", key, "event_id", evt.ID, "org_id", evt.OrganizationID)
	return nil
}

func (p *rmqPublisher) Close() error {
	return p.conn.Close()
}

// NoopPublisher drops events. Used when no AMQP URL is configured; the
// persistence layer's own change feed still reaches the dashboard.
type NoopPublisher struct{}

func (NoopPublisher) Publish(ctx context.Context, key string, evt Event) error { return nil }

func (NoopPublisher) Close() error { return nil }
