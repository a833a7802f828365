package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Conversation statuses. A conversation in any non-terminal status
// (everything but closed) is the customer's single active thread.
const (
	StatusOpen    = "open"
	StatusClosed  = "closed"
	StatusSnoozed = "snoozed"
	StatusWaiting = "waiting"
)

// ServiceWindow is the provider's customer-service window: free-form
// replies are allowed this long after the customer's last inbound
// message.
const ServiceWindow = 24 * time.Hour

// ErrConversationNotFound is returned when a conversation id does not
// resolve within the store.
var ErrConversationNotFound = errors.New("conversation: not found")

type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Conversation is a bounded thread between one customer and one
// organization, joined with the customer fields the send path needs.
type Conversation struct {
	ID              uuid.UUID
	OrganizationID  uuid.UUID
	CustomerID      uuid.UUID
	Status          string
	WindowExpiresAt *time.Time
	CustomerPhone   string
	CustomerName    string
}

// Store persists conversation lifecycle state in Postgres.
type Store struct {
	pool Querier
}

func NewStore(pool Querier) *Store {
	if pool == nil {
		panic("conversation: pgx pool required")
	}
	return &Store{pool: pool}
}

// Route finds the customer's active conversation and reopens it, or
// creates a new user-initiated one. Either way the customer-service
// window is extended to now plus 24 hours.
//
// The partial unique index on (customer_id) over non-terminal statuses
// is the concurrency guard: when two deliveries race, one insert loses
// the conflict and the loop picks up the winner's row on retry. No
// in-process lock is involved, so the guarantee holds across server
// instances.
func (s *Store) Route(ctx context.Context, orgID, customerID uuid.UUID) (uuid.UUID, error) {
	for attempt := 0; attempt < 2; attempt++ {
		id, err := s.reopenActive(ctx, customerID)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, fmt.Errorf("conversation: reopen active: %w", err)
		}

		id, err = s.createOpen(ctx, orgID, customerID)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, fmt.Errorf("conversation: create: %w", err)
		}
		// Lost the insert race; the winner's row is active now.
	}
	return uuid.Nil, fmt.Errorf("conversation: no active thread for customer %s after retry", customerID)
}

func (s *Store) reopenActive(ctx context.Context, customerID uuid.UUID) (uuid.UUID, error) {
	query := `
		UPDATE conversations
		SET status = 'open',
			customer_service_window_expires_at = now() + interval '24 hours',
			updated_at = now()
		WHERE id = (
			SELECT id FROM conversations
			WHERE customer_id = $1 AND status IN ('open', 'waiting', 'snoozed')
			ORDER BY created_at DESC
			LIMIT 1
		)
		RETURNING id
	`
	var id uuid.UUID
	if err := s.pool.QueryRow(ctx, query, customerID).Scan(&id); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

func (s *Store) createOpen(ctx context.Context, orgID, customerID uuid.UUID) (uuid.UUID, error) {
	query := `
		INSERT INTO conversations (
			organization_id, customer_id, status, conversation_origin,
			customer_service_window_expires_at
		)
		VALUES ($1, $2, 'open', 'user_initiated', now() + interval '24 hours')
		ON CONFLICT (customer_id) WHERE status IN ('open', 'waiting', 'snoozed') DO NOTHING
		RETURNING id
	`
	var id uuid.UUID
	if err := s.pool.QueryRow(ctx, query, orgID, customerID).Scan(&id); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// GetByID fetches a conversation with the customer fields needed to
// address an outbound send.
func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*Conversation, error) {
	query := `
		SELECT c.id, c.organization_id, c.customer_id, c.status,
			c.customer_service_window_expires_at,
			cu.phone, COALESCE(cu.name, '')
		FROM conversations c
		JOIN customers cu ON cu.id = c.customer_id
		WHERE c.id = $1
	`
	var conv Conversation
	if err := s.pool.QueryRow(ctx, query, id).Scan(
		&conv.ID,
		&conv.OrganizationID,
		&conv.CustomerID,
		&conv.Status,
		&conv.WindowExpiresAt,
		&conv.CustomerPhone,
		&conv.CustomerName,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("conversation: get by id: %w", err)
	}
	return &conv, nil
}

// RecordInbound bumps the unread counter and last-message preview after
// an inbound message is persisted.
func (s *Store) RecordInbound(ctx context.Context, id uuid.UUID, preview string) error {
	query := `
		UPDATE conversations
		SET unread_count = unread_count + 1,
			last_message_preview = $2,
			last_message_direction = 'inbound',
			last_message_at = now(),
			updated_at = now()
		WHERE id = $1
	`
	if _, err := s.pool.Exec(ctx, query, id, truncatePreview(preview)); err != nil {
		return fmt.Errorf("conversation: record inbound: %w", err)
	}
	return nil
}

// RecordOutbound updates the last-message preview after a send.
func (s *Store) RecordOutbound(ctx context.Context, id uuid.UUID, preview string) error {
	query := `
		UPDATE conversations
		SET last_message_preview = $2,
			last_message_direction = 'outbound',
			last_message_at = now(),
			updated_at = now()
		WHERE id = $1
	`
	if _, err := s.pool.Exec(ctx, query, id, truncatePreview(preview)); err != nil {
		return fmt.Errorf("conversation: record outbound: %w", err)
	}
	return nil
}

// WindowOpen reports whether free-form replies are still permitted.
func (c *Conversation) WindowOpen(now time.Time) bool {
	return c.WindowExpiresAt != nil && now.Before(*c.WindowExpiresAt)
}

func truncatePreview(preview string) string {
	const maxPreview = 120
	runes := []rune(preview)
	if len(runes) <= maxPreview {
		return preview
	}
	return string(runes[:maxPreview])
}
