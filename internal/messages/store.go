package messages

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Message directions and sender types.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"

	SenderCustomer = "customer"
	SenderUser     = "user"
)

// Delivery statuses, in escalation order.
const (
	StatusPending   = "pending"
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusRead      = "read"
	StatusFailed    = "failed"
)

type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Record is one immutable unit of communication. WhatsAppMessageID is
// the provider-assigned id used both for idempotent inbound inserts and
// for matching asynchronous status updates to outbound rows.
type Record struct {
	ID                uuid.UUID
	OrganizationID    uuid.UUID
	ConversationID    uuid.UUID
	CustomerID        uuid.UUID
	WhatsAppMessageID string
	Direction         string
	SenderType        string
	MessageType       string
	Content           string
	MediaURL          string
	MediaMimeType     string
	MediaFilename     string
	ReplyToMessageID  *uuid.UUID
	Status            string
	StatusUpdatedAt   *time.Time
	ErrorCode         string
	ErrorMessage      string
	WhatsAppTimestamp *time.Time
	CreatedAt         time.Time
}

// StatusUpdate reconciles a provider delivery-status event onto a
// stored message.
type StatusUpdate struct {
	WhatsAppMessageID string
	Status            string
	StatusAt          time.Time
	ErrorCode         string
	ErrorMessage      string
}

// Store persists messages in Postgres.
type Store struct {
	pool Querier
}

func NewStore(pool Querier) *Store {
	if pool == nil {
		panic("messages: pgx pool required")
	}
	return &Store{pool: pool}
}

// InsertInbound persists an inbound message. The unique index on
// (organization_id, whatsapp_message_id) turns provider redelivery into
// a no-op: the second boolean is false when the row already existed.
func (s *Store) InsertInbound(ctx context.Context, rec Record) (uuid.UUID, bool, error) {
	query := `
		INSERT INTO messages (
			organization_id, conversation_id, customer_id, whatsapp_message_id,
			direction, sender_type, message_type, content,
			media_url, media_mime_type, media_filename,
			reply_to_message_id, status, whatsapp_timestamp
		)
		VALUES ($1, $2, $3, $4, 'inbound', 'customer', $5, $6,
			NULLIF($7, ''), NULLIF($8, ''), NULLIF($9, ''),
			$10, $11, $12)
		ON CONFLICT (organization_id, whatsapp_message_id) DO NOTHING
		RETURNING id
	`
	var id uuid.UUID
	err := s.pool.QueryRow(ctx, query,
		rec.OrganizationID,
		rec.ConversationID,
		rec.CustomerID,
		rec.WhatsAppMessageID,
		rec.MessageType,
		rec.Content,
		rec.MediaURL,
		rec.MediaMimeType,
		rec.MediaFilename,
		rec.ReplyToMessageID,
		rec.Status,
		rec.WhatsAppTimestamp,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, false, nil
		}
		return uuid.Nil, false, fmt.Errorf("messages: insert inbound: %w", err)
	}
	return id, true, nil
}

// InsertOutbound persists an outbound message created by the send path.
func (s *Store) InsertOutbound(ctx context.Context, rec Record) (uuid.UUID, error) {
	query := `
		INSERT INTO messages (
			organization_id, conversation_id, customer_id, whatsapp_message_id,
			direction, sender_type, message_type, content, reply_to_message_id, status
		)
		VALUES ($1, $2, $3, NULLIF($4, ''), 'outbound', $5, $6, $7, $8, $9)
		RETURNING id
	`
	var id uuid.UUID
	err := s.pool.QueryRow(ctx, query,
		rec.OrganizationID,
		rec.ConversationID,
		rec.CustomerID,
		rec.WhatsAppMessageID,
		rec.SenderType,
		rec.MessageType,
		rec.Content,
		rec.ReplyToMessageID,
		rec.Status,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("messages: insert outbound: %w", err)
	}
	return id, nil
}

// Exists reports whether the org already stored a message with this
// provider message id.
func (s *Store) Exists(ctx context.Context, orgID uuid.UUID, waMessageID string) (bool, error) {
	waMessageID = strings.TrimSpace(waMessageID)
	if waMessageID == "" {
		return false, nil
	}
	query := `
		SELECT 1 FROM messages
		WHERE organization_id = $1 AND whatsapp_message_id = $2
		LIMIT 1
	`
	var exists int
	if err := s.pool.QueryRow(ctx, query, orgID, waMessageID).Scan(&exists); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("messages: check provider message: %w", err)
	}
	return true, nil
}

// IDByProviderID resolves a provider message id to the internal row id.
// uuid.Nil with no error means the message is unknown, which callers
// treat as "omit the reference".
func (s *Store) IDByProviderID(ctx context.Context, orgID uuid.UUID, waMessageID string) (uuid.UUID, error) {
	waMessageID = strings.TrimSpace(waMessageID)
	if waMessageID == "" {
		return uuid.Nil, nil
	}
	query := `
		SELECT id FROM messages
		WHERE organization_id = $1 AND whatsapp_message_id = $2
		LIMIT 1
	`
	var id uuid.UUID
	if err := s.pool.QueryRow(ctx, query, orgID, waMessageID).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, nil
		}
		return uuid.Nil, fmt.Errorf("messages: lookup by provider id: %w", err)
	}
	return id, nil
}

// ApplyStatus updates the message matched by provider message id,
// returning the number of rows touched. Zero rows is the defined
// outcome for status events that outran their message.
func (s *Store) ApplyStatus(ctx context.Context, upd StatusUpdate) (int64, error) {
	query := `
		UPDATE messages
		SET status = $2,
			status_updated_at = $3,
			error_code = COALESCE(NULLIF($4, ''), error_code),
			error_message = COALESCE(NULLIF($5, ''), error_message)
		WHERE whatsapp_message_id = $1
	`
	ct, err := s.pool.Exec(ctx, query,
		upd.WhatsAppMessageID,
		upd.Status,
		upd.StatusAt,
		upd.ErrorCode,
		upd.ErrorMessage,
	)
	if err != nil {
		return 0, fmt.Errorf("messages: apply status: %w", err)
	}
	return ct.RowsAffected(), nil
}

// ListByConversation returns a conversation's messages oldest first.
func (s *Store) ListByConversation(ctx context.Context, conversationID uuid.UUID, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, organization_id, conversation_id, customer_id,
			COALESCE(whatsapp_message_id, ''), direction, sender_type, message_type,
			content, COALESCE(media_url, ''), COALESCE(media_mime_type, ''),
			COALESCE(media_filename, ''), reply_to_message_id, status,
			status_updated_at, COALESCE(error_code, ''), COALESCE(error_message, ''),
			whatsapp_timestamp, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC
		LIMIT $2
	`
	rows, err := s.pool.Query(ctx, query, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("messages: list by conversation: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(
			&rec.ID,
			&rec.OrganizationID,
			&rec.ConversationID,
			&rec.CustomerID,
			&rec.WhatsAppMessageID,
			&rec.Direction,
			&rec.SenderType,
			&rec.MessageType,
			&rec.Content,
			&rec.MediaURL,
			&rec.MediaMimeType,
			&rec.MediaFilename,
			&rec.ReplyToMessageID,
			&rec.Status,
			&rec.StatusUpdatedAt,
			&rec.ErrorCode,
			&rec.ErrorMessage,
			&rec.WhatsAppTimestamp,
			&rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("messages: scan message: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
