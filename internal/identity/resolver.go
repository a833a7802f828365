package identity

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var phoneDigitsRe = regexp.MustCompile(`\d+`)

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Contact is the provider-level identity of the message sender.
type Contact struct {
	WaID  string
	Name  string
	Phone string
}

// Resolver maps provider contacts onto customer rows, creating them on
// first inbound contact. Uniqueness is (organization_id, phone),
// enforced by the customers table constraint.
type Resolver struct {
	pool rowQuerier
}

func NewResolver(pool rowQuerier) *Resolver {
	if pool == nil {
		panic("identity: pgx pool required")
	}
	return &Resolver{pool: pool}
}

// Resolve upserts the customer for (org, phone) and returns its id.
// A new customer is opted in and stamped with first-contact timestamps;
// an existing one keeps its stored name (first write wins) and only has
// its contact timestamps bumped. Either way last_contact_at and
// last_message_at reflect this message.
func (r *Resolver) Resolve(ctx context.Context, orgID uuid.UUID, contact Contact) (uuid.UUID, error) {
	phone := SanitizePhone(contact.Phone)
	if phone == "" {
		return uuid.Nil, fmt.Errorf("identity: contact has no usable phone")
	}
	name := strings.TrimSpace(contact.Name)
	if name == "" {
		name = phone
	}

	query := `
		INSERT INTO customers (
			organization_id, whatsapp_id, phone, name,
			is_opted_in, opted_in_at, first_contact_at, last_contact_at, last_message_at
		)
		VALUES ($1, $2, $3, $4, TRUE, now(), now(), now(), now())
		ON CONFLICT (organization_id, phone) DO UPDATE
		SET last_contact_at = now(),
			last_message_at = now(),
			whatsapp_id = COALESCE(customers.whatsapp_id, EXCLUDED.whatsapp_id),
			updated_at = now()
		RETURNING id
	`
	var id uuid.UUID
	if err := r.pool.QueryRow(ctx, query, orgID, contact.WaID, phone, name).Scan(&id); err != nil {
		return uuid.Nil, fmt.Errorf("identity: upsert customer: %w", err)
	}
	return id, nil
}

// SanitizePhone strips a phone value down to its digits.
func SanitizePhone(value string) string {
	if value == "" {
		return ""
	}
	digits := phoneDigitsRe.FindAllString(value, -1)
	return strings.Join(digits, "")
}
