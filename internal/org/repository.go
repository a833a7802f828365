package org

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrOrgNotFound is returned when no tenant owns a provider
// phone-number id.
var ErrOrgNotFound = errors.New("org: not found for phone number id")

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Organization is the tenant boundary. The core reads it to route an
// inbound webhook and to send outbound messages with the tenant's
// credentials.
type Organization struct {
	ID            uuid.UUID
	Name          string
	PhoneNumberID string
	AccessToken   string
}

// Repository reads organizations from Postgres.
type Repository struct {
	pool rowQuerier
}

func NewRepository(pool rowQuerier) *Repository {
	if pool == nil {
		panic("org: pgx pool required")
	}
	return &Repository{pool: pool}
}

// ByPhoneNumberID resolves the single tenant registered for a WhatsApp
// phone-number id.
func (r *Repository) ByPhoneNumberID(ctx context.Context, phoneNumberID string) (*Organization, error) {
	query := `
		SELECT id, name, whatsapp_phone_number_id, COALESCE(whatsapp_access_token, '')
		FROM organizations
		WHERE whatsapp_phone_number_id = $1
	`
	var o Organization
	if err := r.pool.QueryRow(ctx, query, phoneNumberID).Scan(&o.ID, &o.Name, &o.PhoneNumberID, &o.AccessToken); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrgNotFound
		}
		return nil, fmt.Errorf("org: lookup by phone number id: %w", err)
	}
	return &o, nil
}

// ByID fetches a tenant by primary key.
func (r *Repository) ByID(ctx context.Context, id uuid.UUID) (*Organization, error) {
	query := `
		SELECT id, name, COALESCE(whatsapp_phone_number_id, ''), COALESCE(whatsapp_access_token, '')
		FROM organizations
		WHERE id = $1
	`
	var o Organization
	if err := r.pool.QueryRow(ctx, query, id).Scan(&o.ID, &o.Name, &o.PhoneNumberID, &o.AccessToken); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrgNotFound
		}
		return nil, fmt.Errorf("org: lookup by id: %w", err)
	}
	return &o, nil
}
