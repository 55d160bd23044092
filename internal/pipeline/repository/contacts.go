package repository

import (
	"context"
	"errors"

	"outreach_backend/internal/pipeline/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const contactColumns = `id, tenant_id, email, first_name, last_name, phone`

func (r *Repository) FindContactByEmail(ctx context.Context, tenantID uuid.UUID, email string) (domain.Contact, error) {
	var c domain.Contact
	err := r.pool.QueryRow(ctx, `
		SELECT `+contactColumns+`
		FROM contacts
		WHERE tenant_id = $1 AND lower(email) = lower($2)
	`, tenantID, email).Scan(&c.ID, &c.TenantID, &c.Email, &c.FirstName, &c.LastName, &c.Phone)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Contact{}, ErrNotFound
	}
	return c, err
}

// UpsertContact creates the contact or refreshes the non-empty fields of the
// existing one with the same email.
func (r *Repository) UpsertContact(ctx context.Context, params UpsertContactParams) (domain.Contact, error) {
	var c domain.Contact
	err := r.pool.QueryRow(ctx, `
		INSERT INTO contacts (tenant_id, email, first_name, last_name, phone)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id, lower(email)) DO UPDATE SET
			first_name = COALESCE(NULLIF(EXCLUDED.first_name, ''), contacts.first_name),
			last_name  = COALESCE(NULLIF(EXCLUDED.last_name, ''), contacts.last_name),
			phone      = COALESCE(NULLIF(EXCLUDED.phone, ''), contacts.phone),
			updated_at = now()
		RETURNING `+contactColumns,
		params.TenantID, params.Email, params.FirstName, params.LastName, params.Phone,
	).Scan(&c.ID, &c.TenantID, &c.Email, &c.FirstName, &c.LastName, &c.Phone)
	return c, err
}
