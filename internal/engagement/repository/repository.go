// Package repository persists email delivery logs and the cached engagement
// tier of deals.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"outreach_backend/internal/engagement/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("not found")

// DealRef identifies a deal and its cached tier.
type DealRef struct {
	ID       uuid.UUID
	TenantID uuid.UUID
	Tier     string
}

// RecordSendParams describes one delivered email.
type RecordSendParams struct {
	TenantID  uuid.UUID
	DealID    uuid.UUID
	MessageID string
	SentAt    time.Time
}

// Repository is the engagement storage contract.
type Repository interface {
	GetDeal(ctx context.Context, tenantID, dealID uuid.UUID) (DealRef, error)
	ListEvents(ctx context.Context, dealID uuid.UUID) ([]domain.Event, error)
	ListActiveDeals(ctx context.Context, tenantID, after uuid.UUID, limit int) ([]DealRef, error)
	ListTenantsWithActiveDeals(ctx context.Context) ([]uuid.UUID, error)
	UpdateTier(ctx context.Context, dealID uuid.UUID, tier domain.Tier) error
	// RecordSend stores the log row and increments the deal's send counter.
	// It reports false when the message id was already recorded.
	RecordSend(ctx context.Context, params RecordSendParams) (bool, error)
	// MarkEvent flags a tracking signal on the log row. The first timestamp
	// for a kind wins; repeats are stored as no-ops.
	MarkEvent(ctx context.Context, messageID string, kind domain.EventKind, at time.Time) (DealRef, error)
}

// PgRepository implements Repository on PostgreSQL.
type PgRepository struct {
	pool *pgxpool.Pool
}

// New creates a new engagement repository.
func New(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

var _ Repository = (*PgRepository)(nil)

func (r *PgRepository) GetDeal(ctx context.Context, tenantID, dealID uuid.UUID) (DealRef, error) {
	var d DealRef
	err := r.pool.QueryRow(ctx, `
		SELECT id, tenant_id, engagement_tier FROM deals
		WHERE id = $1 AND tenant_id = $2`, dealID, tenantID).
		Scan(&d.ID, &d.TenantID, &d.Tier)
	if errors.Is(err, pgx.ErrNoRows) {
		return DealRef{}, ErrNotFound
	}
	if err != nil {
		return DealRef{}, fmt.Errorf("get deal: %w", err)
	}
	return d, nil
}

func (r *PgRepository) ListEvents(ctx context.Context, dealID uuid.UUID) ([]domain.Event, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT sent_at, opened, opened_at, clicked, clicked_at, replied, replied_at
		FROM email_logs
		WHERE deal_id = $1 AND sent_at IS NOT NULL
		ORDER BY sent_at DESC`, dealID)
	if err != nil {
		return nil, fmt.Errorf("list email events: %w", err)
	}
	defer rows.Close()

	var out []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.SentAt, &e.Opened, &e.OpenedAt, &e.Clicked, &e.ClickedAt, &e.Replied, &e.RepliedAt); err != nil {
			return nil, fmt.Errorf("scan email event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *PgRepository) ListActiveDeals(ctx context.Context, tenantID, after uuid.UUID, limit int) ([]DealRef, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, tenant_id, engagement_tier FROM deals
		WHERE tenant_id = $1 AND status = 'active' AND id > $2
		ORDER BY id
		LIMIT $3`, tenantID, after, limit)
	if err != nil {
		return nil, fmt.Errorf("list active deals: %w", err)
	}
	defer rows.Close()

	var out []DealRef
	for rows.Next() {
		var d DealRef
		if err := rows.Scan(&d.ID, &d.TenantID, &d.Tier); err != nil {
			return nil, fmt.Errorf("scan deal: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *PgRepository) ListTenantsWithActiveDeals(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT tenant_id FROM deals WHERE status = 'active'`)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (r *PgRepository) UpdateTier(ctx context.Context, dealID uuid.UUID, tier domain.Tier) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE deals SET engagement_tier = $2, updated_at = now()
		WHERE id = $1 AND engagement_tier <> $2`, dealID, string(tier))
	if err != nil {
		return fmt.Errorf("update engagement tier: %w", err)
	}
	return nil
}

func (r *PgRepository) RecordSend(ctx context.Context, params RecordSendParams) (bool, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE deals SET emails_sent = emails_sent + 1, updated_at = now()
		WHERE id = $1 AND tenant_id = $2`, params.DealID, params.TenantID)
	if err != nil {
		return false, fmt.Errorf("increment emails sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, ErrNotFound
	}

	tag, err = tx.Exec(ctx, `
		INSERT INTO email_logs (deal_id, message_id, sent_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (message_id) DO NOTHING`, params.DealID, params.MessageID, params.SentAt)
	if err != nil {
		return false, fmt.Errorf("insert email log: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Duplicate delivery report: keep the counter unchanged.
		return false, nil
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}

var markEventSQL = map[domain.EventKind]string{
	domain.EventOpen: `
		UPDATE email_logs l SET opened = TRUE, opened_at = COALESCE(l.opened_at, $2)
		FROM deals d
		WHERE l.message_id = $1 AND d.id = l.deal_id
		RETURNING d.id, d.tenant_id, d.engagement_tier`,
	domain.EventClick: `
		UPDATE email_logs l SET clicked = TRUE, clicked_at = COALESCE(l.clicked_at, $2)
		FROM deals d
		WHERE l.message_id = $1 AND d.id = l.deal_id
		RETURNING d.id, d.tenant_id, d.engagement_tier`,
	domain.EventReply: `
		UPDATE email_logs l SET replied = TRUE, replied_at = COALESCE(l.replied_at, $2)
		FROM deals d
		WHERE l.message_id = $1 AND d.id = l.deal_id
		RETURNING d.id, d.tenant_id, d.engagement_tier`,
}

func (r *PgRepository) MarkEvent(ctx context.Context, messageID string, kind domain.EventKind, at time.Time) (DealRef, error) {
	query, ok := markEventSQL[kind]
	if !ok {
		return DealRef{}, fmt.Errorf("unknown event kind %q", kind)
	}
	var d DealRef
	err := r.pool.QueryRow(ctx, query, messageID, at).Scan(&d.ID, &d.TenantID, &d.Tier)
	if errors.Is(err, pgx.ErrNoRows) {
		return DealRef{}, ErrNotFound
	}
	if err != nil {
		return DealRef{}, fmt.Errorf("mark %s: %w", kind, err)
	}
	return d, nil
}
