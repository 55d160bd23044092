package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"outreach_backend/internal/pipeline/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const dealColumns = `id, tenant_id, contact_id, pipeline_id, current_stage_id, status,
	stage_entered_at, next_action_date, emails_sent, engagement_tier, autopilot_paused,
	created_at, updated_at`

func scanDeal(row pgx.Row) (domain.Deal, error) {
	var d domain.Deal
	var status string
	err := row.Scan(
		&d.ID, &d.TenantID, &d.ContactID, &d.PipelineID, &d.CurrentStageID, &status,
		&d.StageEnteredAt, &d.NextActionDate, &d.EmailsSent, &d.EngagementTier, &d.AutopilotPaused,
		&d.CreatedAt, &d.UpdatedAt,
	)
	d.Status = domain.Status(status)
	return d, err
}

func (r *Repository) GetDeal(ctx context.Context, tenantID, dealID uuid.UUID) (domain.Deal, error) {
	d, err := scanDeal(r.pool.QueryRow(ctx, `
		SELECT `+dealColumns+`
		FROM deals
		WHERE id = $1 AND tenant_id = $2
	`, dealID, tenantID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Deal{}, ErrNotFound
	}
	return d, err
}

func (r *Repository) FindActiveDeal(ctx context.Context, contactID, pipelineID uuid.UUID) (domain.Deal, error) {
	d, err := scanDeal(r.pool.QueryRow(ctx, `
		SELECT `+dealColumns+`
		FROM deals
		WHERE contact_id = $1 AND pipeline_id = $2 AND status = 'active'
	`, contactID, pipelineID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Deal{}, ErrNotFound
	}
	return d, err
}

// FindLatestDeal returns the contact's most recently updated deal in the
// pipeline, whatever its status.
func (r *Repository) FindLatestDeal(ctx context.Context, contactID, pipelineID uuid.UUID) (domain.Deal, error) {
	d, err := scanDeal(r.pool.QueryRow(ctx, `
		SELECT `+dealColumns+`
		FROM deals
		WHERE contact_id = $1 AND pipeline_id = $2
		ORDER BY updated_at DESC, created_at DESC
		LIMIT 1
	`, contactID, pipelineID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Deal{}, ErrNotFound
	}
	return d, err
}

func (r *Repository) ListUnstagedDeals(ctx context.Context, tenantID uuid.UUID, after uuid.UUID, limit int) ([]domain.Deal, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+dealColumns+`
		FROM deals
		WHERE tenant_id = $1 AND current_stage_id IS NULL AND id > $2
		ORDER BY id ASC
		LIMIT $3
	`, tenantID, after, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	deals := make([]domain.Deal, 0, limit)
	for rows.Next() {
		d, err := scanDeal(rows)
		if err != nil {
			return nil, err
		}
		deals = append(deals, d)
	}
	return deals, rows.Err()
}

func (r *Repository) ListActivities(ctx context.Context, dealID uuid.UUID) ([]domain.Activity, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, deal_id, activity_type, description, created_at
		FROM deal_activities
		WHERE deal_id = $1
		ORDER BY created_at DESC, id DESC
	`, dealID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.Activity, 0)
	for rows.Next() {
		var a domain.Activity
		var activityType string
		if err := rows.Scan(&a.ID, &a.DealID, &activityType, &a.Description, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.Type = domain.ActivityType(activityType)
		items = append(items, a)
	}
	return items, rows.Err()
}

// CreateDeal inserts the deal and its initial stage_change activity.
func (r *Repository) CreateDeal(ctx context.Context, params CreateDealParams) (domain.Deal, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.Deal{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	d, err := scanDeal(tx.QueryRow(ctx, `
		INSERT INTO deals (tenant_id, contact_id, pipeline_id, current_stage_id, status, stage_entered_at, next_action_date)
		VALUES ($1, $2, $3, $4, 'active', $5, $6)
		RETURNING `+dealColumns,
		params.TenantID, params.ContactID, params.PipelineID, params.StageID, params.EnteredAt, params.NextActionDate,
	))
	if isUniqueViolation(err) {
		return domain.Deal{}, ErrDuplicateActiveDeal
	}
	if err != nil {
		return domain.Deal{}, err
	}

	if err := insertActivity(ctx, tx, d.ID, domain.ActivityEntry{
		Type:        domain.ActivityStageChange,
		Description: fmt.Sprintf("Entered pipeline at %s", params.StageName),
	}, params.EnteredAt); err != nil {
		return domain.Deal{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Deal{}, err
	}
	return d, nil
}

// Transition serializes concurrent transitions of one deal on its row lock.
// fn sees the state as of the lock, so a guard checked there cannot be
// invalidated by another committed transition.
func (r *Repository) Transition(ctx context.Context, tenantID, dealID uuid.UUID, fn TransitionFunc) (domain.Deal, bool, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.Deal{}, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	deal, err := scanDeal(tx.QueryRow(ctx, `
		SELECT `+dealColumns+`
		FROM deals
		WHERE id = $1 AND tenant_id = $2
		FOR UPDATE
	`, dealID, tenantID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Deal{}, false, ErrNotFound
	}
	if err != nil {
		return domain.Deal{}, false, err
	}

	var current *domain.Stage
	if deal.CurrentStageID != nil {
		s, err := scanStage(tx.QueryRow(ctx, `SELECT `+stageColumns+` FROM pipeline_stages WHERE id = $1`, *deal.CurrentStageID))
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return domain.Deal{}, false, err
		}
		if err == nil {
			current = &s
		}
	}

	change, err := fn(deal, current)
	if err != nil {
		return domain.Deal{}, false, err
	}
	if change == nil {
		return deal, false, nil
	}

	if _, err := tx.Exec(ctx, `
		UPDATE deals
		SET current_stage_id = $2, stage_entered_at = $3, next_action_date = $4, status = $5, updated_at = now()
		WHERE id = $1
	`, deal.ID, change.StageID, change.StageEnteredAt, change.NextActionDate, string(change.Status)); err != nil {
		return domain.Deal{}, false, err
	}

	for _, entry := range change.Activities {
		if err := insertActivity(ctx, tx, deal.ID, entry, change.StageEnteredAt); err != nil {
			return domain.Deal{}, false, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Deal{}, false, err
	}
	return change.Apply(deal), true, nil
}

func (r *Repository) AppendActivity(ctx context.Context, dealID uuid.UUID, entry domain.ActivityEntry, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO deal_activities (deal_id, activity_type, description, created_at)
		VALUES ($1, $2, $3, $4)
	`, dealID, string(entry.Type), entry.Description, at)
	return err
}

func insertActivity(ctx context.Context, tx pgx.Tx, dealID uuid.UUID, entry domain.ActivityEntry, at time.Time) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO deal_activities (deal_id, activity_type, description, created_at)
		VALUES ($1, $2, $3, $4)
	`, dealID, string(entry.Type), entry.Description, at)
	return err
}
