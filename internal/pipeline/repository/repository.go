package repository

import (
	"context"
	"errors"
	"strings"

	"outreach_backend/internal/pipeline/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrDuplicateActiveDeal is returned when a contact already has an
	// active deal in the pipeline.
	ErrDuplicateActiveDeal = errors.New("contact already has an active deal in this pipeline")
)

const uniqueViolation = "23505"

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ PipelineRepository = (*Repository)(nil)

func (r *Repository) ListPipelines(ctx context.Context, tenantID uuid.UUID) ([]domain.Pipeline, error) {
	return r.queryPipelines(ctx, `
		SELECT id, tenant_id, name, is_active, created_at
		FROM pipelines
		WHERE tenant_id = $1
		ORDER BY name ASC
	`, tenantID)
}

func (r *Repository) ListActivePipelines(ctx context.Context, tenantID uuid.UUID) ([]domain.Pipeline, error) {
	return r.queryPipelines(ctx, `
		SELECT id, tenant_id, name, is_active, created_at
		FROM pipelines
		WHERE tenant_id = $1 AND is_active = true
		ORDER BY created_at ASC
	`, tenantID)
}

func (r *Repository) GetPipeline(ctx context.Context, tenantID, pipelineID uuid.UUID) (domain.Pipeline, error) {
	var p domain.Pipeline
	err := r.pool.QueryRow(ctx, `
		SELECT id, tenant_id, name, is_active, created_at
		FROM pipelines
		WHERE id = $1 AND tenant_id = $2
	`, pipelineID, tenantID).Scan(&p.ID, &p.TenantID, &p.Name, &p.IsActive, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Pipeline{}, ErrNotFound
	}
	return p, err
}

func (r *Repository) queryPipelines(ctx context.Context, query string, args ...any) ([]domain.Pipeline, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.Pipeline, 0)
	for rows.Next() {
		var p domain.Pipeline
		if err := rows.Scan(&p.ID, &p.TenantID, &p.Name, &p.IsActive, &p.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

const stageColumns = `id, pipeline_id, name, stage_order, is_terminal, days_until_followup, auto_template`

func scanStage(row pgx.Row) (domain.Stage, error) {
	var s domain.Stage
	err := row.Scan(&s.ID, &s.PipelineID, &s.Name, &s.Order, &s.IsTerminal, &s.DaysUntilFollowup, &s.AutoTemplate)
	return s, err
}

func (r *Repository) ListStages(ctx context.Context, pipelineID uuid.UUID) ([]domain.Stage, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+stageColumns+`
		FROM pipeline_stages
		WHERE pipeline_id = $1
		ORDER BY stage_order ASC
	`, pipelineID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stages := make([]domain.Stage, 0)
	for rows.Next() {
		s, err := scanStage(rows)
		if err != nil {
			return nil, err
		}
		stages = append(stages, s)
	}
	return stages, rows.Err()
}

func (r *Repository) GetStage(ctx context.Context, stageID uuid.UUID) (domain.Stage, error) {
	s, err := scanStage(r.pool.QueryRow(ctx, `SELECT `+stageColumns+` FROM pipeline_stages WHERE id = $1`, stageID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Stage{}, ErrNotFound
	}
	return s, err
}

func (r *Repository) CreatePipeline(ctx context.Context, params CreatePipelineParams) (domain.Pipeline, bool, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.Pipeline{}, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var p domain.Pipeline
	err = tx.QueryRow(ctx, `
		INSERT INTO pipelines (tenant_id, name, is_active)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING
		RETURNING id, tenant_id, name, is_active, created_at
	`, params.TenantID, strings.TrimSpace(params.Name), params.IsActive).Scan(&p.ID, &p.TenantID, &p.Name, &p.IsActive, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		existing, findErr := r.findPipelineByName(ctx, params.TenantID, params.Name)
		return existing, false, findErr
	}
	if err != nil {
		return domain.Pipeline{}, false, err
	}

	for _, s := range params.Stages {
		if _, err := tx.Exec(ctx, `
			INSERT INTO pipeline_stages (pipeline_id, name, stage_order, is_terminal, days_until_followup, auto_template)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, p.ID, s.Name, s.Order, s.IsTerminal, s.DaysUntilFollowup, s.AutoTemplate); err != nil {
			return domain.Pipeline{}, false, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Pipeline{}, false, err
	}
	return p, true, nil
}

func (r *Repository) findPipelineByName(ctx context.Context, tenantID uuid.UUID, name string) (domain.Pipeline, error) {
	var p domain.Pipeline
	err := r.pool.QueryRow(ctx, `
		SELECT id, tenant_id, name, is_active, created_at
		FROM pipelines
		WHERE tenant_id = $1 AND lower(name) = lower($2)
	`, tenantID, strings.TrimSpace(name)).Scan(&p.ID, &p.TenantID, &p.Name, &p.IsActive, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Pipeline{}, ErrNotFound
	}
	return p, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
