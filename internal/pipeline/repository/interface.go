package repository

import (
	"context"
	"time"

	"outreach_backend/internal/pipeline/domain"

	"github.com/google/uuid"
)

// =====================================
// Segregated Interfaces
// =====================================

// CatalogReader reads pipelines and their ordered stages.
type CatalogReader interface {
	ListPipelines(ctx context.Context, tenantID uuid.UUID) ([]domain.Pipeline, error)
	GetPipeline(ctx context.Context, tenantID, pipelineID uuid.UUID) (domain.Pipeline, error)
	ListActivePipelines(ctx context.Context, tenantID uuid.UUID) ([]domain.Pipeline, error)
	ListStages(ctx context.Context, pipelineID uuid.UUID) ([]domain.Stage, error)
	GetStage(ctx context.Context, stageID uuid.UUID) (domain.Stage, error)
}

// CatalogWriter creates pipelines.
type CatalogWriter interface {
	// CreatePipeline inserts a pipeline with its stages unless the tenant
	// already has one with the same name. created is false in that case.
	CreatePipeline(ctx context.Context, params CreatePipelineParams) (pipeline domain.Pipeline, created bool, err error)
}

// ContactStore finds and creates contacts.
type ContactStore interface {
	// FindContactByEmail matches email case-insensitively within the tenant.
	FindContactByEmail(ctx context.Context, tenantID uuid.UUID, email string) (domain.Contact, error)
	UpsertContact(ctx context.Context, params UpsertContactParams) (domain.Contact, error)
}

// DealReader provides read-only access to deals and their audit trail.
type DealReader interface {
	GetDeal(ctx context.Context, tenantID, dealID uuid.UUID) (domain.Deal, error)
	FindActiveDeal(ctx context.Context, contactID, pipelineID uuid.UUID) (domain.Deal, error)
	// FindLatestDeal is the fallback once a deal has been won or lost.
	FindLatestDeal(ctx context.Context, contactID, pipelineID uuid.UUID) (domain.Deal, error)
	// ListUnstagedDeals pages through deals without a current stage, ordered by id.
	ListUnstagedDeals(ctx context.Context, tenantID uuid.UUID, after uuid.UUID, limit int) ([]domain.Deal, error)
	ListActivities(ctx context.Context, dealID uuid.UUID) ([]domain.Activity, error)
}

// TransitionFunc decides, under the deal's row lock, what a transition
// writes. A nil change means nothing is written.
type TransitionFunc func(deal domain.Deal, current *domain.Stage) (*domain.Change, error)

// DealWriter mutates deals.
type DealWriter interface {
	CreateDeal(ctx context.Context, params CreateDealParams) (domain.Deal, error)
	// Transition locks the deal, calls fn and persists the returned change and
	// its activities atomically. applied reports whether anything was written.
	Transition(ctx context.Context, tenantID, dealID uuid.UUID, fn TransitionFunc) (deal domain.Deal, applied bool, err error)
	// AppendActivity adds an audit entry that does not come with a transition.
	AppendActivity(ctx context.Context, dealID uuid.UUID, entry domain.ActivityEntry, at time.Time) error
}

// PipelineRepository is the full repository used by the service.
type PipelineRepository interface {
	CatalogReader
	CatalogWriter
	ContactStore
	DealReader
	DealWriter
}

// CreatePipelineParams describes a pipeline to seed.
type CreatePipelineParams struct {
	TenantID uuid.UUID
	Name     string
	IsActive bool
	Stages   []CreateStageParams
}

// CreateStageParams describes one stage to seed.
type CreateStageParams struct {
	Name              string
	Order             int
	IsTerminal        bool
	DaysUntilFollowup int
	AutoTemplate      *string
}

// UpsertContactParams identifies a contact by tenant and email.
type UpsertContactParams struct {
	TenantID  uuid.UUID
	Email     string
	FirstName string
	LastName  string
	Phone     string
}

// CreateDealParams places a new deal in a stage.
type CreateDealParams struct {
	TenantID       uuid.UUID
	ContactID      uuid.UUID
	PipelineID     uuid.UUID
	StageID        uuid.UUID
	StageName      string
	EnteredAt      time.Time
	NextActionDate *time.Time
}
