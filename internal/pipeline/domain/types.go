// Package domain provides the stage progression rules for deals moving
// through tenant pipelines. Nothing here performs I/O; callers supply the
// current state and an explicit clock reading and persist the returned Change.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a deal.
type Status string

const (
	StatusActive Status = "active"
	StatusWon    Status = "won"
	StatusLost   Status = "lost"
)

// ActivityType classifies an audit trail entry.
type ActivityType string

const (
	ActivityStageChange      ActivityType = "stage_change"
	ActivityStatusChange     ActivityType = "status_change"
	ActivityEngagementChange ActivityType = "engagement_change"
)

// Pipeline is an ordered outreach workflow owned by one tenant.
type Pipeline struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	Name      string
	IsActive  bool
	CreatedAt time.Time
}

// Stage is one step of a pipeline. Order is unique within the pipeline and
// is the only basis for "ahead of" comparisons.
type Stage struct {
	ID                uuid.UUID
	PipelineID        uuid.UUID
	Name              string
	Order             int
	IsTerminal        bool
	DaysUntilFollowup int
	AutoTemplate      *string
}

// Contact is the person a deal is about.
type Contact struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	Email     string
	FirstName string
	LastName  string
	Phone     string
}

// Deal tracks one contact inside one pipeline.
type Deal struct {
	ID              uuid.UUID
	TenantID        uuid.UUID
	ContactID       uuid.UUID
	PipelineID      uuid.UUID
	CurrentStageID  *uuid.UUID
	Status          Status
	StageEnteredAt  *time.Time
	NextActionDate  *time.Time
	EmailsSent      int
	EngagementTier  string
	AutopilotPaused bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Activity is an append-only audit entry.
type Activity struct {
	ID          uuid.UUID
	DealID      uuid.UUID
	Type        ActivityType
	Description string
	CreatedAt   time.Time
}
