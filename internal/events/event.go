// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"outreach_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Publisher   = events.Publisher
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEventAt = events.NewBaseEventAt

// =============================================================================
// Pipeline Domain Events
// =============================================================================

// DealStageChanged is published after a stage transition has committed.
// Subscribers run outside the transition and cannot undo it.
type DealStageChanged struct {
	BaseEvent
	TenantID     uuid.UUID  `json:"tenantId"`
	DealID       uuid.UUID  `json:"dealId"`
	ContactID    uuid.UUID  `json:"contactId"`
	PipelineID   uuid.UUID  `json:"pipelineId"`
	FromStageID  *uuid.UUID `json:"fromStageId,omitempty"`
	ToStageID    uuid.UUID  `json:"toStageId"`
	ToStageName  string     `json:"toStageName"`
	AutoTemplate *string    `json:"autoTemplate,omitempty"`
	Status       string     `json:"status"`
	Trigger      string     `json:"trigger"`
}

func (e DealStageChanged) EventName() string { return "pipeline.deal.stage_changed" }

// DealEnrolled is published when a contact enters a pipeline.
type DealEnrolled struct {
	BaseEvent
	TenantID   uuid.UUID `json:"tenantId"`
	DealID     uuid.UUID `json:"dealId"`
	ContactID  uuid.UUID `json:"contactId"`
	PipelineID uuid.UUID `json:"pipelineId"`
}

func (e DealEnrolled) EventName() string { return "pipeline.deal.enrolled" }

// =============================================================================
// Engagement Domain Events
// =============================================================================

// EngagementTierChanged is published when a recomputed tier differs from
// the one cached on the deal.
type EngagementTierChanged struct {
	BaseEvent
	TenantID uuid.UUID `json:"tenantId"`
	DealID   uuid.UUID `json:"dealId"`
	From     string    `json:"from"`
	To       string    `json:"to"`
}

func (e EngagementTierChanged) EventName() string { return "engagement.tier.changed" }

// =============================================================================
// Notification Events
// =============================================================================

// NotificationOutboxDue is published by the scheduler worker when an outbox
// row is due for delivery.
type NotificationOutboxDue struct {
	BaseEvent
	OutboxID uuid.UUID `json:"outboxId"`
	TenantID uuid.UUID `json:"tenantId"`
}

func (e NotificationOutboxDue) EventName() string { return "notification.outbox.due" }
