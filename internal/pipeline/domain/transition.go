package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const day = 24 * time.Hour

// ErrStageOutsidePipeline is returned when a target stage belongs to a
// different pipeline than the deal.
var ErrStageOutsidePipeline = errors.New("stage does not belong to the deal's pipeline")

// Trigger says what caused a transition.
type Trigger string

const (
	TriggerMove     Trigger = "move"
	TriggerAction   Trigger = "action"
	TriggerRecovery Trigger = "recovery"
	TriggerEnroll   Trigger = "enroll"
)

// Change is the full set of writes one transition performs. The repository
// applies it together with its activities in a single transaction.
type Change struct {
	StageID        uuid.UUID
	StageEnteredAt time.Time
	NextActionDate *time.Time
	Status         Status
	Activities     []ActivityEntry
}

// ActivityEntry is an audit record still to be written.
type ActivityEntry struct {
	Type        ActivityType
	Description string
}

// Apply returns deal with the change applied.
func (c Change) Apply(deal Deal) Deal {
	id := c.StageID
	entered := c.StageEnteredAt
	deal.CurrentStageID = &id
	deal.StageEnteredAt = &entered
	deal.NextActionDate = c.NextActionDate
	deal.Status = c.Status
	return deal
}

// PlanMove builds the change for an explicit move of deal into target.
// Moves may go backward. The deal's status is kept; only the follow-up date
// reacts to the target stage.
func PlanMove(deal Deal, current *Stage, target Stage, now time.Time) (Change, error) {
	if target.PipelineID != deal.PipelineID {
		return Change{}, ErrStageOutsidePipeline
	}

	return Change{
		StageID:        target.ID,
		StageEnteredAt: now,
		NextActionDate: nextActionDate(deal, target, deal.Status, now),
		Status:         deal.Status,
		Activities: []ActivityEntry{{
			Type:        ActivityStageChange,
			Description: describeMove(current, target),
		}},
	}, nil
}

// PlanProgress builds the change for an action-driven progression. ok is
// false with a reason when the deal must stay where it is: it is no longer
// active or it already sits at or beyond the target.
func PlanProgress(deal Deal, current *Stage, target Stage, action Action, now time.Time) (Change, string, bool) {
	if current != nil && current.Order >= target.Order {
		return Change{}, fmt.Sprintf("deal already at %q (order %d), target %q has order %d", current.Name, current.Order, target.Name, target.Order), false
	}
	if deal.Status != StatusActive {
		return Change{}, fmt.Sprintf("deal is %s", deal.Status), false
	}

	change, err := PlanMove(deal, current, target, now)
	if err != nil {
		return Change{}, err.Error(), false
	}
	change.Activities[0].Description = fmt.Sprintf("%s (action: %s)", change.Activities[0].Description, action)

	if target.IsTerminal {
		change.Status = StatusWon
		change.NextActionDate = nil
		change.Activities = append(change.Activities, ActivityEntry{
			Type:        ActivityStatusChange,
			Description: fmt.Sprintf("Status changed from %s to %s", deal.Status, StatusWon),
		})
	}
	return change, "", true
}

// nextActionDate schedules the follow-up for a deal entering target.
// A positive follow-up delay reschedules; otherwise the existing date stays,
// except that closed deals and terminal stages never carry one.
func nextActionDate(deal Deal, target Stage, status Status, now time.Time) *time.Time {
	if target.IsTerminal || status == StatusWon || status == StatusLost {
		return nil
	}
	if target.DaysUntilFollowup > 0 {
		next := now.Add(time.Duration(target.DaysUntilFollowup) * day)
		return &next
	}
	return deal.NextActionDate
}

func describeMove(current *Stage, target Stage) string {
	if current == nil {
		return fmt.Sprintf("Moved to %s", target.Name)
	}
	return fmt.Sprintf("Moved from %s to %s", current.Name, target.Name)
}
