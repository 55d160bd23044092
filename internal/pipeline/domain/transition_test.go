package domain

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

var now = time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)

type fixture struct {
	pipelineID uuid.UUID
	registered Stage
	nudge      Stage
	listed     Stage
}

func newFixture() fixture {
	pid := uuid.New()
	return fixture{
		pipelineID: pid,
		registered: Stage{ID: uuid.New(), PipelineID: pid, Name: "Registered", Order: 0, DaysUntilFollowup: 2},
		nudge:      Stage{ID: uuid.New(), PipelineID: pid, Name: "NudgeA", Order: 1},
		listed:     Stage{ID: uuid.New(), PipelineID: pid, Name: "Listed", Order: 2, IsTerminal: true},
	}
}

func (f fixture) dealAt(stage *Stage) Deal {
	d := Deal{ID: uuid.New(), PipelineID: f.pipelineID, Status: StatusActive}
	if stage != nil {
		id := stage.ID
		d.CurrentStageID = &id
	}
	return d
}

func TestPlanProgressIntoTerminalStageWinsDeal(t *testing.T) {
	f := newFixture()
	deal := f.dealAt(&f.registered)
	followup := now.Add(48 * time.Hour)
	deal.NextActionDate = &followup

	change, reason, ok := PlanProgress(deal, &f.registered, f.listed, ActionListingPublished, now)
	if !ok {
		t.Fatalf("expected progression, got noop: %s", reason)
	}
	if change.StageID != f.listed.ID {
		t.Fatalf("expected Listed stage, got %s", change.StageID)
	}
	if change.Status != StatusWon {
		t.Fatalf("expected won, got %s", change.Status)
	}
	if change.NextActionDate != nil {
		t.Fatalf("expected next action cleared, got %v", change.NextActionDate)
	}

	stageChanges := 0
	for _, a := range change.Activities {
		if a.Type == ActivityStageChange {
			stageChanges++
		}
	}
	if stageChanges != 1 {
		t.Fatalf("expected exactly one stage_change activity, got %d", stageChanges)
	}
}

func TestPlanProgressRefusesEarlierTarget(t *testing.T) {
	f := newFixture()
	deal := f.dealAt(&f.listed)

	_, reason, ok := PlanProgress(deal, &f.listed, f.registered, ActionSignedUp, now)
	if ok {
		t.Fatal("expected noop when target order is behind the current stage")
	}
	if reason == "" {
		t.Fatal("expected a reason for the noop")
	}
}

func TestPlanProgressIsIdempotent(t *testing.T) {
	f := newFixture()
	deal := f.dealAt(&f.nudge)

	if _, _, ok := PlanProgress(deal, &f.nudge, f.nudge, ActionProfileComplete, now); ok {
		t.Fatal("expected noop when already at target")
	}
}

func TestPlanProgressIgnoresClosedDeals(t *testing.T) {
	f := newFixture()
	deal := f.dealAt(&f.registered)
	deal.Status = StatusLost

	if _, _, ok := PlanProgress(deal, &f.registered, f.nudge, ActionProfileComplete, now); ok {
		t.Fatal("expected noop for lost deal")
	}
}

func TestPlanProgressWonDealAtTargetReportsStage(t *testing.T) {
	f := newFixture()
	deal := f.dealAt(&f.listed)
	deal.Status = StatusWon

	_, reason, ok := PlanProgress(deal, &f.listed, f.registered, ActionSignedUp, now)
	if ok {
		t.Fatal("expected noop for a won deal past the target")
	}
	if !strings.Contains(reason, "already at") {
		t.Fatalf("expected stage reason, got %q", reason)
	}
}

func TestPlanMoveLostDealGetsNoFollowup(t *testing.T) {
	f := newFixture()
	deal := f.dealAt(&f.nudge)
	deal.Status = StatusLost
	stale := now.Add(-24 * time.Hour)
	deal.NextActionDate = &stale

	change, err := PlanMove(deal, &f.nudge, f.registered, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if change.NextActionDate != nil {
		t.Fatalf("expected no follow-up for lost deal, got %v", change.NextActionDate)
	}
	if change.Status != StatusLost {
		t.Fatalf("expected status kept, got %s", change.Status)
	}
}

func TestPlanMoveAllowsBackwardMoves(t *testing.T) {
	f := newFixture()
	deal := f.dealAt(&f.nudge)

	change, err := PlanMove(deal, &f.nudge, f.registered, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if change.StageID != f.registered.ID || !change.StageEnteredAt.Equal(now) {
		t.Fatalf("unexpected change: %+v", change)
	}
	if change.Status != StatusActive {
		t.Fatalf("explicit move must keep status, got %s", change.Status)
	}
}

func TestPlanMoveSchedulesFollowup(t *testing.T) {
	f := newFixture()
	deal := f.dealAt(nil)

	change, err := PlanMove(deal, nil, f.registered, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if change.NextActionDate == nil {
		t.Fatal("expected next action date")
	}
	limit := now.Add(time.Duration(f.registered.DaysUntilFollowup) * 24 * time.Hour)
	if change.NextActionDate.Before(now) || change.NextActionDate.After(limit) {
		t.Fatalf("next action %v outside [%v, %v]", change.NextActionDate, now, limit)
	}
}

func TestPlanMoveWithoutFollowupKeepsExistingDate(t *testing.T) {
	f := newFixture()
	deal := f.dealAt(&f.registered)
	existing := now.Add(72 * time.Hour)
	deal.NextActionDate = &existing

	change, err := PlanMove(deal, &f.registered, f.nudge, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if change.NextActionDate == nil || !change.NextActionDate.Equal(existing) {
		t.Fatalf("expected existing date kept, got %v", change.NextActionDate)
	}
}

func TestPlanMoveIntoTerminalClearsFollowup(t *testing.T) {
	f := newFixture()
	deal := f.dealAt(&f.registered)
	existing := now.Add(72 * time.Hour)
	deal.NextActionDate = &existing

	change, err := PlanMove(deal, &f.registered, f.listed, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if change.NextActionDate != nil {
		t.Fatalf("expected cleared date, got %v", change.NextActionDate)
	}
}

func TestPlanMoveRejectsForeignStage(t *testing.T) {
	f := newFixture()
	deal := f.dealAt(&f.registered)
	foreign := Stage{ID: uuid.New(), PipelineID: uuid.New(), Name: "Elsewhere", Order: 5}

	_, err := PlanMove(deal, &f.registered, foreign, now)
	if !errors.Is(err, ErrStageOutsidePipeline) {
		t.Fatalf("expected ErrStageOutsidePipeline, got %v", err)
	}
}

func TestChangeApply(t *testing.T) {
	f := newFixture()
	deal := f.dealAt(nil)
	change, _ := PlanMove(deal, nil, f.nudge, now)

	updated := change.Apply(deal)
	if updated.CurrentStageID == nil || *updated.CurrentStageID != f.nudge.ID {
		t.Fatal("expected current stage set")
	}
	if updated.StageEnteredAt == nil || !updated.StageEnteredAt.Equal(now) {
		t.Fatal("expected stage entered timestamp")
	}
}

func TestActionTableCoversEveryAction(t *testing.T) {
	for _, a := range Actions {
		if name, ok := TargetStageName(a); !ok || name == "" {
			t.Errorf("action %q has no target stage", a)
		}
	}
	if _, ok := ParseAction("  Listing_Published "); !ok {
		t.Fatal("expected action parsing to be case-insensitive")
	}
	if _, ok := ParseAction("unknown"); ok {
		t.Fatal("expected unknown action to be rejected")
	}
}

func TestFindStageByNameIgnoresCase(t *testing.T) {
	f := newFixture()
	stages := []Stage{f.registered, f.nudge, f.listed}

	got, ok := FindStageByName(stages, "LISTED")
	if !ok || got.ID != f.listed.ID {
		t.Fatalf("expected Listed, got %+v (ok=%v)", got, ok)
	}
}
