package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"outreach_backend/internal/events"
	"outreach_backend/internal/pipeline/domain"
	"outreach_backend/internal/pipeline/transport"
	"outreach_backend/platform/apperr"
	"outreach_backend/platform/logger"
	"outreach_backend/platform/validator"

	"github.com/google/uuid"
)

var fixedNow = time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

type recordingBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *recordingBus) Publish(_ context.Context, e events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
}

func (b *recordingBus) stageChanges() []events.DealStageChanged {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []events.DealStageChanged
	for _, e := range b.events {
		if sc, ok := e.(events.DealStageChanged); ok {
			out = append(out, sc)
		}
	}
	return out
}

type harness struct {
	svc    *Service
	repo   *fakeRepo
	bus    *recordingBus
	tenant uuid.UUID
}

func newHarness() harness {
	repo := newFakeRepo()
	bus := &recordingBus{}
	svc := New(repo, bus, validator.New(), logger.Discard(), WithClock(func() time.Time { return fixedNow }))
	return harness{svc: svc, repo: repo, bus: bus, tenant: uuid.New()}
}

// listingPipeline seeds Registered(0) -> NudgeA(1) -> Listed(2, terminal).
func (h harness) listingPipeline() (domain.Pipeline, []domain.Stage) {
	template := "listing_live"
	return h.repo.addPipeline(h.tenant, "Onboarding", true,
		domain.Stage{Name: "Registered", Order: 0, DaysUntilFollowup: 2},
		domain.Stage{Name: "NudgeA", Order: 1, DaysUntilFollowup: 3},
		domain.Stage{Name: "Listed", Order: 2, IsTerminal: true, AutoTemplate: &template},
	)
}

func (h harness) dealAt(p domain.Pipeline, contact domain.Contact, stage *domain.Stage) domain.Deal {
	d := domain.Deal{TenantID: h.tenant, ContactID: contact.ID, PipelineID: p.ID}
	if stage != nil {
		id := stage.ID
		d.CurrentStageID = &id
		followup := fixedNow.Add(24 * time.Hour)
		d.NextActionDate = &followup
	}
	return h.repo.addDeal(d)
}

func TestProgressByActionIntoTerminalStage(t *testing.T) {
	h := newHarness()
	p, stages := h.listingPipeline()
	contact := h.repo.addContact(h.tenant, "Owner@Example.com")
	deal := h.dealAt(p, contact, &stages[0])

	res := h.svc.ProgressByAction(context.Background(), h.tenant, "owner@example.com", domain.ActionListingPublished)
	if !res.Applied() {
		t.Fatalf("expected applied, got %s: %s", res.Outcome, res.Reason)
	}

	got := h.repo.deal(deal.ID)
	if got.CurrentStageID == nil || *got.CurrentStageID != stages[2].ID {
		t.Fatalf("expected deal in Listed, got %v", got.CurrentStageID)
	}
	if got.Status != domain.StatusWon {
		t.Fatalf("expected won, got %s", got.Status)
	}
	if got.NextActionDate != nil {
		t.Fatalf("expected next action cleared, got %v", got.NextActionDate)
	}
	if n := h.repo.activityCount(deal.ID, domain.ActivityStageChange); n != 1 {
		t.Fatalf("expected exactly one stage_change activity, got %d", n)
	}

	changes := h.bus.stageChanges()
	if len(changes) != 1 || changes[0].ToStageID != stages[2].ID || changes[0].AutoTemplate == nil {
		t.Fatalf("expected one DealStageChanged for Listed, got %+v", changes)
	}
}

func TestProgressByActionRefusesRegression(t *testing.T) {
	h := newHarness()
	p, stages := h.listingPipeline()
	contact := h.repo.addContact(h.tenant, "owner@example.com")
	deal := h.dealAt(p, contact, &stages[2])

	res := h.svc.ProgressByAction(context.Background(), h.tenant, "owner@example.com", domain.ActionSignedUp)
	if res.Outcome != domain.OutcomeNoop {
		t.Fatalf("expected noop, got %s", res.Outcome)
	}
	if got := h.repo.deal(deal.ID); *got.CurrentStageID != stages[2].ID {
		t.Fatal("deal must not move backward")
	}
	if n := h.repo.activityCount(deal.ID, domain.ActivityStageChange); n != 0 {
		t.Fatalf("expected no activity, got %d", n)
	}
	if len(h.bus.stageChanges()) != 0 {
		t.Fatal("expected no event for a noop")
	}
}

func TestProgressByActionRepeatedIsIdempotent(t *testing.T) {
	h := newHarness()
	p, stages := h.listingPipeline()
	contact := h.repo.addContact(h.tenant, "owner@example.com")
	deal := h.dealAt(p, contact, &stages[0])

	first := h.svc.ProgressByAction(context.Background(), h.tenant, "owner@example.com", domain.ActionSignedUp)
	if first.Outcome != domain.OutcomeNoop {
		t.Fatalf("expected noop when already at Registered, got %s", first.Outcome)
	}
	if n := h.repo.activityCount(deal.ID, domain.ActivityStageChange); n != 0 {
		t.Fatalf("expected no activity, got %d", n)
	}
}

func TestProgressByActionAfterWinStaysNoop(t *testing.T) {
	h := newHarness()
	p, stages := h.listingPipeline()
	contact := h.repo.addContact(h.tenant, "owner@example.com")
	deal := h.dealAt(p, contact, &stages[0])
	ctx := context.Background()

	if res := h.svc.ProgressByAction(ctx, h.tenant, "owner@example.com", domain.ActionListingPublished); !res.Applied() {
		t.Fatalf("expected applied, got %s: %s", res.Outcome, res.Reason)
	}

	for _, action := range []domain.Action{domain.ActionSignedUp, domain.ActionListingPublished} {
		res := h.svc.ProgressByAction(ctx, h.tenant, "owner@example.com", action)
		if res.Outcome != domain.OutcomeNoop {
			t.Fatalf("%s: expected noop, got %s: %s", action, res.Outcome, res.Reason)
		}
		if !strings.Contains(res.Reason, "already at") {
			t.Fatalf("%s: expected stage reason, got %q", action, res.Reason)
		}
	}

	got := h.repo.deal(deal.ID)
	if got.Status != domain.StatusWon || *got.CurrentStageID != stages[2].ID {
		t.Fatalf("deal changed: status=%s stage=%v", got.Status, got.CurrentStageID)
	}
	if n := h.repo.activityCount(deal.ID, domain.ActivityStageChange); n != 1 {
		t.Fatalf("expected one stage_change activity, got %d", n)
	}
	if len(h.bus.stageChanges()) != 1 {
		t.Fatalf("expected a single stage change event, got %d", len(h.bus.stageChanges()))
	}
}

func TestProgressByActionReportsMissingData(t *testing.T) {
	cases := []struct {
		name  string
		setup func(h harness)
		email string
		want  domain.Outcome
	}{
		{"no pipeline", func(h harness) {}, "a@example.com", domain.OutcomeNotFound},
		{"no contact", func(h harness) { h.listingPipeline() }, "a@example.com", domain.OutcomeNotFound},
		{"no deal", func(h harness) {
			h.listingPipeline()
			h.repo.addContact(h.tenant, "a@example.com")
		}, "a@example.com", domain.OutcomeNotFound},
		{"no stage", func(h harness) {
			h.repo.addPipeline(h.tenant, "Bare", true, domain.Stage{Name: "Start"})
		}, "a@example.com", domain.OutcomeNotFound},
		{"two active pipelines", func(h harness) {
			h.listingPipeline()
			h.repo.addPipeline(h.tenant, "Other", true, domain.Stage{Name: "Listed"})
		}, "a@example.com", domain.OutcomeRejected},
		{"bad email", func(h harness) { h.listingPipeline() }, "not-an-email", domain.OutcomeRejected},
	}

	for _, tc := range cases {
		h := newHarness()
		tc.setup(h)
		res := h.svc.ProgressByAction(context.Background(), h.tenant, tc.email, domain.ActionListingPublished)
		if res.Outcome != tc.want {
			t.Errorf("%s: expected %s, got %s (%s)", tc.name, tc.want, res.Outcome, res.Reason)
		}
	}
}

func TestProgressByActionRejectsUnknownAction(t *testing.T) {
	h := newHarness()
	res := h.svc.ProgressByAction(context.Background(), h.tenant, "a@example.com", domain.Action("teleported"))
	if res.Outcome != domain.OutcomeRejected {
		t.Fatalf("expected rejected, got %s", res.Outcome)
	}
}

func TestProgressByActionStorageFailureIsReported(t *testing.T) {
	h := newHarness()
	p, stages := h.listingPipeline()
	contact := h.repo.addContact(h.tenant, "owner@example.com")
	h.dealAt(p, contact, &stages[0])
	h.repo.transitionErr = errBoom

	res := h.svc.ProgressByAction(context.Background(), h.tenant, "owner@example.com", domain.ActionListingPublished)
	if res.Outcome != domain.OutcomeFailed {
		t.Fatalf("expected failed, got %s", res.Outcome)
	}
}

func TestProgressByActionConcurrentCallersApplyOnce(t *testing.T) {
	h := newHarness()
	p, stages := h.listingPipeline()
	contact := h.repo.addContact(h.tenant, "owner@example.com")
	deal := h.dealAt(p, contact, &stages[0])

	var wg sync.WaitGroup
	results := make([]domain.Result, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = h.svc.ProgressByAction(context.Background(), h.tenant, "owner@example.com", domain.ActionListingPublished)
		}(i)
	}
	wg.Wait()

	applied := 0
	for _, r := range results {
		switch {
		case r.Applied():
			applied++
		case r.Outcome != domain.OutcomeNoop:
			t.Fatalf("expected losing callers to see noop, got %s: %s", r.Outcome, r.Reason)
		}
	}
	if applied != 1 {
		t.Fatalf("expected exactly one applied transition, got %d", applied)
	}
	if n := h.repo.activityCount(deal.ID, domain.ActivityStageChange); n != 1 {
		t.Fatalf("expected one stage_change activity, got %d", n)
	}
}

func TestMoveToStageBackward(t *testing.T) {
	h := newHarness()
	p, stages := h.listingPipeline()
	contact := h.repo.addContact(h.tenant, "owner@example.com")
	deal := h.dealAt(p, contact, &stages[1])

	updated, err := h.svc.MoveToStage(context.Background(), h.tenant, deal.ID, stages[0].ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *updated.CurrentStageID != stages[0].ID {
		t.Fatal("expected deal back in Registered")
	}
	want := fixedNow.Add(48 * time.Hour)
	if updated.NextActionDate == nil || !updated.NextActionDate.Equal(want) {
		t.Fatalf("expected next action %v, got %v", want, updated.NextActionDate)
	}
	if updated.StageEnteredAt == nil || !updated.StageEnteredAt.Equal(fixedNow) {
		t.Fatalf("expected stage entered now, got %v", updated.StageEnteredAt)
	}
}

func TestMoveToStageRejectsForeignStage(t *testing.T) {
	h := newHarness()
	p, stages := h.listingPipeline()
	_, other := h.repo.addPipeline(h.tenant, "Other", false, domain.Stage{Name: "Elsewhere"})
	contact := h.repo.addContact(h.tenant, "owner@example.com")
	deal := h.dealAt(p, contact, &stages[0])

	_, err := h.svc.MoveToStage(context.Background(), h.tenant, deal.ID, other[0].ID)
	if !apperr.Is(err, apperr.KindInvariant) {
		t.Fatalf("expected invariant violation, got %v", err)
	}
	if got := h.repo.deal(deal.ID); *got.CurrentStageID != stages[0].ID {
		t.Fatal("deal must not change on rejected move")
	}
	if n := h.repo.activityCount(deal.ID, domain.ActivityStageChange); n != 0 {
		t.Fatalf("expected no activity, got %d", n)
	}
}

func TestMoveToStageNotFound(t *testing.T) {
	h := newHarness()
	_, stages := h.listingPipeline()

	_, err := h.svc.MoveToStage(context.Background(), h.tenant, uuid.New(), stages[0].ID)
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMoveToStageHidesOtherTenantsDeals(t *testing.T) {
	h := newHarness()
	p, stages := h.listingPipeline()
	contact := h.repo.addContact(h.tenant, "owner@example.com")
	deal := h.dealAt(p, contact, &stages[0])

	_, err := h.svc.MoveToStage(context.Background(), uuid.New(), deal.ID, stages[1].ID)
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found for another tenant, got %v", err)
	}
}

func TestEnrollContactStartsAtFirstStage(t *testing.T) {
	h := newHarness()
	_, stages := h.listingPipeline()

	deal, err := h.svc.EnrollContact(context.Background(), h.tenant, transport.EnrollRequest{
		Email:     "  New@Example.com ",
		FirstName: "<b>Ada</b>",
		Phone:     "06 12345678",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deal.CurrentStageID == nil || *deal.CurrentStageID != stages[0].ID {
		t.Fatal("expected deal at first stage")
	}
	if deal.NextActionDate == nil || !deal.NextActionDate.Equal(fixedNow.Add(48*time.Hour)) {
		t.Fatalf("expected follow-up in two days, got %v", deal.NextActionDate)
	}

	contact, err := h.repo.FindContactByEmail(context.Background(), h.tenant, "new@example.com")
	if err != nil {
		t.Fatalf("expected contact stored: %v", err)
	}
	if contact.FirstName != "Ada" || contact.Phone != "+31612345678" {
		t.Fatalf("expected sanitized contact, got %+v", contact)
	}

	_, err = h.svc.EnrollContact(context.Background(), h.tenant, transport.EnrollRequest{Email: "new@example.com"})
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict for second active deal, got %v", err)
	}
}

func TestEnrollContactValidatesEmail(t *testing.T) {
	h := newHarness()
	h.listingPipeline()

	_, err := h.svc.EnrollContact(context.Background(), h.tenant, transport.EnrollRequest{Email: "nope"})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSeedFromTemplatesIsIdempotent(t *testing.T) {
	h := newHarness()
	templates, err := LoadTemplates("")
	if err != nil {
		t.Fatalf("load templates: %v", err)
	}

	first, err := h.svc.SeedFromTemplates(context.Background(), h.tenant, templates)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	second, err := h.svc.SeedFromTemplates(context.Background(), h.tenant, templates)
	if err != nil {
		t.Fatalf("reseed: %v", err)
	}
	if first.Created != len(templates) || second.Created != 0 || second.Skipped != len(templates) {
		t.Fatalf("unexpected reports: first=%+v second=%+v", first, second)
	}

	active, _ := h.repo.ListActivePipelines(context.Background(), h.tenant)
	if len(active) != 1 {
		t.Fatalf("expected one active seeded pipeline, got %d", len(active))
	}
	stages, _ := h.repo.ListStages(context.Background(), active[0].ID)
	for _, a := range domain.Actions {
		name, _ := domain.TargetStageName(a)
		if _, ok := domain.FindStageByName(stages, name); !ok {
			t.Errorf("default pipeline lacks stage %q for action %s", name, a)
		}
	}
}

func TestRecordTierChangeAppendsActivity(t *testing.T) {
	h := newHarness()
	p, stages := h.listingPipeline()
	contact := h.repo.addContact(h.tenant, "owner@example.com")
	deal := h.dealAt(p, contact, &stages[0])

	if err := h.svc.RecordTierChange(context.Background(), h.tenant, deal.ID, "cold", "engaged", fixedNow); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := h.repo.activityCount(deal.ID, domain.ActivityEngagementChange); n != 1 {
		t.Fatalf("expected one engagement_change activity, got %d", n)
	}
	if got := h.repo.deal(deal.ID); *got.CurrentStageID != stages[0].ID {
		t.Fatal("tier change must not move the deal")
	}
}

func TestRecordTierChangeIgnoresOtherTenantsDeals(t *testing.T) {
	h := newHarness()
	p, stages := h.listingPipeline()
	contact := h.repo.addContact(h.tenant, "owner@example.com")
	deal := h.dealAt(p, contact, &stages[0])

	if err := h.svc.RecordTierChange(context.Background(), uuid.New(), deal.ID, "cold", "hot", fixedNow); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := h.repo.activityCount(deal.ID, domain.ActivityEngagementChange); n != 0 {
		t.Fatalf("expected no activity, got %d", n)
	}
}
