package service

import (
	"context"
	"errors"
	"fmt"

	"outreach_backend/internal/pipeline/domain"
	"outreach_backend/internal/pipeline/repository"
	"outreach_backend/platform/apperr"
	"outreach_backend/platform/validator"

	"github.com/google/uuid"
)

// MoveToStage puts a deal into any stage of its own pipeline, forward or
// backward. A stage from another pipeline is rejected before anything is written.
func (s *Service) MoveToStage(ctx context.Context, tenantID, dealID, stageID uuid.UUID) (domain.Deal, error) {
	const op = "pipeline.MoveToStage"

	deal, err := s.repo.GetDeal(ctx, tenantID, dealID)
	if err != nil {
		return domain.Deal{}, s.lookupError(op, "deal not found", err)
	}
	target, err := s.repo.GetStage(ctx, stageID)
	if err != nil {
		return domain.Deal{}, s.lookupError(op, "stage not found", err)
	}
	if target.PipelineID != deal.PipelineID {
		s.report(ctx, domain.TriggerMove, dealID, domain.Result{Outcome: domain.OutcomeRejected, Reason: domain.ErrStageOutsidePipeline.Error()})
		return domain.Deal{}, apperr.Invariant(domain.ErrStageOutsidePipeline.Error()).WithOp(op)
	}

	var before domain.Deal
	updated, applied, err := s.repo.Transition(ctx, tenantID, dealID, func(locked domain.Deal, current *domain.Stage) (*domain.Change, error) {
		before = locked
		change, err := domain.PlanMove(locked, current, target, s.now())
		if err != nil {
			return nil, err
		}
		return &change, nil
	})
	switch {
	case errors.Is(err, domain.ErrStageOutsidePipeline):
		return domain.Deal{}, apperr.Invariant(err.Error()).WithOp(op)
	case errors.Is(err, repository.ErrNotFound):
		return domain.Deal{}, apperr.NotFound("deal not found").WithOp(op)
	case err != nil:
		s.report(ctx, domain.TriggerMove, dealID, domain.Result{Outcome: domain.OutcomeFailed, Reason: err.Error()})
		return domain.Deal{}, apperr.Internal("failed to move deal", err).WithOp(op)
	}

	if applied {
		s.report(ctx, domain.TriggerMove, dealID, domain.Result{Outcome: domain.OutcomeApplied})
		s.publishStageChanged(ctx, before, updated, target, domain.TriggerMove)
	}
	return updated, nil
}

// ProgressByAction advances the contact's active deal to the stage the action
// maps to. It only ever moves forward, so replayed actions are no-ops, also
// after the deal was closed by reaching a terminal stage.
// Every failure is reported in the Result; nothing is returned as an error.
func (s *Service) ProgressByAction(ctx context.Context, tenantID uuid.UUID, email string, action domain.Action) domain.Result {
	stageName, ok := domain.TargetStageName(action)
	if !ok {
		return s.report(ctx, domain.TriggerAction, uuid.Nil, domain.Result{Outcome: domain.OutcomeRejected, Reason: fmt.Sprintf("unknown action %q", action)})
	}
	email = domain.Fold(email)
	if !validator.Mailbox(email) {
		return s.report(ctx, domain.TriggerAction, uuid.Nil, domain.Result{Outcome: domain.OutcomeRejected, Reason: "invalid email address"})
	}

	pipelines, err := s.repo.ListActivePipelines(ctx, tenantID)
	if err != nil {
		return s.report(ctx, domain.TriggerAction, uuid.Nil, domain.Result{Outcome: domain.OutcomeFailed, Reason: err.Error()})
	}
	switch len(pipelines) {
	case 0:
		return s.report(ctx, domain.TriggerAction, uuid.Nil, domain.Result{Outcome: domain.OutcomeNotFound, Reason: "no active pipeline"})
	case 1:
	default:
		return s.report(ctx, domain.TriggerAction, uuid.Nil, domain.Result{Outcome: domain.OutcomeRejected, Reason: fmt.Sprintf("%d active pipelines, expected one", len(pipelines))})
	}
	pipeline := pipelines[0]

	stages, err := s.repo.ListStages(ctx, pipeline.ID)
	if err != nil {
		return s.report(ctx, domain.TriggerAction, uuid.Nil, domain.Result{Outcome: domain.OutcomeFailed, Reason: err.Error()})
	}
	target, ok := domain.FindStageByName(stages, stageName)
	if !ok {
		return s.report(ctx, domain.TriggerAction, uuid.Nil, domain.Result{Outcome: domain.OutcomeNotFound, Reason: fmt.Sprintf("pipeline %q has no stage %q", pipeline.Name, stageName)})
	}

	contact, err := s.repo.FindContactByEmail(ctx, tenantID, email)
	if err != nil {
		return s.report(ctx, domain.TriggerAction, uuid.Nil, lookupResult("contact not found", err))
	}
	deal, err := s.repo.FindActiveDeal(ctx, contact.ID, pipeline.ID)
	if errors.Is(err, repository.ErrNotFound) {
		// A won or lost deal still answers replays, which must stay no-ops.
		deal, err = s.repo.FindLatestDeal(ctx, contact.ID, pipeline.ID)
	}
	if err != nil {
		return s.report(ctx, domain.TriggerAction, uuid.Nil, lookupResult("no deal for contact", err))
	}

	var before domain.Deal
	var noopReason string
	updated, applied, err := s.repo.Transition(ctx, tenantID, deal.ID, func(locked domain.Deal, current *domain.Stage) (*domain.Change, error) {
		before = locked
		change, reason, ok := domain.PlanProgress(locked, current, target, action, s.now())
		if !ok {
			noopReason = reason
			return nil, nil
		}
		return &change, nil
	})
	if err != nil {
		return s.report(ctx, domain.TriggerAction, deal.ID, lookupResult("deal not found", err))
	}
	if !applied {
		return s.report(ctx, domain.TriggerAction, deal.ID, domain.Result{Outcome: domain.OutcomeNoop, Reason: noopReason, Deal: &updated, Stage: &target})
	}

	s.publishStageChanged(ctx, before, updated, target, domain.TriggerAction)
	return s.report(ctx, domain.TriggerAction, deal.ID, domain.Result{Outcome: domain.OutcomeApplied, Deal: &updated, Stage: &target})
}

// lookupResult turns a repository error into a not_found or failed result.
func lookupResult(notFoundReason string, err error) domain.Result {
	if errors.Is(err, repository.ErrNotFound) {
		return domain.Result{Outcome: domain.OutcomeNotFound, Reason: notFoundReason}
	}
	return domain.Result{Outcome: domain.OutcomeFailed, Reason: err.Error()}
}

func (s *Service) lookupError(op, notFoundMessage string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound(notFoundMessage).WithOp(op)
	}
	s.log.DatabaseError(op, err)
	return apperr.Internal("lookup failed", err).WithOp(op)
}
