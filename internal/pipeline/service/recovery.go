package service

import (
	"context"
	"errors"
	"fmt"

	"outreach_backend/internal/pipeline/domain"
	"outreach_backend/internal/pipeline/repository"

	"github.com/google/uuid"
)

const recoveryPageSize = 100

// RecoverStage places an unstaged deal into the stage the recovery table
// recommends. Deals that already have a stage are left alone, which makes
// repeated runs no-ops.
func (s *Service) RecoverStage(ctx context.Context, tenantID, dealID uuid.UUID) domain.Result {
	deal, err := s.repo.GetDeal(ctx, tenantID, dealID)
	if err != nil {
		return s.recovered(ctx, dealID, lookupResult("deal not found", err))
	}
	stages, err := s.repo.ListStages(ctx, deal.PipelineID)
	if err != nil {
		return s.recovered(ctx, dealID, domain.Result{Outcome: domain.OutcomeFailed, Reason: err.Error()})
	}
	return s.recovered(ctx, dealID, s.recoverDeal(ctx, deal, stages))
}

// RecoverAll runs stage recovery over every unstaged deal of the tenant.
// Per-deal failures are counted and the run continues; only a failure to
// list deals stops it early.
func (s *Service) RecoverAll(ctx context.Context, tenantID uuid.UUID) (domain.RecoveryReport, error) {
	var report domain.RecoveryReport
	stagesByPipeline := make(map[uuid.UUID][]domain.Stage)
	cursor := uuid.Nil

	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		deals, err := s.repo.ListUnstagedDeals(ctx, tenantID, cursor, recoveryPageSize)
		if err != nil {
			return report, fmt.Errorf("list unstaged deals: %w", err)
		}
		if len(deals) == 0 {
			break
		}

		for _, deal := range deals {
			cursor = deal.ID

			stages, ok := stagesByPipeline[deal.PipelineID]
			if !ok {
				stages, err = s.repo.ListStages(ctx, deal.PipelineID)
				if err != nil {
					report.Add(s.recovered(ctx, deal.ID, domain.Result{Outcome: domain.OutcomeFailed, Reason: err.Error()}))
					continue
				}
				stagesByPipeline[deal.PipelineID] = stages
			}

			report.Add(s.recovered(ctx, deal.ID, s.recoverDeal(ctx, deal, stages)))
		}

		if len(deals) < recoveryPageSize {
			break
		}
	}

	s.log.WithContext(ctx).Info("stage recovery finished",
		"tenant_id", tenantID,
		"scanned", report.Scanned,
		"recovered", report.Recovered,
		"noop", report.Noop,
		"unmatched", report.Unmatched,
		"failed", report.Failed,
	)
	return report, nil
}

func (s *Service) recoverDeal(ctx context.Context, deal domain.Deal, stages []domain.Stage) domain.Result {
	if deal.CurrentStageID != nil {
		return domain.Result{Outcome: domain.OutcomeNoop, Reason: "deal already has a stage", Deal: &deal}
	}
	if _, ok := domain.RecommendStage(deal, stages); !ok {
		return domain.Result{Outcome: domain.OutcomeUnmatched, Reason: "no recommendation", Deal: &deal}
	}

	var before domain.Deal
	var rec domain.Recommendation
	var skipped domain.Outcome
	updated, applied, err := s.repo.Transition(ctx, deal.TenantID, deal.ID, func(locked domain.Deal, _ *domain.Stage) (*domain.Change, error) {
		before = locked
		if locked.CurrentStageID != nil {
			skipped = domain.OutcomeNoop
			return nil, nil
		}
		var ok bool
		rec, ok = domain.RecommendStage(locked, stages)
		if !ok {
			skipped = domain.OutcomeUnmatched
			return nil, nil
		}
		change := domain.PlanRecovery(locked, rec, s.now())
		return &change, nil
	})
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return domain.Result{Outcome: domain.OutcomeNotFound, Reason: "deal not found"}
	case err != nil:
		return domain.Result{Outcome: domain.OutcomeFailed, Reason: err.Error()}
	case !applied && skipped == domain.OutcomeUnmatched:
		return domain.Result{Outcome: domain.OutcomeUnmatched, Reason: "no recommendation", Deal: &updated}
	case !applied:
		return domain.Result{Outcome: domain.OutcomeNoop, Reason: "deal already has a stage", Deal: &updated}
	}

	s.publishStageChanged(ctx, before, updated, rec.Stage, domain.TriggerRecovery)
	return domain.Result{
		Outcome: domain.OutcomeApplied,
		Reason:  fmt.Sprintf("%s via %s", rec.Stage.Name, rec.Rule),
		Deal:    &updated,
		Stage:   &rec.Stage,
	}
}

func (s *Service) recovered(ctx context.Context, dealID uuid.UUID, res domain.Result) domain.Result {
	s.metrics.Recovery(string(res.Outcome))
	return s.report(ctx, domain.TriggerRecovery, dealID, res)
}
