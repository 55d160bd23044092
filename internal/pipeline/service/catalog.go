package service

import (
	"context"
	"errors"
	"strings"

	"outreach_backend/internal/events"
	"outreach_backend/internal/pipeline/domain"
	"outreach_backend/internal/pipeline/repository"
	"outreach_backend/internal/pipeline/transport"
	"outreach_backend/platform/apperr"
	"outreach_backend/platform/phone"
	"outreach_backend/platform/sanitize"

	"github.com/google/uuid"
)

// PipelineWithStages is a pipeline and its stages in order.
type PipelineWithStages struct {
	Pipeline domain.Pipeline
	Stages   []domain.Stage
}

// SeedReport counts pipelines created or skipped by SeedFromTemplates.
type SeedReport struct {
	Created int
	Skipped int
}

// ListPipelines returns the tenant's pipelines.
func (s *Service) ListPipelines(ctx context.Context, tenantID uuid.UUID) ([]domain.Pipeline, error) {
	items, err := s.repo.ListPipelines(ctx, tenantID)
	if err != nil {
		return nil, apperr.Internal("failed to list pipelines", err)
	}
	return items, nil
}

// GetPipeline returns one pipeline with its ordered stages.
func (s *Service) GetPipeline(ctx context.Context, tenantID, pipelineID uuid.UUID) (PipelineWithStages, error) {
	const op = "pipeline.GetPipeline"

	p, err := s.repo.GetPipeline(ctx, tenantID, pipelineID)
	if err != nil {
		return PipelineWithStages{}, s.lookupError(op, "pipeline not found", err)
	}
	stages, err := s.repo.ListStages(ctx, p.ID)
	if err != nil {
		return PipelineWithStages{}, apperr.Internal("failed to list stages", err).WithOp(op)
	}
	return PipelineWithStages{Pipeline: p, Stages: stages}, nil
}

// GetDeal returns one deal of the tenant.
func (s *Service) GetDeal(ctx context.Context, tenantID, dealID uuid.UUID) (domain.Deal, error) {
	deal, err := s.repo.GetDeal(ctx, tenantID, dealID)
	if err != nil {
		return domain.Deal{}, s.lookupError("pipeline.GetDeal", "deal not found", err)
	}
	return deal, nil
}

// ListActivities returns the audit trail of a deal, newest first.
func (s *Service) ListActivities(ctx context.Context, tenantID, dealID uuid.UUID) ([]domain.Activity, error) {
	const op = "pipeline.ListActivities"

	if _, err := s.repo.GetDeal(ctx, tenantID, dealID); err != nil {
		return nil, s.lookupError(op, "deal not found", err)
	}
	items, err := s.repo.ListActivities(ctx, dealID)
	if err != nil {
		return nil, apperr.Internal("failed to list activities", err).WithOp(op)
	}
	return items, nil
}

// SeedFromTemplates creates the tenant's pipelines from templates. Pipelines
// whose name already exists are skipped, so seeding can be re-run safely.
func (s *Service) SeedFromTemplates(ctx context.Context, tenantID uuid.UUID, templates []PipelineTemplate) (SeedReport, error) {
	var report SeedReport
	for _, tpl := range templates {
		if err := tpl.validate(); err != nil {
			return report, apperr.Validation(err.Error()).WithOp("pipeline.SeedFromTemplates")
		}

		stages := make([]repository.CreateStageParams, 0, len(tpl.Stages))
		for i, st := range tpl.Stages {
			stages = append(stages, repository.CreateStageParams{
				Name:              strings.TrimSpace(st.Name),
				Order:             i,
				IsTerminal:        st.Terminal,
				DaysUntilFollowup: st.FollowupDays,
				AutoTemplate:      st.AutoTemplate,
			})
		}

		p, created, err := s.repo.CreatePipeline(ctx, repository.CreatePipelineParams{
			TenantID: tenantID,
			Name:     tpl.Name,
			IsActive: tpl.Active,
			Stages:   stages,
		})
		if err != nil {
			return report, apperr.Internal("failed to seed pipeline", err).WithOp("pipeline.SeedFromTemplates")
		}
		if created {
			report.Created++
			s.log.Info("pipeline seeded", "tenant_id", tenantID, "pipeline_id", p.ID, "name", p.Name, "stages", len(stages))
		} else {
			report.Skipped++
		}
	}
	return report, nil
}

// EnrollContact creates or refreshes the contact and opens a deal for it at
// the first stage of the requested pipeline, or of the tenant's single active
// pipeline when none is given.
func (s *Service) EnrollContact(ctx context.Context, tenantID uuid.UUID, req transport.EnrollRequest) (domain.Deal, error) {
	const op = "pipeline.EnrollContact"

	req.Email = domain.Fold(req.Email)
	if err := s.validator.Struct(req); err != nil {
		return domain.Deal{}, apperr.Validation("invalid enrollment request").WithOp(op).WithDetails(err.Error())
	}

	pipelineID, err := s.resolvePipeline(ctx, tenantID, req.PipelineID)
	if err != nil {
		return domain.Deal{}, err
	}
	stages, err := s.repo.ListStages(ctx, pipelineID)
	if err != nil {
		return domain.Deal{}, apperr.Internal("failed to list stages", err).WithOp(op)
	}
	if len(stages) == 0 {
		return domain.Deal{}, apperr.Invariant("pipeline has no stages").WithOp(op)
	}
	first := stages[0]

	contact, err := s.repo.UpsertContact(ctx, repository.UpsertContactParams{
		TenantID:  tenantID,
		Email:     req.Email,
		FirstName: sanitize.Truncate(sanitize.Line(req.FirstName), 100),
		LastName:  sanitize.Truncate(sanitize.Line(req.LastName), 100),
		Phone:     phone.NormalizeE164(req.Phone),
	})
	if err != nil {
		return domain.Deal{}, apperr.Internal("failed to save contact", err).WithOp(op)
	}

	now := s.now()
	change, _ := domain.PlanMove(domain.Deal{PipelineID: pipelineID, Status: domain.StatusActive}, nil, first, now)
	deal, err := s.repo.CreateDeal(ctx, repository.CreateDealParams{
		TenantID:       tenantID,
		ContactID:      contact.ID,
		PipelineID:     pipelineID,
		StageID:        first.ID,
		StageName:      first.Name,
		EnteredAt:      now,
		NextActionDate: change.NextActionDate,
	})
	if errors.Is(err, repository.ErrDuplicateActiveDeal) {
		return domain.Deal{}, apperr.Conflict(err.Error()).WithOp(op)
	}
	if err != nil {
		return domain.Deal{}, apperr.Internal("failed to create deal", err).WithOp(op)
	}

	s.log.WithContext(ctx).Info("contact enrolled", "deal_id", deal.ID, "pipeline_id", pipelineID, "stage", first.Name)
	if s.bus != nil {
		s.bus.Publish(ctx, events.DealEnrolled{
			BaseEvent:  events.NewBaseEventAt(now),
			TenantID:   tenantID,
			DealID:     deal.ID,
			ContactID:  contact.ID,
			PipelineID: pipelineID,
		})
		s.publishStageChanged(ctx, domain.Deal{}, deal, first, domain.TriggerEnroll)
	}
	return deal, nil
}

func (s *Service) resolvePipeline(ctx context.Context, tenantID uuid.UUID, requested *uuid.UUID) (uuid.UUID, error) {
	const op = "pipeline.EnrollContact"

	if requested != nil {
		p, err := s.repo.GetPipeline(ctx, tenantID, *requested)
		if err != nil {
			return uuid.Nil, s.lookupError(op, "pipeline not found", err)
		}
		return p.ID, nil
	}

	active, err := s.repo.ListActivePipelines(ctx, tenantID)
	if err != nil {
		return uuid.Nil, apperr.Internal("failed to list pipelines", err).WithOp(op)
	}
	switch len(active) {
	case 0:
		return uuid.Nil, apperr.NotFound("no active pipeline").WithOp(op)
	case 1:
		return active[0].ID, nil
	default:
		return uuid.Nil, apperr.Validation("pipelineId is required when several pipelines are active").WithOp(op)
	}
}
