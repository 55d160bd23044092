// Package service implements the stage progression engine: explicit moves,
// action-driven progression, heuristic stage recovery and pipeline enrollment.
package service

import (
	"context"
	"time"

	"outreach_backend/internal/events"
	"outreach_backend/internal/pipeline/domain"
	"outreach_backend/internal/pipeline/repository"
	"outreach_backend/platform/logger"
	"outreach_backend/platform/metrics"
	"outreach_backend/platform/validator"

	"github.com/google/uuid"
)

// Service provides business logic for pipelines and deals.
type Service struct {
	repo      repository.PipelineRepository
	bus       events.Publisher
	log       *logger.Logger
	metrics   *metrics.Metrics
	validator *validator.Validator
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithMetrics records transition and recovery counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// New creates a new pipeline service.
func New(repo repository.PipelineRepository, bus events.Publisher, val *validator.Validator, log *logger.Logger, opts ...Option) *Service {
	s := &Service{
		repo:      repo,
		bus:       bus,
		log:       log,
		validator: val,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// report logs and counts a transition attempt and hands the result back.
func (s *Service) report(ctx context.Context, trigger domain.Trigger, dealID uuid.UUID, res domain.Result) domain.Result {
	id := ""
	if dealID != uuid.Nil {
		id = dealID.String()
	}
	s.log.WithContext(ctx).Transition(string(trigger), string(res.Outcome), id, res.Reason)
	s.metrics.Transition(string(trigger), string(res.Outcome))
	return res
}

// publishStageChanged announces a committed transition.
func (s *Service) publishStageChanged(ctx context.Context, before, after domain.Deal, target domain.Stage, trigger domain.Trigger) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(ctx, events.DealStageChanged{
		BaseEvent:    events.NewBaseEventAt(s.now()),
		TenantID:     after.TenantID,
		DealID:       after.ID,
		ContactID:    after.ContactID,
		PipelineID:   after.PipelineID,
		FromStageID:  before.CurrentStageID,
		ToStageID:    target.ID,
		ToStageName:  target.Name,
		AutoTemplate: target.AutoTemplate,
		Status:       string(after.Status),
		Trigger:      string(trigger),
	})
}
