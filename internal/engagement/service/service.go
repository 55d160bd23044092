// Package service computes engagement profiles from delivery history and keeps
// the cached tier on deals current.
package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"outreach_backend/internal/engagement/domain"
	"outreach_backend/internal/engagement/repository"
	"outreach_backend/internal/events"
	"outreach_backend/platform/apperr"
	"outreach_backend/platform/logger"
	"outreach_backend/platform/metrics"

	"github.com/google/uuid"
)

const refreshPageSize = 200

// ProfileView is a computed profile plus scheduling hints.
type ProfileView struct {
	DealID            uuid.UUID
	Profile           domain.Profile
	PreferredSendHour *int
}

// RefreshReport counts the outcome of a batch tier refresh.
type RefreshReport struct {
	Scanned int `json:"scanned"`
	Changed int `json:"changed"`
	Failed  int `json:"failed"`
}

func (r *RefreshReport) merge(o RefreshReport) {
	r.Scanned += o.Scanned
	r.Changed += o.Changed
	r.Failed += o.Failed
}

// Service provides engagement business logic.
type Service struct {
	repo    repository.Repository
	bus     events.Publisher
	log     *logger.Logger
	metrics *metrics.Metrics
	loc     *time.Location
	now     func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithMetrics records tier and tracking counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLocation sets the timezone used for the preferred send hour.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// New creates a new engagement service.
func New(repo repository.Repository, bus events.Publisher, log *logger.Logger, opts ...Option) *Service {
	s := &Service{
		repo: repo,
		bus:  bus,
		log:  log,
		loc:  time.UTC,
		now:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Profile computes the deal's engagement profile and caches its tier.
func (s *Service) Profile(ctx context.Context, tenantID, dealID uuid.UUID) (ProfileView, error) {
	ref, err := s.repo.GetDeal(ctx, tenantID, dealID)
	if errors.Is(err, repository.ErrNotFound) {
		return ProfileView{}, apperr.NotFound("deal not found")
	}
	if err != nil {
		return ProfileView{}, apperr.Internal("failed to load deal", err)
	}

	view, _, err := s.refresh(ctx, ref)
	if err != nil {
		return ProfileView{}, apperr.Internal("failed to compute engagement profile", err)
	}
	return view, nil
}

// RefreshActive recomputes the tier of every active deal of a tenant.
// A failing deal is counted and skipped.
func (s *Service) RefreshActive(ctx context.Context, tenantID uuid.UUID) (RefreshReport, error) {
	var report RefreshReport
	after := uuid.Nil
	for {
		page, err := s.repo.ListActiveDeals(ctx, tenantID, after, refreshPageSize)
		if err != nil {
			return report, err
		}
		for _, ref := range page {
			report.Scanned++
			_, changed, err := s.refresh(ctx, ref)
			if err != nil {
				report.Failed++
				s.log.WithContext(ctx).Warn("engagement refresh failed", "deal_id", ref.ID.String(), "error", err)
				continue
			}
			if changed {
				report.Changed++
			}
		}
		if len(page) < refreshPageSize {
			break
		}
		after = page[len(page)-1].ID
	}

	s.log.WithContext(ctx).Info("engagement refresh finished",
		"tenant_id", tenantID.String(),
		"scanned", report.Scanned,
		"changed", report.Changed,
		"failed", report.Failed,
	)
	return report, nil
}

// RefreshAll runs RefreshActive for every tenant that has active deals.
func (s *Service) RefreshAll(ctx context.Context) (RefreshReport, error) {
	tenants, err := s.repo.ListTenantsWithActiveDeals(ctx)
	if err != nil {
		return RefreshReport{}, err
	}
	var total RefreshReport
	var errs []error
	for _, tenantID := range tenants {
		report, err := s.RefreshActive(ctx, tenantID)
		total.merge(report)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return total, errors.Join(errs...)
}

// RecordSend logs a delivered email against a deal.
func (s *Service) RecordSend(ctx context.Context, params repository.RecordSendParams) error {
	if strings.TrimSpace(params.MessageID) == "" {
		return apperr.Validation("message id is required")
	}
	if params.SentAt.IsZero() {
		params.SentAt = s.now()
	}
	recorded, err := s.repo.RecordSend(ctx, params)
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound("deal not found")
	}
	if err != nil {
		return apperr.Internal("failed to record send", err)
	}
	if !recorded {
		s.log.WithContext(ctx).Debug("duplicate send ignored", "message_id", params.MessageID)
	}
	return nil
}

// RecordEvent applies a tracking signal and refreshes the deal's tier.
func (s *Service) RecordEvent(ctx context.Context, messageID string, kind domain.EventKind, at time.Time) error {
	if at.IsZero() || at.After(s.now()) {
		at = s.now()
	}
	ref, err := s.repo.MarkEvent(ctx, messageID, kind, at.UTC())
	if errors.Is(err, repository.ErrNotFound) {
		s.metrics.EmailEvent(string(kind), "unknown_message")
		return apperr.NotFound("email not found")
	}
	if err != nil {
		s.metrics.EmailEvent(string(kind), "error")
		return apperr.Internal("failed to record email event", err)
	}
	s.metrics.EmailEvent(string(kind), "recorded")

	if _, _, err := s.refresh(ctx, ref); err != nil {
		s.log.WithContext(ctx).Warn("tier refresh after tracking event failed", "deal_id", ref.ID.String(), "error", err)
	}
	return nil
}

// refresh computes the profile and stores the tier when it moved.
func (s *Service) refresh(ctx context.Context, ref repository.DealRef) (ProfileView, bool, error) {
	evts, err := s.repo.ListEvents(ctx, ref.ID)
	if err != nil {
		return ProfileView{}, false, err
	}
	profile := domain.ComputeProfile(evts, s.now())
	view := ProfileView{DealID: ref.ID, Profile: profile}
	if hour, ok := domain.PreferredSendHour(evts, s.loc); ok {
		view.PreferredSendHour = &hour
	}
	s.metrics.Profile(string(profile.Tier))

	if string(profile.Tier) == ref.Tier {
		return view, false, nil
	}
	if err := s.repo.UpdateTier(ctx, ref.ID, profile.Tier); err != nil {
		return ProfileView{}, false, err
	}
	if s.bus != nil {
		s.bus.Publish(ctx, events.EngagementTierChanged{
			BaseEvent: events.NewBaseEventAt(s.now()),
			TenantID:  ref.TenantID,
			DealID:    ref.ID,
			From:      ref.Tier,
			To:        string(profile.Tier),
		})
	}
	return view, true, nil
}
