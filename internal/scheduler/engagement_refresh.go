package scheduler

import (
	"context"
	"time"

	engagementservice "outreach_backend/internal/engagement/service"
	"outreach_backend/platform/logger"

	"github.com/google/uuid"
)

const defaultEngagementRefreshInterval = time.Hour

// EngagementRefresher recomputes cached engagement tiers.
type EngagementRefresher interface {
	RefreshActive(ctx context.Context, tenantID uuid.UUID) (engagementservice.RefreshReport, error)
	RefreshAll(ctx context.Context) (engagementservice.RefreshReport, error)
}

// EngagementRefreshJob periodically refreshes tiers for every tenant.
type EngagementRefreshJob struct {
	refresher EngagementRefresher
	log       *logger.Logger
	interval  time.Duration
}

func NewEngagementRefreshJob(refresher EngagementRefresher, log *logger.Logger, interval time.Duration) *EngagementRefreshJob {
	if interval <= 0 {
		interval = defaultEngagementRefreshInterval
	}
	return &EngagementRefreshJob{refresher: refresher, log: log, interval: interval}
}

func (j *EngagementRefreshJob) Run(ctx context.Context) {
	if j == nil || j.refresher == nil {
		return
	}

	j.refresh(ctx)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.refresh(ctx)
		}
	}
}

func (j *EngagementRefreshJob) refresh(ctx context.Context) {
	report, err := j.refresher.RefreshAll(ctx)
	if err != nil {
		j.log.Warn("engagement refresh failed", "error", err)
	}
	if report.Changed > 0 || report.Failed > 0 {
		j.log.Info("engagement refresh run", "scanned", report.Scanned, "changed", report.Changed, "failed", report.Failed)
	}
}
