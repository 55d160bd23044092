package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"outreach_backend/internal/pipeline/domain"
	"outreach_backend/internal/pipeline/repository"
	"outreach_backend/platform/apperr"

	"github.com/google/uuid"
)

// RecordTierChange writes an engagement tier change into the deal's audit
// trail. A deal that no longer exists is ignored.
func (s *Service) RecordTierChange(ctx context.Context, tenantID, dealID uuid.UUID, from, to string, at time.Time) error {
	const op = "pipeline.RecordTierChange"

	if _, err := s.repo.GetDeal(ctx, tenantID, dealID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return s.lookupError(op, "deal not found", err)
	}
	if at.IsZero() {
		at = s.now()
	}

	entry := domain.ActivityEntry{
		Type:        domain.ActivityEngagementChange,
		Description: fmt.Sprintf("Engagement tier changed from %s to %s", from, to),
	}
	if err := s.repo.AppendActivity(ctx, dealID, entry, at); err != nil {
		s.log.DatabaseError(op, err)
		return apperr.Internal("failed to record tier change", err).WithOp(op)
	}
	return nil
}
