// Package handler exposes engagement profiles and the email tracking webhook.
package handler

import (
	"context"
	"net/http"
	"time"

	"outreach_backend/internal/engagement/domain"
	"outreach_backend/internal/engagement/service"
	"outreach_backend/internal/engagement/transport"
	"outreach_backend/platform/httpkit"
	"outreach_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// EngagementService is the subset of service.Service the handler calls.
type EngagementService interface {
	Profile(ctx context.Context, tenantID, dealID uuid.UUID) (service.ProfileView, error)
	RecordEvent(ctx context.Context, messageID string, kind domain.EventKind, at time.Time) error
}

// Handler handles HTTP requests for engagement.
type Handler struct {
	svc EngagementService
	val *validator.Validator
}

// New creates a new engagement handler.
func New(svc EngagementService, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// GetProfile returns the deal's engagement profile.
// GET /api/v1/deals/:id/engagement
func (h *Handler) GetProfile(c *gin.Context) {
	id, ok := httpkit.ParseUUIDParam(c, "id")
	if !ok {
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	view, err := h.svc.Profile(c.Request.Context(), identity.TenantID(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ProfileResponse{
		DealID:            view.DealID,
		Profile:           view.Profile,
		PreferredSendHour: view.PreferredSendHour,
	})
}

// HandleEmailEvent records an open, click or reply reported by the mail tracker.
// POST /api/v1/webhooks/email-events
func (h *Handler) HandleEmailEvent(c *gin.Context) {
	var req transport.EmailEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}
	kind, ok := domain.ParseEventKind(req.EventType)
	if !ok {
		httpkit.Error(c, http.StatusBadRequest, "unknown event type", nil)
		return
	}

	if httpkit.HandleError(c, h.svc.RecordEvent(c.Request.Context(), req.MessageID, kind, req.At())) {
		return
	}
	httpkit.OK(c, gin.H{"status": "recorded"})
}
