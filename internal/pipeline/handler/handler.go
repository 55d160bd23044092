// Package handler exposes pipelines and deals over HTTP.
package handler

import (
	"context"
	"net/http"

	"outreach_backend/internal/pipeline/domain"
	"outreach_backend/internal/pipeline/service"
	"outreach_backend/internal/pipeline/transport"
	"outreach_backend/platform/httpkit"
	"outreach_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// PipelineService is the subset of service.Service the handler calls.
type PipelineService interface {
	ListPipelines(ctx context.Context, tenantID uuid.UUID) ([]domain.Pipeline, error)
	GetPipeline(ctx context.Context, tenantID, pipelineID uuid.UUID) (service.PipelineWithStages, error)
	GetDeal(ctx context.Context, tenantID, dealID uuid.UUID) (domain.Deal, error)
	ListActivities(ctx context.Context, tenantID, dealID uuid.UUID) ([]domain.Activity, error)
	EnrollContact(ctx context.Context, tenantID uuid.UUID, req transport.EnrollRequest) (domain.Deal, error)
	MoveToStage(ctx context.Context, tenantID, dealID, stageID uuid.UUID) (domain.Deal, error)
	ProgressByAction(ctx context.Context, tenantID uuid.UUID, email string, action domain.Action) domain.Result
	RecoverStage(ctx context.Context, tenantID, dealID uuid.UUID) domain.Result
	RecoverAll(ctx context.Context, tenantID uuid.UUID) (domain.RecoveryReport, error)
}

// Handler handles HTTP requests for pipelines and deals.
type Handler struct {
	svc PipelineService
	val *validator.Validator
}

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

// New creates a new pipeline handler.
func New(svc PipelineService, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// ListPipelines returns the tenant's pipelines without stages.
// GET /api/v1/pipelines
func (h *Handler) ListPipelines(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	items, err := h.svc.ListPipelines(c.Request.Context(), identity.TenantID())
	if httpkit.HandleError(c, err) {
		return
	}
	resp := transport.PipelineListResponse{Items: make([]transport.PipelineResponse, 0, len(items))}
	for _, p := range items {
		resp.Items = append(resp.Items, transport.ToPipelineResponse(p, nil))
	}
	httpkit.OK(c, resp)
}

// GetPipeline returns one pipeline with its ordered stages.
// GET /api/v1/pipelines/:id
func (h *Handler) GetPipeline(c *gin.Context) {
	id, ok := httpkit.ParseUUIDParam(c, "id")
	if !ok {
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	p, err := h.svc.GetPipeline(c.Request.Context(), identity.TenantID(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToPipelineResponse(p.Pipeline, p.Stages))
}

// EnrollContact places a contact in a pipeline at its first stage.
// POST /api/v1/deals
func (h *Handler) EnrollContact(c *gin.Context) {
	var req transport.EnrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	deal, err := h.svc.EnrollContact(c.Request.Context(), identity.TenantID(), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, transport.ToDealResponse(deal))
}

// GetDeal returns a single deal.
// GET /api/v1/deals/:id
func (h *Handler) GetDeal(c *gin.Context) {
	id, ok := httpkit.ParseUUIDParam(c, "id")
	if !ok {
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	deal, err := h.svc.GetDeal(c.Request.Context(), identity.TenantID(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToDealResponse(deal))
}

// ListActivities returns the deal's activity log, newest first.
// GET /api/v1/deals/:id/activities
func (h *Handler) ListActivities(c *gin.Context) {
	id, ok := httpkit.ParseUUIDParam(c, "id")
	if !ok {
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	items, err := h.svc.ListActivities(c.Request.Context(), identity.TenantID(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToActivityListResponse(items))
}

// MoveDeal moves a deal to any stage of its own pipeline.
// POST /api/v1/deals/:id/move
func (h *Handler) MoveDeal(c *gin.Context) {
	id, ok := httpkit.ParseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req transport.MoveDealRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	deal, err := h.svc.MoveToStage(c.Request.Context(), identity.TenantID(), id, req.StageID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToDealResponse(deal))
}

// ProgressByAction advances a contact's deal after a product action.
// POST /api/v1/deals/progress
func (h *Handler) ProgressByAction(c *gin.Context) {
	var req transport.ProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	res := h.svc.ProgressByAction(c.Request.Context(), identity.TenantID(), req.Email, domain.Action(req.Action))
	httpkit.JSON(c, resultStatus(res.Outcome), transport.ToResultResponse(res))
}

// RecoverDeal re-derives one deal's stage from its history.
// POST /api/v1/admin/deals/:id/recover
func (h *Handler) RecoverDeal(c *gin.Context) {
	id, ok := httpkit.ParseUUIDParam(c, "id")
	if !ok {
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	res := h.svc.RecoverStage(c.Request.Context(), identity.TenantID(), id)
	httpkit.JSON(c, resultStatus(res.Outcome), transport.ToResultResponse(res))
}

// RecoverAll runs stage recovery over every unstaged deal of the tenant.
// POST /api/v1/admin/deals/recover
func (h *Handler) RecoverAll(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	report, err := h.svc.RecoverAll(c.Request.Context(), identity.TenantID())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToRecoveryReportResponse(report))
}

func resultStatus(o domain.Outcome) int {
	switch o {
	case domain.OutcomeApplied, domain.OutcomeNoop, domain.OutcomeUnmatched:
		return http.StatusOK
	case domain.OutcomeNotFound:
		return http.StatusNotFound
	case domain.OutcomeRejected:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
