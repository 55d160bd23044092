// Package pipeline provides the pipeline bounded context module: pipelines,
// stages, deals and the stage progression engine.
package pipeline

import (
	"context"
	"time"

	"outreach_backend/internal/events"
	apphttp "outreach_backend/internal/http"
	"outreach_backend/internal/pipeline/handler"
	"outreach_backend/internal/pipeline/repository"
	"outreach_backend/internal/pipeline/service"
	"outreach_backend/platform/logger"
	"outreach_backend/platform/metrics"
	"outreach_backend/platform/validator"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TierChangeRecorder writes engagement tier changes into a deal's audit trail.
type TierChangeRecorder interface {
	RecordTierChange(ctx context.Context, tenantID, dealID uuid.UUID, from, to string, at time.Time) error
}

// Module is the pipeline bounded context module implementing http.Module.
type Module struct {
	handler  *handler.Handler
	service  *service.Service
	recorder TierChangeRecorder
	metrics  *metrics.Metrics
}

// NewModule creates and initializes the pipeline module.
func NewModule(pool *pgxpool.Pool, bus events.Publisher, val *validator.Validator, log *logger.Logger, m *metrics.Metrics) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, bus, val, log, service.WithMetrics(m))

	return &Module{
		handler:  handler.New(svc, val),
		service:  svc,
		recorder: svc,
		metrics:  m,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "pipeline"
}

// Service returns the service layer for the CLI and other modules.
func (m *Module) Service() *service.Service {
	return m.service
}

// RegisterRoutes mounts pipeline routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Protected.GET("/pipelines", m.handler.ListPipelines)
	ctx.Protected.GET("/pipelines/:id", m.handler.GetPipeline)

	ctx.Protected.POST("/deals", m.handler.EnrollContact)
	ctx.Protected.POST("/deals/progress", m.handler.ProgressByAction)
	ctx.Protected.GET("/deals/:id", m.handler.GetDeal)
	ctx.Protected.GET("/deals/:id/activities", m.handler.ListActivities)
	ctx.Protected.POST("/deals/:id/move", m.handler.MoveDeal)

	ctx.Admin.POST("/deals/recover", m.handler.RecoverAll)
	ctx.Admin.POST("/deals/:id/recover", m.handler.RecoverDeal)
}

// RegisterHandlers subscribes the module to events from other contexts.
func (m *Module) RegisterHandlers(bus *events.InMemoryBus) {
	bus.Subscribe(events.DealEnrolled{}.EventName(), m)
	bus.Subscribe(events.EngagementTierChanged{}.EventName(), m)
}

// Handle routes events to the appropriate handler method.
func (m *Module) Handle(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.DealEnrolled:
		m.metrics.Enrollment()
		return nil
	case events.EngagementTierChanged:
		return m.recorder.RecordTierChange(ctx, e.TenantID, e.DealID, e.From, e.To, e.OccurredAt())
	default:
		return nil
	}
}

var _ apphttp.Module = (*Module)(nil)
