// Package engagement provides the engagement bounded context module: delivery
// logs, tracking callbacks and tier profiling.
package engagement

import (
	"outreach_backend/internal/engagement/handler"
	"outreach_backend/internal/engagement/repository"
	"outreach_backend/internal/engagement/service"
	"outreach_backend/internal/events"
	apphttp "outreach_backend/internal/http"
	"outreach_backend/platform/config"
	"outreach_backend/platform/logger"
	"outreach_backend/platform/metrics"
	"outreach_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the engagement bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
}

// NewModule creates and initializes the engagement module.
func NewModule(pool *pgxpool.Pool, bus events.Publisher, cfg config.EngagementConfig, val *validator.Validator, log *logger.Logger, m *metrics.Metrics) *Module {
	svc := service.New(repository.New(pool), bus, log,
		service.WithMetrics(m),
		service.WithLocation(cfg.GetEngagementLocation()),
	)
	return &Module{
		handler: handler.New(svc, val),
		service: svc,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "engagement"
}

// Service returns the service layer for the scheduler and CLI.
func (m *Module) Service() *service.Service {
	return m.service
}

// RegisterRoutes mounts engagement routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Protected.GET("/deals/:id/engagement", m.handler.GetProfile)

	webhooks := ctx.V1.Group("/webhooks")
	if ctx.WebhookRateLimiter != nil {
		webhooks.Use(ctx.WebhookRateLimiter.RateLimit())
	}
	webhooks.POST("/email-events", m.handler.HandleEmailEvent)
}

var _ apphttp.Module = (*Module)(nil)
