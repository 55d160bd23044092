package main

import (
	"context"
	"fmt"

	"outreach_backend/internal/events"
	"outreach_backend/platform/config"
	"outreach_backend/platform/db"
	"outreach_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// runtime bundles what every database-backed command needs.
type runtime struct {
	cfg  *config.Config
	log  *logger.Logger
	pool *pgxpool.Pool
	bus  *events.InMemoryBus
}

func openRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg.Env)

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return &runtime{cfg: cfg, log: log, pool: pool, bus: events.NewInMemoryBus(log)}, nil
}

func (r *runtime) Close() {
	r.bus.Wait()
	r.pool.Close()
}

func parseTenant(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid --tenant %q: %w", raw, err)
	}
	return id, nil
}
