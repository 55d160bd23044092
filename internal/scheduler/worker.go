package scheduler

import (
	"context"
	"time"

	"outreach_backend/internal/events"
	"outreach_backend/platform/config"
	"outreach_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// Worker runs asynq task handlers. Outbox tasks are republished on the event
// bus so the notification module owns delivery.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	bus       events.Bus
	refresher EngagementRefresher
	log       *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, bus events.Bus, refresher EngagementRefresher, log *logger.Logger) (*Worker, error) {
	opt, queue, err := connection(cfg)
	if err != nil {
		return nil, err
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	w := newWorker(bus, refresher, log)
	w.server = server
	return w, nil
}

func newWorker(bus events.Bus, refresher EngagementRefresher, log *logger.Logger) *Worker {
	mux := asynq.NewServeMux()
	w := &Worker{
		mux:       mux,
		bus:       bus,
		refresher: refresher,
		log:       log,
	}
	mux.HandleFunc(TaskNotificationOutboxDue, w.handleNotificationOutboxDue)
	mux.HandleFunc(TaskEngagementRefresh, w.handleEngagementRefresh)
	return w
}

func (w *Worker) handleNotificationOutboxDue(ctx context.Context, task *asynq.Task) error {
	if w.bus == nil {
		return nil
	}

	payload, err := ParseNotificationOutboxDuePayload(task)
	if err != nil {
		return err
	}

	outboxID, err := uuid.Parse(payload.OutboxID)
	if err != nil {
		return err
	}

	tenantID, err := uuid.Parse(payload.TenantID)
	if err != nil {
		return err
	}

	return w.bus.PublishSync(ctx, events.NotificationOutboxDue{
		BaseEvent: events.NewBaseEventAt(time.Now().UTC()),
		OutboxID:  outboxID,
		TenantID:  tenantID,
	})
}

func (w *Worker) handleEngagementRefresh(ctx context.Context, task *asynq.Task) error {
	if w.refresher == nil {
		return nil
	}

	payload, err := ParseEngagementRefreshPayload(task)
	if err != nil {
		return err
	}

	if payload.TenantID == "" {
		_, err = w.refresher.RefreshAll(ctx)
		return err
	}
	tenantID, err := uuid.Parse(payload.TenantID)
	if err != nil {
		return err
	}
	_, err = w.refresher.RefreshActive(ctx, tenantID)
	return err
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}
