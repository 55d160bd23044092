// Package notification turns stage transitions into queued emails and
// delivers them when the scheduler reports them due.
// Delivery failures are retried from the outbox and never touch deal state.
package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"outreach_backend/internal/email"
	engagementrepo "outreach_backend/internal/engagement/repository"
	"outreach_backend/internal/events"
	"outreach_backend/internal/notification/outbox"
	"outreach_backend/platform/config"
	"outreach_backend/platform/logger"
	"outreach_backend/platform/metrics"

	"github.com/google/uuid"
)

const (
	kindEmail                  = "email"
	triggerRecovery            = "recovery"
	invalidOutboxPayloadPrefix = "invalid payload: "
	maxOutboxRetryAttempts     = 5
	outboxRetryBaseDelay       = time.Minute
	outboxRetryMaxDelay        = 60 * time.Minute
)

// OutboxStore is the persistence the module needs.
type OutboxStore interface {
	Insert(ctx context.Context, p outbox.InsertParams) (uuid.UUID, error)
	GetByID(ctx context.Context, id uuid.UUID) (outbox.Record, error)
	MarkProcessing(ctx context.Context, id uuid.UUID) error
	MarkSucceeded(ctx context.Context, id uuid.UUID) error
	MarkSkipped(ctx context.Context, id uuid.UUID, reason string) error
	MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error
	ScheduleRetry(ctx context.Context, id uuid.UUID, retryAt time.Time, lastError string) error
	GetRecipient(ctx context.Context, tenantID, dealID uuid.UUID) (outbox.Recipient, error)
}

// DeliveryRecorder logs a delivered email for engagement tracking.
type DeliveryRecorder interface {
	RecordSend(ctx context.Context, params engagementrepo.RecordSendParams) error
}

type stageEmailPayload struct {
	DealID    uuid.UUID `json:"dealId"`
	StageID   uuid.UUID `json:"stageId"`
	StageName string    `json:"stageName"`
}

// Module handles notification-related event subscriptions.
type Module struct {
	outbox      OutboxStore
	sender      email.Sender
	recorder    DeliveryRecorder
	fromAddress string
	senderName  string
	log         *logger.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
}

// New creates a new notification module.
func New(store OutboxStore, sender email.Sender, cfg config.EmailConfig, log *logger.Logger) *Module {
	return &Module{
		outbox:      store,
		sender:      sender,
		fromAddress: cfg.GetEmailFromAddress(),
		senderName:  cfg.GetEmailFromName(),
		log:         log,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// SetDeliveryRecorder wires engagement logging of sent emails.
func (m *Module) SetDeliveryRecorder(r DeliveryRecorder) { m.recorder = r }

// SetMetrics enables delivery counters.
func (m *Module) SetMetrics(mt *metrics.Metrics) { m.metrics = mt }

// Name returns the module identifier.
func (m *Module) Name() string { return "notification" }

// RegisterHandlers subscribes the module to the events it reacts to.
func (m *Module) RegisterHandlers(bus *events.InMemoryBus) {
	bus.Subscribe(events.DealStageChanged{}.EventName(), m)
	bus.Subscribe(events.NotificationOutboxDue{}.EventName(), m)
}

// Handle routes events to the appropriate handler method.
func (m *Module) Handle(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.DealStageChanged:
		return m.handleDealStageChanged(ctx, e)
	case events.NotificationOutboxDue:
		return m.handleNotificationOutboxDue(ctx, e)
	default:
		return nil
	}
}

func (m *Module) handleDealStageChanged(ctx context.Context, e events.DealStageChanged) error {
	if e.AutoTemplate == nil || *e.AutoTemplate == "" {
		return nil
	}
	if e.Trigger == triggerRecovery {
		m.log.Debug("stage recovered; no email queued", "dealId", e.DealID, "stage", e.ToStageName)
		return nil
	}
	template := *e.AutoTemplate
	if !email.HasTemplate(template) {
		m.log.Warn("stage references unknown email template", "dealId", e.DealID, "template", template)
		return nil
	}

	id, err := m.outbox.Insert(ctx, outbox.InsertParams{
		TenantID: e.TenantID,
		Kind:     kindEmail,
		Template: template,
		Payload: stageEmailPayload{
			DealID:    e.DealID,
			StageID:   e.ToStageID,
			StageName: e.ToStageName,
		},
		RunAt: m.now(),
	})
	if err != nil {
		return fmt.Errorf("queue stage email: %w", err)
	}
	m.log.Info("stage email queued", "outboxId", id, "dealId", e.DealID, "template", template)
	return nil
}

func (m *Module) handleNotificationOutboxDue(ctx context.Context, e events.NotificationOutboxDue) error {
	rec, process, err := m.prepareOutboxRecord(ctx, e.OutboxID)
	if err != nil || !process {
		if err != nil {
			m.log.Error("failed to prepare outbox record", "outboxId", e.OutboxID, "error", err)
		}
		return err
	}

	if rec.Kind != kindEmail || !email.HasTemplate(rec.Template) {
		msg := fmt.Sprintf("unsupported outbox kind/template: %s/%s", rec.Kind, rec.Template)
		_ = m.outbox.MarkFailed(ctx, rec.ID, msg)
		m.metrics.Notification("failed")
		m.log.Warn("unsupported outbox record", "outboxId", rec.ID.String(), "kind", rec.Kind, "template", rec.Template)
		return nil
	}

	if err := m.deliverStageEmail(ctx, rec); err != nil {
		m.handleOutboxDeliveryError(ctx, rec, err)
	}
	return nil
}

func (m *Module) deliverStageEmail(ctx context.Context, rec outbox.Record) error {
	var payload stageEmailPayload
	if err := json.Unmarshal(rec.Payload, &payload); err != nil {
		_ = m.outbox.MarkFailed(ctx, rec.ID, invalidOutboxPayloadPrefix+err.Error())
		m.metrics.Notification("failed")
		return nil
	}

	recipient, err := m.outbox.GetRecipient(ctx, rec.TenantID, payload.DealID)
	if errors.Is(err, outbox.ErrNotFound) {
		m.skip(ctx, rec, "deal no longer exists")
		return nil
	}
	if err != nil {
		return err
	}
	if recipient.CurrentStageID == nil || *recipient.CurrentStageID != payload.StageID {
		m.skip(ctx, rec, "deal left the stage before delivery")
		return nil
	}
	if recipient.AutopilotPaused {
		m.skip(ctx, rec, "autopilot paused")
		return nil
	}

	subject, body, err := email.RenderStageEmail(rec.Template, email.StageEmailData{
		FirstName:  recipient.FirstName,
		StageName:  payload.StageName,
		SenderName: m.senderName,
	})
	if err != nil {
		_ = m.outbox.MarkFailed(ctx, rec.ID, err.Error())
		m.metrics.Notification("failed")
		return nil
	}

	messageID := email.NewMessageID(m.fromAddress)
	if err := m.sender.Send(ctx, email.Message{
		To:        recipient.Email,
		Subject:   subject,
		HTML:      body,
		MessageID: messageID,
	}); err != nil {
		return err
	}

	_ = m.outbox.MarkSucceeded(ctx, rec.ID)
	m.metrics.Notification("sent")
	m.log.Info("stage email delivered", "outboxId", rec.ID.String(), "dealId", payload.DealID, "template", rec.Template)

	if m.recorder != nil {
		err := m.recorder.RecordSend(ctx, engagementrepo.RecordSendParams{
			TenantID:  rec.TenantID,
			DealID:    payload.DealID,
			MessageID: messageID,
			SentAt:    m.now(),
		})
		if err != nil {
			m.log.Warn("failed to record email send", "dealId", payload.DealID, "error", err)
		}
	}
	return nil
}

func (m *Module) skip(ctx context.Context, rec outbox.Record, reason string) {
	_ = m.outbox.MarkSkipped(ctx, rec.ID, reason)
	m.metrics.Notification("skipped")
	m.log.Info("stage email skipped", "outboxId", rec.ID.String(), "reason", reason)
}

func (m *Module) handleOutboxDeliveryError(ctx context.Context, rec outbox.Record, deliveryErr error) {
	attempt := rec.Attempts + 1
	if attempt >= maxOutboxRetryAttempts {
		_ = m.outbox.MarkFailed(ctx, rec.ID, deliveryErr.Error())
		m.metrics.Notification("failed")
		m.log.Warn("notification outbox exhausted retries",
			"outboxId", rec.ID.String(),
			"template", rec.Template,
			"attempt", attempt,
			"error", deliveryErr,
		)
		return
	}

	retryAt := m.now().Add(computeOutboxRetryDelay(attempt))
	if err := m.outbox.ScheduleRetry(ctx, rec.ID, retryAt, deliveryErr.Error()); err != nil {
		_ = m.outbox.MarkFailed(ctx, rec.ID, deliveryErr.Error())
		m.metrics.Notification("failed")
		m.log.Error("notification outbox retry scheduling failed; marked failed", "outboxId", rec.ID.String(), "error", err)
		return
	}
	m.metrics.Notification("retry")
	m.log.Warn("notification outbox scheduled retry",
		"outboxId", rec.ID.String(),
		"template", rec.Template,
		"attempt", attempt,
		"retryAt", retryAt,
		"error", deliveryErr,
	)
}

func computeOutboxRetryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := outboxRetryBaseDelay << (attempt - 1)
	if delay > outboxRetryMaxDelay {
		return outboxRetryMaxDelay
	}
	return delay
}

// prepareOutboxRecord loads the row and claims it for processing. Rows in a
// final state are skipped so a redelivered task cannot send twice.
func (m *Module) prepareOutboxRecord(ctx context.Context, outboxID uuid.UUID) (outbox.Record, bool, error) {
	rec, err := m.outbox.GetByID(ctx, outboxID)
	if errors.Is(err, outbox.ErrNotFound) {
		m.log.Warn("outbox record vanished", "outboxId", outboxID)
		return outbox.Record{}, false, nil
	}
	if err != nil {
		return outbox.Record{}, false, err
	}
	switch rec.Status {
	case outbox.StatusSucceeded, outbox.StatusSkipped, outbox.StatusFailed:
		m.log.Debug("outbox record already final; skipping", "outboxId", rec.ID.String(), "status", rec.Status)
		return rec, false, nil
	}
	if err := m.outbox.MarkProcessing(ctx, rec.ID); err != nil {
		return outbox.Record{}, false, err
	}
	return rec, true, nil
}
