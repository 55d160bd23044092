package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskNotificationOutboxDue = "notification.outbox.due"

const TaskEngagementRefresh = "engagement.refresh"

type NotificationOutboxDuePayload struct {
	OutboxID string `json:"outboxId"`
	TenantID string `json:"tenantId"`
}

// EngagementRefreshPayload targets one tenant; an empty TenantID means all.
type EngagementRefreshPayload struct {
	TenantID string `json:"tenantId,omitempty"`
}

func NewNotificationOutboxDueTask(payload NotificationOutboxDuePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNotificationOutboxDue, data), nil
}

func ParseNotificationOutboxDuePayload(task *asynq.Task) (NotificationOutboxDuePayload, error) {
	var payload NotificationOutboxDuePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return NotificationOutboxDuePayload{}, err
	}
	return payload, nil
}

func NewEngagementRefreshTask(payload EngagementRefreshPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskEngagementRefresh, data), nil
}

func ParseEngagementRefreshPayload(task *asynq.Task) (EngagementRefreshPayload, error) {
	var payload EngagementRefreshPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return EngagementRefreshPayload{}, err
	}
	return payload, nil
}
