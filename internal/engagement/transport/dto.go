package transport

import (
	"time"

	"outreach_backend/internal/engagement/domain"

	"github.com/google/uuid"
)

// EmailEventRequest is one tracking callback. Timestamp is unix seconds;
// zero means "now".
type EmailEventRequest struct {
	EventType string `json:"eventType" validate:"required,oneof=open opened click clicked reply replied"`
	MessageID string `json:"messageId" validate:"required,max=255"`
	Timestamp int64  `json:"timestamp" validate:"gte=0"`
}

// At converts the unix timestamp.
func (r EmailEventRequest) At() time.Time {
	if r.Timestamp == 0 {
		return time.Time{}
	}
	return time.Unix(r.Timestamp, 0).UTC()
}

type ProfileResponse struct {
	DealID            uuid.UUID      `json:"dealId"`
	Profile           domain.Profile `json:"profile"`
	PreferredSendHour *int           `json:"preferredSendHour"`
}
