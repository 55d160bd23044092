// Package email renders stage-entry emails and delivers them over SMTP.
package email

import (
	"context"
	"fmt"
	"strings"

	"outreach_backend/platform/config"

	"github.com/google/uuid"
)

// Message is one rendered outbound email.
type Message struct {
	To      string
	Subject string
	HTML    string
	// MessageID is written to the Message-ID header without angle brackets.
	// Tracking callbacks report it back.
	MessageID string
}

// Sender delivers rendered messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// NoopSender drops every message. Used when SMTP is not configured.
type NoopSender struct{}

func (NoopSender) Send(context.Context, Message) error { return nil }

// NewSender returns an SMTP sender, or NoopSender when email is disabled.
func NewSender(cfg config.EmailConfig) Sender {
	if !cfg.GetEmailEnabled() {
		return NoopSender{}
	}
	return NewSMTPSender(
		cfg.GetSMTPHost(),
		cfg.GetSMTPPort(),
		cfg.GetSMTPUsername(),
		cfg.GetSMTPPassword(),
		cfg.GetEmailFromAddress(),
		cfg.GetEmailFromName(),
	)
}

// NewMessageID builds a globally unique id in the sender's domain.
func NewMessageID(fromAddress string) string {
	domain := "outreach.local"
	if at := strings.LastIndex(fromAddress, "@"); at >= 0 && at < len(fromAddress)-1 {
		domain = fromAddress[at+1:]
	}
	return fmt.Sprintf("%s@%s", uuid.NewString(), domain)
}
