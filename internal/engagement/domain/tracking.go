package domain

import "strings"

// EventKind is a tracking signal reported for a sent email.
type EventKind string

const (
	EventOpen  EventKind = "open"
	EventClick EventKind = "click"
	EventReply EventKind = "reply"
)

// ParseEventKind accepts the tracker's verb in either tense ("open", "opened").
func ParseEventKind(raw string) (EventKind, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "open", "opened":
		return EventOpen, true
	case "click", "clicked":
		return EventClick, true
	case "reply", "replied":
		return EventReply, true
	}
	return "", false
}
