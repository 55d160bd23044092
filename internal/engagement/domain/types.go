// Package domain holds the engagement profiler: a pure classifier that turns
// a deal's email delivery history into an engagement tier and a recommended
// next action.
package domain

import "time"

// Tier is the categorical engagement label of a deal.
type Tier string

const (
	TierEngaged Tier = "engaged"
	TierHot     Tier = "hot"
	TierWarm    Tier = "warm"
	TierLurker  Tier = "lurker"
	TierCold    Tier = "cold"
	TierGhost   Tier = "ghost"
)

// Tiers lists every tier, most responsive first.
var Tiers = []Tier{TierEngaged, TierHot, TierWarm, TierLurker, TierCold, TierGhost}

// Valid reports whether t is one of the known tiers.
func (t Tier) Valid() bool {
	switch t {
	case TierEngaged, TierHot, TierWarm, TierLurker, TierCold, TierGhost:
		return true
	}
	return false
}

// Action is the recommended next outreach step.
type Action string

const (
	ActionSendNow        Action = "send_now"
	ActionWait           Action = "wait"
	ActionChangeApproach Action = "change_approach"
	ActionPause          Action = "pause"
	ActionStop           Action = "stop"
)

// Event is one delivered email and whatever tracking arrived for it.
// SentAt is always set; callers drop unsent log rows before profiling.
type Event struct {
	SentAt    time.Time
	Opened    bool
	OpenedAt  *time.Time
	Clicked   bool
	ClickedAt *time.Time
	Replied   bool
	RepliedAt *time.Time
}

// Profile aggregates an event history. It is derived on demand and never stored,
// apart from the tier which deals cache.
type Profile struct {
	TotalSent    int `json:"totalSent"`
	TotalOpened  int `json:"totalOpened"`
	TotalClicked int `json:"totalClicked"`
	TotalReplied int `json:"totalReplied"`

	OpenRate  float64 `json:"openRate"`
	ClickRate float64 `json:"clickRate"`

	LastOpenDaysAgo  *int `json:"lastOpenDaysAgo"`
	LastClickDaysAgo *int `json:"lastClickDaysAgo"`
	LastReplyDaysAgo *int `json:"lastReplyDaysAgo"`

	OpensLast7Days      int  `json:"opensLast7Days"`
	ConsecutiveUnopened int  `json:"consecutiveUnopened"`
	IsBurnoutRisk       bool `json:"isBurnoutRisk"`

	Tier                Tier   `json:"tier"`
	RecommendedAction   Action `json:"recommendedAction"`
	RecommendedWaitDays int    `json:"recommendedWaitDays"`
}
