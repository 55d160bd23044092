package domain

import (
	"sort"
	"time"
)

const (
	day              = 24 * time.Hour
	burnoutThreshold = 3
	recentOpenWindow = 7 * day
	hotClickDays     = 7
	warmOpenDays     = 14
	hotOpenRate      = 0.5
)

// ComputeProfile derives the engagement profile of events as seen at now.
// It has no side effects and the same input always yields the same profile.
func ComputeProfile(events []Event, now time.Time) Profile {
	if len(events) == 0 {
		// Nothing sent yet: the first email goes out right away.
		return Profile{Tier: TierCold, RecommendedAction: ActionSendNow}
	}
	p := Profile{TotalSent: len(events)}

	var lastOpen, lastClick, lastReply *time.Time
	windowStart := now.Add(-recentOpenWindow)

	for _, e := range events {
		if e.Opened {
			p.TotalOpened++
			lastOpen = latest(lastOpen, e.OpenedAt)
			if e.OpenedAt != nil && !e.OpenedAt.Before(windowStart) {
				p.OpensLast7Days++
			}
		}
		if e.Clicked {
			p.TotalClicked++
			lastClick = latest(lastClick, e.ClickedAt)
		}
		if e.Replied {
			p.TotalReplied++
			lastReply = latest(lastReply, e.RepliedAt)
		}
	}

	if p.TotalSent > 0 {
		p.OpenRate = float64(p.TotalOpened) / float64(p.TotalSent)
		p.ClickRate = float64(p.TotalClicked) / float64(p.TotalSent)
	}

	p.LastOpenDaysAgo = daysSince(now, lastOpen)
	p.LastClickDaysAgo = daysSince(now, lastClick)
	p.LastReplyDaysAgo = daysSince(now, lastReply)

	p.ConsecutiveUnopened = consecutiveUnopened(events)
	p.IsBurnoutRisk = p.ConsecutiveUnopened >= burnoutThreshold

	p.Tier = Classify(p)
	p.RecommendedAction, p.RecommendedWaitDays = Recommend(p.Tier, p.IsBurnoutRisk, p.TotalSent)
	return p
}

// Classify assigns the tier. Rules are evaluated in priority order and the
// first match wins; with 1-2 recent opens the warm rule shadows lurker.
func Classify(p Profile) Tier {
	switch {
	case p.TotalReplied > 0:
		return TierEngaged
	case p.TotalSent >= 3 && p.TotalOpened == 0 && p.ConsecutiveUnopened >= burnoutThreshold:
		return TierGhost
	case p.TotalSent >= 2 && p.TotalOpened == 0:
		return TierCold
	case (p.OpensLast7Days > 0 || atMost(p.LastClickDaysAgo, hotClickDays)) && p.OpenRate > hotOpenRate:
		return TierHot
	case p.TotalOpened > 0 && atMost(p.LastOpenDaysAgo, warmOpenDays):
		return TierWarm
	case p.TotalOpened >= 1 && p.TotalOpened <= 2:
		return TierLurker
	case p.TotalOpened > 0:
		return TierWarm
	default:
		return TierCold
	}
}

// Recommend maps a tier to the next action and how many days to hold off.
func Recommend(tier Tier, burnoutRisk bool, totalSent int) (Action, int) {
	switch tier {
	case TierGhost:
		return ActionStop, 0
	case TierEngaged, TierHot:
		return ActionSendNow, 0
	case TierWarm:
		if burnoutRisk {
			return ActionWait, 7
		}
		return ActionSendNow, 0
	case TierLurker:
		return ActionChangeApproach, 5
	case TierCold:
		switch {
		case burnoutRisk:
			return ActionPause, 0
		case totalSent >= 3:
			return ActionChangeApproach, 7
		default:
			return ActionWait, 5
		}
	}
	panic("engagement: unhandled tier " + string(tier))
}

// consecutiveUnopened counts unopened sends from the newest backwards,
// stopping at the first opened one.
func consecutiveUnopened(events []Event) int {
	ordered := make([]Event, len(events))
	copy(ordered, events)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].SentAt.After(ordered[j].SentAt)
	})

	count := 0
	for _, e := range ordered {
		if e.Opened {
			break
		}
		count++
	}
	return count
}

func latest(current, candidate *time.Time) *time.Time {
	if candidate == nil {
		return current
	}
	if current == nil || candidate.After(*current) {
		return candidate
	}
	return current
}

// daysSince floors the elapsed time to whole days. Timestamps ahead of now
// (clock skew between tracker and server) count as today.
func daysSince(now time.Time, ts *time.Time) *int {
	if ts == nil {
		return nil
	}
	elapsed := now.Sub(*ts)
	if elapsed < 0 {
		elapsed = 0
	}
	days := int(elapsed / day)
	return &days
}

func atMost(days *int, limit int) bool {
	return days != nil && *days <= limit
}
