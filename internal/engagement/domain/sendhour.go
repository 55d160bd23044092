package domain

import "time"

const minOpensForSendHour = 3

// PreferredSendHour returns the local hour of day at which the contact most
// often opens mail. It needs at least three opens with a timestamp; ties go to
// the hour encountered first in events.
func PreferredSendHour(events []Event, loc *time.Location) (int, bool) {
	if loc == nil {
		loc = time.UTC
	}

	counts := make(map[int]int, 24)
	seen := make([]int, 0, 24)
	opens := 0

	for _, e := range events {
		if !e.Opened || e.OpenedAt == nil {
			continue
		}
		opens++
		hour := e.OpenedAt.In(loc).Hour()
		if counts[hour] == 0 {
			seen = append(seen, hour)
		}
		counts[hour]++
	}

	if opens < minOpensForSendHour {
		return 0, false
	}

	best, bestCount := seen[0], counts[seen[0]]
	for _, hour := range seen[1:] {
		if counts[hour] > bestCount {
			best, bestCount = hour, counts[hour]
		}
	}
	return best, true
}
