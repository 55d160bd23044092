package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Stage recovery is a repair heuristic for deals whose current stage was lost.
// It guesses a stage from the deal's status and how many emails it received,
// preferring stage names that match known keywords and falling back to a
// position in the pipeline. It is never part of the normal transition flow.

// stageMatcher reports whether a folded stage name fits a rule.
type stageMatcher func(folded string) bool

// recoveryRule is one row of the recovery table.
type recoveryRule struct {
	name     string
	applies  func(d Deal) bool
	matchers []stageMatcher
	// fallback picks an index into the order-sorted stages; -1 means none.
	fallback func(count int) int
}

var recoveryRules = []recoveryRule{
	{
		name:     "won",
		applies:  func(d Deal) bool { return d.Status == StatusWon },
		matchers: keywords("won", "converted", "closed won", "success"),
		fallback: lastIndex,
	},
	{
		name:     "lost",
		applies:  func(d Deal) bool { return d.Status == StatusLost },
		matchers: keywords("lost", "not interested", "closed lost", "unqualified"),
		fallback: lastIndex,
	},
	{
		name:     "no emails sent",
		applies:  emailsSent(func(n int) bool { return n <= 0 }),
		fallback: fixedIndex(0),
	},
	{
		name:     "1 email sent",
		applies:  emailsSent(func(n int) bool { return n == 1 }),
		matchers: keywords("contacted", "invitation sent", "sent", "outreach"),
		fallback: fixedIndex(1),
	},
	{
		name:     "2 emails sent",
		applies:  emailsSent(func(n int) bool { return n == 2 }),
		matchers: []stageMatcher{followUp("1")},
		fallback: fixedIndex(2),
	},
	{
		name:     "3 emails sent",
		applies:  emailsSent(func(n int) bool { return n == 3 }),
		matchers: []stageMatcher{followUp("2")},
		fallback: fixedIndex(3),
	},
	{
		name:     "4+ emails sent",
		applies:  emailsSent(func(n int) bool { return n >= 4 }),
		matchers: []stageMatcher{followUp("3"), contains("final")},
		fallback: func(count int) int {
			if count == 0 {
				return -1
			}
			return min(4, count-1)
		},
	},
}

// Recommendation is the stage recovery would put a deal into.
type Recommendation struct {
	Stage Stage
	Rule  string
	// ByName is true when a keyword matched, false for a positional fallback.
	ByName bool
}

// RecommendStage applies the recovery table to an unstaged deal. ok is false
// when the deal already has a stage or no rule yields a stage.
func RecommendStage(deal Deal, stages []Stage) (Recommendation, bool) {
	if deal.CurrentStageID != nil || len(stages) == 0 {
		return Recommendation{}, false
	}

	ordered := make([]Stage, len(stages))
	copy(ordered, stages)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Order < ordered[j].Order })

	for _, rule := range recoveryRules {
		if !rule.applies(deal) {
			continue
		}
		for _, match := range rule.matchers {
			for _, s := range ordered {
				if match(Fold(s.Name)) {
					return Recommendation{Stage: s, Rule: rule.name, ByName: true}, true
				}
			}
		}
		idx := rule.fallback(len(ordered))
		if idx < 0 || idx >= len(ordered) {
			return Recommendation{}, false
		}
		return Recommendation{Stage: ordered[idx], Rule: rule.name}, true
	}
	return Recommendation{}, false
}

// PlanRecovery builds the change that places an unstaged deal into the
// recommended stage. The deal's status is kept; closed deals never carry a
// follow-up date.
func PlanRecovery(deal Deal, rec Recommendation, now time.Time) Change {
	next := nextActionDate(deal, rec.Stage, deal.Status, now)

	how := "position"
	if rec.ByName {
		how = "name match"
	}
	return Change{
		StageID:        rec.Stage.ID,
		StageEnteredAt: now,
		NextActionDate: next,
		Status:         deal.Status,
		Activities: []ActivityEntry{{
			Type:        ActivityStageChange,
			Description: fmt.Sprintf("Stage recovered to %s (%s, %s)", rec.Stage.Name, rec.Rule, how),
		}},
	}
}

func keywords(words ...string) []stageMatcher {
	out := make([]stageMatcher, 0, len(words))
	for _, w := range words {
		out = append(out, contains(w))
	}
	return out
}

func contains(word string) stageMatcher {
	return func(folded string) bool { return strings.Contains(folded, word) }
}

// followUp matches "Follow up N" style names. For the first follow-up any
// follow-up stage that is not numbered 2 or 3 counts.
func followUp(n string) stageMatcher {
	return func(folded string) bool {
		if !strings.Contains(folded, "follow up") && !strings.Contains(folded, "follow-up") {
			return false
		}
		if n == "1" {
			return !strings.Contains(folded, "2") && !strings.Contains(folded, "3")
		}
		return strings.Contains(folded, n)
	}
}

func emailsSent(pred func(int) bool) func(Deal) bool {
	return func(d Deal) bool { return d.Status == StatusActive && pred(d.EmailsSent) }
}

func lastIndex(count int) int { return count - 1 }

func fixedIndex(i int) func(int) int {
	return func(int) int { return i }
}
