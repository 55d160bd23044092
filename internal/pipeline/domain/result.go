package domain

// Outcome is the terminal state of a transition attempt.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeNoop      Outcome = "noop"
	OutcomeNotFound  Outcome = "not_found"
	OutcomeRejected  Outcome = "rejected"
	OutcomeUnmatched Outcome = "unmatched"
	OutcomeFailed    Outcome = "failed"
)

// Result reports what a progression or recovery attempt did. Lookups that
// fail are reported here instead of being returned as errors.
type Result struct {
	Outcome Outcome
	Reason  string
	Deal    *Deal
	Stage   *Stage
}

// Applied reports whether the deal was changed.
func (r Result) Applied() bool {
	return r.Outcome == OutcomeApplied
}

// RecoveryReport aggregates a batch recovery run.
type RecoveryReport struct {
	Scanned   int `json:"scanned"`
	Recovered int `json:"recovered"`
	Noop      int `json:"noop"`
	Unmatched int `json:"unmatched"`
	Failed    int `json:"failed"`
}

// Add counts one per-deal result.
func (r *RecoveryReport) Add(res Result) {
	r.Scanned++
	switch res.Outcome {
	case OutcomeApplied:
		r.Recovered++
	case OutcomeNoop:
		r.Noop++
	case OutcomeUnmatched:
		r.Unmatched++
	default:
		r.Failed++
	}
}
