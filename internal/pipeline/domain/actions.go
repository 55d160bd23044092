package domain

import (
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
)

// Action is a business event that implies the contact reached a stage.
type Action string

const (
	ActionSignedUp         Action = "signed_up"
	ActionProfileComplete  Action = "profile_complete"
	ActionListingPublished Action = "listing_published"
	ActionMeetingBooked    Action = "meeting_booked"
	ActionProposalSent     Action = "proposal_sent"
	ActionContractSigned   Action = "contract_signed"
)

// Actions lists every known action.
var Actions = []Action{
	ActionSignedUp,
	ActionProfileComplete,
	ActionListingPublished,
	ActionMeetingBooked,
	ActionProposalSent,
	ActionContractSigned,
}

// TargetStageName returns the stage name an action progresses a deal to.
func TargetStageName(a Action) (string, bool) {
	switch a {
	case ActionSignedUp:
		return "Registered", true
	case ActionProfileComplete:
		return "Profile Complete", true
	case ActionListingPublished:
		return "Listed", true
	case ActionMeetingBooked:
		return "Meeting Booked", true
	case ActionProposalSent:
		return "Proposal Sent", true
	case ActionContractSigned:
		return "Closed Won", true
	}
	return "", false
}

// ParseAction normalizes raw input into a known Action.
func ParseAction(raw string) (Action, bool) {
	a := Action(strings.ToLower(strings.TrimSpace(raw)))
	_, ok := TargetStageName(a)
	return a, ok
}

// Fold returns the caseless form of s used for every name and email comparison.
func Fold(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

// FindStageByName returns the stage whose name equals name ignoring case.
func FindStageByName(stages []Stage, name string) (Stage, bool) {
	want := Fold(name)
	for _, s := range stages {
		if Fold(s.Name) == want {
			return s, true
		}
	}
	return Stage{}, false
}

// FindStage returns the stage with the given ID.
func FindStage(stages []Stage, id uuid.UUID) (Stage, bool) {
	for _, s := range stages {
		if s.ID == id {
			return s, true
		}
	}
	return Stage{}, false
}
