package domain

import "time"

type Outcome int

const (
	OutcomeDenied Outcome = iota
	OutcomeAdmitted
	OutcomeAlreadyBound
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAdmitted:
		return "admitted"
	case OutcomeAlreadyBound:
		return "already_bound"
	default:
		return "denied"
	}
}

// Err maps the outcome onto the error taxonomy. Admission returns nil.
func (o Outcome) Err() error {
	switch o {
	case OutcomeAdmitted:
		return nil
	case OutcomeAlreadyBound:
		return ErrAlreadyBound
	default:
		return ErrNoEligibleSlot
	}
}

// Decision is one admission result as seen by observers.
//
// Requester is the claimant or viewer behind the request when one is known.
// Keep its cardinality in mind when the recorder keys by it.
type Decision struct {
	Item      ItemID
	Requester string
	Action    string
	Priority  Priority
	Outcome   Outcome
	Slot      SlotIndex
	At        time.Time
}
