package workflow

// State is a document lifecycle state. The same machine machinery drives
// both contract and invoice documents; each document type configures its
// own transition table in document.go.
type State string

const (
	// Contract states.
	StateNeedsReview State = "needs_review"
	StateActive      State = "active"
	StateInactive    State = "inactive"
	StateExpired     State = "expired"

	// Invoice states.
	StatePending    State = "pending"
	StateReconciled State = "reconciled"
	StateFlagged    State = "flagged"
	StateApproved   State = "approved"
	StateRejected   State = "rejected"
)

var validStates = map[State]bool{
	StateNeedsReview: true,
	StateActive:      true,
	StateInactive:    true,
	StateExpired:     true,
	StatePending:     true,
	StateReconciled:  true,
	StateFlagged:     true,
	StateApproved:    true,
	StateRejected:    true,
}

var terminalStates = map[State]bool{
	StateApproved: true,
	StateRejected: true,
}

// IsValid returns true if the state belongs to a known document lifecycle.
func (s State) IsValid() bool {
	return validStates[s]
}

// IsTerminal returns true if no further transitions are allowed.
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// String returns the string representation of the state.
func (s State) String() string {
	return string(s)
}
