package workflow

// State represents a status in the expense approval lifecycle
type State string

const (
	StateDraft      State = "draft"
	StateSubmitted  State = "submitted"
	StateProcessing State = "processing"
	StateApproved   State = "approved"
	StateRejected   State = "rejected"
	StatePaid       State = "paid"
)

var validStates = map[State]bool{
	StateDraft:      true,
	StateSubmitted:  true,
	StateProcessing: true,
	StateApproved:   true,
	StateRejected:   true,
	StatePaid:       true,
}

// Approved stays terminal for approve/reject; settlement is the one exit
var terminalStates = map[State]bool{
	StateApproved: true,
	StateRejected: true,
	StatePaid:     true,
}

// IsTerminal returns true if the state is a terminal state
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is a valid lifecycle state
func (s State) IsValid() bool {
	return validStates[s]
}
