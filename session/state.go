package session

// State is the step of the interaction a session is in
type State int

const (
	Idle State = iota
	Searching
	Selecting
	Confirming
	Analyzing
	Results
	// Error is reserved. Failures return the session to the last interactive
	// state with a message instead of parking it here.
	Error
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Searching:
		return "searching"
	case Selecting:
		return "selecting"
	case Confirming:
		return "confirming"
	case Analyzing:
		return "analyzing"
	case Results:
		return "results"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}
