package pipeline

import "fmt"

// State is the lifecycle state of a pipeline run.
type State string

const (
	StateNotStarted State = "not-started"
	StateRunning    State = "running"
	StateCompleted  State = "completed"
	StateAborted    State = "aborted"
)

// IsTerminal reports whether no further transition is possible.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateAborted
}

func isAllowedTransition(from, to State) bool {
	switch from {
	case StateNotStarted:
		// aborted directly when up-front validation fails
		return to == StateRunning || to == StateAborted
	case StateRunning:
		return to == StateCompleted || to == StateAborted
	default:
		return false
	}
}

func checkTransition(from, to State) error {
	if !isAllowedTransition(from, to) {
		return fmt.Errorf("disallowed transition %s -> %s", from, to)
	}
	return nil
}
