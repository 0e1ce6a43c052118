package supervisor

import "fmt"

// State is a position in the attempt state machine:
//
//	Idle → Running → {Succeeded, Failed, TimedOut} → (Retrying → Running)* → Idle
type State int

const (
	StateIdle State = iota
	StateRunning
	StateSucceeded
	StateFailed
	StateTimedOut
	StateRetrying
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateTimedOut:
		return "timed_out"
	case StateRetrying:
		return "retrying"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// IsAttemptEnd reports whether s ends an attempt.
func IsAttemptEnd(s State) bool {
	switch s {
	case StateSucceeded, StateFailed, StateTimedOut:
		return true
	default:
		return false
	}
}

func isAllowedTransition(from, to State) bool {
	switch from {
	case StateIdle, StateRetrying:
		return to == StateRunning
	case StateRunning:
		return IsAttemptEnd(to)
	case StateSucceeded:
		return to == StateIdle
	case StateFailed, StateTimedOut:
		return to == StateRetrying || to == StateIdle
	default:
		return false
	}
}

// machine tracks the current state and the path taken through it.
type machine struct {
	state State
	trace []State
}

func newMachine() *machine {
	return &machine{state: StateIdle, trace: []State{StateIdle}}
}

// transition moves to the next state, rejecting moves the graph does not allow.
func (m *machine) transition(to State) error {
	if !isAllowedTransition(m.state, to) {
		return fmt.Errorf("disallowed transition %s -> %s", m.state, to)
	}
	m.state = to
	m.trace = append(m.trace, to)
	return nil
}
