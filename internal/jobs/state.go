package jobs

import "fmt"

// State is the lifecycle state of a job.
type State string

const (
	StateQueued      State = "queued"
	StateDownloading State = "downloading"
	StateProcessing  State = "processing"
	StateReady       State = "ready"
	StateDone        State = "done"
	StateError       State = "error"
	StatePaused      State = "paused"
	StateDeleted     State = "deleted"
)

// AllStates lists every state in lifecycle order.
var AllStates = []State{
	StateQueued, StateDownloading, StateProcessing, StateReady,
	StateDone, StateError, StatePaused, StateDeleted,
}

// polledStates may be moved freely between each other by upstream reports.
var polledStates = []State{StateQueued, StateDownloading, StateProcessing, StateReady}

// validTransitions defines allowed state transitions.
// Key is the "from" state, value is the list of valid "to" states.
var validTransitions = map[State][]State{
	StateQueued:      {StateDownloading, StateProcessing, StateReady, StateError, StatePaused, StateDeleted},
	StateDownloading: {StateQueued, StateProcessing, StateReady, StateError, StatePaused, StateDeleted},
	StateProcessing:  {StateQueued, StateDownloading, StateReady, StateError, StatePaused, StateDeleted},
	StateReady:       {StateQueued, StateDownloading, StateProcessing, StateDone, StateError, StatePaused, StateDeleted},
	StatePaused:      {StateQueued, StateDeleted},
	StateDone:        {StateDeleted},
	StateError:       {StateDeleted},
	StateDeleted:     {},
}

// CanTransitionTo returns true if moving from s to target is allowed.
func (s State) CanTransitionTo(target State) bool {
	for _, v := range validTransitions[s] {
		if v == target {
			return true
		}
	}
	return false
}

// Polled reports whether the reconciliation loop queries jobs in this state.
func (s State) Polled() bool {
	for _, p := range polledStates {
		if s == p {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the job will never change state on its own.
func (s State) IsTerminal() bool {
	return s == StateDone || s == StateError || s == StateDeleted
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	_, ok := validTransitions[s]
	return ok
}

// ParseState converts a string to a State.
func ParseState(s string) (State, error) {
	st := State(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown state %q", s)
	}
	return st, nil
}

// InputKind says how the payload of a job was submitted.
type InputKind string

const (
	InputMagnet  InputKind = "magnet"
	InputTorrent InputKind = "torrent"
)
