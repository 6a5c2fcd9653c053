package pipeline

import (
	"errors"
	"sync"
	"sync/atomic"
)

// State is one of the three states a Pipeline can be in.
type State int32

const (
	StateIdle State = iota
	StateRecording
	StateProcessing
)

func (s State) String() string {
	switch s {
	case StateRecording:
		return "recording"
	case StateProcessing:
		return "processing"
	default:
		return "idle"
	}
}

// ErrInvalidStateTransition is returned by a transition attempted from a
// state it isn't valid from.
var ErrInvalidStateTransition = errors.New("pipeline: invalid state transition")

// stateMachine guards the current State behind a mutex and mirrors it
// into an atomic int32, the same split the realtime session tracker uses
// so get_state never blocks on a concurrent transition.
type stateMachine struct {
	mu    sync.Mutex
	value atomic.Int32
}

func newStateMachine() *stateMachine {
	return &stateMachine{}
}

// Load reads the current state without taking the mutex.
func (sm *stateMachine) Load() State {
	return State(sm.value.Load())
}

// transition moves to `to` only if the current state is one of `from`,
// returning ErrInvalidStateTransition otherwise.
func (sm *stateMachine) transition(to State, from ...State) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	current := State(sm.value.Load())
	for _, f := range from {
		if current == f {
			sm.value.Store(int32(to))
			return nil
		}
	}
	return ErrInvalidStateTransition
}

// compareAndTransition moves to `to` only if the current state is
// exactly `from`, reporting whether it did so. Used where the caller
// treats "wasn't in that state" as a silent no-op rather than an error.
func (sm *stateMachine) compareAndTransition(to, from State) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if State(sm.value.Load()) != from {
		return false
	}
	sm.value.Store(int32(to))
	return true
}

// forceTo sets the state unconditionally. Used by cancel_streaming, which
// the design requires to be valid and terminal from any state.
func (sm *stateMachine) forceTo(to State) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.value.Store(int32(to))
}
