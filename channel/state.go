// Package channel defines the transport-agnostic channel abstraction: the
// lifecycle state machine, dynamic capability flags, message envelope, and
// callback fan-out that every transport in this module (tcp, udp, memring,
// pub, stream) builds on.
package channel

import "sync/atomic"

// State is one of the six lifecycle states a Channel occupies.
//
//	Closed → Opening (Open)
//	Opening → Active (success) | Error (failure)
//	Active → Closing (Close) | Error (fatal)
//	Closing → Closed (clean) | Error (fatal)
//	Error → Closed (Close(force)) | Destroy
//	any → Destroy (Free)
type State int8

const (
	Closed State = iota
	Opening
	Active
	Closing
	Error
	Destroy
)

func (s State) String() string {
	switch s {
	case Closed:
		return "Closed"
	case Opening:
		return "Opening"
	case Active:
		return "Active"
	case Closing:
		return "Closing"
	case Error:
		return "Error"
	case Destroy:
		return "Destroy"
	default:
		return "Unknown"
	}
}

// validTransitions enumerates every allowed (from, to) pair. Destroy is
// reachable from any state and is handled separately in CanTransition.
var validTransitions = map[State]map[State]bool{
	Closed:  {Opening: true},
	Opening: {Active: true, Error: true},
	Active:  {Closing: true, Error: true},
	Closing: {Closed: true, Error: true},
	Error:   {Closed: true},
}

// CanTransition reports whether a transition from `from` to `to` is
// permitted by the lifecycle state machine.
func CanTransition(from, to State) bool {
	if to == Destroy {
		return true
	}
	m, ok := validTransitions[from]
	return ok && m[to]
}

// FastState is a lock-free, CAS-driven holder of a Channel's State.
// Grounded on the same cache-line-padded atomic-state idiom used for the
// event loop's own run state (see internal/loop.RunState): the state is
// read far more often than it is written, so every read is a plain atomic
// load with no lock.
type FastState struct {
	_ [64]byte
	v atomic.Int32
	_ [60]byte
}

// NewFastState returns a FastState initialised to Closed.
func NewFastState() *FastState {
	s := &FastState{}
	s.v.Store(int32(Closed))
	return s
}

// Load returns the current state.
func (s *FastState) Load() State { return State(s.v.Load()) }

// Store force-sets the state without validating the transition. Used only
// for Destroy, which is reachable from any state.
func (s *FastState) Store(to State) { s.v.Store(int32(to)) }

// TryTransition attempts an atomic (from, to) transition, validated against
// CanTransition. Returns false if the current state isn't `from`, or if the
// transition is not permitted.
func (s *FastState) TryTransition(from, to State) bool {
	if !CanTransition(from, to) {
		return false
	}
	return s.v.CompareAndSwap(int32(from), int32(to))
}

// TransitionTo moves unconditionally to `to`, validated against whatever the
// current state happens to be at the moment of the call. It makes a single
// CAS and does not retry: if the CAS loses a race (another goroutine raced
// a Destroy in, most commonly) it reports ok=false, since only Destroy can
// race a normal transition per §5 of the spec (all other channel
// operations run single-threaded inside one loop).
func (s *FastState) TransitionTo(to State) (from State, ok bool) {
	from = s.Load()
	if from == Destroy {
		return from, false
	}
	if !CanTransition(from, to) {
		return from, false
	}
	ok = s.v.CompareAndSwap(int32(from), int32(to))
	return from, ok
}
