// Package processor implements the dependency-ordered object graph, worker
// pool, and IPC control protocol described in spec.md §4.5: a Processor
// owns a set of Objects (each wrapping one channel plus dependency/reopen/
// shutdown metadata) distributed across Workers (each a long-lived
// goroutine driving its own internal/loop.Loop). Control messages between
// the processor and its workers are plain Go values passed through
// internal/loop.Loop.Submit — the in-process analogue of the teacher's
// broadcast IPC channel named in SPEC_FULL.md's component table.
package processor

import "fmt"

// ShutdownPolicy controls whether an object reaching Closing or Error
// requests processor-wide shutdown, per spec.md §4.5 "Per-object
// shutdown-on policy {None, Close, Error}", grounded on
// original_source/src/processor/deps.h's `enum class Shutdown`.
type ShutdownPolicy int8

const (
	ShutdownNone ShutdownPolicy = iota
	ShutdownClose
	ShutdownError
)

func (p ShutdownPolicy) String() string {
	switch p {
	case ShutdownNone:
		return "none"
	case ShutdownClose:
		return "close"
	case ShutdownError:
		return "error"
	default:
		return "unknown"
	}
}

// Control messages between the processor and its workers (spec.md §4.5
// "Downstream: Activate{obj}, Deactivate{obj}, Exit. Upstream:
// WorkerState{state,worker}, State{channel,worker,state}, Exit{code,
// channel}") are plain closures passed through internal/loop.Loop.Submit
// rather than typed structs — see Worker.handleActivate/handleDeactivate/
// handleExit and Object.onStateMsg/Processor.onObjectState/onWorkerState.

// WorkerState mirrors tll_state_t as used for a Worker's own lifecycle —
// only Closed and Active are ever observed externally (a worker has no
// Opening/Closing/Error state of its own in this design).
type WorkerState int8

const (
	WorkerClosed WorkerState = iota
	WorkerActive
)

func (s WorkerState) String() string {
	if s == WorkerActive {
		return "Active"
	}
	return "Closed"
}

// DependencyCycleError reports a detected cycle while computing object
// depth, per spec.md §4.5 step 2: "fail on cycle, reporting the cycle
// path."
type DependencyCycleError struct {
	Stage string // "init" or "open"
	Path  []string
}

func (e *DependencyCycleError) Error() string {
	return fmt.Sprintf("processor: %s dependency cycle detected: %v", e.Stage, e.Path)
}

// ConfigError reports a structural problem in the object graph
// configuration: duplicate names, missing dependencies, empty graphs.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string { return "processor: " + e.Msg }
