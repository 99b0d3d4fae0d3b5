package processor

import (
	"sync"

	"github.com/joeycumines/go-channelgraph/channel"
	"github.com/joeycumines/go-channelgraph/internal/reopen"
)

// Channel is the lifecycle contract an Object's transport must satisfy on
// top of channel.Processor: the processor opens and closes objects
// directly (spec.md §4.5's `activate()`/`decay()`), it never drives their
// fd/ring I/O itself.
type Channel interface {
	channel.Processor
	Open() error
	Close() error
}

// Object wraps one channel plus the dependency/reopen/shutdown metadata the
// processor attaches to it, grounded on
// original_source/src/processor/deps.h's `struct Object`.
type Object struct {
	Name   string
	Chan   Channel
	Base   *channel.Base
	Worker *Worker

	DependsNames     []string // open-dependency names, resolved into Depends
	InitDependsNames []string

	Depends  []*Object // open-deps, resolved by BuildGraph
	RDepends []*Object // reverse open-deps, resolved by BuildGraph

	Shutdown ShutdownPolicy
	Internal bool // tll.internal — hidden from state dump, SPEC_FULL.md §5.1

	Stage     bool
	StageName string

	Reopen *reopen.State

	mu            sync.Mutex
	state         channel.State
	statePrev     channel.State
	decay         bool
	opening       bool
	subtreeClosed bool
}

func newObject(name string, ch Channel, base *channel.Base, shutdown ShutdownPolicy, reopenCfg reopen.Config) *Object {
	o := &Object{
		Name:     name,
		Chan:     ch,
		Base:     base,
		Shutdown: shutdown,
		Reopen:   reopen.New(reopenCfg, name),
	}
	base.Callbacks().AddOther(o, channel.MaskState, o.onStateMsg)
	return o
}

// State returns the last state this object's channel reported, tracked
// independently of channel.Base.State() so the processor can compare
// state/state_prev the way deps.h does (`o->state`, `o->state_prev`).
func (o *Object) State() channel.State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// StatePrev returns the state this object occupied immediately before its
// current one, used by the processor to distinguish an Opening->Error
// failure from an Active->Error failure (spec.md §4.6's reopen backoff
// rules).
func (o *Object) StatePrev() channel.State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.statePrev
}

func (o *Object) setState(s channel.State) (prev channel.State) {
	o.mu.Lock()
	prev = o.state
	o.statePrev = prev
	o.state = s
	o.mu.Unlock()
	return prev
}

// Decaying reports whether this object has been marked for shutdown decay.
func (o *Object) Decaying() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.decay
}

func (o *Object) setDecay(v bool) {
	o.mu.Lock()
	o.decay = v
	o.mu.Unlock()
}

// Opening reports whether an Activate has been sent but the channel's
// Opening state not yet observed — used by ReadyClose to avoid closing a dependency while a
// dependent is mid-open (deps.h's `ready_close` "any rdepend opening"
// check).
func (o *Object) Opening() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opening
}

func (o *Object) setOpening(v bool) {
	o.mu.Lock()
	o.opening = v
	o.mu.Unlock()
}

// ReadyOpen reports whether every open-dependency is Active and none of
// this object's dependencies or reverse-dependencies is mid-decay, per
// deps.h's `ready_open()`.
func (o *Object) ReadyOpen() bool {
	for _, d := range o.Depends {
		if d.Decaying() {
			return false
		}
	}
	for _, d := range o.RDepends {
		if d.Decaying() {
			return false
		}
	}
	for _, d := range o.Depends {
		if d.State() != channel.Active {
			return false
		}
	}
	return true
}

// ReadyClose reports whether every reverse-dependency (dependent) is
// Closed and none is mid-open, per deps.h's `ready_close()`.
func (o *Object) ReadyClose() bool {
	for _, d := range o.RDepends {
		if d.Opening() {
			return false
		}
	}
	for _, d := range o.RDepends {
		if d.State() != channel.Closed {
			return false
		}
	}
	return true
}

// onStateMsg is registered on the object's channel.Base as a MaskState
// "other" callback; it fires synchronously, on whatever goroutine drives
// this object's worker loop, every time the underlying channel transitions
// state (channel.Base.transition's Dispatch call). It updates local
// bookkeeping then hands control back to the processor via its Loop, the
// in-process analogue of deps.cc's `Object::callback` posting
// `scheme::State` upstream to the processor through the worker's IPC
// client.
func (o *Object) onStateMsg(msg *channel.Message) {
	s := channel.State(msg.MsgID)
	o.setState(s)
	if s == channel.Opening {
		o.setOpening(false)
	}
	if o.Worker == nil || o.Worker.proc == nil {
		return
	}
	o.Worker.proc.loop.Submit(func() {
		o.Worker.proc.onObjectState(o, s)
	})
}

// Open transitions the wrapped channel Closed -> Opening, the processor's
// entry point on Activate (deps.h's `open() { return reopen.open(); }` —
// reopen timing itself lives in Processor.reactivate/pending_process, not
// inside Object.Open).
func (o *Object) Open() error { return o.Chan.Open() }

// Close closes the wrapped channel; force mirrors worker.cc's
// `channel->close(force = state == Error)`.
func (o *Object) Close(force bool) error {
	if force && o.Base.State() != channel.Error {
		_ = o.Base.Fail()
	}
	return o.Chan.Close()
}
