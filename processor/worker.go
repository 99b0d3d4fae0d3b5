package processor

import (
	"fmt"
	"time"

	"github.com/joeycumines/go-channelgraph/channel"
	"github.com/joeycumines/go-channelgraph/internal/loop"
)

// Worker is a long-lived goroutine running its own internal/loop.Loop and
// owning a disjoint subset of Objects, per spec.md §4.5 "Worker. A
// long-lived thread running a loop, owning a disjoint subset of Objects."
// Grounded on original_source/src/processor/worker.h/worker.cc, with the
// C++ IPC client channel replaced by internal/loop.Loop.Submit (spec.md
// §9's note that in-process transports needn't round-trip a wire codec).
type Worker struct {
	Name    string
	Loop    *loop.Loop
	Objects []*Object

	proc *Processor

	state WorkerState
	tick  time.Duration
}

func newWorker(name string) *Worker {
	return &Worker{
		Name: name,
		Loop: loop.New(name),
		tick: 20 * time.Millisecond,
	}
}

// attach binds the worker to its owning processor and registers every
// owned object's channel as a loop member, per worker.cc's `_open`
// `for (auto & o : objects) _child_add(o->channel.get())` (registration
// here is scheduling, not parent/child bookkeeping, since that's handled
// where each transport is constructed).
func (w *Worker) attach(p *Processor) error {
	w.proc = p
	if err := w.Loop.Init(); err != nil {
		return fmt.Errorf("processor: worker %s: init loop: %w", w.Name, err)
	}
	for _, o := range w.Objects {
		obj := o
		member := channel.LoopMember{Base: obj.Base, Proc: obj.Chan}
		// cb is built once and reused at every (re)registration of member,
		// so poller-reported fd readiness always reaches Loop.dispatch via
		// DispatchMember instead of a no-op callback swallowing it.
		cb := func(loop.Events) { w.Loop.DispatchMember(member) }
		if err := w.Loop.RegisterMember(member, obj.Base.FD(), pollEvents(obj.Base.DCaps()), cb); err != nil {
			return fmt.Errorf("processor: worker %s: register object %s: %w", w.Name, obj.Name, err)
		}
		obj.Base.Callbacks().AddOther(w, channel.MaskChannel, func(msg *channel.Message) {
			w.reconcile(member, cb, obj, msg)
		})
	}
	return nil
}

// pollEvents derives poller Events from a channel's current dcaps, per
// spec.md §4.2 ("arm PollIn/PollOut as requested by dcaps").
func pollEvents(d channel.DCap) loop.Events {
	var ev loop.Events
	if d&channel.PollIn != 0 {
		ev |= loop.EventRead
	}
	if d&channel.PollOut != 0 {
		ev |= loop.EventWrite
	}
	return ev
}

// reconcile keeps the loop's poller subscription for obj in sync with fd
// and dcaps changes, per internal/loop's MetaUpdateFD/MetaUpdate contract
// (spec.md §4.2). cb is the same dispatching callback attach registered
// member with, reused so a new fd still wakes process() correctly.
func (w *Worker) reconcile(member channel.LoopMember, cb loop.Callback, obj *Object, msg *channel.Message) {
	switch msg.MsgID {
	case channel.MetaUpdateFD:
		_ = w.Loop.ReconcileFD(member, obj.Base.FD(), pollEvents(obj.Base.DCaps()), cb)
	case channel.MetaUpdate:
		_ = w.Loop.ReconcileDCaps(member, obj.Base.FD(), uint32(obj.Base.DCaps()))
	}
}

// run starts the worker's loop on its own goroutine and reports Active
// once started, mirroring worker.cc's `_open`: `state(Active); post
// WorkerState{Active, this}`.
func (w *Worker) run() {
	w.state = WorkerActive
	w.proc.workerGroup.Go(func() error {
		return w.Loop.Run(w.tick)
	})
	w.proc.loop.Submit(func() {
		w.proc.onWorkerState(w, WorkerActive)
	})
}

// handleActivate implements worker.cc's Activate branch: `data->obj->open()`.
// Submitted onto w.Loop so the actual Open() call (and the synchronous
// state-change callback it triggers) runs on this worker's own goroutine.
func (w *Worker) handleActivate(obj *Object) {
	w.Loop.Submit(func() {
		if err := obj.Open(); err != nil {
			w.proc.Logger.Err().Str("object", obj.Name).Log(fmt.Sprintf("open failed: %v", err))
			_ = obj.Base.Fail()
		}
	})
}

// handleDeactivate implements worker.cc's Deactivate branch:
// `channel->close(force = state == Error)`.
func (w *Worker) handleDeactivate(obj *Object) {
	w.Loop.Submit(func() {
		force := obj.Base.State() == channel.Error
		_ = obj.Close(force)
	})
}

// handleExit implements worker.cc's Exit branch: stop the loop and report
// Closed upstream.
func (w *Worker) handleExit() {
	w.Loop.Submit(func() {
		w.Loop.Stop()
		w.state = WorkerClosed
		w.proc.loop.Submit(func() {
			w.proc.onWorkerState(w, WorkerClosed)
		})
	})
}
