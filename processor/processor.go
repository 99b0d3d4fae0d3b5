package processor

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/joeycumines/go-channelgraph/channel"
	"github.com/joeycumines/go-channelgraph/internal/loop"
	"github.com/joeycumines/go-channelgraph/internal/xlog"
	"github.com/joeycumines/logiface"
	"golang.org/x/sync/errgroup"
)

// Option configures optional Processor construction behaviour.
type Option func(*Processor)

// WithLogger attaches root as the processor's logging frontend; every
// fail-path below logs through a name-tagged child of root (spec.md §7:
// "every fail-path is logged at Error level"). Callers not supplying one
// get a discarding logger, so logging is always safe to call but opt-in
// to actually observe.
func WithLogger(root *xlog.Logger) Option {
	return func(p *Processor) { p.Logger = root }
}

func discardLogger() *xlog.Logger {
	return xlog.Root(io.Discard, logiface.LevelEmergency)
}

// pendingEntry is one (next-attempt-timestamp, object) row in the
// processor's reopen timer multimap, per spec.md §4.5: "a per-processor
// pending-timer channel fires at the earliest next_ts in a sorted
// multimap."
type pendingEntry struct {
	ts  time.Time
	obj *Object
}

// Processor owns the object graph, its workers, and the reopen timer —
// the Go analogue of original_source/src/processor/processor.h's
// `Processor`. Every field below this point is only ever touched on the
// goroutine running proc.loop (either directly, by code called from
// Open/Run, or via proc.loop.Submit from a worker's onObjectState/
// onWorkerState callback), matching spec.md §5's "no direct shared mutable
// state" rule.
type Processor struct {
	Name string
	// RunID tags every log line this processor (and its workers) emit,
	// distinguishing one process invocation's logs from another's when
	// aggregated centrally.
	RunID string

	loop        *loop.Loop
	workers     map[string]*Worker
	objects     []*Object
	stages      map[string][]*Object
	workerGroup *errgroup.Group

	state    channel.State
	exitCode int
	stopped  bool

	mu      sync.Mutex // guards pending/timer, touched from time.AfterFunc's own goroutine
	pending []pendingEntry
	timer   *time.Timer

	done chan struct{}

	Logger *xlog.Logger
}

// New builds the object graph from specs (spec.md §4.5 steps 1-5) without
// opening anything yet.
func New(name string, specs []ObjectSpec, opts ...Option) (*Processor, error) {
	p := &Processor{
		Name:    name,
		RunID:   uuid.NewString(),
		loop:    loop.New(name),
		workers: make(map[string]*Worker),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.Logger == nil {
		p.Logger = discardLogger()
	}
	p.Logger = xlog.Named(p.Logger, name).Clone().Str("run_id", p.RunID).Logger()
	objects, err := BuildGraph(specs, p.workers, newWorker)
	if err != nil {
		p.Logger.Err().Log(fmt.Sprintf("build object graph: %v", err))
		return nil, err
	}
	p.objects = objects

	specByName := make(map[string]ObjectSpec, len(specs))
	for _, s := range specs {
		specByName[s.Name] = s
	}
	p.stages = Stages(objects, specByName)
	if len(p.stages) == 0 {
		err := &ConfigError{Msg: "no readiness stage could be derived from the object graph"}
		p.Logger.Err().Log(err.Error())
		return nil, err
	}
	return p, nil
}

// Objects returns every constructed object, in init-depth order.
func (p *Processor) Objects() []*Object { return append([]*Object(nil), p.objects...) }

// State returns the processor's own lifecycle state.
func (p *Processor) State() channel.State { return p.state }

// ExitCode returns the code recorded by the most recent shutdown request.
func (p *Processor) ExitCode() int { return p.exitCode }

// Done returns a channel closed once every worker has reported Closed.
func (p *Processor) Done() <-chan struct{} { return p.done }

func (p *Processor) find(name string) *Object {
	for _, o := range p.objects {
		if o.Name == name {
			return o
		}
	}
	return nil
}

// Open initializes the processor's own loop and every worker's loop,
// registers every object as a loop member, and starts each worker
// goroutine. The processor transitions to Active once every worker reports
// Active and activate() fires (spec.md §4.5 "Open sequence").
func (p *Processor) Open() error {
	if err := p.loop.Init(); err != nil {
		return fmt.Errorf("processor %s: init loop: %w", p.Name, err)
	}
	for _, w := range p.workers {
		if err := w.attach(p); err != nil {
			return err
		}
	}
	p.workerGroup = new(errgroup.Group)
	p.state = channel.Opening
	for _, w := range p.workers {
		w.run()
	}
	return nil
}

// Wait blocks until every worker goroutine started by Open has returned,
// joining them via the shared errgroup.Group (worker.cc's `t.join()` for
// every worker thread, the Go rendezvous equivalent), and returns the
// first non-nil error any worker's loop reported. Call after Run returns.
func (p *Processor) Wait() error {
	if p.workerGroup == nil {
		return nil
	}
	return p.workerGroup.Wait()
}

// Run drives the processor's own control-plane loop until Close has
// propagated all the way through (every worker Closed). It does not drive
// worker loops directly — each worker runs on its own goroutine, started
// by Open.
func (p *Processor) Run(tick time.Duration) error {
	return p.loop.Run(tick)
}

// activate implements Processor::activate(): every object with zero
// open-dependencies is activated once every worker is Active.
func (p *Processor) activate() {
	p.state = channel.Active
	for _, o := range p.objects {
		if len(o.Depends) == 0 {
			p.activateObject(o)
		}
	}
}

func (p *Processor) activateObject(o *Object) {
	o.setOpening(true)
	o.Worker.handleActivate(o)
}

func (p *Processor) deactivateObject(o *Object, failure bool) {
	o.Worker.handleDeactivate(o)
}

// onWorkerState handles the upstream WorkerState IPC message (spec.md
// §4.5), submitted onto p.loop by Worker.run/handleExit.
func (p *Processor) onWorkerState(w *Worker, s WorkerState) {
	w.state = s
	if s == WorkerClosed {
		if p.allWorkersClosed() {
			p.finishClose()
		}
		return
	}
	if !p.allWorkersActive() {
		return
	}
	p.activate()
}

func (p *Processor) allWorkersActive() bool {
	for _, w := range p.workers {
		if w.state != WorkerActive {
			return false
		}
	}
	return true
}

func (p *Processor) allWorkersClosed() bool {
	for _, w := range p.workers {
		if w.state != WorkerClosed {
			return false
		}
	}
	return true
}

func (p *Processor) finishClose() {
	if p.stopped {
		return
	}
	p.stopped = true
	p.state = channel.Closed
	close(p.done)
	p.loop.Stop()
}

// onObjectState handles the upstream State IPC message, the Go analogue of
// Processor::update in original_source/src/processor/processor.cc.
// Submitted onto p.loop by Object.onStateMsg, running on whichever
// worker's goroutine actually observed the transition.
func (p *Processor) onObjectState(o *Object, s channel.State) {
	prev := o.StatePrev()
	now := time.Now()

	switch s {
	case channel.Active:
		o.Reopen.OnActive(now)
		for _, d := range o.RDepends {
			if d.ReadyOpen() {
				p.activateObject(d)
			}
		}
		return

	case channel.Closing:
		if o.Shutdown == ShutdownClose {
			p.requestShutdown(0, o)
		}

	case channel.Error:
		p.Logger.Err().Str("object", o.Name).Log("channel entered error state")
		if o.Shutdown == ShutdownClose || o.Shutdown == ShutdownError {
			p.requestShutdown(1, o)
		}
		var delay time.Duration
		if prev == channel.Opening {
			delay = o.Reopen.OnOpeningError(now)
		} else {
			delay = o.Reopen.OnActiveFailure(now)
		}
		p.deactivateObject(o, true)
		if p.state == channel.Active && delay > 0 {
			p.pendingAdd(o.Reopen.NextAttempt(), o)
		}

	case channel.Closed:
		// A Closed arriving via Error already had its reopen delay computed
		// and scheduled by the Error branch above (OnOpeningError/
		// OnActiveFailure + pendingAdd); treating it as a clean close here
		// too would reset the backoff and reactivate immediately, racing
		// the already-pending timer entry.
		prevWasError := prev == channel.Error
		wasDecaying := o.Decaying()
		p.decay(o)
		for _, d := range o.Depends {
			if d.ReadyClose() {
				p.deactivateObject(d, false)
			}
		}
		if !prevWasError && !wasDecaying && p.state == channel.Active {
			o.Reopen.OnCleanClose(now)
			p.reactivate(o)
		}
		p.maybeCloseWorkers()
	}
}

// reactivate implements Processor::reactivate: reopen an object whose
// decay turned out to be spurious (a clean close outside of a
// processor-wide shutdown), either immediately or via the pending timer.
func (p *Processor) reactivate(o *Object) {
	if p.state != channel.Active || !o.ReadyOpen() {
		return
	}
	next := o.Reopen.NextAttempt()
	if !next.After(time.Now()) {
		p.activateObject(o)
		return
	}
	p.pendingAdd(next, o)
}

// decay implements Processor::decay: marks obj and its reverse-dependency
// subtree as decaying, and deactivates any leaf whose own dependents are
// already fully closed.
func (p *Processor) decay(o *Object) {
	if o.Decaying() {
		return
	}
	o.setDecay(true)
	for _, d := range o.RDepends {
		p.decay(d)
	}
	if (o.State() != channel.Closed || o.Opening()) && o.ReadyClose() {
		p.deactivateObject(o, false)
	}
}

// requestShutdown implements the shutdown-on policy check from
// deps.cc's Object::callback: a Closing/Error transition on an object
// whose shutdown policy opts in triggers processor-wide Close.
func (p *Processor) requestShutdown(code int, o *Object) {
	if p.state == channel.Closing || p.state == channel.Closed {
		return
	}
	p.exitCode = code
	p.closeLocked()
}

// Close requests a graceful processor-wide shutdown: every object decays,
// and once all objects (and therefore all workers) are Closed, Run
// returns. Safe to call from any goroutine.
func (p *Processor) Close() error {
	p.loop.Submit(p.closeLocked)
	return nil
}

func (p *Processor) closeLocked() {
	if p.state == channel.Closing || p.state == channel.Closed {
		return
	}
	p.state = channel.Closing
	for _, o := range p.objects {
		p.decay(o)
	}
	p.maybeCloseWorkers()
}

// maybeCloseWorkers implements Processor::_close_workers: once every
// object is Closed, every worker is told to Exit.
func (p *Processor) maybeCloseWorkers() {
	for _, o := range p.objects {
		if o.State() != channel.Closed {
			return
		}
	}
	for _, w := range p.workers {
		if w.state != WorkerClosed {
			w.handleExit()
		}
	}
}

// pendingAdd schedules obj's next reopen attempt at ts, per spec.md §4.5's
// "per-processor pending-timer channel ... sorted multimap", rearming the
// timer if ts is now the earliest entry.
func (p *Processor) pendingAdd(ts time.Time, o *Object) {
	p.mu.Lock()
	for _, e := range p.pending {
		if e.obj == o && e.ts.Equal(ts) {
			p.mu.Unlock()
			return
		}
	}
	rearm := len(p.pending) == 0 || p.pending[0].ts.After(ts)
	p.pending = append(p.pending, pendingEntry{ts: ts, obj: o})
	sort.Slice(p.pending, func(i, j int) bool { return p.pending[i].ts.Before(p.pending[j].ts) })
	p.mu.Unlock()
	if rearm {
		p.rearmTimer(ts)
	}
}

func (p *Processor) rearmTimer(ts time.Time) {
	p.mu.Lock()
	if p.timer != nil {
		p.timer.Stop()
	}
	d := time.Until(ts)
	if d < 0 {
		d = 0
	}
	p.timer = time.AfterFunc(d, func() {
		p.loop.Submit(p.firePending)
	})
	p.mu.Unlock()
}

// firePending implements Processor::pending_process: reopen every object
// whose scheduled timestamp has passed.
func (p *Processor) firePending() {
	now := time.Now()
	p.mu.Lock()
	var due []*Object
	rest := p.pending[:0:0]
	for _, e := range p.pending {
		if !e.ts.After(now) {
			due = append(due, e.obj)
		} else {
			rest = append(rest, e)
		}
	}
	p.pending = rest
	next := time.Time{}
	if len(p.pending) > 0 {
		next = p.pending[0].ts
	}
	p.mu.Unlock()

	for _, o := range due {
		if p.state == channel.Active && o.ReadyOpen() {
			p.activateObject(o)
		}
	}
	if !next.IsZero() {
		p.rearmTimer(next)
	}
}

// StateDump returns a snapshot of every non-internal object's current
// state, the Go analogue of the StateDump/StateDumpEnd IPC round-trip.
func (p *Processor) StateDump() map[string]channel.State {
	out := make(map[string]channel.State, len(p.objects))
	for _, o := range p.objects {
		if o.Internal {
			continue
		}
		out[o.Name] = o.State()
	}
	return out
}

// MessageForward injects msg into the named object's channel, the Go
// analogue of the MessageForward IPC message.
func (p *Processor) MessageForward(name string, msg *channel.Message) error {
	o := p.find(name)
	if o == nil {
		return fmt.Errorf("processor: object %q not found", name)
	}
	return o.Base.Post(msg)
}

// RequestClose closes a single named object on user request, the Go
// analogue of the ChannelClose IPC message.
func (p *Processor) RequestClose(name string) error {
	o := p.find(name)
	if o == nil {
		return fmt.Errorf("processor: object %q not found", name)
	}
	if o.State() == channel.Closed {
		return nil
	}
	p.loop.Submit(func() {
		p.deactivateObject(o, false)
	})
	return nil
}
