package loop

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// RunState mirrors eventloop.LoopState (cache-line padded atomic enum),
// trimmed to the three states this framework's loop actually needs: a
// single-threaded cooperative scheduler doesn't need a distinct Sleeping
// state exposed externally, since sleep happens inside Poll and is not
// observable to other goroutines beyond "still running".
type RunState int32

const (
	StateIdle RunState = iota
	StateRunning
	StateStopped
)

// Member is anything the loop can schedule: a channel.Processor plus the fd
// and dcaps the loop needs to decide how to schedule it. Transports satisfy
// this by exposing their embedded *channel.Base (FD/DCaps) alongside
// Process().
type Member interface {
	FD() int
	DCaps() uint32 // channel.DCap, spelled as uint32 to avoid an import cycle
	Process() error
	Fail() error
	Name() string
}

// needProcess duplicates channel.DCap.NeedProcess()'s formula locally
// (DCap/Process/Suspend numeric values are part of this package's contract
// with channel, re-declared here to avoid a loop<->channel import cycle:
// channel.Base will implement Member by adapting its own DCap type to
// these same bit positions).
const (
	dcapPollIn  uint32 = 1 << 0
	dcapPollOut uint32 = 1 << 1
	dcapProcess uint32 = 1 << 2
	dcapPending uint32 = 1 << 3
	dcapSuspend uint32 = 1 << 4
)

func needProcess(d uint32) bool { return d&(dcapProcess|dcapSuspend) == dcapProcess }
func isPending(d uint32) bool   { return d&dcapPending != 0 }

// Loop is the per-worker (and per-processor) event loop: one goroutine,
// one poller, a pending-wakeup fd, and three scheduling lists. Grounded on
// eventloop.Loop's overall shape, narrowed from a JS task/timer/promise
// scheduler down to spec.md §4.2's channel scheduler.
type Loop struct {
	name  string
	state atomic.Int32

	poller      Poller
	wakeReadFD  int
	wakeWriteFD int
	wakeArmed   atomic.Bool

	mu          sync.Mutex
	byFD        map[int]Member // fd-backed, Process-eligible
	pending     map[int]Member // members currently Pending, keyed by FD for dedup (no-fd members share key -1)
	nofd        map[Member]struct{}
	memberFDs   map[Member]int

	ingress *ingress

	stopCh chan struct{}
	doneCh chan struct{}
}

// New constructs a Loop; Init() must be called before Run().
func New(name string) *Loop {
	return &Loop{
		name:    name,
		poller:  newPoller(),
		byFD:    make(map[int]Member),
		pending: make(map[int]Member),
		nofd:    make(map[Member]struct{}),
		memberFDs: make(map[Member]int),
		ingress: newIngress(),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Init initializes the platform poller and pending-wakeup fd.
func (l *Loop) Init() error {
	if err := l.poller.Init(); err != nil {
		return fmt.Errorf("loop %s: init poller: %w", l.name, err)
	}
	rfd, wfd, err := createWakeFD()
	if err != nil {
		return fmt.Errorf("loop %s: create wake fd: %w", l.name, err)
	}
	l.wakeReadFD, l.wakeWriteFD = rfd, wfd
	if err := l.poller.RegisterFD(rfd, EventRead, func(Events) { _ = drainWakeFD(l.wakeReadFD) }); err != nil {
		return fmt.Errorf("loop %s: register wake fd: %w", l.name, err)
	}
	return nil
}

// Close releases the poller and wakeup fd.
func (l *Loop) Close() error {
	_ = l.poller.UnregisterFD(l.wakeReadFD)
	_ = closeWakeFD(l.wakeReadFD, l.wakeWriteFD)
	return l.poller.Close()
}

// Name returns the loop's diagnostic name (worker name, or "processor").
func (l *Loop) Name() string { return l.name }

// Submit queues a task for execution on the loop goroutine and wakes it if
// necessary. Safe to call from any goroutine (spec.md §5: "The processor
// and workers communicate exclusively through the IPC channel").
func (l *Loop) Submit(t Task) {
	l.ingress.Push(t)
	l.wake()
}

func (l *Loop) wake() {
	if l.wakeArmed.CompareAndSwap(false, true) {
		_ = armWakeFD(l.wakeWriteFD)
	}
}

// RegisterMember adds a channel to the loop's scheduling indexes. If
// fd >= 0, it is registered with the poller for the given events; it is
// always added to list_nofd/list_process bookkeeping based on fd presence.
func (l *Loop) RegisterMember(m Member, fd int, events Events, cb Callback) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if fd >= 0 {
		if err := l.poller.RegisterFD(fd, events, cb); err != nil {
			return err
		}
		l.byFD[fd] = m
		l.memberFDs[m] = fd
	} else {
		l.nofd[m] = struct{}{}
		l.memberFDs[m] = -1
	}
	if isPending(m.DCaps()) {
		l.markPendingLocked(m)
	}
	return nil
}

// UnregisterMember removes a channel from every scheduling index
// (spec.md §4.2: "State=Destroy (remove from all indexes)").
func (l *Loop) UnregisterMember(m Member) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fd, ok := l.memberFDs[m]
	if !ok {
		return
	}
	if fd >= 0 {
		_ = l.poller.UnregisterFD(fd)
		delete(l.byFD, fd)
		delete(l.pending, fd)
	} else {
		delete(l.nofd, m)
	}
	delete(l.memberFDs, m)
}

// ReconcileFD handles a CHANNEL_UPDATE_FD meta-message: the member's fd
// changed, so re-register it with the poller under the new fd.
func (l *Loop) ReconcileFD(m Member, newFD int, events Events, cb Callback) error {
	l.UnregisterMember(m)
	return l.RegisterMember(m, newFD, events, cb)
}

// ReconcileDCaps handles a CHANNEL_UPDATE meta-message: dcaps changed, so
// update the poller subscription (POLLIN/POLLOUT) and pending membership.
func (l *Loop) ReconcileDCaps(m Member, fd int, newDCaps uint32) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if fd >= 0 {
		var ev Events
		if newDCaps&dcapPollIn != 0 {
			ev |= EventRead
		}
		if newDCaps&dcapPollOut != 0 {
			ev |= EventWrite
		}
		if err := l.poller.ModifyFD(fd, ev); err != nil {
			return err
		}
	}
	if isPending(newDCaps) {
		l.markPendingLocked(m)
	} else if fd >= 0 {
		delete(l.pending, fd)
	}
	return nil
}

func (l *Loop) markPendingLocked(m Member) {
	fd, ok := l.memberFDs[m]
	if !ok {
		fd = -1
	}
	l.pending[fd] = m
	l.wake()
}

// Step runs one iteration of the scheduling algorithm in spec.md §4.2:
//  1. if list_pending is non-empty, ensure the wakeup fd is armed;
//  2. poll(timeout);
//  3. dispatch process() on every fd-ready channel, plus every pending
//     channel when woken via the pending path;
//  4. drain the ingress queue (processor/worker control tasks) and the
//     no-fd member list.
func (l *Loop) Step(timeout time.Duration) error {
	l.mu.Lock()
	hasPending := len(l.pending) > 0
	l.mu.Unlock()
	if hasPending {
		l.wake()
	}

	timeoutMs := -1
	if timeout >= 0 {
		timeoutMs = int(timeout / time.Millisecond)
	}
	if hasPending && timeoutMs < 0 {
		timeoutMs = 0
	}

	if _, err := l.poller.Poll(timeoutMs); err != nil {
		return fmt.Errorf("loop %s: poll: %w", l.name, err)
	}
	l.wakeArmed.Store(false)

	// Pending fast path: invoke process() on every channel marked Pending,
	// even if its fd didn't individually report readiness.
	l.mu.Lock()
	pendingSnapshot := make([]Member, 0, len(l.pending))
	for _, m := range l.pending {
		pendingSnapshot = append(pendingSnapshot, m)
	}
	noFDSnapshot := make([]Member, 0, len(l.nofd))
	for m := range l.nofd {
		noFDSnapshot = append(noFDSnapshot, m)
	}
	l.mu.Unlock()

	dispatched := make(map[Member]struct{}, len(pendingSnapshot))
	for _, m := range pendingSnapshot {
		l.dispatch(m)
		dispatched[m] = struct{}{}
	}
	for _, m := range noFDSnapshot {
		if _, done := dispatched[m]; done {
			continue
		}
		if needProcess(m.DCaps()) {
			l.dispatch(m)
		}
	}

	for _, t := range l.ingress.Drain() {
		t()
	}
	return nil
}

// ErrAgain is returned by Member.Process() to indicate no work was
// available; channel.ErrAgain is defined as this same value so transports
// and the loop agree without an import cycle (channel imports loop, not
// the reverse).
var ErrAgain = fmt.Errorf("loop: EAGAIN")

// dispatch invokes process() on m, per spec.md §4.2 step 4: EAGAIN means
// nothing to do, nil means work was done, any other error transitions the
// channel to Error via m.Fail().
func (l *Loop) dispatch(m Member) {
	err := m.Process()
	if err == nil || err == ErrAgain {
		return
	}
	_ = m.Fail()
}

// DispatchMember invokes Process() on m exactly as Step's pending/no-fd
// paths do. A Member's owner should pass a closure over this method as
// the Callback given to RegisterMember/ReconcileFD, so poller-reported fd
// readiness actually reaches process() (spec.md §4.2 step 3: "For each
// returned event, dispatch process() on the owning channel") instead of
// being swallowed by the registered callback. Poller callbacks run
// synchronously from within Step's Poll call, on the loop goroutine, so
// this is safe to call with no additional locking.
func (l *Loop) DispatchMember(m Member) {
	l.dispatch(m)
}

// Run drives Step in a loop until Stop is called or a Step returns an
// error. Matches spec.md §4.2's
// cancellation note: "setting stop causes run() to exit at the next step
// boundary. There is no forced interruption of an in-flight process()
// call."
func (l *Loop) Run(tick time.Duration) error {
	if !l.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return ErrLoopRunning
	}
	defer close(l.doneCh)
	defer l.state.Store(int32(StateStopped))
	for {
		select {
		case <-l.stopCh:
			return nil
		default:
		}
		if err := l.Step(tick); err != nil {
			return err
		}
	}
}

// Stop requests the loop to exit at the next step boundary.
func (l *Loop) Stop() {
	select {
	case <-l.stopCh:
	default:
		close(l.stopCh)
	}
	l.wake()
}

// Done returns a channel closed once Run has returned.
func (l *Loop) Done() <-chan struct{} { return l.doneCh }

// State returns the loop's current RunState.
func (l *Loop) State() RunState { return RunState(l.state.Load()) }
