package loop

import "sync"

// Task is a unit of work submitted to the loop from another goroutine —
// used by the processor's worker IPC to inject Activate/Deactivate/Exit
// without a channel round-trip (SPEC_FULL.md §6).
type Task func()

// ingress is a mutex+slice queue, grounded on eventloop/ingress.go's
// ChunkedIngress: the teacher's own benchmarks found a plain mutex
// outperforms lock-free CAS under contention for this shape of
// many-producers/one-consumer queue, because CAS retry storms scale
// linearly with producer count while a mutex serializes cleanly. This
// reimplementation keeps that lesson but drops the chunk-pooling allocator,
// since this framework's ingress rate (processor/worker control messages)
// is orders of magnitude lower than a JS timer/microtask queue.
type ingress struct {
	mu     sync.Mutex
	active []Task
	spare  []Task
}

func newIngress() *ingress {
	return &ingress{}
}

// Push appends a task under lock. Returns the new queue length, so the
// caller can decide whether a wakeup is needed (it always is, in this
// module, since there's no fast in-loop path distinct from ingress).
func (q *ingress) Push(t Task) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.active = append(q.active, t)
	return len(q.active)
}

// Drain swaps the active queue out for the spare buffer and returns
// whatever had accumulated, grounded on the teacher's goja-style
// auxJobs/auxJobsSpare swap (single lock, no per-task allocation).
func (q *ingress) Drain() []Task {
	q.mu.Lock()
	out := q.active
	q.active = q.spare[:0]
	q.spare = out[:0]
	q.mu.Unlock()
	return out
}
