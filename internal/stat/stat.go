// Package stat implements per-channel stat blocks, per spec.md §4.7 and
// §9: two pre-allocated pages per block; swap is a single compare-and-set
// of the active page index, so the draining thread only ever
// touches the "inactive" page and the hot increment path never blocks
// on the drainer.
package stat

import (
	"sync/atomic"
)

// Page is one generation of counters. Fields are plain int64s incremented
// with atomic.AddInt64 by the hot path; the drainer reads a whole Page
// after the active/inactive swap, by which point nothing else writes to
// it.
type Page struct {
	RX       int64 // messages received
	TX       int64 // messages sent
	RXBytes  int64
	TXBytes  int64
	Errors   int64
	RXNanos  int64 // cumulative time spent in on-data handlers
	TXNanos  int64 // cumulative time spent in post()
}

func (p *Page) add(other *Page) {
	p.RX += other.RX
	p.TX += other.TX
	p.RXBytes += other.RXBytes
	p.TXBytes += other.TXBytes
	p.Errors += other.Errors
	p.RXNanos += other.RXNanos
	p.TXNanos += other.TXNanos
}

// Block is a double-buffered stat counter set, grounded on
// eventloop/metrics.go's page-swap idiom (SPEC_FULL.md §5's mapping of K
// Stat blocks to this package), generalized from latency percentiles to
// the plain RX/TX/error counters spec.md's stat model calls for.
type Block struct {
	pages  [2]Page
	active atomic.Uint32 // index of the page currently receiving writes
	total  Page          // running total across all drained generations, drainer-owned
}

// New constructs an empty Block.
func New() *Block {
	return &Block{}
}

func (b *Block) current() *Page {
	return &b.pages[b.active.Load()&1]
}

// AddRX records one received message of n bytes.
func (b *Block) AddRX(n int) {
	p := b.current()
	atomic.AddInt64(&p.RX, 1)
	atomic.AddInt64(&p.RXBytes, int64(n))
}

// AddTX records one sent message of n bytes.
func (b *Block) AddTX(n int) {
	p := b.current()
	atomic.AddInt64(&p.TX, 1)
	atomic.AddInt64(&p.TXBytes, int64(n))
}

// AddRXLatency folds one on-data handler duration (in nanoseconds) into
// the current page, for internal/timeline's logic channel.
func (b *Block) AddRXLatency(ns int64) {
	atomic.AddInt64(&b.current().RXNanos, ns)
}

// AddTXLatency folds one post() duration (in nanoseconds) into the
// current page, for internal/timeline's logic channel.
func (b *Block) AddTXLatency(ns int64) {
	atomic.AddInt64(&b.current().TXNanos, ns)
}

// AddError records one error event.
func (b *Block) AddError() {
	p := b.current()
	atomic.AddInt64(&p.Errors, 1)
}

// Drain swaps the active page, returning a copy of the page that was
// active (now frozen — nothing will write to it again) and folding it
// into the running total. Safe to call concurrently with AddRX/AddTX/
// AddError, but only ever from one drainer goroutine at a time.
func (b *Block) Drain() Page {
	prevIdx := b.active.Load() & 1
	nextIdx := prevIdx ^ 1
	b.pages[nextIdx] = Page{}
	// The swap is a compare-and-set: if the index moved under us, nothing
	// is drained this round.
	if !b.active.CompareAndSwap(prevIdx, nextIdx) {
		return Page{}
	}

	drained := b.pages[prevIdx]
	b.total.add(&drained)
	return drained
}

// Total returns the running total across every drained generation plus
// whatever is in the currently-active (undrained) page — a point-in-time
// snapshot for `StateDump`-style inventory requests.
func (b *Block) Total() Page {
	total := b.total
	total.add(b.current())
	return total
}
