// Package autoseq implements spec.md §4.4's "Autoseq" behaviour: rewrite
// the seq of every posted Data message to one greater than the last post,
// seeded from a storage backend's last known seq at open, so producers
// may post with seq=0 and still receive monotonic numbering.
package autoseq

import "sync/atomic"

// Rewriter tracks the last assigned seq and rewrites subsequent posts.
// Safe for concurrent use by multiple posting goroutines, though in
// practice every post for one channel runs on that channel's single
// event-loop thread.
type Rewriter struct {
	last atomic.Int64
}

// New constructs a Rewriter seeded from seed (typically the last seq a
// storage channel reports at open; 0 if the stream is empty).
func New(seed int64) *Rewriter {
	r := &Rewriter{}
	r.last.Store(seed)
	return r
}

// Next returns the seq to assign to the next posted message, advancing
// the internal counter.
func (r *Rewriter) Next() int64 {
	return r.last.Add(1)
}

// Last returns the most recently assigned seq without advancing it.
func (r *Rewriter) Last() int64 {
	return r.last.Load()
}

// Reseed resets the counter, for use when a stream storage backend
// reports a later last-seq than the Rewriter currently holds (e.g. after
// a reopen against storage that has since advanced).
func (r *Rewriter) Reseed(seed int64) {
	r.last.Store(seed)
}
