// Package timeline implements the supplemented logic-channel decorator
// from original_source/src/channel/timeit.cc (SPEC_FULL.md §5.1): it
// measures how long Post() and the on-data callback path take and folds
// the durations into a stat.Block, without changing the wrapped channel's
// observable behaviour.
package timeline

import (
	"time"

	"github.com/joeycumines/go-channelgraph/internal/stat"
)

// Timeline wraps post/data handling with latency measurement. It holds
// no channel reference itself — callers (transport implementations)
// invoke Post/OnData around their own call, matching timeit.cc's
// wrap-the-base-method shape translated to Go's compose-don't-inherit
// idiom.
type Timeline struct {
	stats   *stat.Block
	enabled bool
}

// New constructs a Timeline recording into stats. If stats is nil,
// measurement is a no-op (mirrors timeit.cc's `_stat_enable` guard).
func New(stats *stat.Block) *Timeline {
	return &Timeline{stats: stats, enabled: stats != nil}
}

// Post times fn (a channel's Post implementation) and records the
// duration as TX latency.
func (t *Timeline) Post(fn func() error) error {
	if !t.enabled {
		return fn()
	}
	start := time.Now()
	err := fn()
	t.stats.AddTXLatency(int64(time.Since(start)))
	return err
}

// OnData times fn (a channel's on-data dispatch) and records the
// duration as RX latency.
func (t *Timeline) OnData(fn func() error) error {
	if !t.enabled {
		return fn()
	}
	start := time.Now()
	err := fn()
	t.stats.AddRXLatency(int64(time.Since(start)))
	return err
}
