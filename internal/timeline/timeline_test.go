package timeline

import (
	"errors"
	"testing"
	"time"

	"github.com/joeycumines/go-channelgraph/internal/stat"
	"github.com/stretchr/testify/require"
)

func TestTimeline_RecordsPostLatency(t *testing.T) {
	s := stat.New()
	tl := New(s)

	err := tl.Post(func() error {
		time.Sleep(time.Millisecond)
		return nil
	})
	require.NoError(t, err)
	require.Greater(t, s.Total().TXNanos, int64(0))
}

func TestTimeline_RecordsOnDataLatencyAndPropagatesError(t *testing.T) {
	s := stat.New()
	tl := New(s)

	boom := errors.New("boom")
	err := tl.OnData(func() error { return boom })
	require.ErrorIs(t, err, boom)
	require.GreaterOrEqual(t, s.Total().RXNanos, int64(0))
}

func TestTimeline_NilStatsIsNoOp(t *testing.T) {
	tl := New(nil)
	called := false
	err := tl.Post(func() error { called = true; return nil })
	require.NoError(t, err)
	require.True(t, called)
}
