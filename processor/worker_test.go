package processor

import (
	"testing"
	"time"

	"github.com/joeycumines/go-channelgraph/channel"
	"github.com/stretchr/testify/require"
)

func TestNewWorker_Defaults(t *testing.T) {
	w := newWorker("w1")
	require.Equal(t, "w1", w.Name)
	require.NotNil(t, w.Loop)
	require.Equal(t, 20*time.Millisecond, w.tick)
	require.Equal(t, WorkerClosed, w.state)
}

func TestPollEvents(t *testing.T) {
	require.Zero(t, pollEvents(0))
	require.NotZero(t, pollEvents(channel.PollIn))
	require.NotEqual(t, pollEvents(channel.PollIn), pollEvents(channel.PollOut))
	require.NotEqual(t, pollEvents(channel.PollIn), pollEvents(channel.PollIn|channel.PollOut))
}

func TestWorker_AttachRegistersEveryObject(t *testing.T) {
	specs := []ObjectSpec{newFakeSpec("a"), newFakeSpec("b")}
	p, err := New("proc", specs)
	require.NoError(t, err)
	require.NoError(t, p.loop.Init())

	w := p.workers["default"]
	require.Len(t, w.Objects, 2)
	require.NoError(t, w.attach(p))
	require.Same(t, p, w.proc)
}

func TestWorker_ActivateOpensObject(t *testing.T) {
	specs := []ObjectSpec{newFakeSpec("a")}
	p, err := New("proc", specs)
	require.NoError(t, err)
	require.NoError(t, p.Open())
	defer func() {
		p.loop.Stop()
		for _, w := range p.workers {
			w.Loop.Stop()
		}
	}()

	a := p.find("a")
	require.NotNil(t, a)

	deadline := time.Now().Add(2 * time.Second)
	pump(t, deadline, func() bool {
		if !p.allWorkersActive() {
			return false
		}
		p.activateObject(a)
		return true
	})

	pump(t, deadline, func() bool {
		return a.State() == channel.Active
	})
}
