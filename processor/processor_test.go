package processor

import (
	"sync"
	"testing"
	"time"

	"github.com/joeycumines/go-channelgraph/channel"
	"github.com/joeycumines/go-channelgraph/internal/reopen"
	"github.com/stretchr/testify/require"
)

func runProcessor(t *testing.T, p *Processor) {
	t.Helper()
	go func() {
		_ = p.Run(10 * time.Millisecond)
	}()
	t.Cleanup(func() {
		_ = p.Close()
		select {
		case <-p.Done():
		case <-time.After(2 * time.Second):
			t.Fatal("processor did not close in time")
		}
	})
}

// TestProcessor_DependencyActivationOrder exercises spec.md §8's worked
// example: objects A, B, C with C depends-on=[A,B], B depends-on=[A], A
// depends-on=[] must activate in order A-Active, B-Active, C-Active.
func TestProcessor_DependencyActivationOrder(t *testing.T) {
	specs := []ObjectSpec{
		newFakeSpec("c", "a", "b"),
		newFakeSpec("a"),
		newFakeSpec("b", "a"),
	}
	p, err := New("proc", specs)
	require.NoError(t, err)

	var mu sync.Mutex
	var order []string
	for _, name := range []string{"a", "b", "c"} {
		o := p.find(name)
		n := name
		o.Base.Callbacks().AddOther(&order, channel.MaskState, func(msg *channel.Message) {
			if channel.State(msg.MsgID) != channel.Active {
				return
			}
			mu.Lock()
			order = append(order, n)
			mu.Unlock()
		})
	}

	require.NoError(t, p.Open())
	runProcessor(t, p)

	deadline := time.Now().Add(2 * time.Second)
	pump(t, deadline, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 3
	})

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"a", "b", "c"}, order)
}

// TestProcessor_CloseCascadesThroughDependents verifies that closing the
// processor decays every object and that Run returns once every worker has
// reported Closed.
func TestProcessor_CloseCascadesThroughDependents(t *testing.T) {
	specs := []ObjectSpec{
		newFakeSpec("c", "a", "b"),
		newFakeSpec("a"),
		newFakeSpec("b", "a"),
	}
	p, err := New("proc", specs)
	require.NoError(t, err)
	require.NoError(t, p.Open())

	done := make(chan error, 1)
	go func() { done <- p.Run(10 * time.Millisecond) }()

	deadline := time.Now().Add(2 * time.Second)
	pump(t, deadline, func() bool {
		for _, name := range []string{"a", "b", "c"} {
			if p.find(name).State() != channel.Active {
				return false
			}
		}
		return true
	})

	require.NoError(t, p.Close())

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Close")
	}

	for _, name := range []string{"a", "b", "c"} {
		require.Equal(t, channel.Closed, p.find(name).State(), name)
	}
}

// TestProcessor_ReopenBackoffOnRepeatedFailure drives a single always-fails
// object through several reopen attempts and checks the backoff count keeps
// growing, per spec.md §4.6.
func TestProcessor_ReopenBackoffOnRepeatedFailure(t *testing.T) {
	spec := newFakeSpec("flaky")
	spec.Reopen = reopen.Config{TimeoutMin: 5 * time.Millisecond, TimeoutMax: 20 * time.Millisecond, TrembleMin: time.Second}
	specNew := spec.New
	spec.New = func() (Channel, *channel.Base, error) {
		ch, base, err := specNew()
		ch.(*fakeChannel).failOpen.Store(true)
		return ch, base, err
	}

	p, err := New("proc", []ObjectSpec{spec})
	require.NoError(t, err)
	require.NoError(t, p.Open())
	runProcessor(t, p)

	obj := p.find("flaky")
	deadline := time.Now().Add(2 * time.Second)
	pump(t, deadline, func() bool {
		return obj.Reopen.Count() >= 3
	})
}

func TestProcessor_BuildErrorOnEmptySpec(t *testing.T) {
	_, err := New("proc", nil)
	require.Error(t, err)
}
