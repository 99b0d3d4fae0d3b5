package loop

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

type fakeMember struct {
	name     string
	fd       int
	dcaps    uint32
	calls    int
	err      error
	failed   bool
}

func (m *fakeMember) FD() int       { return m.fd }
func (m *fakeMember) DCaps() uint32 { return m.dcaps }
func (m *fakeMember) Name() string  { return m.name }
func (m *fakeMember) Process() error {
	m.calls++
	return m.err
}
func (m *fakeMember) Fail() error {
	m.failed = true
	return nil
}

func newTestLoop(t *testing.T) *Loop {
	t.Helper()
	l := New("test")
	require.NoError(t, l.Init())
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestLoop_PendingMemberProcessedWithoutFDReady(t *testing.T) {
	l := newTestLoop(t)
	m := &fakeMember{name: "m1", fd: -1, dcaps: dcapProcess | dcapPending}
	require.NoError(t, l.RegisterMember(m, -1, 0, nil))

	require.NoError(t, l.Step(10*time.Millisecond))
	require.Equal(t, 1, m.calls)
}

func TestLoop_NeedProcessGatesNoFDDispatch(t *testing.T) {
	l := newTestLoop(t)
	// Process bit set but Suspend also set: must NOT be dispatched via the
	// no-fd path (spec.md §8 dcap consistency invariant).
	m := &fakeMember{name: "m1", fd: -1, dcaps: dcapProcess | dcapSuspend}
	require.NoError(t, l.RegisterMember(m, -1, 0, nil))
	require.NoError(t, l.Step(5*time.Millisecond))
	require.Equal(t, 0, m.calls)
}

func TestLoop_SubmitWakesAndRunsTask(t *testing.T) {
	l := newTestLoop(t)
	done := make(chan struct{})
	l.Submit(func() { close(done) })

	require.NoError(t, l.Step(time.Second))
	select {
	case <-done:
	default:
		t.Fatal("submitted task did not run during Step")
	}
}

func TestLoop_DispatchErrorTransitionsToFail(t *testing.T) {
	l := newTestLoop(t)
	m := &fakeMember{name: "m1", fd: -1, dcaps: dcapProcess | dcapPending, err: errBoom}
	require.NoError(t, l.RegisterMember(m, -1, 0, nil))
	require.NoError(t, l.Step(5 * time.Millisecond))
	require.True(t, m.failed)
}

func TestLoop_DispatchAgainDoesNotFail(t *testing.T) {
	l := newTestLoop(t)
	m := &fakeMember{name: "m1", fd: -1, dcaps: dcapProcess | dcapPending, err: ErrAgain}
	require.NoError(t, l.RegisterMember(m, -1, 0, nil))
	require.NoError(t, l.Step(5 * time.Millisecond))
	require.False(t, m.failed)
}

func TestLoop_RunStopsOnStop(t *testing.T) {
	l := newTestLoop(t)
	go func() {
		time.Sleep(10 * time.Millisecond)
		l.Stop()
	}()
	require.NoError(t, l.Run(20*time.Millisecond))
	require.Equal(t, StateStopped, l.State())
}
