package tcp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func socketPair(t *testing.T) (a, b *Socket) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
	})
	return NewSocket(fds[0], FrameStd), NewSocket(fds[1], FrameStd)
}

func TestSocket_SendRecvFraming(t *testing.T) {
	a, b := socketPair(t)

	wouldBlock, err := a.Send(Header{Size: 5, MsgID: 1, Seq: 7}, []byte("hello"))
	require.NoError(t, err)
	require.False(t, wouldBlock)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		n, err := b.Recv()
		require.NoError(t, err)
		if n > 0 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	hdr, payload, ok := b.NextFrame()
	require.True(t, ok)
	require.EqualValues(t, 1, hdr.MsgID)
	require.EqualValues(t, 7, hdr.Seq)
	require.Equal(t, "hello", string(payload))
}

func TestSocket_NextFrameIncompleteReturnsFalse(t *testing.T) {
	s := &Socket{Frame: FrameStd, inbuf: []byte{1, 2, 3}}
	_, _, ok := s.NextFrame()
	require.False(t, ok)
}

func TestSocket_Close(t *testing.T) {
	a, _ := socketPair(t)
	require.NoError(t, a.Close())
	require.Equal(t, -1, a.FD)
}
