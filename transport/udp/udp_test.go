package udp

import (
	"fmt"
	"testing"
	"time"

	"github.com/joeycumines/go-channelgraph/channel"
	"github.com/joeycumines/go-channelgraph/transport/tcp"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func addrOf(fd int) (string, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return "", err
	}
	in4, ok := sa.(*unix.SockaddrInet4)
	if !ok {
		return "", fmt.Errorf("unexpected sockaddr type %T", sa)
	}
	return fmt.Sprintf("127.0.0.1:%d", in4.Port), nil
}

func TestSocket_SendRecvLoopback(t *testing.T) {
	cfgA := channel.NewConfig("a", "udp", "udp://127.0.0.1:0")
	a := NewSocket(cfgA, "127.0.0.1:0", "", tcp.FrameStd, MulticastOpts{}, tcp.SockOpts{})
	require.NoError(t, a.Open())
	defer a.Close()

	aAddr, err := addrOf(a.fd)
	require.NoError(t, err)

	cfgB := channel.NewConfig("b", "udp", "udp://127.0.0.1:0")
	b := NewSocket(cfgB, "127.0.0.1:0", aAddr, tcp.FrameStd, MulticastOpts{}, tcp.SockOpts{})
	require.NoError(t, b.Open())
	defer b.Close()

	var got *channel.Message
	a.Base.Callbacks().AddData(a, func(msg *channel.Message) { got = msg })

	require.NoError(t, b.Post(&channel.Message{MsgID: 3, Seq: 11, Data: []byte("ping")}))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && got == nil {
		err := a.Process()
		if err != nil && err != channel.ErrAgain {
			require.NoError(t, err)
		}
		time.Sleep(time.Millisecond)
	}
	require.NotNil(t, got)
	require.Equal(t, "ping", string(got.Data))
	require.EqualValues(t, 3, got.MsgID)
	require.EqualValues(t, 11, got.Seq)
}

func TestSocket_PostWithoutDestinationFails(t *testing.T) {
	cfg := channel.NewConfig("a", "udp", "udp://127.0.0.1:0")
	s := NewSocket(cfg, "127.0.0.1:0", "", tcp.FrameStd, MulticastOpts{}, tcp.SockOpts{})
	require.NoError(t, s.Open())
	defer s.Close()

	err := s.Post(&channel.Message{Data: []byte("x")})
	require.Error(t, err)
}

func TestSocket_ProcessReturnsErrAgainWhenIdle(t *testing.T) {
	cfg := channel.NewConfig("a", "udp", "udp://127.0.0.1:0")
	s := NewSocket(cfg, "127.0.0.1:0", "", tcp.FrameStd, MulticastOpts{}, tcp.SockOpts{})
	require.NoError(t, s.Open())
	defer s.Close()

	require.ErrorIs(t, s.Process(), channel.ErrAgain)
}
