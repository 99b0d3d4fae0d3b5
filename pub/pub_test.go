package pub

import (
	"fmt"
	"testing"
	"time"

	"github.com/joeycumines/go-channelgraph/channel"
	"github.com/joeycumines/go-channelgraph/transport/tcp"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func freePort(t *testing.T) int {
	t.Helper()
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	defer unix.Close(fd)
	require.NoError(t, unix.Bind(fd, &unix.SockaddrInet4{}))
	sa, err := unix.Getsockname(fd)
	require.NoError(t, err)
	return sa.(*unix.SockaddrInet4).Port
}

func TestServer_BroadcastsToClient(t *testing.T) {
	port := freePort(t)
	addr := fmt.Sprintf("127.0.0.1:%d", port)

	cfg := channel.NewConfig("pub", "pub+tcp", "pub+tcp://"+addr)
	newConfig := func(name string) *channel.Config { return channel.NewConfig(name, "pub+tcp", "pub+tcp://"+addr) }
	srv := NewServer(cfg, addr, 65536, tcp.FrameStd, tcp.SockOpts{}, tcp.FamilyTCP, newConfig)
	require.NoError(t, srv.Open())

	dialCfg := channel.NewConfig("sub", "pub+tcp", "pub+tcp://"+addr)
	sub := tcp.NewClient(dialCfg, addr, tcp.FrameStd, tcp.SockOpts{}, tcp.FamilyTCP)
	require.NoError(t, sub.Open())

	var got *channel.Message
	sub.Base.Callbacks().AddData(sub, func(msg *channel.Message) { got = msg })

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && sub.Base.State() != channel.Active {
		_ = sub.Process()
		time.Sleep(time.Millisecond)
	}
	require.Equal(t, channel.Active, sub.Base.State())

	// Let the server accept and register the client.
	for time.Now().Before(deadline) && len(srv.tcpServer.Clients()) == 0 {
		_ = srv.Process()
		time.Sleep(time.Millisecond)
	}
	require.NotEmpty(t, srv.tcpServer.Clients())

	require.NoError(t, srv.Post(&channel.Message{MsgID: 42, Seq: 1, Data: []byte("broadcast")}))

	for time.Now().Before(deadline) && got == nil {
		_ = srv.Process()
		_ = sub.Process()
		time.Sleep(time.Millisecond)
	}
	require.NotNil(t, got)
	require.Equal(t, "broadcast", string(got.Data))
	require.EqualValues(t, 42, got.MsgID)
}
