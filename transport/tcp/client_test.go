package tcp

import (
	"testing"

	"github.com/joeycumines/go-channelgraph/channel"
	"github.com/stretchr/testify/require"
)

func TestNewAccepted_SetsFDAndDCaps(t *testing.T) {
	a, b := socketPair(t)
	_ = b

	cfg := channel.NewConfig("c1", "tcp", "tcp://accepted")
	cl := NewAccepted(cfg, a.FD, FrameStd, 1)

	require.Equal(t, a.FD, cl.Base.FD())
	require.True(t, cl.Base.DCaps()&channel.PollIn != 0)
	require.True(t, cl.Base.DCaps()&channel.Process != 0)
}

func TestClient_PostRejectedBeforeActive(t *testing.T) {
	a, _ := socketPair(t)
	cfg := channel.NewConfig("c1", "tcp", "tcp://x")
	cl := NewAccepted(cfg, a.FD, FrameStd, 1)

	err := cl.Post(&channel.Message{Data: []byte("x")})
	require.ErrorIs(t, err, channel.ErrPostNotAllowed)
}

func TestClient_ProcessDispatchesDataAfterActive(t *testing.T) {
	a, b := socketPair(t)

	cfgA := channel.NewConfig("a", "tcp", "tcp://a")
	clA := NewAccepted(cfgA, a.FD, FrameStd, 1)
	require.NoError(t, clA.Base.Open())
	require.NoError(t, clA.Base.Active())

	cfgB := channel.NewConfig("b", "tcp", "tcp://b")
	clB := NewAccepted(cfgB, b.FD, FrameStd, 2)
	require.NoError(t, clB.Base.Open())
	require.NoError(t, clB.Base.Active())

	var got *channel.Message
	clB.Base.Callbacks().AddData(clB, func(msg *channel.Message) { got = msg })

	require.NoError(t, clA.Post(&channel.Message{MsgID: 9, Seq: 1, Data: []byte("hi")}))

	// Drive clB.Process until the frame arrives (socket is non-blocking).
	var err error
	for i := 0; i < 1000 && got == nil; i++ {
		err = clB.Process()
		if err != nil && err != channel.ErrAgain {
			break
		}
	}
	require.NotNil(t, got)
	require.Equal(t, "hi", string(got.Data))
	require.EqualValues(t, 9, got.MsgID)
}
