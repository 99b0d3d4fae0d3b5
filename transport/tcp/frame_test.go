package tcp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFrameStd_RoundTrip(t *testing.T) {
	h := Header{Size: 42, MsgID: 7, Seq: 12345}
	buf := make([]byte, FrameStd.HeaderSize())
	FrameStd.Encode(buf, h)
	got := FrameStd.Decode(buf)
	require.Equal(t, h, got)
}

func TestFrameShort_RoundTripNegativeMsgID(t *testing.T) {
	h := Header{Size: 5, MsgID: -3, Seq: -99}
	buf := make([]byte, FrameShort.HeaderSize())
	FrameShort.Encode(buf, h)
	got := FrameShort.Decode(buf)
	require.Equal(t, h, got)
}

func TestFrameTiny_RoundTrip(t *testing.T) {
	h := Header{Size: 10, MsgID: -1}
	buf := make([]byte, FrameTiny.HeaderSize())
	FrameTiny.Encode(buf, h)
	got := FrameTiny.Decode(buf)
	require.Equal(t, h.Size, got.Size)
	require.Equal(t, h.MsgID, got.MsgID)
}

func TestFrameSizeOnly_RoundTrip(t *testing.T) {
	h := Header{Size: 100}
	buf := make([]byte, FrameSizeOnly.HeaderSize())
	FrameSizeOnly.Encode(buf, h)
	require.Equal(t, h.Size, FrameSizeOnly.Decode(buf).Size)
}

func TestFrameSeqOnly_RoundTrip(t *testing.T) {
	h := Header{Size: 8, Seq: 555}
	buf := make([]byte, FrameSeqOnly.HeaderSize())
	FrameSeqOnly.Encode(buf, h)
	got := FrameSeqOnly.Decode(buf)
	require.Equal(t, h.Size, got.Size)
	require.Equal(t, h.Seq, got.Seq)
}

func TestFrameBSON_RoundTrip(t *testing.T) {
	h := Header{Size: 20}
	buf := make([]byte, FrameBSON.HeaderSize())
	FrameBSON.Encode(buf, h)
	require.Equal(t, h.Size, FrameBSON.Decode(buf).Size)
}

func TestParseFrameKind(t *testing.T) {
	cases := map[string]FrameKind{
		"":     FrameStd,
		"std":  FrameStd,
		"short": FrameShort,
		"tiny": FrameTiny,
		"size": FrameSizeOnly,
		"seq":  FrameSeqOnly,
		"bson": FrameBSON,
	}
	for in, want := range cases {
		got, err := ParseFrameKind(in)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	_, err := ParseFrameKind("bogus")
	require.Error(t, err)
}
