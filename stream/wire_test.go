package stream

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRequest_RoundTrip(t *testing.T) {
	r := Request{Version: 1, ClientName: "alice", Mode: ModeBlock, Seq: 42, BlockName: "boundary", BlockIndex: 3}
	got, err := DecodeRequest(r.Encode())
	require.NoError(t, err)
	require.Equal(t, r, got)
}

func TestReply_RoundTrip(t *testing.T) {
	r := Reply{Version: 1, LastSeq: 100, RequestedSeq: 50, BlockSeq: -1, Server: "srv1"}
	got, err := DecodeReply(r.Encode())
	require.NoError(t, err)
	require.Equal(t, r, got)
}

func TestErrorMsg_RoundTrip(t *testing.T) {
	e := ErrorMsg{Version: 1, Text: "bad request", Server: "srv1"}
	got, err := DecodeErrorMsg(e.Encode())
	require.NoError(t, err)
	require.Equal(t, e, got)
}
