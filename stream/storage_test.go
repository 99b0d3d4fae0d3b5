package stream

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStorage_AppendAndReadFrom(t *testing.T) {
	s := NewStorage(false)
	s.Append(1, 10, []byte("a"))
	s.Append(2, 10, []byte("b"))
	s.Append(3, 10, []byte("c"))

	recs := s.ReadFrom(2)
	require.Len(t, recs, 2)
	require.EqualValues(t, 2, recs[0].seq)
	require.EqualValues(t, 3, recs[1].seq)
	require.Equal(t, int64(3), s.LastSeq())
}

func TestStorage_Autoseq(t *testing.T) {
	s := NewStorage(true)
	a := s.Append(0, 1, []byte("x"))
	b := s.Append(0, 1, []byte("y"))
	require.Equal(t, int64(0), a)
	require.Equal(t, int64(1), b)
}

func TestStorage_InitMessageOnlyWhenEmpty(t *testing.T) {
	s := NewStorage(false)
	s.InitMessage(5, 99)
	require.Equal(t, int64(5), s.LastSeq())

	s.Append(6, 1, nil)
	s.InitMessage(100, 99) // no-op, storage no longer empty
	require.Equal(t, int64(6), s.LastSeq())
}

func TestStorage_BlockResolution(t *testing.T) {
	s := NewStorage(false)
	s.Append(1, 1, nil)
	s.MarkBlock("checkpoint")
	s.Append(2, 1, nil)
	s.Append(3, 1, nil)
	s.MarkBlock("checkpoint")

	seq, ok := s.ResolveBlock("checkpoint", 0)
	require.True(t, ok)
	require.EqualValues(t, 1, seq)

	seq, ok = s.ResolveBlock("checkpoint", 1)
	require.True(t, ok)
	require.EqualValues(t, 3, seq)

	_, ok = s.ResolveBlock("checkpoint", 2)
	require.False(t, ok)
}
