package autoseq

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRewriter_MonotonicFromSeed(t *testing.T) {
	r := New(41)
	require.EqualValues(t, 42, r.Next())
	require.EqualValues(t, 43, r.Next())
	require.EqualValues(t, 43, r.Last())
}

func TestRewriter_ReseedAdvancesBase(t *testing.T) {
	r := New(0)
	r.Next()
	r.Reseed(100)
	require.EqualValues(t, 101, r.Next())
}
