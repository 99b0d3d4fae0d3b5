package ringbuf

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRing_WriteReadRoundTrip(t *testing.T) {
	r := New(make([]byte, 1024))
	reader := r.NewReader()

	_, err := r.Write([]byte("hello"))
	require.NoError(t, err)
	_, err = r.Write([]byte("world"))
	require.NoError(t, err)

	got, err := reader.Next()
	require.NoError(t, err)
	require.Equal(t, "hello", string(got))

	got, err = reader.Next()
	require.NoError(t, err)
	require.Equal(t, "world", string(got))

	_, err = reader.Next()
	require.ErrorIs(t, err, ErrNoData)
}

func TestRing_OverwriteOnOverflowDetectedByLaggingReader(t *testing.T) {
	r := New(make([]byte, 64))
	reader := r.NewReader()

	// Each record costs headerSize(8)+len bytes; fill well past capacity.
	for i := 0; i < 20; i++ {
		_, err := r.Write([]byte("0123456789")) // 18 bytes/record
		require.NoError(t, err)
	}

	_, err := reader.Next()
	require.ErrorIs(t, err, ErrOverrun)
	require.EqualValues(t, 1, reader.Generation())

	reader.Resync()
	_, err = reader.Next()
	require.ErrorIs(t, err, ErrNoData)
}

func TestRing_RecordTooLarge(t *testing.T) {
	r := New(make([]byte, 16))
	_, err := r.Write(make([]byte, 100))
	require.True(t, errors.Is(err, ErrRecordTooLarge))
}

func TestRing_MultipleIndependentReaders(t *testing.T) {
	r := New(make([]byte, 256))
	a := r.NewReader()

	_, err := r.Write([]byte("x"))
	require.NoError(t, err)

	b := r.NewReader() // joins after the first write

	_, err = r.Write([]byte("y"))
	require.NoError(t, err)

	gotA, err := a.Next()
	require.NoError(t, err)
	require.Equal(t, "x", string(gotA))

	gotB, err := b.Next()
	require.NoError(t, err)
	require.Equal(t, "y", string(gotB))
}

func TestNew_PanicsOnNonPowerOfTwo(t *testing.T) {
	require.Panics(t, func() { New(make([]byte, 100)) })
}
