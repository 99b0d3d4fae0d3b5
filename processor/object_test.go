package processor

import (
	"testing"

	"github.com/joeycumines/go-channelgraph/channel"
	"github.com/stretchr/testify/require"
)

func newTestObject(t *testing.T, name string) *Object {
	t.Helper()
	spec := newFakeSpec(name)
	ch, base, err := spec.New()
	require.NoError(t, err)
	return newObject(name, ch, base, ShutdownNone, spec.Reopen)
}

func TestObject_ReadyOpenRequiresDependsActive(t *testing.T) {
	a := newTestObject(t, "a")
	b := newTestObject(t, "b")
	b.Depends = []*Object{a}
	a.RDepends = []*Object{b}

	require.False(t, b.ReadyOpen(), "a is still Closed")

	require.NoError(t, a.Open())
	require.Equal(t, channel.Active, a.State())
	require.True(t, b.ReadyOpen())
}

func TestObject_ReadyOpenBlockedByDecayingDepend(t *testing.T) {
	a := newTestObject(t, "a")
	b := newTestObject(t, "b")
	b.Depends = []*Object{a}
	a.RDepends = []*Object{b}
	require.NoError(t, a.Open())

	a.setDecay(true)
	require.False(t, b.ReadyOpen())
}

func TestObject_ReadyCloseRequiresRDependsClosed(t *testing.T) {
	a := newTestObject(t, "a")
	b := newTestObject(t, "b")
	b.Depends = []*Object{a}
	a.RDepends = []*Object{b}

	require.True(t, a.ReadyClose(), "no rdepends active yet")

	b.setOpening(true)
	require.False(t, a.ReadyClose(), "rdepend mid-open blocks close")

	b.setOpening(false)
	require.NoError(t, b.Open())
	require.False(t, a.ReadyClose(), "rdepend Active blocks close")
}

func TestObject_OpeningClearsOpeningFlagOnStateMsg(t *testing.T) {
	a := newTestObject(t, "a")
	a.setOpening(true)
	require.NoError(t, a.Open())
	require.False(t, a.Opening())
	require.Equal(t, channel.Active, a.State())
	require.Equal(t, channel.Opening, a.StatePrev())
}

func TestObject_CloseForceFailsNonErrorChannel(t *testing.T) {
	a := newTestObject(t, "a")
	require.NoError(t, a.Open())
	require.Equal(t, channel.Active, a.State())

	require.NoError(t, a.Close(true))
	require.Equal(t, channel.Closed, a.State())
}
