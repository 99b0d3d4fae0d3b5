package curl

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParse_ProtoHostParams(t *testing.T) {
	u, err := Parse("tcp://localhost:4444;mode=client;frame=std")
	require.NoError(t, err)
	require.Equal(t, "tcp", u.Proto)
	require.Equal(t, "localhost:4444", u.Host)

	v, ok := u.Get("mode")
	require.True(t, ok)
	require.Equal(t, "client", v)

	v, ok = u.Get("frame")
	require.True(t, ok)
	require.Equal(t, "std", v)
}

func TestParse_MissingScheme(t *testing.T) {
	_, err := Parse("localhost:4444")
	require.Error(t, err)
}

func TestParse_FlagOnlyKey(t *testing.T) {
	u, err := Parse("tcp://host;dump")
	require.NoError(t, err)
	v, ok := u.Get("dump")
	require.True(t, ok)
	require.Equal(t, "", v)
}

func TestURL_GetDefaults(t *testing.T) {
	u, err := Parse("tcp://host")
	require.NoError(t, err)
	require.Equal(t, "fallback", u.GetDefault("missing", "fallback"))
	require.EqualValues(t, 42, u.GetInt("missing", 42))
	require.True(t, u.GetBool("missing", true))
}

func TestURL_GetBool(t *testing.T) {
	u, err := Parse("tcp://host;a=yes;b=no;c=1;d=0;e=bogus")
	require.NoError(t, err)
	require.True(t, u.GetBool("a", false))
	require.False(t, u.GetBool("b", true))
	require.True(t, u.GetBool("c", false))
	require.False(t, u.GetBool("d", true))
	require.False(t, u.GetBool("e", false))
}

func TestParseSize(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"128", 128},
		{"64kb", 64 << 10},
		{"1mb", 1 << 20},
		{"2gb", 2 << 30},
	}
	for _, c := range cases {
		n, err := ParseSize(c.in)
		require.NoError(t, err)
		require.Equal(t, c.want, n)
	}
}

func TestURL_ChannelTags(t *testing.T) {
	u, err := Parse("processor://p;tll.channel.init=a,b;tll.channel.open=c")
	require.NoError(t, err)
	tags := u.ChannelTags()
	require.Equal(t, []string{"a", "b"}, tags["init"])
	require.Equal(t, []string{"c"}, tags["open"])
}
