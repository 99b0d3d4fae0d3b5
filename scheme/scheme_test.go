package scheme

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScheme_AddMessageComputesOffsets(t *testing.T) {
	s := New("test://")
	msg := &Message{
		Name:  "Data",
		MsgID: 1,
		Fields: []Field{
			{Name: "a", Kind: KindInt32},
			{Name: "b", Kind: KindInt64},
			{Name: "c", Kind: KindUint8},
		},
	}
	require.NoError(t, s.AddMessage(msg))

	f, ok := msg.FieldByName("b")
	require.True(t, ok)
	require.Equal(t, 4, f.Offset)

	f, ok = msg.FieldByName("c")
	require.True(t, ok)
	require.Equal(t, 12, f.Offset)
}

func TestScheme_DuplicateNameOrID(t *testing.T) {
	s := New("test://")
	require.NoError(t, s.AddMessage(&Message{Name: "A", MsgID: 1}))
	require.Error(t, s.AddMessage(&Message{Name: "A", MsgID: 2}))
	require.Error(t, s.AddMessage(&Message{Name: "B", MsgID: 1}))
}

func TestScheme_RefCounting(t *testing.T) {
	s := New("test://")
	s.Ref()
	require.EqualValues(t, 1, s.Unref())
	require.EqualValues(t, 0, s.Unref())
}

func TestLoadYAML_RoundTrip(t *testing.T) {
	doc := []byte(`
enums:
  - name: Status
    base: int32
    values:
      - {name: OK, value: 0}
      - {name: FAIL, value: 1}
messages:
  - name: Heartbeat
    msgid: 10
    fields:
      - {name: status, type: enum, ref: Status, size: 4}
      - {name: seq, type: int64}
`)
	s, err := LoadYAML("yaml://test", doc)
	require.NoError(t, err)

	m, ok := s.MessageByID(10)
	require.True(t, ok)
	require.Equal(t, "Heartbeat", m.Name)

	e, ok := s.EnumByName("Status")
	require.True(t, ok)
	require.Len(t, e.Values, 2)
}

func TestScheme_DumpMessage(t *testing.T) {
	s := New("test://")
	require.NoError(t, s.AddMessage(&Message{
		Name:  "Ping",
		MsgID: 1,
		Fields: []Field{
			{Name: "seq", Kind: KindInt32},
		},
	}))
	data := []byte{7, 0, 0, 0}
	text, ok := s.DumpMessage(1, data)
	require.True(t, ok)
	require.Equal(t, "Ping{seq=7}", text)

	_, ok = s.DumpMessage(99, data)
	require.False(t, ok)
}

func TestScheme_DumpText(t *testing.T) {
	s := New("test://")
	require.NoError(t, s.AddEnum(&Enum{Name: "E", Base: KindInt32, Values: []EnumValue{{Name: "A", Value: 0}}}))
	require.NoError(t, s.AddMessage(&Message{Name: "M", MsgID: 1, Fields: []Field{{Name: "f", Kind: KindInt32}}}))
	text := s.DumpText()
	require.Contains(t, text, "enum E")
	require.Contains(t, text, "message M")
}
