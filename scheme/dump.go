package scheme

import (
	"fmt"
	"math"
	"strings"
)

// DumpMessage renders a message body as "field=value, ..." using the
// scheme's field layout, implementing channel.SchemeDumper so that
// channel.Dump can produce a `dump=scheme` rendering instead of raw hex.
func (s *Scheme) DumpMessage(msgid int32, data []byte) (string, bool) {
	m, ok := s.messages[msgid]
	if !ok {
		return "", false
	}
	var b strings.Builder
	b.WriteString(m.Name)
	b.WriteByte('{')
	for i, f := range m.Fields {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(f.Name)
		b.WriteByte('=')
		b.WriteString(s.formatField(f, data))
	}
	b.WriteByte('}')
	return b.String(), true
}

func (s *Scheme) formatField(f Field, data []byte) string {
	end := f.Offset + fieldWidth(f)
	if f.Offset < 0 || end > len(data) || fieldWidth(f) == 0 {
		return "<?>"
	}
	raw := data[f.Offset:end]
	switch f.Kind {
	case KindInt8:
		return fmt.Sprintf("%d", int8(raw[0]))
	case KindUint8:
		return fmt.Sprintf("%d", raw[0])
	case KindInt16:
		return fmt.Sprintf("%d", int16(leU16(raw)))
	case KindUint16:
		return fmt.Sprintf("%d", leU16(raw))
	case KindInt32:
		return fmt.Sprintf("%d", int32(leU32(raw)))
	case KindUint32:
		return fmt.Sprintf("%d", leU32(raw))
	case KindInt64:
		return fmt.Sprintf("%d", int64(leU64(raw)))
	case KindUint64:
		return fmt.Sprintf("%d", leU64(raw))
	case KindDouble:
		return fmt.Sprintf("%g", math.Float64frombits(leU64(raw)))
	case KindBytes:
		return fmt.Sprintf("%x", raw)
	case KindEnum:
		if e, ok := s.enums[f.Ref]; ok {
			v := int64(leU32(raw))
			for _, ev := range e.Values {
				if ev.Value == v {
					return ev.Name
				}
			}
		}
		return fmt.Sprintf("%d", leU32(raw))
	default:
		return fmt.Sprintf("%x", raw)
	}
}

func leU16(b []byte) uint16 { return uint16(b[0]) | uint16(b[1])<<8 }
func leU32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
func leU64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}

// DumpText renders the whole scheme's message/enum declarations as text,
// the supplemented `Scheme::dump` feature from original_source/src/scheme.cc
// (SPEC_FULL.md §5.1).
func (s *Scheme) DumpText() string {
	var b strings.Builder
	for _, name := range s.sortedEnumNames() {
		e := s.enums[name]
		fmt.Fprintf(&b, "enum %s : %v {\n", e.Name, e.Base)
		for _, v := range e.Values {
			fmt.Fprintf(&b, "  %s = %d;\n", v.Name, v.Value)
		}
		b.WriteString("}\n")
	}
	for _, id := range s.sortedMsgIDs() {
		m := s.messages[id]
		fmt.Fprintf(&b, "message %s (msgid=%d) {\n", m.Name, m.MsgID)
		for _, f := range m.Fields {
			fmt.Fprintf(&b, "  %s: %v", f.Name, f.Kind)
			if f.Ref != "" {
				fmt.Fprintf(&b, "<%s>", f.Ref)
			}
			b.WriteString(";\n")
		}
		b.WriteString("}\n")
	}
	return b.String()
}

func (s *Scheme) sortedMsgIDs() []int32 {
	ids := make([]int32, 0, len(s.messages))
	for id := range s.messages {
		ids = append(ids, id)
	}
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1] > ids[j]; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
	return ids
}

func (s *Scheme) sortedEnumNames() []string {
	names := make([]string, 0, len(s.enums))
	for n := range s.enums {
		names = append(names, n)
	}
	for i := 1; i < len(names); i++ {
		for j := i; j > 0 && names[j-1] > names[j]; j-- {
			names[j-1], names[j] = names[j], names[j-1]
		}
	}
	return names
}
