package channel

import (
	"fmt"
	"strings"
)

// DumpMode controls how a channel renders Data/Control/State messages for
// diagnostic logging, per spec.md §4.1 and the `dump` URL key in §6.
type DumpMode int8

const (
	DumpDisable DumpMode = iota
	DumpFrame
	DumpText
	DumpTextHex
	DumpScheme
	DumpAuto
)

// ParseDumpMode maps the URL value (`no`, `yes`, `frame`, `text`, `text+hex`,
// `scheme`, `auto`) to a DumpMode.
func ParseDumpMode(s string) DumpMode {
	switch s {
	case "", "no":
		return DumpDisable
	case "yes", "frame":
		return DumpFrame
	case "text":
		return DumpText
	case "text+hex":
		return DumpTextHex
	case "scheme":
		return DumpScheme
	case "auto":
		return DumpAuto
	default:
		return DumpDisable
	}
}

// SchemeDumper is implemented by a scheme capable of pretty-printing a
// message's payload by msgid. Kept as a narrow interface here so the
// channel package never imports the scheme package; scheme.Scheme
// satisfies it.
type SchemeDumper interface {
	DumpMessage(msgid int32, data []byte) (string, bool)
}

// Dump renders msg according to mode. When mode is DumpScheme or DumpAuto
// and a non-nil scheme is supplied, the scheme is used first; DumpAuto falls
// back to DumpTextHex when the scheme can't describe the message.
func Dump(mode DumpMode, msg *Message, sch SchemeDumper) string {
	switch mode {
	case DumpDisable:
		return ""
	case DumpFrame:
		return fmt.Sprintf("type=%s msgid=%d seq=%d size=%d", msg.Type, msg.MsgID, msg.Seq, len(msg.Data))
	case DumpText:
		return fmt.Sprintf("type=%s msgid=%d seq=%d data=%q", msg.Type, msg.MsgID, msg.Seq, string(msg.Data))
	case DumpTextHex:
		return hexASCII(msg.Data)
	case DumpScheme, DumpAuto:
		if sch != nil {
			if text, ok := sch.DumpMessage(msg.MsgID, msg.Data); ok {
				return text
			}
		}
		if mode == DumpAuto {
			return hexASCII(msg.Data)
		}
		return fmt.Sprintf("type=%s msgid=%d seq=%d <no scheme>", msg.Type, msg.MsgID, msg.Seq)
	default:
		return ""
	}
}

// hexASCII renders data as 16-bytes-per-line hex + ASCII side-by-side, per
// spec.md §4.1.
func hexASCII(data []byte) string {
	var b strings.Builder
	for off := 0; off < len(data); off += 16 {
		end := off + 16
		if end > len(data) {
			end = len(data)
		}
		line := data[off:end]
		fmt.Fprintf(&b, "%08x  ", off)
		for i := 0; i < 16; i++ {
			if i < len(line) {
				fmt.Fprintf(&b, "%02x ", line[i])
			} else {
				b.WriteString("   ")
			}
			if i == 7 {
				b.WriteByte(' ')
			}
		}
		b.WriteString(" |")
		for _, c := range line {
			if c >= 0x20 && c < 0x7f {
				b.WriteByte(c)
			} else {
				b.WriteByte('.')
			}
		}
		b.WriteString("|\n")
	}
	return b.String()
}
