package channel

import "time"

// Type identifies the category of a Message.
type Type int8

const (
	TypeData Type = iota
	TypeControl
	TypeState
	TypeChannel // channel-meta: CHANNEL_UPDATE, CHANNEL_UPDATE_FD, CHANNEL_ADD, CHANNEL_DELETE
)

func (t Type) String() string {
	switch t {
	case TypeData:
		return "Data"
	case TypeControl:
		return "Control"
	case TypeState:
		return "State"
	case TypeChannel:
		return "Channel"
	default:
		return "Unknown"
	}
}

// Mask turns a Type into its corresponding bit, for use in a callback's
// subscription mask.
func (t Type) Mask() TypeMask { return TypeMask(1 << uint(t)) }

// TypeMask is a bitmask over Type values, used by "other callbacks" to pick
// which message types they want delivered.
type TypeMask uint8

const (
	MaskData    = TypeMask(1 << TypeData)
	MaskControl = TypeMask(1 << TypeControl)
	MaskState   = TypeMask(1 << TypeState)
	MaskChannel = TypeMask(1 << TypeChannel)
	MaskAll     = MaskData | MaskControl | MaskState | MaskChannel
)

func (m TypeMask) Has(t Type) bool { return m&t.Mask() != 0 }

// AddrKind discriminates the Addr union's active member.
type AddrKind uint8

const (
	AddrNone AddrKind = iota
	AddrTCP
	AddrWorker
)

// Addr is the typed sum the spec's §9 design note asks for, replacing the
// C original's 8-byte opaque tll_addr_t that transports cast in place. Each
// transport owns the field it cares about; Pack/Unpack serialize to the
// 8-byte wire form any transport boundary (e.g. a MessageForward control
// across process IPC) requires.
type Addr struct {
	Kind   AddrKind
	FD     int32 // AddrTCP
	Accept int32 // AddrTCP: the accept-sequence disambiguating reused fds
	Worker uint32 // AddrWorker: an index into the processor's worker table
}

// Pack serializes Addr to its 8-byte wire representation, little-endian.
func (a Addr) Pack() (out [8]byte) {
	switch a.Kind {
	case AddrTCP:
		putU32(out[0:4], uint32(a.FD))
		putU32(out[4:8], uint32(a.Accept))
	case AddrWorker:
		out[0] = byte(AddrWorker)
		putU32(out[4:8], a.Worker)
	}
	return out
}

func putU32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func getU32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// UnpackTCPAddr decodes the wire form produced by Pack for an AddrTCP value.
// Workers never need unpacking off the wire (they're local-process only),
// so only the TCP form round-trips.
func UnpackTCPAddr(in [8]byte) Addr {
	return Addr{Kind: AddrTCP, FD: int32(getU32(in[0:4])), Accept: int32(getU32(in[4:8]))}
}

// Message is the fixed header plus payload every channel produces and
// consumes, per spec.md §3.
type Message struct {
	Type  Type
	MsgID int32
	Seq   int64
	Flags uint32
	Addr  Addr
	Time  time.Time
	Data  []byte
}

// Control message ids shared across transports (spec.md §6).
const (
	CtlConnect    int32 = 10
	CtlDisconnect int32 = 20
	CtlWriteFull  int32 = 30
	CtlWriteReady int32 = 31
)

// Channel-meta message ids (spec.md §4.2).
const (
	MetaUpdate     int32 = 1
	MetaUpdateFD   int32 = 2
	MetaChannelAdd int32 = 3
	MetaChannelDel int32 = 4
)

// Stream protocol message ids (spec.md §4.4 / §6), 10-40 inclusive.
const (
	StreamRequestLegacy int32 = 11
	StreamRequest       int32 = 12
	StreamReply         int32 = 20
	StreamError         int32 = 30
	StreamClientDone    int32 = 40
)

// Pub protocol message ids (spec.md §6).
const (
	PubClientHello int32 = 1
	PubServerHello int32 = 2
)
