// Package tcp implements the TCP transport: a common socket wrapper
// (input buffer, output overflow buffer), a server (listener + accept +
// per-client socket map), and a client, parameterised over a frame
// codec per spec.md §4.3's "Framing" paragraph.
package tcp

import (
	"encoding/binary"
	"fmt"
)

// FrameKind selects one of the header layouts spec.md §4.3 names: "std",
// short, tiny, size-only, seq-only, or BSON (length-prefix embedded in
// the payload itself).
type FrameKind int8

const (
	FrameStd     FrameKind = iota // u32 size, i32 msgid, i64 seq (16 bytes)
	FrameShort                    // u32 size, i16 msgid, i32 seq (10 bytes)
	FrameTiny                     // u16 size, i8 msgid (3 bytes)
	FrameSizeOnly                 // u32 size (4 bytes)
	FrameSeqOnly                  // u32 size, i64 seq (12 bytes)
	FrameBSON                     // u32 little-endian length, length counts itself
)

// ParseFrameKind maps a URL `frame=` value to a FrameKind.
func ParseFrameKind(s string) (FrameKind, error) {
	switch s {
	case "", "std":
		return FrameStd, nil
	case "short":
		return FrameShort, nil
	case "tiny":
		return FrameTiny, nil
	case "size":
		return FrameSizeOnly, nil
	case "seq":
		return FrameSeqOnly, nil
	case "bson":
		return FrameBSON, nil
	default:
		return 0, fmt.Errorf("tcp: unknown frame kind %q", s)
	}
}

// HeaderSize returns the fixed header width in bytes for this frame kind.
func (k FrameKind) HeaderSize() int {
	switch k {
	case FrameStd:
		return 16
	case FrameShort:
		return 10
	case FrameTiny:
		return 3
	case FrameSizeOnly:
		return 4
	case FrameSeqOnly:
		return 12
	case FrameBSON:
		return 4
	default:
		return 0
	}
}

// Header is the decoded form of any frame header variant; fields not
// carried by a given FrameKind are left at their zero value.
type Header struct {
	Size  uint32
	MsgID int32
	Seq   int64
}

// Encode writes the header for kind into buf (which must be at least
// kind.HeaderSize() bytes) as fixed-width little-endian, per spec.md
// §4.3.
func (k FrameKind) Encode(buf []byte, h Header) {
	switch k {
	case FrameStd:
		binary.LittleEndian.PutUint32(buf[0:4], h.Size)
		binary.LittleEndian.PutUint32(buf[4:8], uint32(h.MsgID))
		binary.LittleEndian.PutUint64(buf[8:16], uint64(h.Seq))
	case FrameShort:
		binary.LittleEndian.PutUint32(buf[0:4], h.Size)
		binary.LittleEndian.PutUint16(buf[4:6], uint16(h.MsgID))
		binary.LittleEndian.PutUint32(buf[6:10], uint32(h.Seq))
	case FrameTiny:
		binary.LittleEndian.PutUint16(buf[0:2], uint16(h.Size))
		buf[2] = byte(h.MsgID)
	case FrameSizeOnly:
		binary.LittleEndian.PutUint32(buf[0:4], h.Size)
	case FrameSeqOnly:
		binary.LittleEndian.PutUint32(buf[0:4], h.Size)
		binary.LittleEndian.PutUint64(buf[4:12], uint64(h.Seq))
	case FrameBSON:
		// BSON documents self-encode their total length (including the
		// length field) as the first 4 bytes; h.Size here already
		// excludes the length prefix, per Decode's symmetric handling.
		binary.LittleEndian.PutUint32(buf[0:4], h.Size+4)
	}
}

// Decode parses the header for kind from buf (which must be at least
// kind.HeaderSize() bytes), returning the payload length encoded.
func (k FrameKind) Decode(buf []byte) Header {
	var h Header
	switch k {
	case FrameStd:
		h.Size = binary.LittleEndian.Uint32(buf[0:4])
		h.MsgID = int32(binary.LittleEndian.Uint32(buf[4:8]))
		h.Seq = int64(binary.LittleEndian.Uint64(buf[8:16]))
	case FrameShort:
		h.Size = binary.LittleEndian.Uint32(buf[0:4])
		h.MsgID = int32(int16(binary.LittleEndian.Uint16(buf[4:6])))
		h.Seq = int64(int32(binary.LittleEndian.Uint32(buf[6:10])))
	case FrameTiny:
		h.Size = uint32(binary.LittleEndian.Uint16(buf[0:2]))
		h.MsgID = int32(int8(buf[2]))
	case FrameSizeOnly:
		h.Size = binary.LittleEndian.Uint32(buf[0:4])
	case FrameSeqOnly:
		h.Size = binary.LittleEndian.Uint32(buf[0:4])
		h.Seq = int64(binary.LittleEndian.Uint64(buf[4:12]))
	case FrameBSON:
		total := binary.LittleEndian.Uint32(buf[0:4])
		if total >= 4 {
			h.Size = total - 4
		}
	}
	return h
}
