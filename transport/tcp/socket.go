package tcp

import (
	"fmt"
	"net"
	"strconv"

	"golang.org/x/sys/unix"
)

// SockOpts mirrors the per-socket setup knobs spec.md §4.3 names: "SO_SNDBUF
// /RCVBUF, SO_KEEPALIVE, TCP_NODELAY (when protocol != SCTP and family !=
// UNIX), protocol family in {TCP, MPTCP, SCTP}".
type SockOpts struct {
	SndBuf    int
	RcvBuf    int
	KeepAlive bool
	NoDelay   bool // only applied for TCP family sockets
}

// Family enumerates the socket protocol families spec.md §4.3 lists.
type Family int8

const (
	FamilyTCP Family = iota
	FamilyMPTCP
	FamilySCTP
	FamilyUnix
)

func (f Family) sockType() (domain, proto int) {
	switch f {
	case FamilyUnix:
		return unix.AF_UNIX, 0
	case FamilySCTP:
		return unix.AF_INET, unix.IPPROTO_SCTP
	default:
		return unix.AF_INET, unix.IPPROTO_TCP
	}
}

// applySockOpts applies the common setup options to an already-created
// non-blocking socket fd.
func applySockOpts(fd int, fam Family, o SockOpts) error {
	if o.SndBuf > 0 {
		_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF, o.SndBuf)
	}
	if o.RcvBuf > 0 {
		_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, o.RcvBuf)
	}
	if o.KeepAlive {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1); err != nil {
			return fmt.Errorf("tcp: SO_KEEPALIVE: %w", err)
		}
	}
	if o.NoDelay && fam != FamilySCTP && fam != FamilyUnix {
		_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
	}
	return nil
}

// resolveTCPAddr resolves host:port into a unix.Sockaddr, reusing the
// stdlib resolver (net.ResolveTCPAddr) rather than hand-rolling DNS/port
// lookup.
func resolveTCPAddr(hostport string) (unix.Sockaddr, error) {
	addr, err := net.ResolveTCPAddr("tcp", hostport)
	if err != nil {
		return nil, fmt.Errorf("tcp: resolve %q: %w", hostport, err)
	}
	var ip [4]byte
	if ip4 := addr.IP.To4(); ip4 != nil {
		copy(ip[:], ip4)
	}
	return &unix.SockaddrInet4{Port: addr.Port, Addr: ip}, nil
}

// Socket is the common TCP transport state shared by client and
// server-accepted connections: an input buffer for received bytes and an
// output overflow buffer for partial sends, per spec.md §4.3's "TCP
// socket (common)" paragraph.
type Socket struct {
	FD    int
	Frame FrameKind

	inbuf  []byte // bytes received but not yet framed into complete messages
	outbuf []byte // bytes that could not be sent synchronously

	writeFull bool // true once a WriteFull control has been emitted and not yet cleared
}

// NewSocket wraps an already-connected (or just-accepted) non-blocking
// fd.
func NewSocket(fd int, frame FrameKind) *Socket {
	return &Socket{FD: fd, Frame: frame}
}

// Close releases the underlying fd.
func (s *Socket) Close() error {
	if s.FD < 0 {
		return nil
	}
	err := unix.Close(s.FD)
	s.FD = -1
	return err
}

// Recv reads available bytes into the input buffer via recvmsg, per
// spec.md §4.3. Returns the number of bytes read; 0, nil on EAGAIN (no
// data currently available on a non-blocking socket).
func (s *Socket) Recv() (int, error) {
	buf := make([]byte, 64*1024)
	n, _, _, _, err := unix.Recvmsg(s.FD, buf, nil, 0)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return 0, nil
		}
		return 0, fmt.Errorf("tcp: recvmsg: %w", err)
	}
	if n == 0 {
		return 0, fmt.Errorf("tcp: %w", errConnClosed)
	}
	s.inbuf = append(s.inbuf, buf[:n]...)
	return n, nil
}

// NextFrame attempts to extract one complete framed message from the
// input buffer. Returns ok=false if a full header/payload isn't
// available yet.
func (s *Socket) NextFrame() (hdr Header, payload []byte, ok bool) {
	hs := s.Frame.HeaderSize()
	if len(s.inbuf) < hs {
		return Header{}, nil, false
	}
	hdr = s.Frame.Decode(s.inbuf[:hs])
	total := hs + int(hdr.Size)
	if len(s.inbuf) < total {
		return Header{}, nil, false
	}
	payload = make([]byte, hdr.Size)
	copy(payload, s.inbuf[hs:total])
	s.inbuf = s.inbuf[total:]
	return hdr, payload, true
}

// Send writes a complete frame (header+payload). It tries send()
// directly; on EAGAIN or a partial write, the remainder is appended to
// the output overflow buffer and the caller should arm POLLOUT and treat
// this as a WriteFull condition, per spec.md §4.3.
func (s *Socket) Send(hdr Header, payload []byte) (wouldBlock bool, err error) {
	hs := s.Frame.HeaderSize()
	buf := make([]byte, hs+len(payload))
	s.Frame.Encode(buf[:hs], hdr)
	copy(buf[hs:], payload)

	if len(s.outbuf) > 0 {
		// Already backed up: append and let Flush drive it out.
		s.outbuf = append(s.outbuf, buf...)
		return true, nil
	}

	n, werr := unix.Write(s.FD, buf)
	if werr != nil {
		if werr == unix.EAGAIN || werr == unix.EWOULDBLOCK {
			s.outbuf = append(s.outbuf, buf...)
			s.writeFull = true
			return true, nil
		}
		return false, fmt.Errorf("tcp: send: %w", werr)
	}
	if n < len(buf) {
		s.outbuf = append(s.outbuf, buf[n:]...)
		s.writeFull = true
		return true, nil
	}
	return false, nil
}

// Flush attempts to drain the output overflow buffer. Returns true once
// fully drained (caller should emit WriteReady and clear POLLOUT).
func (s *Socket) Flush() (drained bool, err error) {
	if len(s.outbuf) == 0 {
		return true, nil
	}
	n, werr := unix.Write(s.FD, s.outbuf)
	if werr != nil {
		if werr == unix.EAGAIN || werr == unix.EWOULDBLOCK {
			return false, nil
		}
		return false, fmt.Errorf("tcp: flush: %w", werr)
	}
	s.outbuf = s.outbuf[n:]
	if len(s.outbuf) == 0 {
		s.writeFull = false
		return true, nil
	}
	return false, nil
}

// WriteFull reports whether a WriteFull control is currently outstanding
// (output buffer non-empty).
func (s *Socket) WriteFull() bool { return s.writeFull }

var errConnClosed = fmt.Errorf("connection closed by peer")

func portString(p int) string { return strconv.Itoa(p) }
