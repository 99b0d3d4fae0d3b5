// Package udp implements the UDP transport, including multicast group
// membership, per spec.md §4.3's "mcast UDP" bullet and
// original_source/src/channel/udp.cc / tll/channel/udp.h.
//
// Unlike TCP, UDP frames every datagram as exactly one message: there is
// no stream to split into records, so a datagram's payload (after an
// optional fixed header matching transport/tcp's frame variants) is
// delivered as a single Data message per datagram received.
package udp

import (
	"fmt"
	"net"
	"time"

	"github.com/joeycumines/go-channelgraph/channel"
	"github.com/joeycumines/go-channelgraph/transport/tcp"
	"golang.org/x/sys/unix"
)

// MulticastOpts mirrors udp.h's `_multi`/`_mcast_*` fields.
type MulticastOpts struct {
	Enabled   bool
	Loop      bool   // IP_MULTICAST_LOOP / IPV6_MULTICAST_LOOP
	Interface string // interface name whose address is used for the IP_ADD_MEMBERSHIP join; IP_MULTICAST_IF is not set
	TTL       int
}

// Socket is one UDP endpoint: bound (server/receiver) and/or connected
// (sender with a fixed peer), optionally joined to a multicast group.
type Socket struct {
	Base  *channel.Base
	Frame tcp.FrameKind

	fd          int
	bindAddr    string
	peerAddrStr string
	peerAddr    *unix.SockaddrInet4

	mcast MulticastOpts
	opts  tcp.SockOpts
}

// NewSocket constructs a UDP channel. bindAddr is where recvmsg listens
// (empty for a send-only socket); peerAddr is the default sendto target
// (empty for a receive-only socket, which replies to the sender's port
// recorded in each received message's Addr; the sender's IP address is
// not recorded). A malformed peerAddr is reported by Open, not here,
// so construction never fails.
func NewSocket(cfg *channel.Config, bindAddr, peerAddr string, frame tcp.FrameKind, mcast MulticastOpts, opts tcp.SockOpts) *Socket {
	s := &Socket{
		Base:     channel.NewBase(cfg, channel.CapInput|channel.CapOutput),
		Frame:    frame,
		fd:       -1,
		bindAddr: bindAddr,
		opts:     opts,
		mcast:    mcast,
	}
	if peerAddr != "" {
		s.peerAddrStr = peerAddr
	}
	return s
}

// Open creates the socket, applies multicast/TTL options, and binds if
// bindAddr is set.
func (s *Socket) Open() error {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		return fmt.Errorf("udp: socket: %w", err)
	}
	_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	if s.opts.SndBuf > 0 {
		_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF, s.opts.SndBuf)
	}
	if s.opts.RcvBuf > 0 {
		_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, s.opts.RcvBuf)
	}

	if s.mcast.TTL > 0 {
		if err := unix.SetsockoptInt(fd, unix.IPPROTO_IP, unix.IP_MULTICAST_TTL, s.mcast.TTL); err != nil {
			_ = unix.Close(fd)
			return fmt.Errorf("udp: IP_MULTICAST_TTL: %w", err)
		}
	}
	if s.mcast.Enabled {
		loop := 0
		if s.mcast.Loop {
			loop = 1
		}
		if err := unix.SetsockoptInt(fd, unix.IPPROTO_IP, unix.IP_MULTICAST_LOOP, loop); err != nil {
			_ = unix.Close(fd)
			return fmt.Errorf("udp: IP_MULTICAST_LOOP: %w", err)
		}
	}

	if s.bindAddr != "" {
		addr, err := net.ResolveUDPAddr("udp", s.bindAddr)
		if err != nil {
			_ = unix.Close(fd)
			return fmt.Errorf("udp: resolve bind %q: %w", s.bindAddr, err)
		}
		var ip [4]byte
		if ip4 := addr.IP.To4(); ip4 != nil {
			copy(ip[:], ip4)
		}
		if err := unix.Bind(fd, &unix.SockaddrInet4{Port: addr.Port, Addr: ip}); err != nil {
			_ = unix.Close(fd)
			return fmt.Errorf("udp: bind %q: %w", s.bindAddr, err)
		}
		if s.mcast.Enabled {
			mreq := &unix.IPMreq{Multiaddr: ip}
			if iface, err := net.InterfaceByName(s.mcast.Interface); err == nil {
				if addrs, _ := iface.Addrs(); len(addrs) > 0 {
					if ipNet, ok := addrs[0].(*net.IPNet); ok {
						if ip4 := ipNet.IP.To4(); ip4 != nil {
							copy(mreq.Interface[:], ip4)
						}
					}
				}
			}
			if err := unix.SetsockoptIPMreq(fd, unix.IPPROTO_IP, unix.IP_ADD_MEMBERSHIP, mreq); err != nil {
				_ = unix.Close(fd)
				return fmt.Errorf("udp: IP_ADD_MEMBERSHIP: %w", err)
			}
		}
	}

	if s.peerAddrStr != "" {
		peer, err := net.ResolveUDPAddr("udp", s.peerAddrStr)
		if err != nil {
			_ = unix.Close(fd)
			return fmt.Errorf("udp: resolve peer %q: %w", s.peerAddrStr, err)
		}
		var pip [4]byte
		if ip4 := peer.IP.To4(); ip4 != nil {
			copy(pip[:], ip4)
		}
		s.peerAddr = &unix.SockaddrInet4{Port: peer.Port, Addr: pip}
	}

	s.fd = fd
	s.Base.SetFD(fd)
	s.Base.SetDCaps(channel.PollIn | channel.Process)
	if err := s.Base.Open(); err != nil {
		return err
	}
	return s.Base.Active()
}

// Process reads one or more pending datagrams and dispatches each as a
// Data message.
func (s *Socket) Process() error {
	buf := make([]byte, 64*1024)
	any := false
	for {
		n, from, err := unix.Recvfrom(s.fd, buf, 0)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				break
			}
			return fmt.Errorf("udp: recvfrom: %w", err)
		}
		any = true
		hs := s.Frame.HeaderSize()
		var hdr tcp.Header
		payload := buf[:n]
		if hs > 0 && n >= hs {
			hdr = s.Frame.Decode(buf[:hs])
			payload = append([]byte(nil), buf[hs:n]...)
		} else {
			payload = append([]byte(nil), buf[:n]...)
		}
		addr := channel.Addr{Kind: channel.AddrTCP, FD: int32(s.fd)}
		if in4, ok := from.(*unix.SockaddrInet4); ok {
			addr.Accept = int32(in4.Port)
		}
		s.Base.Callbacks().Dispatch(&channel.Message{
			Type:  channel.TypeData,
			MsgID: hdr.MsgID,
			Seq:   hdr.Seq,
			Time:  time.Now(),
			Data:  payload,
			Addr:  addr,
		})
	}
	if !any {
		return channel.ErrAgain
	}
	return nil
}

// Post sends msg as one datagram to peerAddr or, with no peerAddr, to the
// port carried in msg.Addr at address 0.0.0.0; the sender's IP address is
// not carried in msg.Addr.
func (s *Socket) Post(msg *channel.Message) error {
	if !s.Base.CanPost() {
		return fmt.Errorf("udp: post: %w", channel.ErrPostNotAllowed)
	}
	hs := s.Frame.HeaderSize()
	buf := make([]byte, hs+len(msg.Data))
	s.Frame.Encode(buf[:hs], tcp.Header{Size: uint32(len(msg.Data)), MsgID: msg.MsgID, Seq: msg.Seq})
	copy(buf[hs:], msg.Data)

	dest := s.peerAddr
	if dest == nil && msg.Addr.Kind == channel.AddrTCP {
		dest = &unix.SockaddrInet4{Port: int(msg.Addr.Accept)}
	}
	if dest == nil {
		return fmt.Errorf("udp: post: no destination address")
	}
	return unix.Sendto(s.fd, buf, 0, dest)
}

// Close releases the socket.
func (s *Socket) Close() error {
	if err := s.Base.Close(); err != nil {
		return err
	}
	if s.fd < 0 {
		return nil
	}
	err := unix.Close(s.fd)
	s.fd = -1
	return err
}

var _ channel.Processor = (*Socket)(nil)
