package tcp

import (
	"fmt"
	"sync"

	"github.com/joeycumines/go-channelgraph/channel"
	"golang.org/x/sys/unix"
)

// clientKey identifies one accepted socket by (fd, accept-seq), per
// spec.md §4.3: "adds it to a client map keyed by (fd, accept-seq)" —
// disambiguating a reused fd number across accept/close cycles.
type clientKey struct {
	fd        int
	acceptSeq int32
}

// Server binds one resolved address on its own listening socket and
// accepts connections into a client map; each accepted client is a child
// channel.
type Server struct {
	Base *channel.Base

	Frame FrameKind
	Opts  SockOpts
	Fam   Family

	listenFD int
	addr     string

	mu        sync.Mutex
	clients   map[clientKey]*Client
	nextAcSeq int32

	newConfig func(name string) *channel.Config
}

// NewServer constructs a server that will listen on addr once Open is
// called. newConfig builds a *channel.Config for each accepted client
// (given a generated name), so the caller controls naming/registration.
func NewServer(cfg *channel.Config, addr string, frame FrameKind, opts SockOpts, fam Family, newConfig func(name string) *channel.Config) *Server {
	return &Server{
		Base:      channel.NewBase(cfg, channel.CapParent|channel.CapProxy),
		Frame:     frame,
		Opts:      opts,
		Fam:       fam,
		addr:      addr,
		listenFD:  -1,
		clients:   make(map[clientKey]*Client),
		newConfig: newConfig,
	}
}

// Open binds and listens.
func (s *Server) Open() error {
	domain, proto := s.Fam.sockType()
	fd, err := unix.Socket(domain, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, proto)
	if err != nil {
		return fmt.Errorf("tcp: server socket: %w", err)
	}
	_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	if err := applySockOpts(fd, s.Fam, s.Opts); err != nil {
		_ = unix.Close(fd)
		return err
	}
	sa, err := resolveTCPAddr(s.addr)
	if err != nil {
		_ = unix.Close(fd)
		return err
	}
	if err := unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return fmt.Errorf("tcp: bind %s: %w", s.addr, err)
	}
	if err := unix.Listen(fd, 128); err != nil {
		_ = unix.Close(fd)
		return fmt.Errorf("tcp: listen %s: %w", s.addr, err)
	}
	s.listenFD = fd
	s.Base.SetFD(fd)
	s.Base.SetDCaps(channel.PollIn | channel.Process)
	if err := s.Base.Open(); err != nil {
		return err
	}
	return s.Base.Active()
}

// Process accepts as many pending connections as are ready, adding each
// as a child Client and emitting a Connect control carrying the peer
// address, per spec.md §4.3.
func (s *Server) Process() error {
	any := false
	for {
		fd, sa, err := unix.Accept4(s.listenFD, unix.SOCK_NONBLOCK)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				break
			}
			return fmt.Errorf("tcp: accept: %w", err)
		}
		any = true
		s.mu.Lock()
		s.nextAcSeq++
		seq := s.nextAcSeq
		s.mu.Unlock()

		if err := applySockOpts(fd, s.Fam, s.Opts); err != nil {
			_ = unix.Close(fd)
			continue
		}

		name := fmt.Sprintf("%s.client%d", s.Base.Config.Name, seq)
		cfg := s.newConfig(name)
		cl := NewAccepted(cfg, fd, s.Frame, seq)
		_ = cl.Base.Open()
		_ = cl.Base.Active()

		s.mu.Lock()
		s.clients[clientKey{fd: fd, acceptSeq: seq}] = cl
		s.mu.Unlock()

		s.Base.AddChild(name, cl.Base)
		s.Base.Callbacks().Dispatch(&channel.Message{
			Type:  channel.TypeControl,
			MsgID: channel.CtlConnect,
			Addr:  channel.Addr{Kind: channel.AddrTCP, FD: int32(fd), Accept: seq},
			Data:  []byte(sockaddrString(sa)),
		})
	}
	if !any {
		return channel.ErrAgain
	}
	return nil
}

// PostTo dispatches a post by address to the matching client socket;
// mismatched or stale addresses fail with EINVAL per spec.md §4.3.
func (s *Server) PostTo(addr channel.Addr, msg *channel.Message) error {
	if addr.Kind != channel.AddrTCP {
		return fmt.Errorf("tcp: post: %w", unix.EINVAL)
	}
	s.mu.Lock()
	cl, ok := s.clients[clientKey{fd: int(addr.FD), acceptSeq: addr.Accept}]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("tcp: post: stale address: %w", unix.EINVAL)
	}
	return cl.Post(msg)
}

// RemoveClient drops a client from the map (called once its Base reaches
// Closed/Error and is being reaped).
func (s *Server) RemoveClient(addr channel.Addr) {
	s.mu.Lock()
	cl, ok := s.clients[clientKey{fd: int(addr.FD), acceptSeq: addr.Accept}]
	if ok {
		delete(s.clients, clientKey{fd: int(addr.FD), acceptSeq: addr.Accept})
	}
	s.mu.Unlock()
	if ok {
		s.Base.RemoveChild(cl.Base)
	}
}

// Close stops accepting, closes every accepted client, and releases the
// listening socket. The server emits no Disconnect of its own; each
// accepted client's Close emits one.
func (s *Server) Close() error {
	if err := s.Base.Close(); err != nil {
		return err
	}
	s.mu.Lock()
	clients := make([]*Client, 0, len(s.clients))
	for _, cl := range s.clients {
		clients = append(clients, cl)
	}
	s.clients = make(map[clientKey]*Client)
	s.mu.Unlock()
	for _, cl := range clients {
		_ = cl.Close()
	}
	if s.listenFD >= 0 {
		_ = unix.Close(s.listenFD)
		s.listenFD = -1
	}
	return nil
}

// Clients returns a snapshot of the currently connected client list.
func (s *Server) Clients() []*Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Client, 0, len(s.clients))
	for _, c := range s.clients {
		out = append(out, c)
	}
	return out
}

func sockaddrString(sa unix.Sockaddr) string {
	if in4, ok := sa.(*unix.SockaddrInet4); ok {
		return fmt.Sprintf("%d.%d.%d.%d:%d", in4.Addr[0], in4.Addr[1], in4.Addr[2], in4.Addr[3], in4.Port)
	}
	return ""
}

var _ channel.Processor = (*Server)(nil)
