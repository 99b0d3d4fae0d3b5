package tcp

import (
	"fmt"
	"time"

	"github.com/joeycumines/go-channelgraph/channel"
	"github.com/joeycumines/go-channelgraph/internal/timeline"
	"golang.org/x/sys/unix"
)

// Client is a TCP socket channel: either dialed directly (mode=client) or
// handed an already-accepted fd by a Server. It owns one *channel.Base and
// implements channel.Processor, per spec.md §4.3's "TCP socket (common)".
type Client struct {
	Base   *channel.Base
	Socket *Socket
	Opts   SockOpts
	Fam    Family

	addr      string // dial target, empty for server-accepted sockets
	accepted  bool
	acceptSeq int32

	timeline *timeline.Timeline
}

// NewClient constructs a dialing client for addr (host:port), not yet
// connected — call Open to perform the connect.
func NewClient(cfg *channel.Config, addr string, frame FrameKind, opts SockOpts, fam Family) *Client {
	c := &Client{
		Base: channel.NewBase(cfg, channel.CapInput|channel.CapOutput),
		Opts: opts,
		Fam:  fam,
		addr: addr,
	}
	c.Socket = &Socket{FD: -1, Frame: frame}
	return c
}

// NewAccepted wraps an fd a Server has just accepted.
func NewAccepted(cfg *channel.Config, fd int, frame FrameKind, acceptSeq int32) *Client {
	c := &Client{
		Base:      channel.NewBase(cfg, channel.CapInput|channel.CapOutput),
		Socket:    NewSocket(fd, frame),
		accepted:  true,
		acceptSeq: acceptSeq,
	}
	c.Base.SetFD(fd)
	c.Base.SetDCaps(channel.PollIn | channel.Process)
	return c
}

// Open performs the non-blocking connect for a dialing client.
func (c *Client) Open() error {
	if c.accepted {
		return c.Base.Open()
	}
	domain, proto := c.Fam.sockType()
	fd, err := unix.Socket(domain, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, proto)
	if err != nil {
		return fmt.Errorf("tcp: socket: %w", err)
	}
	if err := applySockOpts(fd, c.Fam, c.Opts); err != nil {
		_ = unix.Close(fd)
		return err
	}
	sa, err := resolveTCPAddr(c.addr)
	if err != nil {
		_ = unix.Close(fd)
		return err
	}
	if err := unix.Connect(fd, sa); err != nil && err != unix.EINPROGRESS {
		_ = unix.Close(fd)
		return fmt.Errorf("tcp: connect %s: %w", c.addr, err)
	}
	c.Socket.FD = fd
	c.Base.SetFD(fd)
	c.Base.SetDCaps(channel.PollOut | channel.Process) // wait for connect to complete
	return c.Base.Open()
}

// Process implements channel.Processor: drives recv/frame-extraction and
// output-buffer flushing for one readiness notification.
func (c *Client) Process() error {
	if c.Base.State() == channel.Opening {
		// First writability after a non-blocking connect means the connect
		// completed (success or failure determinable via SO_ERROR).
		errno, serr := unix.GetsockoptInt(c.Socket.FD, unix.SOL_SOCKET, unix.SO_ERROR)
		if serr != nil || errno != 0 {
			return fmt.Errorf("tcp: connect failed: errno=%d", errno)
		}
		c.Base.SetDCaps(channel.PollIn | channel.Process)
		if err := c.Base.Active(); err != nil {
			return err
		}
		c.Base.Callbacks().Dispatch(&channel.Message{Type: channel.TypeControl, MsgID: channel.CtlConnect})
	}

	if c.Socket.WriteFull() {
		drained, err := c.Socket.Flush()
		if err != nil {
			return err
		}
		if drained {
			c.Base.AndNotDCaps(channel.PollOut)
			c.Base.Callbacks().Dispatch(&channel.Message{Type: channel.TypeControl, MsgID: channel.CtlWriteReady})
		}
	}

	n, err := c.Socket.Recv()
	if err != nil {
		return err
	}
	if n == 0 {
		return channel.ErrAgain
	}

	any := false
	for {
		hdr, payload, ok := c.Socket.NextFrame()
		if !ok {
			break
		}
		any = true
		msg := &channel.Message{
			Type:  channel.TypeData,
			MsgID: hdr.MsgID,
			Seq:   hdr.Seq,
			Time:  time.Now(),
			Data:  payload,
			Addr:  channel.Addr{Kind: channel.AddrTCP, FD: int32(c.Socket.FD), Accept: c.acceptSeq},
		}
		dispatch := func() error { c.Base.Callbacks().Dispatch(msg); return nil }
		if c.timeline != nil {
			_ = c.timeline.OnData(dispatch)
		} else {
			_ = dispatch()
		}
	}
	if !any {
		return channel.ErrAgain
	}
	return nil
}

// Post sends msg as one framed record. It checks Base.CanPost and writes
// to the socket; it does not call Base.Post, so registered callbacks do
// not see outbound Data messages.
func (c *Client) Post(msg *channel.Message) error {
	if !c.Base.CanPost() {
		return fmt.Errorf("tcp: post: %w", channel.ErrPostNotAllowed)
	}
	send := func() error {
		wouldBlock, err := c.Socket.Send(Header{Size: uint32(len(msg.Data)), MsgID: msg.MsgID, Seq: msg.Seq}, msg.Data)
		if err != nil {
			return err
		}
		if wouldBlock {
			c.Base.OrDCaps(channel.PollOut)
			c.Base.Callbacks().Dispatch(&channel.Message{Type: channel.TypeControl, MsgID: channel.CtlWriteFull})
		}
		return nil
	}
	if c.timeline != nil {
		return c.timeline.Post(send)
	}
	return send()
}

// SetTimeline attaches latency measurement, per the internal/timeline
// decorator.
func (c *Client) SetTimeline(t *timeline.Timeline) { c.timeline = t }

// Close performs a graceful close: emits Disconnect and closes the Base
// (through Closing to Closed), per spec.md §4.3.
func (c *Client) Close() error {
	c.Base.Callbacks().Dispatch(&channel.Message{Type: channel.TypeControl, MsgID: channel.CtlDisconnect})
	if err := c.Base.Close(); err != nil {
		return err
	}
	return c.Socket.Close()
}

var _ channel.Processor = (*Client)(nil)
