package stream

import (
	"github.com/joeycumines/go-channelgraph/channel"
	"github.com/joeycumines/go-channelgraph/transport/tcp"
)

// State is the stream client's lifecycle, per spec.md §4.4: "Client state
// machine. States {Closed, Opening, Connected, Overlapped, Online}".
type State int8

const (
	StateClosed State = iota
	StateOpening
	StateConnected
	StateOverlapped
	StateOnline
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "Closed"
	case StateOpening:
		return "Opening"
	case StateConnected:
		return "Connected"
	case StateOverlapped:
		return "Overlapped"
	case StateOnline:
		return "Online"
	default:
		return "Unknown"
	}
}

// Client replays a requested range from a stream Server and then joins
// its live feed, all over one underlying connection — the server
// forwards both historical and new data over the same request-channel
// socket a client dialed in with (spec.md §4.4: "each reader's output is
// forwarded to the matching request-channel address").
type Client struct {
	Base *channel.Base

	conn *tcp.Client

	clientName string
	mode       RequestMode
	seq        int64
	blockName  string
	blockIndex int32

	state       State
	sentRequest bool
	lastSeq     int64
	blockEnd    int64
}

// NewClient constructs a stream client. conn is a not-yet-opened
// *tcp.Client dialing the server's request channel; Open drives both the
// connect and the stream handshake.
func NewClient(cfg *channel.Config, conn *tcp.Client, clientName string, mode RequestMode, seq int64, blockName string, blockIndex int32) *Client {
	return &Client{
		Base:       channel.NewBase(cfg, channel.CapInput|channel.CapOutput|channel.CapProxy),
		conn:       conn,
		clientName: clientName,
		mode:       mode,
		seq:        seq,
		blockName:  blockName,
		blockIndex: blockIndex,
		lastSeq:    -1,
		blockEnd:   -1,
	}
}

// State reports the protocol-level state (distinct from Base.State's
// coarser channel lifecycle: Connected/Overlapped/Online all map to
// Base's Active).
func (c *Client) State() State { return c.state }

// Open opens the underlying connection. In mode=online no Request is
// ever posted — the client is immediately Online (spec.md §4.4: "In
// mode=online no request is posted; client transitions directly to
// Online").
func (c *Client) Open() error {
	if err := c.conn.Open(); err != nil {
		return err
	}
	c.conn.Base.Callbacks().AddData(c, c.handleConnData)
	c.Base.AddChild("request", c.conn.Base)

	if err := c.Base.Open(); err != nil {
		return err
	}
	if c.mode == ModeOnline {
		c.state = StateOnline
		if err := c.Base.Active(); err != nil {
			return err
		}
		c.Base.Callbacks().Dispatch(&channel.Message{Type: channel.TypeControl, MsgID: CtlOnline})
		return nil
	}
	c.state = StateOpening
	return nil
}

// Process drives the underlying connection and, once it is Active, posts
// the initial Request exactly once.
func (c *Client) Process() error {
	err := c.conn.Process()
	if err != nil && err != channel.ErrAgain {
		return err
	}
	progressed := err == nil

	if c.state == StateOpening && !c.sentRequest && c.conn.Base.State() == channel.Active {
		req := Request{
			Version:    ProtocolVersion,
			ClientName: c.clientName,
			Mode:       c.mode,
			Seq:        c.seq,
			BlockName:  c.blockName,
			BlockIndex: c.blockIndex,
		}
		if perr := c.conn.Post(&channel.Message{Type: channel.TypeData, MsgID: channel.StreamRequest, Data: req.Encode()}); perr != nil {
			return perr
		}
		c.sentRequest = true
		progressed = true
	}

	if !progressed {
		return channel.ErrAgain
	}
	return nil
}

// handleConnData demultiplexes everything arriving over the request
// connection: the Reply/Error protocol frames, the catch-up marker, and
// ordinary replayed/live Data messages.
func (c *Client) handleConnData(msg *channel.Message) {
	switch msg.MsgID {
	case channel.StreamReply:
		c.onReply(msg)
	case channel.StreamError:
		em, err := DecodeErrorMsg(msg.Data)
		text := "stream: malformed Error"
		if err == nil {
			text = em.Text
		}
		c.Base.Callbacks().Dispatch(&channel.Message{Type: channel.TypeControl, MsgID: channel.StreamError, Data: []byte(text)})
		_ = c.Base.Fail()
	case channel.StreamClientDone:
		// Server-sent catch-up marker: this module's server decides when a
		// client's replay has reached the live head (it alone knows the
		// storage tail) and signals it with the same msgid the original
		// protocol uses client->server, reversed here since a single
		// merged storage+live log removes the client's own need to detect
		// catch-up independently. See DESIGN.md's "stream" entry.
		c.advanceOnline()
	default:
		if c.blockEnd >= 0 && msg.Seq >= c.blockEnd {
			c.Base.Callbacks().Dispatch(&channel.Message{Type: channel.TypeControl, MsgID: CtlEndOfBlock, Seq: c.blockEnd - 1})
			c.blockEnd = -1
		}
		c.lastSeq = msg.Seq
		c.Base.Callbacks().Dispatch(msg)
	}
}

func (c *Client) onReply(msg *channel.Message) {
	reply, err := DecodeReply(msg.Data)
	if err != nil {
		_ = c.Base.Fail()
		return
	}
	if c.mode == ModeBlock {
		c.blockEnd = reply.BlockSeq
	}
	if reply.LastSeq+1 == reply.RequestedSeq {
		// Server has nothing older than what's already live: go straight
		// Online, per spec.md §4.4's "server has nothing old" branch.
		c.advanceOnline()
		return
	}
	c.state = StateConnected
	if err := c.Base.Active(); err != nil {
		_ = c.Base.Fail()
	}
}

func (c *Client) advanceOnline() {
	if c.state == StateOnline {
		return
	}
	// Overlapped has no drain step of its own in this merged storage+live
	// model (there is no separate live buffer to empty, since storage
	// already holds everything up to the current head) so the transition
	// passes straight through to Online.
	c.state = StateOnline
	if c.Base.State() != channel.Active {
		_ = c.Base.Active()
	}
	c.Base.Callbacks().Dispatch(&channel.Message{Type: channel.TypeControl, MsgID: CtlOnline})
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if err := c.Base.Close(); err != nil {
		return err
	}
	return c.conn.Close()
}

var _ channel.Processor = (*Client)(nil)
