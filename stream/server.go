package stream

import (
	"fmt"
	"sync"

	"github.com/joeycumines/go-channelgraph/channel"
	"github.com/joeycumines/go-channelgraph/transport/tcp"
)

// serverClientState tracks one connected client's replay progress, per
// spec.md §4.4: "Per connected client it instantiates a fresh storage
// reader ... seeked to the requested seq".
type serverClientState struct {
	mu             sync.Mutex
	requestPending *channel.Message
	repliedAt      int64 // -1 until the Request has been answered
	lastSeq        int64 // last seq forwarded to this client, -1 if none yet
	online         bool
}

func (st *serverClientState) onData(msg *channel.Message) {
	if msg.MsgID != channel.StreamRequest && msg.MsgID != channel.StreamRequestLegacy {
		return
	}
	st.mu.Lock()
	st.requestPending = msg
	st.mu.Unlock()
}

// Server owns the request-protocol listener, the historical storage log,
// and the per-client replay state, per spec.md §4.4: "Server. Owns three
// sub-channels: a request channel ... a storage channel ... and an
// optional blocks channel". The storage and blocks sub-channels are
// folded into one in-process Storage here rather than modeled as
// separate channel objects, since nothing in SPEC_FULL.md requires them
// to be independently swappable transports.
type Server struct {
	Base *channel.Base

	reqServer  *tcp.Server
	storage    *Storage
	serverName string

	initMsgID  int32
	initSeq    int64
	hasInit    bool

	mu      sync.Mutex
	clients map[*tcp.Client]*serverClientState
}

// NewServer constructs a stream server listening for request connections
// on addr. autoseqEnabled wires internal/autoseq into the storage log
// (spec.md §4.4 "Autoseq").
func NewServer(cfg *channel.Config, addr string, serverName string, autoseqEnabled bool, frame tcp.FrameKind, opts tcp.SockOpts, fam tcp.Family, newConfig func(name string) *channel.Config) *Server {
	s := &Server{
		storage:    NewStorage(autoseqEnabled),
		serverName: serverName,
		initMsgID:  -1,
		clients:    make(map[*tcp.Client]*serverClientState),
	}
	s.reqServer = tcp.NewServer(cfg, addr, frame, opts, fam, newConfig)
	s.Base = s.reqServer.Base
	return s
}

// SetInitMessage configures a zero-payload message synthesised at seq
// initSeq if storage is empty at Open, per spec.md §4.4's
// "Init-message/init-block".
func (s *Server) SetInitMessage(msgid int32, seq int64) {
	s.initMsgID = msgid
	s.initSeq = seq
	s.hasInit = true
}

// Open starts listening and seeds storage with the configured init
// message, if any.
func (s *Server) Open() error {
	if err := s.reqServer.Open(); err != nil {
		return err
	}
	if s.hasInit {
		s.storage.InitMessage(s.initSeq, s.initMsgID)
		s.storage.MarkBlock("init")
	}
	return nil
}

// Close stops the request listener and drops every connected client; the
// in-memory storage log is simply discarded with the Server.
func (s *Server) Close() error {
	return s.reqServer.Close()
}

// Post appends msg to storage (rewriting its seq if autoseq is enabled)
// and makes it available to every connected client's next Process pass.
func (s *Server) Post(msg *channel.Message) error {
	if !s.Base.CanPost() {
		return fmt.Errorf("stream: post: %w", channel.ErrPostNotAllowed)
	}
	s.storage.Append(msg.Seq, msg.MsgID, msg.Data)
	return nil
}

// MarkBlock records a named boundary at the current storage head,
// per spec.md §4.4's blocks sub-channel.
func (s *Server) MarkBlock(name string) { s.storage.MarkBlock(name) }

// Process accepts new request connections and advances every connected
// client's handshake/replay.
func (s *Server) Process() error {
	acceptErr := s.reqServer.Process()
	if acceptErr != nil && acceptErr != channel.ErrAgain {
		return acceptErr
	}
	progressed := acceptErr == nil

	for _, cl := range s.reqServer.Clients() {
		st, ok := s.clients[cl]
		if !ok {
			st = &serverClientState{lastSeq: -1, repliedAt: -1}
			s.clients[cl] = st
			cl.Base.Callbacks().AddData(st, st.onData)
		}

		if perr := cl.Process(); perr != nil && perr != channel.ErrAgain {
			delete(s.clients, cl)
			continue
		} else if perr == nil {
			progressed = true
		}

		st.mu.Lock()
		pending := st.requestPending
		st.requestPending = nil
		st.mu.Unlock()
		if pending != nil {
			if err := s.handleRequest(cl, st, pending); err != nil {
				delete(s.clients, cl)
				continue
			}
			progressed = true
		}

		if st.repliedAt != -1 {
			if n := s.replayClient(cl, st); n {
				progressed = true
			}
		}
	}

	if !progressed {
		return channel.ErrAgain
	}
	return nil
}

func (s *Server) handleRequest(cl *tcp.Client, st *serverClientState, msg *channel.Message) error {
	req, err := DecodeRequest(msg.Data)
	if err != nil {
		return s.failClient(cl, "malformed request")
	}

	requestedSeq := req.Seq
	var blockSeq int64 = -1
	if req.Mode == ModeBlock {
		resolved, ok := s.storage.ResolveBlock(req.BlockName, req.BlockIndex)
		if !ok {
			return s.failClient(cl, fmt.Sprintf("unknown block %q[%d]", req.BlockName, req.BlockIndex))
		}
		requestedSeq = resolved
		blockSeq = resolved
	}

	lastSeq := s.storage.LastSeq()
	reply := Reply{Version: ProtocolVersion, LastSeq: lastSeq, RequestedSeq: requestedSeq, BlockSeq: blockSeq, Server: s.serverName}
	if err := cl.Post(&channel.Message{Type: channel.TypeData, MsgID: channel.StreamReply, Data: reply.Encode()}); err != nil {
		return err
	}

	st.lastSeq = requestedSeq - 1
	st.repliedAt = requestedSeq
	return nil
}

// replayClient forwards every stored record not yet sent to cl, then
// signals catch-up once the client reaches the current storage head.
// Returns whether any work was done.
func (s *Server) replayClient(cl *tcp.Client, st *serverClientState) bool {
	recs := s.storage.ReadFrom(st.lastSeq + 1)
	progressed := false
	for _, rec := range recs {
		if err := cl.Post(&channel.Message{Type: channel.TypeData, MsgID: rec.msgid, Seq: rec.seq, Data: rec.data}); err != nil {
			break
		}
		st.lastSeq = rec.seq
		progressed = true
	}
	if !st.online && st.lastSeq >= s.storage.LastSeq() {
		st.online = true
		_ = cl.Post(&channel.Message{Type: channel.TypeData, MsgID: channel.StreamClientDone, Seq: st.lastSeq})
		progressed = true
	}
	return progressed
}

func (s *Server) failClient(cl *tcp.Client, text string) error {
	em := ErrorMsg{Version: ProtocolVersion, Text: text, Server: s.serverName}
	_ = cl.Post(&channel.Message{Type: channel.TypeData, MsgID: channel.StreamError, Data: em.Encode()})
	return cl.Base.Fail()
}

var _ channel.Processor = (*Server)(nil)
