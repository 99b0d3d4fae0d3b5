// Package pub implements the broadcast publish/subscribe transport: one
// server posts messages into a shared ring, and any number of TCP
// clients independently replay the ring at their own pace, each failing
// independently if it falls too far behind (spec.md's "pub/sub ring
// transports" bullet), grounded on
// original_source/src/channel/pub.cc.
package pub

import (
	"encoding/binary"
	"fmt"

	"github.com/joeycumines/go-channelgraph/channel"
	"github.com/joeycumines/go-channelgraph/internal/ringbuf"
	"github.com/joeycumines/go-channelgraph/transport/tcp"
)

// clientState tracks one connected client's replay position in the ring,
// mirroring ChPubSocket's _iter/_seq pair (pub.cc): the reader advances
// independently of every other client, and a reader that falls behind
// the ring's retained window fails rather than silently skipping data.
type clientState struct {
	reader  *ringbuf.Reader
	lastSeq int64
	started bool
}

// Server owns the broadcast ring and the underlying TCP listener/accept
// loop. Post appends a framed record to the ring (evicting the oldest on
// overflow, same as the ring's native behaviour — matching pub.cc's
// push_back-or-pop_front loop); Process both accepts new connections and
// advances every connected client's replay.
type Server struct {
	Base *channel.Base

	tcpServer *tcp.Server
	ring      *ringbuf.Ring

	clients map[*tcp.Client]*clientState
}

// NewServer constructs a pub broadcast server. ringSize is the shared
// ring's arena size in bytes (a power of two), matching pub.cc's
// `size`/`1024*1024` default knob.
func NewServer(cfg *channel.Config, addr string, ringSize int, frame tcp.FrameKind, opts tcp.SockOpts, fam tcp.Family, newConfig func(name string) *channel.Config) *Server {
	s := &Server{
		ring:    ringbuf.New(make([]byte, ringSize)),
		clients: make(map[*tcp.Client]*clientState),
	}
	s.tcpServer = tcp.NewServer(cfg, addr, frame, opts, fam, newConfig)
	s.Base = s.tcpServer.Base
	return s
}

// Open starts listening.
func (s *Server) Open() error {
	return s.tcpServer.Open()
}

// Close stops the underlying TCP listener and drops every connected
// client; the ring itself is just freed with the Server.
func (s *Server) Close() error {
	return s.tcpServer.Close()
}

// Post frames msg (seq + msgid prefix, matching pub.cc's tll_frame_t) and
// appends it to the ring. Each connected client picks up the new record
// the next time Process walks it.
func (s *Server) Post(msg *channel.Message) error {
	if !s.Base.CanPost() {
		return fmt.Errorf("pub: post: %w", channel.ErrPostNotAllowed)
	}
	rec := make([]byte, 12+len(msg.Data))
	binary.LittleEndian.PutUint64(rec[0:8], uint64(msg.Seq))
	binary.LittleEndian.PutUint32(rec[8:12], uint32(msg.MsgID))
	copy(rec[12:], msg.Data)
	_, err := s.ring.Write(rec)
	return err
}

// Process accepts pending connections, registers a fresh replay reader
// for each new client (starting at the ring's current head, per
// ChPubSocket::_on_active's `_iter = _ring->end()`), and then feeds every
// connected client as many buffered records as it can accept.
func (s *Server) Process() error {
	acceptErr := s.tcpServer.Process()
	if acceptErr != nil && acceptErr != channel.ErrAgain {
		return acceptErr
	}

	progressed := acceptErr == nil

	for _, cl := range s.tcpServer.Clients() {
		st, ok := s.clients[cl]
		if !ok {
			st = &clientState{reader: s.ring.NewReader(), lastSeq: -1}
			s.clients[cl] = st
		}
		for {
			rec, err := st.reader.Next()
			if err != nil {
				if err == ringbuf.ErrNoData {
					break
				}
				if err == ringbuf.ErrOverrun {
					_ = cl.Base.Fail()
					delete(s.clients, cl)
					break
				}
				return err
			}
			if len(rec) < 12 {
				continue
			}
			seq := int64(binary.LittleEndian.Uint64(rec[0:8]))
			msgid := int32(binary.LittleEndian.Uint32(rec[8:12]))
			if st.lastSeq != -1 && seq < st.lastSeq {
				_ = cl.Base.Fail()
				delete(s.clients, cl)
				break
			}
			if err := cl.Post(&channel.Message{
				Type:  channel.TypeData,
				MsgID: msgid,
				Seq:   seq,
				Data:  rec[12:],
			}); err != nil {
				break
			}
			st.lastSeq = seq
			progressed = true
		}
	}

	for cl := range s.clients {
		if cl.Base.State() != channel.Active {
			delete(s.clients, cl)
		}
	}

	if !progressed {
		return channel.ErrAgain
	}
	return nil
}

var _ channel.Processor = (*Server)(nil)
