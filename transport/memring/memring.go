// Package memring implements the mmap-backed single-writer/multi-reader
// ring transport ("pub+mem" in the original), grounded on
// original_source/src/channel/pub-mem.cc: a server mmaps a fixed-size
// file and writes framed records into it; any number of client processes
// open the same file read-only and iterate it independently, detecting
// and recovering from overrun the same way transport/udp and pub's
// in-process ring do.
package memring

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/joeycumines/go-channelgraph/channel"
	"github.com/joeycumines/go-channelgraph/internal/ringbuf"
	"golang.org/x/sys/unix"
)

// magic identifies a memring arena file, written at offset 0 of the mmap
// segment so a client can refuse to iterate a foreign or truncated file.
const magic = uint32(0x746c6c6d) // "tllm", matching the original's ring_magic intent

// fileHeaderSize is the fixed prologue before the ring.Ring arena begins:
// magic (4 bytes) + ring capacity (4 bytes).
const fileHeaderSize = 8

// Server owns the backing file and the writable mmap; Post writes framed
// records, evicting the oldest on overflow (ring.Ring's native
// overwrite-on-overflow behaviour — matching pub-mem.cc's ring_shift loop
// on a write that doesn't fit).
type Server struct {
	Base *channel.Base

	path string
	size int

	file *os.File
	data []byte
	ring *ringbuf.Ring
}

// NewServer constructs a memring server; size is the ring arena size in
// bytes and must be a power of two (ringbuf.Ring's requirement).
func NewServer(cfg *channel.Config, path string, size int) *Server {
	return &Server{
		Base: channel.NewBase(cfg, channel.CapOutput),
		path: path,
		size: size,
	}
}

// Open creates the backing file, sized and mmap'd, matching pub-mem.cc's
// mkstemp-then-rename sequence so a concurrently-opening client never
// observes a partially-initialized file at the final path.
func (s *Server) Open() error {
	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("memring: create %q: %w", tmp, err)
	}
	full := fileHeaderSize + s.size
	if err := f.Truncate(int64(full)); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("memring: truncate %q: %w", tmp, err)
	}
	data, err := unix.Mmap(int(f.Fd()), 0, full, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("memring: mmap %q: %w", tmp, err)
	}
	binary.LittleEndian.PutUint32(data[0:4], magic)
	binary.LittleEndian.PutUint32(data[4:8], uint32(s.size))

	if err := os.Rename(tmp, s.path); err != nil {
		_ = unix.Munmap(data)
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("memring: rename %q -> %q: %w", tmp, s.path, err)
	}

	s.file = f
	s.data = data
	s.ring = ringbuf.New(data[fileHeaderSize:])
	s.Base.SetDCaps(0) // post-only: server never needs Process
	if err := s.Base.Open(); err != nil {
		return err
	}
	return s.Base.Active()
}

// Post writes msg into the ring as one framed record: a 12-byte prefix
// (8-byte seq, 4-byte msgid) (matching pub-mem.cc's Frame{seq, msgid}) followed by the
// payload.
func (s *Server) Post(msg *channel.Message) error {
	if !s.Base.CanPost() {
		return fmt.Errorf("memring: post: %w", channel.ErrPostNotAllowed)
	}
	rec := make([]byte, 12+len(msg.Data))
	binary.LittleEndian.PutUint64(rec[0:8], uint64(msg.Seq))
	binary.LittleEndian.PutUint32(rec[8:12], uint32(msg.MsgID))
	copy(rec[12:], msg.Data)
	_, err := s.ring.Write(rec)
	return err
}

// Close unmaps and removes the backing file.
func (s *Server) Close() error {
	if err := s.Base.Close(); err != nil {
		return err
	}
	if s.data != nil {
		_ = unix.Munmap(s.data)
		s.data = nil
	}
	if s.file != nil {
		s.file.Close()
		s.file = nil
	}
	return os.Remove(s.path)
}

// Client opens an existing memring file read-only and iterates it,
// implementing channel.Processor. Process is expected to be invoked by
// the loop on a timer (there is no fd readiness signal for a file-backed
// ring — the original's _process is driven by the processor's poll
// timeout for exactly this reason).
type Client struct {
	Base *channel.Base

	path string
	file *os.File
	data []byte
	rd   *ringbuf.Reader
}

// NewClient constructs a memring client for path (the file a Server has
// already opened and renamed into place).
func NewClient(cfg *channel.Config, path string) *Client {
	return &Client{
		Base: channel.NewBase(cfg, channel.CapInput),
		path: path,
	}
}

// Open maps the file read-only and validates the magic, matching
// pub-mem.cc's header read-and-check before mmap.
func (c *Client) Open() error {
	f, err := os.Open(c.path)
	if err != nil {
		return fmt.Errorf("memring: open %q: %w", c.path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("memring: stat %q: %w", c.path, err)
	}
	full := int(info.Size())
	if full < fileHeaderSize {
		f.Close()
		return fmt.Errorf("memring: %q too small for a ring header", c.path)
	}
	data, err := unix.Mmap(int(f.Fd()), 0, full, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return fmt.Errorf("memring: mmap %q: %w", c.path, err)
	}
	if got := binary.LittleEndian.Uint32(data[0:4]); got != magic {
		_ = unix.Munmap(data)
		f.Close()
		return fmt.Errorf("memring: bad magic in %q: got 0x%08x, want 0x%08x", c.path, got, magic)
	}

	c.file = f
	c.data = data
	ring := ringbuf.New(data[fileHeaderSize:])
	c.rd = ring.NewReader()
	c.Base.SetDCaps(channel.Process)
	if err := c.Base.Open(); err != nil {
		return err
	}
	return c.Base.Active()
}

// Process reads the next record, or ErrAgain if the ring is caught up.
// On overrun it resynchronizes to the writer's current position and
// fails the channel for this generation, matching the original's
// "ring iterator invalidated" fatal behaviour for a too-slow reader.
func (c *Client) Process() error {
	rec, err := c.rd.Next()
	if err != nil {
		if err == ringbuf.ErrNoData {
			return channel.ErrAgain
		}
		if err == ringbuf.ErrOverrun {
			c.rd.Resync()
			return fmt.Errorf("memring: reader overrun, resynced: %w", err)
		}
		return err
	}
	if len(rec) < 12 {
		return fmt.Errorf("memring: record too short: %d bytes", len(rec))
	}
	seq := int64(binary.LittleEndian.Uint64(rec[0:8]))
	msgid := int32(binary.LittleEndian.Uint32(rec[8:12]))
	c.Base.Callbacks().Dispatch(&channel.Message{
		Type:  channel.TypeData,
		MsgID: msgid,
		Seq:   seq,
		Data:  append([]byte(nil), rec[12:]...),
	})
	return nil
}

// Close unmaps and closes the file (the backing file itself is owned by
// the Server and is not removed here).
func (c *Client) Close() error {
	if err := c.Base.Close(); err != nil {
		return err
	}
	if c.data != nil {
		_ = unix.Munmap(c.data)
		c.data = nil
	}
	if c.file != nil {
		c.file.Close()
		c.file = nil
	}
	return nil
}

var (
	_ channel.Processor = (*Client)(nil)
)
