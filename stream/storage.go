package stream

import (
	"sort"
	"sync"

	"github.com/joeycumines/go-channelgraph/internal/autoseq"
)

// record is one stored historical message: its seq plus the msgid/data it
// was posted with.
type record struct {
	seq   int64
	msgid int32
	data  []byte
}

// Storage is the server's random-access historical feed, the `storage`
// sub-channel of spec.md §4.4's "Server. Owns three sub-channels" —
// implemented here as a simple append-only in-memory log (seq-indexed)
// rather than a disk-backed one, since spec.md's Non-goals don't specify
// a durable storage format and nothing in SPEC_FULL.md names a storage
// engine dependency to wire.
type Storage struct {
	mu      sync.RWMutex
	records []record // always sorted by ascending seq

	autoseq *autoseq.Rewriter // non-nil when this storage rewrites seqs on Append

	blocks     []blockMark
	blockIndex map[string]int
}

// blockMark is one named boundary in the stream, per spec.md §4.4's
// optional `blocks` sub-channel: "named boundary markers".
type blockMark struct {
	name string
	seq  int64
}

// NewStorage constructs an empty store. If autoseqEnabled, Append ignores
// the seq on the incoming message and assigns one greater than the last
// appended seq (spec.md §4.4 "Autoseq": "producers can post with seq=0
// and still get monotonic numbering").
func NewStorage(autoseqEnabled bool) *Storage {
	s := &Storage{blockIndex: make(map[string]int)}
	if autoseqEnabled {
		s.autoseq = autoseq.New(-1)
	}
	return s
}

// LastSeq returns the most recently appended seq, or -1 if empty.
func (s *Storage) LastSeq() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.records) == 0 {
		return -1
	}
	return s.records[len(s.records)-1].seq
}

// Append stores one message, rewriting its seq if autoseq is enabled.
// Returns the seq it was actually stored under.
func (s *Storage) Append(seq int64, msgid int32, data []byte) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.autoseq != nil {
		seq = s.autoseq.Next()
	}
	s.records = append(s.records, record{seq: seq, msgid: msgid, data: data})
	return seq
}

// InitMessage synthesises a zero-payload instance of msgid at seq if
// storage is empty, per spec.md §4.4 "Init-message/init-block": "a fresh
// deployment must answer block-from-zero queries without crashing".
func (s *Storage) InitMessage(seq int64, msgid int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.records) != 0 {
		return
	}
	s.records = append(s.records, record{seq: seq, msgid: msgid})
	if s.autoseq != nil {
		s.autoseq.Reseed(seq)
	}
}

// MarkBlock records a named boundary at the current last seq (-1 when the
// storage is empty). It seeds no block of its own; a caller wanting a block
// at the start of the data calls MarkBlock right after InitMessage.
func (s *Storage) MarkBlock(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq := int64(-1)
	if len(s.records) != 0 {
		seq = s.records[len(s.records)-1].seq
	}
	s.blockIndex[name] = len(s.blocks)
	s.blocks = append(s.blocks, blockMark{name: name, seq: seq})
}

// ResolveBlock returns the concrete seq a named block (at the given
// index into that block's occurrences, per spec.md's `Block{name, index}`)
// resolves to, for translating a block-relative Request into an absolute
// requested_seq.
func (s *Storage) ResolveBlock(name string, index int32) (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	matches := make([]blockMark, 0, 1)
	for _, b := range s.blocks {
		if b.name == name {
			matches = append(matches, b)
		}
	}
	i := int(index)
	if i < 0 || i >= len(matches) {
		return 0, false
	}
	return matches[i].seq, true
}

// ReadFrom returns every record with seq >= from, in ascending seq order,
// suitable for replay to a freshly connected client.
func (s *Storage) ReadFrom(from int64) []record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := sort.Search(len(s.records), func(i int) bool { return s.records[i].seq >= from })
	out := make([]record, len(s.records)-idx)
	copy(out, s.records[idx:])
	return out
}
