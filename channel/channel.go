package channel

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/joeycumines/go-channelgraph/internal/loop"
)

// PostPolicy controls whether Post() is permitted outside the Active state.
type PostPolicy int8

const (
	PostPolicyDisable PostPolicy = iota
	PostPolicyEnable
)

// Processor is implemented by anything that can run a channel's process()
// step. Transports implement this; Base does not — Base only manages the
// state machine, dcaps, callbacks and child bookkeeping common to every
// transport (spec.md §4.1's "Channel core").
type Processor interface {
	// Process is invoked by the event loop when the channel is fd-ready or
	// pending. Returning channel.ErrAgain means "nothing to do right now",
	// nil means "work was done", any other error transitions the channel to
	// Error.
	Process() error
}

// ErrAgain is a sentinel Process() may return to indicate no work was
// available (mirrors EAGAIN in spec.md §4.2 step 4). It is defined as the
// same value internal/loop compares against, so transports can return
// either name interchangeably.
var ErrAgain = loop.ErrAgain

// Child is a tagged reference to a child channel (spec.md §4.1 "Proxy/Parent
// caps").
type Child struct {
	Tag     string
	Channel *Base
}

// Base implements the lifecycle contract every transport in this module
// embeds: the state machine, dcaps, callback fan-out, dump mode, and
// parent/child bookkeeping. Concrete transports (tcp.Socket, pub.Server,
// stream.Client, ...) embed *Base and add their own fd/process/post logic —
// the Go expression of the teacher's "keep the base, generalize the mixin"
// composition note (spec.md §9), replacing the C++ CRTP channel hierarchy
// (ChannelBase → WithParent → ... ) with plain struct embedding.
type Base struct {
	Config *Config

	state *FastState
	dcaps atomic.Uint32

	fd atomic.Int64 // -1 means none

	staticCaps StaticCap
	dumpMode   DumpMode
	scheme     SchemeDumper

	postOpeningPolicy PostPolicy
	postClosingPolicy PostPolicy

	callbacks *Callbacks

	mu       sync.RWMutex
	parent   *Base
	children []Child
}

// NewBase constructs a Base in the Closed state with fd=-1 and no dcaps.
func NewBase(cfg *Config, caps StaticCap) *Base {
	b := &Base{
		Config:     cfg,
		state:      cfg.State,
		staticCaps: caps,
		callbacks:  NewCallbacks(),
	}
	b.fd.Store(-1)
	return b
}

// State returns the current lifecycle state.
func (b *Base) State() State { return b.state.Load() }

// StaticCaps returns the fixed capability bitfield.
func (b *Base) StaticCaps() StaticCap { return b.staticCaps }

// FD returns the channel's file descriptor, or -1 if it has none.
func (b *Base) FD() int { return int(b.fd.Load()) }

// SetFD updates the fd and emits a CHANNEL_UPDATE_FD meta-message so the
// loop can reconcile its poll subscription (spec.md §4.2).
func (b *Base) SetFD(fd int) {
	old := b.fd.Swap(int64(fd))
	if int64(fd) == old {
		return
	}
	b.emitMeta(MetaUpdateFD, nil)
}

// DCaps returns the current dynamic-capability bitfield.
func (b *Base) DCaps() DCap { return DCap(b.dcaps.Load()) }

// SetDCaps replaces the dcaps bitfield and emits a CHANNEL_UPDATE
// meta-message carrying the *old* dcaps as payload, per spec.md §4.1: "Every
// dcap change emits a ChannelUpdate meta-message with the old dcaps as
// payload so the loop can re-arm."
func (b *Base) SetDCaps(next DCap) {
	old := DCap(b.dcaps.Swap(uint32(next)))
	if old == next {
		return
	}
	payload := make([]byte, 4)
	payload[0] = byte(old)
	payload[1] = byte(old >> 8)
	payload[2] = byte(old >> 16)
	payload[3] = byte(old >> 24)
	b.emitMeta(MetaUpdate, payload)
}

// OrDCaps ORs extra bits into the current dcaps.
func (b *Base) OrDCaps(extra DCap) { b.SetDCaps(b.DCaps() | extra) }

// AndNotDCaps clears bits from the current dcaps.
func (b *Base) AndNotDCaps(clear DCap) { b.SetDCaps(b.DCaps() &^ clear) }

// SetDumpMode configures message pretty-printing, and SetScheme supplies the
// (optional) scheme used by DumpScheme/DumpAuto.
func (b *Base) SetDumpMode(m DumpMode)      { b.dumpMode = m }
func (b *Base) SetScheme(s SchemeDumper)    { b.scheme = s }
func (b *Base) SetPostPolicy(opening, closing PostPolicy) {
	b.postOpeningPolicy = opening
	b.postClosingPolicy = closing
}

// DumpMessage renders msg per the configured dump mode.
func (b *Base) DumpMessage(msg *Message) string {
	return Dump(b.dumpMode, msg, b.scheme)
}

// transition performs the CAS, emits a State message to every callback
// *before* returning (spec.md §4.1: "emits a State message ... before
// returning from the triggering operation"), and returns whether it
// succeeded.
func (b *Base) transition(to State) error {
	from, ok := b.state.TransitionTo(to)
	if !ok {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	b.Config.Info.Set("state", to.String())
	b.callbacks.Dispatch(&Message{Type: TypeState, MsgID: int32(to)})
	return nil
}

// Open transitions Closed -> Opening.
func (b *Base) Open() error { return b.transition(Opening) }

// Active transitions Opening -> Active.
func (b *Base) Active() error { return b.transition(Active) }

// Close moves Active through Closing to Closed, and Closing or Error
// straight to Closed. From Opening it moves to Error, since Opening ->
// Closed is not in the state table. From Closed or Destroy it does nothing
// and returns nil.
func (b *Base) Close() error {
	cur := b.State()
	if cur == Active {
		if err := b.transition(Closing); err != nil {
			return err
		}
		cur = Closing
	}
	if cur == Closing || cur == Error {
		return b.transition(Closed)
	}
	if cur == Opening {
		return b.transition(Error)
	}
	return nil
}

// Fail transitions the channel to Error from Opening, Active or Closing
// (from Closed or Error it returns ErrInvalidTransition, from Destroy
// ErrClosed), and logs nothing itself — callers are expected to log before calling Fail, as
// every fail-path must be logged per spec.md §7.
func (b *Base) Fail() error {
	if b.State() == Destroy {
		return ErrClosed
	}
	return b.transition(Error)
}

// Destroy moves the channel to the terminal Destroy state unconditionally
// and emits a State message carrying Destroy, so that subscribers can
// remove it from their indexes (spec.md §4.2: "State=Destroy (remove from
// all indexes)"). It does not itself unregister the channel anywhere.
func (b *Base) Destroy() {
	b.state.Store(Destroy)
	b.callbacks.Dispatch(&Message{Type: TypeState, MsgID: int32(Destroy)})
}

// CanPost reports whether Post() is currently permitted, per spec.md §4.1's
// post policy: valid only in Active, unless the opening/closing policy
// explicitly enables it.
func (b *Base) CanPost() bool {
	switch b.State() {
	case Active:
		return true
	case Opening:
		return b.postOpeningPolicy == PostPolicyEnable
	case Closing:
		return b.postClosingPolicy == PostPolicyEnable
	default:
		return false
	}
}

// AddChild / RemoveChild maintain the proxy/parent graph. The parent
// reference is a plain pointer here (not a weak/indexed handle) because
// this module's children are always owned for their full lifetime by their
// parent (sockets accepted by a tcp.Server, the stream client's request
// sub-channel): there is no cycle risk to guard against in practice, but we
// still expose Parent() rather than a raw field per the §9 "weak parent"
// design note's intent of not letting callers assume shared ownership.
func (b *Base) AddChild(tag string, child *Base) {
	b.mu.Lock()
	defer b.mu.Unlock()
	child.parent = b
	b.children = append(b.children, Child{Tag: tag, Channel: child})
	b.emitMeta(MetaChannelAdd, []byte(tag))
}

func (b *Base) RemoveChild(child *Base) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, c := range b.children {
		if c.Channel == child {
			tag := c.Tag
			b.children = append(b.children[:i], b.children[i+1:]...)
			b.emitMeta(MetaChannelDel, []byte(tag))
			return
		}
	}
}

// Parent returns the owning parent, or nil for a root channel.
func (b *Base) Parent() *Base {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.parent
}

// Children returns a snapshot of the current child list.
func (b *Base) Children() []Child {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]Child(nil), b.children...)
}

// ChildByTag is the child lookup behind channel_cast<T>. It requires the
// Proxy cap and returns the first child registered under tag; an empty tag
// with no child of that tag returns the first child. Otherwise it returns
// ErrNoChild.
func (b *Base) ChildByTag(tag string) (*Base, error) {
	if !b.staticCaps.Has(CapProxy) {
		return nil, ErrNoChild
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, c := range b.children {
		if c.Tag == tag {
			return c.Channel, nil
		}
	}
	if len(b.children) > 0 && tag == "" {
		return b.children[0].Channel, nil
	}
	return nil, ErrNoChild
}

// Callbacks exposes the registry so transports can call AddData/AddOther.
func (b *Base) Callbacks() *Callbacks { return b.callbacks }

// Post dispatches a message for delivery: first to the dump logger (if
// configured — left to the embedding transport, which has the logiface
// logger), then to every registered callback. Transports call Post after
// they've actually produced/received a message; Base.Post only enforces the
// policy check and fan-out, since the actual wire I/O is transport-specific.
func (b *Base) Post(msg *Message) error {
	if !b.CanPost() {
		return fmt.Errorf("%w: state=%s", ErrPostNotAllowed, b.State())
	}
	b.callbacks.Dispatch(msg)
	return nil
}

// emitMeta dispatches a TypeChannel message carrying the given msgid and
// payload to every "other" callback subscribed to MaskChannel.
func (b *Base) emitMeta(msgid int32, payload []byte) {
	b.callbacks.Dispatch(&Message{Type: TypeChannel, MsgID: msgid, Data: payload})
}
