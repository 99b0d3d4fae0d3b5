package channel

import "sync"

// DataFunc is invoked for every Data message (the fast path — no mask check).
type DataFunc func(msg *Message)

// OtherFunc is invoked for messages matching its registered mask.
type OtherFunc func(msg *Message)

// subscription identity, matching spec.md §4.1: callbacks are identified by
// the (function, user) pair. Go has no raw function-pointer equality for
// closures, so identity here is established by the opaque Handle returned
// from the Add* methods (per the §9 design note preferring a safe handle
// over a (fnptr,userptr) pair).
type Handle uint64

type dataSub struct {
	handle Handle
	fn     DataFunc
	user   any
}

type otherSub struct {
	handle Handle
	fn     OtherFunc
	user   any
	mask   TypeMask
}

// Callbacks holds a channel's two callback lists: a fast-path Data-only list
// and a masked "other" list covering Control/State/Channel-meta messages.
type Callbacks struct {
	mu      sync.RWMutex
	nextID  Handle
	data    []dataSub
	other   []otherSub
	byOwner map[any]Handle // allocated by NewCallbacks but not read; AddOther merges masks by scanning other
}

// NewCallbacks returns an initialised, empty Callbacks.
func NewCallbacks() *Callbacks {
	return &Callbacks{byOwner: make(map[any]Handle)}
}

// AddData registers a Data-only callback and returns its Handle.
func (c *Callbacks) AddData(user any, fn DataFunc) Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	h := c.nextID
	c.data = append(c.data, dataSub{handle: h, fn: fn, user: user})
	return h
}

// AddOther registers a callback for message types in mask. If `user` already
// has a registered "other" callback, the mask is merged (extended) into the
// existing subscription rather than duplicating the entry — this is the
// "re-registering the same pair extends the mask" rule from spec.md §4.1.
func (c *Callbacks) AddOther(user any, mask TypeMask, fn OtherFunc) Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.other {
		if c.other[i].user == user {
			c.other[i].mask |= mask
			return c.other[i].handle
		}
	}
	c.nextID++
	h := c.nextID
	c.other = append(c.other, otherSub{handle: h, fn: fn, user: user, mask: mask})
	return h
}

// Remove unregisters a callback by handle, from either list.
func (c *Callbacks) Remove(h Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, s := range c.data {
		if s.handle == h {
			c.data = append(c.data[:i], c.data[i+1:]...)
			return
		}
	}
	for i, s := range c.other {
		if s.handle == h {
			c.other = append(c.other[:i], c.other[i+1:]...)
			return
		}
	}
}

// RemoveUser unregisters every callback owned by user, from both lists.
func (c *Callbacks) RemoveUser(user any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.data[:0:0]
	for _, s := range c.data {
		if s.user != user {
			kept = append(kept, s)
		}
	}
	c.data = kept
	keptOther := c.other[:0:0]
	for _, s := range c.other {
		if s.user != user {
			keptOther = append(keptOther, s)
		}
	}
	c.other = keptOther
}

// Dispatch delivers msg to every matching callback: the fast-path Data list
// when msg.Type == TypeData (unconditionally — the Data list has no mask),
// plus every "other" subscriber whose mask includes msg.Type. State
// messages always reach "other" subscribers whose mask includes
// MaskState, even if they didn't also subscribe to MaskData, matching
// spec.md §4.1 "State messages are delivered even when callback mask
// excludes Data."
func (c *Callbacks) Dispatch(msg *Message) {
	c.mu.RLock()
	data := append([]dataSub(nil), c.data...)
	other := append([]otherSub(nil), c.other...)
	c.mu.RUnlock()

	if msg.Type == TypeData {
		for _, s := range data {
			s.fn(msg)
		}
	}
	for _, s := range other {
		if s.mask.Has(msg.Type) {
			s.fn(msg)
		}
	}
}

// Len reports the number of subscriptions in the Data list and in the
// "other" list; used only by tests asserting fan-out identity semantics.
func (c *Callbacks) Len() (dataN, otherN int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data), len(c.other)
}
