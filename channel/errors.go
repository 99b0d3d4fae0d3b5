package channel

import "errors"

// Sentinel errors, grounded on the teacher's eventloop/errors.go idiom: a
// small flat set of package-level sentinels, wrapped at each call site with
// fmt.Errorf("...: %w", err) rather than a bespoke error-code enum.
var (
	// ErrInvalidTransition is returned by Open/Close/Fail when the requested
	// transition is not permitted from the channel's current state.
	ErrInvalidTransition = errors.New("channel: invalid state transition")
	// ErrPostNotAllowed is returned by Post when the channel's state/policy
	// combination forbids sending (spec.md §4.1 "Post policy").
	ErrPostNotAllowed = errors.New("channel: post not allowed in current state")
	// ErrClosed is returned by operations attempted on a Destroyed channel.
	ErrClosed = errors.New("channel: destroyed")
	// ErrNoChild is returned by ChildByTag when the Proxy cap is unset or
	// no matching child is present.
	ErrNoChild = errors.New("channel: no child available for cast")
	// ErrBadAddr is returned by transports when Post targets an address that
	// doesn't match any known peer.
	ErrBadAddr = errors.New("channel: invalid or stale address")
)
