package channel

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestCallbacks_FanOutMaskMerge verifies spec.md §8: "after
// callback_add((cb,user), mask_A) followed by callback_add((cb,user),
// mask_B), (cb,user) is invoked exactly once per message whose type is in
// mask_A ∪ mask_B."
func TestCallbacks_FanOutMaskMerge(t *testing.T) {
	cb := NewCallbacks()
	type owner struct{}
	user := &owner{}

	var calls []Type
	fn := func(msg *Message) { calls = append(calls, msg.Type) }

	cb.AddOther(user, MaskControl, fn)
	h := cb.AddOther(user, MaskState, fn)
	_ = h

	dataN, otherN := cb.Len()
	require.Equal(t, 0, dataN)
	require.Equal(t, 1, otherN, "merging into the same user must not duplicate the subscription")

	cb.Dispatch(&Message{Type: TypeControl})
	cb.Dispatch(&Message{Type: TypeState})
	cb.Dispatch(&Message{Type: TypeChannel}) // not subscribed, must not fire

	require.Equal(t, []Type{TypeControl, TypeState}, calls)
}

func TestCallbacks_DataFastPathIndependentOfOtherMask(t *testing.T) {
	cb := NewCallbacks()
	type owner struct{}
	user := &owner{}

	var dataCalls, otherCalls int
	cb.AddData(user, func(msg *Message) { dataCalls++ })
	cb.AddOther(user, MaskState, func(msg *Message) { otherCalls++ })

	cb.Dispatch(&Message{Type: TypeData})
	require.Equal(t, 1, dataCalls)
	require.Equal(t, 0, otherCalls)

	cb.Dispatch(&Message{Type: TypeState})
	require.Equal(t, 1, dataCalls)
	require.Equal(t, 1, otherCalls)
}

func TestCallbacks_RemoveUser(t *testing.T) {
	cb := NewCallbacks()
	type owner struct{}
	user := &owner{}
	calls := 0
	cb.AddData(user, func(msg *Message) { calls++ })
	cb.AddOther(user, MaskAll, func(msg *Message) { calls++ })

	cb.RemoveUser(user)
	cb.Dispatch(&Message{Type: TypeData})
	cb.Dispatch(&Message{Type: TypeControl})
	require.Equal(t, 0, calls)
}
