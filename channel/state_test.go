package channel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition_AllowedSet(t *testing.T) {
	allowed := [][2]State{
		{Closed, Opening},
		{Opening, Active},
		{Opening, Error},
		{Active, Closing},
		{Active, Error},
		{Closing, Closed},
		{Closing, Error},
		{Error, Closed},
	}
	for _, pair := range allowed {
		assert.Truef(t, CanTransition(pair[0], pair[1]), "%s -> %s should be allowed", pair[0], pair[1])
	}
}

func TestCanTransition_RejectsOutsideAllowedSet(t *testing.T) {
	rejected := [][2]State{
		{Closed, Active},
		{Closed, Closing},
		{Opening, Closing},
		{Active, Opening},
		{Closing, Opening},
		{Closing, Active},
		{Error, Opening},
		{Error, Active},
	}
	for _, pair := range rejected {
		assert.Falsef(t, CanTransition(pair[0], pair[1]), "%s -> %s should be rejected", pair[0], pair[1])
	}
}

func TestCanTransition_DestroyFromAnyState(t *testing.T) {
	for _, s := range []State{Closed, Opening, Active, Closing, Error, Destroy} {
		assert.True(t, CanTransition(s, Destroy))
	}
}

func TestFastState_TryTransition(t *testing.T) {
	s := NewFastState()
	require.Equal(t, Closed, s.Load())

	require.True(t, s.TryTransition(Closed, Opening))
	require.Equal(t, Opening, s.Load())

	// invalid transition fails and leaves state unchanged
	require.False(t, s.TryTransition(Opening, Closing))
	require.Equal(t, Opening, s.Load())

	require.True(t, s.TryTransition(Opening, Active))
	require.Equal(t, Active, s.Load())
}

func TestFastState_StateMonotonicity(t *testing.T) {
	// Drive every channel through its full lifecycle and assert that at
	// each step, only a transition present in the allowed set occurs
	// (spec.md §8 "State monotonicity per transition").
	s := NewFastState()
	path := []State{Opening, Active, Closing, Closed}
	prev := Closed
	for _, next := range path {
		require.True(t, CanTransition(prev, next))
		require.True(t, s.TryTransition(prev, next))
		prev = next
	}
}
