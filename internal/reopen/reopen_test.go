package reopen

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestState_ExponentialBackoffSequence(t *testing.T) {
	cfg := Config{TimeoutMin: 100 * time.Millisecond, TimeoutMax: time.Second, TrembleMin: time.Second}
	s := New(cfg, "obj1")

	now := time.Unix(0, 0)
	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		time.Second,
		time.Second,
	}
	for i, w := range want {
		got := s.OnOpeningError(now)
		require.Equalf(t, w, got, "attempt %d", i+1)
	}
}

func TestState_CleanCloseResetsCount(t *testing.T) {
	cfg := DefaultConfig()
	s := New(cfg, "obj2")
	now := time.Unix(0, 0)
	s.OnOpeningError(now)
	s.OnOpeningError(now)
	require.Equal(t, 2, s.Count())

	s.OnCleanClose(now)
	require.Equal(t, 0, s.Count())
}

func TestState_ActiveFailureWithinTrembleIsUnstable(t *testing.T) {
	cfg := Config{TimeoutMin: 10 * time.Millisecond, TimeoutMax: 100 * time.Millisecond, TrembleMin: time.Second}
	s := New(cfg, "obj3")
	now := time.Unix(0, 0)
	s.OnActive(now)

	delay := s.OnActiveFailure(now.Add(10 * time.Millisecond))
	require.Greater(t, delay, time.Duration(0))
	require.Equal(t, 1, s.Count())
}

func TestState_ActiveFailureAfterTrembleIsImmediate(t *testing.T) {
	cfg := Config{TimeoutMin: 10 * time.Millisecond, TimeoutMax: 100 * time.Millisecond, TrembleMin: 50 * time.Millisecond}
	s := New(cfg, "obj4")
	now := time.Unix(0, 0)
	s.OnActive(now)

	delay := s.OnActiveFailure(now.Add(time.Second))
	require.Equal(t, time.Duration(0), delay)
	require.Equal(t, 0, s.Count())
}

func TestState_ReadyReflectsNextAttempt(t *testing.T) {
	cfg := DefaultConfig()
	s := New(cfg, "obj5")
	now := time.Unix(0, 0)
	s.OnOpeningError(now)
	require.False(t, s.Ready(now))
	require.True(t, s.Ready(now.Add(cfg.TimeoutMin)))
}
