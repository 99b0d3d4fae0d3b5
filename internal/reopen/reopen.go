// Package reopen implements the per-object reopen backoff state machine
// described in spec.md §4.6 ("Reopen"): exponential backoff on repeated
// Opening->Error failures, immediate reopen after a sustained Active
// period, and tremble detection for unstable starts that fail again
// shortly after becoming Active.
package reopen

import (
	"time"

	catrate "github.com/joeycumines/go-catrate"
)

// Config holds the timing parameters spec.md §4.6 attaches to every
// processor Object: `(timeout_min, timeout_max, tremble_min)`.
type Config struct {
	TimeoutMin time.Duration
	TimeoutMax time.Duration
	TrembleMin time.Duration
}

// DefaultConfig matches the example walked through in spec.md §6 ("Reopen
// backoff"): reopen-timeout-min=100ms, reopen-timeout-max=1s.
func DefaultConfig() Config {
	return Config{
		TimeoutMin: 100 * time.Millisecond,
		TimeoutMax: time.Second,
		TrembleMin: time.Second,
	}
}

// State tracks one object's reopen backoff progress: `(count, next_ts,
// active_ts)` from spec.md §4.6, plus a catrate.Limiter used to flag rapid
// repeated Active->Error cycles as tremble, supplementing the core
// timestamp check with the pack's sliding-window rate-limiting idiom
// (SPEC_FULL.md §3).
type State struct {
	cfg      Config
	count    int
	nextTS   time.Time
	activeTS time.Time
	tremble  *catrate.Limiter
	category string
}

// New constructs reopen State for one object, identified by name (used as
// the tremble limiter's category key).
func New(cfg Config, objectName string) *State {
	return &State{
		cfg:      cfg,
		category: objectName,
		tremble: catrate.NewLimiter(map[time.Duration]int{
			cfg.trembleOrDefault(): 2,
		}),
	}
}

func (c Config) trembleOrDefault() time.Duration {
	if c.TrembleMin <= 0 {
		return time.Second
	}
	return c.TrembleMin
}

// OnActive records that the object transitioned to Active, per spec.md
// §4.6 ("On Active, active_ts is recorded").
func (s *State) OnActive(now time.Time) {
	s.activeTS = now
}

// OnOpeningError computes the next retry delay after an Opening->Error
// transition: `min(timeout_max, timeout_min * 2^(count-1))`, and
// increments count, capping it at the value corresponding to timeout_max
// so it never overflows.
func (s *State) OnOpeningError(now time.Time) time.Duration {
	if s.count == 0 || s.cfg.TimeoutMax <= 0 || s.backoffDelay() < s.cfg.TimeoutMax {
		s.count++
	}
	delay := s.backoffDelay()
	s.nextTS = now.Add(delay)
	return delay
}

// OnActiveFailure handles an Active->Error or Active->Closing transition.
// If it occurs within TrembleMin of the recorded active_ts, it is treated
// as an unstable start and the same exponential backoff as
// OnOpeningError applies; otherwise it is an immediate reopen with count
// reset to 0, per spec.md §4.6's "Active->Error after tremble_min:
// immediate reopen, reset count".
func (s *State) OnActiveFailure(now time.Time) time.Duration {
	unstable := !s.activeTS.IsZero() && now.Sub(s.activeTS) < s.cfg.trembleOrDefault()
	if _, allowed := s.tremble.Allow(s.category); !allowed {
		unstable = true
	}
	if unstable {
		return s.OnOpeningError(now)
	}
	s.count = 0
	s.nextTS = now
	return 0
}

// OnCleanClose handles a Closed-without-error transition: immediate
// reopen with count=0, per spec.md §4.6.
func (s *State) OnCleanClose(now time.Time) time.Duration {
	s.count = 0
	s.nextTS = now
	return 0
}

func (s *State) backoffDelay() time.Duration {
	if s.cfg.TimeoutMin <= 0 {
		return 0
	}
	delay := s.cfg.TimeoutMin
	for i := 1; i < s.count && delay < s.cfg.TimeoutMax; i++ {
		delay *= 2
	}
	if s.cfg.TimeoutMax > 0 && delay > s.cfg.TimeoutMax {
		delay = s.cfg.TimeoutMax
	}
	return delay
}

// NextAttempt returns the timestamp of the next scheduled reopen attempt.
func (s *State) NextAttempt() time.Time { return s.nextTS }

// Count returns the current consecutive-failure count.
func (s *State) Count() int { return s.count }

// Ready reports whether the next reopen attempt is due.
func (s *State) Ready(now time.Time) bool {
	return !now.Before(s.nextTS)
}
