// Package ratelimit implements the supplemented rate-limiting channel
// decorator noted in SPEC_FULL.md §5.1: Limiter.Allow fails with
// ErrRateLimited once a configured sliding-window rate is exceeded,
// built directly on the teacher's catrate.Limiter. The package does not
// wrap a channel's Post itself; a caller checks Allow before posting.
package ratelimit

import (
	"errors"
	"time"

	catrate "github.com/joeycumines/go-catrate"
)

// ErrRateLimited is returned by Allow once the configured rate has been
// exceeded for a category.
var ErrRateLimited = errors.New("ratelimit: rate exceeded")

// Limiter wraps catrate.Limiter with the single-category usage a channel
// decorator needs: every post against the wrapped channel shares one
// category (the channel's own name).
type Limiter struct {
	inner    *catrate.Limiter
	category string
}

// New constructs a Limiter enforcing rates (duration -> max event count)
// for one channel, identified by name.
func New(name string, rates map[time.Duration]int) *Limiter {
	return &Limiter{inner: catrate.NewLimiter(rates), category: name}
}

// Allow attempts to register one post event, returning ErrRateLimited
// (wrapping the earliest retry time) if the rate has been exceeded.
func (l *Limiter) Allow() error {
	next, ok := l.inner.Allow(l.category)
	if ok {
		return nil
	}
	return &LimitedError{RetryAt: next}
}

// LimitedError carries the earliest time a post may be retried.
type LimitedError struct {
	RetryAt time.Time
}

func (e *LimitedError) Error() string { return "ratelimit: rate exceeded" }

func (e *LimitedError) Unwrap() error { return ErrRateLimited }
