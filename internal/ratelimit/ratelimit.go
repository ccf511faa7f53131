// Package ratelimit throttles chat turns per user. Every turn fans out
// into LLM calls and possibly remote Cloud Foundry actions, so the
// limiter sits in front of the gateway handlers rather than around any
// single downstream call.
//
// Token bucket, refilled lazily on each Allow call. No background
// goroutines; idle buckets are dropped by Prune.
package ratelimit

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"
)

// ErrRateLimited is returned when a user has exhausted their turn budget.
var ErrRateLimited = errors.New("rate limit exceeded")

// Config configures the per-user limiter.
type Config struct {
	TurnsPerMinute int // Tokens added per minute. 0 = unlimited (Allow always succeeds).
	Burst          int // Maximum tokens in a bucket. 0 = defaults to TurnsPerMinute.
}

// Error carries the wait hint for a rejected turn. Unwraps to ErrRateLimited.
type Error struct {
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry in %s", e.RetryAfter.Round(time.Second))
}

func (e *Error) Unwrap() error { return ErrRateLimited }

// Limiter is a per-user token bucket. Each user gets an independent
// bucket; one user cannot exhaust another's quota.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    float64 // tokens per second
	burst   float64
	now     func() time.Time
}

type bucket struct {
	tokens   float64
	lastFill time.Time
}

// NewLimiter creates a limiter from cfg. A zero TurnsPerMinute disables
// limiting entirely.
func NewLimiter(cfg Config) *Limiter {
	burst := cfg.Burst
	if burst <= 0 {
		burst = cfg.TurnsPerMinute
	}
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		buckets: make(map[string]*bucket),
		rate:    float64(cfg.TurnsPerMinute) / 60.0,
		burst:   float64(burst),
		now:     time.Now,
	}
}

// WithClock overrides the time source. Tests only.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Allow consumes one token from userID's bucket. On an empty bucket it
// returns an *Error whose RetryAfter says when one token will be back.
func (l *Limiter) Allow(userID string) error {
	if l.rate <= 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[userID]
	if !ok {
		// First turn starts with a full bucket.
		b = &bucket{tokens: l.burst, lastFill: now}
		l.buckets[userID] = b
	}

	elapsed := now.Sub(b.lastFill).Seconds()
	b.tokens = math.Min(b.tokens+elapsed*l.rate, l.burst)
	b.lastFill = now

	if b.tokens < 1 {
		wait := time.Duration((1 - b.tokens) / l.rate * float64(time.Second))
		return &Error{RetryAfter: wait}
	}
	b.tokens--
	return nil
}

// Prune drops buckets idle longer than maxIdle and reports how many were
// removed. Called periodically by the gateway so the map does not grow
// with every user id ever seen.
func (l *Limiter) Prune(maxIdle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-maxIdle)
	removed := 0
	for userID, b := range l.buckets {
		if b.lastFill.Before(cutoff) {
			delete(l.buckets, userID)
			removed++
		}
	}
	return removed
}
