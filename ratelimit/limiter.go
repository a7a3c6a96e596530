// Package ratelimit implements the token bucket that throttles key refreshes.
//
// A refresh is triggered by an unknown key id, which a sender controls. The
// bucket bounds how often such ids can force a round trip to the key
// endpoint.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter is a token bucket that is safe for concurrent use.
type Limiter struct {
	mu       sync.Mutex
	rate     float64 // tokens per second
	burst    float64
	tokens   float64
	lastFill time.Time
	now      func() time.Time
}

// New creates a limiter that refills at perSecond tokens per second up to
// burst tokens. The bucket starts full. A perSecond of 0 or less means
// unlimited.
func New(perSecond float64, burst int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	l := &Limiter{
		rate:  perSecond,
		burst: float64(burst),
		now:   time.Now,
	}
	l.tokens = l.burst
	l.lastFill = l.now()
	return l
}

// SetClock replaces the time source. Intended for tests.
func (l *Limiter) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
	l.lastFill = now()
}

// Allow consumes one token if available.
func (l *Limiter) Allow() bool {
	if l == nil || l.rate <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.refill()
	if l.tokens >= 1 {
		l.tokens--
		return true
	}
	return false
}

// Reset refills the bucket.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tokens = l.burst
	l.lastFill = l.now()
}

func (l *Limiter) refill() {
	now := l.now()
	elapsed := now.Sub(l.lastFill).Seconds()
	if elapsed <= 0 {
		return
	}
	l.tokens += elapsed * l.rate
	if l.tokens > l.burst {
		l.tokens = l.burst
	}
	l.lastFill = now
}
