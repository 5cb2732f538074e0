// Package ratelimit throttles inbound API calls per tenant with a token bucket.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter holds one token bucket per tenant. Each bucket holds up to
// perMinute tokens and refills continuously at perMinute tokens per minute.
type Limiter struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	perSecond float64
	burst     float64
	now       func() time.Time
}

type bucket struct {
	tokens   float64
	lastFill time.Time
}

// New returns a Limiter allowing perMinute requests per tenant.
// A perMinute of 0 or less disables limiting.
func New(perMinute int) *Limiter {
	return &Limiter{
		buckets:   make(map[string]*bucket),
		perSecond: float64(perMinute) / 60,
		burst:     float64(perMinute),
		now:       time.Now,
	}
}

// Enabled reports whether the limiter throttles at all.
func (l *Limiter) Enabled() bool {
	return l != nil && l.burst > 0
}

// Allow takes one token from the tenant's bucket.
func (l *Limiter) Allow(tenantID string) bool {
	if !l.Enabled() {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[tenantID]
	if !ok {
		b = &bucket{tokens: l.burst, lastFill: now}
		l.buckets[tenantID] = b
	}

	b.tokens += now.Sub(b.lastFill).Seconds() * l.perSecond
	if b.tokens > l.burst {
		b.tokens = l.burst
	}
	b.lastFill = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--

	return true
}

// Reset forgets the tenant's bucket.
func (l *Limiter) Reset(tenantID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, tenantID)
}

// Sweep drops buckets untouched for longer than idle and returns how many
// were removed. A bucket idle that long would have refilled anyway.
func (l *Limiter) Sweep(idle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-idle)
	removed := 0
	for tenantID, b := range l.buckets {
		if b.lastFill.Before(cutoff) {
			delete(l.buckets, tenantID)
			removed++
		}
	}
	return removed
}
