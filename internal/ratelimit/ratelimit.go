// Package ratelimit gates the pipeline with a per-identity token bucket.
package ratelimit

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

// Config sizes the per-identity buckets.
type Config struct {
	// Capacity is the bucket size: the number of requests an idle identity
	// may burst.
	Capacity int
	// Interval is the time in which a full bucket's worth of tokens refills.
	// Capacity 10 with a one-minute interval yields "10 per minute".
	Interval time.Duration
}

// identityBucket tracks one identity's limiter and when it was last seen.
type identityBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter admits or denies requests per identity. Acquire and decrement are a
// single atomic step inside the bucket, so concurrent requests for the same
// identity cannot over-admit. Denials consume nothing.
type Limiter struct {
	cfg     Config
	clock   clockwork.Clock
	mu      sync.Mutex
	buckets map[string]*identityBucket
}

// New creates a limiter. The clock is injected so refill behaviour is
// deterministic under test.
func New(cfg Config, clock clockwork.Clock) *Limiter {
	return &Limiter{
		cfg:     cfg,
		clock:   clock,
		buckets: make(map[string]*identityBucket),
	}
}

// Allow reports whether the identity may proceed. When denied, retryAfter is
// the wait until a token becomes available.
func (l *Limiter) Allow(identity string) (bool, time.Duration) {
	now := l.clock.Now()
	bucket := l.bucket(identity, now)

	reservation := bucket.limiter.ReserveN(now, 1)
	if !reservation.OK() {
		return false, l.cfg.Interval
	}
	if delay := reservation.DelayFrom(now); delay > 0 {
		// Would exceed the rate — give the token back and deny.
		reservation.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// Sweep drops buckets idle for longer than maxIdle. Call periodically from a
// background goroutine.
func (l *Limiter) Sweep(maxIdle time.Duration) {
	now := l.clock.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for identity, b := range l.buckets {
		if now.Sub(b.lastSeen) > maxIdle {
			delete(l.buckets, identity)
		}
	}
}

func (l *Limiter) bucket(identity string, now time.Time) *identityBucket {
	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.buckets[identity]; ok {
		b.lastSeen = now
		return b
	}
	perSecond := float64(l.cfg.Capacity) / l.cfg.Interval.Seconds()
	b := &identityBucket{
		limiter:  rate.NewLimiter(rate.Limit(perSecond), l.cfg.Capacity),
		lastSeen: now,
	}
	l.buckets[identity] = b
	return b
}
