// Package ratelimit implements per-subject request admission control with a
// token bucket. Subjects are arbitrary string keys (source address,
// invitation code); unrelated subjects never contend beyond the map lock.
package ratelimit

import (
	"sync"
	"time"

	"membershipinitiation/internal/domain"
)

// Config holds the externally configurable limiter policy.
type Config struct {
	// Requests admitted per Window at steady state. Also the number of
	// tokens a freshly seen subject starts with.
	Requests int
	// Burst is extra bucket headroom a subject may accumulate while idle.
	Burst int
	// Window is the measurement window for Requests.
	Window time.Duration
}

type bucket struct {
	tokens   float64
	lastSeen time.Time
}

// Limiter is a token-bucket rate limiter keyed by subject.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	cfg     Config
	now     func() time.Time
}

// New returns a Limiter with the given policy and starts a background sweep
// of stale buckets.
func New(cfg Config) *Limiter {
	l := newLimiter(cfg)
	go func() {
		// l.cfg, not cfg: the sweep interval must be the normalized window.
		ticker := time.NewTicker(l.cfg.Window)
		defer ticker.Stop()
		for range ticker.C {
			l.cleanup()
		}
	}()
	return l
}

func newLimiter(cfg Config) *Limiter {
	if cfg.Requests <= 0 {
		cfg.Requests = 1
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	return &Limiter{
		buckets: make(map[string]*bucket),
		cfg:     cfg,
		now:     time.Now,
	}
}

var _ domain.RateLimiter = (*Limiter)(nil)

// Allow consumes one token for key. When the bucket is empty it returns
// false and the wait until the next token accrues. Allow never mutates
// anything beyond the bucket itself, so a denied caller has no state to roll
// back.
func (l *Limiter) Allow(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(l.cfg.Requests), lastSeen: now}
		l.buckets[key] = b
	} else {
		l.refill(b, now)
	}

	if b.tokens < 1 {
		perToken := l.cfg.Window / time.Duration(l.cfg.Requests)
		deficit := 1 - b.tokens
		return false, time.Duration(deficit * float64(perToken))
	}
	b.tokens--
	return true, 0
}

func (l *Limiter) refill(b *bucket, now time.Time) {
	elapsed := now.Sub(b.lastSeen)
	if elapsed > 0 {
		rate := float64(l.cfg.Requests) / float64(l.cfg.Window)
		b.tokens += rate * float64(elapsed)
		capacity := float64(l.cfg.Requests + l.cfg.Burst)
		if b.tokens > capacity {
			b.tokens = capacity
		}
	}
	b.lastSeen = now
}

func (l *Limiter) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-2 * l.cfg.Window)
	for key, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, key)
		}
	}
}
