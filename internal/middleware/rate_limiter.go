package middleware

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter decides whether the caller identified by key may proceed. When
// it may not, wait reports how long until a token is available.
type RateLimiter interface {
	Allow(key string) (ok bool, wait time.Duration)
}

type bucket struct {
	tokens *rate.Limiter
	used   time.Time
}

// KeyedLimiter holds one token bucket per key and drops buckets that have
// been idle longer than idle.
type KeyedLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	every   rate.Limit
	burst   int
	idle    time.Duration
	swept   time.Time
	clock   func() time.Time
}

// NewIPRateLimiter allows requests per window for each key on top of an
// initial burst. Non-positive arguments fall back to permissive defaults.
func NewIPRateLimiter(requests int, window time.Duration, burst int, idle time.Duration) *KeyedLimiter {
	requests = max(requests, 1)
	burst = max(burst, 1)
	if window <= 0 {
		window = time.Second
	}
	if idle <= 0 {
		idle = 5 * time.Minute
	}

	return &KeyedLimiter{
		buckets: make(map[string]*bucket),
		every:   rate.Every(window / time.Duration(requests)),
		burst:   burst,
		idle:    idle,
		clock:   time.Now,
	}
}

// Allow takes one token from key's bucket.
func (l *KeyedLimiter) Allow(key string) (bool, time.Duration) {
	if key == "" {
		key = "unknown"
	}

	l.mu.Lock()
	now := l.clock()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: rate.NewLimiter(l.every, l.burst)}
		l.buckets[key] = b
	}
	b.used = now
	l.sweepLocked(now)
	l.mu.Unlock()

	res := b.tokens.ReserveN(now, 1)
	if !res.OK() {
		return false, time.Duration(float64(time.Second) / float64(l.every))
	}
	if wait := res.DelayFrom(now); wait > 0 {
		res.CancelAt(now)
		return false, wait
	}
	return true, 0
}

// sweepLocked drops idle buckets, at most twice per idle period.
func (l *KeyedLimiter) sweepLocked(now time.Time) {
	if now.Sub(l.swept) < l.idle/2 {
		return
	}
	l.swept = now
	for key, b := range l.buckets {
		if now.Sub(b.used) > l.idle {
			delete(l.buckets, key)
		}
	}
}

func (l *KeyedLimiter) tracked(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.buckets[key]
	return ok
}
