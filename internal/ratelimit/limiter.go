package ratelimit

import (
	"sync"
	"sync/atomic"
	"time"
)

// bucket is one key's tumbling window. All fields are guarded by mu.
type bucket struct {
	mu           sync.Mutex
	count        int
	windowStart  time.Time
	lastAccessed time.Time
	evicted      bool
}

// Decision is the outcome of a single check.
type Decision struct {
	Allowed bool
	Limit   int
	// Remaining is 0 on rejection.
	Remaining int
	// Reset is the unix time at which the current window ends.
	Reset int64
	// RetryAfter is in whole seconds and only set on rejection.
	RetryAfter int64
}

// Limiter is an in-process tumbling window counter keyed by string. Buckets
// live in a sync.Map and are mutated under a per-bucket mutex, so unrelated
// keys never contend.
//
// The admission decision is not paired with the caller's response: two
// requests racing at the boundary of the same key can both be admitted.
type Limiter struct {
	cfg     Config
	buckets sync.Map // map[string]*bucket
	size    atomic.Int64
	now     func() time.Time
}

type Option func(*Limiter)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

func NewLimiter(cfg Config, opts ...Option) *Limiter {
	l := &Limiter{
		cfg: cfg,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Limiter) Config() Config {
	return l.cfg
}

// Len returns the number of live buckets.
func (l *Limiter) Len() int {
	return int(l.size.Load())
}

// Check counts one request against key with the given per-window limit.
func (l *Limiter) Check(key string, limit int) Decision {
	now := l.now()

	if l.Len() > l.cfg.MaxBuckets/2 {
		l.Cleanup(now)
	}

	for {
		b := l.load(key, now)

		b.mu.Lock()
		if b.evicted {
			// Lost a race with Cleanup; the bucket is no longer in the map.
			b.mu.Unlock()
			continue
		}
		d := l.admit(b, limit, now)
		b.mu.Unlock()
		return d
	}
}

func (l *Limiter) load(key string, now time.Time) *bucket {
	if v, ok := l.buckets.Load(key); ok {
		return v.(*bucket)
	}
	v, loaded := l.buckets.LoadOrStore(key, &bucket{windowStart: now, lastAccessed: now})
	if !loaded {
		l.size.Add(1)
	}
	return v.(*bucket)
}

// admit must be called with b.mu held.
func (l *Limiter) admit(b *bucket, limit int, now time.Time) Decision {
	window := l.cfg.Window
	b.lastAccessed = now

	if now.Sub(b.windowStart) >= window {
		b.windowStart = now
		b.count = 0
	}

	reset := b.windowStart.Add(window).Unix()

	if b.count >= limit {
		retryAfter := int64(window/time.Second) - int64(now.Sub(b.windowStart)/time.Second)
		if retryAfter < 0 {
			retryAfter = 0
		}
		return Decision{
			Allowed:    false,
			Limit:      limit,
			Remaining:  0,
			Reset:      reset,
			RetryAfter: retryAfter,
		}
	}

	b.count++
	remaining := limit - b.count
	if remaining < 0 {
		remaining = 0
	}

	return Decision{
		Allowed:   true,
		Limit:     limit,
		Remaining: remaining,
		Reset:     reset,
	}
}

// Cleanup evicts every bucket idle for at least the configured TTL and
// returns how many were removed.
func (l *Limiter) Cleanup(now time.Time) int {
	ttl := l.cfg.BucketTTL
	evicted := 0

	l.buckets.Range(func(key, value any) bool {
		b := value.(*bucket)
		b.mu.Lock()
		if !b.evicted && now.Sub(b.lastAccessed) >= ttl {
			b.evicted = true
			if l.buckets.CompareAndDelete(key, b) {
				l.size.Add(-1)
				evicted++
			}
		}
		b.mu.Unlock()
		return true
	})

	return evicted
}
