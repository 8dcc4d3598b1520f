package security

import (
	"errors"
	"sync"
	"time"
)

// ErrRateLimited is returned when a request exceeds the rate limit.
var ErrRateLimited = errors.New("rate limit exceeded")

// Rate limit buckets.
const (
	BucketSession = "session"
	BucketCall    = "call"
	BucketAuth    = "auth_failure"
)

// RateLimitConfig holds per-minute limits for the HTTP surface.
// A negative value disables the bucket; zero selects the default.
type RateLimitConfig struct {
	SessionsPerMin     int `yaml:"sessions_per_min"`
	CallsPerMin        int `yaml:"calls_per_min"`
	AuthFailuresPerMin int `yaml:"auth_failures_per_min"`
}

func rateLimitConfigDefaults() RateLimitConfig {
	return RateLimitConfig{
		SessionsPerMin:     60,
		CallsPerMin:        600,
		AuthFailuresPerMin: 20,
	}
}

// RateLimiter implements sliding window rate limiting.
// Each bucket tracks timestamps of recent events within its window.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

type bucket struct {
	window time.Duration
	limit  int
	events []time.Time
}

// NewRateLimiter creates a rate limiter with the given config.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	defaults := rateLimitConfigDefaults()
	limits := map[string][2]int{
		BucketSession: {cfg.SessionsPerMin, defaults.SessionsPerMin},
		BucketCall:    {cfg.CallsPerMin, defaults.CallsPerMin},
		BucketAuth:    {cfg.AuthFailuresPerMin, defaults.AuthFailuresPerMin},
	}

	rl := &RateLimiter{
		now:     time.Now,
		buckets: make(map[string]*bucket, len(limits)),
	}
	for name, l := range limits {
		limit := l[0]
		switch {
		case limit < 0:
			continue
		case limit == 0:
			limit = l[1]
		}
		rl.buckets[name] = &bucket{window: time.Minute, limit: limit}
	}
	return rl
}

// Allow records one event in the named bucket. It returns ErrRateLimited
// when the bucket is full. Unknown or disabled buckets, and a nil limiter,
// always allow.
func (rl *RateLimiter) Allow(kind string) error {
	if rl == nil {
		return nil
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[kind]
	if !ok {
		return nil
	}

	now := rl.now()
	b.evict(now)

	if len(b.events) >= b.limit {
		return ErrRateLimited
	}

	b.events = append(b.events, now)
	return nil
}

// Exhausted reports whether the named bucket is currently full without
// recording an event.
func (rl *RateLimiter) Exhausted(kind string) bool {
	if rl == nil {
		return false
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[kind]
	if !ok {
		return false
	}
	b.evict(rl.now())
	return len(b.events) >= b.limit
}

// evict removes events outside the sliding window.
func (b *bucket) evict(now time.Time) {
	cutoff := now.Add(-b.window)
	i := 0
	for i < len(b.events) && b.events[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		b.events = b.events[i:]
	}
}
