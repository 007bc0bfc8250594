// Package ratelimit throttles sign-in attempts per client key with token
// buckets. Idle buckets are evicted once they would have refilled anyway.
package ratelimit

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
)

const defaultMaxKeys = 10000

// Config configures a Limiter. A zero Rate disables limiting.
type Config struct {
	Rate    rate.Limit // attempts per second
	Burst   int
	MaxKeys int
}

// PerMinute converts an attempts-per-minute budget into a Config
func PerMinute(attempts, burst int) Config {
	if attempts <= 0 {
		return Config{}
	}
	return Config{Rate: rate.Limit(float64(attempts) / 60), Burst: burst}
}

// Result describes the outcome of one attempt
type Result struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Limiter holds one token bucket per key
type Limiter struct {
	cfg     Config
	mu      sync.Mutex
	buckets *expirable.LRU[string, *rate.Limiter]
	now     func() time.Time
}

// New creates a Limiter
func New(cfg Config) *Limiter {
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.MaxKeys <= 0 {
		cfg.MaxKeys = defaultMaxKeys
	}
	return &Limiter{
		cfg:     cfg,
		buckets: expirable.NewLRU[string, *rate.Limiter](cfg.MaxKeys, nil, refillTime(cfg)),
		now:     time.Now,
	}
}

// refillTime is how long an idle bucket takes to become full again
func refillTime(cfg Config) time.Duration {
	if cfg.Rate <= 0 || cfg.Rate == rate.Inf {
		return time.Minute
	}
	d := time.Duration(float64(cfg.Burst) / float64(cfg.Rate) * float64(time.Second))
	if d < time.Minute {
		d = time.Minute
	}
	return d
}

// Enabled reports whether the limiter refuses anything at all
func (l *Limiter) Enabled() bool {
	return l != nil && l.cfg.Rate > 0 && l.cfg.Rate != rate.Inf
}

// Allow consumes one attempt for key
func (l *Limiter) Allow(key string) Result {
	if !l.Enabled() {
		return Result{Allowed: true}
	}

	now := l.now()
	bucket := l.bucket(key)
	if bucket.AllowN(now, 1) {
		return Result{Allowed: true}
	}

	r := bucket.ReserveN(now, 1)
	delay := r.DelayFrom(now)
	r.CancelAt(now)
	if delay < time.Second {
		delay = time.Second
	}
	return Result{Allowed: false, RetryAfter: delay}
}

// Reset forgets the bucket for key, e.g. after a successful sign-in
func (l *Limiter) Reset(key string) {
	if l.Enabled() {
		l.buckets.Remove(key)
	}
}

// Keys returns the number of tracked keys
func (l *Limiter) Keys() int {
	if !l.Enabled() {
		return 0
	}
	return l.buckets.Len()
}

func (l *Limiter) bucket(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if b, ok := l.buckets.Get(key); ok {
		return b
	}
	b := rate.NewLimiter(l.cfg.Rate, l.cfg.Burst)
	l.buckets.Add(key, b)
	return b
}
