package api

import (
	"sync"
	"time"

	"clinicq/internal/config"

	"golang.org/x/time/rate"
)

const (
	defaultBurst      = 5
	limiterIdleTTL    = 10 * time.Minute
	limiterSweepEvery = time.Minute
)

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter keeps one token bucket per API key or remote address. Buckets
// idle for longer than limiterIdleTTL are dropped.
type rateLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*clientBucket
	cfg       config.APIRateLimitConfig
	lastSweep time.Time
	now       func() time.Time
}

func newRateLimiter(cfg config.APIRateLimitConfig) *rateLimiter {
	return &rateLimiter{buckets: make(map[string]*clientBucket), cfg: cfg, now: time.Now}
}

func (l *rateLimiter) enabled() bool { return l.cfg.RPS > 0 }

func (l *rateLimiter) allow(key string) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) >= limiterSweepEvery {
		l.sweepLocked(now)
	}

	b, ok := l.buckets[key]
	if !ok {
		burst := l.cfg.Burst
		if burst <= 0 {
			burst = defaultBurst
		}
		b = &clientBucket{limiter: rate.NewLimiter(rate.Limit(l.cfg.RPS), burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

func (l *rateLimiter) sweepLocked(now time.Time) {
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) > limiterIdleTTL {
			delete(l.buckets, key)
		}
	}
	l.lastSweep = now
}

func (l *rateLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
