package worker

import (
	"math"
	"time"
)

const (
	defaultMaxRetries   = 5
	defaultInitialDelay = time.Second
	defaultBackoff      = 2
)

// RetryPolicy is the exponential backoff applied to failed fee tasks.
type RetryPolicy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

func (r RetryPolicy) withDefaults() RetryPolicy {
	if r.MaxRetries <= 0 {
		r.MaxRetries = defaultMaxRetries
	}
	if r.InitialDelay <= 0 {
		r.InitialDelay = defaultInitialDelay
	}
	if r.BackoffFactor <= 0 {
		r.BackoffFactor = defaultBackoff
	}
	return r
}

// Exhausted reports whether a task that has failed attempts times should
// go to the dead letter list instead of being retried.
func (r RetryPolicy) Exhausted(attempts int) bool {
	return attempts >= r.withDefaults().MaxRetries
}

// NextDelay returns the wait before retry number attempt (1-based), capped at
// MaxDelay.
func (r RetryPolicy) NextDelay(attempt int) time.Duration {
	r = r.withDefaults()
	attempt = max(attempt, 1)

	d := time.Duration(float64(r.InitialDelay) * math.Pow(r.BackoffFactor, float64(attempt-1)))
	if r.MaxDelay > 0 && d > r.MaxDelay {
		d = r.MaxDelay
	}
	if d <= 0 {
		return defaultInitialDelay
	}
	return d
}

// NextAttemptAt is when retry number attempt becomes due.
func (r RetryPolicy) NextAttemptAt(now time.Time, attempt int) time.Time {
	return now.Add(r.NextDelay(attempt))
}
