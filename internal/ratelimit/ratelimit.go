// Package ratelimit paces page fetches so crawls look like a patient
// human, not a tight loop.
package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

type RateLimiter interface {
	Wait(ctx context.Context) error
	SetDelay(min, max time.Duration)
}

// SimpleRateLimiter enforces a jittered minimum gap between actions.
// The jitter keeps the interval from being a fingerprintable constant.
type SimpleRateLimiter struct {
	minDelay   time.Duration
	maxDelay   time.Duration
	lastAction time.Time
	jitter     bool
	mu         sync.Mutex
}

func NewSimpleRateLimiter(minDelay, maxDelay time.Duration) *SimpleRateLimiter {
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	return &SimpleRateLimiter{
		minDelay: minDelay,
		maxDelay: maxDelay,
		jitter:   true,
	}
}

// Wait blocks until enough time has passed since the previous action,
// or the context is cancelled.
func (r *SimpleRateLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	elapsed := time.Since(r.lastAction)
	delay := r.nextDelay()

	if elapsed < delay {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay - elapsed):
		}
	}

	r.lastAction = time.Now()
	return nil
}

func (r *SimpleRateLimiter) SetDelay(min, max time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.minDelay = min
	r.maxDelay = max
	if r.maxDelay < r.minDelay {
		r.maxDelay = r.minDelay
	}
}

func (r *SimpleRateLimiter) nextDelay() time.Duration {
	if !r.jitter || r.minDelay >= r.maxDelay {
		return r.minDelay
	}
	delta := r.maxDelay - r.minDelay
	return r.minDelay + time.Duration(rand.Int63n(int64(delta)))
}

// BackoffRateLimiter stretches the delay after repeated failures and
// relaxes it again after a streak of successes. Amazon throttling is
// sticky; backing off early beats getting blocked.
type BackoffRateLimiter struct {
	*SimpleRateLimiter
	errorCount    int
	successCount  int
	maxErrorCount int
	backoffFactor float64
}

func NewBackoffRateLimiter(minDelay, maxDelay time.Duration) *BackoffRateLimiter {
	return &BackoffRateLimiter{
		SimpleRateLimiter: NewSimpleRateLimiter(minDelay, maxDelay),
		maxErrorCount:     3,
		backoffFactor:     1.5,
	}
}

func (b *BackoffRateLimiter) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.successCount++
	b.errorCount = 0

	if b.successCount > 5 {
		newMin := time.Duration(float64(b.minDelay) * 0.9)
		if newMin < time.Second {
			newMin = time.Second
		}
		b.minDelay = newMin
		b.successCount = 0
	}
}

func (b *BackoffRateLimiter) RecordError() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.errorCount++
	b.successCount = 0

	if b.errorCount >= b.maxErrorCount {
		b.minDelay = capDuration(time.Duration(float64(b.minDelay)*b.backoffFactor), 60*time.Second)
		b.maxDelay = capDuration(time.Duration(float64(b.maxDelay)*b.backoffFactor), 120*time.Second)
		b.errorCount = 0
	}
}

func capDuration(d, max time.Duration) time.Duration {
	if d > max {
		return max
	}
	return d
}
