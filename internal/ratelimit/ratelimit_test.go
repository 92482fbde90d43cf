package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimpleRateLimiterEnforcesGap(t *testing.T) {
	r := NewSimpleRateLimiter(50*time.Millisecond, 50*time.Millisecond)

	require.NoError(t, r.Wait(context.Background()))
	start := time.Now()
	require.NoError(t, r.Wait(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestSimpleRateLimiterHonorsCancellation(t *testing.T) {
	r := NewSimpleRateLimiter(10*time.Second, 10*time.Second)
	require.NoError(t, r.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := r.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSimpleRateLimiterSwappedBounds(t *testing.T) {
	r := NewSimpleRateLimiter(100*time.Millisecond, 10*time.Millisecond)
	assert.Equal(t, r.minDelay, r.maxDelay)
}

func TestBackoffRateLimiterStretchesAfterErrors(t *testing.T) {
	b := NewBackoffRateLimiter(2*time.Second, 4*time.Second)

	for i := 0; i < 3; i++ {
		b.RecordError()
	}
	assert.Equal(t, 3*time.Second, b.minDelay)
	assert.Equal(t, 6*time.Second, b.maxDelay)
}

func TestBackoffRateLimiterRelaxesAfterSuccesses(t *testing.T) {
	b := NewBackoffRateLimiter(10*time.Second, 20*time.Second)

	for i := 0; i < 6; i++ {
		b.RecordSuccess()
	}
	assert.Equal(t, 9*time.Second, b.minDelay)
}

func TestBackoffRateLimiterCapsDelay(t *testing.T) {
	b := NewBackoffRateLimiter(50*time.Second, 110*time.Second)

	for i := 0; i < 3; i++ {
		b.RecordError()
	}
	assert.Equal(t, 60*time.Second, b.minDelay)
	assert.Equal(t, 120*time.Second, b.maxDelay)
}
