package retry

import (
	"context"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextMonotonicUntilCap(t *testing.T) {
	b := Backoff{Min: 100 * time.Millisecond, Max: 2 * time.Second, Factor: 2.0}
	prev := time.Duration(0)
	for attempt := 1; attempt <= 10; attempt++ {
		wait := b.Next(attempt)
		require.GreaterOrEqual(t, wait, prev, "attempt %d", attempt)
		require.LessOrEqual(t, wait, b.Max)
		prev = wait
	}
	assert.Equal(t, b.Max, b.Next(10))
}

func TestNextJitterBounds(t *testing.T) {
	b := Backoff{Min: time.Second, Max: time.Second, Factor: 2.0, Jitter: 0.5}
	for i := 0; i < 100; i++ {
		wait := b.Next(1)
		assert.GreaterOrEqual(t, wait, 500*time.Millisecond)
		assert.LessOrEqual(t, wait, 1500*time.Millisecond)
	}
}

func TestNextZeroValueDefaults(t *testing.T) {
	var b Backoff
	assert.Positive(t, b.Next(1))
	assert.LessOrEqual(t, b.Next(20), 5*time.Second)
}

func TestStrategyProfiles(t *testing.T) {
	aggressive := ForStrategy(StrategyAggressive)
	balanced := ForStrategy(StrategyBalanced)
	conservative := ForStrategy(StrategyConservative)

	assert.Less(t, aggressive.Min, balanced.Min)
	assert.Less(t, balanced.Min, conservative.Min)
	assert.Less(t, aggressive.Max, conservative.Max)
}

func TestRetryableStatus(t *testing.T) {
	for _, status := range []int{500, 502, 503, 504, 522, 524, 429, 408} {
		assert.True(t, RetryableStatus(status), "status %d", status)
	}
	for _, status := range []int{200, 201, 301, 400, 401, 403, 404, 409, 422} {
		assert.False(t, RetryableStatus(status), "status %d", status)
	}
}

func TestRetryableErrors(t *testing.T) {
	assert.False(t, Retryable(nil))
	assert.False(t, Retryable(context.Canceled))
	assert.False(t, Retryable(context.DeadlineExceeded))

	assert.True(t, Retryable(syscall.ECONNREFUSED))
	assert.True(t, Retryable(syscall.ECONNRESET))
	assert.True(t, Retryable(net.ErrClosed))
	assert.True(t, Retryable(&net.OpError{Op: "dial", Err: syscall.EHOSTUNREACH}))
	assert.True(t, Retryable(&net.DNSError{IsTimeout: true}))
	assert.False(t, Retryable(&net.DNSError{IsNotFound: true}))
}

func TestSleepCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Sleep(ctx, 5, StrategyConservative)
	require.ErrorIs(t, err, context.Canceled)
}
