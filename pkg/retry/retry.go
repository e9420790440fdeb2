package retry

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"syscall"
	"time"
)

// Strategy selects a named backoff profile.
type Strategy uint8

const (
	// StrategyBalanced is the default profile for API requests.
	StrategyBalanced Strategy = iota
	// StrategyAggressive retries quickly with a low cap.
	StrategyAggressive
	// StrategyConservative spaces retries out for long-lived resources.
	StrategyConservative
)

const (
	// DefaultMaxAttempts bounds retries for a single HTTP request.
	DefaultMaxAttempts = 3
	// DefaultMaxReconnects bounds connection-level reconnection attempts.
	DefaultMaxReconnects = 10
)

// Backoff defines jittered exponential delay behavior.
type Backoff struct {
	// Min is the delay for the first attempt.
	Min time.Duration
	// Max caps the delay.
	Max time.Duration
	// Factor multiplies the delay for each attempt.
	Factor float64
	// Jitter adds randomization as a fraction of the delay (0-1).
	Jitter float64
}

// ForStrategy returns the backoff profile for a named strategy.
func ForStrategy(s Strategy) Backoff {
	switch s {
	case StrategyAggressive:
		return Backoff{Min: 100 * time.Millisecond, Max: 2 * time.Second, Factor: 2.0, Jitter: 0.2}
	case StrategyConservative:
		return Backoff{Min: time.Second, Max: 30 * time.Second, Factor: 2.0, Jitter: 0.2}
	default:
		return Backoff{Min: 250 * time.Millisecond, Max: 10 * time.Second, Factor: 2.0, Jitter: 0.2}
	}
}

// Next returns the delay before the given attempt (1-based).
func (b Backoff) Next(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}
	min := b.Min
	if min <= 0 {
		min = 100 * time.Millisecond
	}
	max := b.Max
	if max <= 0 {
		max = 5 * time.Second
	}
	factor := b.Factor
	if factor <= 1 {
		factor = 2.0
	}

	wait := min
	for i := 1; i < attempt; i++ {
		next := time.Duration(float64(wait) * factor)
		if next > max {
			wait = max
			break
		}
		wait = next
	}

	if b.Jitter <= 0 {
		return wait
	}
	jitter := b.Jitter
	if jitter > 1 {
		jitter = 1
	}
	delta := float64(wait) * jitter
	return wait - time.Duration(delta) + time.Duration(rand.Float64()*2*delta)
}

// Next returns the delay before the given attempt under a named strategy.
func Next(attempt int, s Strategy) time.Duration {
	return ForStrategy(s).Next(attempt)
}

// Sleep waits for the attempt's backoff delay or until ctx is done.
func Sleep(ctx context.Context, attempt int, s Strategy) error {
	wait := Next(attempt, s)
	if wait <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RetryableStatus reports whether an HTTP status warrants a retry.
// Covers the 5xx family plus common CDN/edge codes.
func RetryableStatus(status int) bool {
	switch status {
	case 408, 429, 500, 502, 503, 504, 522, 524:
		return true
	default:
		return false
	}
}

// Retryable reports whether a transport-level error warrants a retry.
// Context cancellation is never retryable.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	switch {
	case errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, syscall.ETIMEDOUT),
		errors.Is(err, net.ErrClosed):
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsTemporary || dnsErr.IsTimeout
	}

	var opErr *net.OpError
	return errors.As(err, &opErr)
}
