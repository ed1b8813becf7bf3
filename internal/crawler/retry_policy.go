package crawler

import (
	"context"
	"crypto/rand"
	"errors"
	"math"
	"math/big"
	"net"
	"time"
)

// ExponentialRetryPolicy implements RetryPolicy with jittered backoff.
type ExponentialRetryPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
}

// NewExponentialRetryPolicy builds a policy with the site defaults.
func NewExponentialRetryPolicy() *ExponentialRetryPolicy {
	return &ExponentialRetryPolicy{
		maxAttempts: 3,
		baseDelay:   250 * time.Millisecond,
		maxDelay:    5 * time.Second,
	}
}

// NewRetryPolicy builds a policy with explicit knobs, used when the
// configuration overrides the defaults.
func NewRetryPolicy(maxAttempts int, baseDelay, maxDelay time.Duration) *ExponentialRetryPolicy {
	p := NewExponentialRetryPolicy()
	if maxAttempts > 0 {
		p.maxAttempts = maxAttempts
	}
	if baseDelay > 0 {
		p.baseDelay = baseDelay
	}
	if maxDelay > 0 {
		p.maxDelay = maxDelay
	}
	return p
}

// MaxAttempts exposes the attempt budget.
func (p *ExponentialRetryPolicy) MaxAttempts() int { return p.maxAttempts }

// ShouldRetry decides whether the error is retryable. Context cancellation,
// structural parse mismatches, and anything carrying Permanent() true are
// surfaced immediately; everything else is treated as transient.
func (p *ExponentialRetryPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil {
		return false
	}
	if attempt >= p.maxAttempts {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if IsPermanent(err) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return true
}

// Backoff returns the wait duration before the next attempt.
func (p *ExponentialRetryPolicy) Backoff(attempt int) time.Duration {
	delay := float64(p.baseDelay) * math.Pow(2, float64(attempt))
	if delay > float64(p.maxDelay) {
		delay = float64(p.maxDelay)
	}
	jitter := p.randomJitter(time.Duration(delay) / 2)
	return time.Duration(delay/2) + jitter
}

func (p *ExponentialRetryPolicy) randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	bound := big.NewInt(int64(limit))
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}

// attemptTimeoutError deliberately has no Unwrap so the policy does not
// mistake an attempt-level deadline for crawl cancellation.
type attemptTimeoutError struct{ cause error }

func (e *attemptTimeoutError) Error() string {
	return "attempt timed out: " + e.cause.Error()
}

// retry wraps one adapter operation with the policy: bounded attempts, a
// per-attempt timeout, and backoff between attempts. It is oblivious to
// which adapter it wraps; classification lives entirely in the policy.
// After exhausting retries on a transient failure the result is an
// *ExhaustedRetriesError carrying the last cause.
func retry[T any](ctx context.Context, policy RetryPolicy, attemptTimeout time.Duration, op func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return zero, lastErr
			}
			return zero, err
		}

		attemptCtx := ctx
		cancel := context.CancelFunc(func() {})
		if attemptTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, attemptTimeout)
		}
		res, err := op(attemptCtx)
		cancel()
		if err == nil {
			return res, nil
		}
		// A per-attempt deadline is a transient navigation timeout as long
		// as the crawl context itself is still live.
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = &attemptTimeoutError{cause: err}
		}
		lastErr = err

		if !policy.ShouldRetry(err, attempt+1) {
			if IsPermanent(err) || errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return zero, err
			}
			return zero, &ExhaustedRetriesError{Attempts: attempt + 1, Cause: err}
		}

		Retries.Inc()
		select {
		case <-time.After(policy.Backoff(attempt)):
		case <-ctx.Done():
			return zero, lastErr
		}
	}
}
