package sellergo

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	internalbackoff "github.com/enginterzi/sellergo/internal/backoff"
)

// RetryPolicy configures the recovery engine's retry loop.
type RetryPolicy struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	Jitter         float64
	Strategy       internalbackoff.Strategy
}

// DefaultRetryPolicy returns the pipeline-wide defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:     3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		Multiplier:     2.0,
		Jitter:         0.2,
		Strategy:       internalbackoff.ExponentialJitter,
	}
}

// RecoveryEngine classifies failures and re-invokes the operation per the
// retry policy. Rate-limit, server and network failures are retried with
// monotonic bounded backoff (honoring an upstream Retry-After when present);
// every other kind is surfaced immediately.
type RecoveryEngine struct {
	policy RetryPolicy

	// onRetry is invoked before each retry wait, for logging and metrics.
	onRetry func(attempt int, delay time.Duration, err error)
}

// NewRecoveryEngine creates an engine with the given policy.
func NewRecoveryEngine(policy RetryPolicy) *RecoveryEngine {
	return &RecoveryEngine{policy: policy}
}

// Execute runs op, retrying per policy. maxRetries overrides the policy
// value when non-negative. The returned error is op's classified error,
// decorated with the attempt count that exhausted it.
func (e *RecoveryEngine) Execute(ctx context.Context, maxRetries int, op func(context.Context) (*Response, error)) (*Response, error) {
	if maxRetries < 0 {
		maxRetries = e.policy.MaxRetries
	}

	attempt := 0
	for {
		resp, err := op(ctx)
		if err == nil {
			return resp, nil
		}

		if attempt >= maxRetries || !retryableKind(KindOf(err)) {
			return nil, decorateAttempts(err, attempt+1, maxRetries)
		}

		delay := retryAfterOf(err)
		if delay <= 0 {
			delay = internalbackoff.Delay(
				e.policy.Strategy,
				attempt,
				e.policy.InitialBackoff,
				e.policy.MaxBackoff,
				e.policy.Multiplier,
				e.policy.Jitter,
			)
		}

		if e.onRetry != nil {
			e.onRetry(attempt+1, delay, err)
		}

		if err := sleepContext(ctx, delay); err != nil {
			return nil, err
		}
		attempt++
	}
}

// retryAfterOf extracts an upstream-requested delay from a classified error.
func retryAfterOf(err error) time.Duration {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.RetryAfter
	}
	return 0
}

// decorateAttempts stamps attempt diagnostics onto a classified error.
func decorateAttempts(err error, attempts, maxRetries int) error {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		clientErr.Attempt = attempts
		clientErr.MaxRetries = maxRetries
		return clientErr
	}
	return err
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// parseRetryAfter parses a Retry-After header value, supporting both
// delay-seconds and HTTP-date formats. The result is capped at one hour.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
		if seconds > 0 {
			delay := time.Duration(seconds) * time.Second
			if delay > time.Hour {
				delay = time.Hour
			}
			return delay
		}
		return 0
	}

	if t, err := http.ParseTime(value); err == nil {
		delay := time.Until(t)
		if delay > 0 && delay <= time.Hour {
			return delay
		}
	}

	return 0
}
