package external

import (
	"context"
	"errors"
	"math"
	"net"
	"time"
)

// retryAfterError instructs the retry loop to try the operation again after a delay
type retryAfterError struct {
	wait time.Duration
	err  error
}

// Error implements the error interface
func (e *retryAfterError) Error() string {
	return e.err.Error()
}

// Unwrap exposes the classified failure behind the retry instruction
func (e *retryAfterError) Unwrap() error {
	return e.err
}

// RetryAfter wraps a classified failure so the retry loop waits then retries
func RetryAfter(wait time.Duration, err error) error {
	return &retryAfterError{wait: wait, err: err}
}

// Backoff returns the exponential backoff delay for an attempt: 2^attempt seconds
func Backoff(attempt int) time.Duration {
	return time.Duration(math.Pow(2, float64(attempt))) * time.Second
}

// Retry runs op up to maxRetries additional times beyond the first attempt.
// An op returning nil completes the loop; an error wrapped with RetryAfter
// triggers a delayed retry; any other error fails fast. Retries are never
// attempted after cancellation.
func Retry(ctx context.Context, maxRetries int, op func(ctx context.Context, attempt int) error) error {
	var lastErr error
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = op(ctx, attempt)
		if lastErr == nil {
			return nil
		}
		var ra *retryAfterError
		if !errors.As(lastErr, &ra) || attempt >= maxRetries {
			return unwrapRetry(lastErr)
		}
		select {
		case <-time.After(ra.wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// unwrapRetry strips the retry instruction from an exhausted error
func unwrapRetry(err error) error {
	var ra *retryAfterError
	if errors.As(err, &ra) {
		return ra.err
	}
	return err
}

// isTimeout reports whether err is a request timeout rather than a hard failure
func isTimeout(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
