// Package retry wraps upstream calls with a shared retry policy keyed to
// the provider error taxonomy.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/kitsurai/torii/internal/provider"
)

const (
	defaultAttempts = 3
	defaultDelay    = 500 * time.Millisecond
)

// Retryable reports whether an error is worth retrying. Transient failures
// and rate limits are; not-found and malformed responses are not.
func Retryable(err error) bool {
	var unavailable *provider.ErrUnavailable
	if errors.As(err, &unavailable) {
		return true
	}
	var limited *provider.ErrRateLimited
	if errors.As(err, &limited) {
		return true
	}
	return false
}

// Do runs fn with exponential backoff, retrying only transient provider
// errors. The last error is returned unwrapped from the retry machinery.
func Do(ctx context.Context, fn func() error) error {
	return retry.Do(fn,
		retry.Context(ctx),
		retry.Attempts(defaultAttempts),
		retry.Delay(defaultDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(Retryable),
		retry.LastErrorOnly(true),
	)
}
