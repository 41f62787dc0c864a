package corpus

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/jibzus/enterprise-spendguard/internal/embedding"
)

// IsRetryable checks if an embedding error is worth retrying. UnavailableError
// already wraps bounded client-side retries, so it is terminal here.
func IsRetryable(err error) bool {
	var unavailable *embedding.UnavailableError
	if errors.As(err, &unavailable) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

// Backoff returns a duration for attempt n (0-indexed) with jitter.
func Backoff(attempt int) time.Duration {
	base := time.Duration(1<<uint(attempt)) * time.Second
	if base > 30*time.Second {
		base = 30 * time.Second
	}
	jitter := time.Duration(rand.Int64N(int64(base) / 2))
	return base + jitter
}

const MaxRetries = 3
