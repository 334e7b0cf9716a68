package shopify

import (
	"errors"
	"fmt"
	"time"
)

// ErrAuth indicates the access token was rejected or revoked by Shopify.
// Auth failures are fatal for the whole sync chain, the shop needs to be
// re-authorized before another attempt makes sense.
var ErrAuth = errors.New("shopify: access token rejected")

// RateLimitedError is returned when Shopify answers 429. RetryAfter carries
// the backoff hinted by the Retry-After header.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("shopify: rate limited, retry after %s", e.RetryAfter)
}

// RetryAfterHint exposes the hinted delay to the job queue.
func (e *RateLimitedError) RetryAfterHint() time.Duration { return e.RetryAfter }

// TransientError wraps network failures and 5xx responses. Retryable.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("shopify: transient: %v", e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// MalformedResponseError indicates the response body did not match the
// expected shape. Fatal, it usually means API contract drift.
type MalformedResponseError struct {
	Err     error
	Excerpt string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("shopify: malformed response: %v (body: %.120s)", e.Err, e.Excerpt)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }
