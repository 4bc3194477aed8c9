// Package retry implements the jittered exponential backoff used by both
// the archive client and the origin pipeline: backoff doubles per attempt,
// jitter is drawn from the low half of the current backoff window.
package retry

import (
	"context"
	"math/rand"
	"time"

	"github.com/Sonified/seisstream/internal/errs"
)

// Policy bounds how many attempts a retryable operation gets and how the
// backoff between attempts grows.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultPolicy is tuned for archive fetches: a handful of attempts, one
// second base delay, capped at thirty seconds.
var DefaultPolicy = Policy{
	MaxAttempts: 5,
	BaseDelay:   time.Second,
	MaxDelay:    30 * time.Second,
}

// UploadPolicy is tuned for chunk uploads: effectively unbounded, since
// abandoning an upload leaks a cached-but-unindexed blob.
var UploadPolicy = Policy{
	MaxAttempts: 0, // 0 means retry forever
	BaseDelay:   time.Second,
	MaxDelay:    time.Minute,
}

// Delay returns the backoff duration before attempt n (0-based), including
// jitter drawn from the lower half of the window.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	backoff := p.BaseDelay << uint(attempt-1)
	if backoff > p.MaxDelay || backoff <= 0 {
		backoff = p.MaxDelay
	}
	jitter := time.Duration(0)
	if backoff > 0 {
		jitter = time.Duration(rand.Int63n(int64(backoff/2) + 1))
	}
	return backoff + jitter
}

// Do runs fn until it succeeds, a Permanent/ValidationError/Oversized error
// is returned (never retried), or the policy's attempt budget is exhausted.
// A zero MaxAttempts means retry forever (used for uploads).
func Do(ctx context.Context, p Policy, fn func(attempt int) error) error {
	var lastErr error
	for attempt := 0; p.MaxAttempts == 0 || attempt < p.MaxAttempts; attempt++ {
		if attempt > 0 {
			d := p.Delay(attempt)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d):
			}
		}

		lastErr = fn(attempt)
		if lastErr == nil {
			return nil
		}
		if !isRetryable(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

func isRetryable(err error) bool {
	var transient *errs.Transient
	if ok := asTransient(err, &transient); ok {
		return true
	}
	return false
}

// asTransient is a tiny indirection so tests can exercise isRetryable
// without importing errors.As at every call site.
func asTransient(err error, target **errs.Transient) bool {
	for err != nil {
		if t, ok := err.(*errs.Transient); ok {
			*target = t
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
