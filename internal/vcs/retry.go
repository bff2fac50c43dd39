package vcs

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds how network-facing operations retry transient failures.
type RetryPolicy struct {
	// Attempts is the total number of tries, including the first
	Attempts int

	// BaseDelay is the wait before the second try; it doubles after that
	BaseDelay time.Duration
}

// DefaultRetryPolicy is three attempts, 2s then 4s apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:  3,
		BaseDelay: 2 * time.Second,
	}
}

// Retry runs op until it succeeds, returns a non-retryable error, the
// attempts are used up or ctx is done. notify, if non-nil, is called before
// each wait with the error that triggered it.
func (p RetryPolicy) Retry(ctx context.Context, op func() error, notify func(err error, wait time.Duration)) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.BaseDelay
	eb.Multiplier = 2
	eb.RandomizationFactor = 0
	eb.MaxInterval = p.BaseDelay << uint(attempts)
	eb.MaxElapsedTime = 0

	var b backoff.BackOff = backoff.WithMaxRetries(eb, uint64(attempts-1))
	b = backoff.WithContext(b, ctx)

	wrapped := func() error {
		err := op()
		if err != nil && !IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	return backoff.RetryNotify(wrapped, b, notify)
}
