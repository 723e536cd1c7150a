package download

import (
	"context"
	"errors"
	"time"

	"github.com/altafino/attachment-fetcher/internal/email"
	"github.com/cenkalti/backoff/v5"
)

const (
	defaultMaxAttempts  = 3
	defaultInitialDelay = 500 * time.Millisecond
	defaultMaxDelay     = 30 * time.Second
)

// RetryPolicy bounds retries of rate limited and transient failures.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultMaxAttempts
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = defaultInitialDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = defaultMaxDelay
	}
	if p.MaxDelay < p.InitialDelay {
		p.MaxDelay = p.InitialDelay
	}
	return p
}

// hintedBackOff is exponential backoff that also honors a server supplied
// Retry-After, capped at the policy's max delay.
type hintedBackOff struct {
	exp      *backoff.ExponentialBackOff
	maxDelay time.Duration
	hint     time.Duration
}

func newHintedBackOff(p RetryPolicy) *hintedBackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.InitialDelay
	exp.MaxInterval = p.MaxDelay
	return &hintedBackOff{exp: exp, maxDelay: p.MaxDelay}
}

func (b *hintedBackOff) NextBackOff() time.Duration {
	next := b.exp.NextBackOff()
	if b.hint > 0 {
		next = max(next, min(b.hint, b.maxDelay))
		b.hint = 0
	}
	return next
}

func (b *hintedBackOff) Reset() {
	b.exp.Reset()
	b.hint = 0
}

// withRetry runs op until it succeeds, fails permanently or the policy's
// attempt cap is reached. Only rate limit and transient errors are retried.
func withRetry[T any](ctx context.Context, p RetryPolicy, notify backoff.Notify, op func() (T, error)) (T, error) {
	p = p.withDefaults()

	b := newHintedBackOff(p)

	wrapped := func() (T, error) {
		v, err := op()
		if err == nil {
			return v, nil
		}
		if !email.IsRetryable(err) {
			return v, backoff.Permanent(err)
		}
		var rateErr *email.RateLimitError
		if errors.As(err, &rateErr) {
			b.hint = rateErr.RetryAfter
		}
		return v, err
	}

	opts := []backoff.RetryOption{
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(p.MaxAttempts)),
	}
	if notify != nil {
		opts = append(opts, backoff.WithNotify(notify))
	}
	return backoff.Retry(ctx, wrapped, opts...)
}
