// Package retry runs operations that can fail with a transient error, such as
// a version conflict on a conditional write, under a bounded backoff policy.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dyluth/deck/pkg/deck"
)

// Default policy values.
const (
	DefaultMaxAttempts = 3
	DefaultBaseBackoff = 100 * time.Millisecond
)

// Policy decides how often and how patiently an operation is retried.
type Policy struct {
	// MaxAttempts is the total number of invocations, including the first.
	MaxAttempts int

	// Backoff returns the wait after the given failed attempt (0-based).
	Backoff func(attempt int) time.Duration

	// IsRetryable classifies an error. Errors it rejects are returned at once.
	IsRetryable func(err error) bool

	// Notify, if set, is called before every wait.
	Notify func(err error, wait time.Duration)
}

// DefaultPolicy retries version conflicts three times with 100ms, 200ms waits.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		Backoff:     Exponential(DefaultBaseBackoff),
		IsRetryable: deck.IsConflict,
	}
}

// Exponential returns a backoff function yielding base * 2^attempt.
func Exponential(base time.Duration) func(attempt int) time.Duration {
	return func(attempt int) time.Duration {
		if attempt < 0 {
			attempt = 0
		}
		return base << uint(attempt)
	}
}

// policyBackOff adapts a Policy's backoff function to backoff.BackOff.
type policyBackOff struct {
	next    func(attempt int) time.Duration
	attempt int
}

func (b *policyBackOff) NextBackOff() time.Duration {
	d := b.next(b.attempt)
	b.attempt++
	return d
}

func (b *policyBackOff) Reset() {
	b.attempt = 0
}

// Do invokes op until it succeeds, fails with a non-retryable error, runs out
// of attempts, or ctx is cancelled. On exhaustion the last error is returned.
func Do(ctx context.Context, op func() error, p Policy) error {
	p = p.withDefaults()

	var b backoff.BackOff = &policyBackOff{next: p.Backoff}
	b = backoff.WithMaxRetries(b, uint64(p.MaxAttempts-1))
	b = backoff.WithContext(b, ctx)

	classified := func() error {
		err := op()
		if err != nil && !p.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	var notify backoff.Notify
	if p.Notify != nil {
		notify = func(err error, wait time.Duration) { p.Notify(err, wait) }
	}

	return backoff.RetryNotify(classified, b, notify)
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.Backoff == nil {
		p.Backoff = Exponential(DefaultBaseBackoff)
	}
	if p.IsRetryable == nil {
		p.IsRetryable = deck.IsConflict
	}
	return p
}
