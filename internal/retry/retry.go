// Package retry applies a uniform backoff policy at the boundary of every
// external call.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy bounds retries of transient failures. The delay doubles after
// each attempt, starting at BaseDelay.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultPolicy matches the provider retry behavior used throughout
// ingestion: 5 attempts, 1s initial delay.
var DefaultPolicy = Policy{MaxAttempts: 5, BaseDelay: time.Second}

// Do runs op, retrying while transient(err) holds and attempts remain.
// Permanent errors and context cancellation return immediately.
func (p Policy) Do(ctx context.Context, transient func(error) bool, op func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	base := p.BaseDelay
	if base <= 0 {
		base = time.Second
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = base
	b.Multiplier = 2

	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if !transient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx))
}
