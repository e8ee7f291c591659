// Package retry re-runs read-modify-write operations that lost an
// optimistic concurrency race.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/mx-space/sentinel/internal/pkg/apperr"
)

// Policy bounds the retry loop.
type Policy struct {
	MaxAttempts     uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultPolicy suits request handlers: a handful of quick attempts.
var DefaultPolicy = Policy{
	MaxAttempts:     5,
	InitialInterval: 20 * time.Millisecond,
	MaxInterval:     500 * time.Millisecond,
}

// OnConflict runs op until it succeeds, fails with anything other than
// apperr.ErrConflict, or the policy is exhausted. op must re-read the record
// on every call.
func OnConflict(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	return OnConflictNotify(ctx, p, op, nil)
}

// OnConflictNotify is OnConflict with a hook called before each retry.
func OnConflictNotify(ctx context.Context, p Policy, op func(ctx context.Context) error, notify func(err error, wait time.Duration)) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.InitialInterval
	eb.MaxInterval = p.MaxInterval
	eb.MaxElapsedTime = 0

	attempts := p.MaxAttempts
	if attempts == 0 {
		attempts = 1
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(eb, attempts-1), ctx)

	return backoff.RetryNotify(func() error {
		err := op(ctx)
		if err == nil || errors.Is(err, apperr.ErrConflict) {
			return err
		}
		return backoff.Permanent(err)
	}, bo, notify)
}
