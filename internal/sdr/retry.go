package sdr

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/rjboer/gophaser/internal/errs"
	"github.com/rjboer/gophaser/internal/logging"
	"github.com/rjboer/gophaser/internal/phaser"
)

// RetryPolicy bounds how a RetryingAcquirer backs off.
type RetryPolicy struct {
	MaxRetries      uint64        `mapstructure:"max_retries" yaml:"max_retries"`
	InitialInterval time.Duration `mapstructure:"initial_interval" yaml:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval" yaml:"max_interval"`
}

// DefaultRetryPolicy retries three times starting at 10 ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, InitialInterval: 10 * time.Millisecond, MaxInterval: 200 * time.Millisecond}
}

// RetryingAcquirer retries transient acquisition errors with exponential
// backoff. Configuration errors and context cancellation are not retried.
type RetryingAcquirer struct {
	next   phaser.Acquirer
	policy RetryPolicy
	logger logging.Logger
}

// NewRetryingAcquirer wraps next with the retry policy.
func NewRetryingAcquirer(next phaser.Acquirer, policy RetryPolicy, logger logging.Logger) *RetryingAcquirer {
	if logger == nil {
		logger = logging.Default()
	}
	return &RetryingAcquirer{next: next, policy: policy, logger: logger.With(logging.Subsystem("sdr"))}
}

func (r *RetryingAcquirer) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if r.policy.InitialInterval > 0 {
		b.InitialInterval = r.policy.InitialInterval
	}
	if r.policy.MaxInterval > 0 {
		b.MaxInterval = r.policy.MaxInterval
	}
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, r.policy.MaxRetries), ctx)
}

// Acquire forwards to the wrapped acquirer until it succeeds, a permanent
// error occurs or the retry budget is spent.
func (r *RetryingAcquirer) Acquire(ctx context.Context, channels int) ([][]complex64, error) {
	var out [][]complex64
	attempt := 0
	op := func() error {
		attempt++
		data, err := r.next.Acquire(ctx, channels)
		if err == nil {
			out = data
			return nil
		}
		if permanent(ctx, err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		r.logger.Warn("acquisition failed, retrying",
			logging.F("attempt", attempt), logging.F("wait_ms", wait.Seconds()*1000), logging.Err(err))
	}
	if err := backoff.RetryNotify(op, r.backOff(ctx), notify); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			return nil, ctxErr
		}
		return nil, err
	}
	return out, nil
}

func permanent(ctx context.Context, err error) bool {
	return ctx.Err() != nil ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, errs.ErrInvalidConfiguration) ||
		errors.Is(err, errs.ErrInvalidInput)
}
