package vcontrold

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RetryPolicy bounds how often an operation is attempted and how long to
// wait between attempts. The wait doubles after every failure up to MaxWait.
type RetryPolicy struct {
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
}

// DefaultRetryPolicy returns the policy used for catalog discovery:
// five attempts starting at one second, capped at 30 seconds.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		InitialWait: 1 * time.Second,
		MaxWait:     30 * time.Second,
	}
}

func (p RetryPolicy) validate() error {
	if p.MaxAttempts < 1 {
		return errors.New("retry policy needs at least one attempt")
	}
	if p.InitialWait < 0 || p.MaxWait < 0 {
		return errors.New("retry waits must not be negative")
	}
	if p.MaxAttempts > 1 && p.InitialWait == 0 {
		return errors.New("retry initial wait must be positive when retrying")
	}
	if p.MaxWait < p.InitialWait {
		return errors.New("retry max wait must not be below initial wait")
	}
	return nil
}

// Do runs op until it succeeds, returns a non-retryable error, or the
// attempts are used up. Only ErrConnection failures are retried; a
// malformed reply will not fix itself by asking again.
func (p RetryPolicy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	wait := p.InitialWait

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if !errors.Is(err, ErrConnection) || ctx.Err() != nil {
			return err
		}
		if attempt == attempts {
			break
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w: %w", ErrConnection, ctx.Err())
		case <-timer.C:
		}

		wait *= 2
		if wait > p.MaxWait {
			wait = p.MaxWait
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempts, lastErr)
}
