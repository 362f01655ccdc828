package vcontrold

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: attempts, InitialWait: time.Millisecond, MaxWait: 4 * time.Millisecond}
}

func TestRetryPolicy_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := fastPolicy(5).Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return ErrConnection
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryPolicy_GivesUp(t *testing.T) {
	calls := 0
	err := fastPolicy(4).Do(context.Background(), func(context.Context) error {
		calls++
		return ErrConnection
	})

	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.ErrorIs(t, err, ErrConnection)
	assert.Equal(t, 4, calls)
}

func TestRetryPolicy_DoesNotRetryProtocolErrors(t *testing.T) {
	calls := 0
	err := fastPolicy(4).Do(context.Background(), func(context.Context) error {
		calls++
		return ErrProtocol
	})

	assert.ErrorIs(t, err, ErrProtocol)
	assert.NotErrorIs(t, err, ErrRetriesExhausted)
	assert.Equal(t, 1, calls)
}

func TestRetryPolicy_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := RetryPolicy{MaxAttempts: 10, InitialWait: time.Hour, MaxWait: time.Hour}

	calls := 0
	time.AfterFunc(20*time.Millisecond, cancel)
	err := p.Do(ctx, func(context.Context) error {
		calls++
		return errors.Join(ErrConnection, errors.New("refused"))
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestRetryPolicy_Validate(t *testing.T) {
	assert.NoError(t, DefaultRetryPolicy().validate())
	assert.Error(t, RetryPolicy{MaxAttempts: 0}.validate())
	assert.Error(t, RetryPolicy{MaxAttempts: 1, InitialWait: -time.Second}.validate())
	assert.Error(t, RetryPolicy{MaxAttempts: 1, InitialWait: time.Minute, MaxWait: time.Second}.validate())

	// Retrying without a wait would spin.
	assert.Error(t, RetryPolicy{MaxAttempts: 3}.validate())
	assert.Error(t, RetryPolicy{MaxAttempts: 3, MaxWait: time.Second}.validate())
	assert.NoError(t, RetryPolicy{MaxAttempts: 1}.validate())
}
