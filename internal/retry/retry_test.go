package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fast = Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(&RetryableError{StatusCode: 503}))
	assert.True(t, IsRetryable(errors.Join(errors.New("wrapped"), &RetryableError{StatusCode: 429})))
	assert.False(t, IsRetryable(errors.New("bad request")))
	assert.False(t, IsRetryable(context.Canceled))
	assert.False(t, IsRetryable(nil))
}

func TestBackoffCapped(t *testing.T) {
	p := Policy{MaxAttempts: 10, BaseDelay: time.Second, MaxDelay: 30 * time.Second}
	for attempt := range 10 {
		d := p.Backoff(attempt)
		assert.GreaterOrEqual(t, d, time.Second)
		assert.Less(t, d, 45*time.Second, "attempt %d", attempt)
	}
}

func TestDoSucceedsAfterTransient(t *testing.T) {
	calls := 0
	var retried []int
	err := fast.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return &RetryableError{StatusCode: 500}
		}
		return nil
	}, func(attempt int, err error) { retried = append(retried, attempt) })

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{0, 1}, retried)
}

func TestDoStopsOnPermanentError(t *testing.T) {
	calls := 0
	perm := errors.New("invalid api key")
	err := fast.Do(context.Background(), func(context.Context) error {
		calls++
		return perm
	}, nil)

	assert.ErrorIs(t, err, perm)
	assert.Equal(t, 1, calls)
}

func TestDoExhaustsAttempts(t *testing.T) {
	calls := 0
	err := fast.Do(context.Background(), func(context.Context) error {
		calls++
		return &RetryableError{StatusCode: 429, Message: "slow down"}
	}, nil)

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	var rerr *RetryableError
	assert.ErrorAs(t, err, &rerr)
	assert.Equal(t, 429, rerr.StatusCode)
}

func TestDoHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	slow := Policy{MaxAttempts: 5, BaseDelay: time.Hour, MaxDelay: time.Hour}

	calls := 0
	err := slow.Do(ctx, func(context.Context) error {
		calls++
		cancel()
		return &RetryableError{StatusCode: 502}
	}, nil)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
