package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryPolicy_Delay(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, BaseDelay: 10 * time.Millisecond, MaxDelay: 50 * time.Millisecond}

	assert.Equal(t, time.Duration(0), p.Delay(0))
	assert.Equal(t, 10*time.Millisecond, p.Delay(1))
	assert.Equal(t, 20*time.Millisecond, p.Delay(2))
	assert.Equal(t, 40*time.Millisecond, p.Delay(3))
	assert.Equal(t, 50*time.Millisecond, p.Delay(4))
	assert.Equal(t, 50*time.Millisecond, p.Delay(30))
}

func TestRetryPolicy_DoSucceedsAfterFailures(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}

	var attempts []int
	err := p.Do(context.Background(), func(attempt int) error {
		attempts = append(attempts, attempt)
		if attempt < 3 {
			return errors.New("flaky")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, attempts)
}

func TestRetryPolicy_DoGivesUp(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond}
	boom := errors.New("boom")

	calls := 0
	err := p.Do(context.Background(), func(int) error {
		calls++
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, calls)
}

func TestRetryPolicy_DoStopsOnCancel(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 10, BaseDelay: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())
	boom := errors.New("boom")

	calls := 0
	err := p.Do(ctx, func(int) error {
		calls++
		cancel()
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestRetryPolicy_ZeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	err := RetryPolicy{}.Do(context.Background(), func(int) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}
