package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fastRetrier(maxAttempts int) *Retrier {
	return New(
		WithMaxAttempts(maxAttempts),
		WithInitialDelay(time.Millisecond),
		WithMaxDelay(5*time.Millisecond),
		WithJitter(0),
	)
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := fastRetrier(5).Do(context.Background(), func(_ context.Context) error {
		attempts++
		if attempts < 3 {
			return Retryable(errors.New("not yet"))
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDo_PermanentErrorStopsImmediately(t *testing.T) {
	boom := errors.New("boom")
	attempts := 0
	err := fastRetrier(5).Do(context.Background(), func(_ context.Context) error {
		attempts++
		return Permanent(boom)
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, attempts)
}

func TestDo_NonRetryableErrorNotRetriedByDefault(t *testing.T) {
	attempts := 0
	err := fastRetrier(5).Do(context.Background(), func(_ context.Context) error {
		attempts++
		return errors.New("plain error")
	})

	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestDo_RetryIfOverridesDefault(t *testing.T) {
	attempts := 0
	r := New(
		WithMaxAttempts(3),
		WithInitialDelay(time.Millisecond),
		WithJitter(0),
		WithRetryIf(func(error) bool { return true }),
	)

	err := r.Do(context.Background(), func(_ context.Context) error {
		attempts++
		return errors.New("plain error")
	})

	assert.Error(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDo_ContextCancelStopsRetrying(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	r := New(
		WithMaxAttempts(100),
		WithInitialDelay(time.Millisecond),
		WithRetryIf(func(error) bool { return true }),
	)

	err := r.Do(ctx, func(_ context.Context) error {
		attempts++
		if attempts == 2 {
			cancel()
		}
		return errors.New("still failing")
	})

	assert.Error(t, err)
	assert.LessOrEqual(t, attempts, 3)
}

func TestCalculateDelay_CappedAtMax(t *testing.T) {
	r := New(
		WithInitialDelay(100*time.Millisecond),
		WithMaxDelay(time.Second),
		WithMultiplier(10),
		WithJitter(0),
	)

	assert.Equal(t, 100*time.Millisecond, r.calculateDelay(1))
	assert.Equal(t, time.Second, r.calculateDelay(2))
	assert.Equal(t, time.Second, r.calculateDelay(5))
}
