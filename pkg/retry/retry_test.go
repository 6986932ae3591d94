package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(maxAttempts int) Policy {
	return Policy{
		MaxAttempts:     maxAttempts,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Multiplier:      2.0,
	}
}

type fatalTestError struct{ msg string }

func (e *fatalTestError) Error() string { return e.msg }
func (e *fatalTestError) IsFatal() bool { return true }

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(5), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoStopsAtAttemptCeiling(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(3), func() error {
		calls++
		return errors.New("still down")
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoAbortsOnFatalError(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(5), func() error {
		calls++
		return &fatalTestError{msg: "bad payload"}
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls, "fatal errors must not be retried")
}

func TestDoWithCallbackReportsEachRetry(t *testing.T) {
	var attempts []int
	calls := 0
	err := DoWithCallback(context.Background(), fastPolicy(3), func() error {
		calls++
		return errors.New("transient")
	}, func(attempt int, err error, nextDelay time.Duration) {
		attempts = append(attempts, attempt)
		assert.Positive(t, nextDelay)
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	// The last attempt has no retry after it.
	assert.Equal(t, []int{1, 2}, attempts)
}

func TestDoStopsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := Do(ctx, fastPolicy(100), func() error {
		calls++
		if calls == 2 {
			cancel()
		}
		return errors.New("transient")
	})

	require.Error(t, err)
	assert.LessOrEqual(t, calls, 3, "cancellation must end the sequence")
}

func TestBackoffDelayCurve(t *testing.T) {
	assert.Equal(t, 100*time.Millisecond, BackoffDelay(1, 100*time.Millisecond, 2.0, time.Second))
	assert.Equal(t, 400*time.Millisecond, BackoffDelay(3, 100*time.Millisecond, 2.0, time.Second))
	assert.Equal(t, time.Second, BackoffDelay(10, 100*time.Millisecond, 2.0, time.Second),
		"delay must cap at the max interval")
}
