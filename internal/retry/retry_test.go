package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), Policy{MaxAttempts: 5, InitialInterval: time.Millisecond}, func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errBoom
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, attempts)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), Policy{MaxAttempts: 3, InitialInterval: time.Millisecond}, func(context.Context) error {
		attempts++
		return errBoom
	})
	require.ErrorIs(t, err, ErrExhausted)
	require.ErrorIs(t, err, errBoom)
	require.Equal(t, 3, attempts)
}

func TestDo_ClassifyStopsRetrying(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), Policy{
		MaxAttempts:     5,
		InitialInterval: time.Millisecond,
		Classify:        func(error) bool { return false },
	}, func(context.Context) error {
		attempts++
		return errBoom
	})
	require.ErrorIs(t, err, errBoom)
	require.Equal(t, 1, attempts)
}

func TestDo_RespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Do(ctx, Policy{MaxAttempts: 5, InitialInterval: time.Millisecond}, func(context.Context) error {
		t.Fatal("op should not run after cancellation")
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestRunConsecutive_AbortsOnTooManyConsecutiveFailures(t *testing.T) {
	items := []int{1, 2, 3, 4, 5, 6}
	var processed []int
	err := RunConsecutive(context.Background(), items, 2, func(_ context.Context, item int, _ int) error {
		processed = append(processed, item)
		if item == 2 || item == 3 || item == 4 {
			return errBoom
		}
		return nil
	}, nil)
	require.ErrorIs(t, err, ErrTooManyConsecutiveFailures)
	require.Equal(t, []int{1, 2, 3, 4}, processed)
}

func TestRunConsecutive_ResetsCounterOnSuccess(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	err := RunConsecutive(context.Background(), items, 1, func(_ context.Context, item int, _ int) error {
		if item == 2 || item == 4 {
			return errBoom
		}
		return nil
	}, nil)
	require.NoError(t, err)
}
