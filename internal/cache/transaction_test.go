package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWithRetryRetriesOnBusy(t *testing.T) {
	attempts := 0
	err := withRetry(context.Background(), 3, time.Millisecond, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("database is locked")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, attempts)
}

func TestWithRetryStopsOnOtherErrors(t *testing.T) {
	attempts := 0
	err := withRetry(context.Background(), 3, time.Millisecond, func() error {
		attempts++
		return errors.New("boom")
	})
	require.Error(t, err)
	require.Equal(t, 1, attempts)
}

func TestWithRetryGivesUp(t *testing.T) {
	attempts := 0
	err := withRetry(context.Background(), 2, time.Millisecond, func() error {
		attempts++
		return errors.New("SQLITE_BUSY")
	})
	require.Error(t, err)
	require.Equal(t, 2, attempts)
}

func TestWithRetryHonoursCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := withRetry(ctx, 3, time.Millisecond, func() error { return nil })
	require.ErrorIs(t, err, context.Canceled)
}

func TestIsBusyErrorIgnoresContext(t *testing.T) {
	require.False(t, isBusyError(context.DeadlineExceeded))
	require.False(t, isBusyError(nil))
	require.True(t, isBusyError(errors.New("database is busy")))
}
