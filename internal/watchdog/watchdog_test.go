package watchdog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeCounter struct {
	total int64
}

func (f *fakeCounter) Inc(delta int64) { f.total += delta }

func TestCancelOnCriticalErrorCancelsContextAndIncrementsCounter(t *testing.T) {
	counter := &fakeCounter{}
	token := NewCancellationToken(context.Background(), counter)

	require.False(t, token.IsCancelled())
	token.CancelOnCriticalError("boom")
	require.True(t, token.IsCancelled())
	require.Equal(t, int64(1), counter.total)
}

func TestCancelDoesNotIncrementCounter(t *testing.T) {
	counter := &fakeCounter{}
	token := NewCancellationToken(context.Background(), counter)

	token.Cancel()
	require.True(t, token.IsCancelled())
	require.Equal(t, int64(0), counter.total)
}

func TestWatchdogDoesNotCancelBelowThreshold(t *testing.T) {
	token := NewCancellationToken(context.Background(), nil)
	wd := New(token, 3)

	for i := 0; i < 3; i++ {
		wd.Increment()
	}
	require.False(t, token.IsCancelled())
	require.Equal(t, uint64(3), wd.Counter())
}

func TestWatchdogCancelsAboveThreshold(t *testing.T) {
	token := NewCancellationToken(context.Background(), nil)
	wd := New(token, 3)

	for i := 0; i < 4; i++ {
		wd.Increment()
	}
	require.True(t, token.IsCancelled())
}

func TestWatchdogResetClearsCounter(t *testing.T) {
	token := NewCancellationToken(context.Background(), nil)
	wd := New(token, 3)

	wd.Increment()
	wd.Increment()
	wd.Reset()
	require.Equal(t, uint64(0), wd.Counter())

	for i := 0; i < 3; i++ {
		wd.Increment()
	}
	require.False(t, token.IsCancelled())
}
