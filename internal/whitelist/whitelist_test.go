package whitelist

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	whitelisted bool
	err         error
}

func (f *fakeProvider) IsOperatorWhitelisted(context.Context) (bool, error) {
	return f.whitelisted, f.err
}

type fakeGauge struct {
	lastValue bool
	calls     int
}

func (f *fakeGauge) SetOperatorWhitelisted(v bool) {
	f.lastValue = v
	f.calls++
}

func TestTickRecordsWhitelistedStatus(t *testing.T) {
	provider := &fakeProvider{whitelisted: true}
	gauge := &fakeGauge{}
	m := New(provider, gauge, time.Hour)

	m.tick(context.Background())
	require.Equal(t, 1, gauge.calls)
	require.True(t, gauge.lastValue)
}

func TestTickRecordsEjection(t *testing.T) {
	provider := &fakeProvider{whitelisted: false}
	gauge := &fakeGauge{}
	m := New(provider, gauge, time.Hour)

	m.tick(context.Background())
	require.False(t, gauge.lastValue)
}

func TestTickToleratesProviderError(t *testing.T) {
	provider := &fakeProvider{err: errors.New("rpc down")}
	gauge := &fakeGauge{}
	m := New(provider, gauge, time.Hour)

	require.NotPanics(t, func() { m.tick(context.Background()) })
	require.Equal(t, 0, gauge.calls)
}

func TestRunStopsOnContextCancellation(t *testing.T) {
	provider := &fakeProvider{whitelisted: true}
	m := New(provider, &fakeGauge{}, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}
