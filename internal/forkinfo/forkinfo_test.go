package forkinfo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		PacayaTimestampSec:         0,
		ShastaTimestampSec:         10,
		PermissionlessTimestampSec: 1000,
		TransitionPeriod:           5 * time.Second,
	}
}

func TestIsForkSwitchTransitionPeriod(t *testing.T) {
	info, err := New(testConfig(), 0)
	require.NoError(t, err)
	info.Fork = Pacaya

	require.True(t, info.IsForkSwitchTransitionPeriod(10))
	require.True(t, info.IsForkSwitchTransitionPeriod(5))
	require.False(t, info.IsForkSwitchTransitionPeriod(11))
	require.False(t, info.IsForkSwitchTransitionPeriod(4))
}

// S5 from spec.md §8: shasta_timestamp=100, transition_period=15, now=90.
func TestScenarioS5ForkSwitchFreeze(t *testing.T) {
	cfg := Config{
		PacayaTimestampSec: 0,
		ShastaTimestampSec: 100,
		TransitionPeriod:   15 * time.Second,
	}
	info, err := New(cfg, 0)
	require.NoError(t, err)
	info.Fork = Pacaya

	require.True(t, info.IsForkSwitchTransitionPeriod(90))
}

func TestChooseForkSelectsHighestActivated(t *testing.T) {
	cfg := testConfig()
	fork, err := chooseFork(cfg, 999)
	require.NoError(t, err)
	require.Equal(t, Shasta, fork)

	fork, err = chooseFork(cfg, 1000)
	require.NoError(t, err)
	require.Equal(t, Permissionless, fork)
}

func TestIsNextForkActive(t *testing.T) {
	info, err := New(testConfig(), 0)
	require.NoError(t, err)
	active, err := info.IsNextForkActive(10)
	require.NoError(t, err)
	require.True(t, active)

	active, err = info.IsNextForkActive(5)
	require.NoError(t, err)
	require.False(t, active)
}
