// Package forkinfo selects the active protocol fork from timestamps and
// flags the fork-switch transition window, grounded on
// original_source/common/src/fork_info/{fork.rs,mod.rs,config.rs}.
package forkinfo

import (
	"fmt"
	"time"
)

// Fork is the closed set of successively-activated protocol variants.
type Fork int

const (
	Pacaya Fork = iota
	Shasta
	Permissionless
)

func (f Fork) String() string {
	switch f {
	case Pacaya:
		return "Pacaya"
	case Shasta:
		return "Shasta"
	case Permissionless:
		return "Permissionless"
	default:
		return "Unknown"
	}
}

// allForks lists the forks in activation order; Fork's integer value is its
// index into this slice.
var allForks = []Fork{Pacaya, Shasta, Permissionless}

// Config holds the three fork activation timestamps (unix seconds) and the
// transition period, all from spec.md §6's PACAYA_TIMESTAMP_SEC /
// SHASTA_TIMESTAMP_SEC / PERMISSIONLESS_TIMESTAMP_SEC /
// FORK_SWITCH_TRANSITION_PERIOD_SEC.
type Config struct {
	PacayaTimestampSec         uint64
	ShastaTimestampSec         uint64
	PermissionlessTimestampSec uint64
	TransitionPeriod           time.Duration
}

func (c Config) timestamps() []uint64 {
	return []uint64{c.PacayaTimestampSec, c.ShastaTimestampSec, c.PermissionlessTimestampSec}
}

// Info tracks the currently active fork and its config, refreshed by
// calling Refresh as time passes.
type Info struct {
	Fork   Fork
	Config Config
}

// New computes the active fork for nowSec and returns an Info.
func New(config Config, nowSec uint64) (*Info, error) {
	fork, err := chooseFork(config, nowSec)
	if err != nil {
		return nil, err
	}
	return &Info{Fork: fork, Config: config}, nil
}

// Refresh recomputes and stores the active fork for nowSec.
func (i *Info) Refresh(nowSec uint64) error {
	fork, err := chooseFork(i.Config, nowSec)
	if err != nil {
		return err
	}
	i.Fork = fork
	return nil
}

// IsNextForkActive reports whether, at the given timestamp, a fork beyond
// the one currently recorded on Info would be active.
func (i *Info) IsNextForkActive(timestampSec uint64) (bool, error) {
	fork, err := chooseFork(i.Config, timestampSec)
	if err != nil {
		return false, err
	}
	return fork != i.Fork, nil
}

func chooseFork(config Config, timestampSec uint64) (Fork, error) {
	timestamps := config.timestamps()
	for idx := len(allForks) - 1; idx >= 0; idx-- {
		if timestampSec >= timestamps[idx] {
			return allForks[idx], nil
		}
	}
	return 0, fmt.Errorf("forkinfo: no fork active at timestamp %d", timestampSec)
}

// IsForkSwitchTransitionPeriod reports whether currentTimeSec falls within
// the transition window immediately preceding the activation of the fork
// following the one currently recorded on Info: [next-transition, next].
func (i *Info) IsForkSwitchTransitionPeriod(currentTimeSec uint64) bool {
	idx := int(i.Fork)
	if idx+1 >= len(allForks) {
		return false
	}
	nextTimestamp := i.Config.timestamps()[idx+1]
	transitionSec := uint64(i.Config.TransitionPeriod / time.Second)
	if currentTimeSec > nextTimestamp {
		return false
	}
	windowStart := uint64(0)
	if nextTimestamp > transitionSec {
		windowStart = nextTimestamp - transitionSec
	}
	return currentTimeSec >= windowStart
}
