// Package clock maps wall-clock time onto the L1 slot/epoch grid and the
// L2 sub-slot grid derived from it.
package clock

import (
	"fmt"
	"time"
)

// Clock abstracts wall-clock reads so the slot clock is deterministically
// testable; Real uses time.Now, and tests supply a Mock.
type Clock interface {
	Now() time.Time
}

// Real is the production Clock, backed by time.Now.
type Real struct{}

func (Real) Now() time.Time { return time.Now() }

// Mock is a settable Clock for tests.
type Mock struct {
	T time.Time
}

func (m *Mock) Now() time.Time { return m.T }
func (m *Mock) Set(t time.Time) { m.T = t }
func (m *Mock) Advance(d time.Duration) { m.T = m.T.Add(d) }

// SlotClock converts wall time to L1 slot/epoch and L2 sub-slot numbers.
type SlotClock struct {
	genesisTime     time.Time
	slotDuration    time.Duration
	slotsPerEpoch   uint64
	l2HeartbeatMS   uint64
	l2SlotsPerL1    uint64
	clock           Clock
}

// New builds a SlotClock. genesisTimeSec is the L1 beacon genesis time in
// unix seconds; slotDurationSec and slotsPerEpoch describe the L1 chain;
// l2HeartbeatMS is the L2 sub-slot period.
func New(genesisTimeSec uint64, slotDurationSec uint64, slotsPerEpoch uint64, l2HeartbeatMS uint64, clk Clock) *SlotClock {
	slotDuration := time.Duration(slotDurationSec) * time.Second
	l2SlotsPerL1 := slotDurationSec * 1000 / l2HeartbeatMS
	if clk == nil {
		clk = Real{}
	}
	return &SlotClock{
		genesisTime:   time.Unix(int64(genesisTimeSec), 0).UTC(),
		slotDuration:  slotDuration,
		slotsPerEpoch: slotsPerEpoch,
		l2HeartbeatMS: l2HeartbeatMS,
		l2SlotsPerL1:  l2SlotsPerL1,
		clock:         clk,
	}
}

// GetNumberOfL2SlotsPerL1 returns the number of L2 sub-slots inside one L1 slot.
func (c *SlotClock) GetNumberOfL2SlotsPerL1() uint64 { return c.l2SlotsPerL1 }

// GetL2SlotsPerEpoch returns the number of L2 sub-slots inside one L1 epoch.
func (c *SlotClock) GetL2SlotsPerEpoch() uint64 { return c.l2SlotsPerL1 * c.slotsPerEpoch }

// GetPreconfHeartbeatMS returns the configured L2 heartbeat in milliseconds.
func (c *SlotClock) GetPreconfHeartbeatMS() uint64 { return c.l2HeartbeatMS }

// GetSlotsPerEpoch returns the configured number of L1 slots per epoch.
func (c *SlotClock) GetSlotsPerEpoch() uint64 { return c.slotsPerEpoch }

func (c *SlotClock) secondsSinceGenesis() (uint64, error) {
	now := c.clock.Now()
	if now.Before(c.genesisTime) {
		return 0, fmt.Errorf("clock: now (%s) is before genesis (%s)", now, c.genesisTime)
	}
	return uint64(now.Sub(c.genesisTime) / time.Second), nil
}

// GetCurrentSlot returns the L1 slot number for the current wall time.
func (c *SlotClock) GetCurrentSlot() (uint64, error) {
	secs, err := c.secondsSinceGenesis()
	if err != nil {
		return 0, err
	}
	return secs / uint64(c.slotDuration/time.Second), nil
}

// GetCurrentEpoch returns the L1 epoch number for the current wall time.
func (c *SlotClock) GetCurrentEpoch() (uint64, error) {
	slot, err := c.GetCurrentSlot()
	if err != nil {
		return 0, err
	}
	return slot / c.slotsPerEpoch, nil
}

// GetCurrentSlotOfEpoch returns the slot index within the current epoch, [0, slotsPerEpoch).
func (c *SlotClock) GetCurrentSlotOfEpoch() (uint64, error) {
	slot, err := c.GetCurrentSlot()
	if err != nil {
		return 0, err
	}
	return slot % c.slotsPerEpoch, nil
}

// StartOf returns the wall-clock start time of the given L1 slot.
func (c *SlotClock) StartOf(slot uint64) time.Time {
	return c.genesisTime.Add(time.Duration(slot) * c.slotDuration)
}

// GetEpochBeginTimestamp returns the unix timestamp (seconds) at which the
// given epoch starts.
func (c *SlotClock) GetEpochBeginTimestamp(epoch uint64) uint64 {
	return uint64(c.StartOf(epoch * c.slotsPerEpoch).Unix())
}

// DurationToNextSlot returns how long until the next L1 slot boundary.
func (c *SlotClock) DurationToNextSlot() (time.Duration, error) {
	slot, err := c.GetCurrentSlot()
	if err != nil {
		return 0, err
	}
	next := c.StartOf(slot + 1)
	return next.Sub(c.clock.Now()), nil
}

// DurationToNextEpoch returns how long until the next L1 epoch boundary.
func (c *SlotClock) DurationToNextEpoch() (time.Duration, error) {
	epoch, err := c.GetCurrentEpoch()
	if err != nil {
		return 0, err
	}
	next := c.StartOf((epoch + 1) * c.slotsPerEpoch)
	return next.Sub(c.clock.Now()), nil
}

// GetCurrentL2SlotWithinL1Slot returns the index of the current L2 sub-slot
// inside the current L1 slot, [0, l2SlotsPerL1).
func (c *SlotClock) GetCurrentL2SlotWithinL1Slot() (uint64, error) {
	slot, err := c.GetCurrentSlot()
	if err != nil {
		return 0, err
	}
	slotStart := c.StartOf(slot)
	elapsedMS := uint64(c.clock.Now().Sub(slotStart) / time.Millisecond)
	return elapsedMS / c.l2HeartbeatMS, nil
}

// GetL2SlotBeginTimestamp returns the unix timestamp (seconds) marking the
// beginning of the current L2 sub-slot; this is the canonical timestamp used
// as slot_timestamp when building an L2 block.
func (c *SlotClock) GetL2SlotBeginTimestamp() (uint64, error) {
	slot, err := c.GetCurrentSlot()
	if err != nil {
		return 0, err
	}
	l2Slot, err := c.GetCurrentL2SlotWithinL1Slot()
	if err != nil {
		return 0, err
	}
	slotStart := c.StartOf(slot)
	offset := time.Duration(l2Slot*c.l2HeartbeatMS) * time.Millisecond
	return uint64(slotStart.Add(offset).Unix()), nil
}

// SlotsSinceL1Block returns the number of L1 slots elapsed between the given
// L1 block timestamp and now. Fails if the timestamp is in the future.
func (c *SlotClock) SlotsSinceL1Block(l1BlockTimestampSec uint64) (uint64, error) {
	now := c.clock.Now()
	blockTime := time.Unix(int64(l1BlockTimestampSec), 0).UTC()
	if blockTime.After(now) {
		return 0, fmt.Errorf("clock: l1 block timestamp %d is in the future (now %d)", l1BlockTimestampSec, now.Unix())
	}
	return uint64(now.Sub(blockTime) / c.slotDuration), nil
}

// IsSlotInLastNSlotsOfEpoch reports whether slot falls in the last n slots of
// its epoch.
func (c *SlotClock) IsSlotInLastNSlotsOfEpoch(slot uint64, n uint64) bool {
	slotOfEpoch := slot % c.slotsPerEpoch
	if n > c.slotsPerEpoch {
		n = c.slotsPerEpoch
	}
	return slotOfEpoch >= c.slotsPerEpoch-n
}

// TimeFromNLastSlotsOfEpoch returns how long, from the start of slot, we are
// into the window formed by the last n slots of its epoch. The window start
// is slotsPerEpoch-n slots into the epoch; a slot before the window yields 0.
func (c *SlotClock) TimeFromNLastSlotsOfEpoch(slot uint64, n uint64) (time.Duration, error) {
	if n > c.slotsPerEpoch {
		n = c.slotsPerEpoch
	}
	epoch := slot / c.slotsPerEpoch
	windowStartSlot := epoch*c.slotsPerEpoch + (c.slotsPerEpoch - n)
	windowStart := c.StartOf(windowStartSlot)
	slotStart := c.StartOf(slot)
	if slotStart.Before(windowStart) {
		return 0, nil
	}
	return slotStart.Sub(windowStart), nil
}
