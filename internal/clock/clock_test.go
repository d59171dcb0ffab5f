package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestClock(t *testing.T, nowUnix int64) (*SlotClock, *Mock) {
	t.Helper()
	mock := &Mock{T: time.Unix(nowUnix, 0).UTC()}
	// genesis=0, 12s slots, 32 slots/epoch, 3000ms heartbeat -> 4 L2 sub-slots per L1 slot.
	sc := New(0, 12, 32, 3000, mock)
	return sc, mock
}

func TestGetCurrentSlot(t *testing.T) {
	sc, _ := newTestClock(t, 125)
	slot, err := sc.GetCurrentSlot()
	require.NoError(t, err)
	require.Equal(t, uint64(10), slot) // 125/12 = 10
}

func TestGetCurrentEpoch(t *testing.T) {
	sc, _ := newTestClock(t, 12*32*2+12*5)
	epoch, err := sc.GetCurrentEpoch()
	require.NoError(t, err)
	require.Equal(t, uint64(2), epoch)
}

func TestSecondsSinceGenesisBeforeGenesisFails(t *testing.T) {
	sc, _ := newTestClock(t, -10)
	_, err := sc.GetCurrentSlot()
	require.Error(t, err)
}

func TestGetCurrentL2SlotWithinL1Slot(t *testing.T) {
	sc, mock := newTestClock(t, 0)
	mock.Set(time.Unix(12*3+7, 0).UTC()) // slot 3 starts at t=36; 7s in -> sub-slot index 2 (7000/3000=2)
	l2Slot, err := sc.GetCurrentL2SlotWithinL1Slot()
	require.NoError(t, err)
	require.Equal(t, uint64(2), l2Slot)
}

func TestSlotsSinceL1Block(t *testing.T) {
	sc, mock := newTestClock(t, 120)
	n, err := sc.SlotsSinceL1Block(120 - 12*3)
	require.NoError(t, err)
	require.Equal(t, uint64(3), n)

	mock.Set(time.Unix(100, 0).UTC())
	_, err = sc.SlotsSinceL1Block(200)
	require.Error(t, err)
}

func TestIsSlotInLastNSlotsOfEpoch(t *testing.T) {
	sc, _ := newTestClock(t, 0)
	require.True(t, sc.IsSlotInLastNSlotsOfEpoch(31, 2))
	require.True(t, sc.IsSlotInLastNSlotsOfEpoch(30, 2))
	require.False(t, sc.IsSlotInLastNSlotsOfEpoch(29, 2))
	// second epoch
	require.True(t, sc.IsSlotInLastNSlotsOfEpoch(63, 2))
	require.False(t, sc.IsSlotInLastNSlotsOfEpoch(61, 2))
}

func TestGetNumberOfL2SlotsPerL1(t *testing.T) {
	sc, _ := newTestClock(t, 0)
	require.Equal(t, uint64(4), sc.GetNumberOfL2SlotsPerL1())
	require.Equal(t, uint64(4*32), sc.GetL2SlotsPerEpoch())
}
