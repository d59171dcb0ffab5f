// Package operator implements the per-tick role state machine that decides
// whether this node is the current preconfer/submitter, grounded on
// original_source/pacaya/src/node/operator/{mod.rs,status.rs}.
package operator

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/catalyst-sequencer/catalyst-node/internal/clock"
	"github.com/catalyst-sequencer/catalyst-node/internal/driver"
)

// SlotData is the L2-side context the operator needs each tick: which L2
// block is the current unsafe head and when it landed.
type SlotData interface {
	ParentID() uint64
	ParentHash() common.Hash
	SlotTimestampSec() uint64
}

// PreconfOperator is the L1 facade the operator consults to learn who holds
// the preconfer role.
type PreconfOperator interface {
	IsPreconfRouterSpecified(ctx context.Context) (bool, error)
	GetOperatorsForCurrentAndNextEpoch(ctx context.Context, epochBeginTimestamp uint64) (current, next common.Address, err error)
	GetHandoverWindowSlots(ctx context.Context) (uint64, error)
	GetL2HeightFromTaikoInbox(ctx context.Context) (uint64, error)
	PreconferAddress() common.Address
}

// ErrOperatorCheckTooEarly is returned by PreconfOperator implementations
// when the current epoch's operator snapshot isn't available yet (e.g. the
// epoch just started and the router hasn't rotated); the operator state
// machine falls back to the previously computed "next operator" guess.
var ErrOperatorCheckTooEarly = fmt.Errorf("operator: check too early")

// ForkInfo reports whether l2SlotTimestampSec falls inside a fork-switch
// transition window, during which the node must not claim any role.
type ForkInfo interface {
	IsForkSwitchTransitionPeriod(l2SlotTimestampSec uint64) bool
}

// Status is the per-tick role snapshot, mirroring status.rs's Status.
type Status struct {
	Preconfer              bool
	Submitter              bool
	PreconfirmationStarted bool
	EndOfSequencing        bool
	DriverSynced           bool
}

// CancellationToken is the narrow surface the operator needs to trigger a
// critical shutdown.
type CancellationToken interface {
	CancelOnCriticalError(reason string)
}

// Config bundles the operator's static, rarely-changing parameters.
type Config struct {
	HandoverWindowSlotsDefault                uint64
	HandoverStartBufferMS                     uint64
	SimulateNotSubmittingAtTheEndOfEpoch      bool
}

// Operator is the role state machine.
type Operator struct {
	executionLayer PreconfOperator
	slotClock      *clock.SlotClock
	driverStatus   driver.StatusProvider
	forkInfo       ForkInfo
	cancelToken    CancellationToken
	config         Config

	handoverWindowSlots    uint64
	nextOperator           bool
	continuingRole         bool
	wasSyncedPreconfer     bool
	cancelCounter          uint64
	lastConfigReloadEpoch  uint64
	currentOperatorAddress common.Address

	log log.Logger
}

// New constructs an Operator.
func New(executionLayer PreconfOperator, slotClock *clock.SlotClock, driverStatus driver.StatusProvider, forkInfo ForkInfo, cancelToken CancellationToken, config Config) *Operator {
	return &Operator{
		executionLayer:      executionLayer,
		slotClock:           slotClock,
		driverStatus:        driverStatus,
		forkInfo:            forkInfo,
		cancelToken:         cancelToken,
		config:              config,
		handoverWindowSlots: config.HandoverWindowSlotsDefault,
		log:                 log.New("component", "operator"),
	}
}

// Reset clears the state carried between epochs, used when the preconf
// router is not specified.
func (o *Operator) Reset() {
	o.nextOperator = false
	o.continuingRole = false
	o.wasSyncedPreconfer = false
	o.cancelCounter = 0
}

// GetStatus computes this tick's role snapshot, per spec.md §4.9's output
// table.
func (o *Operator) GetStatus(ctx context.Context, l2SlotInfo SlotData) (Status, error) {
	specified, err := o.executionLayer.IsPreconfRouterSpecified(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("operator: check preconf router: %w", err)
	}
	if !specified {
		o.log.Warn("PreconfRouter is not specified in TaikoWrapper")
		o.Reset()
		return Status{}, nil
	}

	l1Slot, err := o.slotClock.GetCurrentSlotOfEpoch()
	if err != nil {
		return Status{}, fmt.Errorf("operator: current slot of epoch: %w", err)
	}
	epoch, err := o.slotClock.GetCurrentEpoch()
	if err != nil {
		return Status{}, fmt.Errorf("operator: current epoch: %w", err)
	}
	if epoch > o.lastConfigReloadEpoch {
		o.handoverWindowSlots = o.reloadHandoverWindowSlots(ctx)
		o.lastConfigReloadEpoch = epoch
	}

	currentOperator, err := o.isCurrentOperator(ctx, epoch)
	if err != nil {
		return Status{}, err
	}
	handoverWindow := o.isHandoverWindow(l1Slot)
	driverStatus, err := o.driverStatus.GetStatus(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("operator: driver status: %w", err)
	}
	isDriverSynced, err := o.isDriverSynced(ctx, l2SlotInfo, driverStatus)
	if err != nil {
		return Status{}, err
	}
	preconfer, err := o.isPreconfer(currentOperator, handoverWindow, l1Slot, l2SlotInfo, driverStatus)
	if err != nil {
		return Status{}, err
	}
	preconfirmationStarted := o.isPreconfirmationStartL2Slot(preconfer, isDriverSynced)
	if preconfirmationStarted {
		o.wasSyncedPreconfer = true
	}
	if !preconfer {
		o.wasSyncedPreconfer = false
	}

	submitter := o.isSubmitter(currentOperator, handoverWindow)
	endOfSequencing, err := o.isEndOfSequencing(preconfer, submitter, l1Slot)
	if err != nil {
		return Status{}, err
	}

	return Status{
		Preconfer:              preconfer,
		Submitter:              submitter,
		PreconfirmationStarted: preconfirmationStarted,
		EndOfSequencing:        endOfSequencing,
		DriverSynced:           isDriverSynced,
	}, nil
}

func (o *Operator) isCurrentOperator(ctx context.Context, epoch uint64) (bool, error) {
	epochBeginTimestamp := o.slotClock.GetEpochBeginTimestamp(epoch)
	current, next, err := o.executionLayer.GetOperatorsForCurrentAndNextEpoch(ctx, epochBeginTimestamp)
	if err != nil {
		if err == ErrOperatorCheckTooEarly {
			o.log.Debug("operator check too early, using next operator guess")
			return o.nextOperator, nil
		}
		return false, fmt.Errorf("operator: get operators for current and next epoch: %w", err)
	}
	if current != o.currentOperatorAddress {
		o.log.Info("operator has changed", "from", o.currentOperatorAddress, "to", current, "next", next)
		o.currentOperatorAddress = current
	}
	preconferAddress := o.executionLayer.PreconferAddress()
	currentOperator := current == preconferAddress
	o.nextOperator = next == preconferAddress
	o.continuingRole = currentOperator && o.nextOperator
	return currentOperator, nil
}

func (o *Operator) isEndOfSequencing(preconfer, submitter bool, l1Slot uint64) (bool, error) {
	slotBeforeHandoverWindow, err := o.isL2SlotBeforeHandoverWindow(l1Slot)
	if err != nil {
		return false, err
	}
	return !o.continuingRole && preconfer && submitter && slotBeforeHandoverWindow, nil
}

func (o *Operator) isL2SlotBeforeHandoverWindow(l1Slot uint64) (bool, error) {
	endL1Slot := o.slotClock.GetSlotsPerEpoch() - o.handoverWindowSlots - 1
	if l1Slot != endL1Slot {
		return false, nil
	}
	l2Slot, err := o.slotClock.GetCurrentL2SlotWithinL1Slot()
	if err != nil {
		return false, fmt.Errorf("operator: current l2 slot within l1 slot: %w", err)
	}
	return l2Slot+1 == o.slotClock.GetNumberOfL2SlotsPerL1(), nil
}

func (o *Operator) isDriverSynced(ctx context.Context, l2SlotInfo SlotData, driverStatus driver.Status) (bool, error) {
	gethSyncedWithL1, err := o.isTaikoGethSyncedWithL1(ctx, l2SlotInfo)
	if err != nil {
		return false, err
	}
	gethAndDriverSynced := o.isBlockHeightSyncedBetweenGethAndDriver(driverStatus, l2SlotInfo)
	if gethSyncedWithL1 && gethAndDriverSynced {
		o.cancelCounter = 0
		return true, nil
	}
	if !gethSyncedWithL1 {
		o.log.Warn("taiko geth is not synced with taiko inbox height")
	}
	if !gethAndDriverSynced {
		o.log.Warn("geth and driver are not synced")
	}
	o.cancelCounter++
	o.cancelIfNotSyncedForSufficientLongTime()
	return false, nil
}

func (o *Operator) isPreconfer(currentOperator, handoverWindow bool, l1Slot uint64, l2SlotInfo SlotData, driverStatus driver.Status) (bool, error) {
	if o.forkInfo != nil && o.forkInfo.IsForkSwitchTransitionPeriod(l2SlotInfo.SlotTimestampSec()) {
		return false, nil
	}
	if handoverWindow {
		if !o.nextOperator {
			return false, nil
		}
		if o.wasSyncedPreconfer {
			return true, nil
		}
		inBuffer, err := o.isHandoverBuffer(l1Slot, l2SlotInfo, driverStatus)
		if err != nil {
			return false, err
		}
		return !inBuffer, nil
	}
	return currentOperator, nil
}

func (o *Operator) cancelIfNotSyncedForSufficientLongTime() {
	if o.cancelCounter > o.slotClock.GetL2SlotsPerEpoch()/2 {
		o.log.Warn("not synchronized geth/driver for too long, cancelling", "count", o.cancelCounter)
		o.cancelToken.CancelOnCriticalError("driver sync failure exceeded half an epoch of l2 slots")
	}
}

func (o *Operator) isHandoverBuffer(l1Slot uint64, l2SlotInfo SlotData, driverStatus driver.Status) (bool, error) {
	msFromStart, err := o.getMSFromHandoverWindowStart(l1Slot)
	if err != nil {
		return false, err
	}
	if msFromStart <= o.config.HandoverStartBufferMS {
		return !o.endOfSequencingMarkerReceived(driverStatus, l2SlotInfo), nil
	}
	return false, nil
}

func (o *Operator) endOfSequencingMarkerReceived(driverStatus driver.Status, l2SlotInfo SlotData) bool {
	return l2SlotInfo.ParentHash() == driverStatus.EndOfSequencingBlockHash
}

func (o *Operator) isSubmitter(currentOperator, handoverWindow bool) bool {
	if handoverWindow && o.config.SimulateNotSubmittingAtTheEndOfEpoch {
		return false
	}
	return currentOperator
}

func (o *Operator) isPreconfirmationStartL2Slot(preconfer, isDriverSynced bool) bool {
	return !o.wasSyncedPreconfer && preconfer && isDriverSynced
}

func (o *Operator) isHandoverWindow(slot uint64) bool {
	return o.slotClock.IsSlotInLastNSlotsOfEpoch(slot, o.handoverWindowSlots)
}

func (o *Operator) getMSFromHandoverWindowStart(l1Slot uint64) (uint64, error) {
	d, err := o.slotClock.TimeFromNLastSlotsOfEpoch(l1Slot, o.handoverWindowSlots)
	if err != nil {
		return 0, fmt.Errorf("operator: time from n last slots of epoch: %w", err)
	}
	return uint64(d.Milliseconds()), nil
}

func (o *Operator) isBlockHeightSyncedBetweenGethAndDriver(driverStatus driver.Status, l2SlotInfo SlotData) bool {
	if driverStatus.HighestUnsafeL2PayloadBlockID == 0 {
		return true
	}
	gethHeight := l2SlotInfo.ParentID()
	if gethHeight != driverStatus.HighestUnsafeL2PayloadBlockID {
		o.log.Warn("highest unsafe l2 payload block id differs from taiko geth height",
			"highest_unsafe", driverStatus.HighestUnsafeL2PayloadBlockID, "geth_height", gethHeight)
	}
	return gethHeight == driverStatus.HighestUnsafeL2PayloadBlockID
}

func (o *Operator) isTaikoGethSyncedWithL1(ctx context.Context, l2SlotInfo SlotData) (bool, error) {
	taikoInboxHeight, err := o.executionLayer.GetL2HeightFromTaikoInbox(ctx)
	if err != nil {
		return false, fmt.Errorf("operator: l2 height from taiko inbox: %w", err)
	}
	return l2SlotInfo.ParentID() >= taikoInboxHeight, nil
}

func (o *Operator) reloadHandoverWindowSlots(ctx context.Context) uint64 {
	slots, err := o.executionLayer.GetHandoverWindowSlots(ctx)
	if err != nil {
		o.log.Warn("failed to get preconf router config, using default handover window slots", "default", o.config.HandoverWindowSlotsDefault, "err", err)
		return o.config.HandoverWindowSlotsDefault
	}
	return slots
}
