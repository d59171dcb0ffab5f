// Package node implements the per-tick main loop that drives every other
// sibling component of a running node, grounded on spec.md §4.12's six-step
// algorithm and the outer iteration driven by original_source/node/src/main.rs.
package node

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/catalyst-sequencer/catalyst-node/internal/batchbuilder"
	"github.com/catalyst-sequencer/catalyst-node/internal/batchmanager"
	"github.com/catalyst-sequencer/catalyst-node/internal/clock"
	"github.com/catalyst-sequencer/catalyst-node/internal/metrics"
	"github.com/catalyst-sequencer/catalyst-node/internal/operator"
	"github.com/catalyst-sequencer/catalyst-node/internal/txerrors"
	"github.com/catalyst-sequencer/catalyst-node/internal/verifier"
)

// PendingTxListProvider is the narrow surface of *l2engine.Engine the loop
// needs: the next candidate tx list for the block under construction.
type PendingTxListProvider interface {
	GetPendingL2TxList(ctx context.Context, baseFee, batchesReadyToSend, blockMaxGasLimit uint64) (*batchbuilder.PreBuiltTxList, error)
}

// TransactionTracker is the narrow surface of *txmonitor.Monitor the loop
// needs to enforce "at most one in-flight L1 submission" (spec.md §5).
type TransactionTracker interface {
	IsTransactionInProgress() bool
}

// WatchdogCounter is the narrow surface of *watchdog.Watchdog the loop needs.
type WatchdogCounter interface {
	Increment()
	Reset()
}

// CriticalCanceller lets a tick trigger a critical-error shutdown, mirroring
// verifier.CriticalCanceller and operator.CancellationToken.
type CriticalCanceller interface {
	CancelOnCriticalError(reason string)
}

// ReorgAnnouncer is the narrow surface of *chainmonitor.Monitor the loop
// needs to announce a reanchor before it starts, so the L2 header
// reconciliation logs the resulting reorg as expected rather than as an
// alarm (spec.md §5's "reanchor must announce an expected reorg to the chain
// monitor before it starts" rule).
type ReorgAnnouncer interface {
	SetExpectedReorg(expectedBlockNumber uint64)
}

// CancellationToken is the narrow surface of *watchdog.CancellationToken Run
// needs to observe and react to a triggered cancellation.
type CancellationToken interface {
	CriticalCanceller
	Context() context.Context
	Cancelled() <-chan struct{}
	IsCancelled() bool
}

// L2Head is the execution engine's current unsafe chain head: the parent the
// builder extends this tick, plus the inputs the engine needs to price the
// next tx list.
type L2Head struct {
	Number  uint64
	Hash    common.Hash
	GasUsed uint64
	BaseFee uint64
}

// L2HeadReader reads back the node's current unsafe L2 head.
type L2HeadReader interface {
	HeadBlock(ctx context.Context) (L2Head, error)
}

// slotData adapts one tick's head+timestamp reading to operator.SlotData.
type slotData struct {
	parentID     uint64
	parentHash   common.Hash
	timestampSec uint64
}

func (s slotData) ParentID() uint64         { return s.parentID }
func (s slotData) ParentHash() common.Hash  { return s.parentHash }
func (s slotData) SlotTimestampSec() uint64 { return s.timestampSec }

// Config bundles the loop's static tunables.
type Config struct {
	TickInterval          time.Duration
	BlockMaxGasLimit      uint64
	SubmitOnlyFullBatches bool
	AllowForcedInclusion  bool
	VerifierExpirySlots   uint64
	BuilderConfig         batchbuilder.Config
}

// Loop is the node's main per-tick orchestration task. It owns the batch
// manager and the handover verifier, and is the only task that ever mutates
// batch state, per spec.md §5's "no shared mutable batch state across tasks"
// rule.
type Loop struct {
	config Config

	operator  *operator.Operator
	manager   *batchmanager.Manager
	engine    PendingTxListProvider
	slotClock *clock.SlotClock
	head      L2HeadReader
	inbox     verifier.InboxReader

	monitor        TransactionTracker
	watchdog       WatchdogCounter
	cancelToken    CancellationToken
	metrics        *metrics.Metrics
	reorgAnnouncer ReorgAnnouncer

	txErrCh <-chan txerrors.TransactionError

	headVerifier    *verifier.HeadVerifier
	currentVerifier *verifier.Verifier
	handoverManager *batchmanager.Manager

	log log.Logger
}

// New constructs a Loop around already-built sibling components.
func New(
	config Config,
	op *operator.Operator,
	manager *batchmanager.Manager,
	engine PendingTxListProvider,
	slotClock *clock.SlotClock,
	head L2HeadReader,
	inbox verifier.InboxReader,
	monitor TransactionTracker,
	wd WatchdogCounter,
	cancelToken CancellationToken,
	m *metrics.Metrics,
	txErrCh <-chan txerrors.TransactionError,
	reorgAnnouncer ReorgAnnouncer,
) *Loop {
	return &Loop{
		config:         config,
		operator:       op,
		manager:        manager,
		engine:         engine,
		slotClock:      slotClock,
		head:           head,
		inbox:          inbox,
		monitor:        monitor,
		watchdog:       wd,
		cancelToken:    cancelToken,
		metrics:        m,
		txErrCh:        txErrCh,
		reorgAnnouncer: reorgAnnouncer,
		headVerifier:   verifier.NewHeadVerifier(cancelToken),
		log:            log.New("component", "node"),
	}
}

// Run blocks, ticking at config.TickInterval with skip-missed-ticks
// semantics (time.Ticker never buffers more than one pending tick), until ctx
// is cancelled or the cancellation token fires from within a tick.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.cancelToken.Cancelled():
			return l.cancelToken.Context().Err()
		case <-ticker.C:
			if err := l.tick(ctx); err != nil {
				l.log.Error("tick failed", "err", err)
				l.watchdog.Increment()
			} else {
				l.watchdog.Reset()
			}
			if l.cancelToken.IsCancelled() {
				return l.cancelToken.Context().Err()
			}
		}
	}
}

// tick runs spec.md §4.12's six steps once.
func (l *Loop) tick(ctx context.Context) error {
	head, err := l.head.HeadBlock(ctx)
	if err != nil {
		return fmt.Errorf("node: read l2 head: %w", err)
	}
	slotTimestampSec, err := l.slotClock.GetL2SlotBeginTimestamp()
	if err != nil {
		return fmt.Errorf("node: l2 slot begin timestamp: %w", err)
	}
	slot := slotData{parentID: head.Number, parentHash: head.Hash, timestampSec: slotTimestampSec}

	status, err := l.operator.GetStatus(ctx, slot)
	if err != nil {
		return fmt.Errorf("node: operator status: %w", err)
	}

	l.drainTransactionErrors()

	if status.PreconfirmationStarted {
		if err := l.onPreconfirmationStart(ctx, status, head); err != nil {
			return fmt.Errorf("node: preconfirmation-start handling: %w", err)
		}
	}

	if status.Preconfer && status.DriverSynced {
		if err := l.runVerifierIfAny(ctx, slot, head); err != nil {
			return fmt.Errorf("node: handover verifier: %w", err)
		}
		if l.currentVerifier == nil {
			if err := l.preconfirm(ctx, status, slot, head); err != nil {
				return fmt.Errorf("node: preconfirm: %w", err)
			}
		}
	}

	if status.Submitter && !l.monitor.IsTransactionInProgress() && l.currentVerifier == nil {
		if err := l.manager.TrySubmitOldestBatch(ctx, l.config.SubmitOnlyFullBatches); err != nil {
			return fmt.Errorf("node: submit oldest batch: %w", err)
		}
	}

	if !status.Preconfer && !status.Submitter {
		l.resetBuilder(ctx)
	}

	return nil
}

// drainTransactionErrors non-blockingly empties the transaction monitor's
// error channel, classifying each report per spec.md §7.
func (l *Loop) drainTransactionErrors() {
	for {
		select {
		case txErr := <-l.txErrCh:
			l.classifyTransactionError(txErr)
		default:
			return
		}
	}
}

func (l *Loop) classifyTransactionError(txErr txerrors.TransactionError) {
	l.log.Warn("transaction monitor reported a failure", "kind", txErr.Kind, "reason", txErr.Reason, "err", txErr.Err)
	if txErr.Kind.Critical() {
		l.cancelToken.CancelOnCriticalError(fmt.Sprintf("transaction monitor: %s", txErr.Kind))
	}
}

// onPreconfirmationStart handles the preconf_started rising edge: the head
// verifier is always reset, and a submitter assumes its own inbox is already
// caught up while a non-submitting preconfer (mid handover) builds a
// detached clone to speculatively catch up before joining the FIFO.
func (l *Loop) onPreconfirmationStart(ctx context.Context, status operator.Status, head L2Head) error {
	l.headVerifier.Reset()

	if status.Submitter {
		l.currentVerifier = nil
		l.handoverManager = nil
		l.log.Info("preconfirmation started as submitter, assuming inbox is caught up to our tip")
		return nil
	}

	currentSlot, err := l.slotClock.GetCurrentSlot()
	if err != nil {
		return err
	}
	l.handoverManager = l.manager.CloneWithoutBatches()
	l.currentVerifier = verifier.New(head.Number, currentSlot, currentSlot+l.config.VerifierExpirySlots, l.inbox, l.handoverManager)
	l.log.Info("preconfirmation started as a handover preconfer, building catch-up verifier", "target_height", head.Number)
	return nil
}

// runVerifierIfAny ticks an in-progress handover verifier, promoting its
// speculative batches into the live FIFO on success or forcing a reanchor
// once its expiry slot has passed without the inbox catching up.
func (l *Loop) runVerifierIfAny(ctx context.Context, slot slotData, head L2Head) error {
	if l.currentVerifier == nil {
		return nil
	}
	currentSlot, err := l.slotClock.GetCurrentSlot()
	if err != nil {
		return err
	}
	result, err := l.currentVerifier.Tick(ctx, currentSlot)
	if err != nil {
		return err
	}

	switch result.Outcome {
	case verifier.OutcomeSuccessWithBatches:
		l.manager.PrependBatches(result.Batches)
		l.log.Info("handover verifier caught up with pending batches, promoting to submitter FIFO", "batches", len(result.Batches))
		l.currentVerifier = nil
		l.handoverManager = nil
	case verifier.OutcomeSuccessNoBatches:
		l.log.Info("handover verifier caught up with no pending batches")
		l.currentVerifier = nil
		l.handoverManager = nil
	case verifier.OutcomeReanchorNeeded:
		l.log.Warn("handover verifier expired before the inbox caught up, reanchoring", "reason", result.ReanchorReason)
		if err := l.reanchor(ctx, slot, head); err != nil {
			l.log.Error("reanchor failed", "err", err)
		}
		if l.metrics != nil {
			l.metrics.BlocksReanchored.Inc(1)
		}
		l.currentVerifier = nil
		l.handoverManager = nil
	case verifier.OutcomeSlotNotValid, verifier.OutcomeVerificationInProgress:
		// keep waiting; no state change.
	}
	return nil
}

// reanchor recovers from a handover verifier expiry: it announces the
// reorg the reanchored block will cause to the chain monitor before building
// it, so the L2 header reconciliation logs it as expected, then asks the
// live manager (not the abandoned handover clone) to build onto the last
// known-good anchor.
func (l *Loop) reanchor(ctx context.Context, slot slotData, head L2Head) error {
	if l.reorgAnnouncer != nil {
		l.reorgAnnouncer.SetExpectedReorg(slot.parentID + 1)
	}

	pendingTxList, err := l.engine.GetPendingL2TxList(ctx, head.BaseFee, l.manager.GetNumberOfBatchesReadyToSend(), l.config.BlockMaxGasLimit)
	if err != nil {
		return fmt.Errorf("get pending l2 tx list for reanchor: %w", err)
	}

	slotInfo := batchmanager.SlotInfo{
		ParentID:      slot.parentID,
		ParentHash:    slot.parentHash,
		ParentGasUsed: head.GasUsed,
		SlotTimestamp: slot.timestampSec,
	}
	resp, err := l.manager.ReanchorBlock(ctx, *pendingTxList, slotInfo, false, l.config.AllowForcedInclusion)
	if err != nil {
		return fmt.Errorf("reanchor block: %w", err)
	}
	if resp == nil {
		return nil
	}

	l.headVerifier.VerifyNextAndSet(resp.Number, resp.Hash, resp.ParentHash)
	if l.metrics != nil {
		l.metrics.BlocksPreconfirmed.Inc(1)
	}
	return nil
}

// preconfirm pulls the next pending tx list and asks the active batch
// manager (the live manager, or the handover clone while a catch-up verifier
// is running) to build and stream the next L2 block.
func (l *Loop) preconfirm(ctx context.Context, status operator.Status, slot slotData, head L2Head) error {
	l.headVerifier.Verify(head.Number, head.Hash)

	mgr := l.activeManager()

	pendingTxList, err := l.engine.GetPendingL2TxList(ctx, head.BaseFee, mgr.GetNumberOfBatchesReadyToSend(), l.config.BlockMaxGasLimit)
	if err != nil {
		return fmt.Errorf("get pending l2 tx list: %w", err)
	}

	slotInfo := batchmanager.SlotInfo{
		ParentID:      slot.parentID,
		ParentHash:    slot.parentHash,
		ParentGasUsed: head.GasUsed,
		SlotTimestamp: slot.timestampSec,
	}
	resp, err := mgr.PreconfirmBlock(ctx, pendingTxList, slotInfo, status.EndOfSequencing, l.config.AllowForcedInclusion)
	if err != nil {
		return err
	}
	if resp == nil {
		return nil
	}

	l.headVerifier.VerifyNextAndSet(resp.Number, resp.Hash, resp.ParentHash)
	if l.metrics != nil {
		l.metrics.BlocksPreconfirmed.Inc(1)
	}
	return nil
}

func (l *Loop) activeManager() *batchmanager.Manager {
	if l.handoverManager != nil {
		return l.handoverManager
	}
	return l.manager
}

// resetBuilder drops the open/queued batch state and any in-progress
// handover verifier once this node holds neither role, per spec.md §4.12's
// sixth step.
func (l *Loop) resetBuilder(ctx context.Context) {
	fresh := batchbuilder.New[*batchbuilder.Proposal, struct{}](l.config.BuilderConfig, l.slotClock)
	if err := l.manager.ResetBuilder(ctx, fresh); err != nil {
		l.log.Warn("failed to reset builder after losing both roles", "err", err)
	}
	l.currentVerifier = nil
	l.handoverManager = nil
}
