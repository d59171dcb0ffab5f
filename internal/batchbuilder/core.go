// Package batchbuilder implements the builder core that maintains one open
// proposal plus a FIFO of proposals ready to send, grounded file-for-file on
// original_source/common/src/batch_builder/core.rs.
package batchbuilder

import (
	"fmt"

	"github.com/ethereum/go-ethereum/log"
)

// SlotClock is the subset of *clock.SlotClock the builder core needs; kept
// as a narrow interface so tests can supply a fake without importing the
// whole clock package's Clock machinery.
type SlotClock interface {
	SlotsSinceL1Block(l1BlockTimestampSec uint64) (uint64, error)
	GetPreconfHeartbeatMS() uint64
}

// PendingEntry is one element of the FIFO of finalized batches awaiting L1
// submission: an optional forced-inclusion attachment plus the batch.
type PendingEntry[B any, F any] struct {
	ForcedInclusion *F
	Batch           B
}

// Core is the generic batch-builder core, parameterized over the concrete
// batch type B and the forced-inclusion attachment type F, mirroring the
// Rust BatchBuilderCore<B: BatchLike, F>.
type Core[B BatchLike[B], F any] struct {
	CurrentBatch           *B
	CurrentForcedInclusion *F
	BatchesToSend          []PendingEntry[B, F]
	Config                 Config
	SlotClock              SlotClock

	lastL2BlockTimestamp uint64
	log                  log.Logger
}

// New constructs a Core with no open batch.
func New[B BatchLike[B], F any](config Config, slotClock SlotClock) *Core[B, F] {
	return &Core[B, F]{
		Config:    config,
		SlotClock: slotClock,
		log:       log.New("component", "batch_builder"),
	}
}

func (c *Core[B, F]) HasCurrentForcedInclusion() bool { return c.CurrentForcedInclusion != nil }

// IsTimeShiftExpired reports whether adding a block at currentL2SlotTimestamp
// to the open batch would violate the max-time-shift invariant.
func (c *Core[B, F]) IsTimeShiftExpired(currentL2SlotTimestamp uint64) bool {
	if c.CurrentBatch == nil {
		return false
	}
	blocks := (*c.CurrentBatch).L2Blocks()
	if len(blocks) == 0 {
		return false
	}
	last := blocks[len(blocks)-1]
	if currentL2SlotTimestamp < last.TimestampSec {
		return false
	}
	return currentL2SlotTimestamp-last.TimestampSec > c.Config.MaxTimeShiftBetweenBlocksSec
}

// IsTimeShiftBetweenBlocksExpiring reports whether this is the last L1 slot
// an empty L2 block can still land before the time-shift invariant would be
// violated.
func (c *Core[B, F]) IsTimeShiftBetweenBlocksExpiring(currentL2SlotTimestamp uint64) bool {
	if c.CurrentBatch == nil {
		return false
	}
	blocks := (*c.CurrentBatch).L2Blocks()
	if len(blocks) == 0 {
		return false
	}
	last := blocks[len(blocks)-1]
	if currentL2SlotTimestamp < last.TimestampSec {
		c.log.Warn("preconfirmation timestamp is before the last block timestamp")
		return false
	}
	return c.IsTheLastL1SlotToAddAnEmptyL2Block(currentL2SlotTimestamp, last.TimestampSec)
}

// IsTheLastL1SlotToAddAnEmptyL2Block implements spec.md §8's boundary
// property: true iff ts-last_ts >= max_time_shift - l1_slot_duration.
func (c *Core[B, F]) IsTheLastL1SlotToAddAnEmptyL2Block(currentL2SlotTimestamp, lastBlockTimestamp uint64) bool {
	return currentL2SlotTimestamp-lastBlockTimestamp >= c.Config.MaxTimeShiftBetweenBlocksSec-c.Config.L1SlotDurationSec
}

// IsGreaterThanMaxAnchorHeightOffset reports whether the open batch's anchor
// is now older than the configured maximum offset.
func (c *Core[B, F]) IsGreaterThanMaxAnchorHeightOffset() (bool, error) {
	if c.CurrentBatch == nil {
		return false, nil
	}
	slotsSince, err := c.SlotClock.SlotsSinceL1Block((*c.CurrentBatch).AnchorBlockTimestampSec())
	if err != nil {
		return false, err
	}
	return slotsSince > c.Config.MaxAnchorHeightOffset, nil
}

// IsEmptyBlockRequired reports whether an empty block must be produced this
// L2 slot purely to avoid a time-shift overflow.
func (c *Core[B, F]) IsEmptyBlockRequired(preconfirmationTimestamp uint64) bool {
	return c.IsTimeShiftBetweenBlocksExpiring(preconfirmationTimestamp)
}

// ShouldNewBlockBeCreated implements spec.md §4.6's production-required
// predicate.
func (c *Core[B, F]) ShouldNewBlockBeCreated(numberOfPendingTxs uint64, currentL2SlotTimestamp uint64, endOfSequencing bool) bool {
	if c.IsEmptyBlockRequired(currentL2SlotTimestamp) || endOfSequencing {
		return true
	}
	if numberOfPendingTxs >= c.Config.PreconfMinTxs {
		return true
	}
	heartbeat := c.SlotClock.GetPreconfHeartbeatMS()
	if heartbeat == 0 || currentL2SlotTimestamp < c.lastL2BlockTimestamp {
		return false
	}
	numberOfL2Slots := (currentL2SlotTimestamp - c.lastL2BlockTimestamp) * 1000 / heartbeat
	return numberOfL2Slots > c.Config.PreconfMaxSkippedL2Slots
}

func (c *Core[B, F]) IsEmpty() bool {
	return c.CurrentBatch == nil && len(c.BatchesToSend) == 0
}

func (c *Core[B, F]) NumberOfBatches() uint64 {
	n := uint64(len(c.BatchesToSend))
	if c.CurrentBatch != nil {
		n++
	}
	return n
}

func (c *Core[B, F]) NumberOfBatchesReadyToSend() uint64 { return uint64(len(c.BatchesToSend)) }

// CanConsumeL2Block decides whether block fits the current batch, performing
// the two-stage compression spec.md §4.6 describes when the naive byte sum
// overflows the limit.
func (c *Core[B, F]) CanConsumeL2Block(block L2Block) bool {
	isTimeShiftExpired := c.IsTimeShiftExpired(block.TimestampSec)

	if c.CurrentBatch == nil {
		return false
	}
	batch := *c.CurrentBatch

	newBlockCount := len(batch.L2Blocks()) + 1
	if newBlockCount > int(^uint16(0)) {
		return false
	}

	newTotalBytes := batch.TotalBytes() + block.PrebuiltTxList.BytesLength

	if !c.Config.IsWithinBytesLimit(newTotalBytes) {
		// first compression: compress the existing batch without the new block.
		if err := batch.Compress(); err != nil {
			c.log.Warn("first-stage compression failed", "err", err)
			return false
		}
		newTotalBytes = batch.TotalBytes() + block.PrebuiltTxList.BytesLength

		if !c.Config.IsWithinBytesLimit(newTotalBytes) {
			// second compression: clone, append, recompress the clone — a rare,
			// tolerated extra cost (spec.md §4.6).
			clone := batch.Clone()
			clone.AppendL2Block(block)
			if err := clone.Compress(); err != nil {
				c.log.Warn("second-stage compression failed", "err", err)
				return false
			}
			newTotalBytes = clone.TotalBytes()
			c.log.Debug("can_consume_l2_block: second compression", "new_total_bytes", newTotalBytes)
		}
	}

	return c.Config.IsWithinBytesLimit(newTotalBytes) &&
		c.Config.IsWithinBlockLimit(uint16(newBlockCount)) &&
		!isTimeShiftExpired
}

// TryCreatingL2Block produces the next L2 block (or nil) per spec.md §4.6.
func (c *Core[B, F]) TryCreatingL2Block(pendingTxList *PreBuiltTxList, l2SlotTimestamp uint64, endOfSequencing bool) *L2Block {
	txCount := uint64(0)
	if pendingTxList != nil {
		txCount = uint64(len(pendingTxList.TxList))
	}

	if !c.ShouldNewBlockBeCreated(txCount, l2SlotTimestamp, endOfSequencing) {
		c.log.Debug("skipping preconfirmation for the current L2 slot")
		return nil
	}

	if pendingTxList != nil {
		c.log.Debug("creating new block with pending tx list",
			"tx_count", len(pendingTxList.TxList), "bytes_length", pendingTxList.BytesLength)
		block := NewL2BlockFrom(*pendingTxList, l2SlotTimestamp)
		return &block
	}
	block := NewEmptyL2Block(l2SlotTimestamp)
	return &block
}

// RemoveLastL2Block undoes the last AddL2Block call (used when the driver
// rejects the submission); it clears the open batch entirely if it becomes
// empty.
func (c *Core[B, F]) RemoveLastL2Block() {
	if c.CurrentBatch == nil {
		return
	}
	batch := *c.CurrentBatch
	removed, ok := batch.PopLastL2Block()
	if !ok {
		return
	}
	batch.AddTotalBytes(-removed.PrebuiltTxList.BytesLength)
	if len(batch.L2Blocks()) == 0 {
		c.CurrentBatch = nil
	}
	c.log.Debug("removed L2 block from batch",
		"txs", len(removed.PrebuiltTxList.TxList), "bytes", removed.PrebuiltTxList.BytesLength)
}

// CloneWithoutBatches returns a sibling Core with the same configuration but
// fresh state — used by the verifier to speculatively rebuild batches.
func (c *Core[B, F]) CloneWithoutBatches() *Core[B, F] {
	return &Core[B, F]{
		Config:    c.Config,
		SlotClock: c.SlotClock,
		log:       c.log,
	}
}

// FinalizeCurrentBatch pushes the open batch onto the FIFO if non-empty and
// clears it.
func (c *Core[B, F]) FinalizeCurrentBatch() {
	if c.CurrentBatch == nil {
		return
	}
	batch := *c.CurrentBatch
	if len(batch.L2Blocks()) == 0 {
		c.CurrentBatch = nil
		return
	}
	c.BatchesToSend = append(c.BatchesToSend, PendingEntry[B, F]{
		ForcedInclusion: c.CurrentForcedInclusion,
		Batch:           batch,
	})
	c.CurrentForcedInclusion = nil
	c.CurrentBatch = nil
}

// AddL2Block mutates the open batch: pushes block, adds bytes, updates
// lastL2BlockTimestamp. Fails if there is no open batch.
func (c *Core[B, F]) AddL2Block(block L2Block) error {
	if c.CurrentBatch == nil {
		return fmt.Errorf("batchbuilder: no current batch while adding L2 block")
	}
	batch := *c.CurrentBatch
	batch.AddTotalBytes(block.PrebuiltTxList.BytesLength)
	c.lastL2BlockTimestamp = block.TimestampSec
	batch.AppendL2Block(block)
	c.log.Debug("added L2 block to batch", "l2_blocks", len(batch.L2Blocks()), "total_bytes", batch.TotalBytes())
	return nil
}

// SetCurrentBatch opens batch as the current batch (used when the manager
// decides to anchor a fresh proposal).
func (c *Core[B, F]) SetCurrentBatch(batch B) { c.CurrentBatch = &batch }

// LastL2BlockTimestamp exposes the internal bookkeeping field for tests.
func (c *Core[B, F]) LastL2BlockTimestamp() uint64 { return c.lastL2BlockTimestamp }

// SetLastL2BlockTimestamp is exported for test setup and for
// recover-from-L2-block reconstruction (spec.md §4.8 RecoverFromL2Block).
func (c *Core[B, F]) SetLastL2BlockTimestamp(ts uint64) { c.lastL2BlockTimestamp = ts }
