// Package batchmanager glues the batch builder core, the L2 driver/engine
// facade, the L1 client, and the forced-inclusion reader into the high-level
// preconfirm/reanchor/submit operations the node loop drives, grounded on
// original_source/pacaya/src/node/batch_manager/{mod.rs,config.rs}.
package batchmanager

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"

	"github.com/catalyst-sequencer/catalyst-node/internal/batchbuilder"
	"github.com/catalyst-sequencer/catalyst-node/internal/driver"
	"github.com/catalyst-sequencer/catalyst-node/internal/txerrors"
)

// SlotInfo is the per-tick L2 slot context the manager needs to build and
// submit a block.
type SlotInfo struct {
	ParentID       uint64
	ParentHash     common.Hash
	ParentGasUsed  uint64
	SlotTimestamp  uint64
}

// Chain is the narrow L2 facade the manager drives: advancing the unsafe
// head and answering anchor/forced-inclusion bookkeeping questions normally
// served by the Taiko geth + anchor contract pair.
type Chain interface {
	AdvanceHeadToNewL2Block(ctx context.Context, block batchbuilder.L2Block, anchorBlockID uint64, anchorStateRoot common.Hash, slotInfo SlotInfo, endOfSequencing, isForcedInclusion bool, op driver.OperationType) (*driver.BuildPreconfBlockResponse, error)
	IsForcedInclusionBlock(ctx context.Context, blockID uint64) (bool, error)
	LastSyncedAnchorBlockIDFromAnchorContract(ctx context.Context) (uint64, error)
	LastSyncedAnchorBlockIDFromGeth(ctx context.Context) (uint64, error)
}

// RecoveredL2Block is one already-produced L2 block read back from geth
// during recovery, split into its anchor transaction and the rest.
type RecoveredL2Block struct {
	AnchorTxData []byte
	Rest         []*gethtypes.Transaction
	TimestampSec uint64
	Coinbase     common.Address
}

// L2BlockSource reads back an already-produced L2 block by number, used to
// rebuild in-memory batch state after a restart.
type L2BlockSource interface {
	GetL2BlockByNumber(ctx context.Context, number uint64) (RecoveredL2Block, error)
}

// AnchorDecoder recovers the anchor block id an anchor transaction encoded,
// grounded on spec.md §6's anchor transaction layout.
type AnchorDecoder interface {
	DecodeAnchorBlockID(anchorTxData []byte) (uint64, error)
}

// L1Reader is the L1 surface the manager needs beyond submission.
type L1Reader interface {
	GetBlockTimestampByNumber(ctx context.Context, number uint64) (uint64, error)
	GetLatestBlockNumber(ctx context.Context) (uint64, error)
	GetBlockStateRootByNumber(ctx context.Context, number uint64) (common.Hash, error)
	GetBlockHashByNumber(ctx context.Context, number uint64) (common.Hash, error)
}

// ForcedInclusionReader is the subset of *forcedinclusion.Reader the manager
// drives.
type ForcedInclusionReader interface {
	ConsumeForcedInclusion(ctx context.Context) ([]*gethtypes.Transaction, error)
	ReleaseForcedInclusion()
	SyncQueueIndexWithHead(ctx context.Context) (uint64, error)
}

// BatchSubmitter sends the FIFO head's batch to the L1 inbox.
type BatchSubmitter interface {
	Submit(ctx context.Context, entry batchbuilder.PendingEntry[*batchbuilder.Proposal, struct{}], submitOnlyFullBatches bool) error
}

// Config bundles the manager's static dependencies.
type Config struct {
	L1HeightLag     uint64
	DefaultCoinbase common.Address
}

// Manager is the batch-manager glue component.
type Manager struct {
	core          *batchbuilder.Core[*batchbuilder.Proposal, struct{}]
	chain         Chain
	l1            L1Reader
	forcedIncl    ForcedInclusionReader
	submitter     BatchSubmitter
	blockSource   L2BlockSource
	anchorDecoder AnchorDecoder
	config        Config
	log           log.Logger
}

// New constructs a Manager around an already-built batch-builder core.
func New(core *batchbuilder.Core[*batchbuilder.Proposal, struct{}], chain Chain, l1 L1Reader, forcedIncl ForcedInclusionReader, submitter BatchSubmitter, blockSource L2BlockSource, anchorDecoder AnchorDecoder, config Config) *Manager {
	return &Manager{
		core: core, chain: chain, l1: l1, forcedIncl: forcedIncl, submitter: submitter,
		blockSource: blockSource, anchorDecoder: anchorDecoder, config: config,
		log: log.New("component", "batch_manager"),
	}
}

// HasBatches reports whether any batch (open or queued) exists.
func (m *Manager) HasBatches() bool { return !m.core.IsEmpty() }

// HasCurrentForcedInclusion reports whether the open batch already carries a
// forced-inclusion block.
func (m *Manager) HasCurrentForcedInclusion() bool { return m.core.HasCurrentForcedInclusion() }

func (m *Manager) GetNumberOfBatches() uint64             { return m.core.NumberOfBatches() }
func (m *Manager) GetNumberOfBatchesReadyToSend() uint64 { return m.core.NumberOfBatchesReadyToSend() }

// TryFinalizeCurrentBatch closes the open batch into the FIFO if non-empty.
func (m *Manager) TryFinalizeCurrentBatch() { m.core.FinalizeCurrentBatch() }

// TakeBatchesToSend drains and returns the FIFO, clearing it.
func (m *Manager) TakeBatchesToSend() []batchbuilder.PendingEntry[*batchbuilder.Proposal, struct{}] {
	taken := m.core.BatchesToSend
	m.core.BatchesToSend = nil
	return taken
}

// PrependBatches re-inserts entries at the head of the FIFO, used by the
// verifier to hand back speculative batches it built while catching up.
func (m *Manager) PrependBatches(entries []batchbuilder.PendingEntry[*batchbuilder.Proposal, struct{}]) {
	m.core.BatchesToSend = append(entries, m.core.BatchesToSend...)
}

// CloneWithoutBatches returns a fresh Manager around a detached Core sharing
// this manager's config, used by the verifier to speculatively rebuild
// batches without touching the live FIFO.
func (m *Manager) CloneWithoutBatches() *Manager {
	return &Manager{
		core:          m.core.CloneWithoutBatches(),
		chain:         m.chain,
		l1:            m.l1,
		forcedIncl:    m.forcedIncl,
		submitter:     m.submitter,
		blockSource:   m.blockSource,
		anchorDecoder: m.anchorDecoder,
		config:        m.config,
		log:           m.log,
	}
}

// calculateAnchorBlockID implements the max-of-three anchor selection spec.md
// §4.8 describes.
func (m *Manager) calculateAnchorBlockID(ctx context.Context) (uint64, error) {
	fromLastBatch, err := m.chain.LastSyncedAnchorBlockIDFromAnchorContract(ctx)
	if err != nil {
		return 0, fmt.Errorf("batchmanager: last synced anchor from anchor contract: %w", err)
	}
	l1Height, err := m.l1.GetLatestBlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("batchmanager: latest L1 block number: %w", err)
	}
	var l1HeightWithLag uint64
	if l1Height > m.config.L1HeightLag {
		l1HeightWithLag = l1Height - m.config.L1HeightLag
	}
	fromLastL2Block, err := m.chain.LastSyncedAnchorBlockIDFromGeth(ctx)
	if err != nil {
		m.log.Warn("failed to get last anchor block id from geth", "err", err)
		fromLastL2Block = 0
	}

	anchor := fromLastBatch
	if l1HeightWithLag > anchor {
		anchor = l1HeightWithLag
	}
	if fromLastL2Block > anchor {
		anchor = fromLastL2Block
	}
	return anchor, nil
}

// createNewBatch opens a fresh proposal anchored at a newly computed anchor
// block id and returns that id.
func (m *Manager) createNewBatch(ctx context.Context) (uint64, error) {
	anchorBlockID, err := m.calculateAnchorBlockID(ctx)
	if err != nil {
		return 0, err
	}
	anchorTimestamp, err := m.l1.GetBlockTimestampByNumber(ctx, anchorBlockID)
	if err != nil {
		return 0, fmt.Errorf("batchmanager: anchor block timestamp: %w", err)
	}
	anchorHash, err := m.l1.GetBlockHashByNumber(ctx, anchorBlockID)
	if err != nil {
		return 0, fmt.Errorf("batchmanager: anchor block hash: %w", err)
	}
	anchorStateRoot, err := m.l1.GetBlockStateRootByNumber(ctx, anchorBlockID)
	if err != nil {
		return 0, fmt.Errorf("batchmanager: anchor block state root: %w", err)
	}
	m.core.SetCurrentBatch(batchbuilder.NewProposal(anchorBlockID, anchorTimestamp, anchorHash, anchorStateRoot, m.config.DefaultCoinbase))
	return anchorBlockID, nil
}

// PreconfirmBlock implements spec.md §4.8's preconfirm_block.
func (m *Manager) PreconfirmBlock(ctx context.Context, pendingTx *batchbuilder.PreBuiltTxList, slotInfo SlotInfo, endOfSequencing, allowForcedInclusion bool) (*driver.BuildPreconfBlockResponse, error) {
	l2Block := m.core.TryCreatingL2Block(pendingTx, slotInfo.SlotTimestamp, endOfSequencing)
	var response *driver.BuildPreconfBlockResponse
	if l2Block != nil {
		resp, err := m.addNewL2Block(ctx, *l2Block, slotInfo, endOfSequencing, driver.OperationPreconfirm, allowForcedInclusion)
		if err != nil {
			return nil, err
		}
		response = resp
	}

	tooOld, err := m.core.IsGreaterThanMaxAnchorHeightOffset()
	if err != nil {
		return response, fmt.Errorf("batchmanager: check anchor height offset: %w", err)
	}
	if tooOld {
		m.log.Info("maximum allowed anchor height offset exceeded, finalizing current batch")
		m.core.FinalizeCurrentBatch()
	}
	return response, nil
}

// ReanchorBlock is preconfirm_block's recovery-path sibling: it tags the
// driver call Reanchor and refuses to silently re-skip an
// OldestForcedInclusionDue block.
func (m *Manager) ReanchorBlock(ctx context.Context, pendingTx batchbuilder.PreBuiltTxList, slotInfo SlotInfo, isForcedInclusion, allowForcedInclusion bool) (*driver.BuildPreconfBlockResponse, error) {
	if isForcedInclusion && allowForcedInclusion {
		return nil, txerrors.New(txerrors.KindOldestForcedInclusionDue, "reanchor", fmt.Errorf("skip forced inclusion block because of OldestForcedInclusionDue"))
	}
	if isForcedInclusion {
		return m.preconfirmForcedInclusionBlock(ctx, slotInfo, driver.OperationReanchor)
	}
	l2Block := batchbuilder.NewL2BlockFrom(pendingTx, slotInfo.SlotTimestamp)
	return m.addNewL2Block(ctx, l2Block, slotInfo, false, driver.OperationReanchor, allowForcedInclusion)
}

func (m *Manager) addNewL2Block(ctx context.Context, l2Block batchbuilder.L2Block, slotInfo SlotInfo, endOfSequencing bool, op driver.OperationType, allowForcedInclusion bool) (*driver.BuildPreconfBlockResponse, error) {
	if !m.core.CanConsumeL2Block(l2Block) {
		anchorBlockID, err := m.createNewBatch(ctx)
		if err != nil {
			return nil, err
		}
		if allowForcedInclusion && !endOfSequencing {
			resp, err := m.addNewL2BlockWithForcedInclusionWhenNeeded(ctx, slotInfo, op, anchorBlockID)
			if err != nil {
				return nil, err
			}
			if resp != nil {
				return resp, nil
			}
		}
	}
	return m.addNewL2BlockToBatch(ctx, l2Block, slotInfo, endOfSequencing, op)
}

func (m *Manager) addNewL2BlockToBatch(ctx context.Context, l2Block batchbuilder.L2Block, slotInfo SlotInfo, endOfSequencing bool, op driver.OperationType) (*driver.BuildPreconfBlockResponse, error) {
	if err := m.core.AddL2Block(l2Block); err != nil {
		return nil, fmt.Errorf("batchmanager: add l2 block: %w", err)
	}
	anchorBlockID := (*m.core.CurrentBatch).AnchorBlockID()
	stateRoot, err := m.l1.GetBlockStateRootByNumber(ctx, anchorBlockID)
	if err != nil {
		m.core.RemoveLastL2Block()
		return nil, fmt.Errorf("batchmanager: anchor state root: %w", err)
	}
	resp, err := m.chain.AdvanceHeadToNewL2Block(ctx, l2Block, anchorBlockID, stateRoot, slotInfo, endOfSequencing, false, op)
	if err != nil {
		m.core.RemoveLastL2Block()
		return nil, fmt.Errorf("batchmanager: advance head to new l2 block: %w", err)
	}
	return resp, nil
}

func (m *Manager) addNewL2BlockWithForcedInclusionWhenNeeded(ctx context.Context, slotInfo SlotInfo, op driver.OperationType, anchorBlockID uint64) (*driver.BuildPreconfBlockResponse, error) {
	if m.HasCurrentForcedInclusion() {
		m.log.Warn("there is already a forced inclusion in the current batch")
		return nil, nil
	}
	if m.core.CurrentBatch != nil && len((*m.core.CurrentBatch).L2Blocks()) != 0 {
		return nil, nil
	}
	return m.consumeAndAdvanceForcedInclusion(ctx, slotInfo, op, anchorBlockID)
}

func (m *Manager) preconfirmForcedInclusionBlock(ctx context.Context, slotInfo SlotInfo, op driver.OperationType) (*driver.BuildPreconfBlockResponse, error) {
	anchorBlockID, err := m.calculateAnchorBlockID(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := m.consumeAndAdvanceForcedInclusion(ctx, slotInfo, op, anchorBlockID)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, fmt.Errorf("batchmanager: no forced inclusion available to preconfirm")
	}
	return resp, nil
}

func (m *Manager) consumeAndAdvanceForcedInclusion(ctx context.Context, slotInfo SlotInfo, op driver.OperationType, anchorBlockID uint64) (*driver.BuildPreconfBlockResponse, error) {
	txs, err := m.forcedIncl.ConsumeForcedInclusion(ctx)
	if err != nil {
		return nil, fmt.Errorf("batchmanager: consume forced inclusion: %w", err)
	}
	if txs == nil {
		return nil, nil
	}

	stateRoot, err := m.l1.GetBlockStateRootByNumber(ctx, anchorBlockID)
	if err != nil {
		m.forcedIncl.ReleaseForcedInclusion()
		return nil, fmt.Errorf("batchmanager: anchor state root for forced inclusion: %w", err)
	}
	block := batchbuilder.L2Block{
		PrebuiltTxList: batchbuilder.PreBuiltTxList{TxList: txs},
		TimestampSec:   slotInfo.SlotTimestamp,
	}
	resp, err := m.chain.AdvanceHeadToNewL2Block(ctx, block, anchorBlockID, stateRoot, slotInfo, false, true, op)
	if err != nil {
		m.forcedIncl.ReleaseForcedInclusion()
		m.core.CurrentBatch = nil
		return nil, fmt.Errorf("batchmanager: advance head to new forced inclusion l2 block: %w", err)
	}
	marker := struct{}{}
	m.core.CurrentForcedInclusion = &marker
	return resp, nil
}

// ResetBuilder replaces the builder core, used when the node holds neither
// the preconfer nor the submitter role.
func (m *Manager) ResetBuilder(ctx context.Context, fresh *batchbuilder.Core[*batchbuilder.Proposal, struct{}]) error {
	if _, err := m.forcedIncl.SyncQueueIndexWithHead(ctx); err != nil {
		return fmt.Errorf("batchmanager: resync forced inclusion head: %w", err)
	}
	m.core = fresh
	return nil
}

// TrySubmitOldestBatch submits the FIFO head to L1. EstimationTooEarly and
// OldestForcedInclusionDue (once the due forced inclusion is consumed) are
// retried in place next tick; a failed consume and every other
// classified or unrecognized error clears the whole FIFO, since a
// mis-anchored batch can't be fixed by retrying the same proposal.
func (m *Manager) TrySubmitOldestBatch(ctx context.Context, submitOnlyFullBatches bool) error {
	if len(m.core.BatchesToSend) == 0 {
		return nil
	}
	entry := m.core.BatchesToSend[0]
	err := m.submitter.Submit(ctx, entry, submitOnlyFullBatches)
	if err == nil {
		m.core.BatchesToSend = m.core.BatchesToSend[1:]
		return nil
	}
	if kind, ok := txerrors.ClassifyRevert(err.Error()); ok {
		switch kind {
		case txerrors.KindEstimationTooEarly:
			m.log.Debug("submission too early, will retry next tick")
			return nil
		case txerrors.KindOldestForcedInclusionDue:
			if _, consumeErr := m.forcedIncl.ConsumeForcedInclusion(ctx); consumeErr != nil {
				m.log.Error("failed to consume due forced inclusion, clearing batch FIFO", "err", consumeErr)
				m.core.BatchesToSend = nil
				return err
			}
			m.log.Info("consumed oldest due forced inclusion, will retry submission next tick")
			return nil
		}
	}
	m.log.Error("clearing batch FIFO after unrecoverable submission error", "err", err)
	m.core.BatchesToSend = nil
	return err
}

// RecoverFromL2Block rebuilds in-memory batch state from an already-produced
// L2 block, used on restart: the anchor tx is decoded to recover the
// proposal's anchor id, and a fresh proposal is opened whenever the anchor id
// or coinbase changed since the previous recovered block.
func (m *Manager) RecoverFromL2Block(ctx context.Context, height uint64) error {
	block, err := m.blockSource.GetL2BlockByNumber(ctx, height)
	if err != nil {
		return fmt.Errorf("batchmanager: read l2 block %d: %w", height, err)
	}
	anchorBlockID, err := m.anchorDecoder.DecodeAnchorBlockID(block.AnchorTxData)
	if err != nil {
		return fmt.Errorf("batchmanager: decode anchor block id from block %d: %w", height, err)
	}

	needsNewBatch := m.core.CurrentBatch == nil
	if !needsNewBatch {
		current := *m.core.CurrentBatch
		needsNewBatch = current.AnchorBlockID() != anchorBlockID || current.Coinbase != block.Coinbase
	}
	if needsNewBatch {
		m.core.FinalizeCurrentBatch()
		anchorTimestamp, err := m.l1.GetBlockTimestampByNumber(ctx, anchorBlockID)
		if err != nil {
			return fmt.Errorf("batchmanager: anchor block timestamp for recovery: %w", err)
		}
		anchorHash, err := m.l1.GetBlockHashByNumber(ctx, anchorBlockID)
		if err != nil {
			return fmt.Errorf("batchmanager: anchor block hash for recovery: %w", err)
		}
		anchorStateRoot, err := m.l1.GetBlockStateRootByNumber(ctx, anchorBlockID)
		if err != nil {
			return fmt.Errorf("batchmanager: anchor block state root for recovery: %w", err)
		}
		m.core.SetCurrentBatch(batchbuilder.NewProposal(anchorBlockID, anchorTimestamp, anchorHash, anchorStateRoot, block.Coinbase))
	}

	isForced, err := m.chain.IsForcedInclusionBlock(ctx, height)
	if err != nil {
		return fmt.Errorf("batchmanager: check forced inclusion flag for block %d: %w", height, err)
	}
	if err := m.core.AddL2Block(batchbuilder.L2Block{
		PrebuiltTxList: batchbuilder.PreBuiltTxList{TxList: block.Rest},
		TimestampSec:   block.TimestampSec,
	}); err != nil {
		return fmt.Errorf("batchmanager: recover block %d into batch: %w", height, err)
	}
	if isForced {
		marker := struct{}{}
		m.core.CurrentForcedInclusion = &marker
	}
	m.core.SetLastL2BlockTimestamp(block.TimestampSec)
	return nil
}
