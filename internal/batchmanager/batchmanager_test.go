package batchmanager

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"github.com/catalyst-sequencer/catalyst-node/internal/batchbuilder"
	"github.com/catalyst-sequencer/catalyst-node/internal/driver"
	"github.com/catalyst-sequencer/catalyst-node/internal/txerrors"
)

type fakeChain struct {
	lastAnchorFromContract uint64
	lastAnchorFromGeth     uint64
	forcedFlags            map[uint64]bool
	advanceErr             error
	advanceCalls           int
}

func (f *fakeChain) AdvanceHeadToNewL2Block(_ context.Context, _ batchbuilder.L2Block, anchorBlockID uint64, _ common.Hash, _ SlotInfo, _, _ bool, _ driver.OperationType) (*driver.BuildPreconfBlockResponse, error) {
	f.advanceCalls++
	if f.advanceErr != nil {
		return nil, f.advanceErr
	}
	return &driver.BuildPreconfBlockResponse{Number: anchorBlockID}, nil
}

func (f *fakeChain) IsForcedInclusionBlock(_ context.Context, blockID uint64) (bool, error) {
	return f.forcedFlags[blockID], nil
}

func (f *fakeChain) LastSyncedAnchorBlockIDFromAnchorContract(context.Context) (uint64, error) {
	return f.lastAnchorFromContract, nil
}

func (f *fakeChain) LastSyncedAnchorBlockIDFromGeth(context.Context) (uint64, error) {
	return f.lastAnchorFromGeth, nil
}

type fakeL1 struct {
	latestNumber uint64
	timestamps   map[uint64]uint64
}

func (f *fakeL1) GetBlockTimestampByNumber(_ context.Context, number uint64) (uint64, error) {
	return f.timestamps[number], nil
}

func (f *fakeL1) GetLatestBlockNumber(context.Context) (uint64, error) { return f.latestNumber, nil }

func (f *fakeL1) GetBlockStateRootByNumber(_ context.Context, number uint64) (common.Hash, error) {
	return common.BigToHash(new(big.Int).SetUint64(number)), nil
}

func (f *fakeL1) GetBlockHashByNumber(_ context.Context, number uint64) (common.Hash, error) {
	return common.BigToHash(new(big.Int).SetUint64(number + 1000)), nil
}

type fakeForcedInclusion struct {
	txs          []*gethtypes.Transaction
	released     bool
	consumeErr   error
	consumeCalls int
}

func (f *fakeForcedInclusion) ConsumeForcedInclusion(context.Context) ([]*gethtypes.Transaction, error) {
	f.consumeCalls++
	return f.txs, f.consumeErr
}

func (f *fakeForcedInclusion) ReleaseForcedInclusion() { f.released = true }

func (f *fakeForcedInclusion) SyncQueueIndexWithHead(context.Context) (uint64, error) { return 0, nil }

type fakeSubmitter struct {
	err   error
	calls int
}

func (f *fakeSubmitter) Submit(_ context.Context, _ batchbuilder.PendingEntry[*batchbuilder.Proposal, struct{}], _ bool) error {
	f.calls++
	return f.err
}

type fakeBlockSource struct {
	block RecoveredL2Block
}

func (f *fakeBlockSource) GetL2BlockByNumber(context.Context, uint64) (RecoveredL2Block, error) {
	return f.block, nil
}

type fakeAnchorDecoder struct {
	anchorID uint64
	err      error
}

func (f *fakeAnchorDecoder) DecodeAnchorBlockID([]byte) (uint64, error) { return f.anchorID, f.err }

func newTestManager(t *testing.T) (*Manager, *fakeChain, *fakeL1, *fakeForcedInclusion, *fakeSubmitter) {
	t.Helper()
	core := batchbuilder.New[*batchbuilder.Proposal, struct{}](batchbuilder.Config{
		MaxBytesSizeOfBatch:          1_000_000,
		MaxBlocksPerBatch:            100,
		MaxAnchorHeightOffset:        100,
		MaxTimeShiftBetweenBlocksSec: 255,
		L1SlotDurationSec:            12,
		PreconfMinTxs:                0,
		PreconfMaxSkippedL2Slots:     10,
	}, fakeSlotClock{})
	chain := &fakeChain{forcedFlags: map[uint64]bool{}}
	l1 := &fakeL1{latestNumber: 500, timestamps: map[uint64]uint64{}}
	forced := &fakeForcedInclusion{}
	submitter := &fakeSubmitter{}
	blocks := &fakeBlockSource{}
	decoder := &fakeAnchorDecoder{}
	m := New(core, chain, l1, forced, submitter, blocks, decoder, Config{L1HeightLag: 2, DefaultCoinbase: common.HexToAddress("0x01")})
	return m, chain, l1, forced, submitter
}

type fakeSlotClock struct{}

func (fakeSlotClock) SlotsSinceL1Block(uint64) (uint64, error) { return 0, nil }
func (fakeSlotClock) GetPreconfHeartbeatMS() uint64            { return 2000 }

func TestPreconfirmBlockOpensBatchAndAdvancesHead(t *testing.T) {
	m, chain, _, _, _ := newTestManager(t)
	pendingTx := &batchbuilder.PreBuiltTxList{TxList: []*gethtypes.Transaction{gethtypes.NewTx(&gethtypes.LegacyTx{})}}

	resp, err := m.PreconfirmBlock(context.Background(), pendingTx, SlotInfo{SlotTimestamp: 1000}, false, false)
	require.NoError(t, err)
	require.NotNil(t, resp)
	require.Equal(t, 1, chain.advanceCalls)
	require.True(t, m.HasBatches())
}

func TestPreconfirmBlockRollsBackOnDriverRejection(t *testing.T) {
	m, chain, _, _, _ := newTestManager(t)
	chain.advanceErr = errors.New("driver rejected block")
	pendingTx := &batchbuilder.PreBuiltTxList{TxList: []*gethtypes.Transaction{gethtypes.NewTx(&gethtypes.LegacyTx{})}}

	_, err := m.PreconfirmBlock(context.Background(), pendingTx, SlotInfo{SlotTimestamp: 1000}, false, false)
	require.Error(t, err)
	require.False(t, m.HasBatches())
}

func TestTrySubmitOldestBatchClearsFifoOnUnrecoverableError(t *testing.T) {
	m, _, _, _, submitter := newTestManager(t)
	pendingTx := &batchbuilder.PreBuiltTxList{TxList: []*gethtypes.Transaction{gethtypes.NewTx(&gethtypes.LegacyTx{})}}
	_, err := m.PreconfirmBlock(context.Background(), pendingTx, SlotInfo{SlotTimestamp: 1000}, false, false)
	require.NoError(t, err)
	m.TryFinalizeCurrentBatch()
	require.Equal(t, uint64(1), m.GetNumberOfBatchesReadyToSend())

	submitter.err = errors.New("estimation failed: execution reverted")
	err = m.TrySubmitOldestBatch(context.Background(), false)
	require.Error(t, err)
	require.Equal(t, uint64(0), m.GetNumberOfBatchesReadyToSend())
}

func TestTrySubmitOldestBatchKeepsFifoOnEstimationTooEarly(t *testing.T) {
	m, _, _, _, submitter := newTestManager(t)
	pendingTx := &batchbuilder.PreBuiltTxList{TxList: []*gethtypes.Transaction{gethtypes.NewTx(&gethtypes.LegacyTx{})}}
	_, err := m.PreconfirmBlock(context.Background(), pendingTx, SlotInfo{SlotTimestamp: 1000}, false, false)
	require.NoError(t, err)
	m.TryFinalizeCurrentBatch()

	submitter.err = errors.New("too early")
	err = m.TrySubmitOldestBatch(context.Background(), false)
	require.NoError(t, err)
	require.Equal(t, uint64(1), m.GetNumberOfBatchesReadyToSend())
}

func TestTrySubmitOldestBatchConsumesForcedInclusionOnOldestForcedInclusionDue(t *testing.T) {
	m, _, _, forced, submitter := newTestManager(t)
	pendingTx := &batchbuilder.PreBuiltTxList{TxList: []*gethtypes.Transaction{gethtypes.NewTx(&gethtypes.LegacyTx{})}}
	_, err := m.PreconfirmBlock(context.Background(), pendingTx, SlotInfo{SlotTimestamp: 1000}, false, false)
	require.NoError(t, err)
	m.TryFinalizeCurrentBatch()

	submitter.err = fmt.Errorf("chain: submit proposeBatch tx: %w", errors.New("execution reverted: OldestForcedInclusionDue"))
	err = m.TrySubmitOldestBatch(context.Background(), false)
	require.NoError(t, err)
	require.Equal(t, uint64(1), m.GetNumberOfBatchesReadyToSend())
	require.Equal(t, 1, forced.consumeCalls)
}

func TestTrySubmitOldestBatchClearsFifoWhenForcedInclusionConsumeFails(t *testing.T) {
	m, _, _, forced, submitter := newTestManager(t)
	pendingTx := &batchbuilder.PreBuiltTxList{TxList: []*gethtypes.Transaction{gethtypes.NewTx(&gethtypes.LegacyTx{})}}
	_, err := m.PreconfirmBlock(context.Background(), pendingTx, SlotInfo{SlotTimestamp: 1000}, false, false)
	require.NoError(t, err)
	m.TryFinalizeCurrentBatch()

	forced.consumeErr = errors.New("forced inclusion cursor unavailable")
	submitter.err = errors.New("execution reverted: OldestForcedInclusionDue")
	err = m.TrySubmitOldestBatch(context.Background(), false)
	require.Error(t, err)
	require.Equal(t, uint64(0), m.GetNumberOfBatchesReadyToSend())
}

func TestReanchorBlockAdvancesHeadWithReanchorOperation(t *testing.T) {
	m, chain, _, _, _ := newTestManager(t)
	pendingTx := batchbuilder.PreBuiltTxList{TxList: []*gethtypes.Transaction{gethtypes.NewTx(&gethtypes.LegacyTx{})}}

	resp, err := m.ReanchorBlock(context.Background(), pendingTx, SlotInfo{SlotTimestamp: 1000}, false, false)
	require.NoError(t, err)
	require.NotNil(t, resp)
	require.Equal(t, 1, chain.advanceCalls)
	require.True(t, m.HasBatches())
}

func TestReanchorBlockRefusesForcedInclusionSkipWhenAllowed(t *testing.T) {
	m, _, _, _, _ := newTestManager(t)
	pendingTx := batchbuilder.PreBuiltTxList{}

	_, err := m.ReanchorBlock(context.Background(), pendingTx, SlotInfo{SlotTimestamp: 1000}, true, true)
	require.Error(t, err)
	txErr, ok := txerrors.As(err)
	require.True(t, ok)
	require.Equal(t, txerrors.KindOldestForcedInclusionDue, txErr.Kind)
}

func TestRecoverFromL2BlockOpensNewBatchOnAnchorChange(t *testing.T) {
	m, _, _, _, _ := newTestManager(t)
	blockSource := m.blockSource.(*fakeBlockSource)
	blockSource.block = RecoveredL2Block{
		AnchorTxData: []byte{1, 2, 3},
		Rest:         []*gethtypes.Transaction{gethtypes.NewTx(&gethtypes.LegacyTx{})},
		TimestampSec: 42,
		Coinbase:     common.HexToAddress("0x02"),
	}
	decoder := m.anchorDecoder.(*fakeAnchorDecoder)
	decoder.anchorID = 7

	require.NoError(t, m.RecoverFromL2Block(context.Background(), 1))
	require.True(t, m.HasBatches())
	require.Equal(t, uint64(7), (*m.core.CurrentBatch).AnchorBlockID())
}
