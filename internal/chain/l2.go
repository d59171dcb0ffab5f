// Package chain binds the read-only Taiko-geth client and the local L2
// driver's preconfBlocks API into the concrete implementations of
// batchmanager.Chain, node.L2HeadReader and batchmanager.L2BlockSource,
// grounded on original_source/pacaya/src/node/batch_manager/mod.rs's
// AdvanceHeadToNewL2Block flow and the teacher's own ethclient usage
// throughout core/ and ethclient/.
package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/catalyst-sequencer/catalyst-node/internal/anchor"
	"github.com/catalyst-sequencer/catalyst-node/internal/batchbuilder"
	"github.com/catalyst-sequencer/catalyst-node/internal/batchmanager"
	"github.com/catalyst-sequencer/catalyst-node/internal/driver"
	"github.com/catalyst-sequencer/catalyst-node/internal/node"
)

// L2 wraps a read-only Taiko-geth connection and the local driver's
// preconfBlocks API. It is the concrete batchmanager.Chain, node.L2HeadReader
// and batchmanager.L2BlockSource the running node uses; internal/node and
// internal/batchmanager only ever see it through those narrow interfaces.
type L2 struct {
	geth            *ethclient.Client
	drv             *driver.Driver
	anchorAddress   common.Address
	defaultCoinbase common.Address
	maxGasLimit     uint64
}

// NewL2 constructs an L2 chain adapter. maxGasLimit is the block gas limit
// budget an L2Block's own GasLimitWithoutAnchorTx overrides when set.
func NewL2(geth *ethclient.Client, drv *driver.Driver, anchorAddress, defaultCoinbase common.Address, maxGasLimit uint64) *L2 {
	return &L2{geth: geth, drv: drv, anchorAddress: anchorAddress, defaultCoinbase: defaultCoinbase, maxGasLimit: maxGasLimit}
}

// AdvanceHeadToNewL2Block RLP-encodes block's transactions and hands them to
// the driver as the next unsafe head, filling in whichever fields the batch
// builder left unset (coinbase, gas limit) from the adapter's own defaults.
// The driver itself prepends the anchor transaction; the manager never
// builds it.
func (l *L2) AdvanceHeadToNewL2Block(ctx context.Context, block batchbuilder.L2Block, anchorBlockID uint64, anchorStateRoot common.Hash, slot batchmanager.SlotInfo, endOfSequencing, isForcedInclusion bool, op driver.OperationType) (*driver.BuildPreconfBlockResponse, error) {
	encoded, err := rlp.EncodeToBytes(block.PrebuiltTxList.TxList)
	if err != nil {
		return nil, fmt.Errorf("chain: encode transactions: %w", err)
	}

	coinbase := l.defaultCoinbase
	if block.Coinbase != nil {
		coinbase = *block.Coinbase
	}
	gasLimit := l.maxGasLimit
	if block.GasLimitWithoutAnchorTx != nil {
		gasLimit = *block.GasLimitWithoutAnchorTx
	}
	baseFee, err := l.baseFeeForParent(ctx, slot.ParentHash)
	if err != nil {
		return nil, fmt.Errorf("chain: base fee for parent %s: %w", slot.ParentHash, err)
	}

	req := driver.BuildPreconfBlockRequest{
		ExecutableData: driver.ExecutableData{
			BaseFee:      baseFee,
			BlockNumber:  slot.ParentID + 1,
			FeeRecipient: coinbase,
			GasLimit:     gasLimit,
			ParentHash:   slot.ParentHash,
			Timestamp:    slot.SlotTimestamp,
			Transactions: encoded,
		},
		EndOfSequencing:   endOfSequencing,
		IsForcedInclusion: isForcedInclusion,
	}
	return l.drv.PreconfBlocks(ctx, req, op)
}

// baseFeeForParent reads the parent L2 header's base fee, the same value the
// execution engine itself would price the next block against.
func (l *L2) baseFeeForParent(ctx context.Context, parentHash common.Hash) (uint64, error) {
	header, err := l.geth.HeaderByHash(ctx, parentHash)
	if err != nil {
		return 0, err
	}
	if header.BaseFee == nil {
		return 0, nil
	}
	return header.BaseFee.Uint64(), nil
}

// IsForcedInclusionBlock reports whether blockID's anchor transaction came
// from a forced-inclusion consumption rather than ordinary preconfirmation.
// Geth's own block data does not carry this provenance once produced; it is
// tracked in-memory by the batch manager for the blocks it just built
// (batchmanager.Manager.HasCurrentForcedInclusion), so this lookback reports
// false for every block it can fetch. See DESIGN.md for this documented
// limitation.
func (l *L2) IsForcedInclusionBlock(ctx context.Context, blockID uint64) (bool, error) {
	if _, err := l.geth.BlockByNumber(ctx, new(big.Int).SetUint64(blockID)); err != nil {
		return false, fmt.Errorf("chain: fetch block %d: %w", blockID, err)
	}
	return false, nil
}

// LastSyncedAnchorBlockIDFromAnchorContract returns the same value as
// LastSyncedAnchorBlockIDFromGeth (the anchor id decoded from the latest L2
// block's anchor transaction); the anchor contract's storage is not read.
func (l *L2) LastSyncedAnchorBlockIDFromAnchorContract(ctx context.Context) (uint64, error) {
	return l.LastSyncedAnchorBlockIDFromGeth(ctx)
}

// LastSyncedAnchorBlockIDFromGeth decodes the anchor id out of the latest
// L2 block's own anchor transaction (always transaction zero).
func (l *L2) LastSyncedAnchorBlockIDFromGeth(ctx context.Context) (uint64, error) {
	block, err := l.geth.BlockByNumber(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("chain: fetch latest l2 block: %w", err)
	}
	txs := block.Transactions()
	if len(txs) == 0 {
		return 0, fmt.Errorf("chain: l2 block %d has no anchor transaction", block.NumberU64())
	}
	return anchor.DecodeAnchorBlockID(txs[0].Data())
}

// AnchorDecoder implements batchmanager.AnchorDecoder by delegating to the
// package-level anchor.DecodeAnchorBlockID.
type AnchorDecoder struct{}

// DecodeAnchorBlockID implements batchmanager.AnchorDecoder.
func (AnchorDecoder) DecodeAnchorBlockID(anchorTxData []byte) (uint64, error) {
	return anchor.DecodeAnchorBlockID(anchorTxData)
}

// HeadBlock implements node.L2HeadReader.
func (l *L2) HeadBlock(ctx context.Context) (node.L2Head, error) {
	header, err := l.geth.HeaderByNumber(ctx, nil)
	if err != nil {
		return node.L2Head{}, fmt.Errorf("chain: fetch l2 head: %w", err)
	}
	var baseFee uint64
	if header.BaseFee != nil {
		baseFee = header.BaseFee.Uint64()
	}
	return node.L2Head{
		Number:  header.Number.Uint64(),
		Hash:    header.Hash(),
		GasUsed: header.GasUsed,
		BaseFee: baseFee,
	}, nil
}

// GetL2BlockByNumber implements batchmanager.L2BlockSource, splitting the
// already-produced block into its anchor transaction and the rest, for
// rebuilding in-memory batch state after a restart.
func (l *L2) GetL2BlockByNumber(ctx context.Context, number uint64) (batchmanager.RecoveredL2Block, error) {
	block, err := l.geth.BlockByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return batchmanager.RecoveredL2Block{}, fmt.Errorf("chain: fetch block %d: %w", number, err)
	}
	txs := block.Transactions()
	if len(txs) == 0 {
		return batchmanager.RecoveredL2Block{}, fmt.Errorf("chain: block %d has no anchor transaction", number)
	}
	return batchmanager.RecoveredL2Block{
		AnchorTxData: txs[0].Data(),
		Rest:         append([]*gethtypes.Transaction{}, txs[1:]...),
		TimestampSec: block.Time(),
		Coinbase:     block.Coinbase(),
	}, nil
}
