package batchbuilder

import (
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
)

// PreBuiltTxList is the output of one L2Engine.GetPendingL2TxList call
// (spec.md §3). It is immutable once produced.
type PreBuiltTxList struct {
	TxList           []*gethtypes.Transaction
	EstimatedGasUsed uint64
	BytesLength      uint64
}

// Empty reports whether the engine returned no transactions at all.
func (p PreBuiltTxList) Empty() bool { return len(p.TxList) == 0 }

// L2Block is one block produced by the node and streamed to the driver as an
// unsafe head (spec.md §3).
type L2Block struct {
	PrebuiltTxList            PreBuiltTxList
	TimestampSec              uint64
	Coinbase                  *common.Address
	AnchorBlockNumber         *uint64
	GasLimitWithoutAnchorTx   *uint64
}

// NewEmptyL2Block builds an L2Block carrying no transactions (used to hold the time
// shift open while waiting for real activity).
func NewEmptyL2Block(timestampSec uint64) L2Block {
	return L2Block{TimestampSec: timestampSec}
}

// NewL2BlockFrom builds an L2Block from a pending tx list pulled from the engine.
func NewL2BlockFrom(txList PreBuiltTxList, timestampSec uint64) L2Block {
	return L2Block{PrebuiltTxList: txList, TimestampSec: timestampSec}
}
