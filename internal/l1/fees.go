package l1

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/consensus/misc/eip4844"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/params"
)

// FeesPerGas is a snapshot of the fee market used to price a submission,
// grounded on original_source/common/src/l1/fees_per_gas.rs.
type FeesPerGas struct {
	BaseFeePerGas        *big.Int
	BaseFeePerBlobGas    *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

// GetFeesPerGas samples the latest head and its fee history to build a
// FeesPerGas snapshot.
func GetFeesPerGas(ctx context.Context, client *ethclient.Client) (*FeesPerGas, error) {
	head, err := client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("l1: fetch latest header: %w", err)
	}
	if head.BaseFee == nil {
		return nil, fmt.Errorf("l1: latest header has no base fee (pre-London chain?)")
	}

	tip, err := client.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("l1: suggest gas tip cap: %w", err)
	}

	maxFeePerGas := new(big.Int).Add(new(big.Int).Mul(head.BaseFee, big.NewInt(2)), tip)

	baseFeePerBlobGas := big.NewInt(1)
	if head.ExcessBlobGas != nil {
		baseFeePerBlobGas = eip4844.CalcBlobFee(*head.ExcessBlobGas)
	}

	return &FeesPerGas{
		BaseFeePerGas:        head.BaseFee,
		BaseFeePerBlobGas:    baseFeePerBlobGas,
		MaxFeePerGas:         maxFeePerGas,
		MaxPriorityFeePerGas: tip,
	}, nil
}

// UpdateEIP1559 fills the fee fields of a type-2 transaction template.
func (f *FeesPerGas) UpdateEIP1559(tx *types.DynamicFeeTx, gasLimit uint64) {
	tx.Gas = gasLimit
	tx.GasFeeCap = f.MaxFeePerGas
	tx.GasTipCap = f.MaxPriorityFeePerGas
}

// UpdateEIP4844 fills the fee fields of a type-3 blob transaction template.
func (f *FeesPerGas) UpdateEIP4844(tx *types.BlobTx, gasLimit uint64) {
	tx.Gas = gasLimit
	tx.GasFeeCap = uint256FromBig(f.MaxFeePerGas)
	tx.GasTipCap = uint256FromBig(f.MaxPriorityFeePerGas)
	tx.BlobFeeCap = uint256FromBig(f.BaseFeePerBlobGas)
}

// GetEIP1559Cost estimates the wei cost of an execution-only submission.
func (f *FeesPerGas) GetEIP1559Cost(gasUsed uint64) *big.Int {
	perGas := new(big.Int).Add(f.BaseFeePerGas, f.MaxPriorityFeePerGas)
	return new(big.Int).Mul(perGas, new(big.Int).SetUint64(gasUsed))
}

// GetEIP4844Cost estimates the wei cost of a blob submission, including the
// dedicated blob-gas market.
func (f *FeesPerGas) GetEIP4844Cost(blobCount, gasUsed uint64) *big.Int {
	blobGasUsed := new(big.Int).Mul(big.NewInt(int64(params.BlobTxBlobGasPerBlob)), new(big.Int).SetUint64(blobCount))
	executionCost := f.GetEIP1559Cost(gasUsed)
	blobCost := new(big.Int).Mul(blobGasUsed, f.BaseFeePerBlobGas)
	return new(big.Int).Add(executionCost, blobCost)
}
