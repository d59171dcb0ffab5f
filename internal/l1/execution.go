package l1

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// ExecutionLayer wraps a single execution-client connection, grounded on
// original_source/common/src/shared/execution_layer.rs.
type ExecutionLayer struct {
	Client  *ethclient.Client
	ChainID uint64
}

// BlockInfo is the subset of header fields callers need when confirming a
// proposal landed on L1.
type BlockInfo struct {
	Timestamp uint64
	Hash      common.Hash
	StateRoot common.Hash
}

// NewExecutionLayer dials rpcURL and caches the reported chain ID.
func NewExecutionLayer(ctx context.Context, rpcURL string) (*ExecutionLayer, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("l1: dial execution client %q: %w", rpcURL, err)
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("l1: fetch chain id: %w", err)
	}
	return &ExecutionLayer{Client: client, ChainID: chainID.Uint64()}, nil
}

// ChainError annotates an error with the chain-ID prefix the rest of the
// node's logs use to disambiguate multi-chain deployments.
func (e *ExecutionLayer) ChainError(message string, cause error) error {
	if cause != nil {
		return fmt.Errorf("[chain id: %d] %s: %w", e.ChainID, message, cause)
	}
	return fmt.Errorf("[chain id: %d] %s", e.ChainID, message)
}

func (e *ExecutionLayer) GetAccountNonce(ctx context.Context, account common.Address) (uint64, error) {
	nonce, err := e.Client.PendingNonceAt(ctx, account)
	if err != nil {
		return 0, e.ChainError("failed to get nonce", err)
	}
	return nonce, nil
}

func (e *ExecutionLayer) GetAccountBalance(ctx context.Context, account common.Address) (*big.Int, error) {
	balance, err := e.Client.BalanceAt(ctx, account, nil)
	if err != nil {
		return nil, e.ChainError("failed to get balance", err)
	}
	return balance, nil
}

func (e *ExecutionLayer) GetBlockStateRootByNumber(ctx context.Context, number uint64) (common.Hash, error) {
	header, err := e.Client.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return common.Hash{}, e.ChainError(fmt.Sprintf("failed to get block by number (%d)", number), err)
	}
	return header.Root, nil
}

func (e *ExecutionLayer) GetBlockInfoByNumber(ctx context.Context, number uint64) (BlockInfo, error) {
	header, err := e.Client.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return BlockInfo{}, e.ChainError(fmt.Sprintf("failed to get block by number (%d)", number), err)
	}
	return BlockInfo{Timestamp: header.Time, Hash: header.Hash(), StateRoot: header.Root}, nil
}

func (e *ExecutionLayer) GetBlockTimestampByNumber(ctx context.Context, number uint64) (uint64, error) {
	info, err := e.GetBlockInfoByNumber(ctx, number)
	if err != nil {
		return 0, err
	}
	return info.Timestamp, nil
}

func (e *ExecutionLayer) GetLatestBlockTimestamp(ctx context.Context) (uint64, error) {
	header, err := e.Client.HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, e.ChainError("failed to get latest block", err)
	}
	return header.Time, nil
}

func (e *ExecutionLayer) GetLatestBlockNumber(ctx context.Context) (uint64, error) {
	header, err := e.Client.HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, e.ChainError("failed to get latest block", err)
	}
	return header.Number.Uint64(), nil
}

func (e *ExecutionLayer) GetBlockHashByNumber(ctx context.Context, number uint64) (common.Hash, error) {
	info, err := e.GetBlockInfoByNumber(ctx, number)
	if err != nil {
		return common.Hash{}, err
	}
	return info.Hash, nil
}
