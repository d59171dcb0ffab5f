// Package l2engine talks to the L2 execution engine's authenticated RPC to
// pull the next candidate transaction list for block building, grounded on
// original_source/common/src/l2/engine.rs.
package l2engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/node"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/catalyst-sequencer/catalyst-node/internal/batchbuilder"
)

// Config is the L2Engine's dependency bundle, mirroring L2EngineConfig.
type Config struct {
	AuthURL           string
	RPCTimeout        time.Duration
	JWTSecret         [32]byte
	MaxBytesPerTxList uint64
	ThrottlingFactor  uint64
	MinBytesPerTxList uint64
	Coinbase          common.Address
}

// Engine is a JWT-authenticated JSON-RPC client for the Taiko execution
// engine's auth namespace.
type Engine struct {
	client *rpc.Client
	config Config
	log    log.Logger
}

// New dials the engine's authenticated RPC endpoint over HTTP using JWT bearer
// auth, the same scheme go-ethereum's own engine API client uses.
func New(ctx context.Context, config Config) (*Engine, error) {
	client, err := rpc.DialOptions(ctx, config.AuthURL, rpc.WithHTTPAuth(node.NewJWTAuth(config.JWTSecret)))
	if err != nil {
		return nil, fmt.Errorf("l2engine: dial auth rpc %q: %w", config.AuthURL, err)
	}
	return &Engine{client: client, config: config, log: log.New("component", "l2_engine")}, nil
}

// pendingTxListResponse is the taikoAuth_txPoolContentWithMinTip response
// shape: one JSON object per candidate list.
type pendingTxListResponse struct {
	TxList           []*gethtypes.Transaction `json:"txList"`
	EstimatedGasUsed uint64                   `json:"estimatedGasUsed"`
	BytesLength      uint64                   `json:"bytesLength"`
}

// GetPendingL2TxList fetches the highest-priority pending tx list, throttled
// by the number of batches already queued for L1 submission.
func (e *Engine) GetPendingL2TxList(ctx context.Context, baseFee uint64, batchesReadyToSend uint64, blockMaxGasLimit uint64) (*batchbuilder.PreBuiltTxList, error) {
	maxBytes := calculateMaxBytesPerTxList(e.config.MaxBytesPerTxList, e.config.ThrottlingFactor, batchesReadyToSend, e.config.MinBytesPerTxList)

	ctx, cancel := context.WithTimeout(ctx, e.config.RPCTimeout)
	defer cancel()

	var raw json.RawMessage
	err := e.client.CallContext(ctx, &raw, "taikoAuth_txPoolContentWithMinTip",
		hexutil.Encode(e.config.Coinbase[:]),
		baseFee,
		blockMaxGasLimit,
		maxBytes,
		[]string{},
		1,
		0,
	)
	if err != nil {
		return nil, fmt.Errorf("l2engine: get pending L2 tx lists: %w", err)
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var lists []pendingTxListResponse
	if err := json.Unmarshal(raw, &lists); err != nil {
		return nil, fmt.Errorf("l2engine: decompose pending L2 tx lists: %w", err)
	}
	if len(lists) == 0 {
		return nil, nil
	}
	// Only the first candidate is used; one tx list per L2 block.
	first := lists[0]
	return &batchbuilder.PreBuiltTxList{
		TxList:           first.TxList,
		EstimatedGasUsed: first.EstimatedGasUsed,
		BytesLength:      first.BytesLength,
	}, nil
}

// calculateMaxBytesPerTxList shrinks the requested tx-list byte budget
// exponentially as batches pile up waiting for L1 submission, so the engine
// hands back smaller lists under backpressure instead of compounding the
// backlog.
func calculateMaxBytesPerTxList(maxBytesPerTxList, throttlingFactor, batchesReadyToSend, minBytesPerTxList uint64) uint64 {
	size := maxBytesPerTxList
	for i := uint64(0); i < batchesReadyToSend; i++ {
		if throttlingFactor == 0 {
			break
		}
		size -= size / throttlingFactor
	}
	if size < minBytesPerTxList {
		size = minBytesPerTxList
	}
	if size > maxBytesPerTxList {
		size = maxBytesPerTxList
	}
	return size
}
