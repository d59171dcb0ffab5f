package l1

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"

	"github.com/catalyst-sequencer/catalyst-node/internal/clock"
)

// EthereumL1 bundles the slot clock, consensus-layer client, execution-layer
// client, and optional blob indexer behind one handle, grounded on
// original_source/common/src/l1/ethereum_l1.rs.
type EthereumL1 struct {
	SlotClock      *clock.SlotClock
	ConsensusLayer *ConsensusLayer
	ExecutionLayer *ExecutionLayer
	BlobIndexer    *BlobIndexer

	log log.Logger
}

// New dials the consensus layer, seeds the slot clock from its genesis time,
// dials the execution layer, and optionally dials a blob indexer.
func New(ctx context.Context, cfg Config) (*EthereumL1, error) {
	l := log.New("component", "ethereum_l1")
	l.Info("creating EthereumL1 instance")

	consensus, err := NewConsensusLayer(cfg.ConsensusRPCURL, cfg.requestTimeout())
	if err != nil {
		return nil, err
	}

	var blobIndexer *BlobIndexer
	if cfg.BlobIndexerURL != "" {
		l.Info("blob indexer configured", "url", cfg.BlobIndexerURL)
		blobIndexer, err = NewBlobIndexer(cfg.BlobIndexerURL, cfg.requestTimeout())
		if err != nil {
			return nil, err
		}
	} else {
		l.Info("no blob indexer URL provided; blob indexer will not be used")
	}

	genesisTime, err := consensus.GetGenesisTime()
	if err != nil {
		return nil, fmt.Errorf("l1: fetch genesis time: %w", err)
	}
	slotClock := clock.New(genesisTime, cfg.SlotDurationSec, cfg.SlotsPerEpoch, cfg.PreconfHeartbeatMS, clock.Real{})

	if len(cfg.ExecutionRPCURLs) == 0 {
		return nil, fmt.Errorf("l1: at least one execution rpc url is required")
	}
	execution, err := NewExecutionLayer(ctx, cfg.ExecutionRPCURLs[0])
	if err != nil {
		return nil, err
	}

	return &EthereumL1{
		SlotClock:      slotClock,
		ConsensusLayer: consensus,
		ExecutionLayer: execution,
		BlobIndexer:    blobIndexer,
		log:            l,
	}, nil
}

func uint256FromBig(v *big.Int) *uint256.Int {
	u, overflow := uint256.FromBig(v)
	if overflow {
		panic("l1: value overflows uint256")
	}
	return u
}
