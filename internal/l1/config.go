// Package l1 wraps the L1 execution client, consensus (beacon) client, and
// blob indexer behind one facade, grounded on
// original_source/common/src/l1/{ethereum_l1.rs,config.rs}.
package l1

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config mirrors the Rust EthereumL1Config's field set.
type Config struct {
	ExecutionRPCURLs          []string
	ConsensusRPCURL           string
	BlobIndexerURL            string
	MinPriorityFeePerGasWei   uint64
	TxFeesIncreasePercentage  uint64
	SlotDurationSec           uint64
	SlotsPerEpoch             uint64
	PreconfHeartbeatMS        uint64
	MaxAttemptsToSendTx       uint64
	MaxAttemptsToWaitTx       uint64
	DelayBetweenTxAttemptsSec uint64
	PreconferAddress          *common.Address
	ExtraGasPercentage        uint64
}

func (c Config) requestTimeout() time.Duration {
	return time.Duration(c.PreconfHeartbeatMS/2) * time.Millisecond
}
