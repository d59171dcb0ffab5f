// Package config loads and validates the node's environment variables into
// a typed struct, grounded on spec.md §6 and
// original_source/common/src/config/mod.rs's read_env_variables.
package config

import (
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the node's full set of environment-derived settings, mirroring
// original_source/common/src/config/mod.rs's Config struct field-for-field.
type Config struct {
	// Signer (mutually exclusive, spec.md §6)
	PreconferAddress           common.Address
	Web3SignerL1URL            string
	Web3SignerL2URL            string
	CatalystNodeECDSAPrivateKey string

	// L1
	L1RPCURLs          []string
	L1BeaconURL        string
	BlobIndexerURL     string
	L1SlotDurationSec  uint64
	L1SlotsPerEpoch    uint64
	PreconfHeartbeatMS uint64

	// L2
	TaikoGethRPCURL         string
	TaikoGethAuthRPCURL     string
	TaikoDriverURL          string
	JWTSecretFilePath       string
	RPCL2ExecutionLayerTimeout time.Duration
	RPCDriverPreconfTimeout time.Duration
	RPCDriverStatusTimeout  time.Duration

	// Taiko contracts
	TaikoAnchorAddress            common.Address
	TaikoBridgeAddress            common.Address
	TaikoInboxAddress             common.Address
	PreconfRouterAddress          common.Address
	PreconfWhitelistAddress       common.Address
	ForcedInclusionQueueAddress   common.Address

	// Batch building parameters
	MaxBytesSizeOfBatch              uint64
	MaxBlocksPerBatch                uint16
	MaxTimeShiftBetweenBlocksSec     uint64
	MaxAnchorHeightOffsetReduction   uint64

	// Transaction monitor
	MinPriorityFeePerGasWei   uint64
	TxFeesIncreasePercentage  uint64
	MaxAttemptsToSendTx       uint64
	MaxAttemptsToWaitTx       uint64
	DelayBetweenTxAttemptsSec uint64
	ExtraGasPercentage        uint64

	// Funds
	FundsMonitorIntervalSec    uint64
	ThresholdEthWei            *big.Int
	ThresholdTaikoWei          *big.Int
	DisableBridging            bool
	AmountToBridgeFromL2ToL1Wei *big.Int
	BridgeRelayerFeeWei        uint64
	BridgeTransactionFeeWei    uint64

	// Engine throttling
	MaxBytesPerTxList uint64
	MinBytesPerTxList uint64
	ThrottlingFactor  uint64
	BlockMaxGasLimit  uint64

	// Block production thresholds
	PreconfMinTxs            uint64
	PreconfMaxSkippedL2Slots uint64

	// Role policy
	HandoverWindowSlots                     uint64
	HandoverStartBufferMS                   uint64
	L1HeightLag                              uint64
	ProposeForcedInclusion                   bool
	SimulateNotSubmittingAtTheEndOfEpoch    bool

	// Fork schedule
	PacayaTimestampSec              uint64
	ShastaTimestampSec               uint64
	PermissionlessTimestampSec       uint64
	ForkSwitchTransitionPeriodSec    uint64

	// Whitelist monitor
	WhitelistMonitorIntervalSec uint64
}

// defaultEmptyAddress mirrors the Rust default used for an unset bridge
// address.
var defaultEmptyAddress common.Address

// addressParseError mirrors original_source's address_parse_error helper,
// reporting the exact expected format on failure.
func addressParseError(envVar, value string) error {
	return fmt.Errorf("config: %s must be a 42-character 0x-prefixed address, got %q (length %d)", envVar, value, len(value))
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvUint64(key string, fallback uint64) (uint64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("config: %s must be a number: %w", key, err)
	}
	return v, nil
}

func getEnvUint16(key string, fallback uint16) (uint16, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	v, err := strconv.ParseUint(raw, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("config: %s must be a number: %w", key, err)
	}
	return uint16(v), nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("config: %s must be a boolean: %w", key, err)
	}
	return v, nil
}

func getEnvBigInt(key, fallback string) (*big.Int, error) {
	raw := getEnv(key, fallback)
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("config: %s must be a number, got %q", key, raw)
	}
	return v, nil
}

func mustPositive(key string, v uint64) error {
	if v == 0 {
		return fmt.Errorf("config: %s must be a positive number", key)
	}
	return nil
}

// Read loads Config from the process environment, mirroring
// read_env_variables's defaults and validation one-for-one.
func Read() (*Config, error) {
	cfg := &Config{}

	privateKey := getEnv("CATALYST_NODE_ECDSA_PRIVATE_KEY", "")
	web3signerL1 := getEnv("WEB3SIGNER_L1_URL", "")
	web3signerL2 := getEnv("WEB3SIGNER_L2_URL", "")
	preconferAddressStr := getEnv("PRECONFER_ADDRESS", "")

	if privateKey == "" {
		if web3signerL1 == "" || web3signerL2 == "" || preconferAddressStr == "" {
			return nil, fmt.Errorf("config: when CATALYST_NODE_ECDSA_PRIVATE_KEY is not set, WEB3SIGNER_L1_URL, WEB3SIGNER_L2_URL and PRECONFER_ADDRESS must be set")
		}
	} else if web3signerL1 != "" || web3signerL2 != "" || preconferAddressStr != "" {
		return nil, fmt.Errorf("config: when CATALYST_NODE_ECDSA_PRIVATE_KEY is set, WEB3SIGNER_L1_URL, WEB3SIGNER_L2_URL and PRECONFER_ADDRESS must not be set")
	}
	if preconferAddressStr != "" {
		if !common.IsHexAddress(preconferAddressStr) {
			return nil, addressParseError("PRECONFER_ADDRESS", preconferAddressStr)
		}
		cfg.PreconferAddress = common.HexToAddress(preconferAddressStr)
	}
	cfg.CatalystNodeECDSAPrivateKey = privateKey
	cfg.Web3SignerL1URL = web3signerL1
	cfg.Web3SignerL2URL = web3signerL2

	l1BeaconURL := getEnv("L1_BEACON_URL", "http://127.0.0.1:4000")
	if !strings.HasSuffix(l1BeaconURL, "/") {
		l1BeaconURL += "/"
	}
	cfg.L1BeaconURL = l1BeaconURL
	cfg.L1RPCURLs = strings.Split(getEnv("L1_RPC_URLS", "wss://127.0.0.1"), ",")
	cfg.BlobIndexerURL = getEnv("BLOB_INDEXER_URL", "")

	var err error
	if cfg.L1SlotDurationSec, err = getEnvUint64("L1_SLOT_DURATION_SEC", 12); err != nil {
		return nil, err
	}
	if err := mustPositive("L1_SLOT_DURATION_SEC", cfg.L1SlotDurationSec); err != nil {
		return nil, err
	}
	if cfg.L1SlotsPerEpoch, err = getEnvUint64("L1_SLOTS_PER_EPOCH", 32); err != nil {
		return nil, err
	}
	if err := mustPositive("L1_SLOTS_PER_EPOCH", cfg.L1SlotsPerEpoch); err != nil {
		return nil, err
	}
	if cfg.PreconfHeartbeatMS, err = getEnvUint64("PRECONF_HEARTBEAT_MS", 2000); err != nil {
		return nil, err
	}
	if err := mustPositive("PRECONF_HEARTBEAT_MS", cfg.PreconfHeartbeatMS); err != nil {
		return nil, err
	}

	cfg.TaikoGethRPCURL = getEnv("TAIKO_GETH_RPC_URL", "ws://127.0.0.1:1234")
	cfg.TaikoGethAuthRPCURL = getEnv("TAIKO_GETH_AUTH_RPC_URL", "http://127.0.0.1:1235")
	cfg.TaikoDriverURL = getEnv("TAIKO_DRIVER_URL", "http://127.0.0.1:1236")
	cfg.JWTSecretFilePath = getEnv("JWT_SECRET_FILE_PATH", "/tmp/jwtsecret")

	preconfTimeoutMS, err := getEnvUint64("RPC_DRIVER_PRECONF_TIMEOUT_MS", 60000)
	if err != nil {
		return nil, err
	}
	cfg.RPCDriverPreconfTimeout = time.Duration(preconfTimeoutMS) * time.Millisecond
	statusTimeoutMS, err := getEnvUint64("RPC_DRIVER_STATUS_TIMEOUT_MS", 1000)
	if err != nil {
		return nil, err
	}
	cfg.RPCDriverStatusTimeout = time.Duration(statusTimeoutMS) * time.Millisecond
	engineTimeoutMS, err := getEnvUint64("RPC_L2_EXECUTION_LAYER_TIMEOUT_MS", 1000)
	if err != nil {
		return nil, err
	}
	cfg.RPCL2ExecutionLayerTimeout = time.Duration(engineTimeoutMS) * time.Millisecond

	anchorAddrStr := getEnv("TAIKO_ANCHOR_ADDRESS", "0x1670010000000000000000000000000000010001")
	if !common.IsHexAddress(anchorAddrStr) {
		return nil, addressParseError("TAIKO_ANCHOR_ADDRESS", anchorAddrStr)
	}
	cfg.TaikoAnchorAddress = common.HexToAddress(anchorAddrStr)

	bridgeAddrStr := getEnv("TAIKO_BRIDGE_L2_ADDRESS", defaultEmptyAddress.Hex())
	if !common.IsHexAddress(bridgeAddrStr) {
		return nil, addressParseError("TAIKO_BRIDGE_L2_ADDRESS", bridgeAddrStr)
	}
	cfg.TaikoBridgeAddress = common.HexToAddress(bridgeAddrStr)

	inboxAddrStr := getEnv("TAIKO_INBOX_ADDRESS", defaultEmptyAddress.Hex())
	if !common.IsHexAddress(inboxAddrStr) {
		return nil, addressParseError("TAIKO_INBOX_ADDRESS", inboxAddrStr)
	}
	cfg.TaikoInboxAddress = common.HexToAddress(inboxAddrStr)

	routerAddrStr := getEnv("PRECONF_ROUTER_ADDRESS", defaultEmptyAddress.Hex())
	if !common.IsHexAddress(routerAddrStr) {
		return nil, addressParseError("PRECONF_ROUTER_ADDRESS", routerAddrStr)
	}
	cfg.PreconfRouterAddress = common.HexToAddress(routerAddrStr)

	whitelistAddrStr := getEnv("PRECONF_WHITELIST_ADDRESS", defaultEmptyAddress.Hex())
	if !common.IsHexAddress(whitelistAddrStr) {
		return nil, addressParseError("PRECONF_WHITELIST_ADDRESS", whitelistAddrStr)
	}
	cfg.PreconfWhitelistAddress = common.HexToAddress(whitelistAddrStr)

	forcedInclusionQueueAddrStr := getEnv("FORCED_INCLUSION_QUEUE_ADDRESS", defaultEmptyAddress.Hex())
	if !common.IsHexAddress(forcedInclusionQueueAddrStr) {
		return nil, addressParseError("FORCED_INCLUSION_QUEUE_ADDRESS", forcedInclusionQueueAddrStr)
	}
	cfg.ForcedInclusionQueueAddress = common.HexToAddress(forcedInclusionQueueAddrStr)

	blobsPerBatch, err := getEnvUint64("BLOBS_PER_BATCH", 3)
	if err != nil {
		return nil, err
	}
	const maxBlobDataSize = 131072 // 128 KiB, mirrors MAX_BLOB_DATA_SIZE
	cfg.MaxBytesSizeOfBatch = maxBlobDataSize * blobsPerBatch

	if cfg.MaxBlocksPerBatch, err = getEnvUint16("MAX_BLOCKS_PER_BATCH", 0); err != nil {
		return nil, err
	}
	if cfg.MaxTimeShiftBetweenBlocksSec, err = getEnvUint64("MAX_TIME_SHIFT_BETWEEN_BLOCKS_SEC", 255); err != nil {
		return nil, err
	}
	if cfg.MaxAnchorHeightOffsetReduction, err = getEnvUint64("MAX_ANCHOR_HEIGHT_OFFSET_REDUCTION_VALUE", 10); err != nil {
		return nil, err
	}

	minPriorityFee, err := getEnvUint64("MIN_PRIORITY_FEE_PER_GAS_WEI", 1_000_000_000)
	if err != nil {
		return nil, err
	}
	if minPriorityFee < 1_000_000_000 {
		return nil, fmt.Errorf("config: MIN_PRIORITY_FEE_PER_GAS_WEI is less than 1 Gwei, must be at least 1,000,000,000 wei")
	}
	cfg.MinPriorityFeePerGasWei = minPriorityFee

	if cfg.TxFeesIncreasePercentage, err = getEnvUint64("TX_FEES_INCREASE_PERCENTAGE", 0); err != nil {
		return nil, err
	}
	if cfg.MaxAttemptsToSendTx, err = getEnvUint64("MAX_ATTEMPTS_TO_SEND_TX", 4); err != nil {
		return nil, err
	}
	if cfg.MaxAttemptsToWaitTx, err = getEnvUint64("MAX_ATTEMPTS_TO_WAIT_TX", 5); err != nil {
		return nil, err
	}
	if cfg.DelayBetweenTxAttemptsSec, err = getEnvUint64("DELAY_BETWEEN_TX_ATTEMPTS_SEC", 63); err != nil {
		return nil, err
	}
	if cfg.ExtraGasPercentage, err = getEnvUint64("EXTRA_GAS_PERCENTAGE", 100); err != nil {
		return nil, err
	}

	if cfg.FundsMonitorIntervalSec, err = getEnvUint64("FUNDS_MONITOR_INTERVAL_SEC", 60); err != nil {
		return nil, err
	}
	if cfg.ThresholdEthWei, err = getEnvBigInt("THRESHOLD_ETH", "500000000000000000"); err != nil {
		return nil, err
	}
	if cfg.ThresholdTaikoWei, err = getEnvBigInt("THRESHOLD_TAIKO", "10000000000000000000000"); err != nil {
		return nil, err
	}
	if cfg.AmountToBridgeFromL2ToL1Wei, err = getEnvBigInt("AMOUNT_TO_BRIDGE_FROM_L2_TO_L1", "1000000000000000000"); err != nil {
		return nil, err
	}
	if cfg.DisableBridging, err = getEnvBool("DISABLE_BRIDGING", true); err != nil {
		return nil, err
	}
	if cfg.BridgeRelayerFeeWei, err = getEnvUint64("BRIDGE_RELAYER_FEE", 3_047_459_064_000_000); err != nil {
		return nil, err
	}
	if cfg.BridgeTransactionFeeWei, err = getEnvUint64("BRIDGE_TRANSACTION_FEE", 1_000_000_000_000_000); err != nil {
		return nil, err
	}

	if cfg.MaxBytesPerTxList, err = getEnvUint64("MAX_BYTES_PER_TX_LIST", maxBlobDataSize); err != nil {
		return nil, err
	}
	if cfg.ThrottlingFactor, err = getEnvUint64("THROTTLING_FACTOR", 2); err != nil {
		return nil, err
	}
	if cfg.MinBytesPerTxList, err = getEnvUint64("MIN_BYTES_PER_TX_LIST", 8192); err != nil {
		return nil, err
	}
	if cfg.BlockMaxGasLimit, err = getEnvUint64("BLOCK_MAX_GAS_LIMIT", 240_000_000); err != nil {
		return nil, err
	}
	if cfg.PreconfMinTxs, err = getEnvUint64("PRECONF_MIN_TXS", 3); err != nil {
		return nil, err
	}
	if cfg.PreconfMaxSkippedL2Slots, err = getEnvUint64("PRECONF_MAX_SKIPPED_L2_SLOTS", 2); err != nil {
		return nil, err
	}

	if cfg.HandoverWindowSlots, err = getEnvUint64("HANDOVER_WINDOW_SLOTS", 4); err != nil {
		return nil, err
	}
	if cfg.HandoverStartBufferMS, err = getEnvUint64("HANDOVER_START_BUFFER_MS", 6000); err != nil {
		return nil, err
	}
	if cfg.L1HeightLag, err = getEnvUint64("L1_HEIGHT_LAG", 0); err != nil {
		return nil, err
	}
	if cfg.ProposeForcedInclusion, err = getEnvBool("PROPOSE_FORCED_INCLUSION", true); err != nil {
		return nil, err
	}
	if cfg.SimulateNotSubmittingAtTheEndOfEpoch, err = getEnvBool("SIMULATE_NOT_SUBMITTING_AT_THE_END_OF_EPOCH", false); err != nil {
		return nil, err
	}

	if cfg.ForkSwitchTransitionPeriodSec, err = getEnvUint64("FORK_SWITCH_TRANSITION_PERIOD_SEC", 60); err != nil {
		return nil, err
	}
	if cfg.PacayaTimestampSec, err = getEnvUint64("PACAYA_TIMESTAMP_SEC", 0); err != nil {
		return nil, err
	}
	if cfg.ShastaTimestampSec, err = getEnvUint64("SHASTA_TIMESTAMP_SEC", 99999999999); err != nil {
		return nil, err
	}
	if cfg.PermissionlessTimestampSec, err = getEnvUint64("PERMISSIONLESS_TIMESTAMP_SEC", 99999999999); err != nil {
		return nil, err
	}

	if cfg.WhitelistMonitorIntervalSec, err = getEnvUint64("WHITELIST_MONITOR_INTERVAL_SEC", 60); err != nil {
		return nil, err
	}

	return cfg, nil
}
