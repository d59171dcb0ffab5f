// Package anchor builds and decodes the protocol-prescribed anchor
// transaction that must be the first transaction of every L2 block,
// grounded on spec.md §6 ("Anchor-transaction convention") and on the
// golden-touch signing convention demonstrated by the teacher's own
// consensus/taiko test fixtures (crypto.HexToECDSA of a hard-coded key,
// types.MustSignNewTx with a fixed selector/gas limit). Exact contract ABI
// bit-layout is not specified bit-exact upstream; the concrete tuple shapes
// here are a deliberate, documented choice (see DESIGN.md).
package anchor

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// GasLimit is the fixed gas limit every anchor transaction is signed with.
const GasLimit = 1_000_000

// goldenTouchKeyHex is the hard-coded, publicly known private key the
// protocol uses to deterministically sign anchor transactions; anyone can
// derive AnchorSenderAddress from it, which is precisely the point — it is
// not a secret, only a fixed signer identity.
const goldenTouchKeyHex = "92954368afd3caa1f3ce3ead0069c1af414054aefe1ef9aeacc1bf426222ce38"

var (
	goldenTouchKey     *ecdsa.PrivateKey
	AnchorSenderAddress common.Address
)

func init() {
	key, err := crypto.HexToECDSA(goldenTouchKeyHex)
	if err != nil {
		panic(fmt.Sprintf("anchor: invalid golden touch key: %v", err))
	}
	goldenTouchKey = key
	AnchorSenderAddress = crypto.PubkeyToAddress(key.PublicKey)
}

var (
	uint64Type, _  = abi.NewType("uint64", "", nil)
	uint32Type, _  = abi.NewType("uint32", "", nil)
	bytes32Type, _ = abi.NewType("bytes32", "", nil)
	bytes32SliceT, _ = abi.NewType("bytes32[]", "", nil)

	anchorArgs = abi.Arguments{
		{Name: "anchorBlockId", Type: uint64Type},
		{Name: "anchorStateRoot", Type: bytes32Type},
		{Name: "parentGasUsed", Type: uint32Type},
		{Name: "baseFeeSharingPctg", Type: uint32Type},
		{Name: "signalSlots", Type: bytes32SliceT},
	}

	checkpointArgs = abi.Arguments{
		{Name: "blockNumber", Type: uint64Type},
		{Name: "blockHash", Type: bytes32Type},
		{Name: "stateRoot", Type: bytes32Type},
	}
)

// anchorSelector and checkpointSelector distinguish the two fork
// generations' anchor call data on decode.
var (
	anchorSelector     = crypto.Keccak256([]byte("anchorV3(uint64,bytes32,uint32,uint32,bytes32[])"))[:4]
	checkpointSelector = crypto.Keccak256([]byte("anchorV4((uint64,bytes32,bytes32))"))[:4]
)

// Params is the earlier-fork ("Pacaya") anchor call's arguments.
type Params struct {
	AnchorBlockID      uint64
	AnchorStateRoot    common.Hash
	ParentGasUsed      uint32
	BaseFeeSharingPctg uint32
	SignalSlots        []common.Hash
}

// CheckpointParams is the later-fork ("Shasta") anchor call's arguments.
type CheckpointParams struct {
	BlockNumber uint64
	BlockHash   common.Hash
	StateRoot   common.Hash
}

// BuildTx constructs and deterministically signs (fixed-k, via the
// golden-touch key) the anchor transaction for the earlier fork.
func BuildTx(params Params, to common.Address, baseFee *big.Int, nonce uint64, signer types.Signer) (*types.Transaction, error) {
	data, err := EncodeParams(params)
	if err != nil {
		return nil, err
	}
	return signAnchor(data, to, baseFee, nonce, signer)
}

// BuildCheckpointTx constructs and signs the anchor transaction for the
// later fork.
func BuildCheckpointTx(params CheckpointParams, to common.Address, baseFee *big.Int, nonce uint64, signer types.Signer) (*types.Transaction, error) {
	data, err := EncodeCheckpointParams(params)
	if err != nil {
		return nil, err
	}
	return signAnchor(data, to, baseFee, nonce, signer)
}

func signAnchor(data []byte, to common.Address, baseFee *big.Int, nonce uint64, signer types.Signer) (*types.Transaction, error) {
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   signer.ChainID(),
		Nonce:     nonce,
		GasTipCap: common.Big0,
		GasFeeCap: baseFee,
		Gas:       GasLimit,
		To:        &to,
		Data:      data,
	})
	return types.SignTx(tx, signer, goldenTouchKey)
}

// EncodeParams ABI-encodes the earlier-fork anchor call data, selector
// included.
func EncodeParams(params Params) ([]byte, error) {
	packed, err := anchorArgs.Pack(
		params.AnchorBlockID,
		params.AnchorStateRoot,
		params.ParentGasUsed,
		params.BaseFeeSharingPctg,
		hashesToBytes32(params.SignalSlots),
	)
	if err != nil {
		return nil, fmt.Errorf("anchor: encode params: %w", err)
	}
	return append(append([]byte{}, anchorSelector...), packed...), nil
}

// EncodeCheckpointParams ABI-encodes the later-fork anchor call data,
// selector included.
func EncodeCheckpointParams(params CheckpointParams) ([]byte, error) {
	packed, err := checkpointArgs.Pack(params.BlockNumber, params.BlockHash, params.StateRoot)
	if err != nil {
		return nil, fmt.Errorf("anchor: encode checkpoint params: %w", err)
	}
	return append(append([]byte{}, checkpointSelector...), packed...), nil
}

// DecodeAnchorBlockID extracts the anchor block id from the first
// transaction's call data of either fork generation, implementing the
// batchmanager.AnchorDecoder interface.
func DecodeAnchorBlockID(data []byte) (uint64, error) {
	if len(data) < 4 {
		return 0, fmt.Errorf("anchor: call data too short: %d bytes", len(data))
	}
	selector, body := data[:4], data[4:]

	switch {
	case bytesEqual(selector, anchorSelector):
		values, err := anchorArgs.Unpack(body)
		if err != nil {
			return 0, fmt.Errorf("anchor: decode anchor params: %w", err)
		}
		return values[0].(uint64), nil
	case bytesEqual(selector, checkpointSelector):
		values, err := checkpointArgs.Unpack(body)
		if err != nil {
			return 0, fmt.Errorf("anchor: decode checkpoint params: %w", err)
		}
		return values[0].(uint64), nil
	default:
		return 0, fmt.Errorf("anchor: unrecognized anchor call selector %x", selector)
	}
}

func hashesToBytes32(hashes []common.Hash) [][32]byte {
	out := make([][32]byte, len(hashes))
	for i, h := range hashes {
		out[i] = h
	}
	return out
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
