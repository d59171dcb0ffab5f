package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/crypto/kzg4844"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"github.com/catalyst-sequencer/catalyst-node/internal/batchbuilder"
	"github.com/catalyst-sequencer/catalyst-node/internal/l1"
	"github.com/catalyst-sequencer/catalyst-node/internal/signer"
	"github.com/catalyst-sequencer/catalyst-node/internal/txmonitor"
)

var proposeBatchSelector = crypto.Keccak256([]byte("proposeBatch(bytes32[])"))[:4]
var bytes32SliceArg = abi.Arguments{{Type: bytes32SliceType}}

// submitGasLimit is the fixed execution gas budget of a proposeBatch call;
// the call itself only records blob hashes, so this is deliberately small.
const submitGasLimit = 300_000

// Submitter turns a finalized proposal into an EIP-4844 blob transaction
// calling the L1 inbox's proposeBatch, and hands it to a txmonitor.Monitor
// for submission and fee-bumped tracking. It implements
// batchmanager.BatchSubmitter. The inbox call's exact ABI (a single
// bytes32[] of blob hashes) is a documented simplification of the real
// Pacaya/Shasta inbox signature; see DESIGN.md.
type Submitter struct {
	l1           *l1.ExecutionLayer
	signer       signer.TxSigner
	inboxAddress common.Address
	monitor      *txmonitor.Monitor
}

// NewSubmitter constructs a Submitter.
func NewSubmitter(executionLayer *l1.ExecutionLayer, txSigner signer.TxSigner, inboxAddress common.Address, monitor *txmonitor.Monitor) *Submitter {
	return &Submitter{l1: executionLayer, signer: txSigner, inboxAddress: inboxAddress, monitor: monitor}
}

// Submit implements batchmanager.BatchSubmitter.
func (s *Submitter) Submit(ctx context.Context, entry batchbuilder.PendingEntry[*batchbuilder.Proposal, struct{}], submitOnlyFullBatches bool) error {
	blobs, commitments, proofs, hashes, err := buildBlobs(entry.Batch)
	if err != nil {
		return fmt.Errorf("chain: build proposal blobs: %w", err)
	}

	packedArgs, err := bytes32SliceArg.Pack(hashesAsFixed(hashes))
	if err != nil {
		return fmt.Errorf("chain: pack proposeBatch args: %w", err)
	}
	callData := append(append([]byte{}, proposeBatchSelector...), packedArgs...)

	nonce, err := s.l1.GetAccountNonce(ctx, s.signer.Address())
	if err != nil {
		return fmt.Errorf("chain: get account nonce: %w", err)
	}
	fees, err := l1.GetFeesPerGas(ctx, s.l1.Client)
	if err != nil {
		return fmt.Errorf("chain: get fees per gas: %w", err)
	}

	chainID := new(big.Int).SetUint64(s.l1.ChainID)
	ethSigner := types.NewCancunSigner(chainID)

	sign := func(priorityFeePerGas *big.Int, n uint64) (*types.Transaction, error) {
		blobTx := &types.BlobTx{
			ChainID:    uint256.MustFromBig(chainID),
			Nonce:      n,
			To:         s.inboxAddress,
			Data:       callData,
			Sidecar:    &types.BlobTxSidecar{Blobs: blobs, Commitments: commitments, Proofs: proofs},
			BlobHashes: hashes,
		}
		fees.UpdateEIP4844(blobTx, submitGasLimit)
		if priorityFeePerGas != nil {
			blobTx.GasTipCap = uint256.MustFromBig(priorityFeePerGas)
		}

		signed, err := s.signer.SignTx(ctx, types.NewTx(blobTx), ethSigner)
		if err != nil {
			return nil, fmt.Errorf("chain: sign proposeBatch tx: %w", err)
		}
		return signed, nil
	}

	return s.monitor.MonitorNewTransaction(ctx, sign, fees.MaxPriorityFeePerGas, nonce)
}

// buildBlobs RLP-encodes each L2 block's transaction list in order into a
// contiguous byte stream, then packs it into as many 128 KiB blobs as
// needed, committing and proving each with the configured KZG backend.
func buildBlobs(proposal *batchbuilder.Proposal) ([]kzg4844.Blob, []kzg4844.Commitment, []kzg4844.Proof, []common.Hash, error) {
	var payload []byte
	for _, block := range proposal.L2Blocks() {
		encoded, err := rlp.EncodeToBytes(block.PrebuiltTxList.TxList)
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("encode block transactions: %w", err)
		}
		payload = append(payload, encoded...)
	}

	const blobSize = 131072
	var blobs []kzg4844.Blob
	for offset := 0; offset < len(payload) || len(blobs) == 0; offset += blobSize {
		var blob kzg4844.Blob
		end := offset + blobSize
		if end > len(payload) {
			end = len(payload)
		}
		if offset < len(payload) {
			copy(blob[:], payload[offset:end])
		}
		blobs = append(blobs, blob)
		if end >= len(payload) {
			break
		}
	}

	commitments := make([]kzg4844.Commitment, len(blobs))
	proofs := make([]kzg4844.Proof, len(blobs))
	hashes := make([]common.Hash, len(blobs))
	for i := range blobs {
		commitment, err := kzg4844.BlobToCommitment(&blobs[i])
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("commit blob %d: %w", i, err)
		}
		proof, err := kzg4844.ComputeBlobProof(&blobs[i], commitment)
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("prove blob %d: %w", i, err)
		}
		commitments[i] = commitment
		proofs[i] = proof
		hashes[i] = common.Hash(kzg4844.CalcBlobHashV1(crypto.NewKeccakState(), &commitment))
	}
	return blobs, commitments, proofs, hashes, nil
}

func hashesAsFixed(hashes []common.Hash) [][32]byte {
	out := make([][32]byte, len(hashes))
	for i, h := range hashes {
		out[i] = h
	}
	return out
}
