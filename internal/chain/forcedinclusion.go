package chain

import (
	"context"
	"fmt"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/catalyst-sequencer/catalyst-node/internal/forcedinclusion"
)

var (
	uint64Type, _      = abi.NewType("uint64", "", nil)
	bytes32SliceType, _ = abi.NewType("bytes32[]", "", nil)

	headSelector  = crypto.Keccak256([]byte("head()"))[:4]
	tailSelector  = crypto.Keccak256([]byte("tail()"))[:4]
	entrySelector = crypto.Keccak256([]byte("getEntry(uint64)"))[:4]

	uint64Return = abi.Arguments{{Type: uint64Type}}
	entryArgs    = abi.Arguments{{Type: uint64Type}}
	entryReturn  = abi.Arguments{
		{Name: "blobTimestampSec", Type: uint64Type},
		{Name: "blobHashes", Type: bytes32SliceType},
		{Name: "offset", Type: uint64Type},
	}
)

// ForcedInclusionQueue answers forcedinclusion.QueueReader by eth_call-ing
// the L1 forced-inclusion queue contract's head/tail/entry-lookup views,
// grounded on original_source/shasta/src/forced_inclusion/mod.rs's queue
// contract bindings. The exact function selectors are a documented choice
// (see DESIGN.md), since the original ABI bit-layout is not reproduced here.
type ForcedInclusionQueue struct {
	client  *ethclient.Client
	address common.Address
}

// NewForcedInclusionQueue constructs a ForcedInclusionQueue bound to the L1
// forced-inclusion queue contract at address.
func NewForcedInclusionQueue(client *ethclient.Client, address common.Address) *ForcedInclusionQueue {
	return &ForcedInclusionQueue{client: client, address: address}
}

func (q *ForcedInclusionQueue) call(ctx context.Context, data []byte) ([]byte, error) {
	return q.client.CallContract(ctx, ethereum.CallMsg{To: &q.address, Data: data}, nil)
}

// ForcedInclusionHead implements forcedinclusion.QueueReader.
func (q *ForcedInclusionQueue) ForcedInclusionHead(ctx context.Context) (uint64, error) {
	out, err := q.call(ctx, headSelector)
	if err != nil {
		return 0, fmt.Errorf("chain: call forced inclusion head: %w", err)
	}
	values, err := uint64Return.Unpack(out)
	if err != nil {
		return 0, fmt.Errorf("chain: decode forced inclusion head: %w", err)
	}
	return values[0].(uint64), nil
}

// ForcedInclusionTail implements forcedinclusion.QueueReader.
func (q *ForcedInclusionQueue) ForcedInclusionTail(ctx context.Context) (uint64, error) {
	out, err := q.call(ctx, tailSelector)
	if err != nil {
		return 0, fmt.Errorf("chain: call forced inclusion tail: %w", err)
	}
	values, err := uint64Return.Unpack(out)
	if err != nil {
		return 0, fmt.Errorf("chain: decode forced inclusion tail: %w", err)
	}
	return values[0].(uint64), nil
}

// ForcedInclusionEntry implements forcedinclusion.QueueReader.
func (q *ForcedInclusionQueue) ForcedInclusionEntry(ctx context.Context, index uint64) (forcedinclusion.Entry, error) {
	packed, err := entryArgs.Pack(index)
	if err != nil {
		return forcedinclusion.Entry{}, fmt.Errorf("chain: pack forced inclusion entry args: %w", err)
	}
	out, err := q.call(ctx, append(append([]byte{}, entrySelector...), packed...))
	if err != nil {
		return forcedinclusion.Entry{}, fmt.Errorf("chain: call forced inclusion entry %d: %w", index, err)
	}
	values, err := entryReturn.Unpack(out)
	if err != nil {
		return forcedinclusion.Entry{}, fmt.Errorf("chain: decode forced inclusion entry %d: %w", index, err)
	}
	hashes := values[1].([][32]byte)
	return forcedinclusion.Entry{
		BlobTimestampSec: values[0].(uint64),
		BlobHashes:       hashes,
		Offset:           values[2].(uint64),
	}, nil
}

// BlobFetcher fetches blob bytes from the configured blob indexer,
// implementing forcedinclusion.BlobFetcher.
type BlobFetcher struct {
	indexer BlobGetter
}

// BlobGetter is the narrow surface of *l1.BlobIndexer this fetcher needs.
type BlobGetter interface {
	GetBlob(hash common.Hash) ([]byte, error)
}

// NewBlobFetcher constructs a BlobFetcher backed by indexer.
func NewBlobFetcher(indexer BlobGetter) *BlobFetcher {
	return &BlobFetcher{indexer: indexer}
}

// FetchBlobBytes concatenates every named blob's bytes and slices from
// offset onward, per spec.md §4.2's "the manifest may begin partway into the
// first blob" rule.
func (f *BlobFetcher) FetchBlobBytes(_ context.Context, _ uint64, hashes [][32]byte, offset uint64) ([]byte, error) {
	var out []byte
	for _, h := range hashes {
		blob, err := f.indexer.GetBlob(common.Hash(h))
		if err != nil {
			return nil, fmt.Errorf("chain: fetch blob %x: %w", h, err)
		}
		out = append(out, blob...)
	}
	if uint64(len(out)) < offset {
		return nil, fmt.Errorf("chain: blob data shorter than manifest offset %d", offset)
	}
	return out[offset:], nil
}

// ManifestDecoder RLP-decodes the derivation-source manifest into the
// transactions of the single block it must contain. The manifest's exact
// wire format is not reproduced here; RLP-encoding a transaction list is the
// documented choice matching how internal/chain.L2 itself encodes a block's
// transactions for the driver (see DESIGN.md).
type ManifestDecoder struct{}

// DecodeSingleBlock implements forcedinclusion.ManifestDecoder.
func (ManifestDecoder) DecodeSingleBlock(blobBytes []byte) ([]*gethtypes.Transaction, error) {
	var txs []*gethtypes.Transaction
	if err := rlp.DecodeBytes(blobBytes, &txs); err != nil {
		return nil, fmt.Errorf("chain: decode manifest block transactions: %w", err)
	}
	return txs, nil
}
