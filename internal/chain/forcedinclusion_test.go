package chain

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/stretchr/testify/require"
)

type fakeBlobGetter struct {
	blobs map[common.Hash][]byte
}

func (f fakeBlobGetter) GetBlob(hash common.Hash) ([]byte, error) {
	return f.blobs[hash], nil
}

func TestFetchBlobBytesConcatenatesAndSlicesFromOffset(t *testing.T) {
	h1, h2 := common.HexToHash("0x01"), common.HexToHash("0x02")
	getter := fakeBlobGetter{blobs: map[common.Hash][]byte{
		h1: []byte("hello"),
		h2: []byte("world"),
	}}
	fetcher := NewBlobFetcher(getter)

	out, err := fetcher.FetchBlobBytes(context.Background(), 0, [][32]byte{h1, h2}, 3)
	require.NoError(t, err)
	require.Equal(t, []byte("loworld"), out)
}

func TestFetchBlobBytesRejectsOffsetPastEnd(t *testing.T) {
	h1 := common.HexToHash("0x01")
	getter := fakeBlobGetter{blobs: map[common.Hash][]byte{h1: []byte("hi")}}
	fetcher := NewBlobFetcher(getter)

	_, err := fetcher.FetchBlobBytes(context.Background(), 0, [][32]byte{h1}, 100)
	require.Error(t, err)
}

func TestManifestDecoderDecodesRLPTransactionList(t *testing.T) {
	txs := []*gethtypes.Transaction{gethtypes.NewTx(&gethtypes.LegacyTx{Nonce: 1})}
	encoded, err := rlp.EncodeToBytes(txs)
	require.NoError(t, err)

	decoded, err := ManifestDecoder{}.DecodeSingleBlock(encoded)
	require.NoError(t, err)
	require.Len(t, decoded, 1)
	require.Equal(t, uint64(1), decoded[0].Nonce())
}

func TestManifestDecoderRejectsGarbage(t *testing.T) {
	_, err := ManifestDecoder{}.DecodeSingleBlock([]byte{0xff, 0xff})
	require.Error(t, err)
}
