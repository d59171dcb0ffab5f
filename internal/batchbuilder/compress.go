package batchbuilder

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/ethereum/go-ethereum/rlp"
)

// compressTxLists implements the two-stage compression spec.md §4.6 calls
// for when a batch exceeds its byte budget: RLP-encode the concatenated
// per-block transaction lists, then zlib (stage one) then brotli (stage
// two), and report the final size. This is the same "RLP-then-compress"
// pipeline spec.md §6 names for the blob submission envelope.
func compressTxLists(blocks []L2Block) (uint64, error) {
	var rawTxLists [][]byte
	for _, b := range blocks {
		raw, err := rlp.EncodeToBytes(b.PrebuiltTxList.TxList)
		if err != nil {
			return 0, fmt.Errorf("batchbuilder: rlp-encode tx list: %w", err)
		}
		rawTxLists = append(rawTxLists, raw)
	}
	concatenated, err := rlp.EncodeToBytes(rawTxLists)
	if err != nil {
		return 0, fmt.Errorf("batchbuilder: rlp-encode tx lists: %w", err)
	}

	var zlibBuf bytes.Buffer
	zw := zlib.NewWriter(&zlibBuf)
	if _, err := zw.Write(concatenated); err != nil {
		return 0, fmt.Errorf("batchbuilder: zlib stage: %w", err)
	}
	if err := zw.Close(); err != nil {
		return 0, fmt.Errorf("batchbuilder: zlib stage close: %w", err)
	}

	var brotliBuf bytes.Buffer
	bw := brotli.NewWriter(&brotliBuf)
	if _, err := io.Copy(bw, &zlibBuf); err != nil {
		return 0, fmt.Errorf("batchbuilder: brotli stage: %w", err)
	}
	if err := bw.Close(); err != nil {
		return 0, fmt.Errorf("batchbuilder: brotli stage close: %w", err)
	}

	return uint64(brotliBuf.Len()), nil
}
