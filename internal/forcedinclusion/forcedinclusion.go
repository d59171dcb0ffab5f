// Package forcedinclusion reads the next forced-inclusion entry from the L1
// queue, decodes its embedded transactions, and advances a local atomic
// cursor, grounded on
// original_source/shasta/src/forced_inclusion/mod.rs.
package forcedinclusion

import (
	"context"
	"fmt"
	"sync/atomic"

	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
)

// Entry is one on-chain forced-inclusion queue item: a blob slice the
// derivation-source manifest lives in.
type Entry struct {
	BlobTimestampSec uint64
	BlobHashes       [][32]byte
	Offset           uint64
}

// QueueReader is the L1 surface the reader needs: head/tail indices and
// queue-entry lookup by index (spec.md §6's forced-inclusion head/tail/lookup
// contract).
type QueueReader interface {
	ForcedInclusionHead(ctx context.Context) (uint64, error)
	ForcedInclusionTail(ctx context.Context) (uint64, error)
	ForcedInclusionEntry(ctx context.Context, index uint64) (Entry, error)
}

// BlobFetcher reconstructs the bytes behind a set of blob hashes (either via
// a blob indexer or L1 blob sidecars), per spec.md §4.2.
type BlobFetcher interface {
	FetchBlobBytes(ctx context.Context, timestampSec uint64, hashes [][32]byte, offset uint64) ([]byte, error)
}

// ManifestDecoder decodes the derivation-source manifest embedded in blob
// bytes into the transactions of the single block it must contain.
type ManifestDecoder interface {
	DecodeSingleBlock(blobBytes []byte) ([]*gethtypes.Transaction, error)
}

// Reader is the forced-inclusion cursor and decode pipeline.
type Reader struct {
	queue    QueueReader
	blobs    BlobFetcher
	manifest ManifestDecoder
	index    atomic.Uint64
	log      log.Logger
}

// New constructs a Reader with its cursor initialized to the on-chain queue
// head.
func New(ctx context.Context, queue QueueReader, blobs BlobFetcher, manifest ManifestDecoder) (*Reader, error) {
	head, err := queue.ForcedInclusionHead(ctx)
	if err != nil {
		return nil, fmt.Errorf("forcedinclusion: read head: %w", err)
	}
	r := &Reader{queue: queue, blobs: blobs, manifest: manifest, log: log.New("component", "forced_inclusion")}
	r.index.Store(head)
	return r, nil
}

// SyncQueueIndexWithHead re-reads the on-chain head and resets the cursor to
// it; idempotent given a stable on-chain head (spec.md §8).
func (r *Reader) SyncQueueIndexWithHead(ctx context.Context) (uint64, error) {
	head, err := r.queue.ForcedInclusionHead(ctx)
	if err != nil {
		return 0, fmt.Errorf("forcedinclusion: resync head: %w", err)
	}
	r.index.Store(head)
	r.log.Debug("sync_queue_index_with_head", "head", head)
	return head, nil
}

// CursorIndex returns the current cursor position (for metrics/tests).
func (r *Reader) CursorIndex() uint64 { return r.index.Load() }

// DecodeCurrentForcedInclusion fetches and decodes the entry at the current
// cursor, returning nil if the cursor has caught up to the tail.
func (r *Reader) DecodeCurrentForcedInclusion(ctx context.Context) ([]*gethtypes.Transaction, error) {
	i := r.index.Load()
	tail, err := r.queue.ForcedInclusionTail(ctx)
	if err != nil {
		return nil, fmt.Errorf("forcedinclusion: read tail: %w", err)
	}
	r.log.Debug("decode forced inclusion", "index", i, "tail", tail)
	if i >= tail {
		return nil, nil
	}

	entry, err := r.queue.ForcedInclusionEntry(ctx, i)
	if err != nil {
		return nil, fmt.Errorf("forcedinclusion: read entry %d: %w", i, err)
	}

	blobBytes, err := r.blobs.FetchBlobBytes(ctx, entry.BlobTimestampSec, entry.BlobHashes, entry.Offset)
	if err != nil {
		return nil, fmt.Errorf("forcedinclusion: fetch blob bytes: %w", err)
	}

	txs, err := r.manifest.DecodeSingleBlock(blobBytes)
	if err != nil {
		return nil, fmt.Errorf("forcedinclusion: decode manifest: %w", err)
	}
	return txs, nil
}

// ConsumeForcedInclusion decodes the current entry and, on success,
// increments the cursor.
func (r *Reader) ConsumeForcedInclusion(ctx context.Context) ([]*gethtypes.Transaction, error) {
	txs, err := r.DecodeCurrentForcedInclusion(ctx)
	if err != nil {
		return nil, err
	}
	if txs != nil {
		r.index.Add(1)
	}
	return txs, nil
}

// ReleaseForcedInclusion decrements the cursor — used when the driver
// rejects the forced-inclusion block, so it is retried.
func (r *Reader) ReleaseForcedInclusion() {
	for {
		cur := r.index.Load()
		if cur == 0 {
			return
		}
		if r.index.CompareAndSwap(cur, cur-1) {
			return
		}
	}
}
