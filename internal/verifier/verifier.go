// Package verifier implements the handover-window Verifier and the
// HeadVerifier reorg guard, grounded on spec.md §4.10 (no dedicated Rust
// source file was retrieved for this component; semantics are taken
// directly from the spec text and from how
// original_source/pacaya/src/node/batch_manager/mod.rs's recovery paths
// consume a detached builder clone).
package verifier

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/catalyst-sequencer/catalyst-node/internal/batchbuilder"
)

// Outcome is the closed result set a Verifier tick can report.
type Outcome string

const (
	OutcomeSlotNotValid           Outcome = "slot_not_valid"
	OutcomeVerificationInProgress Outcome = "verification_in_progress"
	OutcomeSuccessNoBatches       Outcome = "success_no_batches"
	OutcomeSuccessWithBatches     Outcome = "success_with_batches"
	OutcomeReanchorNeeded         Outcome = "reanchor_needed"
)

// Result is the full outcome of one Verifier tick.
type Result struct {
	Outcome        Outcome
	Batches        []batchbuilder.PendingEntry[*batchbuilder.Proposal, struct{}]
	ReanchorHeight uint64
	ReanchorReason string
}

// InboxReader is the narrow L1 surface the verifier polls.
type InboxReader interface {
	GetLastBlockID(ctx context.Context) (uint64, error)
}

// BuilderClone is the detached builder the verifier was handed at
// instantiation; any batches it accumulates while the L1 inbox catches up
// must be handed back to the live manager's FIFO.
type BuilderClone interface {
	TakeBatchesToSend() []batchbuilder.PendingEntry[*batchbuilder.Proposal, struct{}]
}

// Verifier waits, during a handover window, for the L1 inbox to catch up to
// the L2 tip height observed at the moment the node took over the preconfer
// role.
type Verifier struct {
	targetHeight   uint64
	instantiatedAt uint64
	expirySlot     uint64
	inbox          InboxReader
	builderClone   BuilderClone
	log            log.Logger
}

// New instantiates a Verifier at the preconfirmation-start slot of a
// handover window.
func New(targetHeight, instantiatedAtSlot, expirySlot uint64, inbox InboxReader, builderClone BuilderClone) *Verifier {
	return &Verifier{
		targetHeight:   targetHeight,
		instantiatedAt: instantiatedAtSlot,
		expirySlot:     expirySlot,
		inbox:          inbox,
		builderClone:   builderClone,
		log:            log.New("component", "verifier"),
	}
}

// Tick polls the L1 inbox tip and reports catch-up progress for currentSlot.
func (v *Verifier) Tick(ctx context.Context, currentSlot uint64) (Result, error) {
	if currentSlot < v.instantiatedAt {
		return Result{Outcome: OutcomeSlotNotValid}, nil
	}

	lastBlockID, err := v.inbox.GetLastBlockID(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("verifier: get last block id: %w", err)
	}

	if lastBlockID >= v.targetHeight {
		extra := v.builderClone.TakeBatchesToSend()
		if len(extra) == 0 {
			return Result{Outcome: OutcomeSuccessNoBatches}, nil
		}
		return Result{Outcome: OutcomeSuccessWithBatches, Batches: extra}, nil
	}

	if currentSlot >= v.expirySlot {
		v.log.Warn("l1 inbox did not catch up before verification expired", "last_block_id", lastBlockID, "target", v.targetHeight)
		return Result{
			Outcome:        OutcomeReanchorNeeded,
			ReanchorHeight: lastBlockID,
			ReanchorReason: "l1 inbox did not reach the target l2 tip height before the verification slot",
		}, nil
	}

	return Result{Outcome: OutcomeVerificationInProgress}, nil
}

// CriticalCanceller triggers a graceful-restart on an unrecoverable local
// invariant violation.
type CriticalCanceller interface {
	CancelOnCriticalError(reason string)
}

// HeadVerifier tracks the expected (id, hash) of the last locally-accepted L2
// head and detects divergence between what the node itself produced and
// what it later observes as the chain's actual head.
type HeadVerifier struct {
	expectedID   uint64
	expectedHash common.Hash
	hasExpected  bool
	cancelToken  CriticalCanceller
	log          log.Logger
}

// NewHeadVerifier constructs an empty HeadVerifier.
func NewHeadVerifier(cancelToken CriticalCanceller) *HeadVerifier {
	return &HeadVerifier{cancelToken: cancelToken, log: log.New("component", "head_verifier")}
}

// Reset clears the tracked head, used on a preconf_started rising edge.
func (h *HeadVerifier) Reset() {
	h.hasExpected = false
	h.expectedID = 0
	h.expectedHash = common.Hash{}
}

// VerifyNextAndSet checks that a just-accepted driver response extends the
// tracked head and, if so, adopts it as the new expected head. A mismatch is
// a locally-produced fork and triggers critical cancellation.
func (h *HeadVerifier) VerifyNextAndSet(number uint64, hash, parentHash common.Hash) {
	if h.hasExpected {
		if parentHash != h.expectedHash || number != h.expectedID+1 {
			h.log.Error("head verifier mismatch on accepted driver response",
				"expected_id", h.expectedID, "expected_hash", h.expectedHash,
				"got_number", number, "got_parent_hash", parentHash)
			h.cancelToken.CancelOnCriticalError("locally produced l2 head diverged from the expected chain")
			return
		}
	}
	h.expectedID = number
	h.expectedHash = hash
	h.hasExpected = true
}

// Verify checks an externally observed (parentID, parentHash) — typically
// the chain monitor's latest header — against the tracked expected head
// before the node produces its next block.
func (h *HeadVerifier) Verify(parentID uint64, parentHash common.Hash) {
	if !h.hasExpected {
		return
	}
	if parentID != h.expectedID || parentHash != h.expectedHash {
		h.log.Error("head verifier mismatch on observed parent",
			"expected_id", h.expectedID, "expected_hash", h.expectedHash,
			"observed_id", parentID, "observed_hash", parentHash)
		h.cancelToken.CancelOnCriticalError("observed l2 head diverged from the expected chain")
	}
}
