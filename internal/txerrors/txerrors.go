// Package txerrors defines the closed transaction-error taxonomy the
// transaction monitor classifies every submission failure into (spec.md §3,
// §7), grounded on the estimation/revert matching in
// original_source/pacaya/src/l1/execution_layer.rs and
// original_source/common/src/l1/fees_per_gas.rs.
package txerrors

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is the closed set of transaction-error classifications.
type Kind string

const (
	KindEstimationTooEarly          Kind = "estimation_too_early"
	KindEstimationFailed            Kind = "estimation_failed"
	KindInsufficientFunds           Kind = "insufficient_funds"
	KindNotConfirmed                Kind = "not_confirmed"
	KindTransactionReverted          Kind = "transaction_reverted"
	KindUnsupportedTransactionType   Kind = "unsupported_transaction_type"
	KindGetBlockNumberFailed         Kind = "get_block_number_failed"
	KindReanchorRequired             Kind = "reanchor_required"
	KindOldestForcedInclusionDue     Kind = "oldest_forced_inclusion_due"
	KindNotTheOperatorInCurrentEpoch Kind = "not_the_operator_in_current_epoch"
)

// Critical reports whether this Kind's mandated action (spec.md §7) is a
// critical-cancel rather than a skip/recover/warn.
func (k Kind) Critical() bool {
	switch k {
	case KindEstimationFailed, KindInsufficientFunds, KindNotConfirmed,
		KindUnsupportedTransactionType, KindGetBlockNumberFailed, KindTransactionReverted:
		return true
	default:
		return false
	}
}

// TransactionError is the typed wrapper the transaction monitor emits on its
// error channel. It embeds the underlying cause so callers can still
// errors.Unwrap to it.
type TransactionError struct {
	Kind   Kind
	Reason string
	Err    error
}

func New(kind Kind, reason string, err error) *TransactionError {
	return &TransactionError{Kind: kind, Reason: reason, Err: err}
}

func (e *TransactionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *TransactionError) Unwrap() error { return e.Err }

// As reports whether err is (or wraps) a *TransactionError, returning it.
func As(err error) (*TransactionError, bool) {
	var te *TransactionError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}

// known revert-reason substrings the estimator / receipt inspection matches,
// mirroring execution_layer.rs's classification of revert data.
var revertReasonKinds = map[string]Kind{
	"L1_TOO_EARLY":              KindEstimationTooEarly,
	"too early":                 KindEstimationTooEarly,
	"insufficient funds":        KindInsufficientFunds,
	"insufficient balance":      KindInsufficientFunds,
	"L1_FORCED_INCLUSION_DUE":   KindOldestForcedInclusionDue,
	"OldestForcedInclusionDue":  KindOldestForcedInclusionDue,
	"L1_NOT_PRECONFER":          KindNotTheOperatorInCurrentEpoch,
	"not the operator":          KindNotTheOperatorInCurrentEpoch,
	"L1_BLOCK_MISMATCH":         KindReanchorRequired,
	"anchor block mismatch":     KindReanchorRequired,
}

// ClassifyRevert matches a known revert-reason substring against reason,
// which callers pass as the full (possibly wrapped) error text rather than a
// bare revert string: a wrapped "chain: sign proposeBatch tx: L1_TOO_EARLY"
// still carries the inner RPC/EVM revert text, so substring containment is
// required for this to ever match in practice. ok is false when nothing is
// recognized — callers should treat that as KindEstimationFailed (an
// unrecognized revert).
func ClassifyRevert(reason string) (Kind, bool) {
	for substr, kind := range revertReasonKinds {
		if strings.Contains(reason, substr) {
			return kind, true
		}
	}
	return "", false
}
