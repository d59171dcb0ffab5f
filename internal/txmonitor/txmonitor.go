// Package txmonitor owns at most one in-flight L1 submission: it submits,
// waits for inclusion, bumps fees and resubmits on timeout, and classifies
// terminal failures, grounded on spec.md §4.5 and
// original_source/common/src/l1/fees_per_gas.rs's fee-path comparison.
package txmonitor

import (
	"context"
	"fmt"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"

	"github.com/catalyst-sequencer/catalyst-node/internal/txerrors"
)

// maxEIP1559EncodedBytes is the encoded-transaction-size threshold past which
// the builder always falls back to an EIP-4844 blob submission regardless of
// comparative cost (spec.md §4.5).
const maxEIP1559EncodedBytes = 128 * 1024

// Config bundles the monitor's retry/backoff policy.
type Config struct {
	MaxAttemptsToSendTx       uint64
	MaxAttemptsToWaitTx       uint64
	DelayBetweenTxAttemptsSec uint64
	TxFeesIncreasePercentage  uint64
}

// Submitter is the narrow client surface the monitor needs to send and track
// a transaction.
type Submitter interface {
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash [32]byte) (*types.Receipt, error)
}

// Signer produces a signed resubmission given an updated priority fee.
type Signer func(priorityFeePerGas *big.Int, nonce uint64) (*types.Transaction, error)

// Monitor tracks at most one in-flight submission at a time.
type Monitor struct {
	config    Config
	submitter Submitter
	errCh     chan<- txerrors.TransactionError
	inFlight  atomic.Bool
	log       log.Logger
}

// New constructs a Monitor. errCh receives terminal failures reported
// asynchronously from the background submission goroutine, mirroring the
// Rust mpsc<TransactionError> channel.
func New(config Config, submitter Submitter, errCh chan<- txerrors.TransactionError) *Monitor {
	return &Monitor{config: config, submitter: submitter, errCh: errCh, log: log.New("component", "transaction_monitor")}
}

// IsTransactionInProgress reports whether a submission is currently being
// tracked.
func (m *Monitor) IsTransactionInProgress() bool { return m.inFlight.Load() }

// MonitorNewTransaction submits tx via sign, then spawns a background
// goroutine that waits for inclusion, bumping fees and resubmitting with the
// same nonce on timeout. Returns once the first submission attempt has been
// made; failures after that point are reported on errCh.
func (m *Monitor) MonitorNewTransaction(ctx context.Context, sign Signer, priorityFeePerGas *big.Int, pendingNonce uint64) error {
	if m.inFlight.Swap(true) {
		return fmt.Errorf("txmonitor: a transaction is already in progress")
	}

	tx, err := sign(priorityFeePerGas, pendingNonce)
	if err != nil {
		m.inFlight.Store(false)
		return fmt.Errorf("txmonitor: sign initial submission: %w", err)
	}
	if err := m.submitter.SendTransaction(ctx, tx); err != nil {
		m.inFlight.Store(false)
		if kind, ok := txerrors.ClassifyRevert(err.Error()); ok && (kind == txerrors.KindInsufficientFunds || kind == txerrors.KindTransactionReverted) {
			return txerrors.New(kind, "submission rejected", err)
		}
		return fmt.Errorf("txmonitor: submit transaction: %w", err)
	}

	go m.run(ctx, sign, tx, priorityFeePerGas, pendingNonce)
	return nil
}

func (m *Monitor) run(ctx context.Context, sign Signer, tx *types.Transaction, priorityFeePerGas *big.Int, nonce uint64) {
	defer m.inFlight.Store(false)

	currentTx := tx
	currentPriority := new(big.Int).Set(priorityFeePerGas)

	for attempt := uint64(1); attempt <= m.config.MaxAttemptsToSendTx; attempt++ {
		receipt, err := m.waitForInclusion(ctx, currentTx.Hash())
		if err != nil {
			if ctx.Err() != nil {
				// Cancellation aborts waiting without synthesizing NotConfirmed
				// (spec.md §4.12's cancellation policy).
				return
			}
			m.log.Debug("transaction not yet confirmed, bumping fee and resubmitting", "attempt", attempt)
			currentPriority = bumpPriorityFee(currentPriority, m.config.TxFeesIncreasePercentage)
			next, signErr := sign(currentPriority, nonce)
			if signErr != nil {
				m.report(txerrors.New(txerrors.KindEstimationFailed, "resign resubmission", signErr))
				return
			}
			if sendErr := m.submitter.SendTransaction(ctx, next); sendErr != nil {
				kind, ok := txerrors.ClassifyRevert(sendErr.Error())
				if !ok {
					kind = txerrors.KindEstimationFailed
				}
				m.report(txerrors.New(kind, "resubmission rejected", sendErr))
				return
			}
			currentTx = next
			continue
		}

		if receipt.Status == types.ReceiptStatusFailed {
			m.report(txerrors.New(txerrors.KindTransactionReverted, "receipt status 0", fmt.Errorf("tx %s", receipt.TxHash)))
			return
		}
		m.log.Info("transaction confirmed", "hash", receipt.TxHash, "block", receipt.BlockNumber)
		return
	}
	m.report(txerrors.New(txerrors.KindNotConfirmed, "exhausted send attempts", fmt.Errorf("attempts=%d", m.config.MaxAttemptsToSendTx)))
}

func (m *Monitor) waitForInclusion(ctx context.Context, hash [32]byte) (*types.Receipt, error) {
	deadline := time.Duration(m.config.MaxAttemptsToWaitTx*m.config.DelayBetweenTxAttemptsSec) * time.Second
	waitCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	ticker := time.NewTicker(time.Duration(m.config.DelayBetweenTxAttemptsSec) * time.Second)
	defer ticker.Stop()

	for {
		receipt, err := m.submitter.TransactionReceipt(waitCtx, hash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		select {
		case <-waitCtx.Done():
			return nil, waitCtx.Err()
		case <-ticker.C:
		}
	}
}

func (m *Monitor) report(txErr *txerrors.TransactionError) {
	select {
	case m.errCh <- *txErr:
	default:
		m.log.Warn("transaction error channel full, dropping report", "kind", txErr.Kind)
	}
}

// bumpPriorityFee increases fee by percentage, rounding up so repeated
// resubmissions at low fees still make forward progress.
func bumpPriorityFee(fee *big.Int, percentage uint64) *big.Int {
	increase := new(big.Int).Mul(fee, new(big.Int).SetUint64(percentage))
	increase.Div(increase, big.NewInt(100))
	if increase.Sign() == 0 {
		increase = big.NewInt(1)
	}
	return new(big.Int).Add(fee, increase)
}

// ChooseSubmissionPath decides between an EIP-1559 (calldata) and EIP-4844
// (blob) submission: EIP-1559 is preferred on cost unless its encoded size
// exceeds the 128 KiB ceiling, in which case EIP-4844 is mandatory
// regardless of cost (spec.md §4.5).
func ChooseSubmissionPath(eip1559Cost, eip4844Cost *big.Int, eip1559EncodedBytes int) bool {
	if eip1559EncodedBytes > maxEIP1559EncodedBytes {
		return false
	}
	return eip1559Cost.Cmp(eip4844Cost) <= 0
}
