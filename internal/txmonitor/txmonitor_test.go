package txmonitor

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"github.com/catalyst-sequencer/catalyst-node/internal/txerrors"
)

type fakeSubmitter struct {
	mu              sync.Mutex
	sent            []*types.Transaction
	sendErr         error
	confirmAfterTry int
	calls           int
}

func (f *fakeSubmitter) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	return f.sendErr
}

func (f *fakeSubmitter) TransactionReceipt(_ context.Context, _ [32]byte) (*types.Receipt, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()
	if call < f.confirmAfterTry {
		return nil, errors.New("not found")
	}
	return &types.Receipt{Status: types.ReceiptStatusSuccessful}, nil
}

func testSigner(nonce *uint64) Signer {
	return func(priorityFeePerGas *big.Int, n uint64) (*types.Transaction, error) {
		if nonce != nil {
			*nonce = n
		}
		return types.NewTx(&types.LegacyTx{Nonce: n, GasPrice: priorityFeePerGas}), nil
	}
}

func TestMonitorNewTransactionRejectsConcurrentSubmission(t *testing.T) {
	sub := &fakeSubmitter{confirmAfterTry: 1}
	m := New(Config{MaxAttemptsToSendTx: 1, MaxAttemptsToWaitTx: 1, DelayBetweenTxAttemptsSec: 1}, sub, make(chan txerrors.TransactionError, 1))

	require.NoError(t, m.MonitorNewTransaction(context.Background(), testSigner(nil), big.NewInt(1), 0))
	err := m.MonitorNewTransaction(context.Background(), testSigner(nil), big.NewInt(1), 0)
	require.Error(t, err)
}

func TestMonitorConfirmsOnFirstReceipt(t *testing.T) {
	sub := &fakeSubmitter{confirmAfterTry: 1}
	errCh := make(chan txerrors.TransactionError, 1)
	m := New(Config{MaxAttemptsToSendTx: 3, MaxAttemptsToWaitTx: 1, DelayBetweenTxAttemptsSec: 1}, sub, errCh)

	require.NoError(t, m.MonitorNewTransaction(context.Background(), testSigner(nil), big.NewInt(1), 0))

	require.Eventually(t, func() bool { return !m.IsTransactionInProgress() }, 2*time.Second, 10*time.Millisecond)
	select {
	case e := <-errCh:
		t.Fatalf("unexpected error reported: %v", e)
	default:
	}
}

func TestMonitorReportsInsufficientFundsImmediately(t *testing.T) {
	sub := &fakeSubmitter{sendErr: errors.New("insufficient funds")}
	m := New(Config{MaxAttemptsToSendTx: 3, MaxAttemptsToWaitTx: 1, DelayBetweenTxAttemptsSec: 1}, sub, make(chan txerrors.TransactionError, 1))

	err := m.MonitorNewTransaction(context.Background(), testSigner(nil), big.NewInt(1), 0)
	require.Error(t, err)
	te, ok := txerrors.As(err)
	require.True(t, ok)
	require.Equal(t, txerrors.KindInsufficientFunds, te.Kind)
	require.False(t, m.IsTransactionInProgress())
}

func TestBumpPriorityFeeAlwaysIncreases(t *testing.T) {
	fee := big.NewInt(100)
	bumped := bumpPriorityFee(fee, 10)
	require.Equal(t, big.NewInt(110), bumped)

	tiny := big.NewInt(1)
	require.Equal(t, big.NewInt(2), bumpPriorityFee(tiny, 1))
}

func TestChooseSubmissionPathForcesBlobOverSizeCeiling(t *testing.T) {
	require.False(t, ChooseSubmissionPath(big.NewInt(1), big.NewInt(1_000_000), 129*1024))
}

func TestChooseSubmissionPathPrefersCheaperPath(t *testing.T) {
	require.True(t, ChooseSubmissionPath(big.NewInt(100), big.NewInt(200), 1000))
	require.False(t, ChooseSubmissionPath(big.NewInt(300), big.NewInt(200), 1000))
}
