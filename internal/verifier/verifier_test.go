package verifier

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/catalyst-sequencer/catalyst-node/internal/batchbuilder"
)

type fakeInbox struct {
	lastBlockID uint64
	err         error
}

func (f *fakeInbox) GetLastBlockID(context.Context) (uint64, error) {
	return f.lastBlockID, f.err
}

type fakeBuilderClone struct {
	batches []batchbuilder.PendingEntry[*batchbuilder.Proposal, struct{}]
}

func (f *fakeBuilderClone) TakeBatchesToSend() []batchbuilder.PendingEntry[*batchbuilder.Proposal, struct{}] {
	return f.batches
}

func TestTickSlotNotValidBeforeInstantiation(t *testing.T) {
	v := New(10, 5, 20, &fakeInbox{}, &fakeBuilderClone{})
	result, err := v.Tick(context.Background(), 4)
	require.NoError(t, err)
	require.Equal(t, OutcomeSlotNotValid, result.Outcome)
}

func TestTickSuccessNoBatchesWhenInboxCaughtUp(t *testing.T) {
	v := New(10, 5, 20, &fakeInbox{lastBlockID: 10}, &fakeBuilderClone{})
	result, err := v.Tick(context.Background(), 6)
	require.NoError(t, err)
	require.Equal(t, OutcomeSuccessNoBatches, result.Outcome)
}

func TestTickSuccessWithBatchesWhenCloneAccumulatedWork(t *testing.T) {
	pending := []batchbuilder.PendingEntry[*batchbuilder.Proposal, struct{}]{{}}
	v := New(10, 5, 20, &fakeInbox{lastBlockID: 11}, &fakeBuilderClone{batches: pending})
	result, err := v.Tick(context.Background(), 6)
	require.NoError(t, err)
	require.Equal(t, OutcomeSuccessWithBatches, result.Outcome)
	require.Len(t, result.Batches, 1)
}

func TestTickVerificationInProgressBeforeExpiry(t *testing.T) {
	v := New(10, 5, 20, &fakeInbox{lastBlockID: 3}, &fakeBuilderClone{})
	result, err := v.Tick(context.Background(), 6)
	require.NoError(t, err)
	require.Equal(t, OutcomeVerificationInProgress, result.Outcome)
}

func TestTickReanchorNeededAfterExpiry(t *testing.T) {
	v := New(10, 5, 20, &fakeInbox{lastBlockID: 3}, &fakeBuilderClone{})
	result, err := v.Tick(context.Background(), 20)
	require.NoError(t, err)
	require.Equal(t, OutcomeReanchorNeeded, result.Outcome)
	require.Equal(t, uint64(3), result.ReanchorHeight)
	require.NotEmpty(t, result.ReanchorReason)
}

func TestTickPropagatesInboxError(t *testing.T) {
	v := New(10, 5, 20, &fakeInbox{err: errors.New("rpc down")}, &fakeBuilderClone{})
	_, err := v.Tick(context.Background(), 6)
	require.Error(t, err)
}

func TestHeadVerifierVerifyNextAndSetAcceptsMatchingChain(t *testing.T) {
	token := &fakeCancelToken{}
	h := NewHeadVerifier(token)

	genesisHash := common.HexToHash("0x01")
	h.VerifyNextAndSet(1, genesisHash, common.Hash{})
	require.False(t, token.cancelled)

	nextHash := common.HexToHash("0x02")
	h.VerifyNextAndSet(2, nextHash, genesisHash)
	require.False(t, token.cancelled)
}

func TestHeadVerifierVerifyNextAndSetCancelsOnMismatch(t *testing.T) {
	token := &fakeCancelToken{}
	h := NewHeadVerifier(token)

	h.VerifyNextAndSet(1, common.HexToHash("0x01"), common.Hash{})
	h.VerifyNextAndSet(3, common.HexToHash("0x03"), common.HexToHash("0xff"))
	require.True(t, token.cancelled)
}

func TestHeadVerifierVerifyPassesWhenUnset(t *testing.T) {
	token := &fakeCancelToken{}
	h := NewHeadVerifier(token)
	h.Verify(99, common.HexToHash("0xdead"))
	require.False(t, token.cancelled)
}

func TestHeadVerifierVerifyCancelsOnDivergentParent(t *testing.T) {
	token := &fakeCancelToken{}
	h := NewHeadVerifier(token)
	h.VerifyNextAndSet(1, common.HexToHash("0x01"), common.Hash{})

	h.Verify(1, common.HexToHash("0x01"))
	require.False(t, token.cancelled)

	h.Verify(1, common.HexToHash("0xbad"))
	require.True(t, token.cancelled)
}

func TestHeadVerifierResetClearsExpectedHead(t *testing.T) {
	token := &fakeCancelToken{}
	h := NewHeadVerifier(token)
	h.VerifyNextAndSet(1, common.HexToHash("0x01"), common.Hash{})
	h.Reset()

	h.VerifyNextAndSet(5, common.HexToHash("0x05"), common.HexToHash("0xabc123"))
	require.False(t, token.cancelled)
}

type fakeCancelToken struct {
	cancelled bool
	reason    string
}

func (f *fakeCancelToken) CancelOnCriticalError(reason string) {
	f.cancelled = true
	f.reason = reason
}
