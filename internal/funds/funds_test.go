package funds

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

type fakeBalanceReader struct {
	balance *big.Int
	err     error
}

func (f *fakeBalanceReader) GetBalance(context.Context, common.Address) (*big.Int, error) {
	return f.balance, f.err
}

type fakeBridger struct {
	calls  int
	amount *big.Int
}

func (f *fakeBridger) TransferEthFromL2ToL1(_ context.Context, amount *big.Int, _ common.Address) error {
	f.calls++
	f.amount = amount
	return nil
}

func TestTickBridgesWhenAboveThreshold(t *testing.T) {
	l2 := &fakeBalanceReader{balance: big.NewInt(1000)}
	bridger := &fakeBridger{}
	c := New(Config{BridgingThresholdWei: big.NewInt(500), AmountToBridgeWei: big.NewInt(400)}, l2, bridger)

	c.tick(context.Background())
	require.Equal(t, 1, bridger.calls)
	require.Equal(t, big.NewInt(400), bridger.amount)
}

func TestTickDoesNotBridgeBelowThreshold(t *testing.T) {
	l2 := &fakeBalanceReader{balance: big.NewInt(100)}
	bridger := &fakeBridger{}
	c := New(Config{BridgingThresholdWei: big.NewInt(500)}, l2, bridger)

	c.tick(context.Background())
	require.Equal(t, 0, bridger.calls)
}

func TestTickToleratesBalanceReadError(t *testing.T) {
	l2 := &fakeBalanceReader{err: errors.New("rpc down")}
	bridger := &fakeBridger{}
	c := New(Config{BridgingThresholdWei: big.NewInt(500)}, l2, bridger)

	require.NotPanics(t, func() { c.tick(context.Background()) })
	require.Equal(t, 0, bridger.calls)
}

func TestRunStopsOnContextCancellation(t *testing.T) {
	l2 := &fakeBalanceReader{balance: big.NewInt(0)}
	c := New(Config{BridgingThresholdWei: big.NewInt(500), MonitorInterval: time.Hour}, l2, &fakeBridger{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}

func TestNoopBridgerDoesNotError(t *testing.T) {
	var b NoopBridger
	require.NoError(t, b.TransferEthFromL2ToL1(context.Background(), big.NewInt(1), common.Address{}))
}
