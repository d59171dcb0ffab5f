package metrics

import (
	"math/big"
	"testing"

	gethmetrics "github.com/ethereum/go-ethereum/metrics"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersDistinctMetricsOnGivenRegistry(t *testing.T) {
	registry := gethmetrics.NewRegistry()
	m := New(registry)

	m.CriticalErrors.Inc(1)
	m.BlocksPreconfirmed.Inc(2)
	require.Equal(t, int64(1), m.CriticalErrors.Count())
	require.Equal(t, int64(2), m.BlocksPreconfirmed.Count())

	count := 0
	registry.Each(func(string, interface{}) { count++ })
	require.Greater(t, count, 5)
}

func TestSetPreconferEthBalanceConvertsWeiToFloat(t *testing.T) {
	m := New(gethmetrics.NewRegistry())
	m.SetPreconferEthBalance(big.NewInt(1_000_000_000_000_000_000))
	require.InDelta(t, 1e18, m.PreconferEthBalance.Value(), 1)
}

func TestSetOperatorWhitelistedTracksBoolean(t *testing.T) {
	m := New(gethmetrics.NewRegistry())
	m.SetOperatorWhitelisted(true)
	require.EqualValues(t, 1, m.OperatorWhitelisted.Value())

	m.SetOperatorWhitelisted(false)
	require.EqualValues(t, 0, m.OperatorWhitelisted.Value())
}

func TestCriticalErrorsCounterSatisfiesWatchdogInterface(t *testing.T) {
	m := New(gethmetrics.NewRegistry())
	var counter interface{ Inc(int64) } = m.CriticalErrors
	counter.Inc(3)
	require.Equal(t, int64(3), m.CriticalErrors.Count())
}
