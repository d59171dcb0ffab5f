package l2engine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// Ported from original_source/common/src/l2/engine.rs's
// test_calculate_max_bytes_per_tx_list.
func TestCalculateMaxBytesPerTxList(t *testing.T) {
	const maxBytes = 1000
	const throttlingFactor = 10
	const minValue = 100

	require.Equal(t, uint64(maxBytes), calculateMaxBytesPerTxList(maxBytes, throttlingFactor, 0, minValue))
	require.Equal(t, uint64(900), calculateMaxBytesPerTxList(maxBytes, throttlingFactor, 1, minValue))
	require.Equal(t, uint64(810), calculateMaxBytesPerTxList(maxBytes, throttlingFactor, 2, minValue))
	require.Equal(t, uint64(729), calculateMaxBytesPerTxList(maxBytes, throttlingFactor, 3, minValue))

	require.Equal(t, uint64(100), calculateMaxBytesPerTxList(100, 200, 1, minValue))
	require.Equal(t, uint64(0), calculateMaxBytesPerTxList(0, throttlingFactor, 1, minValue))
	require.Equal(t, uint64(minValue), calculateMaxBytesPerTxList(maxBytes, throttlingFactor, 500, minValue))
}
