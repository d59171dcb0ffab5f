package txerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCritical(t *testing.T) {
	require.True(t, KindInsufficientFunds.Critical())
	require.True(t, KindNotConfirmed.Critical())
	require.False(t, KindEstimationTooEarly.Critical())
	require.False(t, KindReanchorRequired.Critical())
	require.False(t, KindOldestForcedInclusionDue.Critical())
	require.False(t, KindNotTheOperatorInCurrentEpoch.Critical())
}

func TestAsUnwraps(t *testing.T) {
	base := errors.New("boom")
	wrapped := New(KindNotConfirmed, "timed out waiting for inclusion", base)
	wrappedAgain := errors.New("context: " + wrapped.Error())

	te, ok := As(wrapped)
	require.True(t, ok)
	require.Equal(t, KindNotConfirmed, te.Kind)
	require.ErrorIs(t, wrapped, base)

	_, ok = As(wrappedAgain)
	require.False(t, ok) // plain errors.New does not carry the typed wrapper
}

func TestClassifyRevert(t *testing.T) {
	k, ok := ClassifyRevert("L1_TOO_EARLY")
	require.True(t, ok)
	require.Equal(t, KindEstimationTooEarly, k)

	_, ok = ClassifyRevert("totally unknown revert")
	require.False(t, ok)
}

func TestClassifyRevertMatchesSubstringInsideWrappedError(t *testing.T) {
	wrapped := fmt.Errorf("chain: sign proposeBatch tx: %w", errors.New("execution reverted: L1_TOO_EARLY"))

	k, ok := ClassifyRevert(wrapped.Error())
	require.True(t, ok)
	require.Equal(t, KindEstimationTooEarly, k)
}

func TestClassifyRevertMatchesOldestForcedInclusionDueInsideWrappedError(t *testing.T) {
	wrapped := fmt.Errorf("txmonitor: submit transaction: %w", errors.New("execution reverted: OldestForcedInclusionDue"))

	k, ok := ClassifyRevert(wrapped.Error())
	require.True(t, ok)
	require.Equal(t, KindOldestForcedInclusionDue, k)
}
