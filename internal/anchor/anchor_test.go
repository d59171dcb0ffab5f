package anchor

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params"
	"github.com/stretchr/testify/require"
)

func testSigner() types.Signer {
	return types.LatestSignerForChainID(big.NewInt(params.TestChainConfig.ChainID.Int64()))
}

func TestBuildTxIsSignedByGoldenTouchKey(t *testing.T) {
	to := common.HexToAddress("0x1000")
	tx, err := BuildTx(Params{AnchorBlockID: 7, ParentGasUsed: 100, BaseFeeSharingPctg: 75}, to, big.NewInt(1_000_000_000), 0, testSigner())
	require.NoError(t, err)

	sender, err := types.Sender(testSigner(), tx)
	require.NoError(t, err)
	require.Equal(t, AnchorSenderAddress, sender)
	require.Equal(t, uint64(GasLimit), tx.Gas())
}

func TestEncodeDecodeAnchorBlockIDRoundTrips(t *testing.T) {
	params := Params{
		AnchorBlockID:      123456,
		AnchorStateRoot:    common.HexToHash("0xaa"),
		ParentGasUsed:      99,
		BaseFeeSharingPctg: 50,
		SignalSlots:        []common.Hash{common.HexToHash("0x01"), common.HexToHash("0x02")},
	}
	data, err := EncodeParams(params)
	require.NoError(t, err)

	blockID, err := DecodeAnchorBlockID(data)
	require.NoError(t, err)
	require.Equal(t, params.AnchorBlockID, blockID)
}

func TestEncodeDecodeCheckpointRoundTrips(t *testing.T) {
	checkpoint := CheckpointParams{BlockNumber: 99, BlockHash: common.HexToHash("0xbb"), StateRoot: common.HexToHash("0xcc")}
	data, err := EncodeCheckpointParams(checkpoint)
	require.NoError(t, err)

	blockID, err := DecodeAnchorBlockID(data)
	require.NoError(t, err)
	require.Equal(t, checkpoint.BlockNumber, blockID)
}

func TestDecodeAnchorBlockIDRejectsUnknownSelector(t *testing.T) {
	_, err := DecodeAnchorBlockID([]byte{0xde, 0xad, 0xbe, 0xef, 0x00})
	require.Error(t, err)
}

func TestDecodeAnchorBlockIDRejectsShortData(t *testing.T) {
	_, err := DecodeAnchorBlockID([]byte{0x01})
	require.Error(t, err)
}

func TestExtraDataEncodeDecodeRoundTrip(t *testing.T) {
	original := ExtraData{BasefeeSharingPctg: 30, ProposalID: 1}
	encoded, err := original.Encode()
	require.NoError(t, err)
	require.Equal(t, [ExtraDataLen]byte{30, 0, 0, 0, 0, 0, 1}, encoded)

	decoded, err := DecodeExtraData(encoded[:])
	require.NoError(t, err)
	require.Equal(t, original, decoded)
}

func TestExtraDataEncodeDecodeLargeProposalID(t *testing.T) {
	original := ExtraData{BasefeeSharingPctg: 100, ProposalID: 0x1234_5678_9ABC}
	encoded, err := original.Encode()
	require.NoError(t, err)

	decoded, err := DecodeExtraData(encoded[:])
	require.NoError(t, err)
	require.Equal(t, original, decoded)
}

func TestExtraDataEncodeRejectsOutOfRangeFields(t *testing.T) {
	_, err := ExtraData{BasefeeSharingPctg: 101, ProposalID: 1}.Encode()
	require.Error(t, err)

	_, err = ExtraData{BasefeeSharingPctg: 100, ProposalID: MaxProposalID + 1}.Encode()
	require.Error(t, err)
}

func TestDecodeExtraDataRejectsWrongLength(t *testing.T) {
	_, err := DecodeExtraData(make([]byte, 6))
	require.Error(t, err)
}

func TestDecodeExtraDataRejectsInvalidPercentage(t *testing.T) {
	data := make([]byte, ExtraDataLen)
	data[0] = 200
	_, err := DecodeExtraData(data)
	require.Error(t, err)
}
