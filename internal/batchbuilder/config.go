package batchbuilder

// Config mirrors original_source/common/src/batch_builder/mod.rs's
// BatchBuilderConfig: the byte/block/time-shift/anchor-offset limits
// spec.md §3's Proposal invariants and §4.6 enforce.
type Config struct {
	MaxBytesSizeOfBatch           uint64
	MaxBlocksPerBatch             uint16
	L1SlotDurationSec             uint64
	MaxTimeShiftBetweenBlocksSec  uint64
	MaxAnchorHeightOffset         uint64
	PreconfMinTxs                 uint64
	PreconfMaxSkippedL2Slots      uint64
}

func (c Config) IsWithinBytesLimit(bytes uint64) bool { return bytes <= c.MaxBytesSizeOfBatch }

func (c Config) IsWithinBlockLimit(blocks uint16) bool { return blocks <= c.MaxBlocksPerBatch }
