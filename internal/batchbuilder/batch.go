package batchbuilder

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
)

// BatchLike is the capability set BatchBuilderCore needs from a concrete
// batch/proposal type, mirroring original_source/common/src/batch_builder/traits.rs.
// B is the concrete batch type itself, so Clone can return the right type
// without a type assertion at every call site.
type BatchLike[B any] interface {
	L2Blocks() []L2Block
	AppendL2Block(L2Block)
	PopLastL2Block() (L2Block, bool)
	TotalBytes() uint64
	AddTotalBytes(delta uint64)
	SetTotalBytes(uint64)
	AnchorBlockID() uint64
	AnchorBlockTimestampSec() uint64
	// Compress shrinks the batch's recorded TotalBytes via two-stage
	// compression of its transaction lists; it never removes blocks.
	Compress() error
	Clone() B
}

// Proposal is the concrete Pacaya/Shasta-agnostic batch type: an ordered
// group of L2 blocks submitted together to the L1 inbox (spec.md §3).
type Proposal struct {
	ID                     uint64
	Blocks                 []L2Block
	TotalBytesField        uint64
	Coinbase               common.Address
	AnchorBlockIDField     uint64
	AnchorBlockTimestamp   uint64
	AnchorBlockHash        common.Hash
	AnchorStateRoot        common.Hash
	NumForcedInclusion     uint64
}

var _ BatchLike[*Proposal] = (*Proposal)(nil)

func NewProposal(anchorBlockID, anchorBlockTimestamp uint64, anchorHash, anchorStateRoot common.Hash, coinbase common.Address) *Proposal {
	return &Proposal{
		AnchorBlockIDField:   anchorBlockID,
		AnchorBlockTimestamp: anchorBlockTimestamp,
		AnchorBlockHash:      anchorHash,
		AnchorStateRoot:      anchorStateRoot,
		Coinbase:             coinbase,
	}
}

func (p *Proposal) L2Blocks() []L2Block { return p.Blocks }

func (p *Proposal) AppendL2Block(b L2Block) { p.Blocks = append(p.Blocks, b) }

func (p *Proposal) PopLastL2Block() (L2Block, bool) {
	if len(p.Blocks) == 0 {
		return L2Block{}, false
	}
	last := p.Blocks[len(p.Blocks)-1]
	p.Blocks = p.Blocks[:len(p.Blocks)-1]
	return last, true
}

func (p *Proposal) TotalBytes() uint64 { return p.TotalBytesField }

func (p *Proposal) AddTotalBytes(delta uint64) { p.TotalBytesField += delta }

func (p *Proposal) SetTotalBytes(v uint64) { p.TotalBytesField = v }

func (p *Proposal) AnchorBlockID() uint64 { return p.AnchorBlockIDField }

func (p *Proposal) AnchorBlockTimestampSec() uint64 { return p.AnchorBlockTimestamp }

func (p *Proposal) Compress() error {
	size, err := compressTxLists(p.Blocks)
	if err != nil {
		return err
	}
	log.Debug("compressed proposal tx lists", "proposal_id", p.ID, "blocks", len(p.Blocks), "compressed_bytes", size)
	p.TotalBytesField = size
	return nil
}

func (p *Proposal) Clone() *Proposal {
	clone := *p
	clone.Blocks = make([]L2Block, len(p.Blocks))
	copy(clone.Blocks, p.Blocks)
	return &clone
}
