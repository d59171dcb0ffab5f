// Package chainmonitor merges the L1 event subscription and the L2 header
// stream into a single reconciliation loop, grounded on
// original_source/common/src/chain_monitor/mod.rs and
// original_source/pacaya/src/chain_monitor/mod.rs.
package chainmonitor

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
)

// L2HeaderEvent is one observed L2 head, as reported by the L2 header
// subscription.
type L2HeaderEvent struct {
	Number     uint64
	Hash       common.Hash
	ParentHash common.Hash
}

// Status is the last L2 head height/hash the monitor has observed.
type Status struct {
	Height uint64
	Hash   common.Hash
}

// L1EventHandler is invoked for every received L1 log; the monitor itself
// does not interpret L1 events beyond handing them off.
type L1EventHandler func(gethtypes.Log)

// Monitor reconciles an L1 event subscription (handed off to a caller
// supplied handler, logging only) with an L2 header stream, flagging
// unexpected reorgs.
type Monitor struct {
	mu            sync.Mutex
	status        Status
	expectedReorg *uint64
	log           log.Logger
}

// New constructs an empty Monitor.
func New() *Monitor {
	return &Monitor{log: log.New("component", "chain_monitor")}
}

// SetExpectedReorg records that the next time the L2 header stream surfaces
// a non-contiguous head at expectedBlockNumber, it should be logged as an
// expected reorg rather than an alarm.
func (m *Monitor) SetExpectedReorg(expectedBlockNumber uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expectedReorg = &expectedBlockNumber
}

// Status returns the last observed L2 head.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Run drains l2Headers and l1Events until ctx is cancelled or either channel
// is closed. l1Events are passed through to onL1Event unmodified; L2 headers
// are reconciled against the last observed head.
func (m *Monitor) Run(ctx context.Context, l2Headers <-chan L2HeaderEvent, l1Events <-chan gethtypes.Log, onL1Event L1EventHandler) error {
	m.log.Info("chain monitor message loop running")
	for {
		select {
		case <-ctx.Done():
			m.log.Info("chain monitor: cancellation received, shutting down message loop")
			return ctx.Err()
		case header, ok := <-l2Headers:
			if !ok {
				return nil
			}
			m.handleL2Header(header)
		case event, ok := <-l1Events:
			if !ok {
				return nil
			}
			onL1Event(event)
		}
	}
}

func (m *Monitor) handleL2Header(header L2HeaderEvent) {
	m.log.Info("l2 block", "number", header.Number, "hash", header.Hash, "parent_hash", header.ParentHash)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status.Height != 0 && (header.Number != m.status.Height+1 || header.ParentHash != m.status.Hash) {
		reorgExpected := m.expectedReorg != nil && header.Number == *m.expectedReorg
		if reorgExpected {
			m.log.Debug("geth reorg detected: received l2 block with expected number",
				"expected_height", m.status.Height, "expected_hash", m.status.Hash)
		} else {
			m.log.Warn("geth reorg detected: received l2 block with unexpected number",
				"expected_height", m.status.Height, "expected_hash", m.status.Hash,
				"got_number", header.Number, "got_parent_hash", header.ParentHash)
		}
	}

	m.status.Height = header.Number
	m.status.Hash = header.Hash
}
