// Package whitelist implements the periodic operator-allowlist poll,
// grounded on original_source/pacaya/src/chain_monitor/whitelist_monitor.rs.
package whitelist

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/log"
)

// Provider checks whether this node's operator address is currently
// whitelisted on L1.
type Provider interface {
	IsOperatorWhitelisted(ctx context.Context) (bool, error)
}

// StatusGauge records the last observed whitelisted/ejected state.
type StatusGauge interface {
	SetOperatorWhitelisted(bool)
}

// Monitor polls Provider at a fixed interval and warns when the operator is
// ejected from the whitelist.
type Monitor struct {
	executionLayer  Provider
	gauge           StatusGauge
	monitorInterval time.Duration
	log             log.Logger
}

// New constructs a Monitor.
func New(executionLayer Provider, gauge StatusGauge, monitorInterval time.Duration) *Monitor {
	return &Monitor{executionLayer: executionLayer, gauge: gauge, monitorInterval: monitorInterval, log: log.New("component", "whitelist_monitor")}
}

// Run blocks, polling at m.monitorInterval, until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.monitorInterval)
	defer ticker.Stop()

	for {
		m.tick(ctx)
		select {
		case <-ctx.Done():
			m.log.Info("shutdown signal received, exiting whitelist monitor loop")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (m *Monitor) tick(ctx context.Context) {
	isWhitelisted, err := m.executionLayer.IsOperatorWhitelisted(ctx)
	if err != nil {
		m.log.Error("failed to check if operator is whitelisted", "err", err)
		return
	}
	if m.gauge != nil {
		m.gauge.SetOperatorWhitelisted(isWhitelisted)
	}
	if !isWhitelisted {
		m.log.Warn("operator ejected from the whitelist")
	}
}
