// Package metrics registers the node's counters/gauges/timers against
// github.com/ethereum/go-ethereum/metrics's default registry and serves
// them, grounded on original_source/common/src/metrics/server.rs (the
// gather-and-serve shape) and the `metrics.{inc,set,observe}_*` call sites
// scattered across original_source (the concrete metric set).
package metrics

import (
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/ethereum/go-ethereum/metrics/prometheus"
)

// Metrics is the node's full set of operational counters and gauges,
// registered once and shared by every sibling task.
type Metrics struct {
	CriticalErrors              metrics.Counter
	BlocksPreconfirmed          metrics.Counter
	BlocksReanchored            metrics.Counter
	RPCDriverCalls              metrics.Counter
	RPCDriverCallErrors         metrics.Counter
	SkippedL2SlotsByLowTxsCount metrics.Counter
	BlockTxCount                metrics.Histogram
	RPCDriverCallDuration       metrics.Timer
	PreconferEthBalance         metrics.GaugeFloat64
	PreconferL2EthBalance       metrics.GaugeFloat64
	PreconferTaikoBalance       metrics.GaugeFloat64
	OperatorWhitelisted         metrics.Gauge
}

// New registers every metric with the given registry under a
// "catalyst/node/" namespace. Pass nil to use the library's default
// registry.
func New(registry metrics.Registry) *Metrics {
	if registry == nil {
		registry = metrics.DefaultRegistry
	}
	return &Metrics{
		CriticalErrors:              metrics.NewRegisteredCounter("catalyst/node/critical_errors", registry),
		BlocksPreconfirmed:          metrics.NewRegisteredCounter("catalyst/node/blocks_preconfirmed", registry),
		BlocksReanchored:            metrics.NewRegisteredCounter("catalyst/node/blocks_reanchored", registry),
		RPCDriverCalls:              metrics.NewRegisteredCounter("catalyst/node/rpc_driver_calls", registry),
		RPCDriverCallErrors:         metrics.NewRegisteredCounter("catalyst/node/rpc_driver_call_errors", registry),
		SkippedL2SlotsByLowTxsCount: metrics.NewRegisteredCounter("catalyst/node/skipped_l2_slots_by_low_txs_count", registry),
		BlockTxCount:                metrics.NewRegisteredHistogram("catalyst/node/block_tx_count", registry, metrics.NewExpDecaySample(1028, 0.015)),
		RPCDriverCallDuration:       metrics.NewRegisteredTimer("catalyst/node/rpc_driver_call_duration", registry),
		PreconferEthBalance:         metrics.NewRegisteredGaugeFloat64("catalyst/node/preconfer_eth_balance", registry),
		PreconferL2EthBalance:       metrics.NewRegisteredGaugeFloat64("catalyst/node/preconfer_l2_eth_balance", registry),
		PreconferTaikoBalance:       metrics.NewRegisteredGaugeFloat64("catalyst/node/preconfer_taiko_balance", registry),
		OperatorWhitelisted:         metrics.NewRegisteredGauge("catalyst/node/operator_whitelisted", registry),
	}
}

// SetPreconferEthBalance records the preconfer's L1 ETH balance, in wei
// converted to a float for gauge display.
func (m *Metrics) SetPreconferEthBalance(wei *big.Int) { m.PreconferEthBalance.Update(weiToFloat(wei)) }

// SetPreconferL2EthBalance records the preconfer's L2 ETH balance.
func (m *Metrics) SetPreconferL2EthBalance(wei *big.Int) {
	m.PreconferL2EthBalance.Update(weiToFloat(wei))
}

// SetPreconferTaikoBalance records the preconfer's TAIKO bond balance.
func (m *Metrics) SetPreconferTaikoBalance(wei *big.Int) {
	m.PreconferTaikoBalance.Update(weiToFloat(wei))
}

// SetOperatorWhitelisted implements whitelist.StatusGauge.
func (m *Metrics) SetOperatorWhitelisted(whitelisted bool) {
	if whitelisted {
		m.OperatorWhitelisted.Update(1)
	} else {
		m.OperatorWhitelisted.Update(0)
	}
}

func weiToFloat(wei *big.Int) float64 {
	if wei == nil {
		return 0
	}
	f := new(big.Float).SetInt(wei)
	v, _ := f.Float64()
	return v
}

// Serve exposes the registry in Prometheus text format at "/metrics",
// matching server.rs's single-route warp server but rendered with
// go-ethereum's own metrics/prometheus collector instead of a hand-rolled
// exporter. It blocks until the server errors or is shut down.
func Serve(addr string, registry metrics.Registry) error {
	if registry == nil {
		registry = metrics.DefaultRegistry
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", prometheus.Handler(registry))
	log.Info("metrics server listening", "addr", addr)
	server := &http.Server{Addr: addr, Handler: mux}
	return server.ListenAndServe()
}
