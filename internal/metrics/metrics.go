// Package metrics registers the Prometheus series the engine updates while
// trading:
//   - bot_cycles_total                 – evaluation cycles completed
//   - bot_trades_total{side}           – executed trades (buy|sell)
//   - bot_trade_failures_total{side}   – gateway rejections
//   - bot_asset_faults_total           – per-asset faults contained by the coordinator
//   - bot_realized_profit              – cumulative realized profit (gauge)
//   - bot_open_positions               – records currently holding quantity
//
// Served in Prometheus text format by the /metrics handler started in
// cmd/bot.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	Cycles = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bot_cycles_total",
			Help: "Evaluation cycles completed",
		},
	)

	Trades = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_trades_total",
			Help: "Executed trades",
		},
		[]string{"side"},
	)

	TradeFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_trade_failures_total",
			Help: "Trades rejected by the gateway",
		},
		[]string{"side"},
	)

	AssetFaults = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bot_asset_faults_total",
			Help: "Per-asset faults contained during a cycle",
		},
	)

	RealizedProfit = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bot_realized_profit",
			Help: "Cumulative realized profit in the settlement currency",
		},
	)

	OpenPositions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bot_open_positions",
			Help: "Records currently holding quantity",
		},
	)
)

func init() {
	prometheus.MustRegister(Cycles, Trades, TradeFailures, AssetFaults, RealizedProfit, OpenPositions)
}
