// Package metrics defines the Prometheus collectors sampled by the monitor
// core. Exposition (the /metrics HTTP surface) is wired by the operator
// adapter; the core only updates these collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RPCLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "arbmon_rpc_latency_seconds",
		Help:    "RPC call latency in seconds.",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"chain", "method"})

	RPCErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arbmon_rpc_errors_total",
		Help: "Total number of failed RPC call attempts.",
	}, []string{"chain", "method"})

	EndpointOpen = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "arbmon_endpoint_circuit_open",
		Help: "1 when the endpoint's circuit breaker is open.",
	}, []string{"chain", "endpoint"})

	BlocksBehind = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "arbmon_blocks_behind",
		Help: "Blocks between the chain tip and the last processed height.",
	}, []string{"chain"})

	OpportunitiesDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arbmon_opportunities_detected_total",
		Help: "Pool-imbalance opportunities detected.",
	}, []string{"chain"})

	TransactionsDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arbmon_transactions_detected_total",
		Help: "Arbitrage transactions detected.",
	}, []string{"chain"})

	ProfitDetectedUSD = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arbmon_profit_detected_usd_total",
		Help: "Cumulative positive net profit observed, in USD.",
	}, []string{"chain"})

	HubSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arbmon_hub_subscribers",
		Help: "Active broadcast hub subscribers.",
	})

	HubMessagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arbmon_hub_messages_sent_total",
		Help: "Messages delivered to subscriber mailboxes.",
	}, []string{"type"})

	HubMessagesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arbmon_hub_messages_dropped_total",
		Help: "Messages discarded by drop-oldest backpressure.",
	})

	DBErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arbmon_db_errors_total",
		Help: "Database operations that failed after retries.",
	}, []string{"operation"})
)
