// Package metrics exposes the Prometheus collectors used across the
// trade engine, Steam client, rate limiter, and reconciler.
//
// Adapted from infrastructure/metrics/metrics.go's registry pattern,
// with the gasbank/oracle counters replaced by escrow-trade ones.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TradeTransitions counts state transitions by from/to state.
	TradeTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "escrow_trade_transitions_total",
		Help: "Count of trade state transitions.",
	}, []string{"from", "to"})

	// TradeTerminal counts trades reaching a terminal state, by outcome.
	TradeTerminal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "escrow_trade_terminal_total",
		Help: "Count of trades reaching a terminal state.",
	}, []string{"outcome"})

	// SteamCallLatency observes outbound Steam call duration by operation and outcome.
	SteamCallLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "escrow_steam_call_duration_seconds",
		Help:    "Latency of outbound Steam API calls.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "outcome"})

	// RateLimitWait observes how long a caller waited for a rate-limit slot.
	RateLimitWait = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "escrow_ratelimit_wait_seconds",
		Help:    "Time spent waiting to acquire a Steam call budget slot.",
		Buckets: []float64{0, .01, .05, .1, .5, 1, 5, 10},
	})

	// ReconcilerLag observes the delay between a trade's expected poll time
	// and when the reconciler actually processed it.
	ReconcilerLag = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "escrow_reconciler_lag_seconds",
		Help:    "Delay between a trade's scheduled poll and its actual processing.",
		Buckets: []float64{0, 1, 5, 10, 30, 60, 300},
	})

	// BotFleetState gauges the number of bots currently in each state.
	BotFleetState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "escrow_bot_fleet_state",
		Help: "Number of bots currently in each fleet state.",
	}, []string{"state"})

	// NotificationDeliveries counts notification delivery attempts by channel and outcome.
	NotificationDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "escrow_notification_deliveries_total",
		Help: "Count of notification delivery attempts.",
	}, []string{"channel", "outcome"})

	// HTTPRequestLatency observes inbound HTTP request duration by method,
	// route template, and status bucket.
	HTTPRequestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "escrow_http_request_duration_seconds",
		Help:    "Latency of inbound HTTP requests.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)
