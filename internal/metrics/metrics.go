// Package metrics holds the simulator's Prometheus collectors. Every
// collector is a package-level var registered through promauto at import
// time; callers record against them with the Record/Update helpers below
// rather than threading a metrics handle through constructors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============ Kernel metrics ============

// TickDuration is the wall-clock time a single kernel tick takes to run
// every due agent's Step and deliver its messages.
var TickDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "permsim",
		Subsystem: "kernel",
		Name:      "tick_duration_ms",
		Help:      "Time to run one kernel tick in milliseconds",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250},
	},
)

// MailboxDepth is the number of envelopes queued for an agent at the start
// of its Step.
var MailboxDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "permsim",
		Subsystem: "kernel",
		Name:      "mailbox_depth",
		Help:      "Number of envelopes queued for an agent",
	},
	[]string{"agent"},
)

// AgentsScheduled counts wake-ups dispatched per agent.
var AgentsScheduled = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "permsim",
		Subsystem: "kernel",
		Name:      "agents_scheduled_total",
		Help:      "Total number of agent wake-ups dispatched",
	},
	[]string{"agent"},
)

// ============ Chain bridge metrics ============

// OrderSubmitLatency is the time between Submit being called and the
// backend accepting the order, labelled by identity and outcome.
var OrderSubmitLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "permsim",
		Subsystem: "chain",
		Name:      "submit_latency_ms",
		Help:      "Time to submit an order to the chain backend in milliseconds",
		Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
	},
	[]string{"identity", "outcome"},
)

// OrderExecuteLatency is the time between an order landing in the mempool
// and its execution phase completing, labelled by identity and outcome.
var OrderExecuteLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "permsim",
		Subsystem: "chain",
		Name:      "execute_latency_ms",
		Help:      "Time to execute a submitted order in milliseconds",
		Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
	},
	[]string{"identity", "outcome"},
)

// OrdersSubmitted counts Submit calls by identity and outcome (accepted,
// rejected).
var OrdersSubmitted = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "permsim",
		Subsystem: "chain",
		Name:      "orders_submitted_total",
		Help:      "Total number of orders submitted to the chain backend",
	},
	[]string{"identity", "outcome"},
)

// OrdersExecuted counts Execute calls by identity and outcome (filled,
// reverted).
var OrdersExecuted = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "permsim",
		Subsystem: "chain",
		Name:      "orders_executed_total",
		Help:      "Total number of orders executed on the chain backend",
	},
	[]string{"identity", "outcome"},
)

// ============ Oracle and trigger metrics ============

// OracleFetchFailures counts failed price fetches, labelled by symbol.
var OracleFetchFailures = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "permsim",
		Subsystem: "oracle",
		Name:      "fetch_failures_total",
		Help:      "Number of failed oracle price fetches",
	},
	[]string{"symbol"},
)

// PriceCacheStaleness is the age of the price a keeper tick last observed in
// the cache, labelled by symbol.
var PriceCacheStaleness = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "permsim",
		Subsystem: "oracle",
		Name:      "price_cache_staleness_ms",
		Help:      "Age of the last price sample read from the cache in milliseconds",
	},
	[]string{"symbol"},
)

// OrdersTriggered counts pending orders a keeper converted to a dispatched
// intent, labelled by symbol and order kind.
var OrdersTriggered = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "permsim",
		Subsystem: "trigger",
		Name:      "orders_triggered_total",
		Help:      "Number of pending orders triggered by a keeper",
	},
	[]string{"symbol", "kind"},
)

// OrdersExpired counts pending orders removed for aging past their
// expiry, labelled by symbol.
var OrdersExpired = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "permsim",
		Subsystem: "trigger",
		Name:      "orders_expired_total",
		Help:      "Number of pending orders expired before triggering",
	},
	[]string{"symbol"},
)

// ============ Event bus metrics ============

// EventsDropped counts events a subscriber missed because its buffer was
// full past the backpressure timeout. Passed into eventbus.New as the
// injected drop counter.
var EventsDropped = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "permsim",
		Subsystem: "eventbus",
		Name:      "events_dropped_total",
		Help:      "Number of events dropped due to a full subscriber buffer",
	},
)

// ============ Helper functions ============

// RecordTick records one kernel tick's duration.
func RecordTick(durationMs float64) {
	TickDuration.Observe(durationMs)
}

// RecordSchedule records a wake-up dispatched to agent, and the depth of
// its inbox at dispatch time.
func RecordSchedule(agent string, inboxDepth int) {
	AgentsScheduled.WithLabelValues(agent).Inc()
	MailboxDepth.WithLabelValues(agent).Set(float64(inboxDepth))
}

// RecordSubmit records a Submit call's latency and outcome for identity.
func RecordSubmit(identity, outcome string, latencyMs float64) {
	OrderSubmitLatency.WithLabelValues(identity, outcome).Observe(latencyMs)
	OrdersSubmitted.WithLabelValues(identity, outcome).Inc()
}

// RecordExecute records an Execute call's latency and outcome for identity.
func RecordExecute(identity, outcome string, latencyMs float64) {
	OrderExecuteLatency.WithLabelValues(identity, outcome).Observe(latencyMs)
	OrdersExecuted.WithLabelValues(identity, outcome).Inc()
}

// RecordOracleFetchFailure records a failed price fetch for symbol.
func RecordOracleFetchFailure(symbol string) {
	OracleFetchFailures.WithLabelValues(symbol).Inc()
}

// UpdatePriceCacheStaleness records the age of the last sample a keeper
// read for symbol.
func UpdatePriceCacheStaleness(symbol string, ageMs float64) {
	PriceCacheStaleness.WithLabelValues(symbol).Set(ageMs)
}

// RecordTrigger records a pending order triggering for symbol.
func RecordTrigger(symbol, kind string) {
	OrdersTriggered.WithLabelValues(symbol, kind).Inc()
}

// RecordExpiry records a pending order expiring unfilled for symbol.
func RecordExpiry(symbol string) {
	OrdersExpired.WithLabelValues(symbol).Inc()
}
