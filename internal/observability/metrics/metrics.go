package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "energytrade_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	readingRequests *prometheus.CounterVec
	readingRejects  *prometheus.CounterVec
	readingLatency  *prometheus.HistogramVec

	consumerLag *prometheus.GaugeVec

	settlementTotal   *prometheus.CounterVec
	settlementLatency *prometheus.HistogramVec
	settlementMinted  prometheus.Counter

	tokenTransfers *prometheus.CounterVec
	tokenBurned    prometheus.Counter

	orderTotal   *prometheus.CounterVec
	matchTotal   *prometheus.CounterVec
	matchLatency *prometheus.HistogramVec
	matchedWh    prometheus.Counter
	feesCharged  prometheus.Counter

	batchSettleTotal *prometheus.CounterVec

	certificateTotal *prometheus.CounterVec
)

// Init registers observability metrics and DB-backed gauges.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		readingRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "reading_requests_total",
				Help: "Total meter reading submissions by result",
			},
			[]string{"result"},
		)
		readingRejects = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "reading_rejects_total",
				Help: "Total rejected readings by reason",
			},
			[]string{"reason"},
		)
		readingLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "reading_latency_seconds",
				Help:    "Reading validation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		consumerLag = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "event_consumer_lag_seconds",
				Help: "Consumer processing lag in seconds",
			},
			[]string{"consumer"},
		)

		settlementTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "settlement_total",
				Help: "Total meter settlement operations by result",
			},
			[]string{"result"},
		)
		settlementLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "settlement_latency_seconds",
				Help:    "Meter settlement latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		settlementMinted = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "settlement_minted_wh_total",
				Help: "Total credits minted through settlement in Wh",
			},
		)

		tokenTransfers = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "token_transfers_total",
				Help: "Total credit transfers by result",
			},
			[]string{"result"},
		)
		tokenBurned = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "token_burned_wh_total",
				Help: "Total credits burned in Wh",
			},
		)

		orderTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "orders_total",
				Help: "Total order operations by action and result",
			},
			[]string{"action", "result"},
		)
		matchTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "matches_total",
				Help: "Total order fills by result",
			},
			[]string{"result"},
		)
		matchLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "match_latency_seconds",
				Help:    "Order fill latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		matchedWh = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "matched_wh_total",
				Help: "Total energy matched in Wh",
			},
		)
		feesCharged = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "fees_charged_total",
				Help: "Total fees charged in currency units",
			},
		)

		batchSettleTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "batch_settlements_total",
				Help: "Total batch settlement pairs by result",
			},
			[]string{"result"},
		)

		certificateTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "certificates_total",
				Help: "Total certificate operations by action and result",
			},
			[]string{"action", "result"},
		)

		prometheus.MustRegister(
			readingRequests,
			readingRejects,
			readingLatency,
			consumerLag,
			settlementTotal,
			settlementLatency,
			settlementMinted,
			tokenTransfers,
			tokenBurned,
			orderTotal,
			matchTotal,
			matchLatency,
			matchedWh,
			feesCharged,
			batchSettleTotal,
			certificateTotal,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveReading records reading validation duration and result.
func ObserveReading(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if readingRequests != nil {
		readingRequests.WithLabelValues(result).Inc()
	}
	if readingLatency != nil {
		readingLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncReadingReject increments the reject counter for a reason.
func IncReadingReject(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	if readingRejects != nil {
		readingRejects.WithLabelValues(reason).Inc()
	}
}

// ObserveConsumerLag sets consumer lag in seconds.
func ObserveConsumerLag(consumer string, lag time.Duration) {
	if consumer == "" {
		consumer = "unknown"
	}
	if lag < 0 {
		lag = 0
	}
	if consumerLag != nil {
		consumerLag.WithLabelValues(consumer).Set(lag.Seconds())
	}
}

// ObserveSettlement records settlement latency and result.
func ObserveSettlement(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if settlementTotal != nil {
		settlementTotal.WithLabelValues(result).Inc()
	}
	if settlementLatency != nil {
		settlementLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// AddMinted adds minted credits in Wh.
func AddMinted(amountWh uint64) {
	if settlementMinted != nil {
		settlementMinted.Add(float64(amountWh))
	}
}

// IncTokenTransfer increments the transfer counter.
func IncTokenTransfer(result string) {
	if result == "" {
		result = resultSuccess
	}
	if tokenTransfers != nil {
		tokenTransfers.WithLabelValues(result).Inc()
	}
}

// AddBurned adds burned credits in Wh.
func AddBurned(amountWh uint64) {
	if tokenBurned != nil {
		tokenBurned.Add(float64(amountWh))
	}
}

// IncOrder increments the order counter by action and result.
func IncOrder(action, result string) {
	if action == "" {
		action = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if orderTotal != nil {
		orderTotal.WithLabelValues(action, result).Inc()
	}
}

// ObserveMatch records fill latency and result.
func ObserveMatch(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if matchTotal != nil {
		matchTotal.WithLabelValues(result).Inc()
	}
	if matchLatency != nil {
		matchLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// AddMatched adds matched energy in Wh.
func AddMatched(amountWh uint64) {
	if matchedWh != nil {
		matchedWh.Add(float64(amountWh))
	}
}

// AddFees adds charged fees in currency units.
func AddFees(amount uint64) {
	if feesCharged != nil {
		feesCharged.Add(float64(amount))
	}
}

// IncBatchSettlement increments the batch settlement pair counter.
func IncBatchSettlement(result string) {
	if result == "" {
		result = resultSuccess
	}
	if batchSettleTotal != nil {
		batchSettleTotal.WithLabelValues(result).Inc()
	}
}

// IncCertificate increments certificate counters by action and result.
func IncCertificate(action, result string) {
	if action == "" {
		action = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if certificateTotal != nil {
		certificateTotal.WithLabelValues(action, result).Inc()
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
)
