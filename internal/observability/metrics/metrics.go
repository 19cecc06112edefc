package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "exchange_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	ledgerOps     *prometheus.CounterVec
	ledgerLatency *prometheus.HistogramVec
	totalSupply   prometheus.Gauge

	readingsAdmitted *prometheus.CounterVec
	readingsRejected *prometheus.CounterVec

	ingestRequests *prometheus.CounterVec
	ingestErrors   *prometheus.CounterVec
	ingestLatency  *prometheus.HistogramVec

	tradesExecuted prometheus.Counter
	tradedVolume   prometheus.Counter
	tradedValue    prometheus.Counter
	offerEvents    *prometheus.CounterVec

	consumerLag *prometheus.GaugeVec

	outboxPublishTotal    *prometheus.CounterVec
	outboxPublishLatency  *prometheus.HistogramVec
	outboxDispatchTotal   *prometheus.CounterVec
	outboxDispatchLatency *prometheus.HistogramVec
	outboxRecords         *prometheus.CounterVec

	statementExportTotal   *prometheus.CounterVec
	statementExportLatency *prometheus.HistogramVec

	reconcileRuns     *prometheus.CounterVec
	reconcileDuration prometheus.Histogram
	reconcileFindings *prometheus.GaugeVec
	reconcileAlerts   prometheus.Counter
)

// Init registers exchange metrics and DB-backed gauges.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		ledgerOps = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ledger_operations_total",
				Help: "Total credit ledger operations by op and result",
			},
			[]string{"op", "result"},
		)
		ledgerLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "ledger_operation_latency_seconds",
				Help:    "Credit ledger operation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op"},
		)
		totalSupply = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "credit_total_supply",
				Help: "Outstanding energy credits in base units",
			},
		)

		readingsAdmitted = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "readings_admitted_total",
				Help: "Admitted meter readings by reading type and verification",
			},
			[]string{"type", "verified"},
		)
		readingsRejected = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "readings_rejected_total",
				Help: "Rejected meter readings by reason",
			},
			[]string{"reason"},
		)

		ingestRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_requests_total",
				Help: "Total meter ingest requests by result",
			},
			[]string{"result"},
		)
		ingestErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_errors_total",
				Help: "Total meter ingest errors by reason",
			},
			[]string{"reason"},
		)
		ingestLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "ingest_latency_seconds",
				Help:    "Meter ingest latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		tradesExecuted = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "trades_executed_total",
				Help: "Total executed trades",
			},
		)
		tradedVolume = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "traded_energy_units_total",
				Help: "Total energy units traded",
			},
		)
		tradedValue = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "traded_credits_total",
				Help: "Total credits paid for traded energy",
			},
		)
		offerEvents = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "offer_events_total",
				Help: "Offer lifecycle events by type",
			},
			[]string{"event"},
		)

		consumerLag = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "event_consumer_lag_seconds",
				Help: "Consumer processing lag in seconds",
			},
			[]string{"consumer"},
		)

		outboxPublishTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "outbox_publish_total",
				Help: "Outbox publish operations by result",
			},
			[]string{"result"},
		)
		outboxPublishLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "outbox_publish_latency_seconds",
				Help:    "Outbox publish latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		outboxDispatchTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "outbox_dispatch_total",
				Help: "Outbox dispatch runs by result",
			},
			[]string{"result"},
		)
		outboxDispatchLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "outbox_dispatch_latency_seconds",
				Help:    "Outbox dispatch run latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		outboxRecords = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "outbox_records_total",
				Help: "Outbox records handled by outcome",
			},
			[]string{"outcome"},
		)

		statementExportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "statement_export_total",
				Help: "Total trade statement exports by format and result",
			},
			[]string{"format", "result"},
		)
		statementExportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "statement_export_latency_seconds",
				Help:    "Trade statement export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		reconcileRuns = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "reconcile_runs_total",
				Help: "Total reconciliation runs by status",
			},
			[]string{"status"},
		)
		reconcileDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    metricPrefix + "reconcile_duration_seconds",
			Help:    "Reconciliation run duration in seconds",
			Buckets: prometheus.DefBuckets,
		})
		reconcileFindings = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "reconcile_findings",
				Help: "Findings reported by the last reconciliation run, by check",
			},
			[]string{"check"},
		)
		reconcileAlerts = prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "reconcile_alerts_total",
			Help: "Total reconciliation alerts sent",
		})

		prometheus.MustRegister(
			ledgerOps,
			ledgerLatency,
			totalSupply,
			readingsAdmitted,
			readingsRejected,
			ingestRequests,
			ingestErrors,
			ingestLatency,
			tradesExecuted,
			tradedVolume,
			tradedValue,
			offerEvents,
			consumerLag,
			outboxPublishTotal,
			outboxPublishLatency,
			outboxDispatchTotal,
			outboxDispatchLatency,
			outboxRecords,
			statementExportTotal,
			statementExportLatency,
			reconcileRuns,
			reconcileDuration,
			reconcileFindings,
			reconcileAlerts,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveLedgerOp records a ledger operation by op and result.
func ObserveLedgerOp(op, result string, duration time.Duration) {
	if op == "" {
		op = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if ledgerOps != nil {
		ledgerOps.WithLabelValues(op, result).Inc()
	}
	if ledgerLatency != nil {
		ledgerLatency.WithLabelValues(op).Observe(duration.Seconds())
	}
}

// SetTotalSupply publishes the current supply.
func SetTotalSupply(supply uint64) {
	if totalSupply != nil {
		totalSupply.Set(float64(supply))
	}
}

// IncReadingAdmitted counts an admitted reading.
func IncReadingAdmitted(readingType string, verified bool) {
	if readingType == "" {
		readingType = "unknown"
	}
	label := "false"
	if verified {
		label = "true"
	}
	if readingsAdmitted != nil {
		readingsAdmitted.WithLabelValues(readingType, label).Inc()
	}
}

// IncReadingRejected counts a rejected reading.
func IncReadingRejected(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	if readingsRejected != nil {
		readingsRejected.WithLabelValues(reason).Inc()
	}
}

// ObserveIngest records ingest request duration and result.
func ObserveIngest(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if ingestRequests != nil {
		ingestRequests.WithLabelValues(result).Inc()
	}
	if ingestLatency != nil {
		ingestLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncIngestError increments ingest error counter.
func IncIngestError(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	if ingestErrors != nil {
		ingestErrors.WithLabelValues(reason).Inc()
	}
}

// ObserveTrade records an executed trade.
func ObserveTrade(energyAmount, totalCost uint64) {
	if tradesExecuted != nil {
		tradesExecuted.Inc()
	}
	if tradedVolume != nil {
		tradedVolume.Add(float64(energyAmount))
	}
	if tradedValue != nil {
		tradedValue.Add(float64(totalCost))
	}
}

// IncOfferEvent increments offer lifecycle counters.
func IncOfferEvent(event string) {
	if event == "" {
		event = "unknown"
	}
	if offerEvents != nil {
		offerEvents.WithLabelValues(event).Inc()
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

// ObserveOutboxPublish records an outbox insert.
func ObserveOutboxPublish(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if outboxPublishTotal != nil {
		outboxPublishTotal.WithLabelValues(result).Inc()
	}
	if outboxPublishLatency != nil {
		outboxPublishLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// ObserveOutboxDispatch records a dispatch run and its per-record outcomes.
func ObserveOutboxDispatch(result string, duration time.Duration, sent, failed, dlq int) {
	if result == "" {
		result = resultSuccess
	}
	if outboxDispatchTotal != nil {
		outboxDispatchTotal.WithLabelValues(result).Inc()
	}
	if outboxDispatchLatency != nil {
		outboxDispatchLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
	if outboxRecords == nil {
		return
	}
	if sent > 0 {
		outboxRecords.WithLabelValues("sent").Add(float64(sent))
	}
	if failed > 0 {
		outboxRecords.WithLabelValues("failed").Add(float64(failed))
	}
	if dlq > 0 {
		outboxRecords.WithLabelValues("dlq").Add(float64(dlq))
	}
}

// ObserveStatementExport records export latency and result.
func ObserveStatementExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if statementExportTotal != nil {
		statementExportTotal.WithLabelValues(format, result).Inc()
	}
	if statementExportLatency != nil {
		statementExportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// ObserveReconcile records a reconciliation run. findings maps check name to
// the number of findings; checks absent from the map are reset to zero.
func ObserveReconcile(status string, duration time.Duration, checks []string, findings map[string]int) {
	if status == "" {
		status = resultSuccess
	}
	if reconcileRuns != nil {
		reconcileRuns.WithLabelValues(status).Inc()
	}
	if reconcileDuration != nil {
		reconcileDuration.Observe(duration.Seconds())
	}
	if reconcileFindings == nil {
		return
	}
	for _, check := range checks {
		reconcileFindings.WithLabelValues(check).Set(float64(findings[check]))
	}
}

// IncReconcileAlert counts a reconciliation alert.
func IncReconcileAlert() {
	if reconcileAlerts != nil {
		reconcileAlerts.Inc()
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
)
