// Package metrics exposes the ingestion pipeline's Prometheus collectors
// and the HTTP server that serves /metrics and /health.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus collector the ingestion pipeline records
// to. Built against a dedicated registry, not prometheus.DefaultRegisterer,
// so a process can run more than one instance in tests without collector
// name collisions.
type Metrics struct {
	Registry *prometheus.Registry

	transactionsProcessedTotal *prometheus.CounterVec
	transactionsFailedTotal    *prometheus.CounterVec
	streamReconnectionsTotal   prometheus.Counter
	balanceChangesTotal        prometheus.Counter
	errorsTotal                *prometheus.CounterVec

	streamConnected         prometheus.Gauge
	uptimeSeconds           prometheus.Gauge
	lastTransactionTimestamp prometheus.Gauge

	transactionProcessingSeconds prometheus.Histogram
	databaseOperationSeconds    *prometheus.HistogramVec

	reconciliationGapTotal prometheus.Gauge
}

// New creates a Metrics instance registered against a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		Registry: registry,

		transactionsProcessedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transactions_processed_total",
				Help: "Total number of transactions successfully committed to the sink",
			},
			[]string{"account"},
		),
		transactionsFailedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transactions_failed_total",
				Help: "Total number of transactions dropped due to enrichment, parse or sink errors",
			},
			[]string{"account", "reason"},
		),
		streamReconnectionsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "stream_reconnections_total",
				Help: "Total number of times the ingestion loop reconnected to the upstream stream",
			},
		),
		balanceChangesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "balance_changes_recorded_total",
				Help: "Total number of balance change rows written to the sink",
			},
		),
		errorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "errors_total",
				Help: "Total number of errors encountered, by taxonomy kind",
			},
			[]string{"kind"},
		),

		streamConnected: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "stream_connected",
				Help: "1 if the Stream Client currently holds an open subscription, else 0",
			},
		),
		uptimeSeconds: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "uptime_seconds",
				Help: "Seconds since the ingestion loop started",
			},
		),
		lastTransactionTimestamp: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "last_transaction_timestamp",
				Help: "Unix timestamp of the last transaction successfully committed",
			},
		),

		transactionProcessingSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "transaction_processing_seconds",
				Help:    "Time from receiving a signature to committing it to the sink",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
		),
		databaseOperationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "database_operation_seconds",
				Help:    "Duration of sink write operations",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"operation"},
		),

		reconciliationGapTotal: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "reconciliation_gap_total",
				Help: "Signatures seen upstream but absent from the sink at the last reconciliation pass",
			},
		),
	}
}

// RecordTransactionProcessed records a transaction committed to the sink.
func (m *Metrics) RecordTransactionProcessed(account string, blockTimeUnix int64) {
	m.transactionsProcessedTotal.WithLabelValues(account).Inc()
	if blockTimeUnix > 0 {
		m.lastTransactionTimestamp.Set(float64(blockTimeUnix))
	}
}

// RecordTransactionFailed records a transaction dropped before or during commit.
func (m *Metrics) RecordTransactionFailed(account, reason string) {
	m.transactionsFailedTotal.WithLabelValues(account, reason).Inc()
}

// RecordStreamReconnection records one reconnect attempt by the ingestion loop.
func (m *Metrics) RecordStreamReconnection() {
	m.streamReconnectionsTotal.Inc()
}

// RecordBalanceChanges records the number of balance change rows written
// alongside one transaction.
func (m *Metrics) RecordBalanceChanges(count int) {
	m.balanceChangesTotal.Add(float64(count))
}

// RecordError increments the error counter for the given apperr taxonomy kind.
func (m *Metrics) RecordError(kind string) {
	m.errorsTotal.WithLabelValues(kind).Inc()
}

// SetStreamConnected updates the stream_connected gauge.
func (m *Metrics) SetStreamConnected(connected bool) {
	if connected {
		m.streamConnected.Set(1)
	} else {
		m.streamConnected.Set(0)
	}
}

// SetUptimeSeconds updates the uptime_seconds gauge.
func (m *Metrics) SetUptimeSeconds(seconds float64) {
	m.uptimeSeconds.Set(seconds)
}

// ObserveTransactionProcessingDuration records one end-to-end processing latency.
func (m *Metrics) ObserveTransactionProcessingDuration(seconds float64) {
	m.transactionProcessingSeconds.Observe(seconds)
}

// ObserveDatabaseOperation records the duration of one sink write operation.
func (m *Metrics) ObserveDatabaseOperation(operation string, seconds float64) {
	m.databaseOperationSeconds.WithLabelValues(operation).Observe(seconds)
}

// SetReconciliationGap records how many signatures the last reconciliation
// pass found upstream but missing from the sink.
func (m *Metrics) SetReconciliationGap(count int) {
	m.reconciliationGapTotal.Set(float64(count))
}
