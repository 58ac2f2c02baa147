package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// breadcrumb ingestion pipeline.
type Metrics struct {
	MessagesReceived  prometheus.Counter
	MessagesBuffered  prometheus.Counter
	MessagesRejected  *prometheus.CounterVec // label: rule (validation rule that fired)
	MessagesDiscarded prometheus.Counter
	RowsWritten       prometheus.Counter
	TripsUpserted     prometheus.Counter
	StorageErrors     prometheus.Counter
	AuditFindings     *prometheus.CounterVec // label: rule (audit rule that fired)
	ConsumerRunning   prometheus.Gauge

	BufferSize    prometheus.Gauge
	FlushBatch    prometheus.Histogram
	FlushDuration prometheus.Histogram
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.MessagesReceived,
		m.MessagesBuffered,
		m.MessagesRejected,
		m.MessagesDiscarded,
		m.RowsWritten,
		m.TripsUpserted,
		m.StorageErrors,
		m.AuditFindings,
		m.ConsumerRunning,
		m.BufferSize,
		m.FlushBatch,
		m.FlushDuration,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		MessagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "breadcrumb_etl",
			Name:      "messages_received_total",
			Help:      "Total messages delivered by the bus subscription.",
		}),
		MessagesBuffered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "breadcrumb_etl",
			Name:      "messages_buffered_total",
			Help:      "Total validated breadcrumbs appended to the flush buffer.",
		}),
		MessagesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "breadcrumb_etl",
			Name:      "messages_rejected_total",
			Help:      "Validation rejections by violated rule.",
		}, []string{"rule"}),
		MessagesDiscarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "breadcrumb_etl",
			Name:      "messages_discarded_total",
			Help:      "Messages acknowledged and dropped after exhausting redelivery.",
		}),
		RowsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "breadcrumb_etl",
			Name:      "rows_written_total",
			Help:      "Breadcrumb rows committed to the store.",
		}),
		TripsUpserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "breadcrumb_etl",
			Name:      "trips_upserted_total",
			Help:      "Trip rows presented to the store (conflicts are ignored).",
		}),
		StorageErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "breadcrumb_etl",
			Name:      "storage_errors_total",
			Help:      "Failed batch commits; the batch transaction was rolled back.",
		}),
		AuditFindings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "breadcrumb_etl",
			Name:      "audit_findings_total",
			Help:      "Anomaly audit findings by rule.",
		}, []string{"rule"}),
		ConsumerRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "breadcrumb_etl",
			Name:      "consumer_running",
			Help:      "1 when the ingestion consumer is active, 0 when shut down.",
		}),
		BufferSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "breadcrumb_etl",
			Name:      "buffer_size",
			Help:      "Breadcrumbs currently buffered awaiting the next flush.",
		}),
		FlushBatch: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "breadcrumb_etl",
			Name:      "flush_batch_size",
			Help:      "Breadcrumbs drained per flush.",
			Buckets:   []float64{1, 10, 50, 100, 500, 1000, 5000, 10000},
		}),
		FlushDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "breadcrumb_etl",
			Name:      "flush_duration_seconds",
			Help:      "Duration of a complete normalize-audit-load flush cycle.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}),
	}
}
