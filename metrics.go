package letsearch

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus metrics for collection import, embedding, and search.
var (
	embedBatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "letsearch_embed_batches_total",
			Help: "Total embed_column batches processed, by collection/column/status",
		},
		[]string{"collection", "column", "status"},
	)

	indexAddDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "letsearch_index_add_duration_seconds",
			Help:    "Duration of VectorIndex.Add batch insertions",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"collection", "column"},
	)

	searchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "letsearch_search_duration_seconds",
			Help:    "Duration of Collection.Search calls",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"collection", "column", "status"},
	)

	importRowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "letsearch_import_rows_total",
			Help: "Total rows imported via import_jsonl/import_parquet",
		},
		[]string{"collection", "format"},
	)
)

func init() {
	prometheus.MustRegister(embedBatchesTotal, indexAddDuration, searchDuration, importRowsTotal)
}

// MetricsCollector is the narrow interface Collection and CollectionRegistry
// use to report operational metrics. The default implementation records to
// the package-level Prometheus collectors registered above; pass a no-op
// implementation via WithMetrics to disable metrics entirely (e.g. in tests).
type MetricsCollector interface {
	RecordEmbedBatch(collection, column string, err error)
	RecordIndexAdd(collection, column string, dur time.Duration)
	RecordSearch(collection, column string, dur time.Duration, err error)
	RecordImport(collection, format string, rows int)
}

// PrometheusMetrics is the default MetricsCollector, backed by the
// package-level collectors mounted at /metrics by httpapi.Server.
type PrometheusMetrics struct{}

func (PrometheusMetrics) RecordEmbedBatch(collection, column string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	embedBatchesTotal.WithLabelValues(collection, column, status).Inc()
}

func (PrometheusMetrics) RecordIndexAdd(collection, column string, dur time.Duration) {
	indexAddDuration.WithLabelValues(collection, column).Observe(dur.Seconds())
}

func (PrometheusMetrics) RecordSearch(collection, column string, dur time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	searchDuration.WithLabelValues(collection, column, status).Observe(dur.Seconds())
}

func (PrometheusMetrics) RecordImport(collection, format string, rows int) {
	importRowsTotal.WithLabelValues(collection, format).Add(float64(rows))
}

// NoopMetrics discards all metrics. Useful in tests that don't want to
// pollute the global Prometheus registry's label cardinality.
type NoopMetrics struct{}

func (NoopMetrics) RecordEmbedBatch(string, string, error)            {}
func (NoopMetrics) RecordIndexAdd(string, string, time.Duration)      {}
func (NoopMetrics) RecordSearch(string, string, time.Duration, error) {}
func (NoopMetrics) RecordImport(string, string, int)                  {}
