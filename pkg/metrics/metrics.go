// Package metrics provides Prometheus metrics for the clover service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ComparisonsTotal tracks computed pairwise similarity scores
	ComparisonsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "matching",
			Name:      "comparisons_total",
			Help:      "Total number of pairwise similarity scores computed",
		},
	)

	// CacheLookupsTotal tracks similarity cache lookups by result
	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "matching",
			Name:      "cache_lookups_total",
			Help:      "Total number of similarity cache lookups by result",
		},
		[]string{"result"},
	)

	// DuplicatesDetectedTotal tracks high-confidence duplicates found
	DuplicatesDetectedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "matching",
			Name:      "duplicates_detected_total",
			Help:      "Total number of high-confidence duplicates detected",
		},
	)

	// ResolutionsTotal tracks field resolutions by strategy
	ResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "resolution",
			Name:      "fields_total",
			Help:      "Total number of field conflicts resolved by strategy",
		},
		[]string{"strategy"},
	)

	// ManualReviewsTotal tracks resolutions flagged for manual review
	ManualReviewsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "resolution",
			Name:      "manual_reviews_total",
			Help:      "Total number of field resolutions flagged for manual review",
		},
		[]string{"field"},
	)

	// MergesTotal tracks executed merges by status
	MergesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "merging",
			Name:      "merges_total",
			Help:      "Total number of merge executions by status",
		},
		[]string{"status"},
	)

	// MergeDuration tracks merge execution duration in seconds
	MergeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "clover",
			Subsystem: "merging",
			Name:      "merge_duration_seconds",
			Help:      "Duration of merge executions in seconds",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
	)

	// LedgerEntries tracks the number of entries held by the merge ledger
	LedgerEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "clover",
			Subsystem: "ledger",
			Name:      "entries",
			Help:      "Number of merge history entries held in the ledger",
		},
	)

	// BatchesTotal tracks processed batches by mode
	BatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "batch",
			Name:      "batches_total",
			Help:      "Total number of processed batches by mode",
		},
		[]string{"mode"},
	)

	// BatchDuration tracks batch processing duration in seconds
	BatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "clover",
			Subsystem: "batch",
			Name:      "duration_seconds",
			Help:      "Duration of batch processing in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"mode"},
	)

	// KafkaMessagesConsumed tracks consumed ingestion messages
	KafkaMessagesConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "kafka",
			Name:      "messages_consumed_total",
			Help:      "Total number of Kafka messages consumed",
		},
		[]string{"topic", "status"},
	)

	// KafkaMessagesPublished tracks messages published to Kafka
	KafkaMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "kafka",
			Name:      "messages_published_total",
			Help:      "Total number of messages published to Kafka",
		},
		[]string{"topic", "status"},
	)

	// HTTPRequestDuration tracks API latency by route and status class
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "clover",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

// RecordComparison records a computed similarity score
func RecordComparison() {
	ComparisonsTotal.Inc()
}

// RecordCacheLookup records a similarity cache lookup
func RecordCacheLookup(hit bool) {
	if hit {
		CacheLookupsTotal.WithLabelValues("hit").Inc()
		return
	}
	CacheLookupsTotal.WithLabelValues("miss").Inc()
}

// RecordDuplicates records detected duplicates
func RecordDuplicates(count int) {
	DuplicatesDetectedTotal.Add(float64(count))
}

// RecordResolution records a field resolution
func RecordResolution(field, strategy string, manualReview bool) {
	ResolutionsTotal.WithLabelValues(strategy).Inc()
	if manualReview {
		ManualReviewsTotal.WithLabelValues(field).Inc()
	}
}

// RecordMerge records a merge execution
func RecordMerge(success bool, durationSeconds float64) {
	status := "success"
	if !success {
		status = "failure"
	}
	MergesTotal.WithLabelValues(status).Inc()
	MergeDuration.Observe(durationSeconds)
}

// SetLedgerEntries records the ledger size
func SetLedgerEntries(count int) {
	LedgerEntries.Set(float64(count))
}

// RecordBatch records a processed batch
func RecordBatch(mode string, durationSeconds float64) {
	BatchesTotal.WithLabelValues(mode).Inc()
	BatchDuration.WithLabelValues(mode).Observe(durationSeconds)
}

// RecordKafkaConsume records a consumed Kafka message
func RecordKafkaConsume(topic, status string) {
	KafkaMessagesConsumed.WithLabelValues(topic, status).Inc()
}

// RecordKafkaPublish records a Kafka publish operation
func RecordKafkaPublish(topic, status string) {
	KafkaMessagesPublished.WithLabelValues(topic, status).Inc()
}

// RecordHTTPRequest records a served request. status is the status class, such as "2xx".
func RecordHTTPRequest(method, route, status string, durationSeconds float64) {
	HTTPRequestDuration.WithLabelValues(method, route, status).Observe(durationSeconds)
}
