package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// APICallsTotal tracks search API page requests by outcome.
	APICallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "complaints_api_calls_total",
			Help: "Total number of complaint search API calls",
		},
		[]string{"status"}, // "success", "error", "rate_limited"
	)

	// APICallDuration tracks search API page request duration.
	APICallDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "complaints_api_call_duration_seconds",
			Help:    "Duration of complaint search API calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// RecordsFetchedTotal tracks complaint records returned by the API.
	RecordsFetchedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "complaints_records_fetched_total",
			Help: "Total number of complaint records fetched from the API",
		},
	)

	// StoreOperationsTotal tracks analytical store operations.
	StoreOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "complaints_store_operations_total",
			Help: "Total number of analytical store operations",
		},
		[]string{"backend", "operation", "status"},
	)

	// StoreOperationDuration tracks analytical store operation duration.
	StoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "complaints_store_operation_duration_seconds",
			Help:    "Duration of analytical store operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "operation"},
	)

	// EntityLoadTotal tracks per-entity load outcomes across runs.
	EntityLoadTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "complaints_entity_loads_total",
			Help: "Total number of per-entity load executions",
		},
		[]string{"entity", "status"}, // "success", "failed"
	)

	// EntityRecordsLoaded tracks records written per entity.
	EntityRecordsLoaded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "complaints_entity_records_loaded_total",
			Help: "Total number of complaint records written per entity",
		},
		[]string{"entity", "result"}, // "inserted", "ignored"
	)

	// TransformRunsTotal tracks downstream transform invocations.
	TransformRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "complaints_transform_runs_total",
			Help: "Total number of downstream transform invocations",
		},
		[]string{"status"}, // "success", "warning", "failed"
	)
)

// RecordAPICall records one search API page request.
func RecordAPICall(status string, duration time.Duration) {
	APICallsTotal.WithLabelValues(status).Inc()
	APICallDuration.Observe(duration.Seconds())
}

// RecordFetchedRecords records records returned by one page.
func RecordFetchedRecords(n int) {
	RecordsFetchedTotal.Add(float64(n))
}

// RecordStoreOperation records one analytical store operation.
func RecordStoreOperation(backend, operation, status string, duration time.Duration) {
	StoreOperationsTotal.WithLabelValues(backend, operation, status).Inc()
	StoreOperationDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
}

// RecordEntityLoad records the outcome of one entity load.
func RecordEntityLoad(entity, status string, inserted, ignored int) {
	EntityLoadTotal.WithLabelValues(entity, status).Inc()
	EntityRecordsLoaded.WithLabelValues(entity, "inserted").Add(float64(inserted))
	EntityRecordsLoaded.WithLabelValues(entity, "ignored").Add(float64(ignored))
}

// RecordTransformRun records one transform invocation outcome.
func RecordTransformRun(status string) {
	TransformRunsTotal.WithLabelValues(status).Inc()
}
