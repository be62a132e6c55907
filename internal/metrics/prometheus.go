// Package metrics exposes Prometheus counters for the import pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	productsStoredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "importer_products_stored_total",
			Help: "Products written to the object store, by source and outcome.",
		},
		[]string{"source", "outcome"},
	)
	imageUploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "importer_image_uploads_total",
			Help: "Image uploads to blob storage, by result.",
		},
		[]string{"result"},
	)
	backupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "importer_backups_total",
			Help: "Snapshot and version backups, by kind and result.",
		},
		[]string{"kind", "result"},
	)
	duplicatesRemovedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "importer_duplicates_removed_total",
			Help: "Records folded into a duplicate group representative.",
		},
	)
	batchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "importer_batch_duration_seconds",
			Help:    "Histogram of batch store durations.",
			Buckets: []float64{0.5, 1, 5, 15, 60, 300},
		},
		[]string{"source"},
	)
	apiRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "importer_api_requests_total",
			Help: "Requests to the storage API, by method and status class.",
		},
		[]string{"method", "status"},
	)
	apiRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "importer_api_request_duration_seconds",
			Help:    "Histogram of storage API request durations.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"method", "status"},
	)
)

func init() {
	prometheus.MustRegister(productsStoredTotal)
	prometheus.MustRegister(imageUploadsTotal)
	prometheus.MustRegister(backupsTotal)
	prometheus.MustRegister(duplicatesRemovedTotal)
	prometheus.MustRegister(batchDuration)
	prometheus.MustRegister(apiRequestsTotal)
	prometheus.MustRegister(apiRequestDuration)
}

// RecordStore counts one product write. Outcome is "created", "updated" or "failed".
func RecordStore(source, outcome string) {
	productsStoredTotal.WithLabelValues(source, outcome).Inc()
}

// RecordImageUpload counts one image upload attempt.
func RecordImageUpload(ok bool) {
	imageUploadsTotal.WithLabelValues(result(ok)).Inc()
}

// RecordBackup counts one backup attempt. Kind is "snapshot" or "version".
func RecordBackup(kind string, ok bool) {
	backupsTotal.WithLabelValues(kind, result(ok)).Inc()
}

// RecordDuplicatesRemoved adds n to the removed duplicates counter.
func RecordDuplicatesRemoved(n int) {
	if n > 0 {
		duplicatesRemovedTotal.Add(float64(n))
	}
}

// RecordBatch observes the duration of a batch store.
func RecordBatch(source string, duration time.Duration) {
	batchDuration.WithLabelValues(source).Observe(duration.Seconds())
}

// RecordRequest records metrics for a storage API request.
func RecordRequest(method string, statusCode int, duration time.Duration) {
	status := classifyStatus(statusCode)
	apiRequestsTotal.WithLabelValues(method, status).Inc()
	apiRequestDuration.WithLabelValues(method, status).Observe(duration.Seconds())
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}

// classifyStatus maps an HTTP status code to its class.
func classifyStatus(statusCode int) string {
	if statusCode >= 100 && statusCode < 600 {
		return strconv.Itoa(statusCode/100) + "xx"
	}
	return "unknown"
}

// Handler returns the HTTP handler that exports the registered metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
