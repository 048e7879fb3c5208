// Package metrics exposes Prometheus collectors for scans, hashing, cleanup
// and the HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	scansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reclaim_scans_total",
			Help: "Scan runs by final status",
		},
		[]string{"status"},
	)

	scanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reclaim_scan_duration_seconds",
			Help:    "Wall time of finished scan runs",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 900, 1800, 3600, 7200},
		},
	)

	filesHashed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reclaim_files_hashed_total",
			Help: "Files hashed by stage",
		},
		[]string{"stage"},
	)

	bytesHashed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reclaim_bytes_hashed_total",
			Help: "Bytes read while hashing",
		},
	)

	duplicateGroups = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reclaim_duplicate_groups",
			Help: "Duplicate groups found by the most recent scan",
		},
	)

	filesTrashed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reclaim_files_trashed_total",
			Help: "Files moved to the trash by outcome",
		},
		[]string{"outcome"},
	)

	bytesFreed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reclaim_bytes_freed_total",
			Help: "Bytes reclaimed by trashing duplicates",
		},
	)

	httpRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reclaim_http_requests_total",
			Help: "HTTP requests by method and status code",
		},
		[]string{"method", "code"},
	)

	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reclaim_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)

// Handler serves the Prometheus exposition format
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordScan counts a finished scan run
func RecordScan(status string, d time.Duration) {
	scansTotal.WithLabelValues(status).Inc()
	if d > 0 {
		scanDuration.Observe(d.Seconds())
	}
}

// RecordHashing adds the work of a detection run
func RecordHashing(partial, full, bytes int64) {
	filesHashed.WithLabelValues("partial").Add(float64(partial))
	filesHashed.WithLabelValues("full").Add(float64(full))
	bytesHashed.Add(float64(bytes))
}

// SetDuplicateGroups records the group count of the latest scan
func SetDuplicateGroups(n int) {
	duplicateGroups.Set(float64(n))
}

// RecordTrash counts the outcome of a trash operation
func RecordTrash(trashed, failed int, freed int64) {
	filesTrashed.WithLabelValues("trashed").Add(float64(trashed))
	filesTrashed.WithLabelValues("failed").Add(float64(failed))
	bytesFreed.Add(float64(freed))
}

type recorder struct {
	http.ResponseWriter
	code int
}

func (r *recorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *recorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *recorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Middleware records request counts and latency
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &recorder{ResponseWriter: w, code: http.StatusOK}

		next.ServeHTTP(rec, r)

		httpRequests.WithLabelValues(r.Method, strconv.Itoa(rec.code)).Inc()
		httpDuration.WithLabelValues(r.Method).Observe(time.Since(start).Seconds())
	})
}
