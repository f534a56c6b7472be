// Package metrics provides Prometheus metrics for the nudge compliance service.
package metrics

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager manages all Prometheus metrics for the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          atomic.Bool
	refreshInterval  atomic.Int64
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Ingestion
	snapshotsProcessed prometheus.Counter
	snapshotsFailed    *prometheus.CounterVec
	rowsParsed         prometheus.Counter
	rowsKept           prometheus.Counter
	rowsDropped        prometheus.Counter
	processingLatency  prometheus.Histogram
	rostersProcessed   prometheus.Counter
	uploadsStored      prometheus.Counter

	// State gauges
	historyWeeks    prometheus.Gauge
	rosterSize      prometheus.Gauge
	latestOffenders prometheus.Gauge

	// History index
	historyConflicts prometheus.Counter

	// Read-side aggregation
	leaderboardLatency prometheus.Histogram
	snapshotsSkipped   prometheus.Counter

	// Storage
	storageOps     *prometheus.CounterVec
	storageLatency *prometheus.HistogramVec
	cacheHits      prometheus.Counter
	cacheMisses    prometheus.Counter
	cacheErrors    prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec
	errorLatency         *prometheus.HistogramVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "nudge",
		subsystem:        "compliance",
		histogramBuckets: prometheus.DefBuckets,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}
	m.enabled.Store(true)
	m.refreshInterval.Store(int64(defaultRefreshInterval))
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

// Configure applies runtime options to the global manager.
func Configure(opts ...Option) {
	for _, opt := range opts {
		opt(globalManager)
	}
}

// Enabled reports whether the global recorders are active.
func Enabled() bool {
	return globalManager.enabled.Load()
}

// RefreshInterval returns the period for background gauge updaters.
func RefreshInterval() time.Duration {
	return time.Duration(globalManager.refreshInterval.Load())
}

func (m *Manager) name(n string) string {
	if m.metricPrefix == "" {
		return n
	}
	return m.metricPrefix + "_" + n
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		Buckets:     m.histogramBuckets,
		ConstLabels: m.customLabels,
	}, labels)
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every metric
	m.snapshotsProcessed = m.counter("snapshots_processed_total", "Total number of weekly snapshots persisted")
	m.snapshotsFailed = m.counterVec("snapshots_failed_total", "Snapshot processing failures by pipeline stage", "stage")
	m.rowsParsed = m.counter("rows_parsed_total", "Data rows read from uploaded CSVs")
	m.rowsKept = m.counter("rows_kept_total", "Rows kept as incomplete training assignments")
	m.rowsDropped = m.counter("rows_dropped_total", "Rows dropped by the incomplete-status filter")
	m.processingLatency = m.histogram("processing_latency_milliseconds", "End-to-end CSV snapshot processing latency", m.histogramBuckets)
	m.rostersProcessed = m.counter("rosters_processed_total", "Master roster uploads processed")
	m.uploadsStored = m.counter("uploads_stored_total", "Raw CSV files stored")

	m.historyWeeks = m.gauge("history_weeks", "Number of weeks in the history index")
	m.rosterSize = m.gauge("roster_size", "Number of names in the master roster")
	m.latestOffenders = m.gauge("latest_offenders", "Offender count of the most recent snapshot")

	m.historyConflicts = m.counter("history_conflicts_total", "Conditional writes on the history index that lost a race")

	m.leaderboardLatency = m.histogram("leaderboard_latency_milliseconds", "Leaderboard aggregation latency", m.histogramBuckets)
	m.snapshotsSkipped = m.counter("snapshots_skipped_total", "Snapshots skipped during aggregation because they could not be read")

	m.storageOps = m.counterVec("storage_operations_total", "Blob store operations", "backend", "op", "outcome")
	m.storageLatency = m.histogramVec("storage_latency_milliseconds", "Blob store operation latency", "backend", "op")
	m.cacheHits = m.counter("cache_hits_total", "Blob reads served from the redis cache")
	m.cacheMisses = m.counter("cache_misses_total", "Blob reads that missed the redis cache")
	m.cacheErrors = m.counter("cache_errors_total", "Redis cache failures that fell back to the backing store")

	m.httpRequests = m.counterVec("http_requests_total", "Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds", "endpoint", "method", "status_code")

	m.errorRateByComponent = m.counterVec("errors_by_component_total", "Errors by component and type", "component", "error_type")
	m.errorRateByType = m.counterVec("errors_by_type_total", "Errors by type and severity", "error_type", "severity")
	m.errorRateByEndpoint = m.counterVec("errors_by_endpoint_total", "Errors by endpoint", "endpoint", "method", "error_type")
	m.errorLatency = m.histogramVec("error_latency_milliseconds", "Latency of failed operations", "component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// RecordSnapshotProcessed increments the processed snapshot counter.
func RecordSnapshotProcessed() {
	if !Enabled() {
		return
	}
	globalManager.snapshotsProcessed.Inc()
}

// RecordSnapshotFailed counts a processing failure at the given stage
// (download, headers, parse, persist, index).
func RecordSnapshotFailed(stage string) {
	if !Enabled() {
		return
	}
	globalManager.snapshotsFailed.WithLabelValues(stage).Inc()
}

// RecordRows records the row funnel of one processed CSV.
func RecordRows(parsed, kept int) {
	if !Enabled() {
		return
	}
	globalManager.rowsParsed.Add(float64(parsed))
	globalManager.rowsKept.Add(float64(kept))
	if parsed > kept {
		globalManager.rowsDropped.Add(float64(parsed - kept))
	}
}

// RecordProcessingLatency records snapshot processing latency in milliseconds.
func RecordProcessingLatency(latencyMs float64) {
	if !Enabled() {
		return
	}
	globalManager.processingLatency.Observe(latencyMs)
}

// RecordRosterProcessed increments the roster counter.
func RecordRosterProcessed() {
	if !Enabled() {
		return
	}
	globalManager.rostersProcessed.Inc()
}

// RecordUploadStored increments the raw upload counter.
func RecordUploadStored() {
	if !Enabled() {
		return
	}
	globalManager.uploadsStored.Inc()
}

// UpdateHistoryWeeks sets the number of indexed weeks.
func UpdateHistoryWeeks(count int) {
	if !Enabled() {
		return
	}
	globalManager.historyWeeks.Set(float64(count))
}

// UpdateRosterSize sets the master roster size.
func UpdateRosterSize(count int) {
	if !Enabled() {
		return
	}
	globalManager.rosterSize.Set(float64(count))
}

// UpdateLatestOffenders sets the offender count of the latest snapshot.
func UpdateLatestOffenders(count int) {
	if !Enabled() {
		return
	}
	globalManager.latestOffenders.Set(float64(count))
}

// RecordHistoryConflict counts a lost compare-and-swap on the history index.
func RecordHistoryConflict() {
	if !Enabled() {
		return
	}
	globalManager.historyConflicts.Inc()
}

// RecordLeaderboardLatency records aggregation latency in milliseconds.
func RecordLeaderboardLatency(latencyMs float64) {
	if !Enabled() {
		return
	}
	globalManager.leaderboardLatency.Observe(latencyMs)
}

// RecordSnapshotSkipped counts a snapshot left out of an aggregate.
func RecordSnapshotSkipped() {
	if !Enabled() {
		return
	}
	globalManager.snapshotsSkipped.Inc()
}

// RecordStorageOperation records one blob store call.
func RecordStorageOperation(backend, op, outcome string, latencyMs float64) {
	if !Enabled() {
		return
	}
	globalManager.storageOps.WithLabelValues(backend, op, outcome).Inc()
	globalManager.storageLatency.WithLabelValues(backend, op).Observe(latencyMs)
}

// RecordCacheHit increments the cache hit counter.
func RecordCacheHit() {
	if !Enabled() {
		return
	}
	globalManager.cacheHits.Inc()
}

// RecordCacheMiss increments the cache miss counter.
func RecordCacheMiss() {
	if !Enabled() {
		return
	}
	globalManager.cacheMisses.Inc()
}

// RecordCacheError increments the cache error counter.
func RecordCacheError() {
	if !Enabled() {
		return
	}
	globalManager.cacheErrors.Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	if !Enabled() {
		return
	}
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	if !Enabled() {
		return
	}
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records an error by component and type.
func RecordErrorByComponent(component, errorType string) {
	if !Enabled() {
		return
	}
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType records an error by type and severity.
func RecordErrorByType(errorType, severity string) {
	if !Enabled() {
		return
	}
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an error by endpoint.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	if !Enabled() {
		return
	}
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordErrorLatency records the latency of a failed operation.
func RecordErrorLatency(component, errorType string, latencyMs float64) {
	if !Enabled() {
		return
	}
	globalManager.errorLatency.WithLabelValues(component, errorType).Observe(latencyMs)
}

// UpdateSystemMemoryUsage sets memory usage.
func UpdateSystemMemoryUsage(bytes uint64) {
	if !Enabled() {
		return
	}
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets goroutine count.
func UpdateSystemGoroutineCount(count int) {
	if !Enabled() {
		return
	}
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time.
func RecordSystemGCPauseTime(pauseMs float64) {
	if !Enabled() {
		return
	}
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom registry used for all metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
