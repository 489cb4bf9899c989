// Package metrics provides Prometheus metrics for the EPIQ episode quality service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Histogram buckets for fit durations in milliseconds. Fits run for
// seconds to minutes, so the default buckets are far too small.
var fitDurationBuckets = []float64{100, 500, 1000, 5000, 15000, 30000, 60000, 120000, 300000, 600000} //nolint:gochecknoglobals // shared bucket layout

// Manager manages all Prometheus metrics for the EPIQ service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	registry         prometheus.Registerer

	// Fit Metrics - Model fitting lifecycle
	fitsTotal       prometheus.Counter
	fitErrors       prometheus.Counter
	fitsCoalesced   prometheus.Counter
	fitDuration     prometheus.Histogram
	fitDivergences  prometheus.Counter
	samplerDraws    prometheus.Counter

	// Query Metrics - Posterior queries
	episodeQueries prometheus.Counter
	seasonQueries  prometheus.Counter
	queryErrors    prometheus.Counter
	queryLatency   prometheus.Histogram

	// Registration Metrics - Incremental episode intake
	episodesRegistered     prometheus.Counter
	registrationDuplicates prometheus.Counter
	registrationErrors     prometheus.Counter

	// Dataset Gauges - Current table shape
	datasetEpisodes prometheus.Gauge
	datasetSeasons  prometheus.Gauge
	datasetObserved prometheus.Gauge

	// Ranking Metrics - Posterior-mean ranking store
	rankingEntries                 prometheus.Gauge
	rankingUpdateLatency           prometheus.Histogram
	rankingQueryLatency            prometheus.Histogram
	rankingSnapshotRebuildDuration prometheus.Histogram
	rankingSnapshotLastUnix        prometheus.Gauge
	rankingSnapshotCount           prometheus.Counter
	rankingSnapshotLastDurationMs  prometheus.Gauge

	// Fit Queue Metrics
	queueDepth         prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueues      prometheus.Counter
	queueDequeues      prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Fit Worker Metrics
	workerBusy    prometheus.Gauge
	workerLatency prometheus.Histogram
	workerErrors  prometheus.Counter

	// TMDB Client Metrics
	tmdbRequests        *prometheus.CounterVec
	tmdbRequestDuration *prometheus.HistogramVec

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Error Metrics - Detailed error tracking
	errorsByComponent *prometheus.CounterVec

	// System Performance Metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "epiq",
		subsystem:        "model",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		registry:         prometheus.DefaultRegisterer,
	}

	// Apply all options
	for _, opt := range opts {
		opt(m)
	}

	// Initialize metrics
	m.initializeMetrics()

	return m
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	// Ensure metrics are registered on the configured registry (custom by default)
	auto := promauto.With(m.registry)

	// Fit Metrics - Model fitting lifecycle
	m.fitsTotal = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "fits_total",
		Help:      "Total number of completed model fits",
	})

	m.fitErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "fit_errors_total",
		Help:      "Total number of model fits that failed",
	})

	m.fitsCoalesced = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "fits_coalesced_total",
		Help:      "Total number of refit requests coalesced into a pending fit",
	})

	m.fitDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "fit_duration_milliseconds",
		Help:      "Histogram of full fit duration (build, warmup, sampling) in milliseconds",
		Buckets:   fitDurationBuckets,
	})

	m.fitDivergences = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "fit_divergences_total",
		Help:      "Total number of divergent transitions across all fits",
	})

	m.samplerDraws = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "sampler_draws_total",
		Help:      "Total number of posterior draws produced across all chains",
	})

	// Query Metrics - Posterior queries
	m.episodeQueries = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "episode_queries_total",
		Help:      "Total number of single-episode posterior queries",
	})

	m.seasonQueries = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "season_queries_total",
		Help:      "Total number of whole-season posterior queries",
	})

	m.queryErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "query_errors_total",
		Help:      "Total number of posterior queries that failed",
	})

	m.queryLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "query_latency_milliseconds",
		Help:      "Posterior query latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	// Registration Metrics - Incremental episode intake
	m.episodesRegistered = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "episodes_registered_total",
		Help:      "Total number of episodes registered",
	})

	m.registrationDuplicates = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "registrations_duplicate_total",
		Help:      "Total number of duplicate episode registrations rejected",
	})

	m.registrationErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "registration_errors_total",
		Help:      "Total number of episode registrations that failed",
	})

	// Dataset Gauges - Current table shape
	m.datasetEpisodes = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "dataset_episodes",
		Help:      "Number of episode rows in the active dataset",
	})

	m.datasetSeasons = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "dataset_seasons",
		Help:      "Number of distinct seasons in the active dataset",
	})

	m.datasetObserved = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "dataset_observed_episodes",
		Help:      "Number of episode rows with an observed rating",
	})

	// Ranking Metrics - Posterior-mean ranking store
	m.rankingEntries = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "ranking_entries",
		Help:      "Number of episodes in the ranking store",
	})

	m.rankingUpdateLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "ranking_update_latency_milliseconds",
		Help:      "Ranking store update latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.rankingQueryLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "ranking_query_latency_milliseconds",
		Help:      "Ranking store query latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	// Snapshot Metrics - Timing and frequency of ranking snapshots
	m.rankingSnapshotRebuildDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "ranking_snapshot_rebuild_duration_milliseconds",
		Help:      "Ranking snapshot rebuild duration in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.rankingSnapshotLastUnix = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "ranking_snapshot_last_unix",
		Help:      "Unix timestamp of the last ranking snapshot publish",
	})

	m.rankingSnapshotCount = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "ranking_snapshot_count_total",
		Help:      "Total number of ranking snapshots published",
	})

	m.rankingSnapshotLastDurationMs = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "ranking_snapshot_last_duration_milliseconds",
		Help:      "Last ranking snapshot rebuild duration in milliseconds",
	})

	// Fit Queue Metrics
	m.queueDepth = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "fit_queue_depth",
		Help:      "Current depth of the fit job queue",
	})

	m.queueCapacity = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "fit_queue_capacity",
		Help:      "Maximum fit job queue capacity",
	})

	m.queueUtilization = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "fit_queue_utilization_ratio",
		Help:      "Fit queue utilization ratio (current depth / capacity)",
	})

	m.queueEnqueues = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "fit_queue_enqueue_total",
		Help:      "Total number of fit jobs enqueued",
	})

	m.queueDequeues = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "fit_queue_dequeue_total",
		Help:      "Total number of fit jobs dequeued",
	})

	m.queueEnqueueErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "fit_queue_enqueue_errors_total",
		Help:      "Total number of fit job enqueue errors",
	})

	// Fit Worker Metrics
	m.workerBusy = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "fit_worker_busy",
		Help:      "Whether the fit worker is currently executing a fit (0 or 1)",
	})

	m.workerLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "fit_worker_latency_milliseconds",
		Help:      "Fit worker job latency in milliseconds",
		Buckets:   fitDurationBuckets,
	})

	m.workerErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "fit_worker_errors_total",
		Help:      "Total number of fit worker errors",
	})

	// TMDB Client Metrics
	m.tmdbRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "tmdb_requests_total",
			Help:      "Total number of TMDB API requests by endpoint and status code",
		},
		[]string{"endpoint", "status_code"},
	)

	m.tmdbRequestDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "tmdb_request_duration_milliseconds",
			Help:      "TMDB API request duration in milliseconds",
			Buckets:   m.histogramBuckets,
		},
		[]string{"endpoint"},
	)

	// HTTP Performance Metrics - User experience indicators
	m.httpRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by endpoint and method",
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.httpRequestDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_request_duration_milliseconds",
			Help:      "HTTP request duration in milliseconds (user experience)",
			Buckets:   m.histogramBuckets,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	// Error Metrics - Detailed error tracking
	m.errorsByComponent = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "errors_by_component_total",
			Help:      "Total number of errors by component",
		},
		[]string{"component", "error_type"},
	)

	// System Performance Metrics
	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_memory_usage_bytes",
		Help:      "System memory usage in bytes",
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_goroutine_count",
		Help:      "Number of goroutines",
	})
}

// Fit Metrics Functions.

// RecordFitCompleted increments the completed fits counter.
func RecordFitCompleted() {
	globalManager.fitsTotal.Inc()
}

// RecordFitError increments the fit errors counter.
func RecordFitError() {
	globalManager.fitErrors.Inc()
}

// RecordFitCoalesced increments the coalesced refit requests counter.
func RecordFitCoalesced() {
	globalManager.fitsCoalesced.Inc()
}

// RecordFitDuration records a full fit duration in milliseconds.
func RecordFitDuration(durationMs float64) {
	globalManager.fitDuration.Observe(durationMs)
}

// RecordFitDivergences adds divergent transitions from a completed fit.
func RecordFitDivergences(count int) {
	globalManager.fitDivergences.Add(float64(count))
}

// RecordSamplerDraws adds posterior draws produced by a completed fit.
func RecordSamplerDraws(count int) {
	globalManager.samplerDraws.Add(float64(count))
}

// Query Metrics Functions.

// RecordEpisodeQuery increments the single-episode query counter.
func RecordEpisodeQuery() {
	globalManager.episodeQueries.Inc()
}

// RecordSeasonQuery increments the whole-season query counter.
func RecordSeasonQuery() {
	globalManager.seasonQueries.Inc()
}

// RecordQueryError increments the query errors counter.
func RecordQueryError() {
	globalManager.queryErrors.Inc()
}

// RecordQueryLatency records posterior query latency in milliseconds.
func RecordQueryLatency(latencyMs float64) {
	globalManager.queryLatency.Observe(latencyMs)
}

// Registration Metrics Functions.

// RecordEpisodeRegistered increments the registered episodes counter.
func RecordEpisodeRegistered() {
	globalManager.episodesRegistered.Inc()
}

// RecordRegistrationDuplicate increments the duplicate registrations counter.
func RecordRegistrationDuplicate() {
	globalManager.registrationDuplicates.Inc()
}

// RecordRegistrationError increments the registration errors counter.
func RecordRegistrationError() {
	globalManager.registrationErrors.Inc()
}

// Dataset Gauge Functions.

// UpdateDatasetEpisodes sets the number of episode rows in the active dataset.
func UpdateDatasetEpisodes(count int) {
	globalManager.datasetEpisodes.Set(float64(count))
}

// UpdateDatasetSeasons sets the number of distinct seasons in the active dataset.
func UpdateDatasetSeasons(count int) {
	globalManager.datasetSeasons.Set(float64(count))
}

// UpdateDatasetObserved sets the number of rows with an observed rating.
func UpdateDatasetObserved(count int) {
	globalManager.datasetObserved.Set(float64(count))
}

// Ranking Metrics Functions.

// UpdateRankingEntries sets the number of episodes in the ranking store.
func UpdateRankingEntries(count int) {
	globalManager.rankingEntries.Set(float64(count))
}

// RecordRankingUpdateLatency records ranking store update latency.
func RecordRankingUpdateLatency(latencyMs float64) {
	globalManager.rankingUpdateLatency.Observe(latencyMs)
}

// RecordRankingQueryLatency records ranking store query latency.
func RecordRankingQueryLatency(latencyMs float64) {
	globalManager.rankingQueryLatency.Observe(latencyMs)
}

// RecordRankingSnapshotRebuild records a snapshot rebuild duration and
// updates the last-snapshot gauges.
func RecordRankingSnapshotRebuild(durationMs float64, unixTime int64) {
	globalManager.rankingSnapshotRebuildDuration.Observe(durationMs)
	globalManager.rankingSnapshotLastDurationMs.Set(durationMs)
	globalManager.rankingSnapshotLastUnix.Set(float64(unixTime))
	globalManager.rankingSnapshotCount.Inc()
}

// Fit Queue Metrics Functions.

// UpdateFitQueueDepth sets the current fit queue depth.
func UpdateFitQueueDepth(depth int) {
	globalManager.queueDepth.Set(float64(depth))
}

// UpdateFitQueueCapacity sets the maximum fit queue capacity.
func UpdateFitQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateFitQueueUtilization sets the fit queue utilization ratio.
func UpdateFitQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordFitQueueEnqueue increments the enqueue counter.
func RecordFitQueueEnqueue() {
	globalManager.queueEnqueues.Inc()
}

// RecordFitQueueDequeue increments the dequeue counter.
func RecordFitQueueDequeue() {
	globalManager.queueDequeues.Inc()
}

// RecordFitQueueEnqueueError increments the enqueue error counter.
func RecordFitQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// Fit Worker Metrics Functions.

// UpdateFitWorkerBusy sets whether the fit worker is executing a fit.
func UpdateFitWorkerBusy(busy bool) {
	if busy {
		globalManager.workerBusy.Set(1)
	} else {
		globalManager.workerBusy.Set(0)
	}
}

// RecordFitWorkerLatency records fit worker job latency.
func RecordFitWorkerLatency(latencyMs float64) {
	globalManager.workerLatency.Observe(latencyMs)
}

// RecordFitWorkerError increments the fit worker error counter.
func RecordFitWorkerError() {
	globalManager.workerErrors.Inc()
}

// TMDB Client Metrics Functions.

// RecordTMDBRequest records a TMDB API request.
func RecordTMDBRequest(endpoint, statusCode string) {
	globalManager.tmdbRequests.WithLabelValues(endpoint, statusCode).Inc()
}

// RecordTMDBRequestDuration records TMDB API request duration.
func RecordTMDBRequestDuration(endpoint string, durationMs float64) {
	globalManager.tmdbRequestDuration.WithLabelValues(endpoint).Observe(durationMs)
}

// HTTP Metrics Functions.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Error Metrics Functions.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// System Performance Metrics Functions.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
