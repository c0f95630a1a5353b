// Package metrics provides Prometheus metrics for the panelgauge pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Manager manages all Prometheus metrics for the pipeline.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         *prometheus.Registry

	// Collection metrics
	communitiesAttempted prometheus.Counter
	communitiesFetched   prometheus.Counter
	fetchFailures        *prometheus.CounterVec
	fetchLatency         prometheus.Histogram
	activitiesIngested   prometheus.Counter
	attendanceFacts      prometheus.Counter
	duplicateActivity    prometheus.Counter
	collectionEfficiency prometheus.Gauge
	runDuration          prometheus.Histogram

	// Window metrics
	proxyCount   *prometheus.GaugeVec
	retainedDays prometheus.Gauge

	// Calibration metrics
	calibrationFactor     *prometheus.GaugeVec
	calibrationConfidence *prometheus.GaugeVec

	// Quality metrics
	qualityFlags *prometheus.CounterVec

	// Queue and worker metrics
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueEnqueueErrors prometheus.Counter
	workerCount        prometheus.Gauge
	workerErrors       prometheus.Counter

	// HTTP metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid the default Go collectors.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "panelgauge",
		subsystem:        "pipeline",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

// Handler exposes the custom registry over HTTP for scraping.
func Handler() http.Handler {
	return promhttp.HandlerFor(customRegistry, promhttp.HandlerOpts{})
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.communitiesAttempted = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "communities_attempted_total",
		Help:      "Total number of per-community fetches attempted",
	})

	m.communitiesFetched = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "communities_fetched_total",
		Help:      "Total number of per-community fetches that succeeded",
	})

	m.fetchFailures = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "fetch_failures_total",
			Help:      "Total number of per-community fetch failures by reason",
		},
		[]string{"reason"},
	)

	m.fetchLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "fetch_latency_milliseconds",
		Help:      "Histogram of per-community fetch latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.activitiesIngested = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "activities_ingested_total",
		Help:      "Total number of normalized activity records ingested",
	})

	m.attendanceFacts = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "attendance_facts_total",
		Help:      "Total number of new (author, day) attendance facts recorded",
	})

	m.duplicateActivity = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "duplicate_activity_total",
		Help:      "Total number of activities collapsed into existing attendance facts",
	})

	m.collectionEfficiency = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "collection_efficiency",
		Help:      "Fraction of panel communities fetched successfully in the last run",
	})

	m.runDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "run_duration_milliseconds",
		Help:      "Histogram of collection run duration in milliseconds",
		Buckets:   prometheus.ExponentialBuckets(100, 2, 12),
	})

	m.proxyCount = auto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "proxy_unique_authors",
			Help:      "Rolling unique-author proxy counts (DAU', WAU', MAU') by metric",
		},
		[]string{"metric"},
	)

	m.retainedDays = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "retained_day_sets",
		Help:      "Number of days currently holding raw day-set membership",
	})

	m.calibrationFactor = auto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "calibration_factor",
			Help:      "Latest calibration factor by metric",
		},
		[]string{"metric"},
	)

	m.calibrationConfidence = auto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "calibration_confidence",
			Help:      "Confidence of the latest projection by metric",
		},
		[]string{"metric"},
	)

	m.qualityFlags = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "quality_flags_total",
			Help:      "Total advisory quality flags raised by kind",
		},
		[]string{"kind"},
	)

	m.queueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_size",
		Help:      "Current number of queued fetch jobs",
	})

	m.queueCapacity = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_capacity",
		Help:      "Configured fetch-job queue capacity",
	})

	m.queueEnqueueErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_enqueue_errors_total",
		Help:      "Total number of fetch jobs rejected by the queue",
	})

	m.workerCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "worker_count",
		Help:      "Current number of fetch workers",
	})

	m.workerErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "worker_errors_total",
		Help:      "Total number of worker-level processing errors",
	})

	m.httpRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by endpoint, method and status",
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.httpRequestDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_request_duration_milliseconds",
			Help:      "HTTP request duration in milliseconds",
			Buckets:   m.histogramBuckets,
		},
		[]string{"endpoint", "method", "status_code"},
	)
}

// Package-level helpers against the global manager.

// RecordCommunityAttempted counts one attempted per-community fetch.
func RecordCommunityAttempted() { globalManager.communitiesAttempted.Inc() }

// RecordCommunityFetched counts one successful per-community fetch.
func RecordCommunityFetched() { globalManager.communitiesFetched.Inc() }

// RecordFetchFailure counts one failed per-community fetch by reason.
func RecordFetchFailure(reason string) {
	globalManager.fetchFailures.WithLabelValues(reason).Inc()
}

// RecordFetchLatency observes a per-community fetch latency in milliseconds.
func RecordFetchLatency(ms float64) { globalManager.fetchLatency.Observe(ms) }

// RecordActivitiesIngested counts normalized activity records.
func RecordActivitiesIngested(n int) {
	globalManager.activitiesIngested.Add(float64(n))
}

// RecordAttendanceFacts counts newly recorded attendance facts.
func RecordAttendanceFacts(n int) {
	globalManager.attendanceFacts.Add(float64(n))
}

// RecordDuplicateActivity counts an activity collapsed into an existing fact.
func RecordDuplicateActivity() { globalManager.duplicateActivity.Inc() }

// UpdateCollectionEfficiency publishes the last run's collection efficiency.
func UpdateCollectionEfficiency(v float64) { globalManager.collectionEfficiency.Set(v) }

// RecordRunDuration observes a whole collection run in milliseconds.
func RecordRunDuration(ms float64) { globalManager.runDuration.Observe(ms) }

// UpdateProxyCount publishes a rolling unique-author proxy count.
func UpdateProxyCount(metric string, v float64) {
	globalManager.proxyCount.WithLabelValues(metric).Set(v)
}

// UpdateRetainedDays publishes how many raw day-sets are held in memory.
func UpdateRetainedDays(n int) { globalManager.retainedDays.Set(float64(n)) }

// UpdateCalibrationFactor publishes the latest factor for a metric.
func UpdateCalibrationFactor(metric string, v float64) {
	globalManager.calibrationFactor.WithLabelValues(metric).Set(v)
}

// UpdateCalibrationConfidence publishes the latest projection confidence.
func UpdateCalibrationConfidence(metric string, v float64) {
	globalManager.calibrationConfidence.WithLabelValues(metric).Set(v)
}

// RecordQualityFlag counts one advisory flag by kind.
func RecordQualityFlag(kind string) {
	globalManager.qualityFlags.WithLabelValues(kind).Inc()
}

// UpdateQueueSize publishes the current queue depth.
func UpdateQueueSize(n int) { globalManager.queueSize.Set(float64(n)) }

// UpdateQueueCapacity publishes the configured queue capacity.
func UpdateQueueCapacity(n int) { globalManager.queueCapacity.Set(float64(n)) }

// RecordQueueEnqueueError counts one rejected enqueue.
func RecordQueueEnqueueError() { globalManager.queueEnqueueErrors.Inc() }

// UpdateWorkerCount publishes the current worker-pool size.
func UpdateWorkerCount(n int) { globalManager.workerCount.Set(float64(n)) }

// RecordWorkerError counts one worker-level processing error.
func RecordWorkerError() { globalManager.workerErrors.Inc() }

// RecordHTTPRequest counts one HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration observes one HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, ms float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(ms)
}
