// Package metrics provides Prometheus metrics for the lanscore service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// defaultLatencyBuckets covers 1ms to about 8s; every latency here is
// observed in milliseconds.
var defaultLatencyBuckets = prometheus.ExponentialBuckets(1, 2, 14)

// Pass outcomes used as label values.
const (
	OutcomeOK       = "ok"
	OutcomeFailed   = "failed"
	OutcomePanicked = "panicked"
)

// Manager manages all Prometheus metrics for the lanscore service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Reconciliation Metrics - What a pass did
	passesTotal        *prometheus.CounterVec
	passDuration       prometheus.Histogram
	lastPassUnix       prometheus.Gauge
	eventsReconciled   prometheus.Counter
	eventFailures      prometheus.Counter
	eventsCompleted    prometheus.Counter
	timeslotsCreated   prometheus.Counter
	timeslotsProcessed prometheus.Counter
	timeslotAnomalies  prometheus.Counter
	scoresAwarded      prometheus.Counter
	scoresDuplicate    prometheus.Counter
	schedulerBusy      prometheus.Counter

	// Notification Metrics - Fan-out of new scores
	notificationsPublished *prometheus.CounterVec
	notificationErrors     *prometheus.CounterVec
	liveClients            prometheus.Gauge

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Repository Metrics
	repositoryUpdateLatency prometheus.Histogram
	repositoryQueryLatency  prometheus.Histogram

	// Queue Metrics - Notification queue performance
	queueSize              prometheus.Gauge
	queueCapacity          prometheus.Gauge
	queueUtilization       prometheus.Gauge
	queueEnqueueRate       prometheus.Counter
	queueDequeueRate       prometheus.Counter
	queueEnqueueErrors     prometheus.Counter
	queueProcessingLatency prometheus.Histogram

	// Worker Metrics - Publishing performance
	workerCount             prometheus.Gauge
	workerActiveCount       prometheus.Gauge
	workerIdleCount         prometheus.Gauge
	workerMessagesPerSecond prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrorRate         prometheus.Counter

	// Error Metrics
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec
	errorLatency         *prometheus.HistogramVec

	// System Performance Metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
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
		namespace:        "lanscore",
		subsystem:        "community",
		histogramBuckets: defaultLatencyBuckets,
		customLabels:     make(map[string]string),
		metricPrefix:     "",
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

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.metricPrefix + name,
		Help:        help,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.metricPrefix + name,
		Help:        help,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.metricPrefix + name,
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.metricPrefix + name,
		Help:        help,
		ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.metricPrefix + name,
		Help:        help,
		Buckets:     m.histogramBuckets,
		ConstLabels: m.customLabels,
	}, labels)
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	// Reconciliation Metrics
	m.passesTotal = m.counterVec("reconcile_passes_total",
		"Total number of reconciliation passes by outcome", "outcome")
	m.passDuration = m.histogram("reconcile_pass_duration_milliseconds",
		"Duration of a reconciliation pass in milliseconds", m.histogramBuckets)
	m.lastPassUnix = m.gauge("reconcile_last_pass_unix",
		"Unix timestamp of the last finished reconciliation pass")
	m.eventsReconciled = m.counter("events_reconciled_total",
		"Total number of event reconciliations committed")
	m.eventFailures = m.counter("event_failures_total",
		"Total number of event reconciliations rolled back")
	m.eventsCompleted = m.counter("events_completed_total",
		"Total number of events marked processed")
	m.timeslotsCreated = m.counter("timeslots_created_total",
		"Total number of timeslots materialized")
	m.timeslotsProcessed = m.counter("timeslots_processed_total",
		"Total number of timeslots marked processed")
	m.timeslotAnomalies = m.counter("timeslot_anomalies_total",
		"Total number of stored timeslots that are off the event grid")
	m.scoresAwarded = m.counter("scores_awarded_total",
		"Total number of community scores inserted")
	m.scoresDuplicate = m.counter("scores_duplicate_total",
		"Total number of score inserts skipped on conflict")
	m.schedulerBusy = m.counter("scheduler_busy_total",
		"Total number of triggers rejected because a pass was running")

	// Notification Metrics
	m.notificationsPublished = m.counterVec("notifications_published_total",
		"Total number of score batches published by sink", "sink")
	m.notificationErrors = m.counterVec("notification_errors_total",
		"Total number of failed score batch publishes by sink", "sink")
	m.liveClients = m.gauge("live_clients",
		"Current number of connected live websocket clients")

	// HTTP Performance Metrics
	m.httpRequests = m.counterVec("http_requests_total",
		"Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds",
		"HTTP request duration in milliseconds", "endpoint", "method", "status_code")

	// Repository Metrics
	m.repositoryUpdateLatency = m.histogram("repository_update_latency_milliseconds",
		"Repository transaction latency in milliseconds", m.histogramBuckets)
	m.repositoryQueryLatency = m.histogram("repository_query_latency_milliseconds",
		"Repository query latency in milliseconds", m.histogramBuckets)

	// Queue Metrics
	m.queueSize = m.gauge("queue_size", "Current size of the notification queue")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum queue capacity")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Queue utilization ratio (current size / capacity)")
	m.queueEnqueueRate = m.counter("queue_enqueue_total", "Total number of batches enqueued")
	m.queueDequeueRate = m.counter("queue_dequeue_total", "Total number of batches dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Total number of enqueue errors")
	m.queueProcessingLatency = m.histogram("queue_processing_latency_milliseconds",
		"Queue processing latency in milliseconds", m.histogramBuckets)

	// Worker Metrics
	m.workerCount = m.gauge("worker_count", "Configured number of publishing workers")
	m.workerActiveCount = m.gauge("worker_active_count", "Number of active workers")
	m.workerIdleCount = m.gauge("worker_idle_count", "Number of idle workers")
	m.workerMessagesPerSecond = m.gauge("worker_messages_per_second",
		"Average batches published per second by workers")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds",
		"Worker processing latency in milliseconds", m.histogramBuckets)
	m.workerErrorRate = m.counter("worker_errors_total", "Total number of worker errors")

	// Error Metrics
	m.errorRateByComponent = m.counterVec("errors_by_component_total",
		"Total number of errors by component", "component", "error_type")
	m.errorRateByType = m.counterVec("errors_by_type_total",
		"Total number of errors by type", "error_type", "severity")
	m.errorRateByEndpoint = m.counterVec("errors_by_endpoint_total",
		"Total number of errors by endpoint", "endpoint", "method", "error_type")
	m.errorLatency = m.histogramVec("error_latency_milliseconds",
		"Latency of operations that resulted in errors", "component", "error_type")

	// System Performance Metrics
	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// Reconciliation Metrics Functions.

// RecordPass records a finished reconciliation pass.
func RecordPass(outcome string, durationMs float64) {
	globalManager.passesTotal.WithLabelValues(outcome).Inc()
	globalManager.passDuration.Observe(durationMs)
	globalManager.lastPassUnix.Set(float64(time.Now().Unix()))
}

// RecordEventReconciled increments the committed event counter.
func RecordEventReconciled() {
	globalManager.eventsReconciled.Inc()
}

// RecordEventFailure increments the rolled back event counter.
func RecordEventFailure() {
	globalManager.eventFailures.Inc()
}

// RecordEventCompleted increments the completed event counter.
func RecordEventCompleted() {
	globalManager.eventsCompleted.Inc()
}

// RecordTimeslotsCreated adds to the materialized timeslot counter.
func RecordTimeslotsCreated(n int) {
	globalManager.timeslotsCreated.Add(float64(n))
}

// RecordTimeslotsProcessed adds to the processed timeslot counter.
func RecordTimeslotsProcessed(n int) {
	globalManager.timeslotsProcessed.Add(float64(n))
}

// RecordTimeslotAnomalies adds to the off-grid timeslot counter.
func RecordTimeslotAnomalies(n int) {
	globalManager.timeslotAnomalies.Add(float64(n))
}

// RecordScoresAwarded adds to the inserted score counter.
func RecordScoresAwarded(n int) {
	globalManager.scoresAwarded.Add(float64(n))
}

// RecordScoresDuplicate adds to the conflicting score counter.
func RecordScoresDuplicate(n int) {
	globalManager.scoresDuplicate.Add(float64(n))
}

// RecordSchedulerBusy increments the rejected trigger counter.
func RecordSchedulerBusy() {
	globalManager.schedulerBusy.Inc()
}

// Notification Metrics Functions.

// RecordNotificationPublished increments the published batch counter of a sink.
func RecordNotificationPublished(sink string) {
	globalManager.notificationsPublished.WithLabelValues(sink).Inc()
}

// RecordNotificationError increments the failed publish counter of a sink.
func RecordNotificationError(sink string) {
	globalManager.notificationErrors.WithLabelValues(sink).Inc()
}

// UpdateLiveClients sets the number of connected live clients.
func UpdateLiveClients(count int) {
	globalManager.liveClients.Set(float64(count))
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

// Repository Metrics Functions.

// RecordRepositoryUpdateLatency records repository transaction latency.
func RecordRepositoryUpdateLatency(latencyMs float64) {
	globalManager.repositoryUpdateLatency.Observe(latencyMs)
}

// RecordRepositoryQueryLatency records repository query latency.
func RecordRepositoryQueryLatency(latencyMs float64) {
	globalManager.repositoryQueryLatency.Observe(latencyMs)
}

// Queue Metrics Functions.

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueueRate.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeueRate.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// RecordQueueProcessingLatency records queue processing latency.
func RecordQueueProcessingLatency(latencyMs float64) {
	globalManager.queueProcessingLatency.Observe(latencyMs)
}

// Worker Metrics Functions.

// UpdateWorkerCount sets the configured worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// UpdateWorkerActiveCount sets the number of active workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// UpdateWorkerIdleCount sets the number of idle workers.
func UpdateWorkerIdleCount(count int) {
	globalManager.workerIdleCount.Set(float64(count))
}

// UpdateWorkerMessagesPerSecond sets the average batches published per second.
func UpdateWorkerMessagesPerSecond(rate float64) {
	globalManager.workerMessagesPerSecond.Set(rate)
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrorRate.Inc()
}

// Error Metrics Functions.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordErrorLatency records the latency of an operation that resulted in an error.
func RecordErrorLatency(component, errorType string, latencyMs float64) {
	globalManager.errorLatency.WithLabelValues(component, errorType).Observe(latencyMs)
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

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
