// Package metrics provides Prometheus metrics for the intent scoring service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector the service exports.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Pipeline
	eventsIngested  prometheus.Counter
	recordsSkipped  *prometheus.CounterVec
	sessionsBuilt   *prometheus.CounterVec
	usersScored     *prometheus.CounterVec
	scoreHistogram  prometheus.Histogram
	stageDuration   *prometheus.HistogramVec
	pipelineRuns    *prometheus.CounterVec
	lastRunUnix     prometheus.Gauge
	lastRunUsers    prometheus.Gauge
	snapshotPublish prometheus.Counter

	// Queue
	queueSize      prometheus.Gauge
	queueCapacity  prometheus.Gauge
	queueEnqueued  prometheus.Counter
	queueDequeued  prometheus.Counter
	queueEnqueueEr prometheus.Counter

	// Workers
	workerActive     prometheus.Gauge
	workerJobs       prometheus.Counter
	workerJobLatency prometheus.Histogram
	workerErrors     prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	errorsByComponent *prometheus.CounterVec

	// System
	systemMemory     prometheus.Gauge
	systemGoroutines prometheus.Gauge
	systemGCPause    prometheus.Histogram
}

var (
	globalManager  *Manager                   //nolint:gochecknoglobals // singleton metrics manager
	customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // avoids default Go collectors
)

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager registered on the configured registry.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "intentrank",
		subsystem:        "pipeline",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels, Buckets: buckets,
	})
}

func (m *Manager) histogramVec(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels, Buckets: buckets,
	}, labels)
}

func (m *Manager) initializeMetrics() {
	m.eventsIngested = m.counter("events_ingested_total", "Events accepted into aggregation")
	m.recordsSkipped = m.counterVec("records_skipped_total", "Records excluded from aggregation by reason", "reason")
	m.sessionsBuilt = m.counterVec("sessions_built_total", "Sessions built by kind (normal, bounce, spam)", "kind")
	m.usersScored = m.counterVec("users_scored_total", "Users scored by label", "label")
	m.scoreHistogram = m.histogram("score", "Distribution of final scores", prometheus.LinearBuckets(10, 10, 10))
	m.stageDuration = m.histogramVec("stage_duration_seconds", "Duration of pipeline stages", m.histogramBuckets, "stage")
	m.pipelineRuns = m.counterVec("runs_total", "Pipeline runs by outcome", "outcome")
	m.lastRunUnix = m.gauge("last_run_unix", "Unix time of the last successful run")
	m.lastRunUsers = m.gauge("last_run_users", "Users in the last published snapshot")
	m.snapshotPublish = m.counter("snapshots_published_total", "Result snapshots published to the store")

	m.queueSize = m.gauge("queue_size", "Jobs waiting in the work queue")
	m.queueCapacity = m.gauge("queue_capacity", "Capacity of the work queue")
	m.queueEnqueued = m.counter("queue_enqueued_total", "Jobs enqueued")
	m.queueDequeued = m.counter("queue_dequeued_total", "Jobs dequeued")
	m.queueEnqueueEr = m.counter("queue_enqueue_errors_total", "Jobs rejected by the queue")

	m.workerActive = m.gauge("worker_active", "Workers currently running")
	m.workerJobs = m.counter("worker_jobs_total", "Jobs processed by workers")
	m.workerJobLatency = m.histogram("worker_job_latency_seconds", "Per-job processing latency", m.histogramBuckets)
	m.workerErrors = m.counter("worker_errors_total", "Jobs that failed in a worker")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint, method and status", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_seconds", "HTTP request duration", m.histogramBuckets, "endpoint", "method", "status_code")

	m.errorsByComponent = m.counterVec("errors_total", "Errors by component and type", "component", "error_type")

	m.systemMemory = m.gauge("system_memory_bytes", "Heap bytes allocated")
	m.systemGoroutines = m.gauge("system_goroutines", "Goroutines currently running")
	m.systemGCPause = m.histogram("system_gc_pause_ms", "Average GC pause in milliseconds", prometheus.ExponentialBuckets(0.01, 4, 8))
}

// RecordEventsIngested adds n accepted events.
func RecordEventsIngested(n int) { globalManager.eventsIngested.Add(float64(n)) }

// RecordRecordSkipped counts one skipped record.
func RecordRecordSkipped(reason string) { globalManager.recordsSkipped.WithLabelValues(reason).Inc() }

// RecordSessions adds n sessions of kind.
func RecordSessions(kind string, n int) { globalManager.sessionsBuilt.WithLabelValues(kind).Add(float64(n)) }

// RecordUserScored counts a scored user and observes its score.
func RecordUserScored(label string, score float64) {
	globalManager.usersScored.WithLabelValues(label).Inc()
	globalManager.scoreHistogram.Observe(score)
}

// RecordStageDuration observes a stage duration in seconds.
func RecordStageDuration(stage string, seconds float64) {
	globalManager.stageDuration.WithLabelValues(stage).Observe(seconds)
}

// RecordPipelineRun counts a run by outcome (success, failed).
func RecordPipelineRun(outcome string) { globalManager.pipelineRuns.WithLabelValues(outcome).Inc() }

// RecordSnapshotPublished marks a successful publish of users results.
func RecordSnapshotPublished(users int, unix float64) {
	globalManager.snapshotPublish.Inc()
	globalManager.lastRunUsers.Set(float64(users))
	globalManager.lastRunUnix.Set(unix)
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) { globalManager.queueSize.Set(float64(size)) }

// UpdateQueueCapacity sets the queue capacity.
func UpdateQueueCapacity(capacity int) { globalManager.queueCapacity.Set(float64(capacity)) }

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() { globalManager.queueEnqueued.Inc() }

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() { globalManager.queueDequeued.Inc() }

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() { globalManager.queueEnqueueEr.Inc() }

// AddWorkerActive adjusts the active worker gauge by delta.
func AddWorkerActive(delta int) { globalManager.workerActive.Add(float64(delta)) }

// RecordWorkerJob counts a processed job and observes its latency in seconds.
func RecordWorkerJob(seconds float64) {
	globalManager.workerJobs.Inc()
	globalManager.workerJobLatency.Observe(seconds)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() { globalManager.workerErrors.Inc() }

// RecordHTTPRequest records a request and its duration in seconds.
func RecordHTTPRequest(endpoint, method, statusCode string, seconds float64) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(seconds)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the allocated heap bytes.
func UpdateSystemMemoryUsage(bytes uint64) { globalManager.systemMemory.Set(float64(bytes)) }

// UpdateSystemGoroutineCount sets the goroutine gauge.
func UpdateSystemGoroutineCount(n int) { globalManager.systemGoroutines.Set(float64(n)) }

// RecordSystemGCPauseTime observes an average GC pause in milliseconds.
func RecordSystemGCPauseTime(ms float64) { globalManager.systemGCPause.Observe(ms) }

// GetRegistry returns the registry the global manager is registered on.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
