// Package metrics provides Prometheus metrics for the bleed audit service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager owns every Prometheus collector exported by the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	registry         prometheus.Registerer

	// Audit pipeline
	auditsComputed     *prometheus.CounterVec
	auditComputeMillis prometheus.Histogram
	auditsFailed       prometheus.Counter
	auditsDuplicate    prometheus.Counter
	auditsStored       prometheus.Gauge
	eventsClassified   *prometheus.CounterVec
	leaveEvents        prometheus.Counter

	// Calendar ingestion
	calendarSyncs      *prometheus.CounterVec
	calendarSyncErrors *prometheus.CounterVec
	calendarEvents     *prometheus.CounterVec

	// Queue and workers
	queueSize        prometheus.Gauge
	queueCapacity    prometheus.Gauge
	queueEnqueued    prometheus.Counter
	queueRejected    *prometheus.CounterVec
	workerCount      prometheus.Gauge
	workerErrors     prometheus.Counter
	workerJobLatency prometheus.Histogram

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpErrors          *prometheus.CounterVec
	rateLimitHits       *prometheus.CounterVec

	// Scheduler
	scheduledRuns *prometheus.CounterVec
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // registry without default Go collectors

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "bleed",
		subsystem:        "audit",
		histogramBuckets: []float64{0.1, 0.5, 1, 5, 10, 50, 100, 500, 1000, 5000},
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
		registry:         prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) histogramOpts(name, help string) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     m.histogramBuckets,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.auditsComputed = auto.NewCounterVec(m.counterOpts("audits_computed_total",
		"Audits computed, by mode (sync, async, reconcile, scheduled, stateless)"), []string{"mode"})
	m.auditComputeMillis = auto.NewHistogram(m.histogramOpts("compute_latency_milliseconds",
		"Time spent computing audit metrics in milliseconds"))
	m.auditsFailed = auto.NewCounter(m.counterOpts("audits_failed_total",
		"Audits that ended in the failed state"))
	m.auditsDuplicate = auto.NewCounter(m.counterOpts("audits_duplicate_total",
		"Async audit submissions rejected by the idempotency cache"))
	m.auditsStored = auto.NewGauge(m.gaugeOpts("audits_stored",
		"Audits currently held by the store"))
	m.eventsClassified = auto.NewCounterVec(m.counterOpts("events_classified_total",
		"Calendar events run through the leave classifier, by method"), []string{"method"})
	m.leaveEvents = auto.NewCounter(m.counterOpts("leave_events_total",
		"Calendar events classified as leave"))

	m.calendarSyncs = auto.NewCounterVec(m.counterOpts("calendar_syncs_total",
		"Calendar ingestion runs, by provider"), []string{"provider"})
	m.calendarSyncErrors = auto.NewCounterVec(m.counterOpts("calendar_sync_errors_total",
		"Calendar ingestion failures, by provider"), []string{"provider"})
	m.calendarEvents = auto.NewCounterVec(m.counterOpts("calendar_events_total",
		"Calendar events ingested, by provider"), []string{"provider"})

	m.queueSize = auto.NewGauge(m.gaugeOpts("queue_size", "Audit jobs waiting in the queue"))
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("queue_capacity", "Capacity of the audit job queue"))
	m.queueEnqueued = auto.NewCounter(m.counterOpts("queue_enqueued_total", "Audit jobs accepted by the queue"))
	m.queueRejected = auto.NewCounterVec(m.counterOpts("queue_rejected_total",
		"Audit jobs rejected by the queue, by reason"), []string{"reason"})
	m.workerCount = auto.NewGauge(m.gaugeOpts("worker_count", "Audit workers running"))
	m.workerErrors = auto.NewCounter(m.counterOpts("worker_errors_total", "Audit jobs that failed in a worker"))
	m.workerJobLatency = auto.NewHistogram(m.histogramOpts("worker_job_latency_milliseconds",
		"End-to-end audit job latency inside a worker in milliseconds"))

	m.httpRequests = auto.NewCounterVec(m.counterOpts("http_requests_total",
		"HTTP requests by endpoint, method and status"), []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(m.histogramOpts("http_request_duration_milliseconds",
		"HTTP request duration in milliseconds"), []string{"endpoint", "method", "status_code"})
	m.httpErrors = auto.NewCounterVec(m.counterOpts("http_errors_total",
		"HTTP error responses by endpoint and error type"), []string{"endpoint", "error_type"})
	m.rateLimitHits = auto.NewCounterVec(m.counterOpts("rate_limit_hits_total",
		"Requests rejected by the rate limiter, by route"), []string{"route"})

	m.scheduledRuns = auto.NewCounterVec(m.counterOpts("scheduled_runs_total",
		"Scheduled refresh runs, by outcome"), []string{"outcome"})
}

// Registry returns the registry this manager registers into when it is a
// gatherer, so it can be served over HTTP.
func (m *Manager) Registry() prometheus.Gatherer {
	if g, ok := m.registry.(prometheus.Gatherer); ok {
		return g
	}
	return prometheus.DefaultGatherer
}

func (m *Manager) on() bool { return m != nil && m.enabled }

// Package-level helpers operate on the global manager.

func RecordAuditComputed(mode string, latency time.Duration) {
	if !globalManager.on() {
		return
	}
	globalManager.auditsComputed.WithLabelValues(mode).Inc()
	globalManager.auditComputeMillis.Observe(float64(latency.Microseconds()) / 1000)
}

func RecordAuditFailed() {
	if globalManager.on() {
		globalManager.auditsFailed.Inc()
	}
}

func RecordAuditDuplicate() {
	if globalManager.on() {
		globalManager.auditsDuplicate.Inc()
	}
}

func UpdateAuditsStored(count int) {
	if globalManager.on() {
		globalManager.auditsStored.Set(float64(count))
	}
}

func RecordEventClassified(method string, isLeave bool) {
	if !globalManager.on() {
		return
	}
	globalManager.eventsClassified.WithLabelValues(method).Inc()
	if isLeave {
		globalManager.leaveEvents.Inc()
	}
}

func RecordCalendarSync(provider string, events int) {
	if !globalManager.on() {
		return
	}
	globalManager.calendarSyncs.WithLabelValues(provider).Inc()
	globalManager.calendarEvents.WithLabelValues(provider).Add(float64(events))
}

func RecordCalendarSyncError(provider string) {
	if globalManager.on() {
		globalManager.calendarSyncErrors.WithLabelValues(provider).Inc()
	}
}

func UpdateQueueSize(size int) {
	if globalManager.on() {
		globalManager.queueSize.Set(float64(size))
	}
}

func UpdateQueueCapacity(capacity int) {
	if globalManager.on() {
		globalManager.queueCapacity.Set(float64(capacity))
	}
}

func RecordQueueEnqueue() {
	if globalManager.on() {
		globalManager.queueEnqueued.Inc()
	}
}

func RecordQueueRejected(reason string) {
	if globalManager.on() {
		globalManager.queueRejected.WithLabelValues(reason).Inc()
	}
}

func UpdateWorkerCount(count int) {
	if globalManager.on() {
		globalManager.workerCount.Set(float64(count))
	}
}

func RecordWorkerError() {
	if globalManager.on() {
		globalManager.workerErrors.Inc()
	}
}

func RecordWorkerJobLatency(latency time.Duration) {
	if globalManager.on() {
		globalManager.workerJobLatency.Observe(float64(latency.Microseconds()) / 1000)
	}
}

func RecordHTTPRequest(endpoint, method, statusCode string, durationMs float64) {
	if !globalManager.on() {
		return
	}
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

func RecordHTTPError(endpoint, errorType string) {
	if globalManager.on() {
		globalManager.httpErrors.WithLabelValues(endpoint, errorType).Inc()
	}
}

func RecordRateLimitHit(route string) {
	if globalManager.on() {
		globalManager.rateLimitHits.WithLabelValues(route).Inc()
	}
}

func RecordScheduledRun(outcome string) {
	if globalManager.on() {
		globalManager.scheduledRuns.WithLabelValues(outcome).Inc()
	}
}

// GetRegistry returns the registry backing the package-level helpers.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
