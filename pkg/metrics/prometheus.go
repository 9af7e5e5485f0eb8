package metrics

import (
	"context"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// Label values shared by callers.
const (
	OutcomeEnriched = "enriched"
	OutcomeFailed   = "failed"
	OutcomeStale    = "stale"

	CacheHit     = "hit"
	CacheMiss    = "miss"
	CacheExpired = "expired"
)

// Manager manages all Prometheus metrics for the milepost service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	refreshInterval  time.Duration
	customLabels     map[string]string
	registry         prometheus.Registerer

	// Scheduler
	itemsEnqueued   prometheus.Counter
	itemsSkipped    *prometheus.CounterVec
	queueDepth      prometheus.Gauge
	itemsInProgress prometheus.Gauge
	batches         *prometheus.CounterVec
	batchDuration   prometheus.Histogram
	batchRetries    prometheus.Counter
	sessionResets   prometheus.Counter

	// Stream ingestion
	streamRecords   *prometheus.CounterVec
	malformedLines  prometheus.Counter
	offersPublished prometheus.Counter

	// Request cache
	cacheRequests *prometheus.CounterVec
	cacheLatency  *prometheus.HistogramVec

	// HTTP and websocket
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	websocketClients    prometheus.Gauge

	errorRateByComponent *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "milepost",
		subsystem:        "enrichment",
		histogramBuckets: prometheus.DefBuckets,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
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

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)

	m.itemsEnqueued = auto.NewCounter(m.counterOpts("items_enqueued_total",
		"Itineraries accepted into the enrichment queue"))
	m.itemsSkipped = auto.NewCounterVec(m.counterOpts("items_skipped_total",
		"Itineraries not enqueued, by reason"), []string{"reason"})
	m.queueDepth = auto.NewGauge(m.gaugeOpts("queue_depth",
		"Work items waiting for a batch"))
	m.itemsInProgress = auto.NewGauge(m.gaugeOpts("items_in_progress",
		"Work items in the active batch"))
	m.batches = auto.NewCounterVec(m.counterOpts("batches_total",
		"Dispatched batches by outcome"), []string{"outcome"})
	m.batchDuration = auto.NewHistogram(m.histogramOpts("batch_duration_milliseconds",
		"Time from batch dispatch to stream completion in milliseconds"))
	m.batchRetries = auto.NewCounter(m.counterOpts("batch_retries_total",
		"Batch fetch attempts after the first"))
	m.sessionResets = auto.NewCounter(m.counterOpts("session_resets_total",
		"Scheduler resets for a new search"))

	m.streamRecords = auto.NewCounterVec(m.counterOpts("stream_records_total",
		"Decoded award stream records by shape"), []string{"shape"})
	m.malformedLines = auto.NewCounter(m.counterOpts("stream_malformed_lines_total",
		"Award stream lines skipped as malformed"))
	m.offersPublished = auto.NewCounter(m.counterOpts("offers_published_total",
		"Award offers delivered to the publish callback"))

	m.cacheRequests = auto.NewCounterVec(m.counterOpts("cache_requests_total",
		"Request cache lookups by result"), []string{"result"})
	m.cacheLatency = auto.NewHistogramVec(m.histogramOpts("cache_operation_milliseconds",
		"Request cache backend latency in milliseconds"), []string{"backend", "operation"})

	m.httpRequests = auto.NewCounterVec(m.counterOpts("http_requests_total",
		"Total number of HTTP requests by endpoint and method"),
		[]string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(m.histogramOpts("http_request_duration_milliseconds",
		"HTTP request duration in milliseconds"),
		[]string{"endpoint", "method", "status_code"})
	m.websocketClients = auto.NewGauge(m.gaugeOpts("websocket_clients",
		"Connected offer stream subscribers"))

	m.errorRateByComponent = auto.NewCounterVec(m.counterOpts("errors_by_component_total",
		"Errors by component and type"), []string{"component", "error_type"})

	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_bytes",
		"Heap memory in use in bytes"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutines",
		"Number of goroutines"))
	m.systemGCPauseTime = auto.NewHistogram(m.histogramOpts("system_gc_pause_milliseconds",
		"Most recent GC pause in milliseconds"))
}

// Scheduler Metrics Functions.

// RecordItemsEnqueued adds n accepted work items.
func RecordItemsEnqueued(n int) {
	globalManager.itemsEnqueued.Add(float64(n))
}

// RecordItemSkipped counts an itinerary that was not enqueued.
func RecordItemSkipped(reason string) {
	globalManager.itemsSkipped.WithLabelValues(reason).Inc()
}

// UpdateQueueDepth sets the number of queued work items.
func UpdateQueueDepth(n int) {
	globalManager.queueDepth.Set(float64(n))
}

// UpdateItemsInProgress sets the size of the active batch.
func UpdateItemsInProgress(n int) {
	globalManager.itemsInProgress.Set(float64(n))
}

// RecordBatch counts a finished batch and its duration.
func RecordBatch(outcome string, durationMs float64) {
	globalManager.batches.WithLabelValues(outcome).Inc()
	globalManager.batchDuration.Observe(durationMs)
}

// RecordBatchRetry counts a retried fetch.
func RecordBatchRetry() {
	globalManager.batchRetries.Inc()
}

// RecordSessionReset counts a scheduler reset.
func RecordSessionReset() {
	globalManager.sessionResets.Inc()
}

// Stream Metrics Functions.

// RecordStreamRecord counts a decoded record by shape.
func RecordStreamRecord(shape string) {
	globalManager.streamRecords.WithLabelValues(shape).Inc()
}

// RecordMalformedLine counts a skipped stream line.
func RecordMalformedLine() {
	globalManager.malformedLines.Inc()
}

// RecordOffersPublished adds n published offers.
func RecordOffersPublished(n int) {
	globalManager.offersPublished.Add(float64(n))
}

// Cache Metrics Functions.

// RecordCacheRequest counts a cache lookup by result.
func RecordCacheRequest(result string) {
	globalManager.cacheRequests.WithLabelValues(result).Inc()
}

// RecordCacheLatency records backend latency for an operation.
func RecordCacheLatency(backend, operation string, latencyMs float64) {
	globalManager.cacheLatency.WithLabelValues(backend, operation).Observe(latencyMs)
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

// UpdateWebsocketClients sets the number of connected subscribers.
func UpdateWebsocketClients(n int) {
	globalManager.websocketClients.Set(float64(n))
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
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

// CollectSystemMetrics samples runtime gauges every refresh interval until
// ctx is done.
func CollectSystemMetrics(ctx context.Context) {
	ticker := time.NewTicker(globalManager.refreshInterval)
	defer ticker.Stop()
	var lastGC uint32
	for {
		sampleSystem(&lastGC)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func sampleSystem(lastGC *uint32) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	UpdateSystemMemoryUsage(ms.HeapAlloc)
	UpdateSystemGoroutineCount(runtime.NumGoroutine())
	if ms.NumGC != *lastGC {
		pause := ms.PauseNs[(ms.NumGC+255)%256]
		RecordSystemGCPauseTime(float64(pause) / float64(time.Millisecond))
		*lastGC = ms.NumGC
	}
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
