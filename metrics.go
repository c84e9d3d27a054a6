package sellergo

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector provides Prometheus metrics for the request pipeline.
// All record methods are nil-receiver safe so instrumentation can stay
// unconditional in the hot path. Safe for concurrent use.
type MetricsCollector struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight *prometheus.GaugeVec

	retriesTotal *prometheus.CounterVec

	rateLimiterQueueDepth *prometheus.GaugeVec

	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec
	cacheSize   *prometheus.GaugeVec

	batchHits *prometheus.CounterVec

	tokenRefreshes *prometheus.CounterVec

	circuitBreakerState *prometheus.GaugeVec

	errorsTotal *prometheus.CounterVec

	registerer prometheus.Registerer
}

// NewMetricsCollector creates a collector on the default registerer.
func NewMetricsCollector() *MetricsCollector {
	return NewMetricsCollectorWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsCollectorWithRegistry creates a collector using the supplied
// registerer.
func NewMetricsCollectorWithRegistry(registry prometheus.Registerer) *MetricsCollector {
	return &MetricsCollector{
		requestsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "sellergo_requests_total",
				Help: "Total number of logical API requests executed",
			},
			[]string{"method", "status_code", "endpoint"},
		),
		requestDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sellergo_request_duration_seconds",
				Help:    "Duration of logical API requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "status_code", "endpoint"},
		),
		requestsInFlight: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sellergo_requests_in_flight",
				Help: "Number of logical API requests currently in flight",
			},
			[]string{"method", "endpoint"},
		),
		retriesTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "sellergo_retries_total",
				Help: "Total number of retry attempts",
			},
			[]string{"method", "endpoint", "attempt"},
		),
		rateLimiterQueueDepth: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sellergo_rate_limiter_queue_depth",
				Help: "Number of callers waiting for a rate limit slot",
			},
			[]string{"name"},
		),
		cacheHits: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "sellergo_cache_hits_total",
				Help: "Total number of response cache hits",
			},
			[]string{"method", "endpoint"},
		),
		cacheMisses: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "sellergo_cache_misses_total",
				Help: "Total number of response cache misses",
			},
			[]string{"method", "endpoint"},
		),
		cacheSize: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sellergo_cache_size",
				Help: "Current number of entries in the response cache",
			},
			[]string{"name"},
		),
		batchHits: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "sellergo_batch_hits_total",
				Help: "Total number of calls absorbed by an in-flight batch entry",
			},
			[]string{"method", "endpoint"},
		),
		tokenRefreshes: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "sellergo_token_refreshes_total",
				Help: "Total number of access token refresh exchanges",
			},
			[]string{"outcome"},
		),
		circuitBreakerState: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sellergo_circuit_breaker_state",
				Help: "Current state of the circuit breaker (0=closed, 1=open, 2=half-open)",
			},
			[]string{"name"},
		),
		errorsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "sellergo_errors_total",
				Help: "Total number of errors by kind",
			},
			[]string{"kind", "method", "endpoint"},
		),
		registerer: registry,
	}
}

// RecordRequest records request count and duration.
func (mc *MetricsCollector) RecordRequest(method, endpoint string, statusCode int, duration time.Duration) {
	if mc == nil {
		return
	}
	code := strconv.Itoa(statusCode)
	mc.requestsTotal.WithLabelValues(method, code, endpoint).Inc()
	mc.requestDuration.WithLabelValues(method, code, endpoint).Observe(duration.Seconds())
}

// RecordRequestStart increments the in-flight gauge.
func (mc *MetricsCollector) RecordRequestStart(method, endpoint string) {
	if mc == nil {
		return
	}
	mc.requestsInFlight.WithLabelValues(method, endpoint).Inc()
}

// RecordRequestEnd decrements the in-flight gauge.
func (mc *MetricsCollector) RecordRequestEnd(method, endpoint string) {
	if mc == nil {
		return
	}
	mc.requestsInFlight.WithLabelValues(method, endpoint).Dec()
}

// RecordRetry increments the retry counter for an attempt.
func (mc *MetricsCollector) RecordRetry(method, endpoint string, attempt int) {
	if mc == nil {
		return
	}
	mc.retriesTotal.WithLabelValues(method, endpoint, strconv.Itoa(attempt)).Inc()
}

// RecordRateLimiterQueueDepth sets the wait-queue depth gauge.
func (mc *MetricsCollector) RecordRateLimiterQueueDepth(name string, depth int) {
	if mc == nil {
		return
	}
	mc.rateLimiterQueueDepth.WithLabelValues(name).Set(float64(depth))
}

// RecordCacheHit increments the cache hit counter.
func (mc *MetricsCollector) RecordCacheHit(method, endpoint string) {
	if mc == nil {
		return
	}
	mc.cacheHits.WithLabelValues(method, endpoint).Inc()
}

// RecordCacheMiss increments the cache miss counter.
func (mc *MetricsCollector) RecordCacheMiss(method, endpoint string) {
	if mc == nil {
		return
	}
	mc.cacheMisses.WithLabelValues(method, endpoint).Inc()
}

// RecordCacheSize sets the cache size gauge.
func (mc *MetricsCollector) RecordCacheSize(name string, size int) {
	if mc == nil {
		return
	}
	mc.cacheSize.WithLabelValues(name).Set(float64(size))
}

// RecordBatchHit increments the batch absorption counter.
func (mc *MetricsCollector) RecordBatchHit(method, endpoint string) {
	if mc == nil {
		return
	}
	mc.batchHits.WithLabelValues(method, endpoint).Inc()
}

// RecordTokenRefresh counts one refresh exchange by outcome.
func (mc *MetricsCollector) RecordTokenRefresh(err error) {
	if mc == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	mc.tokenRefreshes.WithLabelValues(outcome).Inc()
}

// RecordCircuitBreakerState sets the breaker state gauge.
func (mc *MetricsCollector) RecordCircuitBreakerState(name string, state CircuitState) {
	if mc == nil {
		return
	}
	mc.circuitBreakerState.WithLabelValues(name).Set(float64(state))
}

// RecordError increments the error counter by kind.
func (mc *MetricsCollector) RecordError(kind ErrorKind, method, endpoint string) {
	if mc == nil {
		return
	}
	mc.errorsTotal.WithLabelValues(string(kind), method, endpoint).Inc()
}
