package utils

import (
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Tracks performance metrics across the system
type MetricsCollector struct {
	mu           sync.RWMutex
	requestCount uint64
	errorCount   uint64

	// Maps operation name to list of latencies in nanoseconds
	operationTimes map[string][]int64

	systemStartTime time.Time

	registry   *prometheus.Registry
	latency    *prometheus.HistogramVec
	requests   prometheus.Counter
	errors     prometheus.Counter
	operations *prometheus.CounterVec
}

// OperationStats summarises the recorded latencies of one operation.
type OperationStats struct {
	Count int           `json:"count"`
	P50   time.Duration `json:"p50"`
	P99   time.Duration `json:"p99"`
	Max   time.Duration `json:"max"`
}

// keep at most this many samples per operation for percentile reporting
const maxLatencySamples = 1024

func NewMetricsCollector() *MetricsCollector {
	mc := &MetricsCollector{
		operationTimes:  make(map[string][]int64),
		systemStartTime: time.Now(),
		registry:        prometheus.NewRegistry(),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "thoth",
			Name:      "operation_duration_seconds",
			Help:      "Latency of domain operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		requests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "thoth",
			Name:      "requests_total",
			Help:      "HTTP requests handled.",
		}),
		errors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "thoth",
			Name:      "errors_total",
			Help:      "Requests that ended in an error.",
		}),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "thoth",
			Name:      "operation_outcomes_total",
			Help:      "Domain operations by outcome.",
		}, []string{"operation", "outcome"}),
	}
	mc.registry.MustRegister(mc.latency, mc.requests, mc.errors, mc.operations)
	return mc
}

func (mc *MetricsCollector) IncrementRequests() {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.requestCount++
	mc.requests.Inc()
}

func (mc *MetricsCollector) IncrementErrors() {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.errorCount++
	mc.errors.Inc()
}

func (mc *MetricsCollector) AddOperationLatency(operationName string, duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	samples := append(mc.operationTimes[operationName], duration.Nanoseconds())
	if len(samples) > maxLatencySamples {
		samples = samples[len(samples)-maxLatencySamples:]
	}
	mc.operationTimes[operationName] = samples
	mc.latency.WithLabelValues(operationName).Observe(duration.Seconds())
}

// RecordOutcome counts an operation result, labelled "ok" or with the error code.
func (mc *MetricsCollector) RecordOutcome(operationName string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = ErrorCode(err)
	}
	mc.operations.WithLabelValues(operationName, outcome).Inc()
}

// Snapshot returns request counters and per-operation latency stats.
func (mc *MetricsCollector) Snapshot() (requests, errors uint64, uptime time.Duration, ops map[string]OperationStats) {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	ops = make(map[string]OperationStats, len(mc.operationTimes))
	for name, samples := range mc.operationTimes {
		if len(samples) == 0 {
			continue
		}
		sorted := append([]int64(nil), samples...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		ops[name] = OperationStats{
			Count: len(sorted),
			P50:   time.Duration(sorted[len(sorted)/2]),
			P99:   time.Duration(sorted[(len(sorted)*99)/100]),
			Max:   time.Duration(sorted[len(sorted)-1]),
		}
	}
	return mc.requestCount, mc.errorCount, time.Since(mc.systemStartTime), ops
}

// Handler exposes the collector in the Prometheus text format.
func (mc *MetricsCollector) Handler() http.Handler {
	return promhttp.HandlerFor(mc.registry, promhttp.HandlerOpts{})
}
