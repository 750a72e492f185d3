// internal/utils/metrics.go
package utils

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// MetricsCollector collects application metrics
type MetricsCollector struct {
	counters   map[string]*int64
	gauges     map[string]*int64
	histograms map[string]*Histogram

	mu sync.RWMutex
}

// Histogram tracks count, sum, min and max of observed values
type Histogram struct {
	count int64
	sum   int64
	min   int64
	max   int64
	mu    sync.Mutex
}

var (
	globalMetrics *MetricsCollector
	metricsOnce   sync.Once
)

// NewMetricsCollector builds an empty collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		counters:   make(map[string]*int64),
		gauges:     make(map[string]*int64),
		histograms: make(map[string]*Histogram),
	}
}

// GetMetricsCollector returns the global metrics collector
func GetMetricsCollector() *MetricsCollector {
	metricsOnce.Do(func() {
		globalMetrics = NewMetricsCollector()
	})
	return globalMetrics
}

func (m *MetricsCollector) slot(table map[string]*int64, name string) *int64 {
	m.mu.RLock()
	v, exists := table[name]
	m.mu.RUnlock()
	if exists {
		return v
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// Double-check after acquiring write lock
	if v, exists = table[name]; !exists {
		v = new(int64)
		table[name] = v
	}
	return v
}

// IncrementCounter increments a counter metric
func (m *MetricsCollector) IncrementCounter(name string) {
	atomic.AddInt64(m.slot(m.counters, name), 1)
}

// AddCounter adds a value to a counter metric
func (m *MetricsCollector) AddCounter(name string, value int64) {
	atomic.AddInt64(m.slot(m.counters, name), value)
}

// SetGauge sets a gauge metric
func (m *MetricsCollector) SetGauge(name string, value int64) {
	atomic.StoreInt64(m.slot(m.gauges, name), value)
}

// AddGauge moves a gauge by delta
func (m *MetricsCollector) AddGauge(name string, delta int64) {
	atomic.AddInt64(m.slot(m.gauges, name), delta)
}

// GetCounterValue gets the current value of a counter
func (m *MetricsCollector) GetCounterValue(name string) int64 {
	m.mu.RLock()
	v, exists := m.counters[name]
	m.mu.RUnlock()
	if !exists {
		return 0
	}
	return atomic.LoadInt64(v)
}

// GetGauge gets the current value of a gauge
func (m *MetricsCollector) GetGauge(name string) int64 {
	m.mu.RLock()
	v, exists := m.gauges[name]
	m.mu.RUnlock()
	if !exists {
		return 0
	}
	return atomic.LoadInt64(v)
}

// RecordHistogram records a value in a histogram
func (m *MetricsCollector) RecordHistogram(name string, value int64) {
	m.mu.RLock()
	h, exists := m.histograms[name]
	m.mu.RUnlock()

	if !exists {
		m.mu.Lock()
		h, exists = m.histograms[name]
		if !exists {
			h = &Histogram{min: value, max: value}
			m.histograms[name] = h
		}
		m.mu.Unlock()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += value
	if value < h.min {
		h.min = value
	}
	if value > h.max {
		h.max = value
	}
}

// GetMetrics returns a snapshot of all metrics
func (m *MetricsCollector) GetMetrics() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counters := make(map[string]int64, len(m.counters))
	for name, v := range m.counters {
		counters[name] = atomic.LoadInt64(v)
	}

	gauges := make(map[string]int64, len(m.gauges))
	for name, v := range m.gauges {
		gauges[name] = atomic.LoadInt64(v)
	}

	histograms := make(map[string]map[string]int64, len(m.histograms))
	for name, h := range m.histograms {
		h.mu.Lock()
		histograms[name] = map[string]int64{
			"count": h.count,
			"sum":   h.sum,
			"min":   h.min,
			"max":   h.max,
		}
		h.mu.Unlock()
	}

	return map[string]interface{}{
		"counters":   counters,
		"gauges":     gauges,
		"histograms": histograms,
	}
}

// APIMetrics wraps the collector with the recorders the service uses
type APIMetrics struct {
	metrics *MetricsCollector
	logger  *Logger
}

// NewAPIMetrics creates a new API metrics instance
func NewAPIMetrics(metrics *MetricsCollector, logger *Logger) *APIMetrics {
	if metrics == nil {
		metrics = GetMetricsCollector()
	}
	if logger == nil {
		logger = GetLogger()
	}
	return &APIMetrics{metrics: metrics, logger: logger}
}

// Collector exposes the underlying collector
func (am *APIMetrics) Collector() *MetricsCollector {
	return am.metrics
}

// RecordAPIRequest records metrics for an API request
func (am *APIMetrics) RecordAPIRequest(route, method string, statusCode int, duration time.Duration) {
	am.metrics.IncrementCounter("api_requests_total")
	am.metrics.IncrementCounter("api_requests_" + method + "_" + route)
	am.metrics.IncrementCounter("api_responses_" + strconv.Itoa(statusCode/100) + "xx")
	am.metrics.RecordHistogram("api_response_time_ms", duration.Milliseconds())
}

// RecordAnalysis records one remote-analysis outcome
func (am *APIMetrics) RecordAnalysis(operation, source string, duration time.Duration) {
	am.metrics.IncrementCounter("analysis_requests_total")
	am.metrics.IncrementCounter("analysis_" + operation + "_" + source)
	am.metrics.RecordHistogram("analysis_time_ms", duration.Milliseconds())
}

// RecordStaleResult records a result dropped because its screen was reset
func (am *APIMetrics) RecordStaleResult(screen string) {
	am.metrics.IncrementCounter("analysis_stale_discarded")
	am.logger.Debug("stale analysis result discarded", Fields{"screen": screen})
}

// RecordError records an error metric
func (am *APIMetrics) RecordError(errorType, component string) {
	am.metrics.IncrementCounter("errors_total")
	am.metrics.IncrementCounter("errors_" + errorType)
	am.metrics.IncrementCounter("errors_" + component)
}
