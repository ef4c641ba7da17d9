package monitoring

import (
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics holds application metrics
type Metrics struct {
	RequestCount        int64
	ErrorCount          int64
	AverageResponseTime int64 // in nanoseconds
	StartTime           time.Time

	// Pipeline counters
	Predictions         int64
	PredictionFailures  int64
	ValidationFailures  int64
	ExplanationFailures int64
	Fallbacks           int64
	RateLimitBlocks     int64

	ExplanationsByMethod map[string]int64
	ExplanationMutex     sync.RWMutex

	ResponseTimes      []time.Duration
	ResponseTimesMutex sync.RWMutex

	RequestCountByStatus map[int]int64
	StatusMutex          sync.RWMutex
}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{
		StartTime:            time.Now(),
		ResponseTimes:        make([]time.Duration, 0, 1000),
		RequestCountByStatus: make(map[int]int64),
		ExplanationsByMethod: make(map[string]int64),
	}
}

// IncrementRequest increments the request count
func (m *Metrics) IncrementRequest() {
	atomic.AddInt64(&m.RequestCount, 1)
}

// IncrementError increments the error count
func (m *Metrics) IncrementError() {
	atomic.AddInt64(&m.ErrorCount, 1)
}

// IncrementRateLimitBlock counts a request rejected by the rate limiter
func (m *Metrics) IncrementRateLimitBlock() {
	atomic.AddInt64(&m.RateLimitBlocks, 1)
}

// IncrementValidationFailure counts a request rejected at the input boundary
func (m *Metrics) IncrementValidationFailure() {
	atomic.AddInt64(&m.ValidationFailures, 1)
}

// IncrementPredictionFailure counts a failed model call
func (m *Metrics) IncrementPredictionFailure() {
	atomic.AddInt64(&m.PredictionFailures, 1)
}

// RecordPrediction records one successful prediction and how (or whether)
// it was explained.
func (m *Metrics) RecordPrediction(method string, fallback, explanationFailed bool) {
	atomic.AddInt64(&m.Predictions, 1)
	if fallback {
		atomic.AddInt64(&m.Fallbacks, 1)
	}
	if explanationFailed {
		atomic.AddInt64(&m.ExplanationFailures, 1)
		return
	}

	m.ExplanationMutex.Lock()
	m.ExplanationsByMethod[method]++
	m.ExplanationMutex.Unlock()
}

// RecordResponseTime records response time for averaging and percentiles
func (m *Metrics) RecordResponseTime(duration time.Duration) {
	// Update simple average
	current := atomic.LoadInt64(&m.AverageResponseTime)
	newAverage := (current + duration.Nanoseconds()) / 2
	atomic.StoreInt64(&m.AverageResponseTime, newAverage)

	// Keep the last 1000 samples for percentiles
	m.ResponseTimesMutex.Lock()
	m.ResponseTimes = append(m.ResponseTimes, duration)
	if len(m.ResponseTimes) > 1000 {
		m.ResponseTimes = m.ResponseTimes[1:]
	}
	m.ResponseTimesMutex.Unlock()
}

// RecordRequestByStatus records request count by HTTP status code
func (m *Metrics) RecordRequestByStatus(statusCode int) {
	m.StatusMutex.Lock()
	defer m.StatusMutex.Unlock()
	m.RequestCountByStatus[statusCode]++
}

// GetPercentileResponseTime calculates percentile response time
func (m *Metrics) GetPercentileResponseTime(percentile float64) time.Duration {
	m.ResponseTimesMutex.RLock()
	defer m.ResponseTimesMutex.RUnlock()

	if len(m.ResponseTimes) == 0 {
		return 0
	}

	times := make([]time.Duration, len(m.ResponseTimes))
	copy(times, m.ResponseTimes)

	sort.Slice(times, func(i, j int) bool {
		return times[i] < times[j]
	})

	index := int(float64(len(times)-1) * percentile / 100.0)
	if index >= len(times) {
		index = len(times) - 1
	}

	return times[index]
}

// GetStatusCodeDistribution returns request count by status code
func (m *Metrics) GetStatusCodeDistribution() map[int]int64 {
	m.StatusMutex.RLock()
	defer m.StatusMutex.RUnlock()

	distribution := make(map[int]int64, len(m.RequestCountByStatus))
	for code, count := range m.RequestCountByStatus {
		distribution[code] = count
	}
	return distribution
}

// GetExplanationStats returns explanation counts by method
func (m *Metrics) GetExplanationStats() map[string]int64 {
	m.ExplanationMutex.RLock()
	defer m.ExplanationMutex.RUnlock()

	out := make(map[string]int64, len(m.ExplanationsByMethod))
	for method, count := range m.ExplanationsByMethod {
		out[method] = count
	}
	return out
}

// GetStats returns current metrics statistics
func (m *Metrics) GetStats() map[string]any {
	requests := atomic.LoadInt64(&m.RequestCount)
	errors := atomic.LoadInt64(&m.ErrorCount)
	avgResponseTime := atomic.LoadInt64(&m.AverageResponseTime)

	errorRate := float64(0)
	if requests > 0 {
		errorRate = float64(errors) / float64(requests) * 100
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return map[string]any{
		"uptime_seconds":       time.Since(m.StartTime).Seconds(),
		"total_requests":       requests,
		"error_count":          errors,
		"error_rate_percent":   errorRate,
		"avg_response_time_ms": float64(avgResponseTime) / 1000000,
		"start_time":           m.StartTime.Format(time.RFC3339),

		"p50_response_time_ms":     float64(m.GetPercentileResponseTime(50)) / 1000000,
		"p95_response_time_ms":     float64(m.GetPercentileResponseTime(95)) / 1000000,
		"p99_response_time_ms":     float64(m.GetPercentileResponseTime(99)) / 1000000,
		"status_code_distribution": m.GetStatusCodeDistribution(),

		"predictions":            atomic.LoadInt64(&m.Predictions),
		"prediction_failures":    atomic.LoadInt64(&m.PredictionFailures),
		"validation_failures":    atomic.LoadInt64(&m.ValidationFailures),
		"explanation_failures":   atomic.LoadInt64(&m.ExplanationFailures),
		"explanations_by_method": m.GetExplanationStats(),
		"kernel_fallbacks":       atomic.LoadInt64(&m.Fallbacks),
		"rate_limit_blocks":      atomic.LoadInt64(&m.RateLimitBlocks),

		"go_goroutines":        runtime.NumGoroutine(),
		"go_gc_count":          mem.NumGC,
		"go_gc_pause_total_ns": mem.PauseTotalNs,
		"go_heap_alloc_bytes":  mem.HeapAlloc,
		"go_heap_sys_bytes":    mem.HeapSys,
	}
}

// Reset resets all metrics (useful for testing)
func (m *Metrics) Reset() {
	atomic.StoreInt64(&m.RequestCount, 0)
	atomic.StoreInt64(&m.ErrorCount, 0)
	atomic.StoreInt64(&m.AverageResponseTime, 0)
	atomic.StoreInt64(&m.Predictions, 0)
	atomic.StoreInt64(&m.PredictionFailures, 0)
	atomic.StoreInt64(&m.ValidationFailures, 0)
	atomic.StoreInt64(&m.ExplanationFailures, 0)
	atomic.StoreInt64(&m.Fallbacks, 0)
	atomic.StoreInt64(&m.RateLimitBlocks, 0)

	m.ResponseTimesMutex.Lock()
	m.ResponseTimes = m.ResponseTimes[:0]
	m.ResponseTimesMutex.Unlock()

	m.StatusMutex.Lock()
	m.RequestCountByStatus = make(map[int]int64)
	m.StatusMutex.Unlock()

	m.ExplanationMutex.Lock()
	m.ExplanationsByMethod = make(map[string]int64)
	m.ExplanationMutex.Unlock()

	m.StartTime = time.Now()
}
