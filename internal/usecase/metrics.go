package usecase

import (
	"sync"
	"time"
)

// MetricsSummary represents aggregated diagnosis insights since process start.
type MetricsSummary struct {
	TotalRequests            int64   `json:"total_requests"`
	RejectedUploads          int64   `json:"rejected_uploads"`
	SuccessfulAnalyses       int64   `json:"successful_analyses"`
	FailedAnalyses           int64   `json:"failed_analyses"`
	TimedOutAnalyses         int64   `json:"timed_out_analyses"`
	SuccessRate              float64 `json:"success_rate"`
	AverageAnalyzerLatencyMs float64 `json:"average_analyzer_latency_ms"`
}

// Metrics counts diagnosis outcomes in memory. Nothing survives a restart.
type Metrics struct {
	mu           sync.Mutex
	total        int64
	rejected     int64
	succeeded    int64
	failed       int64
	timedOut     int64
	analyzed     int64
	totalLatency time.Duration
}

// NewMetrics returns zeroed counters.
func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) recordRejected() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.total++
	m.rejected++
}

func (m *Metrics) recordAnalysis(d *Diagnosis, latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.total++
	m.analyzed++
	m.totalLatency += latency
	switch {
	case d.Succeeded():
		m.succeeded++
	case d.Result != nil && d.Result.TimedOut:
		m.timedOut++
		m.failed++
	default:
		m.failed++
	}
}

func (m *Metrics) recordError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.total++
}

// Summary returns a snapshot of the counters.
func (m *Metrics) Summary() MetricsSummary {
	m.mu.Lock()
	defer m.mu.Unlock()

	summary := MetricsSummary{
		TotalRequests:      m.total,
		RejectedUploads:    m.rejected,
		SuccessfulAnalyses: m.succeeded,
		FailedAnalyses:     m.failed,
		TimedOutAnalyses:   m.timedOut,
	}
	if m.analyzed > 0 {
		summary.SuccessRate = float64(m.succeeded) / float64(m.analyzed)
		summary.AverageAnalyzerLatencyMs = float64(m.totalLatency) / float64(time.Millisecond) / float64(m.analyzed)
	}
	return summary
}

// GetMetricsSummary aggregates the outcomes of every Diagnose call so far.
func (uc *DiagnosisUseCase) GetMetricsSummary() MetricsSummary {
	return uc.metrics.Summary()
}
