package middleware

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"
)

// Metrics stores application metrics
type Metrics struct {
	RequestsTotal      atomic.Uint64
	RequestsInProgress atomic.Int64
	RequestsSuccess    atomic.Uint64
	RequestsFailed     atomic.Uint64

	AnalysesTotal    atomic.Uint64
	AnalysesRunning  atomic.Int64
	AnalysesFailed   atomic.Uint64
	AnalysesRejected atomic.Uint64
	CacheHits        atomic.Uint64
	BytesAnalyzed    atomic.Uint64

	StartTime time.Time
}

// NewMetrics returns a zeroed Metrics starting now.
func NewMetrics() *Metrics {
	return &Metrics{StartTime: time.Now()}
}

// Outcome classifies a finished analysis request.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeRejected
	OutcomeFailed
)

// AnalysisStarted marks one analysis in flight. Call the returned func with
// the outcome when it finishes.
func (m *Metrics) AnalysisStarted() func(size int, o Outcome) {
	m.AnalysesTotal.Add(1)
	m.AnalysesRunning.Add(1)
	return func(size int, o Outcome) {
		m.AnalysesRunning.Add(-1)
		switch o {
		case OutcomeRejected:
			m.AnalysesRejected.Add(1)
		case OutcomeFailed:
			m.AnalysesFailed.Add(1)
		default:
			m.BytesAnalyzed.Add(uint64(size))
		}
	}
}

// CacheHit counts a report served from the result cache.
func (m *Metrics) CacheHit() { m.CacheHits.Add(1) }

// Snapshot returns current metrics
func (m *Metrics) Snapshot() map[string]any {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	return map[string]any{
		"requests_total":       m.RequestsTotal.Load(),
		"requests_in_progress": m.RequestsInProgress.Load(),
		"requests_success":     m.RequestsSuccess.Load(),
		"requests_failed":      m.RequestsFailed.Load(),
		"analyses_total":       m.AnalysesTotal.Load(),
		"analyses_running":     m.AnalysesRunning.Load(),
		"analyses_failed":      m.AnalysesFailed.Load(),
		"analyses_rejected":    m.AnalysesRejected.Load(),
		"cache_hits":           m.CacheHits.Load(),
		"bytes_analyzed":       m.BytesAnalyzed.Load(),
		"uptime_seconds":       time.Since(m.StartTime).Seconds(),
		"memory": map[string]any{
			"alloc_bytes":       ms.Alloc,
			"total_alloc_bytes": ms.TotalAlloc,
			"sys_bytes":         ms.Sys,
			"num_gc":            ms.NumGC,
		},
		"goroutines": runtime.NumGoroutine(),
	}
}

// Middleware tracks request metrics
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.RequestsTotal.Add(1)
		m.RequestsInProgress.Add(1)
		defer m.RequestsInProgress.Add(-1)

		wrapped := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(wrapped, r)

		if wrapped.statusCode >= 200 && wrapped.statusCode < 400 {
			m.RequestsSuccess.Add(1)
		} else {
			m.RequestsFailed.Add(1)
		}
	})
}

// Handler returns metrics as JSON
func (m *Metrics) Handler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(m.Snapshot())
}
