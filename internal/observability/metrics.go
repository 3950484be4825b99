package observability

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	types "github.com/yungbote/verbatim-backend/internal/domain"
	domainAnalysis "github.com/yungbote/verbatim-backend/internal/domain/analysis"
	"github.com/yungbote/verbatim-backend/internal/platform/logger"
)

// Metrics holds the process counters served on /metrics. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	apiRequests   *CounterVec
	apiLatency    *HistogramVec
	apiInflight   *GaugeVec
	aiRequests    *CounterVec
	aiLatency     *HistogramVec
	stageDuration *HistogramVec
	sessions      *GaugeVec
	indexOps      *CounterVec
	indexLatency  *HistogramVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		apiRequests: NewCounterVec("verbatim_api_requests_total", "HTTP requests by route and status.", []string{"method", "route", "status"}),
		apiLatency:  NewHistogramVec("verbatim_api_request_seconds", "HTTP request latency.", []string{"method", "route"}, nil),
		apiInflight: NewGaugeVec("verbatim_api_inflight", "HTTP requests in flight.", nil),
		aiRequests:  NewCounterVec("verbatim_ai_requests_total", "AI completions by task and outcome.", []string{"task", "status"}),
		aiLatency: NewHistogramVec("verbatim_ai_request_seconds", "AI completion latency.", []string{"task"},
			[]float64{0.5, 1, 2, 5, 10, 20, 40, 80}),
		stageDuration: NewHistogramVec("verbatim_stage_seconds", "Pipeline stage duration.", []string{"stage", "status"},
			[]float64{1, 5, 15, 30, 60, 120, 300, 600}),
		sessions:      NewGaugeVec("verbatim_sessions", "Analysis sessions by status.", []string{"status"}),
		indexOps:      NewCounterVec("verbatim_index_requests_total", "Vector index operations.", []string{"provider", "operation", "status"}),
		indexLatency:  NewHistogramVec("verbatim_index_request_seconds", "Vector index latency.", []string{"provider", "operation"}, nil),
	}
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.apiRequests.Inc(method, route, status)
	m.apiLatency.Observe(dur.Seconds(), method, route)
}

func (m *Metrics) APIInflight(delta float64) {
	if m == nil {
		return
	}
	m.apiInflight.Add(delta)
}

func (m *Metrics) ObserveAI(task, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.aiRequests.Inc(task, status)
	m.aiLatency.Observe(dur.Seconds(), task)
}

// ObserveStage records one pipeline stage; status is "ok" or "failed".
func (m *Metrics) ObserveStage(stage, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.Observe(dur.Seconds(), stage, status)
}

func (m *Metrics) ObserveIndex(provider, operation, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.indexOps.Inc(provider, operation, status)
	m.indexLatency.Observe(dur.Seconds(), provider, operation)
}

// IndexOps reads one index counter.
func (m *Metrics) IndexOps(provider, operation, status string) float64 {
	if m == nil {
		return 0
	}
	return m.indexOps.Value(provider, operation, status)
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	for _, wr := range []interface{ WritePrometheus(io.Writer) error }{
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.aiRequests, m.aiLatency,
		m.stageDuration, m.sessions,
		m.indexOps, m.indexLatency,
	} {
		if err := wr.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

// StartSessionCollector refreshes the per-status session gauge until ctx ends.
func (m *Metrics) StartSessionCollector(ctx context.Context, log *logger.Logger, db *gorm.DB, interval time.Duration) {
	if m == nil || db == nil {
		return
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := m.CollectSessions(ctx, db); err != nil && log != nil {
					log.Warn("metrics: session status query failed", "error", err)
				}
			}
		}
	}()
}

func (m *Metrics) CollectSessions(ctx context.Context, db *gorm.DB) error {
	var rows []struct {
		Status string
		Count  int64
	}
	if err := db.WithContext(ctx).
		Model(&types.AnalysisSession{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return err
	}
	for _, s := range []string{
		domainAnalysis.SessionStatusCreated,
		domainAnalysis.SessionStatusProcessing,
		domainAnalysis.SessionStatusCompleted,
		domainAnalysis.SessionStatusFailed,
	} {
		m.sessions.Set(0, s)
	}
	for _, row := range rows {
		status := strings.TrimSpace(row.Status)
		if status == "" {
			status = "unknown"
		}
		m.sessions.Set(float64(row.Count), status)
	}
	return nil
}

// StatusLabel turns an HTTP status code into a metric label.
func StatusLabel(code int) string { return strconv.Itoa(code) }
