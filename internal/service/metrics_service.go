package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gatewise/vms-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation and provides
// lightweight snapshots for the dashboard.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	smsTotal        *prometheus.CounterVec
	decisionTotal   *prometheus.CounterVec
	checkInTotal    prometheus.Counter
	dbQueryDuration *prometheus.HistogramVec

	requestCount         uint64
	requestDurationTotal uint64
	smsSentCount         uint64
	smsFailedCount       uint64
	checkInCount         uint64
	dbQueryCount         uint64
	dbQueryDurationTotal uint64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	smsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sms_messages_total",
		Help: "Outbound SMS messages by outcome",
	}, []string{"kind", "outcome"})

	decisionTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "visitor_decisions_total",
		Help: "Visitor approval decisions by status and channel",
	}, []string{"status", "channel"})

	checkInTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "visitor_check_ins_total",
		Help: "Total visitor check-ins recorded",
	})

	dbQueryDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "db_query_duration_seconds",
		Help:    "Duration of database queries",
		Buckets: prometheus.DefBuckets,
	}, []string{"query"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, smsTotal, decisionTotal, checkInTotal, dbQueryDuration, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		smsTotal:        smsTotal,
		decisionTotal:   decisionTotal,
		checkInTotal:    checkInTotal,
		dbQueryDuration: dbQueryDuration,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordSMS counts an outbound message attempt. Kind distinguishes
// check-in alerts from visitor notices.
func (m *MetricsService) RecordSMS(kind string, sent bool) {
	if m == nil {
		return
	}
	outcome := "sent"
	if sent {
		atomic.AddUint64(&m.smsSentCount, 1)
	} else {
		outcome = "failed"
		atomic.AddUint64(&m.smsFailedCount, 1)
	}
	m.smsTotal.WithLabelValues(kind, outcome).Inc()
}

// RecordDecision counts an approval or rejection. Channel is either
// "dashboard" or "sms".
func (m *MetricsService) RecordDecision(status models.VisitorStatus, channel string) {
	if m == nil {
		return
	}
	m.decisionTotal.WithLabelValues(string(status), channel).Inc()
}

// RecordCheckIn counts a completed visitor intake.
func (m *MetricsService) RecordCheckIn() {
	if m == nil {
		return
	}
	m.checkInTotal.Inc()
	atomic.AddUint64(&m.checkInCount, 1)
}

// ObserveDBQuery records database query timing.
func (m *MetricsService) ObserveDBQuery(label string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dbQueryDuration.WithLabelValues(label).Observe(duration.Seconds())
	atomic.AddUint64(&m.dbQueryCount, 1)
	atomic.AddUint64(&m.dbQueryDurationTotal, uint64(duration.Nanoseconds()))
}

// Snapshot returns aggregated metrics suitable for the dashboard.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)
	dbCount := atomic.LoadUint64(&m.dbQueryCount)
	dbDuration := atomic.LoadUint64(&m.dbQueryDurationTotal)

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	var avgDBMs float64
	if dbCount > 0 {
		avgDBMs = float64(dbDuration) / float64(dbCount) / float64(time.Millisecond)
	}

	return models.SystemMetrics{
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		SMSSent:                  atomic.LoadUint64(&m.smsSentCount),
		SMSFailed:                atomic.LoadUint64(&m.smsFailedCount),
		CheckIns:                 atomic.LoadUint64(&m.checkInCount),
		DBQueryCount:             dbCount,
		AverageDBQueryDurationMs: avgDBMs,
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
