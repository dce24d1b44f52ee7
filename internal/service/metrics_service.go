package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/andalan-id/service-center-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for API consumption.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	handoffs        prometheus.Counter
	ticketsOpened   *prometheus.CounterVec
	ticketsResolved *prometheus.CounterVec
	ticketsBreached prometheus.Counter
	sweepSize       prometheus.Histogram
	overdueTickets  prometheus.Gauge

	requestCount         uint64
	requestDurationTotal uint64
	transitionCount      uint64
	handoffCount         uint64
	openedCount          uint64
	resolvedCount        uint64
	breachedCount        uint64
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

	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "assignment_transitions_total",
		Help: "Assignment state machine transitions by event",
	}, []string{"event"})

	handoffs := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "assignment_handoffs_total",
		Help: "Total assignment handoffs",
	})

	ticketsOpened := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sla_tickets_opened_total",
		Help: "SLA tickets opened by kind",
	}, []string{"kind"})

	ticketsResolved := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sla_tickets_resolved_total",
		Help: "SLA tickets resolved by outcome",
	}, []string{"outcome"})

	ticketsBreached := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sla_tickets_breached_total",
		Help: "SLA tickets flipped to breached by the sweeper",
	})

	sweepSize := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sla_sweep_breached_tickets",
		Help:    "Tickets breached per sweep pass",
		Buckets: []float64{0, 1, 5, 10, 50, 100, 500},
	})

	overdueTickets := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sla_tickets_overdue",
		Help: "Active tickets currently past due",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, transitions, handoffs,
		ticketsOpened, ticketsResolved, ticketsBreached, sweepSize, overdueTickets, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		transitions:     transitions,
		handoffs:        handoffs,
		ticketsOpened:   ticketsOpened,
		ticketsResolved: ticketsResolved,
		ticketsBreached: ticketsBreached,
		sweepSize:       sweepSize,
		overdueTickets:  overdueTickets,
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

// IncAssignmentTransition counts one committed state machine transition.
func (m *MetricsService) IncAssignmentTransition(event string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(event).Inc()
	atomic.AddUint64(&m.transitionCount, 1)
}

// IncHandoff counts one committed handoff.
func (m *MetricsService) IncHandoff() {
	if m == nil {
		return
	}
	m.handoffs.Inc()
	atomic.AddUint64(&m.handoffCount, 1)
}

// IncTicketOpened counts one opened SLA ticket.
func (m *MetricsService) IncTicketOpened(kind string) {
	if m == nil {
		return
	}
	m.ticketsOpened.WithLabelValues(kind).Inc()
	atomic.AddUint64(&m.openedCount, 1)
}

// IncTicketResolved counts one terminal ticket outcome.
func (m *MetricsService) IncTicketResolved(outcome string) {
	if m == nil {
		return
	}
	m.ticketsResolved.WithLabelValues(outcome).Inc()
	atomic.AddUint64(&m.resolvedCount, 1)
}

// ObserveSweep records one breach sweep pass.
func (m *MetricsService) ObserveSweep(breached int) {
	if m == nil {
		return
	}
	m.sweepSize.Observe(float64(breached))
	if breached > 0 {
		m.ticketsBreached.Add(float64(breached))
		atomic.AddUint64(&m.breachedCount, uint64(breached))
	}
}

// SetOverdueTickets publishes the current overdue gauge.
func (m *MetricsService) SetOverdueTickets(n int) {
	if m == nil {
		return
	}
	m.overdueTickets.Set(float64(n))
}

// Snapshot returns aggregated metrics suitable for dashboard endpoints.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	return models.SystemMetrics{
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		AssignmentTransitions:    atomic.LoadUint64(&m.transitionCount),
		Handoffs:                 atomic.LoadUint64(&m.handoffCount),
		TicketsOpened:            atomic.LoadUint64(&m.openedCount),
		TicketsResolved:          atomic.LoadUint64(&m.resolvedCount),
		TicketsBreached:          atomic.LoadUint64(&m.breachedCount),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
