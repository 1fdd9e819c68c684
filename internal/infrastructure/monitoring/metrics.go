package monitoring

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. Every method is safe on a nil
// receiver so components can run without metrics.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestSize     *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec

	// Command metrics
	CommandsTotal   *prometheus.CounterVec
	CommandDuration *prometheus.HistogramVec
	CommandsRunning prometheus.Gauge

	// Admission metrics
	TicketsInUse  prometheus.Gauge
	AdmissionWait prometheus.Histogram

	// Session metrics
	SessionsActive     prometheus.Gauge
	SessionTransitions *prometheus.CounterVec
	SpawnsTotal        *prometheus.CounterVec

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	startTime time.Time

	// Snapshot for JSON API - track current values
	snapshot MetricsSnapshot
	mu       sync.RWMutex
}

// MetricsSnapshot holds current metric values for JSON API
type MetricsSnapshot struct {
	TotalRequests     int64   `json:"total_requests"`
	TotalErrors       int64   `json:"total_errors"`
	ActiveConnections int64   `json:"active_connections"`
	CommandsTotal     int64   `json:"commands_total"`
	CommandsFailed    int64   `json:"commands_failed"`
	SpawnFailures     int64   `json:"spawn_failures"`
	AvgRequestSeconds float64 `json:"avg_request_seconds"`
	UptimeSeconds     float64 `json:"uptime_seconds"`

	totalDuration float64
}

// NewMetrics creates a collector with its own registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewMetricsWithRegistry(reg)
}

// NewMetricsWithRegistry registers every metric on reg
func NewMetricsWithRegistry(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		// HTTP metrics
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ptyexec_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ptyexec_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		RequestSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ptyexec_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000},
			},
			[]string{"method", "path"},
		),
		ResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ptyexec_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "path"},
		),

		// Command metrics
		CommandsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ptyexec_commands_total",
				Help: "Total number of finished commands by outcome",
			},
			[]string{"status"},
		),
		CommandDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ptyexec_command_duration_seconds",
				Help:    "Command running time in seconds",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"status"},
		),
		CommandsRunning: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "ptyexec_commands_running",
				Help: "Number of commands currently holding an admission ticket",
			},
		),

		// Admission metrics
		TicketsInUse: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "ptyexec_admission_tickets_in_use",
				Help: "Number of admission tickets currently held",
			},
		),
		AdmissionWait: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ptyexec_admission_wait_seconds",
				Help:    "Time spent waiting for an admission ticket",
				Buckets: []float64{.001, .01, .1, .5, 1, 5, 10, 30, 60},
			},
		),

		// Session metrics
		SessionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "ptyexec_sessions_active",
				Help: "Number of live sessions",
			},
		),
		SessionTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ptyexec_session_transitions_total",
				Help: "Session state transitions",
			},
			[]string{"from", "to"},
		),
		SpawnsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ptyexec_spawns_total",
				Help: "Process spawns by result",
			},
			[]string{"result"},
		),

		// WebSocket metrics
		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "ptyexec_ws_connections",
				Help: "Number of active WebSocket connections",
			},
		),
		WSMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ptyexec_ws_messages_total",
				Help: "Total number of WebSocket messages",
			},
			[]string{"direction", "type"},
		),
	}

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "ptyexec_uptime_seconds",
			Help: "Service uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, reqSize, respSize int64) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.RequestSize.WithLabelValues(method, path).Observe(float64(reqSize))
	m.ResponseSize.WithLabelValues(method, path).Observe(float64(respSize))

	m.mu.Lock()
	m.snapshot.TotalRequests++
	m.snapshot.totalDuration += duration.Seconds()
	if status != "" && (status[0] == '4' || status[0] == '5') {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordCommand records a finished command
func (m *Metrics) RecordCommand(status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.CommandsTotal.WithLabelValues(status).Inc()
	m.CommandDuration.WithLabelValues(status).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.CommandsTotal++
	if status == "failed" {
		m.snapshot.CommandsFailed++
	}
	m.mu.Unlock()
}

// TicketAcquired records a granted admission ticket and its wait
func (m *Metrics) TicketAcquired(wait time.Duration) {
	if m == nil {
		return
	}
	m.TicketsInUse.Inc()
	m.CommandsRunning.Inc()
	m.AdmissionWait.Observe(wait.Seconds())
}

// TicketReleased records a returned admission ticket
func (m *Metrics) TicketReleased() {
	if m == nil {
		return
	}
	m.TicketsInUse.Dec()
	m.CommandsRunning.Dec()
}

// RecordSessionTransition records a session state change
func (m *Metrics) RecordSessionTransition(from, to string) {
	if m == nil {
		return
	}
	m.SessionTransitions.WithLabelValues(from, to).Inc()
}

// SetSessionsActive sets the number of live sessions
func (m *Metrics) SetSessionsActive(count int) {
	if m == nil {
		return
	}
	m.SessionsActive.Set(float64(count))
}

// ObserveSpawn records the result of a process spawn
func (m *Metrics) ObserveSpawn(_ string, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.SpawnsTotal.WithLabelValues("failure").Inc()
		m.mu.Lock()
		m.snapshot.SpawnFailures++
		m.mu.Unlock()
		return
	}
	m.SpawnsTotal.WithLabelValues("success").Inc()
}

// RecordWSMessage records a WebSocket message
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Inc()
	m.mu.Lock()
	m.snapshot.ActiveConnections++
	m.mu.Unlock()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Dec()
	m.mu.Lock()
	m.snapshot.ActiveConnections--
	m.mu.Unlock()
}

// Snapshot returns the current values for the JSON API
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := m.snapshot
	if snap.TotalRequests > 0 {
		snap.AvgRequestSeconds = snap.totalDuration / float64(snap.TotalRequests)
	}
	snap.UptimeSeconds = time.Since(m.startTime).Seconds()
	return snap
}
