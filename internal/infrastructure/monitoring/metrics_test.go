package monitoring

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordCommand("completed", time.Second)
		m.TicketAcquired(time.Millisecond)
		m.TicketReleased()
		m.ObserveSpawn("/bin/sh", errors.New("boom"))
		m.IncWSConnections()
		_ = m.Snapshot()
	})
}

func TestIndependentRegistries(t *testing.T) {
	a := NewMetrics()
	b := NewMetrics()

	a.RecordCommand("completed", time.Second)
	assert.Equal(t, 1.0, testutil.ToFloat64(a.CommandsTotal.WithLabelValues("completed")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.CommandsTotal.WithLabelValues("completed")))
}

func TestTicketGauges(t *testing.T) {
	m := NewMetrics()
	m.TicketAcquired(10 * time.Millisecond)
	m.TicketAcquired(0)
	m.TicketReleased()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.TicketsInUse))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CommandsRunning))
}

func TestSnapshot(t *testing.T) {
	m := NewMetrics()
	m.RecordHTTPRequest("GET", "/health", "200", 100*time.Millisecond, 0, 10)
	m.RecordHTTPRequest("POST", "/execute", "500", 300*time.Millisecond, 20, 10)
	m.RecordCommand("failed", time.Second)
	m.ObserveSpawn("/missing", errors.New("not found"))
	m.ObserveSpawn("/bin/sh", nil)

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.TotalRequests)
	assert.Equal(t, int64(1), snap.TotalErrors)
	assert.InDelta(t, 0.2, snap.AvgRequestSeconds, 1e-9)
	assert.Equal(t, int64(1), snap.CommandsFailed)
	assert.Equal(t, int64(1), snap.SpawnFailures)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SpawnsTotal.WithLabelValues("success")))
}

func TestMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics()

	router := gin.New()
	router.Use(Middleware(m))
	router.GET("/sessions/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	router.GET("/metrics", gin.WrapH(m.Handler()))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sessions/sess_1", nil))
	require.Equal(t, http.StatusNoContent, w.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/sessions/:id", "204")))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ptyexec_http_requests_total")
	assert.Contains(t, w.Body.String(), "ptyexec_uptime_seconds")
}
