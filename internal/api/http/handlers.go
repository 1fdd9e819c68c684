package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/ptyexec/internal/domain/executor"
	"github.com/GriffinCanCode/ptyexec/internal/infrastructure/logging"
	"github.com/GriffinCanCode/ptyexec/internal/infrastructure/monitoring"
)

// Handlers contains all HTTP handlers
type Handlers struct {
	executor  *executor.Executor
	metrics   *monitoring.Metrics
	logger    *zap.Logger
	startedAt time.Time
}

// NewHandlers creates a new handler set. metrics and logger may be nil.
func NewHandlers(exec *executor.Executor, metrics *monitoring.Metrics, logger *zap.Logger) *Handlers {
	return &Handlers{
		executor:  exec,
		metrics:   metrics,
		logger:    logging.OrNop(logger),
		startedAt: time.Now(),
	}
}

// Register mounts every route on r
func (h *Handlers) Register(r gin.IRouter) {
	r.GET("/", h.Root)
	r.GET("/health", h.Health)

	r.POST("/execute", h.Execute)
	r.POST("/commands/:id/input", h.SendInput)
	r.POST("/commands/:id/resize", h.Resize)
	r.POST("/commands/:id/cancel", h.Cancel)

	r.GET("/sessions", h.ListSessions)
	r.POST("/sessions", h.OpenSession)
	r.GET("/sessions/:id", h.GetSession)
	r.DELETE("/sessions/:id", h.CloseSession)

	r.GET("/stats", h.Stats)
	if h.metrics != nil {
		r.GET("/metrics", gin.WrapH(h.metrics.Handler()))
	}
}

// Root handles service discovery
func (h *Handlers) Root(c *gin.Context) {
	cfg := h.executor.Config()
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "ptyexec",
		"binary":  cfg.BinaryPath,
		"mode":    cfg.Mode,
	})
}

// Health handles detailed health check
func (h *Handlers) Health(c *gin.Context) {
	stats := h.executor.Stats()
	c.JSON(http.StatusOK, gin.H{
		"status":         "healthy",
		"sessions":       stats.Sessions,
		"running":        stats.Running,
		"max_concurrent": stats.MaxConcurrent,
		"uptime_seconds": time.Since(h.startedAt).Seconds(),
	})
}

func fail(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{
		"success": false,
		"error":   message,
	})
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, executor.ErrEmptyCommand):
		return http.StatusBadRequest
	case errors.Is(err, executor.ErrSessionExists):
		return http.StatusConflict
	case errors.Is(err, executor.ErrExecutorClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
