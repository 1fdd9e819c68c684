package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"

	apihttp "github.com/GriffinCanCode/ptyexec/internal/api/http"
	"github.com/GriffinCanCode/ptyexec/internal/api/middleware"
	"github.com/GriffinCanCode/ptyexec/internal/api/ws"
	"github.com/GriffinCanCode/ptyexec/internal/domain/executor"
	"github.com/GriffinCanCode/ptyexec/internal/infrastructure/config"
	"github.com/GriffinCanCode/ptyexec/internal/infrastructure/logging"
	"github.com/GriffinCanCode/ptyexec/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/ptyexec/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/ptyexec/internal/pty"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	router   *gin.Engine
	http     *http.Server
	executor *executor.Executor
	tracer   *tracing.Tracer
	metrics  *monitoring.Metrics
	logger   *logging.Logger
	config   *config.Config
}

// NewLogger builds the process logger from the logging section
func NewLogger(cfg config.LogConfig) (*logging.Logger, error) {
	logCfg := logging.DefaultConfig()
	if cfg.Development {
		logCfg = logging.DevelopmentConfig()
	}
	if cfg.Level != "" {
		logCfg.Level = cfg.Level
	}
	return logging.New(logCfg)
}

// NewServer creates a server that spawns real PTY processes
func NewServer(cfg *config.Config) (*Server, error) {
	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	metrics := monitoring.NewMetrics()
	allocator := pty.NewManager(logger.Component("pty")).WithObserver(metrics)
	return New(cfg, logger, allocator, metrics)
}

// New creates a server around the given allocator. metrics may be nil.
func New(cfg *config.Config, logger *logging.Logger, allocator pty.Allocator, metrics *monitoring.Metrics) (*Server, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	if metrics == nil {
		metrics = monitoring.NewMetrics()
	}

	logger.Info("Initializing ptyexec server",
		zap.String("port", cfg.Server.Port),
		zap.String("binary", cfg.Executor.Binary),
		zap.String("mode", cfg.Executor.Mode),
		zap.Int("max_concurrent", cfg.Executor.MaxConcurrent),
	)

	tracer := tracing.New("ptyexec", logger.Component("tracing"))

	exec, err := executor.New(cfg.Executor.ToExecutor(), allocator, logger.Component("executor"))
	if err != nil {
		tracer.Close()
		return nil, fmt.Errorf("failed to create executor: %w", err)
	}
	exec.WithMetrics(metrics).WithTracer(tracer)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(monitoring.Middleware(metrics))

	cors := middleware.DefaultCORSConfig()
	if len(cfg.Server.CORSOrigins) > 0 {
		cors.AllowOrigins = cfg.Server.CORSOrigins
		cors.AllowCredentials = true
	}
	router.Use(middleware.CORS(cors))
	router.Use(middleware.Gzip(gzip.DefaultCompression, "/execute", "/stream", "/metrics"))

	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	apihttp.NewHandlers(exec, metrics, logger.Component("http")).Register(router)
	router.GET("/stream", ws.NewHandler(exec, metrics, logger.Component("ws")).HandleConnection)

	logger.Info("Server initialized successfully")

	return &Server{
		router:   router,
		executor: exec,
		tracer:   tracer,
		metrics:  metrics,
		logger:   logger,
		config:   cfg,
		http: &http.Server{
			Addr:    net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
			Handler: router,
		},
	}, nil
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Executor returns the command executor
func (s *Server) Executor() *executor.Executor {
	return s.executor
}

// Run starts the HTTP server and blocks until it stops. A graceful Shutdown
// makes Run return nil.
func (s *Server) Run() error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, terminates every session and flushes
// telemetry.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")

	err := s.http.Shutdown(ctx)
	if err != nil {
		s.logger.Error("HTTP shutdown incomplete", zap.Error(err))
	}

	s.executor.Cleanup()
	s.tracer.Close()
	_ = s.logger.Sync()

	return err
}
