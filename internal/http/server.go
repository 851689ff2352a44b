// Package http exposes the personad HTTP API.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/personad/internal/config"
	"github.com/fyrsmithlabs/personad/internal/logging"
	"github.com/fyrsmithlabs/personad/internal/processor"
)

// DefaultShutdownTimeout bounds the drain when the config leaves it unset.
const DefaultShutdownTimeout = 10 * time.Second

// Options carries the optional collaborators for NewServer.
type Options struct {
	// Version is reported by the health endpoint.
	Version string

	// NATSStatus reports the event broker connection state. Nil means
	// events are disabled.
	NATSStatus func() string

	// Logger defaults to a nop logger.
	Logger *logging.Logger
}

// Server serves the processing API, health, stats, and metrics endpoints.
type Server struct {
	echo       *echo.Echo
	svc        processor.Service
	logger     *logging.Logger
	cfg        config.ServerConfig
	version    string
	natsStatus func() string
}

// NewServer assembles the echo server around a processor service.
func NewServer(svc processor.Service, cfg config.ServerConfig, opts Options) (*Server, error) {
	if svc == nil {
		return nil, fmt.Errorf("processor service cannot be nil")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = cfg.ReadTimeout
	e.Server.WriteTimeout = cfg.WriteTimeout

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			logger.Info(c.Request().Context(), "http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	})
	e.Use(NewHTTPMetrics(logger).MetricsMiddleware())

	s := &Server{
		echo:       e,
		svc:        svc,
		logger:     logger,
		cfg:        cfg,
		version:    opts.Version,
		natsStatus: opts.NATSStatus,
	}
	s.registerRoutes()

	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/v1")
	v1.POST("/messages", s.handleProcess, s.rateLimit())
	v1.GET("/stats", s.handleStats)
}

// rateLimit returns the limiter for the message endpoint, or a pass-through
// when disabled.
func (s *Server) rateLimit() echo.MiddlewareFunc {
	if !s.cfg.RateLimit.Enabled {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(s.cfg.RateLimit.RPS),
		Burst:     s.cfg.RateLimit.Burst,
		ExpiresIn: 3 * time.Minute,
	})
	return middleware.RateLimiter(store)
}

// ProcessRequest is the request body for POST /v1/messages.
type ProcessRequest struct {
	Text      string            `json:"text"`
	SessionID string            `json:"session_id"`
	UserID    string            `json:"user_id,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status   string            `json:"status"`
	Version  string            `json:"version,omitempty"`
	Services map[string]string `json:"services"`
}

// handleProcess runs one message through the pipeline. ?trace=1 includes
// the execution trace in the response.
func (s *Server) handleProcess(c echo.Context) error {
	ctx := c.Request().Context()

	var req ProcessRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn(ctx, "invalid message request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	resp, err := s.svc.Process(ctx, processor.Request{
		Text:      req.Text,
		SessionID: req.SessionID,
		UserID:    req.UserID,
		Metadata:  req.Metadata,
		Trace:     c.QueryParam("trace") == "1",
	})
	switch {
	case errors.Is(err, processor.ErrInvalidRequest):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, processor.ErrClosed):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "processor is shut down")
	case err != nil:
		s.logger.Error(ctx, "message processing failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "processing failed")
	}

	// Run-level failures ride inside the body; the request itself succeeded.
	return c.JSON(http.StatusOK, resp)
}

// handleHealth reports daemon, store, and broker status.
func (s *Server) handleHealth(c echo.Context) error {
	ctx := c.Request().Context()

	status := "ok"
	services := map[string]string{}
	if err := s.svc.Healthy(ctx); err != nil {
		status = "degraded"
		services["store"] = err.Error()
	} else {
		services["store"] = "ok"
	}
	if s.natsStatus != nil {
		services["nats"] = s.natsStatus()
	} else {
		services["nats"] = "disabled"
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, HealthResponse{
		Status:   status,
		Version:  s.version,
		Services: services,
	})
}

// handleStats returns rolling run statistics for the monitor.
func (s *Server) handleStats(c echo.Context) error {
	stats, err := s.svc.Stats(c.Request().Context())
	if err != nil {
		if errors.Is(err, processor.ErrClosed) {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "processor is shut down")
		}
		s.logger.Error(c.Request().Context(), "stats collection failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "stats unavailable")
	}
	return c.JSON(http.StatusOK, stats)
}

// Start serves until ctx is cancelled or the listener fails. Cancellation
// drains in-flight requests within the configured shutdown timeout.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.logger.Info(ctx, "starting http server", zap.String("addr", addr))

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.echo.Start(addr)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
		timeout := s.cfg.ShutdownTimeout
		if timeout <= 0 {
			timeout = DefaultShutdownTimeout
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	}
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
