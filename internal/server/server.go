// Package server exposes the relay pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"mediarelay/internal/pipeline"
)

const (
	defaultAddr            = ":5000"
	defaultBodyLimit       = "60M"
	defaultShutdownTimeout = 15 * time.Second
)

// Config configures a Server. A nil Registry disables HTTP metrics and the
// metrics listener.
type Config struct {
	Addr            string
	BodyLimit       string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	Registry    *prometheus.Registry
	MetricsAddr string
	MetricsPath string

	Pipeline Processor
	Logger   *slog.Logger
}

type Server struct {
	echo            *echo.Echo
	metrics         *echo.Echo
	addr            string
	metricsAddr     string
	shutdownTimeout time.Duration
	logger          *slog.Logger
}

func New(cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = defaultAddr
	}
	if cfg.BodyLimit == "" {
		cfg.BodyLimit = defaultBodyLimit
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	logger := cfg.Logger.With(slog.String("component", "server"))

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = cfg.ReadTimeout
	e.Server.WriteTimeout = cfg.WriteTimeout
	e.HTTPErrorHandler = errorHandler(logger)

	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
		RequestIDHandler: func(c echo.Context, id string) {
			req := c.Request()
			c.SetRequest(req.WithContext(pipeline.WithRequestID(req.Context(), id)))
		},
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Info("request",
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("request_id", v.RequestID),
			)
			return nil
		},
	}))

	s := &Server{
		echo:            e,
		addr:            cfg.Addr,
		shutdownTimeout: cfg.ShutdownTimeout,
		logger:          logger,
	}

	if cfg.Registry != nil {
		e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
			Namespace:  "mediarelay",
			Subsystem:  "http",
			Registerer: cfg.Registry,
			Skipper: func(c echo.Context) bool {
				return c.Path() == "/health"
			},
		}))

		m := echo.New()
		m.HideBanner = true
		m.HidePort = true
		m.GET(cfg.MetricsPath, echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{
			Gatherer: cfg.Registry,
		}))
		s.metrics = m
		s.metricsAddr = cfg.MetricsAddr
	}

	NewHealthHandler().Register(e)
	NewMediaHandler(logger, cfg.Pipeline).Register(e)
	return s
}

// Handler returns the API handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.echo }

// MetricsHandler returns the metrics handler, or nil when metrics are disabled.
func (s *Server) MetricsHandler() http.Handler {
	if s.metrics == nil {
		return nil
	}
	return s.metrics
}

// Run serves until ctx is cancelled, then shuts both listeners down.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 2)

	go func() {
		s.logger.Info("http server starting", "addr", s.addr)
		if err := s.echo.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	if s.metrics != nil && s.metricsAddr != "" {
		go func() {
			s.logger.Info("metrics server starting", "addr", s.metricsAddr)
			if err := s.metrics.Start(s.metricsAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		s.logger.Info("http server shutting down")
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("shutdown: %w", err)
	}
	if s.metrics != nil {
		_ = s.metrics.Shutdown(shutdownCtx)
	}
	return runErr
}
