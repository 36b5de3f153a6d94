package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"FinScout/pkg/http/middleware"
	"FinScout/pkg/logger"
)

// ServerOption configures Server.
type ServerOption func(*ServerConfig)

type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	CORS            bool
	MetricsPath     string
	Registerer      prometheus.Registerer
	Gatherer        prometheus.Gatherer
}

// Server wraps an echo instance with the service middleware chain.
type Server struct {
	echo   *echo.Echo
	config *ServerConfig
	log    *logger.Logger
	errCh  chan error
}

func NewServer(log *logger.Logger, handlers []Handler, opts ...ServerOption) *Server {
	cfg := &ServerConfig{
		Host:            "0.0.0.0",
		Port:            8080,
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    90 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		CORS:            true,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if log == nil {
		log = logger.Nop()
	}
	log = log.With(logger.String("component", "http"))

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = cfg.ReadTimeout
	e.Server.WriteTimeout = cfg.WriteTimeout

	if cfg.Registerer != nil {
		e.Use(middleware.NewHTTPMetrics(cfg.Registerer).Middleware())
	}
	e.Use(middleware.RequestLogging(log))
	e.Use(middleware.Recover(log))
	if cfg.CORS {
		e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
			AllowOrigins: []string{"*"},
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		}))
	}

	for _, h := range handlers {
		h.RegisterRoutes(e)
	}
	if cfg.MetricsPath != "" && cfg.Gatherer != nil {
		e.GET(cfg.MetricsPath, echo.WrapHandler(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	return &Server{echo: e, config: cfg, log: log, errCh: make(chan error, 1)}
}

// Start listens in the background. A listener failure is reported on Err.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	go func() {
		s.log.Info("http server listening", logger.String("addr", addr))
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http server failed", logger.Error(err))
			s.errCh <- err
		}
	}()
	return nil
}

// Err delivers a fatal listener error.
func (s *Server) Err() <-chan error { return s.errCh }

// Stop drains in-flight requests up to the shutdown timeout or ctx.
func (s *Server) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	s.log.Info("http server stopped")
	return nil
}

// Echo exposes the router, mainly for tests.
func (s *Server) Echo() *echo.Echo { return s.echo }

func WithHost(host string) ServerOption {
	return func(c *ServerConfig) { c.Host = host }
}

func WithPort(port int) ServerOption {
	return func(c *ServerConfig) { c.Port = port }
}

func WithTimeouts(read, write, shutdown time.Duration) ServerOption {
	return func(c *ServerConfig) {
		if read > 0 {
			c.ReadTimeout = read
		}
		if write > 0 {
			c.WriteTimeout = write
		}
		if shutdown > 0 {
			c.ShutdownTimeout = shutdown
		}
	}
}

func WithCORS(enabled bool) ServerOption {
	return func(c *ServerConfig) { c.CORS = enabled }
}

// WithPrometheus instruments requests on reg and serves g at path.
func WithPrometheus(path string, reg prometheus.Registerer, g prometheus.Gatherer) ServerOption {
	return func(c *ServerConfig) {
		c.MetricsPath = path
		c.Registerer = reg
		c.Gatherer = g
	}
}
