package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tjfontaine/phoenix-bypass/internal/core/ports"
)

// Options configures a Server.
type Options struct {
	Port    int
	Logger  *slog.Logger
	Auth    ports.AuthProvider
	Timeout time.Duration
	// Requests receives per-route request metrics. Optional.
	Requests RequestObserver
	// ServiceName names the otelhttp server spans.
	ServiceName string
}

type Server struct {
	Router *chi.Mux
	Port   int

	opts   Options
	logger *slog.Logger
	http   *http.Server
}

// New builds a router with the shared middleware chain. Routes registered
// directly on Router are public; routes registered through Protected also
// pass authentication and the request timeout.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	serviceName := opts.ServiceName
	if serviceName == "" {
		serviceName = "bypassd"
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(MetricsMiddleware(opts.Requests))
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, serviceName)
	})

	return &Server{
		Router: r,
		Port:   opts.Port,
		opts:   opts,
		logger: logger,
	}
}

// Protected registers routes behind authentication and the request timeout.
func (s *Server) Protected(fn func(r chi.Router)) {
	s.Router.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.opts.Auth))
		r.Use(TimeoutMiddleware(s.opts.Timeout))
		fn(r)
	})
}

// Start listens on the configured port and serves in the background. It
// returns once the listener is bound so bind errors surface to the caller.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.Port))
	if err != nil {
		return fmt.Errorf("listen on :%d: %w", s.Port, err)
	}
	return s.Serve(ln)
}

// Serve serves on ln in the background.
func (s *Server) Serve(ln net.Listener) error {
	writeTimeout := 30 * time.Second
	if s.opts.Timeout > 0 {
		writeTimeout = s.opts.Timeout + 5*time.Second
	}
	s.http = &http.Server{
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      writeTimeout,
	}

	go func() {
		s.logger.Info("HTTP server listening", slog.String("addr", ln.Addr().String()))
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("server error", slog.String("error", err.Error()))
		}
	}()
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
