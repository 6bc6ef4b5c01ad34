package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jonny/executor-provisioner/internal/adapter/inbound/httpapi/middleware"
)

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// ShutdownTimeout bounds graceful shutdown. Zero uses 10s.
	ShutdownTimeout time.Duration
	// APIToken enables bearer authentication on every route except /health when set.
	APIToken string
	// RequestsPerMinute is the per-client rate limit. Zero disables rate limiting.
	RequestsPerMinute int
}

// Server wraps an HTTP server with graceful shutdown support.
type Server struct {
	cfg      ServerConfig
	handler  *Handler
	logger   *slog.Logger
	registry prometheus.Registerer
	srv      *http.Server
	stop     chan struct{}
}

// NewServer creates a new Server. API request metrics are registered on reg when it is not nil.
func NewServer(cfg ServerConfig, handler *Handler, logger *slog.Logger, reg prometheus.Registerer) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:      cfg,
		handler:  handler,
		logger:   logger,
		registry: reg,
		stop:     make(chan struct{}),
	}
}

// SetupRoutes builds and returns an http.Handler with all middleware applied.
// Route layout:
//
//	GET    /health
//	POST   /v1/executors
//	GET    /v1/executors
//	GET    /v1/namespaces/{namespace}/executors/{name}
//	POST   /v1/namespaces/{namespace}/workloads
//	GET    /v1/namespaces/{namespace}/workloads
//	DELETE /v1/namespaces/{namespace}/workloads/{name}
//	POST   /v1/namespaces/{namespace}/services
func (s *Server) SetupRoutes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", HealthHandler())
	mux.HandleFunc("POST /v1/executors", s.handler.CreateExecutor)
	mux.HandleFunc("GET /v1/executors", s.handler.ListExecutors)
	mux.HandleFunc("GET /v1/namespaces/{namespace}/executors/{name}", s.handler.GetExecutor)
	mux.HandleFunc("POST /v1/namespaces/{namespace}/workloads", s.handler.CreateWorkload)
	mux.HandleFunc("GET /v1/namespaces/{namespace}/workloads", s.handler.ListWorkloads)
	mux.HandleFunc("DELETE /v1/namespaces/{namespace}/workloads/{name}", s.handler.DeleteWorkload)
	mux.HandleFunc("POST /v1/namespaces/{namespace}/services", s.handler.CreateService)

	// Apply middleware stack (outermost = first to execute):
	//   SecurityHeaders -> Metrics -> Logging -> RateLimit -> Auth -> BodyReader
	var h http.Handler = mux
	h = middleware.BodyReader(h)
	if s.cfg.APIToken != "" {
		h = middleware.BearerAuth(s.cfg.APIToken, "/health")(h)
	}
	if s.cfg.RequestsPerMinute > 0 {
		h = middleware.NewRateLimiter(s.cfg.RequestsPerMinute, s.stop)(h)
	}
	h = middleware.NewLoggingMiddleware(s.logger)(h)
	if s.registry != nil {
		h = middleware.NewMetricsMiddleware(s.registry)(h)
	}
	h = middleware.SecurityHeaders(h)

	return h
}

// Start starts the HTTP server and blocks until ctx is cancelled, then performs
// a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	defer close(s.stop)

	s.srv = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      s.SetupRoutes(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api server listening", "port", s.cfg.Port)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		timeout := s.cfg.ShutdownTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("api server shutdown error: %w", err)
		}
		return nil
	case err := <-errCh:
		return err
	}
}
