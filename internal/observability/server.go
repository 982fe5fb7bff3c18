package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Checker reports whether one dependency is ready to serve.
type Checker interface {
	Name() string
	Ready(ctx context.Context) error
}

// Server manages the observability endpoints (health checks and metrics).
// It runs on a dedicated port to isolate administrative traffic from the
// host application's own listeners.
type Server struct {
	logger   *slog.Logger
	addr     string
	router   *chi.Mux
	server   *http.Server
	checkers []Checker
}

// NewServer creates a new instance of the observability server.
// It accepts a variable number of checkers (e.g., the spec store) to be
// verified in the readiness probe.
func NewServer(logger *slog.Logger, addr string, checkers ...Checker) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	// Standard middlewares for the admin server
	r.Use(middleware.Recoverer)
	r.Use(middleware.NoCache)

	s := &Server{
		logger:   logger,
		addr:     addr,
		router:   r,
		checkers: checkers,
	}

	s.setupRoutes()
	return s
}

// setupRoutes registers all observability endpoints.
func (s *Server) setupRoutes() {
	s.router.Get("/health/live", s.liveness)
	s.router.Get("/health/ready", s.readiness)
	s.router.Method(http.MethodGet, "/metrics", promhttp.Handler())
}

// liveness reports process health. If this handler runs at all, we're live.
func (s *Server) liveness(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// readiness verifies every registered checker.
func (s *Server) readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	for _, checker := range s.checkers {
		if err := checker.Ready(ctx); err != nil {
			s.logger.Warn("readiness check failed",
				slog.String("checker", checker.Name()),
				slog.String("error", err.Error()),
			)
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = fmt.Fprintf(w, "NOT READY: %s", checker.Name())
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("READY"))
}

// Start runs the HTTP server in a background goroutine. Non-blocking.
func (s *Server) Start() {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		s.logger.Info("observability server listening", slog.String("addr", s.addr))
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("observability server failed", slog.String("error", err.Error()))
		}
	}()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
