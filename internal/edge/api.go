// Package edge implements the HTTP surface that serves per-user client
// bootstrap payloads, so browser and mobile SDKs can initialize from this
// process instead of making their own control-plane round trip.
package edge

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/rafaeljc/mimir/internal/evaluator"
	"github.com/rafaeljc/mimir/internal/logger"
	"github.com/rafaeljc/mimir/internal/validation"
)

// API holds dependencies and the router for the edge server.
// It follows the Dependency Injection pattern to facilitate testing.
type API struct {
	// Router is the Chi multiplexer that handles HTTP requests.
	Router *chi.Mux

	evaluator  *evaluator.Evaluator
	logger     *slog.Logger
	sdkVersion string
}

// NewAPI creates a new API instance.
// Panics if the evaluator is nil, because without it every route is dead.
func NewAPI(eval *evaluator.Evaluator, log *slog.Logger, sdkVersion string) *API {
	validation.AssertNotNil(eval, "evaluator")
	if log == nil {
		log = slog.Default()
	}

	api := &API{
		Router:     chi.NewRouter(),
		evaluator:  eval,
		logger:     log,
		sdkVersion: sdkVersion,
	}

	api.configureRoutes()
	return api
}

// configureRoutes registers the global middleware stack and endpoints.
func (a *API) configureRoutes() {
	// RequestID: Adds a unique ID to each request context (essential for tracing).
	a.Router.Use(middleware.RequestID)
	// RealIP: correctly sets the IP if behind a proxy/LB.
	a.Router.Use(middleware.RealIP)
	// Recoverer: a panicking handler answers 500 instead of killing the process.
	a.Router.Use(middleware.Recoverer)
	a.Router.Use(middleware.Timeout(10 * time.Second))
	a.Router.Use(a.requestLogger)

	a.Router.Route("/v1", func(r chi.Router) {
		r.Post("/initialize", a.handleInitialize)
	})
}

// requestLogger injects a request-scoped logger and records the request.
func (a *API) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestLog := a.logger.With(
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)

		start := time.Now()
		next.ServeHTTP(w, r.WithContext(logger.WithContext(r.Context(), requestLog)))
		requestLog.Debug("request handled", slog.Duration("duration", time.Since(start)))
	})
}
