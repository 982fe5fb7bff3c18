// Command mimir-edge runs the client bootstrap server: it keeps the rule
// catalog synced like any SDK instance and serves per-user initialize
// payloads over HTTP, plus Prometheus metrics and health probes on a
// dedicated admin port.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rafaeljc/mimir/internal/config"
	"github.com/rafaeljc/mimir/internal/edge"
	"github.com/rafaeljc/mimir/internal/evaluator"
	"github.com/rafaeljc/mimir/internal/logger"
	"github.com/rafaeljc/mimir/internal/observability"
	"github.com/rafaeljc/mimir/internal/store"
	"github.com/rafaeljc/mimir/internal/transport"
)

func main() {
	if err := run(); err != nil {
		slog.Error("mimir-edge failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sdkKey := os.Getenv("MIMIR_SDK_KEY")
	if sdkKey == "" {
		return errors.New("MIMIR_SDK_KEY is required")
	}

	addr := os.Getenv("MIMIR_EDGE_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	adminAddr := os.Getenv("MIMIR_EDGE_ADMIN_ADDR")
	if adminAddr == "" {
		adminAddr = ":9090"
	}

	opts, err := config.Load()
	if err != nil {
		return err
	}

	log := logger.New(opts)
	opts.LogConfig(log)

	// The edge server wires the internals directly rather than going
	// through the facade: it needs the evaluator for projections and the
	// store for the readiness probe.
	fetcher := transport.NewHTTPFetcher(sdkKey, transport.NewMetadata(logger.Version), opts.InitTimeout, opts.LocalMode)
	st := store.New(sdkKey, opts, store.Dependencies{Fetcher: fetcher, Logger: log})
	st.Initialize(ctx)
	defer st.Shutdown(context.Background())

	eval := evaluator.New(st, log)

	adminServer := observability.NewServer(log, adminAddr, st)
	adminServer.Start()
	defer func() { _ = adminServer.Shutdown(context.Background()) }()

	api := edge.NewAPI(eval, log, logger.Version)
	server := &http.Server{
		Addr:              addr,
		Handler:           api.Router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("edge server listening", slog.String("addr", addr))
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		log.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}
