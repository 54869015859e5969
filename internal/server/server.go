// Package server wires the HTTP surface of both services: the public
// /v1/graph endpoints, the status listeners exposing Prometheus metrics,
// and the shared middleware (CORS, request-scoped logging).
//
// Handlers map the structured error codes from pkg/errors onto HTTP
// statuses and never leak internal details to clients; error context goes
// to the operator log only.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Run serves handler on addr until ctx is cancelled, then shuts down
// gracefully. In-flight requests get a short drain window.
func Run(ctx context.Context, addr string, handler http.Handler, logger *log.Logger) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		err := <-errCh
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// StatusRouter builds the status listener exposing /metrics in Prometheus
// text format.
func StatusRouter() http.Handler {
	r := chi.NewRouter()
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	return r
}
