package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/geohash-udf/internal/core/config"
	"github.com/mohammed-shakir/geohash-udf/internal/core/health"
	middleware "github.com/mohammed-shakir/geohash-udf/internal/core/middleware"
	"github.com/mohammed-shakir/geohash-udf/internal/core/router"
)

// Deps are the optional collaborators of the HTTP surface.
type Deps struct {
	Metrics http.Handler
	Ready   map[string]health.Pinger
}

// NewDeps mounts metricsHandler on the main router only when metrics are
// enabled in cfg.
func NewDeps(cfg config.Config, metricsHandler http.Handler) Deps {
	deps := Deps{Ready: map[string]health.Pinger{}}
	if cfg.Metrics.Enabled {
		deps.Metrics = metricsHandler
	}
	return deps
}

// NewHandler builds the chi router for the geohash service.
func NewHandler(logger *slog.Logger, h *router.Handlers, deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS())

	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(2*time.Second, deps.Ready))
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Get("/geohash", router.Instrument("/geohash", h.Geohash()))
	r.Get("/decode", router.Instrument("/decode", h.Decode()))
	r.Get("/neighbors", router.Instrument("/neighbors", h.Neighbors()))
	r.Post("/evaluate", router.Instrument("/evaluate", h.Evaluate()))

	if h.IndexEnabled() {
		r.Route("/points/{layer}", func(r chi.Router) {
			r.Get("/nearby", router.Instrument("/points/{layer}/nearby", h.Nearby()))
			r.Get("/{id}", router.Instrument("/points/{layer}/{id}", h.GetPoint()))
			r.Put("/{id}", router.Instrument("/points/{layer}/{id}", h.PutPoint()))
			r.Delete("/{id}", router.Instrument("/points/{layer}/{id}", h.DeletePoint()))
		})
	}
	return r
}

// sets up http and starts serving
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger, h *router.Handlers, deps Deps) error {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           NewHandler(logger, h, deps),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", "addr", cfg.Addr, "index", h.IndexEnabled())
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
