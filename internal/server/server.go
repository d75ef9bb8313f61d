// Package server exposes the catalog, personal statuses and the list over a
// JSON API.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/varoOP/shinkrolist/internal/auth"
	"github.com/varoOP/shinkrolist/internal/catalog"
	"github.com/varoOP/shinkrolist/internal/metrics"
	"github.com/varoOP/shinkrolist/internal/status"
	"github.com/varoOP/shinkrolist/internal/watchlist"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options holds the dependencies of the API.
type Options struct {
	Catalog  catalog.Service
	Status   *status.Coordinator
	List     watchlist.Service
	Tokens   *auth.Tokens
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	Health   Pinger
}

// Server holds the dependencies for the API.
type Server struct {
	log      zerolog.Logger
	catalog  catalog.Service
	status   *status.Coordinator
	list     watchlist.Service
	tokens   *auth.Tokens
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	health   Pinger
}

func NewServer(log zerolog.Logger, opts Options) *Server {
	return &Server{
		log:      log.With().Str("module", "server").Logger(),
		catalog:  opts.Catalog,
		status:   opts.Status,
		list:     opts.List,
		tokens:   opts.Tokens,
		metrics:  opts.Metrics,
		gatherer: opts.Gatherer,
		health:   opts.Health,
	}
}

// Router sets up and returns the main router for the application.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.RequestMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", s.metricsHandler())

	r.Route("/api", func(r chi.Router) {
		r.Use(s.SessionMiddleware)

		r.Get("/anime", s.handleBrowse)
		r.Get("/anime/{animeID}", s.handleAnime)
		r.Get("/anime/{animeID}/status", s.handleGetStatus)
		r.Put("/anime/{animeID}/status", s.handlePutStatus)
		r.Get("/genres", s.handleGenres)

		r.Get("/list", s.handleList)
		r.Patch("/list/{animeID}", s.handleEditListEntry)
		r.Delete("/list/{animeID}", s.handleRemoveListEntry)
	})

	return r
}

func (s *Server) metricsHandler() http.Handler {
	if s.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})
}

// ListenAndServe serves the API on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("API listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "server stopped")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	s.log.Info().Msg("Shutting down API")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "failed to shut down server")
	}
	return nil
}
