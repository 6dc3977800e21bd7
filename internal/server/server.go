// Package server exposes the read accessor the dashboard UI consumes:
// the latest snapshot, a refresh trigger, and operational endpoints.
package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"solwatch/internal/cache"
	"solwatch/internal/config"
	"solwatch/internal/storage"
)

// Server hosts the dashboard-facing HTTP API.
type Server struct {
	cfg     config.ServerConfig
	cache   *cache.Cache
	trigger Trigger
	store   storage.SampleStore
	logger  zerolog.Logger
}

// New assembles a Server. store may be nil when persistence is disabled.
func New(cfg config.ServerConfig, c *cache.Cache, trigger Trigger, store storage.SampleStore, logger zerolog.Logger) *Server {
	return &Server{
		cfg:     cfg,
		cache:   c,
		trigger: trigger,
		store:   store,
		logger:  logger.With().Str("component", "server").Logger(),
	}
}

// Router builds the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(Recover(s.logger))
	r.Use(RequestLogger(s.logger))
	r.Use(Metrics())
	r.Use(CORS(s.cfg.CORSOrigin))

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", Health())
	r.Get("/readyz", Ready(s.cache))

	r.Route("/api", func(r chi.Router) {
		r.Get("/snapshot", LatestSnapshot(s.cache))
		r.Post("/refresh", TriggerRefresh(s.trigger))
		r.Get("/state", RefreshState(s.trigger))
		r.Get("/samples", RecentSamples(s.store))
	})

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.Router(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.cfg.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
