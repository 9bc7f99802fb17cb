// Package httpapi exposes prices, history, and the collection trigger as a
// JSON API.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"pegwatch/internal/asset"
	"pegwatch/internal/collector"
	"pegwatch/internal/config"
	"pegwatch/internal/engine"
	"pegwatch/internal/storage"
)

// Aggregator is the slice of engine behaviour the API depends on.
type Aggregator interface {
	Aggregate(ctx context.Context, baseSymbol, primarySizeLabel string) (*engine.Result, error)
}

// Server hosts the JSON API.
type Server struct {
	cfg        config.HTTPConfig
	universe   *asset.Universe
	aggregator Aggregator
	collector  *collector.Collector
	store      storage.SnapshotStore
	logger     zerolog.Logger

	defaultBase string
	defaultSize string
	interval    time.Duration
}

// NewServer wires the API dependencies. store and collector may be nil when
// persistence is not configured; the affected endpoints then degrade to live
// quoting or report unavailability.
func NewServer(cfg *config.Config, universe *asset.Universe, aggregator Aggregator, coll *collector.Collector, store storage.SnapshotStore, logger zerolog.Logger) *Server {
	return &Server{
		cfg:         cfg.HTTP,
		universe:    universe,
		aggregator:  aggregator,
		collector:   coll,
		store:       store,
		logger:      logger.With().Str("component", "httpapi").Logger(),
		defaultBase: cfg.Aggregation.DefaultBase,
		defaultSize: cfg.Aggregation.PrimarySize,
		interval:    cfg.Scheduler.Interval,
	}
}

// Router assembles the chi routing tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/prices", s.handlePrices)
		r.Get("/history", s.handleHistory)
		r.Get("/cron/fetch", s.handleCronFetch)
		r.Post("/cron/fetch", s.handleCronFetch)
	})

	return r
}

// Run serves the API until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Listen,
		Handler:      s.Router(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("listen", s.cfg.Listen).Msg("http api listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]any{"success": false, "error": msg})
}
