// Package api exposes the running stage over HTTP: health, counters, the
// group-size property, the run journal and a live SSE event stream.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/hype/internal/events"
	"github.com/mattjoyce/hype/internal/hype"
	"github.com/mattjoyce/hype/internal/journal"
)

// StageController is the part of the stage the API drives.
type StageController interface {
	Stats() hype.Stats
	Children() []hype.Child
	SetGroupSize(n uint32) error
}

// RunStore reads the run journal.
type RunStore interface {
	ListRuns(ctx context.Context, limit int) ([]journal.Run, error)
	GetRun(ctx context.Context, id string) (*journal.Run, error)
	Scenes(ctx context.Context, runID string) ([]journal.Scene, error)
}

// EventSource is the hub the SSE endpoint streams from.
type EventSource interface {
	SnapshotSince(lastID int64) []events.Event
	Subscribe(buffer int) (<-chan events.Event, func())
}

// Config holds API server configuration
type Config struct {
	Listen string
	// APIKey protects everything but /healthz. Empty disables auth.
	APIKey string
}

// Server represents the HTTP API server
type Server struct {
	config    Config
	stage     StageController
	runs      RunStore
	events    EventSource
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// New creates a new API server instance. runs may be nil when the journal
// is disabled.
func New(config Config, stage StageController, runs RunStore, hub EventSource, logger *slog.Logger) *Server {
	return &Server{
		config:    config,
		stage:     stage,
		runs:      runs,
		events:    hub,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// Start serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:        s.config.Listen,
		Handler:     s.setupRoutes(),
		ReadTimeout: 10 * time.Second,
		// No write timeout: /events is long-lived.
		IdleTimeout: 60 * time.Second,
	}

	s.logger.Info("API server starting", "listen", s.config.Listen, "auth", s.config.APIKey != "")

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/openapi.json", s.handleOpenAPI)
		r.Get("/stats", s.handleStats)
		r.Get("/stage/children", s.handleChildren)
		r.Put("/stage/group-size", s.handleSetGroupSize)
		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{runID}", s.handleGetRun)
		r.Get("/runs/{runID}/scenes", s.handleRunScenes)
		r.Get("/events", s.handleEvents)
	})

	return r
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
