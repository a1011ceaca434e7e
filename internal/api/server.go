// Package api serves the aggregation subsystem over HTTP: the inbox
// fan-out, URL research, sector digests, mind maps, and cache diagnostics.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/siftlab/sift/internal/cache"
	"github.com/siftlab/sift/internal/metrics"
	"github.com/siftlab/sift/internal/mindmap"
	"github.com/siftlab/sift/internal/orchestrate"
	"github.com/siftlab/sift/internal/summary"
)

// Config wires the server's collaborators. Orchestrator is required;
// Summarizer, Mindmap and Store degrade their endpoints when absent.
type Config struct {
	Orchestrator *orchestrate.Orchestrator
	Summarizer   *summary.Summarizer
	Mindmap      *mindmap.Generator
	Store        cache.Store
	StoreKind    string
	Addr         string
	Version      string
	Logger       *slog.Logger
}

// Server is the HTTP front of the aggregation service.
type Server struct {
	cfg    Config
	logger *slog.Logger
	router *chi.Mux
	http   *http.Server
}

// New builds the router and its handlers.
func New(cfg Config) (*Server, error) {
	if cfg.Orchestrator == nil {
		return nil, errors.New("api server requires an orchestrator")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8000"
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{cfg: cfg, logger: cfg.Logger}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/", s.instrument("root", s.handleRoot))
	r.Get("/health", s.instrument("health", s.handleHealth))

	// /api/search is the historical alias for /api/inbox; both share the
	// endpoint label so the metrics stay in one series.
	r.Post("/api/inbox", s.instrument("inbox", s.handleInbox))
	r.Get("/api/inbox", s.instrument("inbox", s.handleInboxGet))
	r.Post("/api/search", s.instrument("inbox", s.handleInbox))
	r.Get("/api/search", s.instrument("inbox", s.handleInboxGet))

	r.Post("/api/url-research", s.instrument("url_research", s.handleURLResearch))
	r.Post("/api/summary", s.instrument("summary", s.handleSummary))
	r.Post("/api/mindmap", s.instrument("mindmap", s.handleMindmap))
	r.Get("/api/cache-status", s.instrument("cache_status", s.handleCacheStatus))

	s.router = r
	s.http = &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	return s, nil
}

// Router exposes the handler tree, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start blocks serving HTTP until Stop or a listener error.
func (s *Server) Start() error {
	s.logger.Info("api server listening", "addr", s.cfg.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.http.Shutdown(ctx)
}

// instrument records request metrics under one endpoint label.
func (s *Server) instrument(endpoint string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		h(ww, r)
		metrics.RecordRequest(endpoint, ww.Status(), time.Since(start))
	}
}
