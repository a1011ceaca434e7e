package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/siftlab/sift/internal/card"
	"github.com/siftlab/sift/internal/mindmap"
	"github.com/siftlab/sift/internal/orchestrate"
	"github.com/siftlab/sift/internal/query"
	"github.com/siftlab/sift/internal/summary"
)

type inboxRequest struct {
	UserQuery  string         `json:"user_query"`
	Intent     string         `json:"intent,omitempty"`
	LabURL     string         `json:"lab_url,omitempty"`
	LabProfile map[string]any `json:"lab_profile,omitempty"`
}

type urlResearchRequest struct {
	URL string `json:"url"`
}

type summaryRequest struct {
	Sector     string         `json:"sector"`
	Cards      []card.Card    `json:"cards"`
	LabProfile map[string]any `json:"lab_profile,omitempty"`
}

type mindmapRequest struct {
	UserQuery string      `json:"user_query,omitempty"`
	Grants    []card.Card `json:"grants"`
	Papers    []card.Card `json:"papers"`
	News      []card.Card `json:"news"`
}

// feedSummary carries the envelope counts the frontend shows in its header.
type feedSummary struct {
	TotalGrants int  `json:"total_grants"`
	TotalPapers int  `json:"total_papers"`
	TotalNews   int  `json:"total_news"`
	TotalCards  int  `json:"total_cards"`
	HasErrors   bool `json:"has_errors"`
	ErrorCount  int  `json:"error_count"`
}

type searchResponse struct {
	*orchestrate.Envelope
	Summary feedSummary `json:"summary"`
}

func newFeedSummary(env *orchestrate.Envelope) feedSummary {
	return feedSummary{
		TotalGrants: len(env.Grants),
		TotalPapers: len(env.Papers),
		TotalNews:   len(env.News),
		TotalCards:  len(env.InboxCards),
		HasErrors:   len(env.Errors) > 0,
		ErrorCount:  len(env.Errors),
	}
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "sift",
		"version": s.cfg.Version,
		"status":  "running",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleInbox(w http.ResponseWriter, r *http.Request) {
	var req inboxRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.respond(w, r, query.Request{
		UserQuery:  req.UserQuery,
		Intent:     req.Intent,
		LabURL:     req.LabURL,
		LabProfile: req.LabProfile,
	})
}

// handleInboxGet accepts both parameter spellings the frontends use:
// user_query on /api/inbox and query on /api/search.
func (s *Server) handleInboxGet(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("user_query")
	if q == "" {
		q = r.URL.Query().Get("query")
	}
	s.respond(w, r, query.Request{
		UserQuery: q,
		Intent:    r.URL.Query().Get("intent"),
	})
}

func (s *Server) handleURLResearch(w http.ResponseWriter, r *http.Request) {
	var req urlResearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		writeError(w, http.StatusBadRequest, "url cannot be empty")
		return
	}
	s.respond(w, r, query.Request{LabURL: req.URL})
}

// respond runs one aggregation request and writes the envelope. Partial
// and total upstream failure still answer 200; only an invalid request is
// the caller's problem.
func (s *Server) respond(w http.ResponseWriter, r *http.Request, req query.Request) {
	env, err := s.cfg.Orchestrator.Handle(r.Context(), req)
	if err != nil {
		var ve *query.ValidationError
		if errors.As(err, &ve) {
			writeError(w, http.StatusBadRequest, ve.Error())
			return
		}
		s.logger.Error("aggregation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "aggregation failed")
		return
	}
	writeJSON(w, http.StatusOK, searchResponse{Envelope: env, Summary: newFeedSummary(env)})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Summarizer == nil {
		writeError(w, http.StatusBadGateway, "summarizer is not configured")
		return
	}
	var req summaryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	text, err := s.cfg.Summarizer.Summarize(r.Context(), req.Sector, req.Cards, req.LabProfile)
	if err != nil {
		if errors.Is(err, summary.ErrUnknownSector) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sector":  req.Sector,
		"summary": text,
	})
}

func (s *Server) handleMindmap(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Mindmap == nil {
		writeError(w, http.StatusBadGateway, mindmap.ErrNoClient.Error())
		return
	}
	var req mindmapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	m, err := s.cfg.Mindmap.Generate(r.Context(), mindmap.Request{
		UserQuery: req.UserQuery,
		Grants:    req.Grants,
		Papers:    req.Papers,
		News:      req.News,
	})
	if err != nil {
		s.logger.Error("mindmap generation failed", "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleCacheStatus(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Store == nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"backend":   "none",
			"connected": false,
			"message":   "Caching is disabled. Results will not be persisted.",
		})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := map[string]any{
		"backend":   s.cfg.StoreKind,
		"connected": true,
		"message":   "Cache is connected and ready.",
	}
	if err := s.cfg.Store.Ping(ctx); err != nil {
		resp["connected"] = false
		resp["error"] = err.Error()
		resp["message"] = "Cache is unreachable. Results will not be persisted."
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
