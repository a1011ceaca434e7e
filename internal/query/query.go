// Package query resolves a raw API request into a dispatchable search:
// which collectors to run, what seed fingerprints the cache entry, and
// which keywords to fan out over when a lab URL drove the request.
package query

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/siftlab/sift/internal/keywords"
	"github.com/siftlab/sift/internal/scrape"
)

// Intent selects which collectors run. The wire values predate the card
// type names, so funding cards ride behind the "grants" intent.
type Intent string

const (
	IntentGrants Intent = "grants"
	IntentPapers Intent = "papers"
	IntentNews   Intent = "news"
	IntentAll    Intent = "all"
)

// ParseIntent honors an explicit valid intent verbatim; anything unknown or
// empty falls back to IntentAll.
func ParseIntent(s string) Intent {
	switch Intent(strings.ToLower(strings.TrimSpace(s))) {
	case IntentGrants:
		return IntentGrants
	case IntentPapers:
		return IntentPapers
	case IntentNews:
		return IntentNews
	default:
		return IntentAll
	}
}

// ValidationError rejects a request before any collector is dispatched.
// The API boundary maps it to a 400.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid request: " + e.Reason
}

// Request is the caller's raw input.
type Request struct {
	UserQuery  string
	Intent     string
	LabURL     string
	LabProfile map[string]any
}

// Resolved is a dispatchable search. Seed feeds the cache fingerprint and
// Query is the display form echoed in the envelope. Keywords are only set
// when a lab URL supplied them.
type Resolved struct {
	Query    string
	Seed     string
	Intent   Intent
	LabURL   string
	Keywords []string
}

// PageFetcher is the slice of the scraper the resolver needs.
type PageFetcher interface {
	Fetch(ctx context.Context, pageURL string) (*scrape.Page, error)
}

// Config wires the resolver's collaborators. LLM is optional; Heuristic
// covers its absence and its failures.
type Config struct {
	Scraper     PageFetcher
	LLM         keywords.Extractor
	Heuristic   keywords.Extractor
	MaxKeywords int
	Logger      *slog.Logger
}

// Resolver turns requests into resolved searches.
type Resolver struct {
	cfg Config
}

// NewResolver creates a resolver. A nil Heuristic gets the frequency
// extractor so the fallback path always exists.
func NewResolver(cfg Config) *Resolver {
	if cfg.Heuristic == nil {
		cfg.Heuristic = keywords.NewHeuristic()
	}
	if cfg.MaxKeywords <= 0 {
		cfg.MaxKeywords = keywords.DefaultLimit
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Resolver{cfg: cfg}
}

// Resolve validates and normalizes the request. A present lab URL wins over
// query text: the page is scraped and its keywords drive the search. Only
// empty input yields a *ValidationError; collaborator failures in the URL
// path come back as plain errors for the orchestrator to report.
func (r *Resolver) Resolve(ctx context.Context, req Request) (*Resolved, error) {
	intent := ParseIntent(req.Intent)
	text := strings.TrimSpace(req.UserQuery)
	labURL := strings.TrimSpace(req.LabURL)

	if labURL != "" {
		return r.resolveURL(ctx, labURL, intent)
	}

	if text == "" {
		return nil, &ValidationError{Reason: "user_query or lab_url is required"}
	}

	return &Resolved{
		Query:  text,
		Seed:   text,
		Intent: intent,
	}, nil
}

func (r *Resolver) resolveURL(ctx context.Context, labURL string, intent Intent) (*Resolved, error) {
	normalized, err := normalizeURL(labURL)
	if err != nil {
		return nil, &ValidationError{Reason: fmt.Sprintf("invalid lab_url %q", labURL)}
	}

	if r.cfg.Scraper == nil {
		return nil, fmt.Errorf("url research is not available: no scraper configured")
	}

	page, err := r.cfg.Scraper.Fetch(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("scrape lab page: %w", err)
	}

	text := pageText(page)
	if text == "" {
		return nil, fmt.Errorf("no content extracted from %s", normalized)
	}

	kws, err := r.extractKeywords(ctx, text)
	if err != nil {
		return nil, err
	}

	return &Resolved{
		Query:    "Research for URL: " + normalized,
		Seed:     "url:" + normalized,
		Intent:   intent,
		LabURL:   normalized,
		Keywords: kws,
	}, nil
}

// extractKeywords tries the LLM extractor when one is configured and falls
// back to the heuristic explicitly. Both failing, or neither finding a
// term, means the page had nothing to search for.
func (r *Resolver) extractKeywords(ctx context.Context, text string) ([]string, error) {
	if r.cfg.LLM != nil {
		kws, err := r.cfg.LLM.Extract(ctx, text, r.cfg.MaxKeywords)
		if err == nil && len(kws) > 0 {
			return kws, nil
		}
		if err != nil {
			r.cfg.Logger.Warn("llm keyword extraction failed, using heuristic", "error", err)
		}
	}

	kws, err := r.cfg.Heuristic.Extract(ctx, text, r.cfg.MaxKeywords)
	if err != nil {
		return nil, fmt.Errorf("extract keywords: %w", err)
	}
	if len(kws) == 0 {
		return nil, fmt.Errorf("no keywords found in page text")
	}
	return kws, nil
}

// pageText flattens the scraped page into one extraction input. Title and
// headings lead so they weigh into frequency counts even on thin pages.
func pageText(page *scrape.Page) string {
	parts := make([]string, 0, 4)
	for _, s := range []string{page.Title, page.MetaDescription, strings.Join(page.Headings, " "), page.MainContent} {
		if strings.TrimSpace(s) != "" {
			parts = append(parts, s)
		}
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

// normalizeURL defaults the scheme to https and validates the result.
func normalizeURL(raw string) (string, error) {
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("missing host")
	}
	return u.String(), nil
}
