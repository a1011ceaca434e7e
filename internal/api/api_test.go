package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/siftlab/sift/internal/cache/memory"
	"github.com/siftlab/sift/internal/card"
	"github.com/siftlab/sift/internal/collect"
	"github.com/siftlab/sift/internal/llm"
	"github.com/siftlab/sift/internal/mindmap"
	"github.com/siftlab/sift/internal/orchestrate"
	"github.com/siftlab/sift/internal/query"
	"github.com/siftlab/sift/internal/scrape"
	"github.com/siftlab/sift/internal/source"
	"github.com/siftlab/sift/internal/summary"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubSource struct {
	tag   card.Type
	cards []card.Card
	err   error
}

func (s *stubSource) Tag() card.Type {
	return s.tag
}

func (s *stubSource) Search(ctx context.Context, q source.Query) ([]card.Card, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.cards, nil
}

type fixedScraper struct {
	page *scrape.Page
	err  error
}

func (f *fixedScraper) Fetch(ctx context.Context, pageURL string) (*scrape.Page, error) {
	return f.page, f.err
}

type fakeCompleter struct {
	reply string
	err   error
}

func (f *fakeCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

var _ llm.Client = (*fakeCompleter)(nil)

func testSources() []source.Source {
	return []source.Source{
		&stubSource{tag: card.TypeFunding, cards: []card.Card{
			card.Funding("NSF Robotics Grant", 0.9, card.Meta{Sponsor: "NSF"}),
		}},
		&stubSource{tag: card.TypePaper, cards: []card.Card{
			card.Paper("Robot Learning Survey", 0.9, card.Meta{Source: "Nature"}),
		}},
		&stubSource{tag: card.TypeNews, cards: []card.Card{
			card.News("Robotics Startup Funded", 0.7, card.Meta{Outlet: "STAT"}),
		}},
	}
}

func testOrchestrator(t *testing.T, scraper query.PageFetcher, srcs ...source.Source) *orchestrate.Orchestrator {
	t.Helper()
	cols := make([]*collect.Collector, len(srcs))
	for i, src := range srcs {
		cols[i] = collect.New(src, collect.Config{Store: memory.New(), Logger: discardLogger()})
	}
	o, err := orchestrate.New(orchestrate.Config{
		Resolver:   query.NewResolver(query.Config{Scraper: scraper, Logger: discardLogger()}),
		Collectors: cols,
		Timeout:    2 * time.Second,
		Logger:     discardLogger(),
	})
	if err != nil {
		t.Fatalf("New orchestrator failed: %v", err)
	}
	return o
}

func newTestServer(t *testing.T, cfg Config) *httptest.Server {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = discardLogger()
	}
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New server failed: %v", err)
	}
	ts := httptest.NewServer(s.Router())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url string, body any) (int, map[string]any) {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("Marshal request failed: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("POST %s failed: %v", url, err)
	}
	defer resp.Body.Close()
	return resp.StatusCode, decodeBody(t, resp)
}

func getJSON(t *testing.T, url string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s failed: %v", url, err)
	}
	defer resp.Body.Close()
	return resp.StatusCode, decodeBody(t, resp)
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		t.Fatalf("Decode response failed: %v", err)
	}
	return m
}

func listLen(t *testing.T, m map[string]any, key string) int {
	t.Helper()
	v, ok := m[key]
	if !ok {
		t.Fatalf("Expected %q in response, got %v", key, m)
	}
	list, ok := v.([]any)
	if !ok {
		t.Fatalf("Expected %q to be a list, got %T", key, v)
	}
	return len(list)
}

func TestRootAndHealth(t *testing.T) {
	ts := newTestServer(t, Config{
		Orchestrator: testOrchestrator(t, nil, testSources()...),
		Version:      "1.2.3",
	})

	status, body := getJSON(t, ts.URL+"/")
	if status != http.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}
	if body["name"] != "sift" || body["version"] != "1.2.3" || body["status"] != "running" {
		t.Errorf("Expected service info, got %v", body)
	}

	status, body = getJSON(t, ts.URL+"/health")
	if status != http.StatusOK || body["status"] != "healthy" {
		t.Errorf("Expected healthy, got %d %v", status, body)
	}
}

func TestInboxPost(t *testing.T) {
	ts := newTestServer(t, Config{Orchestrator: testOrchestrator(t, nil, testSources()...)})

	status, body := postJSON(t, ts.URL+"/api/inbox", map[string]any{
		"user_query": "robotics funding",
		"intent":     "grants",
	})
	if status != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %v", status, body)
	}

	if body["user_query"] != "robotics funding" {
		t.Errorf("Expected query echoed, got %v", body["user_query"])
	}
	if body["intent"] != "grants" {
		t.Errorf("Expected grants intent, got %v", body["intent"])
	}
	if n := listLen(t, body, "grants"); n != 1 {
		t.Errorf("Expected 1 grant, got %d", n)
	}
	if n := listLen(t, body, "papers"); n != 0 {
		t.Errorf("Expected empty papers list, got %d", n)
	}
	if n := listLen(t, body, "news"); n != 0 {
		t.Errorf("Expected empty news list, got %d", n)
	}
	if n := listLen(t, body, "inbox_cards"); n != 1 {
		t.Errorf("Expected 1 inbox card, got %d", n)
	}

	sum, ok := body["summary"].(map[string]any)
	if !ok {
		t.Fatalf("Expected summary block, got %v", body)
	}
	if sum["total_cards"] != float64(1) || sum["has_errors"] != false {
		t.Errorf("Expected summary counts, got %v", sum)
	}
}

func TestInboxPostValidationError(t *testing.T) {
	ts := newTestServer(t, Config{Orchestrator: testOrchestrator(t, nil, testSources()...)})

	status, body := postJSON(t, ts.URL+"/api/inbox", map[string]any{"user_query": "   "})
	if status != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", status)
	}
	msg, _ := body["error"].(string)
	if !strings.Contains(msg, "invalid request") {
		t.Errorf("Expected validation message, got %q", msg)
	}
}

func TestInboxBadJSON(t *testing.T) {
	ts := newTestServer(t, Config{Orchestrator: testOrchestrator(t, nil, testSources()...)})

	resp, err := http.Post(ts.URL+"/api/inbox", "application/json", strings.NewReader("{not json"))
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for malformed body, got %d", resp.StatusCode)
	}
}

func TestInboxGetParams(t *testing.T) {
	ts := newTestServer(t, Config{Orchestrator: testOrchestrator(t, nil, testSources()...)})

	status, body := getJSON(t, ts.URL+"/api/inbox?user_query=robotics&intent=papers")
	if status != http.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}
	if n := listLen(t, body, "papers"); n != 1 {
		t.Errorf("Expected 1 paper, got %d", n)
	}
	if n := listLen(t, body, "grants"); n != 0 {
		t.Errorf("Expected empty grants, got %d", n)
	}

	// The search alias takes the short parameter name.
	status, body = getJSON(t, ts.URL+"/api/search?query=robotics")
	if status != http.StatusOK {
		t.Fatalf("Expected 200 from alias, got %d", status)
	}
	if n := listLen(t, body, "inbox_cards"); n != 3 {
		t.Errorf("Expected full fan-out from alias, got %d cards", n)
	}
}

func TestSearchAliasPost(t *testing.T) {
	ts := newTestServer(t, Config{Orchestrator: testOrchestrator(t, nil, testSources()...)})

	status, body := postJSON(t, ts.URL+"/api/search", map[string]any{"user_query": "robotics"})
	if status != http.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}
	if n := listLen(t, body, "inbox_cards"); n != 3 {
		t.Errorf("Expected 3 cards, got %d", n)
	}
}

func TestInboxAllSourcesFail(t *testing.T) {
	srcs := []source.Source{
		&stubSource{tag: card.TypeFunding, err: errors.New("grants.gov 500")},
		&stubSource{tag: card.TypePaper, err: errors.New("eutils down")},
		&stubSource{tag: card.TypeNews, err: errors.New("newsapi 401")},
	}
	ts := newTestServer(t, Config{Orchestrator: testOrchestrator(t, nil, srcs...)})

	status, body := postJSON(t, ts.URL+"/api/inbox", map[string]any{"user_query": "robotics"})
	if status != http.StatusOK {
		t.Fatalf("Expected 200 despite failures, got %d", status)
	}
	if n := listLen(t, body, "errors"); n != 3 {
		t.Errorf("Expected 3 errors, got %d", n)
	}
	if n := listLen(t, body, "inbox_cards"); n != 0 {
		t.Errorf("Expected empty feed, got %d", n)
	}
	sum := body["summary"].(map[string]any)
	if sum["has_errors"] != true || sum["error_count"] != float64(3) {
		t.Errorf("Expected error counts in summary, got %v", sum)
	}
}

func TestURLResearch(t *testing.T) {
	scraper := &fixedScraper{page: &scrape.Page{
		Title:       "Chen Lab",
		MainContent: "protein folding protein misfolding cryo-em imaging",
	}}
	ts := newTestServer(t, Config{Orchestrator: testOrchestrator(t, scraper, testSources()...)})

	status, body := postJSON(t, ts.URL+"/api/url-research", map[string]any{"url": "chenlab.example.edu"})
	if status != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %v", status, body)
	}
	if body["user_query"] != "Research for URL: https://chenlab.example.edu" {
		t.Errorf("Expected display query, got %v", body["user_query"])
	}
	if body["lab_url"] != "https://chenlab.example.edu" {
		t.Errorf("Expected normalized lab url, got %v", body["lab_url"])
	}
	profile, ok := body["lab_profile"].(map[string]any)
	if !ok {
		t.Fatalf("Expected lab profile, got %v", body)
	}
	kws, ok := profile["keywords"].([]any)
	if !ok || len(kws) == 0 {
		t.Errorf("Expected extracted keywords, got %v", profile)
	}
	if n := listLen(t, body, "inbox_cards"); n != 3 {
		t.Errorf("Expected full fan-out, got %d cards", n)
	}
}

func TestURLResearchEmptyURL(t *testing.T) {
	ts := newTestServer(t, Config{Orchestrator: testOrchestrator(t, nil, testSources()...)})

	status, body := postJSON(t, ts.URL+"/api/url-research", map[string]any{"url": "  "})
	if status != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", status)
	}
	if body["error"] != "url cannot be empty" {
		t.Errorf("Expected empty url message, got %v", body["error"])
	}
}

func TestSummaryEndpoint(t *testing.T) {
	ts := newTestServer(t, Config{
		Orchestrator: testOrchestrator(t, nil, testSources()...),
		Summarizer:   summary.New(summary.Config{Logger: discardLogger()}),
	})

	status, body := postJSON(t, ts.URL+"/api/summary", map[string]any{
		"sector": "grants",
		"cards": []card.Card{
			card.Funding("Grant A", 0.9, card.Meta{Sponsor: "NIH"}),
			card.Funding("Grant B", 0.8, card.Meta{Sponsor: "NSF"}),
		},
	})
	if status != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %v", status, body)
	}
	if body["sector"] != "grants" {
		t.Errorf("Expected sector echoed, got %v", body["sector"])
	}
	text, _ := body["summary"].(string)
	if !strings.HasPrefix(text, "I flagged 2 grant opportunities") {
		t.Errorf("Expected fallback digest, got %q", text)
	}
}

func TestSummaryUnknownSector(t *testing.T) {
	ts := newTestServer(t, Config{
		Orchestrator: testOrchestrator(t, nil, testSources()...),
		Summarizer:   summary.New(summary.Config{Logger: discardLogger()}),
	})

	status, body := postJSON(t, ts.URL+"/api/summary", map[string]any{"sector": "patents"})
	if status != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", status)
	}
	msg, _ := body["error"].(string)
	if !strings.Contains(msg, "unknown sector") {
		t.Errorf("Expected unknown sector message, got %q", msg)
	}
}

func TestMindmapEndpoint(t *testing.T) {
	client := &fakeCompleter{reply: `{"outline": "# Robotics", "themes": ["Autonomy"], "connections": []}`}
	ts := newTestServer(t, Config{
		Orchestrator: testOrchestrator(t, nil, testSources()...),
		Mindmap:      mindmap.New(mindmap.Config{Client: client, Logger: discardLogger()}),
	})

	status, body := postJSON(t, ts.URL+"/api/mindmap", map[string]any{
		"user_query": "robotics",
		"grants":     []card.Card{card.Funding("NSF Robotics Grant", 0.9, card.Meta{Sponsor: "NSF"})},
		"papers":     []card.Card{},
		"news":       []card.Card{},
	})
	if status != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %v", status, body)
	}
	if body["outline"] != "# Robotics" {
		t.Errorf("Expected outline, got %v", body["outline"])
	}
	if n := listLen(t, body, "themes"); n != 1 {
		t.Errorf("Expected 1 theme, got %d", n)
	}
	if n := listLen(t, body, "connections"); n != 0 {
		t.Errorf("Expected empty connections list, got %d", n)
	}
}

func TestMindmapWithoutClient(t *testing.T) {
	ts := newTestServer(t, Config{
		Orchestrator: testOrchestrator(t, nil, testSources()...),
		Mindmap:      mindmap.New(mindmap.Config{Logger: discardLogger()}),
	})

	status, body := postJSON(t, ts.URL+"/api/mindmap", map[string]any{"user_query": "x"})
	if status != http.StatusBadGateway {
		t.Fatalf("Expected 502, got %d", status)
	}
	msg, _ := body["error"].(string)
	if !strings.Contains(msg, "llm client") {
		t.Errorf("Expected client error surfaced, got %q", msg)
	}
}

func TestCacheStatus(t *testing.T) {
	ts := newTestServer(t, Config{
		Orchestrator: testOrchestrator(t, nil, testSources()...),
		Store:        memory.New(),
		StoreKind:    "memory",
	})

	status, body := getJSON(t, ts.URL+"/api/cache-status")
	if status != http.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}
	if body["backend"] != "memory" || body["connected"] != true {
		t.Errorf("Expected connected memory backend, got %v", body)
	}
}

func TestCacheStatusWithoutStore(t *testing.T) {
	ts := newTestServer(t, Config{Orchestrator: testOrchestrator(t, nil, testSources()...)})

	status, body := getJSON(t, ts.URL+"/api/cache-status")
	if status != http.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}
	if body["backend"] != "none" || body["connected"] != false {
		t.Errorf("Expected disabled cache report, got %v", body)
	}
}
