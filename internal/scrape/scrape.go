// Package scrape fetches a single lab or research-group page and extracts
// the text used for keyword resolution. It is a one-shot fetcher, not a
// crawler: every fetch is user-initiated and targets exactly one URL.
package scrape

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/siftlab/sift/internal/fingerprint"
	"github.com/siftlab/sift/pkg/httpclient"
	"github.com/siftlab/sift/pkg/useragent"
)

// Limits on extracted text. Keyword extraction prompts and heuristics only
// need the head of the page.
const (
	defaultMainContentLimit = 5000
	defaultFullTextLimit    = 10000

	// maxBodyBytes caps how much of a page is read into memory.
	maxBodyBytes = 2 << 20
)

// Config configures the page scraper.
type Config struct {
	Timeout      time.Duration
	MaxRedirects int
	UAPool       *useragent.Pool
	Fingerprint  fingerprint.Profile
	// Text caps; zero means the package default.
	MainContentLimit int
	FullTextLimit    int
	Logger           *slog.Logger
}

// Page holds the text extracted from one fetched page.
type Page struct {
	URL             string
	Title           string
	MetaDescription string
	Headings        []string
	MainContent     string
	FullText        string
	StatusCode      int
	FetchedAt       time.Time
}

// Scraper fetches pages with browser-like headers and an optional uTLS
// fingerprint. Holding one client across fetches keeps connection reuse.
type Scraper struct {
	cfg    Config
	client *httpclient.Client
	logger *slog.Logger
}

// New initializes a Scraper with the given configuration.
func New(cfg Config) (*Scraper, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.UAPool == nil {
		cfg.UAPool = useragent.NewPool(nil)
	}
	if string(cfg.Fingerprint) == "" {
		cfg.Fingerprint = fingerprint.ProfileChrome
	}
	if cfg.MainContentLimit <= 0 {
		cfg.MainContentLimit = defaultMainContentLimit
	}
	if cfg.FullTextLimit <= 0 {
		cfg.FullTextLimit = defaultFullTextLimit
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	transport, err := fingerprint.Transport(cfg.Fingerprint)
	if err != nil {
		return nil, fmt.Errorf("setup scrape transport: %w", err)
	}

	client, err := httpclient.New(httpclient.Config{
		Timeout:      cfg.Timeout,
		MaxRedirects: cfg.MaxRedirects,
		Transport:    transport,
	})
	if err != nil {
		return nil, fmt.Errorf("create scrape client: %w", err)
	}

	return &Scraper{cfg: cfg, client: client, logger: cfg.Logger}, nil
}

// Fetch retrieves pageURL and extracts its text. A bot-protection
// challenge surfaces as a *BlockedError so callers can report why the page
// yielded nothing.
func (s *Scraper) Fetch(ctx context.Context, pageURL string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build page request: %w", err)
	}

	req.Header.Set("User-Agent", s.cfg.UAPool.GetSequential())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	start := time.Now()
	resp, err := s.client.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("fetch page: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read page body: %w", err)
	}

	if vendor, blocked := detectChallenge(resp.StatusCode, resp.Header, body); blocked {
		s.logger.Warn("page fetch challenged", "url", pageURL, "vendor", vendor, "status", resp.StatusCode)
		return nil, &BlockedError{Vendor: vendor, StatusCode: resp.StatusCode}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("page fetch returned status %d", resp.StatusCode)
	}

	page, err := extract(body)
	if err != nil {
		return nil, err
	}
	page.URL = pageURL
	page.StatusCode = resp.StatusCode
	page.FetchedAt = start.UTC()
	page.MainContent = truncate(page.MainContent, s.cfg.MainContentLimit)
	page.FullText = truncate(page.FullText, s.cfg.FullTextLimit)

	s.logger.Debug("page fetched",
		"url", pageURL,
		"title", page.Title,
		"headings", len(page.Headings),
		"duration", time.Since(start),
	)
	return page, nil
}

// extract pulls the display text out of an HTML document: title, meta
// description, headings, and the page text with boilerplate elements
// stripped.
func extract(body []byte) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("parse page html: %w", err)
	}

	page := &Page{}

	page.Title = cleanText(doc.Find("title").First().Text())

	if desc, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok {
		page.MetaDescription = cleanText(desc)
	} else if og, ok := doc.Find(`meta[property="og:description"]`).Attr("content"); ok {
		page.MetaDescription = cleanText(og)
	}

	doc.Find("h1, h2, h3, h4, h5, h6").Each(func(_ int, sel *goquery.Selection) {
		if h := cleanText(sel.Text()); h != "" {
			page.Headings = append(page.Headings, h)
		}
	})

	// Strip chrome the keyword heuristics would otherwise pick up.
	doc.Find("script, style, nav, footer, header").Remove()

	main := doc.Find("main")
	if main.Length() == 0 {
		main = doc.Find("article")
	}
	if main.Length() == 0 {
		main = doc.Find("body")
	}
	page.MainContent = cleanText(main.Text())
	page.FullText = cleanText(doc.Find("body").Text())

	return page, nil
}

// cleanText collapses whitespace runs into single spaces.
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncate is applied after extraction so the caps land on cleaned text.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
