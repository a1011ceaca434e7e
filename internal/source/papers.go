package source

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/siftlab/sift/internal/card"
	"github.com/siftlab/sift/pkg/httpclient"
	"github.com/siftlab/sift/pkg/ratelimit"
)

const defaultEutilsBase = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

// defaultPubmedRPS follows NCBI etiquette for keyless E-utilities access.
const defaultPubmedRPS = 3

// PapersConfig configures the PubMed client.
type PapersConfig struct {
	BaseURL string
	RPS     float64
	Timeout time.Duration
	Logger  *slog.Logger
}

// Papers searches PubMed through the E-utilities esearch and esummary
// endpoints. Both calls go through a shared rate limiter.
type Papers struct {
	cfg     PapersConfig
	http    *httpclient.Client
	limiter *ratelimit.Limiter
}

var _ Source = (*Papers)(nil)

// NewPapers creates the PubMed source.
func NewPapers(cfg PapersConfig) (*Papers, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultEutilsBase
	}
	if cfg.RPS <= 0 {
		cfg.RPS = defaultPubmedRPS
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	hc, err := httpclient.New(httpclient.Config{Timeout: cfg.Timeout})
	if err != nil {
		return nil, fmt.Errorf("create pubmed client: %w", err)
	}
	return &Papers{cfg: cfg, http: hc, limiter: ratelimit.NewLimiter(cfg.RPS)}, nil
}

func (p *Papers) Tag() card.Type {
	return card.TypePaper
}

// Close stops the rate limiter's ticker.
func (p *Papers) Close() {
	p.limiter.Stop()
}

type esearchResponse struct {
	ESearchResult struct {
		IDList []string `json:"idlist"`
	} `json:"esearchresult"`
}

type esummaryResponse struct {
	Result map[string]json.RawMessage `json:"result"`
}

type pubmedSummary struct {
	Title   string `json:"title"`
	PubDate string `json:"pubdate"`
	Source  string `json:"source"`
	Authors []struct {
		Name string `json:"name"`
	} `json:"authors"`
}

// Search runs esearch for PMIDs sorted by date, then esummary for their
// details, and normalizes each summary into a paper card.
func (p *Papers) Search(ctx context.Context, q Query) ([]card.Card, error) {
	uids, err := p.esearch(ctx, q.Text, q.Limit())
	if err != nil {
		return nil, err
	}
	if len(uids) == 0 {
		return nil, nil
	}

	summaries, order, err := p.esummary(ctx, uids)
	if err != nil {
		return nil, err
	}

	cards := make([]card.Card, 0, len(order))
	for _, uid := range order {
		item, ok := summaries[uid]
		if !ok || item.Title == "" {
			continue
		}
		authors := make([]string, 0, len(item.Authors))
		for _, a := range item.Authors {
			if a.Name != "" {
				authors = append(authors, a.Name)
			}
		}
		m := card.Meta{
			PublishedDate: item.PubDate,
			Authors:       authors,
			URL:           fmt.Sprintf("https://pubmed.ncbi.nlm.nih.gov/%s/", uid),
			Source:        item.Source,
			Extra:         map[string]any{"pubmed_id": uid},
		}
		cards = append(cards, card.Paper(item.Title, rankScore(len(cards)), m))
	}

	p.cfg.Logger.Debug("papers search complete", "query", q.Text, "cards", len(cards))
	return cards, nil
}

func (p *Papers) esearch(ctx context.Context, term string, limit int) ([]string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("pubmed rate limit: %w", err)
	}

	params := url.Values{}
	params.Set("db", "pubmed")
	params.Set("term", term)
	params.Set("retmode", "json")
	params.Set("retmax", strconv.Itoa(limit))
	params.Set("sort", "date")

	req, err := http.NewRequest(http.MethodGet, p.cfg.BaseURL+"/esearch.fcgi?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build esearch request: %w", err)
	}

	var out esearchResponse
	if err := p.http.DoJSON(ctx, req, &out); err != nil {
		return nil, fmt.Errorf("pubmed esearch: %w", err)
	}
	return out.ESearchResult.IDList, nil
}

// esummary returns the parsed summaries keyed by uid plus the uid order
// reported by PubMed, which preserves the esearch date sort.
func (p *Papers) esummary(ctx context.Context, uids []string) (map[string]pubmedSummary, []string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, nil, fmt.Errorf("pubmed rate limit: %w", err)
	}

	params := url.Values{}
	params.Set("db", "pubmed")
	params.Set("id", strings.Join(uids, ","))
	params.Set("retmode", "json")

	req, err := http.NewRequest(http.MethodGet, p.cfg.BaseURL+"/esummary.fcgi?"+params.Encode(), nil)
	if err != nil {
		return nil, nil, fmt.Errorf("build esummary request: %w", err)
	}

	var out esummaryResponse
	if err := p.http.DoJSON(ctx, req, &out); err != nil {
		return nil, nil, fmt.Errorf("pubmed esummary: %w", err)
	}

	var order []string
	if rawUIDs, ok := out.Result["uids"]; ok {
		if err := json.Unmarshal(rawUIDs, &order); err != nil {
			return nil, nil, fmt.Errorf("decode esummary uid list: %w", err)
		}
	}
	if len(order) == 0 {
		order = uids
	}

	summaries := make(map[string]pubmedSummary, len(order))
	for _, uid := range order {
		raw, ok := out.Result[uid]
		if !ok {
			continue
		}
		var item pubmedSummary
		if err := json.Unmarshal(raw, &item); err != nil {
			p.cfg.Logger.Warn("skipping malformed pubmed summary", "uid", uid, "error", err)
			continue
		}
		summaries[uid] = item
	}
	return summaries, order, nil
}
