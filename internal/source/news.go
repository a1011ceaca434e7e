package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/siftlab/sift/internal/card"
	"github.com/siftlab/sift/pkg/httpclient"
)

const defaultNewsAPIBase = "https://newsapi.org/v2"

// ErrMissingCredentials is returned by News.Search when no API key is
// configured. The collector reports it as a per-source error while the
// other sources keep going.
var ErrMissingCredentials = errors.New("NEWS_API_KEY is not set")

// NewsConfig configures the NewsAPI client.
type NewsConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	Logger  *slog.Logger
}

// News searches the NewsAPI everything endpoint.
type News struct {
	cfg  NewsConfig
	http *httpclient.Client
}

var _ Source = (*News)(nil)

// NewNews creates the NewsAPI source. A missing key is not an error here;
// Search reports it per call so the service can start without one.
func NewNews(cfg NewsConfig) (*News, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultNewsAPIBase
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	hc, err := httpclient.New(httpclient.Config{Timeout: cfg.Timeout})
	if err != nil {
		return nil, fmt.Errorf("create newsapi client: %w", err)
	}
	return &News{cfg: cfg, http: hc}, nil
}

func (n *News) Tag() card.Type {
	return card.TypeNews
}

type newsAPIResponse struct {
	Status   string `json:"status"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	Articles []struct {
		Source struct {
			Name string `json:"name"`
		} `json:"source"`
		Title       string `json:"title"`
		URL         string `json:"url"`
		PublishedAt string `json:"publishedAt"`
	} `json:"articles"`
}

// Search queries everything sorted by publish date and normalizes articles
// into news cards. Articles NewsAPI has redacted arrive with the literal
// title "[Removed]" and are dropped.
func (n *News) Search(ctx context.Context, q Query) ([]card.Card, error) {
	if n.cfg.APIKey == "" {
		return nil, ErrMissingCredentials
	}

	params := url.Values{}
	params.Set("q", q.Text)
	params.Set("pageSize", strconv.Itoa(q.Limit()))
	params.Set("sortBy", "publishedAt")
	params.Set("language", "en")

	req, err := http.NewRequest(http.MethodGet, n.cfg.BaseURL+"/everything?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build newsapi request: %w", err)
	}
	req.Header.Set("X-Api-Key", n.cfg.APIKey)

	var out newsAPIResponse
	if err := n.http.DoJSON(ctx, req, &out); err != nil {
		return nil, fmt.Errorf("newsapi search: %w", err)
	}
	if out.Status != "ok" {
		return nil, fmt.Errorf("newsapi search: %s: %s", out.Code, out.Message)
	}

	cards := make([]card.Card, 0, len(out.Articles))
	for _, a := range out.Articles {
		if a.Title == "" || a.Title == "[Removed]" {
			continue
		}
		m := card.Meta{
			PublishedDate: a.PublishedAt,
			Outlet:        a.Source.Name,
			URL:           a.URL,
			Source:        "newsapi",
		}
		cards = append(cards, card.News(a.Title, rankScore(len(cards)), m))
	}

	n.cfg.Logger.Debug("news search complete", "query", q.Text, "cards", len(cards))
	return cards, nil
}
