package source

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/siftlab/sift/internal/card"
)

// defaultRSSMaxAge drops feed items older than a week.
const defaultRSSMaxAge = 7 * 24 * time.Hour

// RSSConfig configures the feed-backed news source.
type RSSConfig struct {
	Feeds  []string
	MaxAge time.Duration
	Logger *slog.Logger
}

// RSS is the keyless alternative to NewsAPI: it pulls the configured feeds
// and keeps the items whose title or description matches the query.
type RSS struct {
	cfg    RSSConfig
	parser *gofeed.Parser
}

var _ Source = (*RSS)(nil)

// NewRSS creates the feed source.
func NewRSS(cfg RSSConfig) *RSS {
	if cfg.MaxAge == 0 {
		cfg.MaxAge = defaultRSSMaxAge
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &RSS{cfg: cfg, parser: gofeed.NewParser()}
}

func (r *RSS) Tag() card.Type {
	return card.TypeNews
}

type feedItem struct {
	title     string
	desc      string
	outlet    string
	link      string
	published time.Time
}

// Search fetches every configured feed concurrently, filters items by the
// query terms and recency, and returns the newest matches as news cards.
// Individual feed failures are logged and skipped; only all feeds failing
// is an error.
func (r *RSS) Search(ctx context.Context, q Query) ([]card.Card, error) {
	if len(r.cfg.Feeds) == 0 {
		return nil, nil
	}

	var (
		mu       sync.Mutex
		items    []feedItem
		failures int
		wg       sync.WaitGroup
	)

	for _, feedURL := range r.cfg.Feeds {
		wg.Add(1)
		go func(feedURL string) {
			defer wg.Done()
			fetched, err := r.fetchFeed(ctx, feedURL)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures++
				r.cfg.Logger.Warn("rss feed fetch failed", "feed", feedURL, "error", err)
				return
			}
			items = append(items, fetched...)
		}(feedURL)
	}
	wg.Wait()

	if failures == len(r.cfg.Feeds) {
		return nil, fmt.Errorf("all %d rss feeds failed", failures)
	}

	terms := queryTerms(q)
	matched := items[:0]
	for _, it := range items {
		if matchesTerms(it, terms) {
			matched = append(matched, it)
		}
	}

	// Newest first; title breaks publish-time ties so output order does not
	// depend on which feed goroutine finished first.
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].published.Equal(matched[j].published) {
			return matched[i].published.After(matched[j].published)
		}
		return matched[i].title < matched[j].title
	})
	if len(matched) > q.Limit() {
		matched = matched[:q.Limit()]
	}

	cards := make([]card.Card, 0, len(matched))
	for _, it := range matched {
		m := card.Meta{
			PublishedDate: it.published.UTC().Format(time.RFC3339),
			Outlet:        it.outlet,
			URL:           it.link,
			Source:        "rss",
		}
		cards = append(cards, card.News(it.title, rankScore(len(cards)), m))
	}

	r.cfg.Logger.Debug("rss search complete", "query", q.Text, "feeds", len(r.cfg.Feeds), "cards", len(cards))
	return cards, nil
}

func (r *RSS) fetchFeed(ctx context.Context, feedURL string) ([]feedItem, error) {
	feed, err := r.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	now := time.Now()
	cutoff := now.Add(-r.cfg.MaxAge)
	items := make([]feedItem, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item.Title == "" {
			continue
		}
		pub := now
		if item.PublishedParsed != nil {
			pub = *item.PublishedParsed
		} else if item.UpdatedParsed != nil {
			pub = *item.UpdatedParsed
		}
		if pub.Before(cutoff) {
			continue
		}
		desc := item.Description
		if desc == "" {
			desc = item.Content
		}
		items = append(items, feedItem{
			title:     item.Title,
			desc:      stripHTML(desc),
			outlet:    feed.Title,
			link:      item.Link,
			published: pub,
		})
	}
	return items, nil
}

// queryTerms lowercases the query text words and keywords into one term
// list. An empty list means "match everything".
func queryTerms(q Query) []string {
	var terms []string
	for _, w := range strings.Fields(strings.ToLower(q.Text)) {
		if len(w) >= 3 {
			terms = append(terms, w)
		}
	}
	for _, k := range q.Keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			terms = append(terms, k)
		}
	}
	return terms
}

func matchesTerms(it feedItem, terms []string) bool {
	if len(terms) == 0 {
		return true
	}
	haystack := strings.ToLower(it.title + " " + it.desc)
	for _, t := range terms {
		if strings.Contains(haystack, t) {
			return true
		}
	}
	return false
}

func stripHTML(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
