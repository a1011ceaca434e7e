package source

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/siftlab/sift/internal/card"
)

func rssFixture(feedTitle string, items ...[2]string) string {
	pub := time.Now().Add(-24 * time.Hour).Format(time.RFC1123Z)
	body := fmt.Sprintf(`<?xml version="1.0"?><rss version="2.0"><channel><title>%s</title>`, feedTitle)
	for i, it := range items {
		body += fmt.Sprintf(
			`<item><title>%s</title><link>https://example.org/%d</link><description>%s</description><pubDate>%s</pubDate></item>`,
			it[0], i, it[1], pub)
	}
	return body + `</channel></rss>`
}

func TestRSSSearchFiltersByQuery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, rssFixture("Lab Bulletin",
			[2]string{"Genomics consortium announces new atlas", "single-cell data release"},
			[2]string{"Football results roundup", "sports scores"},
			[2]string{"Sequencing costs drop again", "genomics milestone"},
		))
	}))
	defer server.Close()

	r := NewRSS(RSSConfig{Feeds: []string{server.URL}, Logger: discardLogger()})
	cards, err := r.Search(context.Background(), Query{Text: "genomics", MaxResults: 10})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(cards) != 2 {
		t.Fatalf("Expected 2 matching cards, got %d: %+v", len(cards), cards)
	}
	for _, c := range cards {
		if c.Type != card.TypeNews {
			t.Errorf("Expected news type, got %s", c.Type)
		}
		if c.Meta.Outlet != "Lab Bulletin" {
			t.Errorf("Expected feed title as outlet, got %q", c.Meta.Outlet)
		}
		if c.Meta.Source != "rss" {
			t.Errorf("Expected source rss, got %q", c.Meta.Source)
		}
	}
}

func TestRSSSearchMatchesKeywords(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, rssFixture("Feed",
			[2]string{"Advances in cryo-em resolution", ""},
			[2]string{"Unrelated item", ""},
		))
	}))
	defer server.Close()

	r := NewRSS(RSSConfig{Feeds: []string{server.URL}, Logger: discardLogger()})
	cards, err := r.Search(context.Background(), Query{Text: "zzz", Keywords: []string{"cryo-em"}})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(cards) != 1 {
		t.Fatalf("Expected keyword match, got %d cards", len(cards))
	}
}

func TestRSSSearchPartialFeedFailure(t *testing.T) {
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, rssFixture("Good Feed", [2]string{"Genomics update", ""}))
	}))
	defer good.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusInternalServerError)
	}))
	defer bad.Close()

	r := NewRSS(RSSConfig{Feeds: []string{good.URL, bad.URL}, Logger: discardLogger()})
	cards, err := r.Search(context.Background(), Query{Text: "genomics"})
	if err != nil {
		t.Fatalf("Expected partial failure tolerated, got %v", err)
	}
	if len(cards) != 1 {
		t.Errorf("Expected card from surviving feed, got %d", len(cards))
	}
}

func TestRSSSearchAllFeedsFail(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusInternalServerError)
	}))
	defer bad.Close()

	r := NewRSS(RSSConfig{Feeds: []string{bad.URL}, Logger: discardLogger()})
	if _, err := r.Search(context.Background(), Query{Text: "x"}); err == nil {
		t.Error("Expected error when every feed fails")
	}
}

func TestRSSSearchNoFeeds(t *testing.T) {
	r := NewRSS(RSSConfig{Logger: discardLogger()})
	cards, err := r.Search(context.Background(), Query{Text: "x"})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if cards != nil {
		t.Errorf("Expected nil cards without feeds, got %v", cards)
	}
}

func TestRSSSearchCapsResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, rssFixture("Feed",
			[2]string{"genomics a", ""}, [2]string{"genomics b", ""},
			[2]string{"genomics c", ""}, [2]string{"genomics d", ""},
		))
	}))
	defer server.Close()

	r := NewRSS(RSSConfig{Feeds: []string{server.URL}, Logger: discardLogger()})
	cards, err := r.Search(context.Background(), Query{Text: "genomics", MaxResults: 2})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(cards) != 2 {
		t.Errorf("Expected cap of 2 cards, got %d", len(cards))
	}
}

func TestRankScore(t *testing.T) {
	if got := rankScore(0); got != 0.95 {
		t.Errorf("Expected 0.95 for first result, got %v", got)
	}
	if got := rankScore(8); got != 0.55 {
		t.Errorf("Expected 0.55 for ninth result, got %v", got)
	}
	if got := rankScore(30); got != 0.50 {
		t.Errorf("Expected floor of 0.50, got %v", got)
	}
}
