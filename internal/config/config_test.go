package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/siftlab/sift/internal/card"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":8000" {
		t.Errorf("server addr = %q, want :8000", cfg.Server.Addr)
	}
	if cfg.Cache.Backend != "memory" {
		t.Errorf("cache backend = %q, want memory", cfg.Cache.Backend)
	}
	if cfg.Request.Timeout != 10*time.Second {
		t.Errorf("request timeout = %v, want 10s", cfg.Request.Timeout)
	}
	if cfg.Sources.News.Provider != "newsapi" {
		t.Errorf("news provider = %q, want newsapi", cfg.Sources.News.Provider)
	}
	if cfg.Keywords.Max != 8 {
		t.Errorf("keywords max = %d, want 8", cfg.Keywords.Max)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sift.yaml")
	content := `
server:
  addr: ":9090"
cache:
  backend: sqlite
  dsn: /tmp/sift.db
  ttl:
    news: 30m
sources:
  news:
    provider: rss
    feeds:
      - https://example.com/feed.xml
request:
  timeout: 3s
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":9090" {
		t.Errorf("server addr = %q, want :9090", cfg.Server.Addr)
	}
	if cfg.Cache.Backend != "sqlite" || cfg.Cache.DSN != "/tmp/sift.db" {
		t.Errorf("cache = %q %q, want sqlite /tmp/sift.db", cfg.Cache.Backend, cfg.Cache.DSN)
	}
	if cfg.Request.Timeout != 3*time.Second {
		t.Errorf("request timeout = %v, want 3s", cfg.Request.Timeout)
	}
	if cfg.Sources.News.Provider != "rss" || len(cfg.Sources.News.Feeds) != 1 {
		t.Errorf("news = %+v, want rss with one feed", cfg.Sources.News)
	}
	// File sets only the news TTL; the others keep their defaults.
	ttls := cfg.TTLs()
	if ttls[card.TypeNews] != 30*time.Minute {
		t.Errorf("news ttl = %v, want 30m", ttls[card.TypeNews])
	}
	if ttls[card.TypeFunding] != 72*time.Hour {
		t.Errorf("funding ttl = %v, want 72h", ttls[card.TypeFunding])
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("SIFT_SERVER_ADDR", ":7777")
	t.Setenv("SIFT_CACHE_BACKEND", "none")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":7777" {
		t.Errorf("server addr = %q, want :7777", cfg.Server.Addr)
	}
	if cfg.Cache.Backend != "none" {
		t.Errorf("cache backend = %q, want none", cfg.Cache.Backend)
	}
}

func TestValidateRejectsUnknownBackend(t *testing.T) {
	t.Setenv("SIFT_CACHE_BACKEND", "redis")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for unknown cache backend")
	}
}

func TestSecretsFromEnvironment(t *testing.T) {
	t.Setenv("NEWS_API_KEY", "news-secret")
	t.Setenv("CACHE_DSN", "postgres://env-wins")
	t.Setenv("ANTHROPIC_API_KEY", "claude-secret")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg.Cache.DSN = "file-value"
	cfg.LLM.Provider = "anthropic"

	if got := cfg.NewsAPIKey(); got != "news-secret" {
		t.Errorf("NewsAPIKey = %q", got)
	}
	if got := cfg.CacheDSN(); got != "postgres://env-wins" {
		t.Errorf("CacheDSN = %q, want env value", got)
	}
	if got := cfg.LLMAPIKey(); got != "claude-secret" {
		t.Errorf("LLMAPIKey = %q", got)
	}
}
