// Package config loads the service configuration from an optional YAML
// file with SIFT_-prefixed environment overrides. Secrets (API keys, cache
// DSNs) are never read from the file, only from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/siftlab/sift/internal/cache"
	"github.com/siftlab/sift/internal/card"
)

// Config is the full service configuration. Zero config is a working
// config: memory cache, live upstream defaults, no LLM.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Request  RequestConfig  `mapstructure:"request"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Sources  SourcesConfig  `mapstructure:"sources"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Scrape   ScrapeConfig   `mapstructure:"scrape"`
	Keywords KeywordsConfig `mapstructure:"keywords"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug|info|warn|error
	Format string `mapstructure:"format"` // text|json
}

type MetricsConfig struct {
	// Port for the /metrics listener; 0 disables it.
	Port int `mapstructure:"port"`
}

type RequestConfig struct {
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxResults int           `mapstructure:"max_results"`
}

// CacheConfig selects the cache backend. DSN is the sqlite path, postgres
// DSN or mongo URI depending on the backend; the CACHE_DSN environment
// variable overrides it either way.
type CacheConfig struct {
	Backend  string        `mapstructure:"backend"` // memory|sqlite|postgres|mongo|none
	DSN      string        `mapstructure:"dsn"`
	Database string        `mapstructure:"database"` // mongo database name
	TTL      TTLConfig     `mapstructure:"ttl"`
	Timeout  time.Duration `mapstructure:"timeout"` // backend connect timeout
}

type TTLConfig struct {
	Funding time.Duration `mapstructure:"funding"`
	Papers  time.Duration `mapstructure:"papers"`
	News    time.Duration `mapstructure:"news"`
}

type SourcesConfig struct {
	Funding FundingConfig `mapstructure:"funding"`
	Papers  PapersConfig  `mapstructure:"papers"`
	News    NewsConfig    `mapstructure:"news"`
}

type FundingConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

type PapersConfig struct {
	BaseURL string  `mapstructure:"base_url"`
	RPS     float64 `mapstructure:"rps"`
}

// NewsConfig picks the news provider: "newsapi" needs NEWS_API_KEY in the
// environment, "rss" pulls the configured feeds without credentials.
type NewsConfig struct {
	Provider string   `mapstructure:"provider"` // newsapi|rss
	BaseURL  string   `mapstructure:"base_url"`
	Feeds    []string `mapstructure:"feeds"`
}

type LLMConfig struct {
	Provider  string `mapstructure:"provider"` // openai|anthropic
	Model     string `mapstructure:"model"`
	BaseURL   string `mapstructure:"base_url"`
	MaxTokens int    `mapstructure:"max_tokens"`
}

type ScrapeConfig struct {
	Timeout     time.Duration `mapstructure:"timeout"`
	Fingerprint string        `mapstructure:"fingerprint"` // chrome|firefox|safari|go|random
}

type KeywordsConfig struct {
	Max int `mapstructure:"max"`
}

// Load reads the configuration. An explicit path must exist; otherwise a
// sift.yaml next to the binary or in the working directory is used when
// present, and defaults apply when not.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("SIFT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("sift")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var nf viper.ConfigFileNotFoundError
			if !errors.As(err, &nf) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8000")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("metrics.port", 0)
	v.SetDefault("request.timeout", "10s")
	v.SetDefault("request.max_results", 10)
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.database", "sift")
	v.SetDefault("cache.ttl.funding", "72h")
	v.SetDefault("cache.ttl.papers", "24h")
	v.SetDefault("cache.ttl.news", "6h")
	v.SetDefault("cache.timeout", "10s")
	v.SetDefault("sources.papers.rps", 3)
	v.SetDefault("sources.news.provider", "newsapi")
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.max_tokens", 1024)
	v.SetDefault("scrape.timeout", "15s")
	v.SetDefault("scrape.fingerprint", "chrome")
	v.SetDefault("keywords.max", 8)
}

func (c *Config) validate() error {
	switch c.Cache.Backend {
	case "memory", "sqlite", "postgres", "mongo", "none", "":
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}
	switch c.Sources.News.Provider {
	case "newsapi", "rss", "":
	default:
		return fmt.Errorf("unknown news provider %q", c.Sources.News.Provider)
	}
	switch c.LLM.Provider {
	case "openai", "anthropic", "":
	default:
		return fmt.Errorf("unknown llm provider %q", c.LLM.Provider)
	}
	return nil
}

// TTLs converts the configured staleness windows into the cache table.
func (c *Config) TTLs() cache.TTLTable {
	t := cache.DefaultTTLs()
	if c.Cache.TTL.Funding > 0 {
		t[card.TypeFunding] = c.Cache.TTL.Funding
	}
	if c.Cache.TTL.Papers > 0 {
		t[card.TypePaper] = c.Cache.TTL.Papers
	}
	if c.Cache.TTL.News > 0 {
		t[card.TypeNews] = c.Cache.TTL.News
	}
	return t
}

// CacheDSN resolves the cache connection string, preferring the CACHE_DSN
// environment variable over the file value.
func (c *Config) CacheDSN() string {
	if dsn := os.Getenv("CACHE_DSN"); dsn != "" {
		return dsn
	}
	return c.Cache.DSN
}

// NewsAPIKey reads the NewsAPI credential from the environment.
func (c *Config) NewsAPIKey() string {
	return os.Getenv("NEWS_API_KEY")
}

// LLMAPIKey reads the credential matching the configured LLM provider.
func (c *Config) LLMAPIKey() string {
	if c.LLM.Provider == "anthropic" {
		return os.Getenv("ANTHROPIC_API_KEY")
	}
	return os.Getenv("OPENAI_API_KEY")
}
