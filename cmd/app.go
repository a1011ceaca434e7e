package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/siftlab/sift/internal/cache"
	"github.com/siftlab/sift/internal/cache/memory"
	"github.com/siftlab/sift/internal/cache/mongo"
	"github.com/siftlab/sift/internal/cache/postgres"
	"github.com/siftlab/sift/internal/cache/sqlite"
	"github.com/siftlab/sift/internal/collect"
	"github.com/siftlab/sift/internal/config"
	"github.com/siftlab/sift/internal/fingerprint"
	"github.com/siftlab/sift/internal/keywords"
	"github.com/siftlab/sift/internal/llm"
	"github.com/siftlab/sift/internal/mindmap"
	"github.com/siftlab/sift/internal/orchestrate"
	"github.com/siftlab/sift/internal/query"
	"github.com/siftlab/sift/internal/scrape"
	"github.com/siftlab/sift/internal/source"
	"github.com/siftlab/sift/internal/summary"
)

// app is the assembled service: every collaborator constructed once and
// passed by reference, no ambient singletons.
type app struct {
	cfg          *config.Config
	logger       *slog.Logger
	store        cache.Store
	storeKind    string
	orchestrator *orchestrate.Orchestrator
	summarizer   *summary.Summarizer
	mindmap      *mindmap.Generator
	closers      []func()
}

// newApp wires the full dependency graph from the configuration. A cache
// backend that cannot be reached and a missing LLM key both degrade the
// service instead of stopping it.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	a.store, a.storeKind = openStore(ctx, cfg, logger)
	if a.store != nil {
		store := a.store
		a.closers = append(a.closers, func() { _ = store.Close() })
	}

	client := newLLMClient(cfg, logger)

	scraper, err := scrape.New(scrape.Config{
		Timeout:     cfg.Scrape.Timeout,
		Fingerprint: fingerprint.Profile(cfg.Scrape.Fingerprint),
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("setup scraper: %w", err)
	}

	resolverCfg := query.Config{
		Scraper:     scraper,
		Heuristic:   keywords.NewHeuristic(),
		MaxKeywords: cfg.Keywords.Max,
		Logger:      logger,
	}
	if client != nil {
		resolverCfg.LLM = keywords.NewLLM(client)
	}
	resolver := query.NewResolver(resolverCfg)

	collectors, err := a.buildCollectors(cfg, logger)
	if err != nil {
		return nil, err
	}

	a.orchestrator, err = orchestrate.New(orchestrate.Config{
		Resolver:   resolver,
		Collectors: collectors,
		Timeout:    cfg.Request.Timeout,
		MaxResults: cfg.Request.MaxResults,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("setup orchestrator: %w", err)
	}

	a.summarizer = summary.New(summary.Config{Client: client, Logger: logger})
	if client != nil {
		a.mindmap = mindmap.New(mindmap.Config{Client: client, Logger: logger})
	}
	return a, nil
}

// buildCollectors constructs the three sources behind their shared
// cache-aware wrapper.
func (a *app) buildCollectors(cfg *config.Config, logger *slog.Logger) ([]*collect.Collector, error) {
	shared := collect.Config{
		Store:  a.store,
		TTLs:   cfg.TTLs(),
		Logger: logger,
	}

	funding, err := source.NewFunding(source.FundingConfig{
		BaseURL: cfg.Sources.Funding.BaseURL,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("setup funding source: %w", err)
	}

	papers, err := source.NewPapers(source.PapersConfig{
		BaseURL: cfg.Sources.Papers.BaseURL,
		RPS:     cfg.Sources.Papers.RPS,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("setup papers source: %w", err)
	}
	a.closers = append(a.closers, papers.Close)

	var news source.Source
	if cfg.Sources.News.Provider == "rss" {
		news = source.NewRSS(source.RSSConfig{
			Feeds:  cfg.Sources.News.Feeds,
			Logger: logger,
		})
	} else {
		news, err = source.NewNews(source.NewsConfig{
			BaseURL: cfg.Sources.News.BaseURL,
			APIKey:  cfg.NewsAPIKey(),
			Logger:  logger,
		})
		if err != nil {
			return nil, fmt.Errorf("setup news source: %w", err)
		}
	}

	return []*collect.Collector{
		collect.New(funding, shared),
		collect.New(papers, shared),
		collect.New(news, shared),
	}, nil
}

// Close releases the app's resources in reverse construction order.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// openStore connects the configured cache backend. Connection failures are
// logged and the service runs without a cache; only requests get slower.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (cache.Store, string) {
	connectCtx, cancel := context.WithTimeout(ctx, cfg.Cache.Timeout)
	defer cancel()

	backend := cfg.Cache.Backend
	dsn := cfg.CacheDSN()

	var (
		store cache.Store
		err   error
	)
	switch backend {
	case "none":
		return nil, "none"
	case "memory", "":
		return memory.New(), "memory"
	case "sqlite":
		if dsn == "" {
			dsn = "sift.db"
		}
		store, err = sqlite.New(dsn)
	case "postgres":
		store, err = postgres.New(connectCtx, dsn)
	case "mongo":
		if dsn == "" {
			dsn = "mongodb://localhost:27017"
		}
		store, err = mongo.New(connectCtx, dsn, cfg.Cache.Database)
	}
	if err != nil {
		logger.Warn("cache backend unavailable, running without cache",
			"backend", backend, "error", err)
		return nil, "none"
	}

	if err := store.Ping(connectCtx); err != nil {
		logger.Warn("cache backend unreachable, running without cache",
			"backend", backend, "error", err)
		_ = store.Close()
		return nil, "none"
	}

	logger.Info("cache connected", "backend", backend)
	return store, backend
}

// newLLMClient builds the completion client, or nil when no key is set.
func newLLMClient(cfg *config.Config, logger *slog.Logger) llm.Client {
	client, err := llm.New(llm.Config{
		Provider:  cfg.LLM.Provider,
		Model:     cfg.LLM.Model,
		BaseURL:   cfg.LLM.BaseURL,
		MaxTokens: cfg.LLM.MaxTokens,
	}, cfg.LLMAPIKey())
	if err != nil {
		if errors.Is(err, llm.ErrNotConfigured) {
			logger.Info("no llm key configured, keyword extraction and summaries run degraded")
		} else {
			logger.Warn("llm client unavailable", "error", err)
		}
		return nil
	}
	logger.Info("llm client ready", "provider", cfg.LLM.Provider)
	return client
}
