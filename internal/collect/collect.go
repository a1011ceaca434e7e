// Package collect runs one upstream source behind the shared cache. A
// Collector owns the full fetch cycle for its source: key the request,
// short-circuit on a fresh cache entry, otherwise search upstream (fanning
// out across keywords when present), and write the result back.
package collect

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/siftlab/sift/internal/cache"
	"github.com/siftlab/sift/internal/card"
	"github.com/siftlab/sift/internal/metrics"
	"github.com/siftlab/sift/internal/source"
)

// CollectorError reports one source's failure. It is data, not a crash: the
// orchestrator accumulates these into the envelope's errors list while
// sibling collectors keep running.
type CollectorError struct {
	Source  string
	Message string
	Err     error
}

func (e *CollectorError) Error() string {
	return fmt.Sprintf("%s collector: %s", e.Source, e.Message)
}

func (e *CollectorError) Unwrap() error {
	return e.Err
}

// Request is a resolved search handed to a collector. Seed feeds the cache
// fingerprint; Text is the search string sent upstream when no keywords are
// present.
type Request struct {
	Seed       string
	Text       string
	Keywords   []string
	MaxResults int
}

// defaultKeywordConcurrency bounds the per-collector keyword fan-out.
const defaultKeywordConcurrency = 4

// Config wires a collector's shared dependencies.
type Config struct {
	Store              cache.Store
	TTLs               cache.TTLTable
	KeywordConcurrency int
	Logger             *slog.Logger
}

// Collector pairs one source with the cache.
type Collector struct {
	src source.Source
	cfg Config
}

// New creates a collector for the given source. A nil Store disables
// caching; every run then goes upstream.
func New(src source.Source, cfg Config) *Collector {
	if cfg.TTLs == nil {
		cfg.TTLs = cache.DefaultTTLs()
	}
	if cfg.KeywordConcurrency <= 0 {
		cfg.KeywordConcurrency = defaultKeywordConcurrency
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Collector{src: src, cfg: cfg}
}

// Source reports the card type tag of the wrapped source.
func (c *Collector) Source() string {
	return string(c.src.Tag())
}

// Collect returns the cards for the request, from cache when fresh and from
// upstream otherwise. Upstream results are written back best-effort: a
// failing store degrades to cache-miss behavior and never fails the run.
// All failures come back as *CollectorError.
func (c *Collector) Collect(ctx context.Context, req Request) ([]card.Card, error) {
	tag := c.src.Tag()
	tagStr := string(tag)
	started := time.Now()
	maxResults := req.MaxResults
	if maxResults <= 0 {
		maxResults = source.DefaultMaxResults
	}

	key := cache.Key(tag, req.Seed, map[string]string{"max": strconv.Itoa(maxResults)})
	logger := c.cfg.Logger.With("source", tagStr)

	if c.cfg.Store != nil {
		entry, err := c.cfg.Store.Get(ctx, key)
		switch {
		case err != nil:
			metrics.RecordCacheOp("get", "error")
			logger.Warn("cache read failed, treating as miss", "error", err)
		case entry == nil:
			metrics.RecordCacheOp("get", "miss")
		case entry.Stale(time.Now(), c.cfg.TTLs.For(tag)):
			metrics.RecordCacheOp("get", "stale")
		default:
			metrics.RecordCacheOp("get", "hit")
			metrics.RecordCollector(tagStr, "cached", time.Since(started))
			logger.Debug("cache hit", "cards", len(entry.Records), "fetched_at", entry.FetchedAt)
			return entry.Records, nil
		}
	}

	cards, err := c.search(ctx, req, maxResults)
	if err != nil {
		metrics.RecordCollector(tagStr, "error", time.Since(started))
		logger.Warn("collector failed", "error", err)
		return nil, &CollectorError{Source: tagStr, Message: err.Error(), Err: err}
	}

	if c.cfg.Store != nil {
		entry := &cache.Entry{Key: key, Source: tag, Records: cards, FetchedAt: time.Now()}
		if err := c.cfg.Store.Put(ctx, entry); err != nil {
			metrics.RecordCacheOp("put", "error")
			logger.Warn("cache write failed", "error", err)
		} else {
			metrics.RecordCacheOp("put", "ok")
		}
	}

	metrics.RecordCollector(tagStr, "success", time.Since(started))
	logger.Debug("collector complete", "cards", len(cards), "elapsed", time.Since(started))
	return cards, nil
}

// search runs one upstream query, or one per keyword when keywords are
// present. The fan-out result keeps keyword order and drops cards whose id
// already appeared, so identical upstream data always merges identically.
func (c *Collector) search(ctx context.Context, req Request, maxResults int) ([]card.Card, error) {
	if len(req.Keywords) == 0 {
		return c.src.Search(ctx, source.Query{Text: req.Text, MaxResults: maxResults})
	}

	results := make([][]card.Card, len(req.Keywords))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.KeywordConcurrency)
	for i, kw := range req.Keywords {
		g.Go(func() error {
			cards, err := c.src.Search(gctx, source.Query{Text: kw, MaxResults: maxResults})
			if err != nil {
				return fmt.Errorf("keyword %q: %w", kw, err)
			}
			results[i] = cards
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	merged := make([]card.Card, 0, maxResults)
	for _, cards := range results {
		for _, cd := range cards {
			if _, dup := seen[cd.ID]; dup {
				continue
			}
			seen[cd.ID] = struct{}{}
			merged = append(merged, cd)
		}
	}
	if len(merged) > maxResults {
		merged = merged[:maxResults]
	}
	return merged, nil
}
