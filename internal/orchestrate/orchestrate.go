// Package orchestrate fans one resolved request out to its collectors and
// joins the outcomes into a single response envelope. A request is never
// failed by its sources: collector errors become envelope data, and only
// invalid input surfaces to the caller as an error.
package orchestrate

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/siftlab/sift/internal/card"
	"github.com/siftlab/sift/internal/collect"
	"github.com/siftlab/sift/internal/metrics"
	"github.com/siftlab/sift/internal/query"
	"github.com/siftlab/sift/internal/rank"
)

// defaultTimeout caps how long a request waits on its collectors.
const defaultTimeout = 10 * time.Second

// SourceError is one collector's failure as envelope data.
type SourceError struct {
	Source  string `json:"source"`
	Message string `json:"message"`
}

// Envelope is the response for every feed request. The typed lists hold
// each source's cards in upstream order; InboxCards is the ranked union.
// Wire names are fixed: funding cards travel under "grants".
type Envelope struct {
	UserQuery  string         `json:"user_query"`
	Intent     query.Intent   `json:"intent"`
	LabURL     string         `json:"lab_url,omitempty"`
	LabProfile map[string]any `json:"lab_profile,omitempty"`
	Grants     []card.Card    `json:"grants"`
	Papers     []card.Card    `json:"papers"`
	News       []card.Card    `json:"news"`
	InboxCards []card.Card    `json:"inbox_cards"`
	Errors     []SourceError  `json:"errors"`
}

// Config wires an orchestrator.
type Config struct {
	Resolver   *query.Resolver
	Collectors []*collect.Collector
	Timeout    time.Duration
	MaxResults int
	Logger     *slog.Logger
}

// Orchestrator owns the dispatch/join cycle for feed requests.
type Orchestrator struct {
	cfg   Config
	byTag map[card.Type]*collect.Collector
}

// New constructs an orchestrator from explicit dependencies.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Resolver == nil {
		return nil, errors.New("orchestrator requires a resolver")
	}
	if len(cfg.Collectors) == 0 {
		return nil, errors.New("orchestrator requires at least one collector")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	byTag := make(map[card.Type]*collect.Collector, len(cfg.Collectors))
	for _, col := range cfg.Collectors {
		byTag[card.Type(col.Source())] = col
	}
	return &Orchestrator{cfg: cfg, byTag: byTag}, nil
}

type outcome struct {
	tag   card.Type
	cards []card.Card
	err   error
}

// Handle resolves the request, runs the selected collectors concurrently,
// waits for all of them up to the configured timeout, and assembles the
// envelope. Collectors still running at the deadline are abandoned and
// reported as timed out; results that already arrived are kept. The only
// error return is a *query.ValidationError.
func (o *Orchestrator) Handle(ctx context.Context, req query.Request) (*Envelope, error) {
	requestID := uuid.NewString()
	logger := o.cfg.Logger.With("request_id", requestID)
	started := time.Now()

	resolved, err := o.cfg.Resolver.Resolve(ctx, req)
	if err != nil {
		var ve *query.ValidationError
		if errors.As(err, &ve) {
			return nil, err
		}
		// Resolution failures outside validation (lab page unreachable,
		// nothing to extract) still produce a well-formed envelope.
		logger.Warn("request resolution failed", "error", err)
		return o.unresolvedEnvelope(req, err), nil
	}

	logger = logger.With("intent", string(resolved.Intent))
	collectors := o.selected(resolved.Intent)

	reqCtx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	defer cancel()

	chans := make([]chan outcome, len(collectors))
	for i, col := range collectors {
		ch := make(chan outcome, 1)
		chans[i] = ch
		go func(col *collect.Collector) {
			tag := card.Type(col.Source())
			cards, err := col.Collect(reqCtx, collect.Request{
				Seed:       resolved.Seed,
				Text:       resolved.Query,
				Keywords:   resolved.Keywords,
				MaxResults: o.cfg.MaxResults,
			})
			ch <- outcome{tag: tag, cards: cards, err: err}
		}(col)
	}

	outcomes := make([]outcome, 0, len(collectors))
	for i, col := range collectors {
		tag := card.Type(col.Source())
		select {
		case out := <-chans[i]:
			outcomes = append(outcomes, out)
		case <-reqCtx.Done():
			// The collector may have finished between the deadline firing
			// and this select; its buffered result still counts.
			select {
			case out := <-chans[i]:
				outcomes = append(outcomes, out)
			default:
				metrics.RecordCollector(string(tag), "timeout", time.Since(started))
				logger.Warn("collector abandoned at deadline", "source", string(tag))
				outcomes = append(outcomes, outcome{tag: tag, err: &collect.CollectorError{
					Source:  string(tag),
					Message: "timed out after " + o.cfg.Timeout.String(),
					Err:     reqCtx.Err(),
				}})
			}
		}
	}

	env := o.assemble(resolved, req, outcomes)
	logger.Info("request complete",
		"grants", len(env.Grants),
		"papers", len(env.Papers),
		"news", len(env.News),
		"errors", len(env.Errors),
		"elapsed", time.Since(started))
	return env, nil
}

// selected returns the collectors for the intent in fixed dispatch order,
// skipping tags no collector was configured for.
func (o *Orchestrator) selected(intent query.Intent) []*collect.Collector {
	var tags []card.Type
	switch intent {
	case query.IntentGrants:
		tags = []card.Type{card.TypeFunding}
	case query.IntentPapers:
		tags = []card.Type{card.TypePaper}
	case query.IntentNews:
		tags = []card.Type{card.TypeNews}
	default:
		tags = []card.Type{card.TypeFunding, card.TypePaper, card.TypeNews}
	}

	cols := make([]*collect.Collector, 0, len(tags))
	for _, tag := range tags {
		if col, ok := o.byTag[tag]; ok {
			cols = append(cols, col)
		}
	}
	return cols
}

// assemble partitions outcomes into the typed lists, accumulates failures,
// and ranks the union. All lists are non-nil so the JSON always carries
// arrays, matching what feed consumers expect.
func (o *Orchestrator) assemble(resolved *query.Resolved, req query.Request, outcomes []outcome) *Envelope {
	env := newEnvelope(resolved.Query, resolved.Intent)
	env.LabURL = resolved.LabURL

	if req.LabProfile != nil {
		env.LabProfile = req.LabProfile
	} else if len(resolved.Keywords) > 0 {
		env.LabProfile = map[string]any{"keywords": resolved.Keywords}
	}

	var all []card.Card
	for _, out := range outcomes {
		if out.err != nil {
			env.Errors = append(env.Errors, SourceError{
				Source:  string(out.tag),
				Message: errorMessage(out.err),
			})
			continue
		}
		switch out.tag {
		case card.TypeFunding:
			env.Grants = append(env.Grants, out.cards...)
		case card.TypePaper:
			env.Papers = append(env.Papers, out.cards...)
		case card.TypeNews:
			env.News = append(env.News, out.cards...)
		}
		all = append(all, out.cards...)
	}

	env.InboxCards = rank.Rank(all)
	return env
}

// unresolvedEnvelope reports a failed resolution as envelope data.
func (o *Orchestrator) unresolvedEnvelope(req query.Request, err error) *Envelope {
	env := newEnvelope(strings.TrimSpace(req.UserQuery), query.ParseIntent(req.Intent))
	env.Errors = append(env.Errors, SourceError{Source: "resolver", Message: err.Error()})
	return env
}

func newEnvelope(userQuery string, intent query.Intent) *Envelope {
	return &Envelope{
		UserQuery:  userQuery,
		Intent:     intent,
		Grants:     []card.Card{},
		Papers:     []card.Card{},
		News:       []card.Card{},
		InboxCards: []card.Card{},
		Errors:     []SourceError{},
	}
}

// errorMessage prefers the collector's own message over the wrapped chain.
func errorMessage(err error) string {
	var ce *collect.CollectorError
	if errors.As(err, &ce) {
		return ce.Message
	}
	return err.Error()
}
