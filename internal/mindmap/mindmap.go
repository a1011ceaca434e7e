// Package mindmap turns one aggregation result into a hierarchical outline
// with cross-type themes. Unlike the sector digests there is no canned
// fallback: finding connections between grants, papers and news is exactly
// the part that needs a completion model, so a missing client is an error
// the caller reports instead of papering over.
package mindmap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/siftlab/sift/internal/card"
	"github.com/siftlab/sift/internal/llm"
)

// ErrNoClient reports that no completion client is configured.
var ErrNoClient = errors.New("mindmap generation requires a configured llm client")

// maxPromptCards caps how many cards per type go into the prompt.
const maxPromptCards = 15

const mindmapPrompt = `You are a research analyst who identifies patterns, themes, and connections across grants, papers, and news.

Analyze the results below and produce a hierarchical mind map outline in Markdown: # for the central topic, ## for 3-5 identified themes, ### for the Grants/Papers/News groups under each theme, and bullet points for individual items. Keep item titles under 50 characters and add metadata in parentheses when helpful. Identify meaningful thematic relationships rather than listing items.

Original search query: %s

=== GRANTS (%d total) ===
%s

=== PAPERS (%d total) ===
%s

=== NEWS (%d total) ===
%s

Respond in this JSON format:
{
  "outline": "# Your Markdown Here...",
  "themes": ["Theme 1", "Theme 2"],
  "connections": [
    {"from_type": "grant", "to_type": "paper", "description": "Connection description"}
  ]
}`

// Request carries the cards to map, already split by type.
type Request struct {
	UserQuery string
	Grants    []card.Card
	Papers    []card.Card
	News      []card.Card
}

// Connection links two card types through a shared theme.
type Connection struct {
	FromType    string `json:"from_type"`
	ToType      string `json:"to_type"`
	Description string `json:"description"`
}

// Map is the generated outline plus the themes and connections found.
type Map struct {
	Outline     string       `json:"outline"`
	Themes      []string     `json:"themes"`
	Connections []Connection `json:"connections"`
}

// Config wires the generator.
type Config struct {
	Client llm.Client
	Logger *slog.Logger
}

// Generator builds mind maps over aggregation results.
type Generator struct {
	client llm.Client
	logger *slog.Logger
}

// New initializes a Generator.
func New(cfg Config) *Generator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Generator{client: cfg.Client, logger: cfg.Logger}
}

// Generate produces the outline for one result set. A model reply that is
// not the requested JSON is still used: the whole text becomes the outline
// and the themes and connections stay empty.
func (g *Generator) Generate(ctx context.Context, req Request) (*Map, error) {
	if g.client == nil {
		return nil, ErrNoClient
	}

	query := req.UserQuery
	if query == "" {
		query = "Research Results"
	}
	prompt := fmt.Sprintf(mindmapPrompt,
		query,
		len(req.Grants), promptSection(req.Grants, "No grants found"),
		len(req.Papers), promptSection(req.Papers, "No papers found"),
		len(req.News), promptSection(req.News, "No news found"),
	)

	text, err := g.client.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("mindmap completion: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("mindmap completion returned no content")
	}

	m := parseMap(text)
	g.logger.Debug("mindmap generated",
		"themes", len(m.Themes),
		"connections", len(m.Connections),
	)
	return m, nil
}

// parseMap decodes the model's JSON reply, falling back to treating the
// whole reply as the outline when it is not valid JSON.
func parseMap(text string) *Map {
	m := &Map{}
	raw := llm.ExtractJSON(text)
	if raw == "" || json.Unmarshal([]byte(raw), m) != nil || m.Outline == "" {
		m = &Map{Outline: text}
	}
	if m.Themes == nil {
		m.Themes = []string{}
	}
	if m.Connections == nil {
		m.Connections = []Connection{}
	}
	return m
}

// promptCard is the compact per-card view the prompt carries.
type promptCard struct {
	Title         string   `json:"title"`
	Sponsor       string   `json:"sponsor,omitempty"`
	AmountMax     float64  `json:"amount_max,omitempty"`
	CloseDate     string   `json:"close_date,omitempty"`
	Authors       []string `json:"authors,omitempty"`
	Outlet        string   `json:"outlet,omitempty"`
	PublishedDate string   `json:"published_date,omitempty"`
	Score         float64  `json:"score"`
}

func promptSection(cards []card.Card, empty string) string {
	if len(cards) == 0 {
		return empty
	}
	if len(cards) > maxPromptCards {
		cards = cards[:maxPromptCards]
	}
	out := make([]promptCard, 0, len(cards))
	for _, c := range cards {
		pc := promptCard{
			Title:         c.Title,
			Sponsor:       c.Meta.Sponsor,
			AmountMax:     c.Meta.AmountMax,
			CloseDate:     c.Meta.CloseDate,
			Authors:       c.Meta.Authors,
			Outlet:        c.Meta.Outlet,
			PublishedDate: c.Meta.PublishedDate,
			Score:         c.Score,
		}
		if len(pc.Authors) > 3 {
			pc.Authors = pc.Authors[:3]
		}
		out = append(out, pc)
	}
	raw, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return empty
	}
	return string(raw)
}
