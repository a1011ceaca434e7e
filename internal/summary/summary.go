// Package summary writes short sector digests over a card list. The voice
// is a research assistant reporting what it filtered for one lab. Without a
// completion client, or when completion fails, the fixed templates below
// stand in so the endpoint always answers.
package summary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/siftlab/sift/internal/card"
	"github.com/siftlab/sift/internal/llm"
)

// Sector names accepted by Summarize.
const (
	SectorGrants = "grants"
	SectorPapers = "papers"
	SectorNews   = "news"
)

// ErrUnknownSector reports a sector outside grants, papers, news.
var ErrUnknownSector = errors.New("unknown sector")

// maxPromptCards caps how many cards are spelled out in the prompt.
const maxPromptCards = 10

const promptPreamble = `You are a calm, competent research assistant reporting on items you filtered for a specific lab. Write in a thoughtful, understated tone. No hype, no emojis. Never mention search queries, AI, or how the items were found.`

var sectorInstructions = map[string]string{
	SectorGrants: `Write a brief paragraph (3-4 sentences) about these funding opportunities. Open with why they match the lab's research focus, mention naturally if any are approaching their deadlines, and be honest about competitiveness rather than overselling. Close with a short offer to tune future updates toward deadlines or likelihood of fit.`,
	SectorPapers: `Write a brief paragraph (3-4 sentences) about these papers. Open with why they overlap with the lab's recent topics and methods, point out which one is most directly relevant and which is more exploratory, and speak to methods rather than keywords. Close with a short offer to tune future updates.`,
	SectorNews: `Write a brief paragraph (3-4 sentences) about these updates. Tie them to real research consequences such as funding priorities, collaboration opportunities, or upcoming calls rather than restating headlines. Close with a short offer to tune future updates.`,
}

// Config wires the summarizer. Client may be nil; digests then come from
// the fallback templates.
type Config struct {
	Client llm.Client
	Logger *slog.Logger
}

// Summarizer produces one digest per sector request.
type Summarizer struct {
	client llm.Client
	logger *slog.Logger
}

// New initializes a Summarizer.
func New(cfg Config) *Summarizer {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Summarizer{client: cfg.Client, logger: cfg.Logger}
}

// Summarize returns a digest for one sector's cards. The lab profile, when
// present, personalizes the prompt. The only error is an unknown sector;
// completion failures degrade to the template digest.
func (s *Summarizer) Summarize(ctx context.Context, sector string, cards []card.Card, profile map[string]any) (string, error) {
	instructions, ok := sectorInstructions[sector]
	if !ok {
		return "", fmt.Errorf("%w %q", ErrUnknownSector, sector)
	}
	if s.client == nil {
		return fallback(sector, len(cards)), nil
	}

	text, err := s.client.Complete(ctx, buildPrompt(instructions, sector, cards, profile))
	if err != nil {
		s.logger.Warn("sector summary completion failed", "sector", sector, "error", err)
		return fallback(sector, len(cards)), nil
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return fallback(sector, len(cards)), nil
	}
	return text, nil
}

func buildPrompt(instructions, sector string, cards []card.Card, profile map[string]any) string {
	var b strings.Builder
	b.WriteString(promptPreamble)
	fmt.Fprintf(&b, "\n\nI found %d %s. Here are the results:\n\n%s\n", len(cards), sector, formatCards(sector, cards))
	if p := formatProfile(profile); p != "" {
		b.WriteString("\nLab profile:\n")
		b.WriteString(p)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(instructions)
	return b.String()
}

func formatCards(sector string, cards []card.Card) string {
	if len(cards) == 0 {
		return "No results found for this sector."
	}
	if len(cards) > maxPromptCards {
		cards = cards[:maxPromptCards]
	}
	lines := make([]string, 0, len(cards))
	for i, c := range cards {
		lines = append(lines, formatCard(sector, i+1, c))
	}
	return strings.Join(lines, "\n")
}

func formatCard(sector string, n int, c card.Card) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d. %s", n, c.Title)

	switch sector {
	case SectorGrants:
		if c.Meta.Sponsor != "" {
			fmt.Fprintf(&b, " (Sponsor: %s)", c.Meta.Sponsor)
		}
		if c.Meta.CloseDate != "" {
			fmt.Fprintf(&b, " [Deadline: %s]", c.Meta.CloseDate)
		}
		if c.Meta.AmountMax > 0 {
			fmt.Fprintf(&b, " [Max Amount: $%.0f]", c.Meta.AmountMax)
		}
		if c.Badge != "" {
			fmt.Fprintf(&b, " [%s]", c.Badge)
		}
	case SectorPapers:
		if len(c.Meta.Authors) > 0 {
			names := c.Meta.Authors
			suffix := ""
			if len(names) > 3 {
				names = names[:3]
				suffix = " et al."
			}
			fmt.Fprintf(&b, " by %s%s", strings.Join(names, ", "), suffix)
		}
		if c.Meta.PublishedDate != "" {
			fmt.Fprintf(&b, " (%s)", c.Meta.PublishedDate)
		}
	case SectorNews:
		if c.Meta.Outlet != "" {
			fmt.Fprintf(&b, " - %s", c.Meta.Outlet)
		}
		if c.Meta.PublishedDate != "" {
			fmt.Fprintf(&b, " (%s)", c.Meta.PublishedDate)
		}
	}
	return b.String()
}

// formatProfile renders the free-form lab profile into prompt lines. Only
// the fields the UI actually sends are picked up.
func formatProfile(profile map[string]any) string {
	if len(profile) == 0 {
		return ""
	}
	var parts []string
	for _, f := range []struct{ key, label string }{
		{"lab_name", "Lab Name"},
		{"lab_description", "Lab Description"},
		{"lab_focus", "Lab Focus"},
	} {
		if v, ok := profile[f.key].(string); ok && v != "" {
			parts = append(parts, f.label+": "+v)
		}
	}
	if kws := profileKeywords(profile); len(kws) > 0 {
		parts = append(parts, "Keywords: "+strings.Join(kws, ", "))
	}
	return strings.Join(parts, "\n")
}

// profileKeywords handles both in-process ([]string) and JSON-decoded
// ([]any) keyword lists.
func profileKeywords(profile map[string]any) []string {
	switch v := profile["keywords"].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func fallback(sector string, count int) string {
	if count == 0 {
		return fmt.Sprintf("I didn't find any %s that match your research focus. Let me know if you'd like me to adjust the search criteria.", sector)
	}
	switch sector {
	case SectorGrants:
		return fmt.Sprintf("I flagged %d grant opportunities that closely match your lab's research focus. A couple of them may be approaching their deadlines and look realistically competitive.", count)
	case SectorPapers:
		return fmt.Sprintf("These %d papers were selected because they overlap with your lab's recent topics and methods. One of them may introduce an approach that could be relevant to your current direction.", count)
	default:
		return fmt.Sprintf("These %d updates reflect recent developments in your field that may affect funding priorities or collaboration opportunities. Worth keeping on your radar.", count)
	}
}
