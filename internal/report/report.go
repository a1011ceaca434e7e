// Package report renders one aggregation envelope as terminal text, JSON,
// or CSV. The text form is what `sift search` prints.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/siftlab/sift/internal/card"
	"github.com/siftlab/sift/internal/orchestrate"
)

// Stats aggregates envelope counts for the report header.
type Stats struct {
	Total    int
	Grants   int
	Papers   int
	News     int
	Errors   int
	TopScore float64
}

// Gather computes feed statistics for one envelope.
func Gather(env *orchestrate.Envelope) Stats {
	s := Stats{
		Total:  len(env.InboxCards),
		Grants: len(env.Grants),
		Papers: len(env.Papers),
		News:   len(env.News),
		Errors: len(env.Errors),
	}
	for _, c := range env.InboxCards {
		if c.Score > s.TopScore {
			s.TopScore = c.Score
		}
	}
	return s
}

// WriteText writes the styled terminal report.
func WriteText(w io.Writer, env *orchestrate.Envelope) error {
	stats := Gather(env)
	var b strings.Builder

	b.WriteString(headerStyle.Render(fmt.Sprintf("TOP RESULTS FOR: %q", env.UserQuery)))
	b.WriteString("\n")
	b.WriteString(countStyle.Render(fmt.Sprintf(
		"%d results | %d funding | %d papers | %d news | top score %.2f",
		stats.Total, stats.Grants, stats.Papers, stats.News, stats.TopScore)))
	b.WriteString("\n\n")

	if stats.Total == 0 {
		b.WriteString(dimStyle.Render("No results found."))
		b.WriteString("\n")
	}
	for i, c := range env.InboxCards {
		writeCard(&b, i+1, c)
	}

	if len(env.Errors) > 0 {
		b.WriteString("\n")
		for _, e := range env.Errors {
			b.WriteString(errorStyle.Render(fmt.Sprintf("%s: %s", e.Source, e.Message)))
			b.WriteString("\n")
		}
	}

	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("write text report: %w", err)
	}
	return nil
}

func writeCard(b *strings.Builder, n int, c card.Card) {
	label := typeStyle(c.Type).Render("[" + strings.ToUpper(string(c.Type)) + "]")
	line := fmt.Sprintf("%d. %s %s", n, label, titleStyle.Render(c.Title))
	if c.Badge != "" {
		line += " " + badgeStyle.Render("["+c.Badge+"]")
	}
	b.WriteString(line)
	b.WriteString("\n")

	b.WriteString(dimStyle.Render(fmt.Sprintf("   Relevance: %.1f%%", c.Score*100)))
	b.WriteString("\n")
	if d := details(c); d != "" {
		b.WriteString(detailStyle.Render("   Details: " + d))
		b.WriteString("\n")
	}
	if c.Meta.URL != "" {
		b.WriteString(linkStyle.Render("   Link: " + c.Meta.URL))
		b.WriteString("\n")
	}
	b.WriteString(dimStyle.Render(strings.Repeat("-", 50)))
	b.WriteString("\n")
}

// details builds the per-type metadata line under each card.
func details(c card.Card) string {
	var parts []string
	switch c.Type {
	case card.TypeFunding:
		if c.Meta.Sponsor != "" {
			parts = append(parts, c.Meta.Sponsor)
		}
		if c.Meta.AmountMax > 0 {
			parts = append(parts, fmt.Sprintf("$%.0f", c.Meta.AmountMax))
		}
		if c.Meta.CloseDate != "" {
			parts = append(parts, "Closes "+c.Meta.CloseDate)
		}
	case card.TypePaper:
		if c.Meta.Source != "" {
			parts = append(parts, c.Meta.Source)
		}
		if len(c.Meta.Authors) > 0 {
			names := c.Meta.Authors
			suffix := ""
			if len(names) > 3 {
				names = names[:3]
				suffix = " et al."
			}
			parts = append(parts, strings.Join(names, ", ")+suffix)
		}
	case card.TypeNews:
		if c.Meta.Outlet != "" {
			parts = append(parts, c.Meta.Outlet)
		}
		if c.Meta.PublishedDate != "" {
			parts = append(parts, c.Meta.PublishedDate)
		}
	}
	return strings.Join(parts, " | ")
}

// WriteJSON writes the envelope to the provided writer in indented JSON.
func WriteJSON(w io.Writer, env *orchestrate.Envelope) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(env); err != nil {
		return fmt.Errorf("encode feed json: %w", err)
	}
	return nil
}

// csvHeaders defines the CSV column order.
var csvHeaders = []string{
	"type",
	"title",
	"score",
	"badge",
	"sponsor",
	"close_date",
	"amount_max",
	"authors",
	"outlet",
	"published_date",
	"source",
	"url",
}

// WriteCSV writes one row per merged feed card.
func WriteCSV(w io.Writer, env *orchestrate.Envelope) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeaders); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, c := range env.InboxCards {
		record := []string{
			string(c.Type),
			c.Title,
			strconv.FormatFloat(c.Score, 'f', 2, 64),
			c.Badge,
			c.Meta.Sponsor,
			c.Meta.CloseDate,
			amountField(c.Meta.AmountMax),
			strings.Join(c.Meta.Authors, "; "),
			c.Meta.Outlet,
			c.Meta.PublishedDate,
			c.Meta.Source,
			c.Meta.URL,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

func amountField(v float64) string {
	if v <= 0 {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
