package summary

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/siftlab/sift/internal/card"
)

type fakeCompleter struct {
	reply  string
	err    error
	prompt string
}

func (f *fakeCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	f.prompt = prompt
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSummarizeUnknownSector(t *testing.T) {
	s := New(Config{Logger: discardLogger()})

	_, err := s.Summarize(context.Background(), "patents", nil, nil)
	if !errors.Is(err, ErrUnknownSector) {
		t.Fatalf("Expected ErrUnknownSector, got %v", err)
	}
	if !strings.Contains(err.Error(), "patents") {
		t.Errorf("Expected sector in message, got %q", err.Error())
	}
}

func TestSummarizeWithoutClient(t *testing.T) {
	s := New(Config{Logger: discardLogger()})
	cards := []card.Card{
		card.Funding("Grant A", 0.9, card.Meta{}),
		card.Funding("Grant B", 0.8, card.Meta{}),
		card.Funding("Grant C", 0.7, card.Meta{}),
	}

	got, err := s.Summarize(context.Background(), SectorGrants, cards, nil)
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	want := "I flagged 3 grant opportunities that closely match your lab's research focus. " +
		"A couple of them may be approaching their deadlines and look realistically competitive."
	if got != want {
		t.Errorf("Expected fallback digest, got %q", got)
	}
}

func TestSummarizeZeroCards(t *testing.T) {
	s := New(Config{Logger: discardLogger()})

	got, err := s.Summarize(context.Background(), SectorNews, nil, nil)
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	want := "I didn't find any news that match your research focus. " +
		"Let me know if you'd like me to adjust the search criteria."
	if got != want {
		t.Errorf("Expected empty-sector digest, got %q", got)
	}
}

func TestSummarizePromptShape(t *testing.T) {
	client := &fakeCompleter{reply: "  These grants line up with the lab's focus.  "}
	s := New(Config{Client: client, Logger: discardLogger()})

	cards := []card.Card{
		{
			Type:  card.TypeFunding,
			Title: "CRISPR Therapeutics Initiative",
			Score: 0.95,
			Badge: card.BadgeClosingSoon,
			Meta: card.Meta{
				Sponsor:   "NIH",
				CloseDate: "12/31/2026",
				AmountMax: 500000,
			},
		},
		card.Funding("Genome Editing Pilot", 0.9, card.Meta{Sponsor: "NSF"}),
	}
	profile := map[string]any{
		"lab_name": "Chen Lab",
		"keywords": []any{"genomics", "crispr"},
	}

	got, err := s.Summarize(context.Background(), SectorGrants, cards, profile)
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if got != "These grants line up with the lab's focus." {
		t.Errorf("Expected trimmed completion, got %q", got)
	}

	for _, want := range []string{
		"I found 2 grants",
		"1. CRISPR Therapeutics Initiative (Sponsor: NIH) [Deadline: 12/31/2026] [Max Amount: $500000] [Closing soon]",
		"2. Genome Editing Pilot (Sponsor: NSF)",
		"Lab Name: Chen Lab",
		"Keywords: genomics, crispr",
	} {
		if !strings.Contains(client.prompt, want) {
			t.Errorf("Expected prompt to contain %q, got:\n%s", want, client.prompt)
		}
	}
}

func TestSummarizePaperAuthorsTruncated(t *testing.T) {
	client := &fakeCompleter{reply: "ok"}
	s := New(Config{Client: client, Logger: discardLogger()})

	cards := []card.Card{
		card.Paper("Large Cohort Study", 0.9, card.Meta{
			Authors:       []string{"Smith J", "Doe A", "Lee K", "Park M", "Wong T"},
			PublishedDate: "2026-05-01",
		}),
	}
	if _, err := s.Summarize(context.Background(), SectorPapers, cards, nil); err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	want := "1. Large Cohort Study by Smith J, Doe A, Lee K et al. (2026-05-01)"
	if !strings.Contains(client.prompt, want) {
		t.Errorf("Expected %q in prompt, got:\n%s", want, client.prompt)
	}
}

func TestSummarizeCompletionErrorFallsBack(t *testing.T) {
	client := &fakeCompleter{err: errors.New("rate limited")}
	s := New(Config{Client: client, Logger: discardLogger()})

	cards := []card.Card{card.Paper("P1", 0.9, card.Meta{}), card.Paper("P2", 0.8, card.Meta{})}
	got, err := s.Summarize(context.Background(), SectorPapers, cards, nil)
	if err != nil {
		t.Fatalf("Expected fallback instead of error, got %v", err)
	}
	if !strings.HasPrefix(got, "These 2 papers were selected") {
		t.Errorf("Expected papers fallback, got %q", got)
	}
}

func TestSummarizeEmptyCompletionFallsBack(t *testing.T) {
	client := &fakeCompleter{reply: "   \n"}
	s := New(Config{Client: client, Logger: discardLogger()})

	got, err := s.Summarize(context.Background(), SectorNews, []card.Card{card.News("N1", 0.7, card.Meta{})}, nil)
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if !strings.HasPrefix(got, "These 1 updates reflect") {
		t.Errorf("Expected news fallback, got %q", got)
	}
}

func TestSummarizeCapsPromptCards(t *testing.T) {
	client := &fakeCompleter{reply: "ok"}
	s := New(Config{Client: client, Logger: discardLogger()})

	cards := make([]card.Card, 0, 12)
	for i := 1; i <= 12; i++ {
		cards = append(cards, card.Funding(fmt.Sprintf("Grant %02d", i), 0.9, card.Meta{}))
	}
	if _, err := s.Summarize(context.Background(), SectorGrants, cards, nil); err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if !strings.Contains(client.prompt, "10. Grant 10") {
		t.Errorf("Expected tenth card in prompt, got:\n%s", client.prompt)
	}
	if strings.Contains(client.prompt, "11.") {
		t.Errorf("Expected prompt capped at ten cards, got:\n%s", client.prompt)
	}
	if !strings.Contains(client.prompt, "I found 12 grants") {
		t.Errorf("Expected full count in prompt, got:\n%s", client.prompt)
	}
}
