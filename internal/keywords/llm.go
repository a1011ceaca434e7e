package keywords

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/siftlab/sift/internal/llm"
)

const llmPrompt = `You are helping a research lab find relevant funding calls, papers and news.
Extract the %d most specific research topics from the following lab page text.
Respond with a JSON object of the form {"keywords": ["term", ...]} and nothing else.
Terms must be lowercase, one to three words each, and describe research areas, methods or model systems.

Text:
%s`

// llmTextLimit caps how much page text is sent per extraction request.
const llmTextLimit = 6000

// LLM extracts keywords with a completion client. Responses are expected as
// a JSON object but messy output is tolerated: a comma or newline separated
// list is accepted too.
type LLM struct {
	client llm.Client
}

// NewLLM wraps a completion client as an Extractor.
func NewLLM(client llm.Client) *LLM {
	return &LLM{client: client}
}

func (l *LLM) Extract(ctx context.Context, text string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if text == "" {
		return nil, nil
	}
	if len(text) > llmTextLimit {
		text = text[:llmTextLimit]
	}

	raw, err := l.client.Complete(ctx, fmt.Sprintf(llmPrompt, limit, text))
	if err != nil {
		return nil, fmt.Errorf("keyword completion: %w", err)
	}

	terms := parseTerms(raw)
	if len(terms) == 0 {
		return nil, fmt.Errorf("keyword completion returned no usable terms: %q", truncateForError(raw))
	}
	if len(terms) > limit {
		terms = terms[:limit]
	}
	return terms, nil
}

// parseTerms first tries the requested JSON shape, then falls back to
// treating the response as a plain list.
func parseTerms(raw string) []string {
	if obj := llm.ExtractJSON(raw); obj != "" {
		var parsed struct {
			Keywords []string `json:"keywords"`
		}
		if err := json.Unmarshal([]byte(obj), &parsed); err == nil && len(parsed.Keywords) > 0 {
			return cleanTerms(parsed.Keywords)
		}
	}

	split := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == '\n' || r == ';'
	})
	return cleanTerms(split)
}

// cleanTerms lowercases, strips list markers and quotes, and dedupes while
// preserving order.
func cleanTerms(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, t := range in {
		t = strings.TrimSpace(t)
		t = strings.TrimLeft(t, "-*0123456789.) ")
		t = strings.Trim(t, `"'`)
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || len(t) > 60 {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func truncateForError(s string) string {
	if len(s) > 120 {
		return s[:120] + "..."
	}
	return s
}
