// Package keywords turns scraped lab-page text into a small set of search
// terms. Two extractors exist: an LLM-backed one used when a completion
// client is configured, and a frequency heuristic used as the fallback.
package keywords

import (
	"context"
	"sort"
	"strings"
	"unicode"
)

// DefaultLimit is the number of terms returned when the caller does not ask
// for a specific count.
const DefaultLimit = 5

// Extractor produces up to limit search terms from free text.
type Extractor interface {
	Extract(ctx context.Context, text string, limit int) ([]string, error)
}

// stopwords are excluded from heuristic extraction. Beyond common English
// function words this covers the boilerplate found on nearly every lab and
// university page, which would otherwise dominate the frequency counts.
var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "but": {}, "not": {},
	"you": {}, "all": {}, "can": {}, "had": {}, "her": {}, "was": {},
	"one": {}, "our": {}, "out": {}, "has": {}, "have": {}, "this": {},
	"that": {}, "with": {}, "from": {}, "they": {}, "been": {}, "were": {},
	"their": {}, "which": {}, "about": {}, "into": {}, "more": {}, "other": {},
	"some": {}, "such": {}, "than": {}, "them": {}, "then": {}, "these": {},
	"will": {}, "would": {}, "there": {}, "what": {}, "when": {}, "where": {},
	"who": {}, "how": {}, "also": {}, "its": {}, "may": {}, "new": {},
	"using": {}, "used": {}, "use": {}, "between": {}, "both": {}, "each": {},
	"during": {}, "through": {}, "within": {}, "here": {}, "well": {},

	"research": {}, "lab": {}, "laboratory": {}, "group": {}, "university": {},
	"department": {}, "school": {}, "institute": {}, "college": {}, "center": {},
	"centre": {}, "faculty": {}, "professor": {}, "student": {}, "students": {},
	"page": {}, "home": {}, "contact": {}, "news": {}, "publications": {},
	"people": {}, "members": {}, "member": {}, "team": {}, "website": {},
	"email": {}, "phone": {}, "address": {}, "copyright": {}, "rights": {},
	"reserved": {}, "menu": {}, "search": {}, "link": {}, "links": {},
	"read": {}, "learn": {}, "click": {}, "welcome": {}, "overview": {},
}

// Heuristic extracts the most frequent non-stopword terms. It is
// deterministic: ties are broken alphabetically.
type Heuristic struct{}

// NewHeuristic returns the frequency-based extractor.
func NewHeuristic() *Heuristic {
	return &Heuristic{}
}

type wordCount struct {
	word  string
	count int
}

// Extract tokenizes text into lowercase terms of three or more letters,
// drops stopwords and returns the limit most frequent terms. Hyphenated
// terms such as "single-cell" are kept whole.
func (h *Heuristic) Extract(ctx context.Context, text string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if text == "" {
		return nil, nil
	}

	// Lowercase once up front instead of per-token.
	lower := strings.ToLower(text)
	tokens := strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && r != '-'
	})

	counts := make(map[string]int, len(tokens)/2)
	for _, tok := range tokens {
		tok = strings.Trim(tok, "-")
		if len(tok) < 3 {
			continue
		}
		if _, skip := stopwords[tok]; skip {
			continue
		}
		counts[tok]++
	}
	if len(counts) == 0 {
		return nil, nil
	}

	ranked := make([]wordCount, 0, len(counts))
	for w, c := range counts {
		ranked = append(ranked, wordCount{word: w, count: c})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].word < ranked[j].word
	})

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	out := make([]string, len(ranked))
	for i, wc := range ranked {
		out[i] = wc.word
	}
	return out, nil
}
