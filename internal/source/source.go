// Package source holds one client per upstream: grants.gov for funding
// calls, PubMed for papers, NewsAPI or configured RSS feeds for news. Each
// client normalizes its upstream records into cards behind the same narrow
// Search contract, so the collectors above never see a wire format.
package source

import (
	"context"

	"github.com/siftlab/sift/internal/card"
)

// DefaultMaxResults bounds a single upstream call when the query does not
// specify a limit.
const DefaultMaxResults = 10

// Query is the resolved search a collector hands to a source. Keywords are
// fanned out by the collector, one Search call per keyword, so a source only
// ever sees Text.
type Query struct {
	Text       string
	Keywords   []string
	MaxResults int
}

// Limit returns the effective result cap for the query.
func (q Query) Limit() int {
	if q.MaxResults <= 0 {
		return DefaultMaxResults
	}
	return q.MaxResults
}

// Source is one upstream integration.
type Source interface {
	// Tag reports which card type this source produces.
	Tag() card.Type
	// Search returns zero or more normalized cards for the query. Zero
	// results is success, not an error.
	Search(ctx context.Context, q Query) ([]card.Card, error)
}

// rankScore maps a result's position in upstream order onto the score band.
// The top result gets 0.95, each following one 0.05 less, floored at 0.50.
// Equal inputs always produce equal scores, which keeps card ids and feed
// order reproducible.
func rankScore(i int) float64 {
	s := 0.95 - 0.05*float64(i)
	if s < 0.50 {
		return 0.50
	}
	return s
}
