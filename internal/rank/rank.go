// Package rank orders the merged feed. The sort is the contract the whole
// service is judged on, so it is kept deliberately small and pure.
package rank

import (
	"sort"

	"github.com/siftlab/sift/internal/card"
)

// typePriority fixes the tie-break order across the three card types.
// Lower sorts first.
var typePriority = map[card.Type]int{
	card.TypeFunding: 0,
	card.TypePaper:   1,
	card.TypeNews:    2,
}

// Rank returns a new slice with the cards in feed order: score descending,
// then funding before papers before news, then title ascending compared
// byte-wise. The sort is stable, so cards equal on all three keys keep
// their input order. Ranking an already ranked slice is a no-op.
func Rank(cards []card.Card) []card.Card {
	out := make([]card.Card, len(cards))
	copy(out, cards)

	sort.SliceStable(out, func(i, j int) bool {
		return Less(out[i], out[j])
	})
	return out
}

// Less reports whether a sorts before b under the feed ordering.
func Less(a, b card.Card) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	pa, pb := typePriority[a.Type], typePriority[b.Type]
	if pa != pb {
		return pa < pb
	}
	return a.Title < b.Title
}
