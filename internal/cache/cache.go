// Package cache defines the shared lookup cache for upstream results and
// the interface its storage backends implement. The cache is an
// optimization, never a correctness boundary: every caller treats a store
// error as a miss and a racing overwrite as last-write-wins.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"github.com/siftlab/sift/internal/card"
)

// Entry is one cached result set for a single source and fingerprint.
// Entries are always replaced whole on refresh, never mutated in place.
type Entry struct {
	Key       string      `json:"key"`
	Source    card.Type   `json:"source"`
	Records   []card.Card `json:"records"`
	FetchedAt time.Time   `json:"fetched_at"`
}

// Stale reports whether the entry has outlived ttl as of now.
func (e *Entry) Stale(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.FetchedAt) > ttl
}

// Store is the backend contract. Get returns (nil, nil) when the key is
// absent. Put overwrites any existing entry under the same key.
// Implementations must tolerate concurrent readers and writers; writes to
// the same key resolve last-write-wins.
type Store interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Put(ctx context.Context, entry *Entry) error
	Ping(ctx context.Context) error
	Close() error
}

// TTLTable maps a source type to how long its cached results stay fresh.
type TTLTable map[card.Type]time.Duration

// DefaultTTL applies to sources missing from the table.
const DefaultTTL = 24 * time.Hour

// DefaultTTLs reflects how quickly each source's world moves: news churns
// within a day, papers weekly, funding notices monthly.
func DefaultTTLs() TTLTable {
	return TTLTable{
		card.TypeFunding: 72 * time.Hour,
		card.TypePaper:   24 * time.Hour,
		card.TypeNews:    6 * time.Hour,
	}
}

// For returns the TTL for source, falling back to DefaultTTL.
func (t TTLTable) For(source card.Type) time.Duration {
	if ttl, ok := t[source]; ok && ttl > 0 {
		return ttl
	}
	return DefaultTTL
}

// Key fingerprints a lookup. Two logically identical requests produce the
// same key regardless of filter map iteration order or incidental
// whitespace and casing in the seed.
func Key(source card.Type, seed string, filters map[string]string) string {
	var b strings.Builder
	b.WriteString(string(source))
	b.WriteByte('|')
	b.WriteString(NormalizeSeed(seed))

	if len(filters) > 0 {
		keys := make([]string, 0, len(filters))
		for k := range filters {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			b.WriteByte('|')
			b.WriteString(k)
			b.WriteByte('=')
			b.WriteString(filters[k])
		}
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// NormalizeSeed canonicalizes a query string or URL before fingerprinting:
// surrounding space trimmed, inner runs of whitespace collapsed, trailing
// slash dropped, lowercased.
func NormalizeSeed(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	s = strings.TrimRight(s, "/")
	return strings.ToLower(s)
}
