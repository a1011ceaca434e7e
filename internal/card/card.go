// Package card defines the normalized unit of the research feed. Every
// upstream record, whatever its source, is reduced to a Card before it
// crosses a package boundary.
package card

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"
)

// Type discriminates the three kinds of feed cards. The set is closed.
type Type string

const (
	TypeFunding Type = "funding"
	TypePaper   Type = "paper"
	TypeNews    Type = "news"
)

// Valid reports whether t is one of the three known card types.
func (t Type) Valid() bool {
	switch t {
	case TypeFunding, TypePaper, TypeNews:
		return true
	}
	return false
}

// Badge values derived from type-specific metadata.
const (
	BadgeClosingSoon = "Closing soon"
	BadgeBreaking    = "Breaking"
)

// closingSoonWindow is how far ahead a funding close date may lie and still
// earn the "Closing soon" badge.
const closingSoonWindow = 30 * 24 * time.Hour

// breakingScore is the minimum score for a news card to carry "Breaking".
const breakingScore = 0.8

// Card is a normalized, scored feed item.
//
// ID is a pure function of the card's type and immutable identity fields,
// so repeated fetches of the same upstream item collapse to one feed entry.
// Score is assigned once by the source that produced the card and is never
// recomputed downstream.
type Card struct {
	ID    string  `json:"id"`
	Type  Type    `json:"type"`
	Title string  `json:"title"`
	Score float64 `json:"score"`
	Badge string  `json:"badge,omitempty"`
	Meta  Meta    `json:"meta"`
}

// Funding builds a funding card. Identity derives from the title, close
// date and sponsor. Cards closing within 30 days are badged.
func Funding(title string, score float64, m Meta) Card {
	c := Card{
		ID:    DeriveID(TypeFunding, title, m.CloseDate, m.Sponsor),
		Type:  TypeFunding,
		Title: title,
		Score: ClampScore(score),
		Meta:  m,
	}
	if closingSoon(m.CloseDate, time.Now()) {
		c.Badge = BadgeClosingSoon
	}
	return c
}

// Paper builds a paper card. Identity derives from the title, publication
// date and the comma-joined author list.
func Paper(title string, score float64, m Meta) Card {
	return Card{
		ID:    DeriveID(TypePaper, title, m.PublishedDate, strings.Join(m.Authors, ", ")),
		Type:  TypePaper,
		Title: title,
		Score: ClampScore(score),
		Meta:  m,
	}
}

// News builds a news card. Identity derives from the title, publish date
// and outlet. High-scoring items are badged as breaking.
func News(title string, score float64, m Meta) Card {
	c := Card{
		ID:    DeriveID(TypeNews, title, m.PublishedDate, m.Outlet),
		Type:  TypeNews,
		Title: title,
		Score: ClampScore(score),
		Meta:  m,
	}
	if c.Score >= breakingScore {
		c.Badge = BadgeBreaking
	}
	return c
}

// DeriveID hashes the type together with the given identity fields into a
// 16-character hex id. No timestamps or randomness enter the hash.
func DeriveID(t Type, fields ...string) string {
	h := sha256.Sum256([]byte(string(t) + "|" + strings.Join(fields, "|")))
	return hex.EncodeToString(h[:])[:16]
}

// ClampScore forces s into [0,1].
func ClampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

// dateLayouts covers the formats upstream sources hand back for close and
// publish dates.
var dateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	time.RFC3339,
	"2006 Jan 2",
}

func closingSoon(closeDate string, now time.Time) bool {
	if closeDate == "" {
		return false
	}
	for _, layout := range dateLayouts {
		d, err := time.Parse(layout, closeDate)
		if err != nil {
			continue
		}
		until := d.Sub(now)
		return until >= 0 && until <= closingSoonWindow
	}
	return false
}

// Meta carries the type-shaped details of a card. Known fields cover what
// the three sources emit today; Extra preserves any additional keys an
// upstream or caller supplies, round-tripping them through JSON untouched.
type Meta struct {
	CloseDate     string
	AmountMax     float64
	Sponsor       string
	PublishedDate string
	Authors       []string
	Outlet        string
	URL           string
	Source        string
	Extra         map[string]any
}

// MarshalJSON flattens known fields and Extra into a single object. Known
// fields win on key collisions and empty known fields are omitted.
func (m Meta) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(m.Extra)+8)
	for k, v := range m.Extra {
		out[k] = v
	}
	if m.CloseDate != "" {
		out["close_date"] = m.CloseDate
	}
	if m.AmountMax > 0 {
		out["amount_max"] = m.AmountMax
	}
	if m.Sponsor != "" {
		out["sponsor"] = m.Sponsor
	}
	if m.PublishedDate != "" {
		out["published_date"] = m.PublishedDate
	}
	if len(m.Authors) > 0 {
		out["authors"] = m.Authors
	}
	if m.Outlet != "" {
		out["outlet"] = m.Outlet
	}
	if m.URL != "" {
		out["url"] = m.URL
	}
	if m.Source != "" {
		out["source"] = m.Source
	}
	return json.Marshal(out)
}

// UnmarshalJSON undoes the flattening: known keys populate their fields,
// everything else lands in Extra.
func (m *Meta) UnmarshalJSON(data []byte) error {
	raw := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	take := func(key string, dst any) error {
		v, ok := raw[key]
		if !ok {
			return nil
		}
		delete(raw, key)
		return json.Unmarshal(v, dst)
	}

	if err := take("close_date", &m.CloseDate); err != nil {
		return err
	}
	if err := take("amount_max", &m.AmountMax); err != nil {
		return err
	}
	if err := take("sponsor", &m.Sponsor); err != nil {
		return err
	}
	if err := take("published_date", &m.PublishedDate); err != nil {
		return err
	}
	if err := take("authors", &m.Authors); err != nil {
		return err
	}
	if err := take("outlet", &m.Outlet); err != nil {
		return err
	}
	if err := take("url", &m.URL); err != nil {
		return err
	}
	if err := take("source", &m.Source); err != nil {
		return err
	}

	for k, v := range raw {
		var val any
		if err := json.Unmarshal(v, &val); err != nil {
			return err
		}
		if m.Extra == nil {
			m.Extra = make(map[string]any)
		}
		m.Extra[k] = val
	}
	return nil
}
