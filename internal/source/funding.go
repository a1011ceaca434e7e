package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/siftlab/sift/internal/card"
	"github.com/siftlab/sift/pkg/httpclient"
)

const defaultGrantsBase = "https://api.grants.gov/v1/api"

// FundingConfig configures the grants.gov client.
type FundingConfig struct {
	BaseURL string
	Timeout time.Duration
	Logger  *slog.Logger
}

// Funding searches grants.gov opportunities through the search2 endpoint.
type Funding struct {
	cfg  FundingConfig
	http *httpclient.Client
}

var _ Source = (*Funding)(nil)

// NewFunding creates the grants.gov source.
func NewFunding(cfg FundingConfig) (*Funding, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultGrantsBase
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	hc, err := httpclient.New(httpclient.Config{Timeout: cfg.Timeout})
	if err != nil {
		return nil, fmt.Errorf("create grants.gov client: %w", err)
	}
	return &Funding{cfg: cfg, http: hc}, nil
}

func (f *Funding) Tag() card.Type {
	return card.TypeFunding
}

type search2Request struct {
	Keyword     string `json:"keyword"`
	Rows        int    `json:"rows"`
	OppStatuses string `json:"oppStatuses"`
}

type search2Response struct {
	ErrorCode int    `json:"errorcode"`
	Msg       string `json:"msg"`
	Data      struct {
		HitCount int      `json:"hitCount"`
		OppHits  []oppHit `json:"oppHits"`
	} `json:"data"`
}

type oppHit struct {
	Number       string `json:"number"`
	Title        string `json:"title"`
	Agency       string `json:"agency"`
	AgencyCode   string `json:"agencyCode"`
	OpenDate     string `json:"openDate"`
	CloseDate    string `json:"closeDate"`
	OppStatus    string `json:"oppStatus"`
	AwardCeiling string `json:"awardCeiling"`
}

// Search posts the query to search2 and normalizes open and forecasted
// opportunities into funding cards.
func (f *Funding) Search(ctx context.Context, q Query) ([]card.Card, error) {
	body, err := json.Marshal(search2Request{
		Keyword:     q.Text,
		Rows:        q.Limit(),
		OppStatuses: "forecasted|posted",
	})
	if err != nil {
		return nil, fmt.Errorf("encode grants.gov request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, f.cfg.BaseURL+"/search2", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build grants.gov request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var out search2Response
	if err := f.http.DoJSON(ctx, req, &out); err != nil {
		return nil, fmt.Errorf("grants.gov search: %w", err)
	}
	if out.ErrorCode != 0 {
		return nil, fmt.Errorf("grants.gov search: errorcode %d: %s", out.ErrorCode, out.Msg)
	}

	cards := make([]card.Card, 0, len(out.Data.OppHits))
	for _, hit := range out.Data.OppHits {
		if hit.Title == "" {
			continue
		}
		sponsor := hit.Agency
		if sponsor == "" {
			sponsor = hit.AgencyCode
		}
		m := card.Meta{
			CloseDate: hit.CloseDate,
			AmountMax: parseAmount(hit.AwardCeiling),
			Sponsor:   sponsor,
			Source:    "grants.gov",
		}
		if hit.Number != "" {
			m.Extra = map[string]any{"opportunity_number": hit.Number}
		}
		cards = append(cards, card.Funding(hit.Title, rankScore(len(cards)), m))
	}

	f.cfg.Logger.Debug("funding search complete",
		"query", q.Text, "hits", out.Data.HitCount, "cards", len(cards))
	return cards, nil
}

// parseAmount reads an award ceiling like "$1,500,000" or "750000".
// Returns 0 when absent or unparseable.
func parseAmount(s string) float64 {
	s = strings.TrimSpace(strings.NewReplacer("$", "", ",", "").Replace(s))
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}
