package ratelimit

import (
	"context"
	"time"
)

// Limiter paces calls to an upstream API. PubMed asks for at most three
// requests per second without an API key and NewsAPI enforces similar
// ceilings, so every source client waits on its limiter before dialing out.
// A Limiter is safe for concurrent use by multiple goroutines.
type Limiter struct {
	ticker *time.Ticker
	ch     <-chan time.Time
}

// NewLimiter creates a limiter allowing rps requests per second.
// If rps <= 0, the limiter never blocks.
func NewLimiter(rps float64) *Limiter {
	if rps <= 0 {
		return &Limiter{}
	}

	interval := time.Duration(float64(time.Second) / rps)
	ticker := time.NewTicker(interval)

	return &Limiter{
		ticker: ticker,
		ch:     ticker.C,
	}
}

// Wait blocks until the next request slot opens, or until the context is
// canceled.
func (l *Limiter) Wait(ctx context.Context) error {
	if l.ch == nil {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.ch:
		return nil
	}
}

// Stop releases any resources associated with the limiter.
func (l *Limiter) Stop() {
	if l.ticker != nil {
		l.ticker.Stop()
	}
}
