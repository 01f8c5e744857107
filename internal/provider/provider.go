// Package provider implements the external market-data sources and the
// ordered fallback chain that tries them until one yields a result.
package provider

import (
	"context"
	"errors"
	"net/http"
	"time"

	"stockpulse/internal/domain"
)

// ErrUnsupported marks a capability a provider does not implement. The chain
// treats it like an empty result and advances to the next tier.
var ErrUnsupported = errors.New("capability not supported by provider")

// Provider is the uniform capability boundary every external data source
// implements, independent of any one vendor's wire format.
type Provider interface {
	// Name identifies the provider in logs.
	Name() string

	// FetchSeries returns daily OHLCV bars for the symbol covering the
	// requested window, oldest first.
	FetchSeries(ctx context.Context, symbol string, window domain.Window) ([]domain.Bar, error)

	// FetchNews returns recent news items for the symbol, newest first.
	FetchNews(ctx context.Context, symbol string, limit int) ([]domain.NewsItem, error)

	// FetchSentiment returns an aggregate sentiment score in [-1, 1].
	FetchSentiment(ctx context.Context, symbol string) (float64, error)

	// SearchAssets returns assets matching a free-text query.
	SearchAssets(ctx context.Context, query string) ([]domain.SearchMatch, error)
}

// ProfileSource is the optional capability of fetching company metadata and
// a fundamentals snapshot in one call. Only credentialed providers offer it.
type ProfileSource interface {
	FetchProfile(ctx context.Context, symbol string) (domain.Asset, domain.FundamentalsSnapshot, error)
}

// httpClient is shared by the HTTP-based providers. The per-request timeout
// is enforced by the chain through the context; this is a safety net.
var httpClient = &http.Client{Timeout: 30 * time.Second}
