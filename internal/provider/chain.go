package provider

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"stockpulse/internal/config"
	"stockpulse/internal/domain"
)

const defaultCallTimeout = 15 * time.Second

// Chain is the ordered provider fallback list. Every call walks the
// providers in order; the first non-empty, non-error result wins. Each
// provider call is bounded by the chain timeout, and a timeout is treated
// exactly like an empty response.
//
// The Chain never returns errors: total failure yields an empty result, and
// individual failures are logged with the provider identity.
type Chain struct {
	providers []Provider
	timeout   time.Duration
	log       *slog.Logger
}

// NewChain builds a chain over the given providers. A zero timeout selects
// the default.
func NewChain(timeout time.Duration, log *slog.Logger, providers ...Provider) *Chain {
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &Chain{
		providers: providers,
		timeout:   timeout,
		log:       log.With("component", "providers"),
	}
}

// FromConfig assembles the statically configured chain. Credentialed
// providers are admitted only when their credentials are present and
// plausible; the free Yahoo and RSS tiers always close the chain so it is
// never empty.
func FromConfig(cfg *config.Config, log *slog.Logger) *Chain {
	var providers []Provider

	if a := cfg.Providers.Alpaca; a.APIKey != "" && a.APISecret != "" {
		providers = append(providers, NewAlpaca(a.APIKey, a.APISecret, a.DataURL))
	}
	if k := cfg.Providers.AlphaVantage.APIKey; ValidAlphaVantageKey(k) {
		providers = append(providers, NewAlphaVantage(k))
	}
	providers = append(providers, NewYahoo(), NewGoogleNewsRSS())

	return NewChain(time.Duration(cfg.Fetch.ProviderTimeoutSec)*time.Second, log, providers...)
}

// Providers exposes the configured order, primarily for logging.
func (c *Chain) Providers() []string {
	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.Name()
	}
	return names
}

// ProfileSource returns the first provider in the chain that can fetch
// company profiles, or nil when none can.
func (c *Chain) ProfileSource() ProfileSource {
	for _, p := range c.providers {
		if ps, ok := p.(ProfileSource); ok {
			return ps
		}
	}
	return nil
}

// FetchSeries returns the first non-empty bar series the chain produces, or
// nil when every tier fails or comes back empty.
func (c *Chain) FetchSeries(ctx context.Context, symbol string, window domain.Window) []domain.Bar {
	for _, p := range c.providers {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		bars, err := p.FetchSeries(callCtx, symbol, window)
		cancel()

		if err != nil {
			c.logFailure(p, "series", symbol, err)
			continue
		}
		if len(bars) == 0 {
			c.log.Debug("provider returned no bars", "provider", p.Name(), "symbol", symbol)
			continue
		}
		return bars
	}
	return nil
}

// FetchNews returns the first non-empty news set the chain produces.
func (c *Chain) FetchNews(ctx context.Context, symbol string, limit int) []domain.NewsItem {
	for _, p := range c.providers {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		items, err := p.FetchNews(callCtx, symbol, limit)
		cancel()

		if err != nil {
			c.logFailure(p, "news", symbol, err)
			continue
		}
		if len(items) == 0 {
			continue
		}
		return items
	}
	return nil
}

// FetchSentiment returns the first sentiment score a provider offers. The
// second return value reports whether any tier produced one.
func (c *Chain) FetchSentiment(ctx context.Context, symbol string) (float64, bool) {
	for _, p := range c.providers {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		score, err := p.FetchSentiment(callCtx, symbol)
		cancel()

		if err != nil {
			c.logFailure(p, "sentiment", symbol, err)
			continue
		}
		return score, true
	}
	return 0, false
}

// SearchAssets returns the first non-empty match set the chain produces.
func (c *Chain) SearchAssets(ctx context.Context, query string) []domain.SearchMatch {
	for _, p := range c.providers {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		matches, err := p.SearchAssets(callCtx, query)
		cancel()

		if err != nil {
			c.logFailure(p, "search", query, err)
			continue
		}
		if len(matches) == 0 {
			continue
		}
		return matches
	}
	return nil
}

func (c *Chain) logFailure(p Provider, capability, subject string, err error) {
	if errors.Is(err, ErrUnsupported) {
		c.log.Debug("capability unsupported", "provider", p.Name(), "capability", capability)
		return
	}
	level := slog.LevelWarn
	if errors.Is(err, context.DeadlineExceeded) {
		// A timeout is an expected tier advance, not an anomaly.
		level = slog.LevelInfo
	}
	c.log.Log(context.Background(), level, "provider call failed",
		"provider", p.Name(), "capability", capability, "subject", subject, "error", err)
}
