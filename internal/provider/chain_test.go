package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockpulse/internal/config"
	"stockpulse/internal/domain"
)

// stubProvider is a scripted Provider for chain ordering tests.
type stubProvider struct {
	name      string
	bars      []domain.Bar
	news      []domain.NewsItem
	sentiment float64
	err       error
	delay     time.Duration

	seriesCalls int
}

var _ Provider = (*stubProvider)(nil)

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) FetchSeries(ctx context.Context, symbol string, _ domain.Window) ([]domain.Bar, error) {
	s.seriesCalls++
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.bars, nil
}

func (s *stubProvider) FetchNews(_ context.Context, _ string, _ int) ([]domain.NewsItem, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.news, nil
}

func (s *stubProvider) FetchSentiment(_ context.Context, _ string) (float64, error) {
	if s.err != nil {
		return 0, s.err
	}
	return s.sentiment, nil
}

func (s *stubProvider) SearchAssets(_ context.Context, _ string) ([]domain.SearchMatch, error) {
	return nil, ErrUnsupported
}

func someBars(symbol string, n int) []domain.Bar {
	bars := make([]domain.Bar, n)
	day := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	for i := range bars {
		bars[i] = domain.Bar{Symbol: symbol, Date: day.AddDate(0, 0, i), Close: 100 + float64(i)}
	}
	return bars
}

func TestChainFirstNonEmptyWins(t *testing.T) {
	first := &stubProvider{name: "first", bars: someBars("AAPL", 3)}
	second := &stubProvider{name: "second", bars: someBars("AAPL", 9)}
	c := NewChain(time.Second, nil, first, second)

	bars := c.FetchSeries(context.Background(), "AAPL", domain.Win1Mo)
	require.Len(t, bars, 3)
	assert.Equal(t, 1, first.seriesCalls)
	assert.Equal(t, 0, second.seriesCalls, "second tier must not be consulted")
}

func TestChainAdvancesPastErrorAndEmpty(t *testing.T) {
	failing := &stubProvider{name: "failing", err: errors.New("rate limited")}
	empty := &stubProvider{name: "empty"}
	last := &stubProvider{name: "last", bars: someBars("MSFT", 5)}
	c := NewChain(time.Second, nil, failing, empty, last)

	bars := c.FetchSeries(context.Background(), "MSFT", domain.Win5D)
	require.Len(t, bars, 5)
	assert.Equal(t, 1, failing.seriesCalls)
	assert.Equal(t, 1, empty.seriesCalls)
}

func TestChainTimeoutAdvancesTier(t *testing.T) {
	slow := &stubProvider{name: "slow", bars: someBars("NEWCO", 10), delay: 500 * time.Millisecond}
	fast := &stubProvider{name: "fast", bars: someBars("NEWCO", 250)}
	c := NewChain(50*time.Millisecond, nil, slow, fast)

	bars := c.FetchSeries(context.Background(), "NEWCO", domain.Win1Y)
	require.Len(t, bars, 250)
	assert.Equal(t, 1, slow.seriesCalls)
}

func TestChainAllTiersFailYieldsNil(t *testing.T) {
	a := &stubProvider{name: "a", err: errors.New("down")}
	b := &stubProvider{name: "b"}
	c := NewChain(time.Second, nil, a, b)

	assert.Nil(t, c.FetchSeries(context.Background(), "ZZZZ", domain.Win1Mo))
	assert.Nil(t, c.FetchNews(context.Background(), "ZZZZ", 10))
	_, ok := c.FetchSentiment(context.Background(), "ZZZZ")
	assert.False(t, ok)
}

func TestChainSentimentSkipsUnsupported(t *testing.T) {
	unsupported := &stubProvider{name: "bars-only", err: ErrUnsupported}
	scored := &stubProvider{name: "scored", sentiment: 0.42}
	c := NewChain(time.Second, nil, unsupported, scored)

	score, ok := c.FetchSentiment(context.Background(), "TSLA")
	require.True(t, ok)
	assert.InDelta(t, 0.42, score, 1e-9)
}

func TestFromConfigCredentialGating(t *testing.T) {
	tests := []struct {
		name string
		mut  func(*config.Config)
		want []string
	}{
		{
			name: "no credentials",
			mut:  func(*config.Config) {},
			want: []string{"yahoo", "google-news-rss"},
		},
		{
			name: "alphavantage key",
			mut: func(cfg *config.Config) {
				cfg.Providers.AlphaVantage.APIKey = "REAL_KEY_123"
			},
			want: []string{"alphavantage", "yahoo", "google-news-rss"},
		},
		{
			name: "placeholder key ignored",
			mut: func(cfg *config.Config) {
				cfg.Providers.AlphaVantage.APIKey = "your_api_key_here"
			},
			want: []string{"yahoo", "google-news-rss"},
		},
		{
			name: "full stack",
			mut: func(cfg *config.Config) {
				cfg.Providers.Alpaca.APIKey = "AK123"
				cfg.Providers.Alpaca.APISecret = "SK456"
				cfg.Providers.AlphaVantage.APIKey = "REAL_KEY_123"
			},
			want: []string{"alpaca", "alphavantage", "yahoo", "google-news-rss"},
		},
		{
			name: "alpaca key without secret",
			mut: func(cfg *config.Config) {
				cfg.Providers.Alpaca.APIKey = "AK123"
			},
			want: []string{"yahoo", "google-news-rss"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mut(cfg)
			c := FromConfig(cfg, nil)
			assert.Equal(t, tt.want, c.Providers())
		})
	}
}
