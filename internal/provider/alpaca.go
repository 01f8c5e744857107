package provider

import (
	"context"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"stockpulse/internal/domain"
)

// Alpaca serves bars and news through the Alpaca market-data API. It sits
// first in the chain when credentials are configured.
type Alpaca struct {
	client *marketdata.Client
}

var _ Provider = (*Alpaca)(nil)

// NewAlpaca creates an Alpaca provider with the given credentials. An empty
// dataURL selects the SDK default endpoint.
func NewAlpaca(apiKey, apiSecret, dataURL string) *Alpaca {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	return &Alpaca{client: marketdata.NewClient(opts)}
}

// Name identifies the provider in logs.
func (p *Alpaca) Name() string { return "alpaca" }

// FetchSeries fetches daily bars covering the window. Alpaca takes an
// explicit date range rather than a window label.
func (p *Alpaca) FetchSeries(_ context.Context, symbol string, window domain.Window) ([]domain.Bar, error) {
	end := time.Now().UTC()
	start := end.AddDate(-30, 0, 0) // "max" reaches back decades
	if !window.IsMax() {
		start = end.AddDate(0, 0, -window.Days())
	}

	raw, err := p.client.GetBars(symbol, marketdata.GetBarsRequest{
		TimeFrame:  marketdata.OneDay,
		Start:      start,
		End:        end,
		Adjustment: marketdata.Split,
	})
	if err != nil {
		return nil, err
	}

	bars := make([]domain.Bar, 0, len(raw))
	for _, b := range raw {
		ts := b.Timestamp.UTC()
		bars = append(bars, domain.Bar{
			Symbol: symbol,
			Date:   time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC),
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: int64(b.Volume),
		})
	}
	return bars, nil
}

// FetchNews fetches recent articles from the Alpaca news API.
func (p *Alpaca) FetchNews(_ context.Context, symbol string, limit int) ([]domain.NewsItem, error) {
	if limit <= 0 {
		limit = 50
	}

	raw, err := p.client.GetNews(marketdata.GetNewsRequest{
		Symbols:    []string{symbol},
		Start:      time.Now().AddDate(0, 0, -7),
		End:        time.Now(),
		TotalLimit: limit,
		Sort:       marketdata.SortDesc,
	})
	if err != nil {
		return nil, err
	}

	items := make([]domain.NewsItem, 0, len(raw))
	for _, a := range raw {
		items = append(items, domain.NewsItem{
			ID:          domain.NewsID(symbol, a.URL, a.Headline),
			Symbol:      symbol,
			Title:       a.Headline,
			Publisher:   a.Author,
			Link:        a.URL,
			PublishTime: a.CreatedAt,
		})
	}
	return items, nil
}

// FetchSentiment is not offered by the Alpaca data API.
func (p *Alpaca) FetchSentiment(_ context.Context, _ string) (float64, error) {
	return 0, ErrUnsupported
}

// SearchAssets is not offered through the market-data client.
func (p *Alpaca) SearchAssets(_ context.Context, _ string) ([]domain.SearchMatch, error) {
	return nil, ErrUnsupported
}
