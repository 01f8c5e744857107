package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"stockpulse/internal/domain"
)

// Yahoo is the free, unauthenticated fallback provider. It is always last in
// the chain and is selected as primary when no credentials are configured.
type Yahoo struct {
	chartURL  string
	searchURL string
}

var _ Provider = (*Yahoo)(nil)

// NewYahoo creates the Yahoo Finance provider.
func NewYahoo() *Yahoo {
	return &Yahoo{
		chartURL:  "https://query1.finance.yahoo.com/v8/finance/chart/",
		searchURL: "https://query2.finance.yahoo.com/v1/finance/search",
	}
}

// Name identifies the provider in logs.
func (p *Yahoo) Name() string { return "yahoo" }

var yahooRanges = map[domain.Window]string{
	domain.Win5D:  "5d",
	domain.Win1Mo: "1mo",
	domain.Win3Mo: "3mo",
	domain.Win6Mo: "6mo",
	domain.Win1Y:  "1y",
	domain.Win2Y:  "2y",
	domain.Win5Y:  "5y",
	domain.WinMax: "max",
}

// FetchSeries fetches daily bars from the v8 chart endpoint.
func (p *Yahoo) FetchSeries(ctx context.Context, symbol string, window domain.Window) ([]domain.Bar, error) {
	params := url.Values{}
	params.Set("range", yahooRanges[window])
	params.Set("interval", "1d")

	u := p.chartURL + url.PathEscape(symbol) + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("yahoo chart status %d", resp.StatusCode)
	}

	var payload struct {
		Chart struct {
			Result []struct {
				Timestamp  []int64 `json:"timestamp"`
				Indicators struct {
					Quote []struct {
						Open   []float64 `json:"open"`
						High   []float64 `json:"high"`
						Low    []float64 `json:"low"`
						Close  []float64 `json:"close"`
						Volume []int64   `json:"volume"`
					} `json:"quote"`
				} `json:"indicators"`
			} `json:"result"`
			Error *struct {
				Code        string `json:"code"`
				Description string `json:"description"`
			} `json:"error"`
		} `json:"chart"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	if e := payload.Chart.Error; e != nil {
		return nil, fmt.Errorf("yahoo chart error %s: %s", e.Code, e.Description)
	}
	if len(payload.Chart.Result) == 0 || len(payload.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, nil
	}

	result := payload.Chart.Result[0]
	quote := result.Indicators.Quote[0]

	bars := make([]domain.Bar, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(quote.Close) {
			break
		}
		d := time.Unix(ts, 0).UTC()
		bars = append(bars, domain.Bar{
			Symbol: symbol,
			Date:   time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC),
			Open:   at(quote.Open, i),
			High:   at(quote.High, i),
			Low:    at(quote.Low, i),
			Close:  at(quote.Close, i),
			Volume: atInt(quote.Volume, i),
		})
	}
	return bars, nil
}

// FetchNews is not offered by the chart API.
func (p *Yahoo) FetchNews(_ context.Context, _ string, _ int) ([]domain.NewsItem, error) {
	return nil, ErrUnsupported
}

// FetchSentiment is not offered by Yahoo.
func (p *Yahoo) FetchSentiment(_ context.Context, _ string) (float64, error) {
	return 0, ErrUnsupported
}

// SearchAssets queries the public search endpoint, keeping only tradable
// quote types.
func (p *Yahoo) SearchAssets(ctx context.Context, query string) ([]domain.SearchMatch, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("quotesCount", "10")
	params.Set("newsCount", "0")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.searchURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("yahoo search status %d", resp.StatusCode)
	}

	var payload struct {
		Quotes []struct {
			Symbol    string  `json:"symbol"`
			ShortName string  `json:"shortname"`
			LongName  string  `json:"longname"`
			QuoteType string  `json:"quoteType"`
			Exchange  string  `json:"exchange"`
			Score     float64 `json:"score"`
		} `json:"quotes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}

	var matches []domain.SearchMatch
	for _, q := range payload.Quotes {
		switch q.QuoteType {
		case "EQUITY", "ETF", "MUTUALFUND":
		default:
			continue
		}
		name := q.ShortName
		if name == "" {
			name = q.LongName
		}
		matches = append(matches, domain.SearchMatch{
			Symbol: q.Symbol,
			Name:   name,
			Kind:   q.QuoteType,
			Region: q.Exchange,
			Score:  q.Score,
		})
	}
	return matches, nil
}

func at(vals []float64, i int) float64 {
	if i < len(vals) {
		return vals[i]
	}
	return 0
}

func atInt(vals []int64, i int) int64 {
	if i < len(vals) {
		return vals[i]
	}
	return 0
}
