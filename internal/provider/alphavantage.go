package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"stockpulse/internal/domain"
)

const alphaVantageBaseURL = "https://www.alphavantage.co/query"

// AlphaVantage is the credentialed primary provider.
type AlphaVantage struct {
	apiKey  string
	baseURL string
}

var _ Provider = (*AlphaVantage)(nil)

// NewAlphaVantage creates an Alpha Vantage provider with the given API key.
func NewAlphaVantage(apiKey string) *AlphaVantage {
	return &AlphaVantage{apiKey: apiKey, baseURL: alphaVantageBaseURL}
}

// ValidAlphaVantageKey reports whether key looks like a real credential
// rather than an unset value or a placeholder left in a sample config.
func ValidAlphaVantageKey(key string) bool {
	return key != "" && len(key) > 5 && !strings.Contains(strings.ToLower(key), "your_")
}

// Name identifies the provider in logs.
func (p *AlphaVantage) Name() string { return "alphavantage" }

func (p *AlphaVantage) get(ctx context.Context, params url.Values, out any) error {
	params.Set("apikey", p.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("alphavantage status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// throttleCheck surfaces Alpha Vantage's in-band rate-limit notices, which
// arrive with HTTP 200.
type throttleCheck struct {
	Note        string `json:"Note"`
	Information string `json:"Information"`
	ErrMessage  string `json:"Error Message"`
}

func (t throttleCheck) err() error {
	switch {
	case t.Note != "":
		return fmt.Errorf("alphavantage throttled: %s", t.Note)
	case t.Information != "":
		return fmt.Errorf("alphavantage notice: %s", t.Information)
	case t.ErrMessage != "":
		return fmt.Errorf("alphavantage error: %s", t.ErrMessage)
	}
	return nil
}

// FetchSeries fetches TIME_SERIES_DAILY and converts it to bars, trimmed to
// the requested window.
func (p *AlphaVantage) FetchSeries(ctx context.Context, symbol string, window domain.Window) ([]domain.Bar, error) {
	outputSize := "full"
	if !window.IsMax() && window.Days() <= 100 {
		// The compact payload covers the last 100 points.
		outputSize = "compact"
	}

	params := url.Values{}
	params.Set("function", "TIME_SERIES_DAILY")
	params.Set("symbol", symbol)
	params.Set("outputsize", outputSize)

	var payload struct {
		throttleCheck
		Series map[string]map[string]string `json:"Time Series (Daily)"`
	}
	if err := p.get(ctx, params, &payload); err != nil {
		return nil, err
	}
	if err := payload.err(); err != nil {
		return nil, err
	}

	bars := make([]domain.Bar, 0, len(payload.Series))
	for rawDate, fields := range payload.Series {
		d, err := time.Parse("2006-01-02", rawDate)
		if err != nil {
			continue
		}
		bar := domain.Bar{Symbol: symbol, Date: d}
		bar.Open, _ = strconv.ParseFloat(fields["1. open"], 64)
		bar.High, _ = strconv.ParseFloat(fields["2. high"], 64)
		bar.Low, _ = strconv.ParseFloat(fields["3. low"], 64)
		bar.Close, _ = strconv.ParseFloat(fields["4. close"], 64)
		bar.Volume, _ = strconv.ParseInt(fields["5. volume"], 10, 64)
		bars = append(bars, bar)
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })

	return trimToWindow(bars, window), nil
}

// FetchNews fetches the NEWS_SENTIMENT feed.
func (p *AlphaVantage) FetchNews(ctx context.Context, symbol string, limit int) ([]domain.NewsItem, error) {
	if limit <= 0 {
		limit = 50
	}

	params := url.Values{}
	params.Set("function", "NEWS_SENTIMENT")
	params.Set("tickers", symbol)
	params.Set("limit", strconv.Itoa(limit))

	var payload struct {
		throttleCheck
		Feed []struct {
			Title         string `json:"title"`
			URL           string `json:"url"`
			TimePublished string `json:"time_published"`
			Source        string `json:"source"`
			OverallScore  string `json:"overall_sentiment_score"`
		} `json:"feed"`
	}
	if err := p.get(ctx, params, &payload); err != nil {
		return nil, err
	}
	if err := payload.err(); err != nil {
		return nil, err
	}

	items := make([]domain.NewsItem, 0, len(payload.Feed))
	for _, f := range payload.Feed {
		t, err := time.Parse("20060102T150405", f.TimePublished)
		if err != nil {
			continue
		}
		score, _ := strconv.ParseFloat(f.OverallScore, 64)
		items = append(items, domain.NewsItem{
			ID:          domain.NewsID(symbol, f.URL, f.Title),
			Symbol:      symbol,
			Title:       f.Title,
			Publisher:   f.Source,
			Link:        f.URL,
			PublishTime: t,
			Sentiment:   score,
		})
	}
	return items, nil
}

// FetchSentiment aggregates the per-ticker sentiment entries across the
// latest news feed.
func (p *AlphaVantage) FetchSentiment(ctx context.Context, symbol string) (float64, error) {
	params := url.Values{}
	params.Set("function", "NEWS_SENTIMENT")
	params.Set("tickers", symbol)
	params.Set("limit", "50")

	var payload struct {
		throttleCheck
		Feed []struct {
			TickerSentiment []struct {
				Ticker string `json:"ticker"`
				Score  string `json:"ticker_sentiment_score"`
			} `json:"ticker_sentiment"`
		} `json:"feed"`
	}
	if err := p.get(ctx, params, &payload); err != nil {
		return 0, err
	}
	if err := payload.err(); err != nil {
		return 0, err
	}

	var total float64
	var count int
	for _, f := range payload.Feed {
		for _, ts := range f.TickerSentiment {
			if ts.Ticker != symbol {
				continue
			}
			if score, err := strconv.ParseFloat(ts.Score, 64); err == nil {
				total += score
				count++
			}
		}
	}
	if count == 0 {
		return 0, nil
	}
	return total / float64(count), nil
}

// FetchProfile runs the OVERVIEW endpoint, yielding both the company
// metadata and a fundamentals snapshot dated today.
func (p *AlphaVantage) FetchProfile(ctx context.Context, symbol string) (domain.Asset, domain.FundamentalsSnapshot, error) {
	params := url.Values{}
	params.Set("function", "OVERVIEW")
	params.Set("symbol", symbol)

	var payload struct {
		throttleCheck
		Symbol      string `json:"Symbol"`
		Name        string `json:"Name"`
		Sector      string `json:"Sector"`
		Industry    string `json:"Industry"`
		Description string `json:"Description"`
		PERatio     string `json:"PERatio"`
		MarketCap   string `json:"MarketCapitalization"`
		EPS         string `json:"EPS"`
	}
	if err := p.get(ctx, params, &payload); err != nil {
		return domain.Asset{}, domain.FundamentalsSnapshot{}, err
	}
	if err := payload.err(); err != nil {
		return domain.Asset{}, domain.FundamentalsSnapshot{}, err
	}
	if payload.Symbol == "" {
		// Unknown symbols come back as an empty object.
		return domain.Asset{}, domain.FundamentalsSnapshot{}, fmt.Errorf("alphavantage: no overview for %s", symbol)
	}

	asset := domain.Asset{
		Ticker:      symbol,
		Name:        payload.Name,
		Sector:      payload.Sector,
		Industry:    payload.Industry,
		Description: payload.Description,
	}

	now := time.Now().UTC()
	snap := domain.FundamentalsSnapshot{
		Symbol: symbol,
		Date:   time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC),
	}
	snap.PERatio, _ = strconv.ParseFloat(payload.PERatio, 64)
	snap.MarketCap, _ = strconv.ParseInt(payload.MarketCap, 10, 64)
	snap.EPS, _ = strconv.ParseFloat(payload.EPS, 64)

	return asset, snap, nil
}

// SearchAssets runs SYMBOL_SEARCH.
func (p *AlphaVantage) SearchAssets(ctx context.Context, query string) ([]domain.SearchMatch, error) {
	params := url.Values{}
	params.Set("function", "SYMBOL_SEARCH")
	params.Set("keywords", query)

	var payload struct {
		throttleCheck
		Matches []map[string]string `json:"bestMatches"`
	}
	if err := p.get(ctx, params, &payload); err != nil {
		return nil, err
	}
	if err := payload.err(); err != nil {
		return nil, err
	}

	matches := make([]domain.SearchMatch, 0, len(payload.Matches))
	for _, m := range payload.Matches {
		score, _ := strconv.ParseFloat(m["9. matchScore"], 64)
		matches = append(matches, domain.SearchMatch{
			Symbol: m["1. symbol"],
			Name:   m["2. name"],
			Kind:   m["3. type"],
			Region: m["4. region"],
			Score:  score,
		})
	}
	return matches, nil
}

// trimToWindow drops bars older than the window measured from the newest
// bar in the series.
func trimToWindow(bars []domain.Bar, window domain.Window) []domain.Bar {
	if window.IsMax() || len(bars) == 0 {
		return bars
	}
	cutoff := bars[len(bars)-1].Date.AddDate(0, 0, -window.Days())
	for i, b := range bars {
		if !b.Date.Before(cutoff) {
			return bars[i:]
		}
	}
	return bars
}
