package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// StockTwits measures social attention for a symbol from message velocity on
// the public StockTwits stream. It is not part of the series fallback chain;
// the collector uses it to build alt-data snapshots.
type StockTwits struct {
	baseURL string
}

// NewStockTwits creates the StockTwits attention source.
func NewStockTwits() *StockTwits {
	return &StockTwits{baseURL: "https://api.stocktwits.com/api/2/streams/symbol/"}
}

// FetchAttention returns an attention score in [0, 100]. The stream returns
// roughly 30 recent messages; a full page maps to 100.
func (p *StockTwits) FetchAttention(ctx context.Context, symbol string) (float64, error) {
	u := p.baseURL + url.PathEscape(symbol) + ".json"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("stocktwits status %d", resp.StatusCode)
	}

	var payload struct {
		Response struct {
			Status int `json:"status"`
		} `json:"response"`
		Messages []json.RawMessage `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, err
	}
	if payload.Response.Status != 200 {
		return 0, fmt.Errorf("stocktwits status %d", payload.Response.Status)
	}

	score := float64(len(payload.Messages)) / 30.0 * 100.0
	if score > 100 {
		score = 100
	}
	return score, nil
}
