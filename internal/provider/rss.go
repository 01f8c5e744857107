package provider

import (
	"context"
	"encoding/xml"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"stockpulse/internal/domain"
)

// GoogleNewsRSS supplements the chain's news capability with the public
// Google News RSS search feed. It is news-only: every other capability is
// unsupported, so it sits harmlessly at the end of the chain.
type GoogleNewsRSS struct {
	baseURL string
}

var _ Provider = (*GoogleNewsRSS)(nil)

// NewGoogleNewsRSS creates the RSS news source.
func NewGoogleNewsRSS() *GoogleNewsRSS {
	return &GoogleNewsRSS{baseURL: "https://news.google.com/rss/search"}
}

// Name identifies the provider in logs.
func (p *GoogleNewsRSS) Name() string { return "google-news-rss" }

// FetchSeries is not offered by the RSS feed.
func (p *GoogleNewsRSS) FetchSeries(_ context.Context, _ string, _ domain.Window) ([]domain.Bar, error) {
	return nil, ErrUnsupported
}

// FetchSentiment is not offered by the RSS feed.
func (p *GoogleNewsRSS) FetchSentiment(_ context.Context, _ string) (float64, error) {
	return 0, ErrUnsupported
}

// SearchAssets is not offered by the RSS feed.
func (p *GoogleNewsRSS) SearchAssets(_ context.Context, _ string) ([]domain.SearchMatch, error) {
	return nil, ErrUnsupported
}

type rssResponse struct {
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title   string `xml:"title"`
	Link    string `xml:"link"`
	PubDate string `xml:"pubDate"`
	Source  string `xml:"source"`
}

// FetchNews searches the feed for "<symbol> stock" and returns up to limit
// items, newest first.
func (p *GoogleNewsRSS) FetchNews(ctx context.Context, symbol string, limit int) ([]domain.NewsItem, error) {
	if limit <= 0 {
		limit = 20
	}

	params := url.Values{}
	params.Set("q", symbol+" stock")
	params.Set("hl", "en-US")
	params.Set("gl", "US")
	params.Set("ceid", "US:en")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"?"+params.Encode(), nil)
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
		return nil, fmt.Errorf("google news status %d", resp.StatusCode)
	}

	var rss rssResponse
	if err := xml.NewDecoder(resp.Body).Decode(&rss); err != nil {
		return nil, err
	}

	var items []domain.NewsItem
	for _, item := range rss.Channel.Items {
		t, err := time.Parse(time.RFC1123Z, item.PubDate)
		if err != nil {
			t, err = time.Parse(time.RFC1123, item.PubDate)
			if err != nil {
				continue
			}
		}
		// Google appends " - Publisher" to every headline.
		headline := item.Title
		publisher := item.Source
		if idx := strings.LastIndex(headline, " - "); idx > 0 {
			if publisher == "" {
				publisher = headline[idx+3:]
			}
			headline = headline[:idx]
		}
		items = append(items, domain.NewsItem{
			ID:          domain.NewsID(symbol, item.Link, headline),
			Symbol:      symbol,
			Title:       StripHTML(headline),
			Publisher:   publisher,
			Link:        item.Link,
			PublishTime: t,
		})
		if len(items) >= limit {
			break
		}
	}
	return items, nil
}

var htmlTagRe = regexp.MustCompile(`<[^>]*>`)

// StripHTML removes HTML tags and normalizes whitespace.
func StripHTML(s string) string {
	s = htmlTagRe.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	return strings.Join(strings.Fields(s), " ")
}
