// Package collect runs the background collection loop that keeps the store
// populated: daily bars with gap-filling, news, alt-data snapshots, and
// periodic fundamentals, on a schedule that tightens during market hours.
package collect

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"stockpulse/internal/config"
	"stockpulse/internal/domain"
	"stockpulse/internal/fetch"
	"stockpulse/internal/provider"
	"stockpulse/internal/store"
	"stockpulse/internal/util"
)

// AttentionSource measures social attention for a symbol in [0, 100].
type AttentionSource interface {
	FetchAttention(ctx context.Context, symbol string) (float64, error)
}

// NewsSource is the chain's news capability.
type NewsSource interface {
	FetchNews(ctx context.Context, symbol string, limit int) []domain.NewsItem
	FetchSentiment(ctx context.Context, symbol string) (float64, bool)
}

// Collector is the background refresh loop. One cycle walks every target
// symbol and fills whatever has gone stale; between cycles it sleeps for the
// market-hours or off-hours interval.
type Collector struct {
	cfg       config.CollectorConfig
	st        *store.Store
	oracle    *fetch.Oracle
	series    fetch.SeriesSource
	news      NewsSource
	attention AttentionSource
	profiles  provider.ProfileSource
	limiter   *util.RateLimiter
	log       *slog.Logger

	now           func() time.Time
	lastProfileAt map[string]time.Time
}

// New creates a collector. The attention and profile sources are optional;
// nil disables the corresponding refresh.
func New(cfg config.CollectorConfig, st *store.Store, oracle *fetch.Oracle, series fetch.SeriesSource, news NewsSource, attention AttentionSource, profiles provider.ProfileSource, log *slog.Logger) *Collector {
	if log == nil {
		log = slog.Default()
	}
	perMin := cfg.RateLimitPerMin
	if perMin <= 0 {
		perMin = 30
	}
	return &Collector{
		cfg:           cfg,
		st:            st,
		oracle:        oracle,
		series:        series,
		news:          news,
		attention:     attention,
		profiles:      profiles,
		limiter:       util.NewRateLimiter(perMin),
		log:           log.With("component", "collector"),
		now:           time.Now,
		lastProfileAt: make(map[string]time.Time),
	}
}

// Run executes cycles until the context is cancelled.
func (c *Collector) Run(ctx context.Context) error {
	c.oracle.Warm(ctx)

	for {
		start := c.now()
		c.Cycle(ctx)
		c.log.Info("cycle complete", "elapsed", c.now().Sub(start).Round(time.Second).String())

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.sleepInterval()):
		}
	}
}

func (c *Collector) sleepInterval() time.Duration {
	min := c.cfg.OffHoursIntervalMin
	if util.InMarketHours(c.now()) {
		min = c.cfg.MarketHoursIntervalMin
	}
	if min <= 0 {
		min = 60
	}
	return time.Duration(min) * time.Minute
}

// Cycle runs one full pass over the target set.
func (c *Collector) Cycle(ctx context.Context) {
	targets := c.Targets(ctx)
	c.log.Info("cycle start", "targets", len(targets))

	for _, sym := range targets {
		if ctx.Err() != nil {
			return
		}
		c.refreshSeries(ctx, sym)
		c.refreshNews(ctx, sym)
		c.refreshAltData(ctx, sym)
		c.refreshProfile(ctx, sym)
	}
}

// Targets returns the benchmarks plus every symbol already present in the
// store, deduplicated with benchmarks first.
func (c *Collector) Targets(ctx context.Context) []string {
	seen := make(map[string]struct{})
	var targets []string
	for _, b := range c.cfg.Benchmarks {
		if _, ok := seen[b]; ok {
			continue
		}
		seen[b] = struct{}{}
		targets = append(targets, b)
	}

	known, err := c.st.LatestDatesMap(ctx)
	if err != nil {
		c.log.Warn("listing stored symbols failed", "error", err)
		return targets
	}
	for sym := range known {
		if _, ok := seen[sym]; ok {
			continue
		}
		seen[sym] = struct{}{}
		targets = append(targets, sym)
	}
	return targets
}

// FillWindow picks the narrowest window that covers the gap between the
// latest stored bar and the most recent completed weekday. The second return
// value is false when the series is already current.
func (c *Collector) FillWindow(ctx context.Context, symbol string) (domain.Window, bool) {
	latest, ok := c.oracle.LatestDate(ctx, symbol)
	if !ok {
		// Nothing stored yet: pull a year of history.
		return domain.Win1Y, true
	}

	required := util.MostRecentWeekday(c.now())
	if !latest.Before(required) {
		return "", false
	}

	gapDays := int(required.Sub(latest).Hours() / 24)
	switch {
	case gapDays <= 2:
		return domain.Win5D, true
	case gapDays <= 25:
		return domain.Win1Mo, true
	default:
		return domain.Win1Y, true
	}
}

func (c *Collector) refreshSeries(ctx context.Context, symbol string) {
	window, needed := c.FillWindow(ctx, symbol)
	if !needed {
		c.log.Debug("series current", "symbol", symbol)
		return
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return
	}

	var bars []domain.Bar
	err := util.Retry(ctx, c.retries(), time.Second, func() error {
		bars = c.series.FetchSeries(ctx, symbol, window)
		if len(bars) == 0 {
			return errEmptySeries
		}
		return nil
	})
	if err != nil {
		c.log.Warn("series refresh failed", "symbol", symbol, "window", window, "error", err)
		return
	}

	if err := c.st.UpsertBars(ctx, symbol, bars); err != nil {
		c.log.Warn("storing series failed", "symbol", symbol, "error", err)
		return
	}
	latest := bars[len(bars)-1].Date
	for _, b := range bars {
		if b.Date.After(latest) {
			latest = b.Date
		}
	}
	c.oracle.Observe(symbol, latest)
	c.log.Info("series refreshed", "symbol", symbol, "window", window, "bars", len(bars))
}

func (c *Collector) refreshNews(ctx context.Context, symbol string) {
	if c.news == nil {
		return
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return
	}
	limit := c.cfg.NewsLimit
	if limit <= 0 {
		limit = 5
	}
	items := c.news.FetchNews(ctx, symbol, limit)
	if len(items) == 0 {
		return
	}
	inserted, err := c.st.InsertNewsIfAbsent(ctx, items)
	if err != nil {
		c.log.Warn("storing news failed", "symbol", symbol, "error", err)
		return
	}
	if inserted > 0 {
		c.log.Info("news stored", "symbol", symbol, "new_items", inserted)
	}
}

func (c *Collector) refreshAltData(ctx context.Context, symbol string) {
	if c.attention == nil && c.news == nil {
		return
	}

	now := c.now().UTC()
	snap := domain.AltDataSnapshot{
		Symbol: symbol,
		Date:   time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC),
	}

	if c.attention != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return
		}
		score, err := c.attention.FetchAttention(ctx, symbol)
		if err != nil {
			c.log.Debug("attention fetch failed", "symbol", symbol, "error", err)
		} else {
			snap.Attention = score
		}
	}
	if c.news != nil {
		if score, ok := c.news.FetchSentiment(ctx, symbol); ok {
			snap.Sentiment = score
		}
	}

	if err := c.st.UpsertAltData(ctx, snap); err != nil {
		c.log.Warn("storing alt data failed", "symbol", symbol, "error", err)
	}
}

// profileRefreshEvery spaces out OVERVIEW calls; company metadata moves
// slowly and the endpoint is the most rate-limited one.
const profileRefreshEvery = 7 * 24 * time.Hour

func (c *Collector) refreshProfile(ctx context.Context, symbol string) {
	if c.profiles == nil {
		return
	}
	if last, ok := c.lastProfileAt[symbol]; ok && c.now().Sub(last) < profileRefreshEvery {
		return
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return
	}

	asset, snap, err := c.profiles.FetchProfile(ctx, symbol)
	if err != nil {
		c.log.Debug("profile fetch failed", "symbol", symbol, "error", err)
		return
	}
	c.lastProfileAt[symbol] = c.now()

	if err := c.st.UpsertAsset(ctx, asset); err != nil {
		c.log.Warn("storing asset profile failed", "symbol", symbol, "error", err)
	}
	if err := c.st.UpsertFundamentals(ctx, snap); err != nil {
		c.log.Warn("storing fundamentals failed", "symbol", symbol, "error", err)
	}
}

func (c *Collector) retries() int {
	if c.cfg.MaxRetries > 0 {
		return c.cfg.MaxRetries
	}
	return 3
}

// errEmptySeries drives the retry loop when providers come back empty.
var errEmptySeries = errors.New("providers returned no bars")
