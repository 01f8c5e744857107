package fetch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"stockpulse/internal/domain"
	"stockpulse/internal/store"
	"stockpulse/internal/util"
)

// Oracle answers "is the stored series for this symbol current enough to
// skip a live fetch". It memoizes per-symbol latest dates so repeated
// freshness checks within a session do not hit the store.
//
// A series is fresh when its latest stored date is at or past the most
// recent completed weekday before today. Weekends therefore do not go
// stale: Friday's close keeps a symbol fresh through Sunday.
type Oracle struct {
	st  *store.Store
	log *slog.Logger
	now func() time.Time

	mu     sync.RWMutex
	latest map[string]time.Time
}

// NewOracle creates a freshness oracle over the store.
func NewOracle(st *store.Store, log *slog.Logger) *Oracle {
	if log == nil {
		log = slog.Default()
	}
	return &Oracle{
		st:     st,
		log:    log.With("component", "freshness"),
		now:    time.Now,
		latest: make(map[string]time.Time),
	}
}

// Warm preloads the memo with every symbol's latest stored date in a single
// query. Failures leave the memo empty; per-symbol lookups still work.
func (o *Oracle) Warm(ctx context.Context) {
	m, err := o.st.LatestDatesMap(ctx)
	if err != nil {
		o.log.Warn("latest-dates preload failed", "error", err)
		return
	}
	o.mu.Lock()
	for sym, d := range m {
		o.latest[sym] = d
	}
	o.mu.Unlock()
	o.log.Debug("latest dates preloaded", "symbols", len(m))
}

// Observe records a freshly stored latest date, keeping the memo current
// after writes without another store round trip.
func (o *Oracle) Observe(symbol string, date time.Time) {
	date = util.Midnight(date)
	o.mu.Lock()
	if cur, ok := o.latest[symbol]; !ok || date.After(cur) {
		o.latest[symbol] = date
	}
	o.mu.Unlock()
}

// LatestDate returns the symbol's latest stored date, consulting the memo
// first and falling back to the store.
func (o *Oracle) LatestDate(ctx context.Context, symbol string) (time.Time, bool) {
	o.mu.RLock()
	d, ok := o.latest[symbol]
	o.mu.RUnlock()
	if ok {
		return d, true
	}

	d, ok, err := o.st.LatestDate(ctx, symbol)
	if err != nil {
		o.log.Warn("latest-date lookup failed", "symbol", symbol, "error", err)
		return time.Time{}, false
	}
	if !ok {
		return time.Time{}, false
	}
	o.Observe(symbol, d)
	return util.Midnight(d), true
}

// IsFresh reports whether the stored series for symbol is current for the
// given window. A symbol with no stored data is never fresh. For the "max"
// window any stored history counts: its value is depth, not recency.
func (o *Oracle) IsFresh(ctx context.Context, symbol string, window domain.Window) bool {
	latest, ok := o.LatestDate(ctx, symbol)
	if !ok {
		return false
	}
	if window.IsMax() {
		return true
	}

	required := util.MostRecentWeekday(o.now())
	return !latest.Before(required)
}

// StaleDays returns how many calendar days the stored series lags behind the
// most recent completed weekday. Zero means fresh.
func (o *Oracle) StaleDays(ctx context.Context, symbol string) int {
	latest, ok := o.LatestDate(ctx, symbol)
	if !ok {
		return -1
	}
	required := util.MostRecentWeekday(o.now())
	if !latest.Before(required) {
		return 0
	}
	return int(required.Sub(latest).Hours() / 24)
}
