package fetch

import (
	"context"
	"log/slog"

	"stockpulse/internal/config"
	"stockpulse/internal/domain"
	"stockpulse/internal/store"
)

// SeriesSource is the live side of a resolution: the provider fallback chain,
// or a stub in tests. It never returns an error; total failure is nil.
type SeriesSource interface {
	FetchSeries(ctx context.Context, symbol string, window domain.Window) []domain.Bar
}

// Resolver turns (symbol, window) into a series. Implementations never
// return errors: degraded paths are logged and the caller receives the best
// available result, possibly empty.
//
// Resolve honors the strategy's caching rules; Refresh bypasses them and
// forces a live fetch, falling back to stored data only when every provider
// fails.
type Resolver interface {
	Resolve(ctx context.Context, symbol string, window domain.Window) domain.Result
	Refresh(ctx context.Context, symbol string, window domain.Window) domain.Result
}

// NewResolver selects the resolution strategy once, at construction. The
// choice is fixed for the process lifetime; per-call branching on strategy
// is deliberately avoided.
func NewResolver(cfg *config.Config, st *store.Store, oracle *Oracle, src SeriesSource, cache *FileCache, log *slog.Logger) Resolver {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "fetch")

	switch cfg.Fetch.Strategy {
	case config.StrategyPreferLive:
		return &preferLive{st: st, oracle: oracle, src: src, log: log}
	case config.StrategyFileOnly:
		return &fileOnly{src: src, cache: cache, log: log}
	default:
		return &preferStore{st: st, src: src, oracle: oracle, log: log}
	}
}

// ---------------------------------------------------------------------------
// prefer-store
// ---------------------------------------------------------------------------

// preferStore serves whatever the store holds and only goes live when the
// store has nothing at all for the symbol.
type preferStore struct {
	st     *store.Store
	src    SeriesSource
	oracle *Oracle
	log    *slog.Logger
}

func (r *preferStore) Resolve(ctx context.Context, symbol string, window domain.Window) domain.Result {
	bars, err := r.st.QueryRange(ctx, symbol, window)
	if err != nil {
		r.log.Warn("store query failed", "symbol", symbol, "error", err)
	}
	if len(bars) > 0 {
		return domain.Result{Bars: bars, Provenance: domain.ProvenanceCached}
	}

	live := r.src.FetchSeries(ctx, symbol, window)
	if len(live) == 0 {
		return domain.EmptyResult()
	}
	persistBars(ctx, r.st, r.oracle, r.log, symbol, live)
	return domain.Result{Bars: live, Provenance: domain.ProvenanceLive}
}

func (r *preferStore) Refresh(ctx context.Context, symbol string, window domain.Window) domain.Result {
	return fetchLiveOrStored(ctx, r.st, r.oracle, r.src, r.log, symbol, window)
}

// ---------------------------------------------------------------------------
// prefer-live
// ---------------------------------------------------------------------------

// preferLive fetches from providers unless the stored series is already
// fresh, in which case the provider call is skipped entirely. Live results
// are persisted; when every provider fails, a stale stored series is still
// served rather than nothing.
type preferLive struct {
	st     *store.Store
	oracle *Oracle
	src    SeriesSource
	log    *slog.Logger
}

func (r *preferLive) Resolve(ctx context.Context, symbol string, window domain.Window) domain.Result {
	if r.oracle.IsFresh(ctx, symbol, window) {
		bars, err := r.st.QueryRange(ctx, symbol, window)
		if err == nil && len(bars) > 0 {
			r.log.Debug("serving fresh stored series", "symbol", symbol, "window", window)
			return domain.Result{Bars: bars, Provenance: domain.ProvenanceCached}
		}
		if err != nil {
			r.log.Warn("store query failed", "symbol", symbol, "error", err)
		}
	}

	return fetchLiveOrStored(ctx, r.st, r.oracle, r.src, r.log, symbol, window)
}

func (r *preferLive) Refresh(ctx context.Context, symbol string, window domain.Window) domain.Result {
	return fetchLiveOrStored(ctx, r.st, r.oracle, r.src, r.log, symbol, window)
}

// fetchLiveOrStored is the shared live path: fetch from providers, persist on
// success, and fall back to whatever the store holds when every tier fails.
func fetchLiveOrStored(ctx context.Context, st *store.Store, oracle *Oracle, src SeriesSource, log *slog.Logger, symbol string, window domain.Window) domain.Result {
	live := src.FetchSeries(ctx, symbol, window)
	if len(live) > 0 {
		persistBars(ctx, st, oracle, log, symbol, live)
		return domain.Result{Bars: live, Provenance: domain.ProvenanceLive}
	}

	// Every provider failed. A stale series beats an empty chart.
	bars, err := st.QueryRange(ctx, symbol, window)
	if err != nil {
		log.Warn("store query failed", "symbol", symbol, "error", err)
		return domain.EmptyResult()
	}
	if len(bars) == 0 {
		return domain.EmptyResult()
	}
	if oracle != nil {
		if lag := oracle.StaleDays(ctx, symbol); lag > 0 {
			log.Warn("serving stale series", "symbol", symbol, "days_behind", lag)
		}
	}
	return domain.Result{Bars: bars, Provenance: domain.ProvenanceCached}
}

// ---------------------------------------------------------------------------
// file-only
// ---------------------------------------------------------------------------

// fileOnly bypasses the relational store entirely, pairing the provider
// chain with the same-day Parquet cache.
type fileOnly struct {
	src   SeriesSource
	cache *FileCache
	log   *slog.Logger
}

func (r *fileOnly) Resolve(ctx context.Context, symbol string, window domain.Window) domain.Result {
	if bars, ok := r.cache.Get(symbol, window); ok {
		return domain.Result{Bars: bars, Provenance: domain.ProvenanceCached}
	}

	live := r.src.FetchSeries(ctx, symbol, window)
	if len(live) == 0 {
		return domain.EmptyResult()
	}
	if err := r.cache.Put(symbol, window, live); err != nil {
		r.log.Warn("cache write failed", "symbol", symbol, "error", err)
	}
	return domain.Result{Bars: live, Provenance: domain.ProvenanceLive}
}

func (r *fileOnly) Refresh(ctx context.Context, symbol string, window domain.Window) domain.Result {
	live := r.src.FetchSeries(ctx, symbol, window)
	if len(live) == 0 {
		return domain.EmptyResult()
	}
	if err := r.cache.Put(symbol, window, live); err != nil {
		r.log.Warn("cache write failed", "symbol", symbol, "error", err)
	}
	return domain.Result{Bars: live, Provenance: domain.ProvenanceLive}
}

// persistBars writes live bars back to the store and keeps the freshness
// memo in step. Write failures degrade to a log line; the caller still gets
// the live series.
func persistBars(ctx context.Context, st *store.Store, oracle *Oracle, log *slog.Logger, symbol string, bars []domain.Bar) {
	if err := st.UpsertBars(ctx, symbol, bars); err != nil {
		log.Warn("persisting live series failed", "symbol", symbol, "error", err)
		return
	}
	if oracle != nil {
		latest := bars[0].Date
		for _, b := range bars[1:] {
			if b.Date.After(latest) {
				latest = b.Date
			}
		}
		oracle.Observe(symbol, latest)
	}
}
