package fetch

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockpulse/internal/config"
	"stockpulse/internal/domain"
	"stockpulse/internal/store"
)

// spySource records provider-chain calls and plays back a scripted series.
type spySource struct {
	bars  map[string][]domain.Bar
	calls []string
}

func (s *spySource) FetchSeries(_ context.Context, symbol string, _ domain.Window) []domain.Bar {
	s.calls = append(s.calls, symbol)
	return s.bars[symbol]
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	mgr := store.NewManager(filepath.Join(t.TempDir(), "market.db"), nil)
	t.Cleanup(func() { mgr.Close() })
	return store.New(mgr, nil)
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// series builds n consecutive calendar days of bars ending at end.
func series(symbol string, end time.Time, n int) []domain.Bar {
	bars := make([]domain.Bar, n)
	for i := range bars {
		bars[i] = domain.Bar{
			Symbol: symbol,
			Date:   end.AddDate(0, 0, i-n+1),
			Open:   100, High: 101, Low: 99, Close: 100 + float64(i),
			Volume: 1000,
		}
	}
	return bars
}

func preferLiveResolver(t *testing.T, st *store.Store, src SeriesSource, now time.Time) Resolver {
	t.Helper()
	cfg := config.Default()
	cfg.Fetch.Strategy = config.StrategyPreferLive
	oracle := NewOracle(st, nil)
	oracle.now = func() time.Time { return now }
	return NewResolver(cfg, st, oracle, src, nil, slog.Default())
}

func TestFreshStoreSkipsProviderEntirely(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	// Monday 2026-03-09: the most recent completed weekday is Friday the 6th.
	now := day(2026, 3, 9)
	require.NoError(t, st.UpsertBars(ctx, "AAPL", series("AAPL", day(2026, 3, 6), 30)))

	src := &spySource{}
	r := preferLiveResolver(t, st, src, now)

	res := r.Resolve(ctx, "AAPL", domain.Win1Mo)
	assert.Equal(t, domain.ProvenanceCached, res.Provenance)
	assert.NotEmpty(t, res.Bars)
	assert.Empty(t, src.calls, "fresh stored series must not trigger a provider call")
}

func TestFridayDataIsFreshOnSaturday(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	// Friday 2026-03-06 data, checked on Saturday the 7th.
	require.NoError(t, st.UpsertBars(ctx, "MSFT", series("MSFT", day(2026, 3, 6), 5)))

	oracle := NewOracle(st, nil)
	oracle.now = func() time.Time { return day(2026, 3, 7) }
	assert.True(t, oracle.IsFresh(ctx, "MSFT", domain.Win1Mo))

	// Still fresh on Sunday, stale by Tuesday.
	oracle2 := NewOracle(st, nil)
	oracle2.now = func() time.Time { return day(2026, 3, 8) }
	assert.True(t, oracle2.IsFresh(ctx, "MSFT", domain.Win1Mo))

	oracle3 := NewOracle(st, nil)
	oracle3.now = func() time.Time { return day(2026, 3, 10) }
	assert.False(t, oracle3.IsFresh(ctx, "MSFT", domain.Win1Mo))
}

func TestLiveSeriesIsPersisted(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := day(2026, 3, 9)

	src := &spySource{bars: map[string][]domain.Bar{
		"NEWCO": series("NEWCO", day(2026, 3, 6), 250),
	}}
	r := preferLiveResolver(t, st, src, now)

	res := r.Resolve(ctx, "NEWCO", domain.Win1Y)
	assert.Equal(t, domain.ProvenanceLive, res.Provenance)
	require.Len(t, res.Bars, 250)

	stored, err := st.QueryRange(ctx, "NEWCO", domain.WinMax)
	require.NoError(t, err)
	assert.Len(t, stored, 250, "live series must be written back to the store")
}

func TestAllProvidersEmptyYieldsEmptyResult(t *testing.T) {
	st := newTestStore(t)
	src := &spySource{}
	r := preferLiveResolver(t, st, src, day(2026, 3, 9))

	res := r.Resolve(context.Background(), "ZZZZ", domain.Win1Mo)
	assert.True(t, res.IsEmpty())
	assert.Equal(t, domain.ProvenanceEmpty, res.Provenance)
}

func TestStaleStoreServedWhenProvidersFail(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	// Data ends two weeks before "now" and no provider responds.
	require.NoError(t, st.UpsertBars(ctx, "IBM", series("IBM", day(2026, 2, 20), 10)))
	src := &spySource{}
	r := preferLiveResolver(t, st, src, day(2026, 3, 9))

	res := r.Resolve(ctx, "IBM", domain.Win1Mo)
	assert.Equal(t, domain.ProvenanceCached, res.Provenance)
	assert.NotEmpty(t, res.Bars)
	assert.Equal(t, []string{"IBM"}, src.calls, "stale series must still attempt a live fetch first")
}

func TestPreferStoreOnlyFetchesOnMiss(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.UpsertBars(ctx, "AAPL", series("AAPL", day(2026, 2, 1), 10)))

	cfg := config.Default()
	cfg.Fetch.Strategy = config.StrategyPreferStore
	src := &spySource{bars: map[string][]domain.Bar{
		"NEWCO": series("NEWCO", day(2026, 3, 6), 20),
	}}
	r := NewResolver(cfg, st, NewOracle(st, nil), src, nil, nil)

	// Stored symbol: served from the store regardless of age.
	res := r.Resolve(ctx, "AAPL", domain.WinMax)
	assert.Equal(t, domain.ProvenanceCached, res.Provenance)
	assert.Empty(t, src.calls)

	// Unknown symbol: fetched live and persisted.
	res = r.Resolve(ctx, "NEWCO", domain.Win1Mo)
	assert.Equal(t, domain.ProvenanceLive, res.Provenance)
	stored, err := st.QueryRange(ctx, "NEWCO", domain.WinMax)
	require.NoError(t, err)
	assert.Len(t, stored, 20)
}

func TestRefreshBypassesFreshStore(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := day(2026, 3, 9)

	require.NoError(t, st.UpsertBars(ctx, "AAPL", series("AAPL", day(2026, 3, 6), 30)))
	src := &spySource{bars: map[string][]domain.Bar{
		"AAPL": series("AAPL", day(2026, 3, 6), 40),
	}}
	r := preferLiveResolver(t, st, src, now)

	res := r.Refresh(ctx, "AAPL", domain.Win3Mo)
	assert.Equal(t, domain.ProvenanceLive, res.Provenance)
	assert.Len(t, res.Bars, 40)
	assert.Equal(t, []string{"AAPL"}, src.calls, "refresh must always go live")
}

func TestFileOnlyStrategyRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cache := NewFileCache(dir, nil)

	cfg := config.Default()
	cfg.Fetch.Strategy = config.StrategyFileOnly
	src := &spySource{bars: map[string][]domain.Bar{
		"TSLA": series("TSLA", day(2026, 3, 6), 15),
	}}
	r := NewResolver(cfg, nil, nil, src, cache, nil)

	ctx := context.Background()
	res := r.Resolve(ctx, "TSLA", domain.Win1Mo)
	assert.Equal(t, domain.ProvenanceLive, res.Provenance)
	require.Len(t, res.Bars, 15)

	// Second resolution the same day hits the Parquet cache.
	res = r.Resolve(ctx, "TSLA", domain.Win1Mo)
	assert.Equal(t, domain.ProvenanceCached, res.Provenance)
	assert.Len(t, res.Bars, 15)
	assert.Equal(t, []string{"TSLA"}, src.calls, "cache hit must not call providers")
}

func TestFileCacheStaleByModTime(t *testing.T) {
	cache := NewFileCache(t.TempDir(), nil)
	require.NoError(t, cache.Put("AAPL", domain.Win5D, series("AAPL", day(2026, 3, 6), 5)))

	_, ok := cache.Get("AAPL", domain.Win5D)
	assert.True(t, ok)

	// Pretend a day has passed since the file was written.
	cache.now = func() time.Time { return time.Now().AddDate(0, 0, 1) }
	_, ok = cache.Get("AAPL", domain.Win5D)
	assert.False(t, ok, "yesterday's cache file must be a miss")
}

func TestFetchBatchPartitionsHitsAndMisses(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.UpsertBars(ctx, "AAPL", series("AAPL", day(2026, 3, 6), 10)))
	require.NoError(t, st.UpsertBars(ctx, "MSFT", series("MSFT", day(2026, 3, 6), 10)))

	src := &spySource{}
	r := preferLiveResolver(t, st, src, day(2026, 3, 9))
	oracle := NewOracle(st, nil)
	oracle.now = func() time.Time { return day(2026, 3, 9) }
	b := NewBatcher(st, r, oracle, nil)

	out := b.FetchBatch(ctx, []string{"AAPL", "MSFT", "ZZZZ"}, domain.Win5D)
	require.Len(t, out, 3)

	assert.Equal(t, domain.ProvenanceCached, out["AAPL"].Provenance)
	assert.Equal(t, domain.ProvenanceCached, out["MSFT"].Provenance)
	assert.True(t, out["ZZZZ"].IsEmpty(), "unknown ticker resolves empty, not an error")

	// Only the miss went through the resolver.
	assert.Equal(t, []string{"ZZZZ"}, src.calls)
}

func TestFetchBatchRoutesStaleHitsThroughResolver(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := day(2026, 3, 9)

	// Weeks-old data and no live providers: the batch must treat the stored
	// hit as stale, attempt a live fetch, then fall back to the stale rows,
	// exactly like the single-symbol path.
	require.NoError(t, st.UpsertBars(ctx, "OLDCO", series("OLDCO", day(2026, 2, 6), 10)))

	src := &spySource{}
	r := preferLiveResolver(t, st, src, now)
	oracle := NewOracle(st, nil)
	oracle.now = func() time.Time { return now }
	b := NewBatcher(st, r, oracle, nil)

	out := b.FetchBatch(ctx, []string{"OLDCO"}, domain.Win1Mo)
	require.Len(t, out, 1)
	assert.Equal(t, domain.ProvenanceCached, out["OLDCO"].Provenance)
	assert.NotEmpty(t, out["OLDCO"].Bars)
	assert.Equal(t, []string{"OLDCO"}, src.calls)
}

func TestFetchBatchDedupes(t *testing.T) {
	st := newTestStore(t)
	src := &spySource{}
	r := preferLiveResolver(t, st, src, day(2026, 3, 9))
	b := NewBatcher(st, r, nil, nil)

	out := b.FetchBatch(context.Background(), []string{"AAPL", "AAPL", ""}, domain.Win5D)
	assert.Len(t, out, 1)
	assert.Equal(t, []string{"AAPL"}, src.calls)
}
