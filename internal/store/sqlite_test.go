package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"stockpulse/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mgr := NewManager(filepath.Join(t.TempDir(), "market.db"), nil)
	t.Cleanup(func() { mgr.Close() })
	return New(mgr, nil)
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestUpsertBarsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := []domain.Bar{{
		Date: day(2025, 3, 10), Open: 100, High: 105, Low: 99, Close: 104, Volume: 1000,
	}}
	if err := s.UpsertBars(ctx, "AAPL", first); err != nil {
		t.Fatalf("UpsertBars (first): %v", err)
	}

	// Re-fetching the same date overwrites, never duplicates.
	second := []domain.Bar{{
		Date: day(2025, 3, 10), Open: 101, High: 106, Low: 100, Close: 105, Volume: 2000,
	}}
	if err := s.UpsertBars(ctx, "AAPL", second); err != nil {
		t.Fatalf("UpsertBars (second): %v", err)
	}

	got, err := s.QueryRange(ctx, "AAPL", domain.WinMax)
	if err != nil {
		t.Fatalf("QueryRange: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d rows for upserted (symbol, date), want exactly 1", len(got))
	}
	if got[0].Close != 105 || got[0].Volume != 2000 {
		t.Errorf("row not overwritten: close=%v volume=%d, want 105/2000", got[0].Close, got[0].Volume)
	}
}

func TestLatestDateAndMap(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	bars := []domain.Bar{
		{Date: day(2025, 3, 6), Close: 1, Volume: 1},
		{Date: day(2025, 3, 7), Close: 2, Volume: 1},
	}
	if err := s.UpsertBars(ctx, "AAPL", bars); err != nil {
		t.Fatalf("UpsertBars AAPL: %v", err)
	}
	if err := s.UpsertBars(ctx, "MSFT", bars[:1]); err != nil {
		t.Fatalf("UpsertBars MSFT: %v", err)
	}

	latest, ok, err := s.LatestDate(ctx, "AAPL")
	if err != nil || !ok {
		t.Fatalf("LatestDate AAPL = (%v, %v, %v)", latest, ok, err)
	}
	if !latest.Equal(day(2025, 3, 7)) {
		t.Errorf("LatestDate AAPL = %v, want 2025-03-07", latest)
	}

	if _, ok, err := s.LatestDate(ctx, "ZZZZ"); err != nil || ok {
		t.Errorf("LatestDate for unknown symbol = (ok=%v, err=%v), want (false, nil)", ok, err)
	}

	m, err := s.LatestDatesMap(ctx)
	if err != nil {
		t.Fatalf("LatestDatesMap: %v", err)
	}
	if len(m) != 2 {
		t.Fatalf("LatestDatesMap has %d entries, want 2", len(m))
	}
	if !m["MSFT"].Equal(day(2025, 3, 6)) {
		t.Errorf("LatestDatesMap[MSFT] = %v, want 2025-03-06", m["MSFT"])
	}
}

func TestQueryRangeWindowRelativeToLatest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// 40 calendar days of bars ending 2025-03-07.
	var bars []domain.Bar
	for i := 0; i < 40; i++ {
		bars = append(bars, domain.Bar{
			Date: day(2025, 3, 7).AddDate(0, 0, -i), Close: float64(i), Volume: 1,
		})
	}
	if err := s.UpsertBars(ctx, "AAPL", bars); err != nil {
		t.Fatalf("UpsertBars: %v", err)
	}

	got, err := s.QueryRange(ctx, "AAPL", domain.Win1Mo)
	if err != nil {
		t.Fatalf("QueryRange: %v", err)
	}
	// 1mo = 30 days back from the symbol's own max date, inclusive.
	if len(got) != 31 {
		t.Fatalf("QueryRange(1mo) returned %d rows, want 31", len(got))
	}
	if !got[len(got)-1].Date.Equal(day(2025, 3, 7)) {
		t.Errorf("last row date = %v, want 2025-03-07", got[len(got)-1].Date)
	}
	for i := 1; i < len(got); i++ {
		if !got[i].Date.After(got[i-1].Date) {
			t.Fatalf("rows not in ascending date order at index %d", i)
		}
	}
}

func TestQueryRangeMulti(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, sym := range []string{"AAPL", "MSFT"} {
		bars := []domain.Bar{
			{Date: day(2025, 3, 6), Close: 10, Volume: 1},
			{Date: day(2025, 3, 7), Close: 11, Volume: 1},
		}
		if err := s.UpsertBars(ctx, sym, bars); err != nil {
			t.Fatalf("UpsertBars %s: %v", sym, err)
		}
	}

	got, err := s.QueryRangeMulti(ctx, []string{"AAPL", "MSFT", "ZZZZ"}, domain.Win1Y)
	if err != nil {
		t.Fatalf("QueryRangeMulti: %v", err)
	}
	if len(got["AAPL"]) != 2 || len(got["MSFT"]) != 2 {
		t.Errorf("partition sizes = %d/%d, want 2/2", len(got["AAPL"]), len(got["MSFT"]))
	}
	if _, present := got["ZZZZ"]; present {
		t.Error("symbol with no rows should be absent from the partition map")
	}
}

func TestQueryRangeMultiRejectsInvalidSymbols(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	bars := []domain.Bar{{Date: day(2025, 3, 7), Close: 1, Volume: 1}}
	if err := s.UpsertBars(ctx, "AAPL", bars); err != nil {
		t.Fatalf("UpsertBars: %v", err)
	}

	// The injection attempt must be dropped, not interpolated.
	got, err := s.QueryRangeMulti(ctx,
		[]string{"AAPL", "X'); DROP TABLE daily_bars; --"}, domain.WinMax)
	if err != nil {
		t.Fatalf("QueryRangeMulti: %v", err)
	}
	if len(got["AAPL"]) != 1 {
		t.Errorf("valid symbol rows = %d, want 1", len(got["AAPL"]))
	}

	// Table must still exist.
	if _, err := s.QueryRange(ctx, "AAPL", domain.WinMax); err != nil {
		t.Fatalf("daily_bars table damaged by batch query: %v", err)
	}
}

func TestInsertNewsIfAbsent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	items := []domain.NewsItem{
		{
			Symbol: "AAPL", Title: "Apple beats estimates", Publisher: "Newswire",
			Link: "https://example.com/a", PublishTime: time.Unix(1741600000, 0), Sentiment: 0.4,
		},
		{
			Symbol: "AAPL", Title: "Apple beats estimates", Publisher: "Newswire",
			Link: "https://example.com/a", PublishTime: time.Unix(1741600000, 0), Sentiment: 0.4,
		},
	}
	n, err := s.InsertNewsIfAbsent(ctx, items)
	if err != nil {
		t.Fatalf("InsertNewsIfAbsent: %v", err)
	}
	if n != 1 {
		t.Errorf("inserted %d rows, want 1 (duplicate must be ignored)", n)
	}

	// A second call with the same items inserts nothing.
	n, err = s.InsertNewsIfAbsent(ctx, items[:1])
	if err != nil {
		t.Fatalf("InsertNewsIfAbsent (repeat): %v", err)
	}
	if n != 0 {
		t.Errorf("repeat insert added %d rows, want 0", n)
	}

	got, err := s.LatestNews(ctx, "AAPL", 10)
	if err != nil {
		t.Fatalf("LatestNews: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("LatestNews returned %d items, want 1", len(got))
	}
	if got[0].Title != "Apple beats estimates" {
		t.Errorf("title = %q", got[0].Title)
	}
}

func TestUpsertAltDataSameDayReplaces(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	d := day(2025, 3, 7)
	if err := s.UpsertAltData(ctx, domain.AltDataSnapshot{
		Symbol: "AAPL", Date: d, Sentiment: 0.1, Attention: 40,
	}); err != nil {
		t.Fatalf("UpsertAltData (first): %v", err)
	}
	if err := s.UpsertAltData(ctx, domain.AltDataSnapshot{
		Symbol: "AAPL", Date: d, Sentiment: 0.3, Attention: 80,
	}); err != nil {
		t.Fatalf("UpsertAltData (second): %v", err)
	}

	hist, err := s.AltHistory(ctx, "AAPL", 30)
	if err != nil {
		t.Fatalf("AltHistory: %v", err)
	}
	if len(hist) != 1 {
		t.Fatalf("AltHistory has %d rows, want 1", len(hist))
	}
	if hist[0].Sentiment != 0.3 || hist[0].Attention != 80 {
		t.Errorf("same-day re-fetch did not update in place: %+v", hist[0])
	}
}

func TestUpsertFundamentalsAppendOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	d := day(2025, 3, 7)
	if err := s.UpsertFundamentals(ctx, domain.FundamentalsSnapshot{
		Symbol: "AAPL", Date: d, PERatio: 28.5, MarketCap: 3_000_000_000_000, EPS: 6.1,
	}); err != nil {
		t.Fatalf("UpsertFundamentals: %v", err)
	}
	// Append-only: a second snapshot for the same date is ignored.
	if err := s.UpsertFundamentals(ctx, domain.FundamentalsSnapshot{
		Symbol: "AAPL", Date: d, PERatio: 99, MarketCap: 1, EPS: 0,
	}); err != nil {
		t.Fatalf("UpsertFundamentals (repeat): %v", err)
	}

	snap, ok, err := s.LatestFundamentals(ctx, "AAPL")
	if err != nil || !ok {
		t.Fatalf("LatestFundamentals = (ok=%v, err=%v)", ok, err)
	}
	if snap.PERatio != 28.5 {
		t.Errorf("PERatio = %v, want the original 28.5", snap.PERatio)
	}
}

func TestAssetOriginMerging(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.UpdateAssetOrigin(ctx, "AAPL", "favorites"); err != nil {
		t.Fatalf("UpdateAssetOrigin: %v", err)
	}
	if err := s.UpdateAssetOrigin(ctx, "AAPL", "news"); err != nil {
		t.Fatalf("UpdateAssetOrigin (second): %v", err)
	}
	if err := s.UpdateAssetOrigin(ctx, "AAPL", "favorites"); err != nil {
		t.Fatalf("UpdateAssetOrigin (repeat): %v", err)
	}

	a, ok, err := s.AssetDetails(ctx, "AAPL")
	if err != nil || !ok {
		t.Fatalf("AssetDetails = (ok=%v, err=%v)", ok, err)
	}
	if a.RetrievalOrigin != "favorites,news" {
		t.Errorf("RetrievalOrigin = %q, want %q", a.RetrievalOrigin, "favorites,news")
	}
}

func TestUpsertAssetRefreshesMetadata(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.UpsertAsset(ctx, domain.Asset{Ticker: "AAPL"}); err != nil {
		t.Fatalf("UpsertAsset (bare): %v", err)
	}
	if err := s.UpsertAsset(ctx, domain.Asset{
		Ticker: "AAPL", Name: "Apple Inc.", Sector: "Technology",
	}); err != nil {
		t.Fatalf("UpsertAsset (refresh): %v", err)
	}

	a, ok, err := s.AssetDetails(ctx, "AAPL")
	if err != nil || !ok {
		t.Fatalf("AssetDetails = (ok=%v, err=%v)", ok, err)
	}
	if a.Name != "Apple Inc." || a.Sector != "Technology" {
		t.Errorf("metadata not refreshed: %+v", a)
	}

	matches, err := s.SearchAssets(ctx, "App", 5)
	if err != nil {
		t.Fatalf("SearchAssets: %v", err)
	}
	if len(matches) != 1 || matches[0].Symbol != "AAPL" {
		t.Errorf("SearchAssets = %+v, want one AAPL match", matches)
	}
}

func TestRecordInteraction(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.RecordInteraction(ctx, "AAPL", "VIEW", map[string]any{"source": "cli"}); err != nil {
		t.Fatalf("RecordInteraction: %v", err)
	}
	if err := s.RecordInteraction(ctx, "AAPL", "LIKE", nil); err != nil {
		t.Fatalf("RecordInteraction (nil metadata): %v", err)
	}

	db, _, err := s.mgr.Acquire(false)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	var n int
	if err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM user_interactions WHERE ticker = ?", "AAPL").Scan(&n); err != nil {
		t.Fatalf("counting interactions: %v", err)
	}
	if n != 2 {
		t.Errorf("interaction count = %d, want 2", n)
	}
}
