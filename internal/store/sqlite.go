package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"stockpulse/internal/domain"
)

const dateLayout = "2006-01-02"

// validSymbol gates every symbol that is ever interpolated into a query
// body. Tickers are alphanumeric with limited punctuation ($MARKET, BRK.B,
// BF-B, ^GSPC).
var validSymbol = regexp.MustCompile(`^[A-Za-z0-9.\-^$]{1,12}$`)

// Store exposes typed operations over the SQLite market-data store. All
// writes require a writable handle; when only read-only mode is available
// every write degrades to a logged no-op, never an error.
type Store struct {
	mgr *Manager
	log *slog.Logger
}

// New creates a Store backed by the given connection Manager.
func New(mgr *Manager, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{mgr: mgr, log: log.With("component", "store")}
}

// writer returns a writable handle, or nil when the process could only
// obtain read-only mode. Callers treat nil as "skip the write".
func (s *Store) writer(op string) *sql.DB {
	db, mode, err := s.mgr.Acquire(true)
	if err != nil {
		s.log.Warn("write handle unavailable", "op", op, "error", err)
		return nil
	}
	if mode != ModeReadWrite {
		s.log.Warn("store is read-only, skipping write", "op", op)
		return nil
	}
	return db
}

func (s *Store) reader() (*sql.DB, error) {
	db, _, err := s.mgr.Acquire(false)
	return db, err
}

// ---------------------------------------------------------------------------
// Assets
// ---------------------------------------------------------------------------

// UpsertAsset ensures the asset row exists and refreshes any metadata fields
// the caller supplies. Empty fields never overwrite stored values.
func (s *Store) UpsertAsset(ctx context.Context, a domain.Asset) error {
	db := s.writer("upsert_asset")
	if db == nil {
		return nil
	}

	_, err := db.ExecContext(ctx,
		`INSERT OR IGNORE INTO assets (ticker, name, sector, industry, description)
		 VALUES (?, ?, ?, ?, ?)`,
		a.Ticker, orDefault(a.Name, a.Ticker), orDefault(a.Sector, "Unknown"),
		orDefault(a.Industry, "Unknown"), a.Description)
	if err != nil {
		return fmt.Errorf("inserting asset %s: %w", a.Ticker, err)
	}

	var sets []string
	var args []any
	for _, f := range []struct{ col, val string }{
		{"name", a.Name},
		{"sector", a.Sector},
		{"industry", a.Industry},
		{"description", a.Description},
	} {
		if f.val != "" {
			sets = append(sets, f.col+" = ?")
			args = append(args, f.val)
		}
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, a.Ticker)

	_, err = db.ExecContext(ctx,
		"UPDATE assets SET "+strings.Join(sets, ", ")+" WHERE ticker = ?", args...)
	if err != nil {
		return fmt.Errorf("updating asset %s: %w", a.Ticker, err)
	}
	return nil
}

// UpdateAssetOrigin merges origin into the asset's retrieval-origin set. The
// stored value is a comma-joined, sorted set so multi-origin assets (e.g.
// "favorites,news") stay stable across updates.
func (s *Store) UpdateAssetOrigin(ctx context.Context, ticker, origin string) error {
	db := s.writer("update_asset_origin")
	if db == nil {
		return nil
	}

	if _, err := db.ExecContext(ctx,
		`INSERT OR IGNORE INTO assets (ticker) VALUES (?)`, ticker); err != nil {
		return fmt.Errorf("ensuring asset %s: %w", ticker, err)
	}

	var current sql.NullString
	err := db.QueryRowContext(ctx,
		`SELECT retrieval_origin FROM assets WHERE ticker = ?`, ticker).Scan(&current)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("reading origin for %s: %w", ticker, err)
	}

	merged := mergeOrigin(current.String, origin)
	if _, err := db.ExecContext(ctx,
		`UPDATE assets SET retrieval_origin = ? WHERE ticker = ?`, merged, ticker); err != nil {
		return fmt.Errorf("updating origin for %s: %w", ticker, err)
	}
	return nil
}

func mergeOrigin(existing, origin string) string {
	set := map[string]bool{origin: true}
	for _, part := range strings.Split(existing, ",") {
		if part = strings.TrimSpace(part); part != "" {
			set[part] = true
		}
	}
	parts := make([]string, 0, len(set))
	for p := range set {
		parts = append(parts, p)
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

// AssetDetails returns the stored metadata for a ticker.
func (s *Store) AssetDetails(ctx context.Context, ticker string) (domain.Asset, bool, error) {
	db, err := s.reader()
	if err != nil {
		return domain.Asset{}, false, err
	}

	var a domain.Asset
	var name, sector, industry, desc, origin sql.NullString
	err = db.QueryRowContext(ctx,
		`SELECT ticker, name, sector, industry, description, retrieval_origin
		 FROM assets WHERE ticker = ?`, ticker).
		Scan(&a.Ticker, &name, &sector, &industry, &desc, &origin)
	if err == sql.ErrNoRows {
		return domain.Asset{}, false, nil
	}
	if err != nil {
		return domain.Asset{}, false, fmt.Errorf("reading asset %s: %w", ticker, err)
	}
	a.Name, a.Sector, a.Industry = name.String, sector.String, industry.String
	a.Description, a.RetrievalOrigin = desc.String, origin.String
	return a, true, nil
}

// SearchAssets matches stored assets by ticker or name substring.
func (s *Store) SearchAssets(ctx context.Context, query string, limit int) ([]domain.SearchMatch, error) {
	db, err := s.reader()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}

	pattern := "%" + query + "%"
	rows, err := db.QueryContext(ctx,
		`SELECT ticker, name, sector FROM assets
		 WHERE ticker LIKE ? OR name LIKE ? LIMIT ?`, pattern, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("searching assets: %w", err)
	}
	defer rows.Close()

	var matches []domain.SearchMatch
	for rows.Next() {
		var m domain.SearchMatch
		var name, sector sql.NullString
		if err := rows.Scan(&m.Symbol, &name, &sector); err != nil {
			return nil, err
		}
		m.Name, m.Kind = name.String, sector.String
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// ---------------------------------------------------------------------------
// Daily bars
// ---------------------------------------------------------------------------

// UpsertBars writes a batch of bars with insert-or-replace semantics:
// re-fetching the same (symbol, date) overwrites, never duplicates.
func (s *Store) UpsertBars(ctx context.Context, symbol string, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	db := s.writer("upsert_bars")
	if db == nil {
		return nil
	}

	if _, err := db.ExecContext(ctx,
		`INSERT OR IGNORE INTO assets (ticker, name) VALUES (?, ?)`, symbol, symbol); err != nil {
		return fmt.Errorf("ensuring asset %s: %w", symbol, err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning bar upsert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO daily_bars (ticker, date, open, high, low, close, volume)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing bar upsert: %w", err)
	}
	defer stmt.Close()

	for _, b := range bars {
		if _, err := stmt.ExecContext(ctx, symbol, b.Date.Format(dateLayout),
			b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			return fmt.Errorf("upserting bar %s %s: %w", symbol, b.Date.Format(dateLayout), err)
		}
	}
	return tx.Commit()
}

// LatestDate returns the most recent bar date stored for symbol.
func (s *Store) LatestDate(ctx context.Context, symbol string) (time.Time, bool, error) {
	db, err := s.reader()
	if err != nil {
		return time.Time{}, false, err
	}

	var raw sql.NullString
	err = db.QueryRowContext(ctx,
		`SELECT MAX(date) FROM daily_bars WHERE ticker = ?`, symbol).Scan(&raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("latest date for %s: %w", symbol, err)
	}
	if !raw.Valid || raw.String == "" {
		return time.Time{}, false, nil
	}
	d, err := time.Parse(dateLayout, raw.String)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parsing latest date %q: %w", raw.String, err)
	}
	return d, true, nil
}

// LatestDatesMap returns symbol -> latest stored bar date for every symbol,
// in one query.
func (s *Store) LatestDatesMap(ctx context.Context) (map[string]time.Time, error) {
	db, err := s.reader()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx,
		`SELECT ticker, MAX(date) FROM daily_bars GROUP BY ticker`)
	if err != nil {
		return nil, fmt.Errorf("latest dates map: %w", err)
	}
	defer rows.Close()

	out := make(map[string]time.Time)
	for rows.Next() {
		var ticker, raw string
		if err := rows.Scan(&ticker, &raw); err != nil {
			return nil, err
		}
		d, err := time.Parse(dateLayout, raw)
		if err != nil {
			continue
		}
		out[ticker] = d
	}
	return out, rows.Err()
}

// QueryRange returns the bars for symbol within the window, measured
// backwards from the symbol's own latest stored date so that "1y" means the
// last year of available data.
func (s *Store) QueryRange(ctx context.Context, symbol string, window domain.Window) ([]domain.Bar, error) {
	db, err := s.reader()
	if err != nil {
		return nil, err
	}

	var rows *sql.Rows
	if window.IsMax() {
		rows, err = db.QueryContext(ctx,
			`SELECT date, open, high, low, close, volume FROM daily_bars
			 WHERE ticker = ? ORDER BY date ASC`, symbol)
	} else {
		modifier := fmt.Sprintf("-%d days", window.Days())
		rows, err = db.QueryContext(ctx,
			`SELECT date, open, high, low, close, volume FROM daily_bars
			 WHERE ticker = ?
			   AND date >= (SELECT date(MAX(date), ?) FROM daily_bars WHERE ticker = ?)
			 ORDER BY date ASC`, symbol, modifier, symbol)
	}
	if err != nil {
		return nil, fmt.Errorf("querying bars for %s: %w", symbol, err)
	}
	defer rows.Close()

	return scanBars(rows, symbol)
}

// QueryRangeMulti returns bars for all requested symbols in one query,
// partitioned per symbol. This is the only place symbols are interpolated
// into a query body, so each one is validated first; invalid symbols are
// dropped rather than queried.
func (s *Store) QueryRangeMulti(ctx context.Context, symbols []string, window domain.Window) (map[string][]domain.Bar, error) {
	db, err := s.reader()
	if err != nil {
		return nil, err
	}

	safe := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		if validSymbol.MatchString(sym) {
			safe = append(safe, "'"+sym+"'")
		} else {
			s.log.Warn("dropping invalid symbol from batch query", "symbol", sym)
		}
	}
	if len(safe) == 0 {
		return map[string][]domain.Bar{}, nil
	}
	inClause := strings.Join(safe, ", ")

	var rows *sql.Rows
	if window.IsMax() {
		rows, err = db.QueryContext(ctx, fmt.Sprintf(
			`SELECT ticker, date, open, high, low, close, volume FROM daily_bars
			 WHERE ticker IN (%s) ORDER BY ticker, date ASC`, inClause))
	} else {
		modifier := fmt.Sprintf("-%d days", window.Days())
		rows, err = db.QueryContext(ctx, fmt.Sprintf(
			`SELECT b.ticker, b.date, b.open, b.high, b.low, b.close, b.volume
			 FROM daily_bars b
			 JOIN (SELECT ticker, MAX(date) AS mx FROM daily_bars
			       WHERE ticker IN (%s) GROUP BY ticker) m ON b.ticker = m.ticker
			 WHERE b.date >= date(m.mx, ?)
			 ORDER BY b.ticker, b.date ASC`, inClause), modifier)
	}
	if err != nil {
		return nil, fmt.Errorf("batch querying bars: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]domain.Bar)
	for rows.Next() {
		var b domain.Bar
		var raw string
		if err := rows.Scan(&b.Symbol, &raw, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, err
		}
		d, err := time.Parse(dateLayout, raw)
		if err != nil {
			continue
		}
		b.Date = d
		out[b.Symbol] = append(out[b.Symbol], b)
	}
	return out, rows.Err()
}

func scanBars(rows *sql.Rows, symbol string) ([]domain.Bar, error) {
	var bars []domain.Bar
	for rows.Next() {
		var b domain.Bar
		var raw string
		if err := rows.Scan(&raw, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, err
		}
		d, err := time.Parse(dateLayout, raw)
		if err != nil {
			continue
		}
		b.Symbol, b.Date = symbol, d
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// ---------------------------------------------------------------------------
// Fundamentals
// ---------------------------------------------------------------------------

// UpsertFundamentals appends a periodic snapshot. Snapshots are append-only:
// a second write for the same (symbol, date) is ignored.
func (s *Store) UpsertFundamentals(ctx context.Context, snap domain.FundamentalsSnapshot) error {
	db := s.writer("upsert_fundamentals")
	if db == nil {
		return nil
	}

	if _, err := db.ExecContext(ctx,
		`INSERT OR IGNORE INTO assets (ticker, name) VALUES (?, ?)`, snap.Symbol, snap.Symbol); err != nil {
		return fmt.Errorf("ensuring asset %s: %w", snap.Symbol, err)
	}
	_, err := db.ExecContext(ctx,
		`INSERT OR IGNORE INTO fundamentals (ticker, date, pe_ratio, market_cap, eps)
		 VALUES (?, ?, ?, ?, ?)`,
		snap.Symbol, snap.Date.Format(dateLayout), snap.PERatio, snap.MarketCap, snap.EPS)
	if err != nil {
		return fmt.Errorf("inserting fundamentals for %s: %w", snap.Symbol, err)
	}
	return nil
}

// LatestFundamentals returns the most recent snapshot for symbol.
func (s *Store) LatestFundamentals(ctx context.Context, symbol string) (domain.FundamentalsSnapshot, bool, error) {
	db, err := s.reader()
	if err != nil {
		return domain.FundamentalsSnapshot{}, false, err
	}

	var snap domain.FundamentalsSnapshot
	var raw string
	err = db.QueryRowContext(ctx,
		`SELECT date, pe_ratio, market_cap, eps FROM fundamentals
		 WHERE ticker = ? ORDER BY date DESC LIMIT 1`, symbol).
		Scan(&raw, &snap.PERatio, &snap.MarketCap, &snap.EPS)
	if err == sql.ErrNoRows {
		return domain.FundamentalsSnapshot{}, false, nil
	}
	if err != nil {
		return domain.FundamentalsSnapshot{}, false, fmt.Errorf("reading fundamentals for %s: %w", symbol, err)
	}
	snap.Symbol = symbol
	snap.Date, _ = time.Parse(dateLayout, raw)
	return snap, true, nil
}

// ---------------------------------------------------------------------------
// Alternative data
// ---------------------------------------------------------------------------

// UpsertAltData writes one day of alt data. A same-day re-fetch updates the
// row in place.
func (s *Store) UpsertAltData(ctx context.Context, snap domain.AltDataSnapshot) error {
	db := s.writer("upsert_alt_data")
	if db == nil {
		return nil
	}

	if _, err := db.ExecContext(ctx,
		`INSERT OR IGNORE INTO assets (ticker, name) VALUES (?, ?)`, snap.Symbol, snap.Symbol); err != nil {
		return fmt.Errorf("ensuring asset %s: %w", snap.Symbol, err)
	}
	_, err := db.ExecContext(ctx,
		`INSERT OR REPLACE INTO alt_data (ticker, date, sentiment_score, web_attention)
		 VALUES (?, ?, ?, ?)`,
		snap.Symbol, snap.Date.Format(dateLayout), snap.Sentiment, snap.Attention)
	if err != nil {
		return fmt.Errorf("upserting alt data for %s: %w", snap.Symbol, err)
	}
	return nil
}

// AltHistory returns the most recent alt-data snapshots for symbol, oldest
// first, up to days rows.
func (s *Store) AltHistory(ctx context.Context, symbol string, days int) ([]domain.AltDataSnapshot, error) {
	db, err := s.reader()
	if err != nil {
		return nil, err
	}
	if days <= 0 {
		days = 30
	}

	rows, err := db.QueryContext(ctx,
		`SELECT date, sentiment_score, web_attention FROM alt_data
		 WHERE ticker = ? ORDER BY date DESC LIMIT ?`, symbol, days)
	if err != nil {
		return nil, fmt.Errorf("reading alt history for %s: %w", symbol, err)
	}
	defer rows.Close()

	var snaps []domain.AltDataSnapshot
	for rows.Next() {
		var snap domain.AltDataSnapshot
		var raw string
		if err := rows.Scan(&raw, &snap.Sentiment, &snap.Attention); err != nil {
			return nil, err
		}
		snap.Symbol = symbol
		snap.Date, _ = time.Parse(dateLayout, raw)
		snaps = append(snaps, snap)
	}
	// Reverse to oldest-first for charting callers.
	for i, j := 0, len(snaps)-1; i < j; i, j = i+1, j-1 {
		snaps[i], snaps[j] = snaps[j], snaps[i]
	}
	return snaps, rows.Err()
}

// ---------------------------------------------------------------------------
// News
// ---------------------------------------------------------------------------

// InsertNewsIfAbsent stores news items keyed by their content hash. Items
// already present are ignored; news is immutable once stored. Returns the
// number of newly inserted rows.
func (s *Store) InsertNewsIfAbsent(ctx context.Context, items []domain.NewsItem) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}
	db := s.writer("insert_news")
	if db == nil {
		return 0, nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning news insert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO news (news_id, ticker, title, publisher, link, publish_time, sentiment_score)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("preparing news insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, item := range items {
		id := item.ID
		if id == "" {
			id = domain.NewsID(item.Symbol, item.Link, item.Title)
		}
		res, err := stmt.ExecContext(ctx, id, item.Symbol, item.Title, item.Publisher,
			item.Link, item.PublishTime.Unix(), item.Sentiment)
		if err != nil {
			return inserted, fmt.Errorf("inserting news %s: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}
	if err := tx.Commit(); err != nil {
		return inserted, err
	}
	return inserted, nil
}

// LatestNews returns the most recent stored news for symbol.
func (s *Store) LatestNews(ctx context.Context, symbol string, limit int) ([]domain.NewsItem, error) {
	db, err := s.reader()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}

	rows, err := db.QueryContext(ctx,
		`SELECT news_id, title, publisher, link, publish_time, sentiment_score FROM news
		 WHERE ticker = ? ORDER BY publish_time DESC LIMIT ?`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("reading news for %s: %w", symbol, err)
	}
	defer rows.Close()

	var items []domain.NewsItem
	for rows.Next() {
		var item domain.NewsItem
		var title, publisher, link sql.NullString
		var ts int64
		if err := rows.Scan(&item.ID, &title, &publisher, &link, &ts, &item.Sentiment); err != nil {
			return nil, err
		}
		item.Symbol = symbol
		item.Title, item.Publisher, item.Link = title.String, publisher.String, link.String
		item.PublishTime = time.Unix(ts, 0).UTC()
		items = append(items, item)
	}
	return items, rows.Err()
}

// ---------------------------------------------------------------------------
// User interactions
// ---------------------------------------------------------------------------

// RecordInteraction appends a user-interaction fact with a generated id.
func (s *Store) RecordInteraction(ctx context.Context, ticker, kind string, metadata map[string]any) error {
	db := s.writer("record_interaction")
	if db == nil {
		return nil
	}

	var blob []byte
	if metadata != nil {
		var err error
		if blob, err = json.Marshal(metadata); err != nil {
			return fmt.Errorf("encoding interaction metadata: %w", err)
		}
	}

	_, err := db.ExecContext(ctx,
		`INSERT INTO user_interactions (interaction_id, ticker, interaction_type, metadata)
		 VALUES (?, ?, ?, ?)`,
		uuid.NewString(), ticker, kind, string(blob))
	if err != nil {
		return fmt.Errorf("recording interaction for %s: %w", ticker, err)
	}
	return nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
