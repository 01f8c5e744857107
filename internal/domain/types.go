// Package domain defines the core data types shared across the retrieval
// and storage layers: OHLCV bars, asset metadata, news items, alternative
// data snapshots, history windows, and result provenance.
package domain

import (
	"crypto/md5"
	"encoding/hex"
	"time"
)

// Bar is a single daily OHLCV bar for a symbol.
type Bar struct {
	Symbol string
	Date   time.Time // calendar date, time component zeroed
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
}

// Asset is the dimension record for a symbol. Created on first reference and
// enriched by later profile refreshes; never hard-deleted.
type Asset struct {
	Ticker      string
	Name        string
	Sector      string
	Industry    string
	Description string
	// RetrievalOrigin is a comma-joined, sorted set of discovery sources
	// that surfaced this symbol (e.g. "favorites,news").
	RetrievalOrigin string
	CreatedAt       time.Time
}

// NewsItem is a single news article tied to a symbol. Immutable once stored.
type NewsItem struct {
	ID          string
	Symbol      string
	Title       string
	Publisher   string
	Link        string
	PublishTime time.Time
	Sentiment   float64
}

// NewsID derives the deduplication key for a news item from the symbol,
// link, and title.
func NewsID(symbol, link, title string) string {
	sum := md5.Sum([]byte(symbol + "_" + link + "_" + title))
	return hex.EncodeToString(sum[:])
}

// FundamentalsSnapshot is a periodic, append-only snapshot of key metrics.
type FundamentalsSnapshot struct {
	Symbol    string
	Date      time.Time
	PERatio   float64
	MarketCap int64
	EPS       float64
}

// AltDataSnapshot holds one day of alternative data for a symbol.
// Sentiment is in [-1, 1]; Attention is in [0, 100].
type AltDataSnapshot struct {
	Symbol    string
	Date      time.Time
	Sentiment float64
	Attention float64
}

// SearchMatch is a single asset search result.
type SearchMatch struct {
	Symbol string
	Name   string
	Kind   string
	Region string
	Score  float64
}

// Interaction records a single user action against a symbol.
type Interaction struct {
	ID        string
	Ticker    string
	Type      string // e.g. "VIEW", "LIKE"
	Timestamp time.Time
	Metadata  map[string]any
}

// ---------------------------------------------------------------------------
// History windows
// ---------------------------------------------------------------------------

// Window is a requested history length for a series fetch.
type Window string

const (
	Win5D  Window = "5d"
	Win1Mo Window = "1mo"
	Win3Mo Window = "3mo"
	Win6Mo Window = "6mo"
	Win1Y  Window = "1y"
	Win2Y  Window = "2y"
	Win5Y  Window = "5y"
	WinMax Window = "max"
)

var windowDays = map[Window]int{
	Win5D:  5,
	Win1Mo: 30,
	Win3Mo: 90,
	Win6Mo: 180,
	Win1Y:  365,
	Win2Y:  730,
	Win5Y:  1825,
	WinMax: 0, // full history
}

// ParseWindow returns the Window for label, or (Win1Y, false) when the label
// is not in the recognized set.
func ParseWindow(label string) (Window, bool) {
	w := Window(label)
	if _, ok := windowDays[w]; ok {
		return w, true
	}
	return Win1Y, false
}

// Days returns the approximate calendar-day span of the window. Zero means
// full history.
func (w Window) Days() int { return windowDays[w] }

// IsMax reports whether the window requests full history.
func (w Window) IsMax() bool { return w == WinMax }

// ---------------------------------------------------------------------------
// Results
// ---------------------------------------------------------------------------

// Provenance tags where a resolved series came from.
type Provenance string

const (
	// ProvenanceLive marks data fetched from an external provider in this call.
	ProvenanceLive Provenance = "live"
	// ProvenanceCached marks data served from the local store or file cache.
	ProvenanceCached Provenance = "cached"
	// ProvenanceEmpty marks a valid result that holds no rows.
	ProvenanceEmpty Provenance = "empty"
)

// Result is the uniform output of a series resolution. An empty result is a
// valid terminal value, never an error.
type Result struct {
	Bars       []Bar
	Provenance Provenance
}

// EmptyResult returns the canonical empty result.
func EmptyResult() Result {
	return Result{Provenance: ProvenanceEmpty}
}

// IsEmpty reports whether the result carries no bars.
func (r Result) IsEmpty() bool { return len(r.Bars) == 0 }
