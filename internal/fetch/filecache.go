package fetch

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"stockpulse/internal/domain"
	"stockpulse/internal/util"
)

// FileCache is the on-disk fallback for series data, used when the relational
// store is unavailable and as the primary store under the file-only strategy.
// Each (symbol, window) pair lives in its own Parquet file; a file written
// today is considered fresh, anything older is stale.
type FileCache struct {
	dir string
	log *slog.Logger
	now func() time.Time
}

// NewFileCache creates a cache rooted at dir.
func NewFileCache(dir string, log *slog.Logger) *FileCache {
	if log == nil {
		log = slog.Default()
	}
	return &FileCache{dir: dir, log: log.With("component", "filecache"), now: time.Now}
}

// barRecord is the Parquet schema for cached daily bars.
type barRecord struct {
	Symbol    string  `parquet:"symbol"`
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    int64   `parquet:"volume"`
}

// path layout: <dir>/<SYMBOL>_<window>.parquet
func (c *FileCache) path(symbol string, window domain.Window) string {
	name := strings.ToUpper(symbol) + "_" + string(window) + ".parquet"
	return filepath.Join(c.dir, name)
}

// Put writes the series for (symbol, window), replacing any previous file.
func (c *FileCache) Put(symbol string, window domain.Window, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	records := make([]barRecord, len(bars))
	for i, b := range bars {
		records[i] = barRecord{
			Symbol:    b.Symbol,
			Timestamp: b.Date.UnixMilli(),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		}
	}
	path := c.path(symbol, window)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

// Get reads the cached series for (symbol, window). The second return value
// reports a usable hit: a missing, unreadable, or stale file is a miss.
func (c *FileCache) Get(symbol string, window domain.Window) ([]domain.Bar, bool) {
	path := c.path(symbol, window)

	info, err := os.Stat(path)
	if err != nil {
		return nil, false
	}
	if !c.sameDay(info.ModTime()) {
		c.log.Debug("cache file stale", "symbol", symbol, "window", window)
		return nil, false
	}

	records, err := parquet.ReadFile[barRecord](path)
	if err != nil {
		c.log.Warn("cache file unreadable", "path", path, "error", err)
		return nil, false
	}
	if len(records) == 0 {
		return nil, false
	}

	bars := make([]domain.Bar, len(records))
	for i, r := range records {
		bars[i] = domain.Bar{
			Symbol: r.Symbol,
			Date:   util.Midnight(time.UnixMilli(r.Timestamp).UTC()),
			Open:   r.Open,
			High:   r.High,
			Low:    r.Low,
			Close:  r.Close,
			Volume: r.Volume,
		}
	}
	return bars, true
}

func (c *FileCache) sameDay(mtime time.Time) bool {
	now := c.now()
	y1, m1, d1 := mtime.Date()
	y2, m2, d2 := now.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}
