package store

import (
	"database/sql"
	"fmt"
	"log/slog"
)

// createStatements bootstrap every dimension and fact table. Each statement
// is idempotent, so re-running them against an existing database is safe.
var createStatements = []string{
	`CREATE TABLE IF NOT EXISTS assets (
		ticker           TEXT PRIMARY KEY,
		name             TEXT,
		sector           TEXT,
		industry         TEXT,
		description      TEXT,
		retrieval_origin TEXT,
		created_at       TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS daily_bars (
		ticker TEXT NOT NULL,
		date   TEXT NOT NULL,
		open   REAL,
		high   REAL,
		low    REAL,
		close  REAL,
		volume INTEGER,
		PRIMARY KEY (ticker, date)
	)`,
	`CREATE TABLE IF NOT EXISTS fundamentals (
		ticker     TEXT NOT NULL,
		date       TEXT NOT NULL,
		pe_ratio   REAL,
		market_cap INTEGER,
		eps        REAL,
		PRIMARY KEY (ticker, date)
	)`,
	`CREATE TABLE IF NOT EXISTS alt_data (
		ticker          TEXT NOT NULL,
		date            TEXT NOT NULL,
		sentiment_score REAL,
		web_attention   REAL,
		PRIMARY KEY (ticker, date)
	)`,
	`CREATE TABLE IF NOT EXISTS news (
		news_id         TEXT PRIMARY KEY,
		ticker          TEXT NOT NULL,
		title           TEXT,
		publisher       TEXT,
		link            TEXT,
		publish_time    INTEGER,
		sentiment_score REAL,
		created_at      TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS user_interactions (
		interaction_id   TEXT PRIMARY KEY,
		ticker           TEXT NOT NULL,
		interaction_type TEXT NOT NULL,
		timestamp        TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		metadata         TEXT
	)`,
}

// alterStatements are additive forward migrations for databases created by
// earlier revisions. A failure here almost always means the column already
// exists, so errors are swallowed.
var alterStatements = []string{
	`ALTER TABLE assets ADD COLUMN retrieval_origin TEXT`,
	`ALTER TABLE assets ADD COLUMN description TEXT`,
	`ALTER TABLE news ADD COLUMN sentiment_score REAL`,
}

// ensureSchema creates missing tables and applies additive migrations. It
// must only be called with a writable handle; the Manager enforces the
// once-per-process guard.
func ensureSchema(db *sql.DB) error {
	for _, stmt := range createStatements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("creating table: %w", err)
		}
	}

	for _, stmt := range alterStatements {
		if _, err := db.Exec(stmt); err != nil {
			slog.Debug("migration skipped", "error", err)
		}
	}

	return nil
}
