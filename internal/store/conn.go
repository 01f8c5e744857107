// Package store owns the local SQLite market-data store: the shared
// connection handle, schema bootstrap, and typed upsert/query operations
// over bars, news, fundamentals, alt-data, and asset metadata.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Mode is the effective access mode of an acquired handle.
type Mode string

const (
	ModeReadWrite Mode = "read-write"
	ModeReadOnly  Mode = "read-only"
)

// ErrStoreLocked marks a write handle that could not be obtained because
// another process holds the database lock. The Manager recovers from it by
// downgrading; it is never surfaced to resolve callers.
var ErrStoreLocked = errors.New("store locked by another writer")

// Manager owns the single process-wide handle to the SQLite store. It
// negotiates read-only versus read-write mode and downgrades gracefully when
// a writable handle cannot be obtained.
//
// Callers must branch on the Mode returned by Acquire rather than assume the
// requested mode was granted.
type Manager struct {
	path string
	log  *slog.Logger

	mu         sync.Mutex
	db         *sql.DB
	mode       Mode
	schemaOnce sync.Once
}

// NewManager creates a Manager for the database file at path. No connection
// is opened until the first Acquire.
func NewManager(path string, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		path: path,
		log:  log.With("component", "store"),
	}
}

// Acquire returns the shared handle and its effective mode.
//
// Requesting a writable handle when the store is locked by another writer
// does not fail: the Manager reopens read-only and reports ModeReadOnly.
// Requesting a writable handle while holding a read-only one closes and
// reopens in write mode. The same handle is reused across calls otherwise.
func (m *Manager) Acquire(writable bool) (*sql.DB, Mode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.db != nil {
		if !writable || m.mode == ModeReadWrite {
			return m.db, m.mode, nil
		}
		// Upgrade: read-only handle exists but a writer is needed now.
		m.log.Info("upgrading store handle to read-write")
		if err := m.db.Close(); err != nil {
			m.log.Warn("closing read-only handle", "error", err)
		}
		m.db = nil
	}

	if !writable {
		db, err := m.open(false)
		if err != nil {
			return nil, "", err
		}
		m.db, m.mode = db, ModeReadOnly
		return m.db, m.mode, nil
	}

	db, err := m.open(true)
	if err == nil {
		err = probeWritable(db)
	}
	switch {
	case err == nil:
		m.schemaOnce.Do(func() {
			if serr := ensureSchema(db); serr != nil {
				// A failed CREATE/ALTER almost always means the target
				// already exists; treat as already migrated.
				m.log.Warn("schema init skipped", "error", serr)
			}
		})
		m.db, m.mode = db, ModeReadWrite
		return m.db, m.mode, nil

	case errors.Is(err, ErrStoreLocked):
		if db != nil {
			db.Close()
		}
		m.log.Warn("store locked, downgrading to read-only", "path", m.path)
		ro, roErr := m.open(false)
		if roErr != nil {
			return nil, "", fmt.Errorf("reopening read-only after lock: %w", roErr)
		}
		m.db, m.mode = ro, ModeReadOnly
		return m.db, m.mode, nil

	default:
		if db != nil {
			db.Close()
		}
		return nil, "", err
	}
}

// Mode returns the mode of the currently held handle, or ModeReadOnly when
// no handle has been acquired yet.
func (m *Manager) Mode() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.db == nil {
		return ModeReadOnly
	}
	return m.mode
}

// Close releases the shared handle. Called once at process shutdown.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.db == nil {
		return nil
	}
	err := m.db.Close()
	m.db = nil
	return err
}

func (m *Manager) open(writable bool) (*sql.DB, error) {
	if writable {
		if dir := filepath.Dir(m.path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating store directory: %w", err)
			}
		}
	}

	dsn := "file:" + m.path + "?_pragma=busy_timeout(500)"
	if !writable {
		dsn += "&mode=ro"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// A single connection keeps same-process write-then-read ordering trivial
	// and matches the one-writer-at-a-time model of the store.
	db.SetMaxOpenConns(1)
	return db, nil
}

// probeWritable verifies that a write lock can actually be taken on the
// database. SQLite only locks on write, so an open alone proves nothing.
func probeWritable(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	conn, err := db.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		if isLocked(err) {
			return ErrStoreLocked
		}
		return fmt.Errorf("probing write lock: %w", err)
	}
	if _, err := conn.ExecContext(ctx, "ROLLBACK"); err != nil {
		return fmt.Errorf("releasing probe lock: %w", err)
	}
	return nil
}

// isLocked reports whether err is SQLite lock contention.
func isLocked(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "SQLITE_LOCKED")
}
