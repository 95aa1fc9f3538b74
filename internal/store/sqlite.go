package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Store is the SQLite backend for watchlists, price alerts and alert
// trigger history.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

func Open(path string) (*Store, error) {
	if path == "" {
		path = "data/watchlist.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=3000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pragma busy_timeout: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	store := &Store{db: db, now: time.Now}
	if err := store.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS watchlist_items (
			user_id TEXT NOT NULL,
			symbol TEXT NOT NULL,
			company_name TEXT NOT NULL,
			added_at INTEGER NOT NULL,
			PRIMARY KEY (user_id, symbol)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_watchlist_user_added ON watchlist_items(user_id, added_at);`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			symbol TEXT NOT NULL,
			company_name TEXT NOT NULL,
			condition TEXT NOT NULL,
			target_price REAL NOT NULL,
			frequency TEXT NOT NULL,
			is_active INTEGER NOT NULL DEFAULT 1,
			last_triggered_at INTEGER,
			trigger_count INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			UNIQUE (user_id, symbol, condition, target_price)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_user_active ON alerts(user_id, is_active);`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_active_symbol ON alerts(is_active, symbol);`,
		`CREATE TABLE IF NOT EXISTS alert_triggers (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			alert_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			symbol TEXT NOT NULL,
			price REAL NOT NULL,
			delivered INTEGER NOT NULL,
			error TEXT,
			triggered_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_alert_triggers_alert ON alert_triggers(alert_id, triggered_at);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE || se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
