// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides token, preference, and usage persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// An in-memory database exists per connection, so pin the pool to one.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS mcp_user_tokens (
			id            TEXT PRIMARY KEY,
			user_id       TEXT NOT NULL,
			token_name    TEXT NOT NULL,
			token_hash    TEXT NOT NULL UNIQUE,
			token_preview TEXT NOT NULL,
			active        INTEGER NOT NULL DEFAULT 1,
			last_used_at  TEXT,
			created_at    TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_user_tokens_user ON mcp_user_tokens(user_id);

		CREATE TABLE IF NOT EXISTS mcp_access_tokens (
			token        TEXT PRIMARY KEY,
			client_id    TEXT NOT NULL,
			user_id      TEXT NOT NULL,
			expires_at   TEXT NOT NULL,
			revoked      INTEGER NOT NULL DEFAULT 0,
			last_used_at TEXT,
			created_at   TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_access_tokens_user ON mcp_access_tokens(user_id);

		CREATE TABLE IF NOT EXISTS user_preferences (
			user_id                 TEXT PRIMARY KEY,
			preferred_providers     TEXT NOT NULL DEFAULT '[]',
			model_preferences       TEXT NOT NULL DEFAULT '{}',
			default_model           TEXT,
			default_temperature     REAL,
			default_max_tokens      INTEGER,
			updated_at              TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS perspective_usage (
			id          TEXT PRIMARY KEY,
			request_id  TEXT NOT NULL,
			user_id     TEXT NOT NULL,
			model       TEXT NOT NULL,
			tokens_used INTEGER NOT NULL DEFAULT 0,
			latency_ms  INTEGER NOT NULL DEFAULT 0,
			succeeded   INTEGER NOT NULL,
			created_at  TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_usage_user ON perspective_usage(user_id, created_at);
		CREATE INDEX IF NOT EXISTS idx_usage_request ON perspective_usage(request_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Ping verifies the database is reachable
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// isConstraintViolation checks if the error is a SQLite UNIQUE constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}

// nullString converts empty strings to NULL for optional columns.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// nullTime formats an optional timestamp, or NULL.
func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// parseNullTime parses an optional RFC3339 timestamp column.
func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// boolToInt maps a Go bool onto SQLite's integer booleans.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Ensure SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)
