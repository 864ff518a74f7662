package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/axiomchronicles/drevoid-server/internal/store"
)

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS bans (
	username   TEXT PRIMARY KEY,
	banned_by  TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS flags (
	value       TEXT PRIMARY KEY,
	finder      TEXT NOT NULL,
	room        TEXT NOT NULL DEFAULT '',
	captured_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file; ":memory:" works for tests.
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// AddBan records a ban. Re-banning an already banned user is a no-op.
func (s *SQLiteStore) AddBan(ctx context.Context, username, bannedBy string) error {
	query := `
		INSERT INTO bans (username, banned_by)
		VALUES (?, ?)
		ON CONFLICT(username) DO NOTHING
	`
	if _, err := s.db.ExecContext(ctx, query, username, bannedBy); err != nil {
		return fmt.Errorf("insert ban: %w", err)
	}
	return nil
}

// RemoveBan lifts a ban.
func (s *SQLiteStore) RemoveBan(ctx context.Context, username string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM bans WHERE username = ?`, username); err != nil {
		return fmt.Errorf("delete ban: %w", err)
	}
	return nil
}

// ListBans returns all active bans.
func (s *SQLiteStore) ListBans(ctx context.Context) ([]store.Ban, error) {
	query := `SELECT username, banned_by, created_at FROM bans ORDER BY created_at`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query bans: %w", err)
	}
	defer rows.Close()

	var bans []store.Ban
	for rows.Next() {
		var b store.Ban
		if err := rows.Scan(&b.Username, &b.BannedBy, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ban: %w", err)
		}
		bans = append(bans, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bans: %w", err)
	}
	return bans, nil
}

// AddFlag records a capture. Duplicate values are rejected upstream;
// the primary key makes a racing duplicate a no-op rather than an error.
func (s *SQLiteStore) AddFlag(ctx context.Context, capture store.FlagCapture) error {
	query := `
		INSERT INTO flags (value, finder, room, captured_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(value) DO NOTHING
	`
	_, err := s.db.ExecContext(ctx, query,
		capture.Value, capture.Finder, capture.Room, capture.CapturedAt)
	if err != nil {
		return fmt.Errorf("insert flag: %w", err)
	}
	return nil
}

// ListFlags returns all captures in capture order.
func (s *SQLiteStore) ListFlags(ctx context.Context) ([]store.FlagCapture, error) {
	query := `SELECT value, finder, room, captured_at FROM flags ORDER BY captured_at, value`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query flags: %w", err)
	}
	defer rows.Close()

	var captures []store.FlagCapture
	for rows.Next() {
		var c store.FlagCapture
		if err := rows.Scan(&c.Value, &c.Finder, &c.Room, &c.CapturedAt); err != nil {
			return nil, fmt.Errorf("scan flag: %w", err)
		}
		captures = append(captures, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate flags: %w", err)
	}
	return captures, nil
}
