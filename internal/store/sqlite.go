package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Register the sqlite driver

	"github.com/jmylchreest/swatchwise/pkg/protocol"
)

const schema = `CREATE TABLE IF NOT EXISTS sessions (
	tab_id       INTEGER PRIMARY KEY,
	identifier   TEXT    NOT NULL,
	session_id   TEXT    NOT NULL DEFAULT '',
	last_capture TEXT    NOT NULL DEFAULT '',
	updated_at   INTEGER NOT NULL
)`

// SQLite stores one row per tab in a SQLite database.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path. The path ":memory:"
// opens a private in-memory database.
func OpenSQLite(path string) (*SQLite, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil { // #nosec G301 - State directory needs standard permissions
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serialises writers.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Load returns the record of tab.
func (s *SQLite) Load(ctx context.Context, tab protocol.TabID) (Record, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT tab_id, identifier, session_id, last_capture, updated_at FROM sessions WHERE tab_id = ?`, int(tab))

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("failed to load session %d: %w", tab, err)
	}
	return rec, true, nil
}

// Save inserts or replaces rec.
func (s *SQLite) Save(ctx context.Context, rec Record) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO sessions (tab_id, identifier, session_id, last_capture, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(tab_id) DO UPDATE SET
			identifier = excluded.identifier,
			session_id = excluded.session_id,
			last_capture = excluded.last_capture,
			updated_at = excluded.updated_at`,
		int(rec.TabID), rec.Identifier, rec.SessionID, rec.LastCapture, rec.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to save session %d: %w", rec.TabID, err)
	}
	return nil
}

// Delete removes the record of tab.
func (s *SQLite) Delete(ctx context.Context, tab protocol.TabID) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE tab_id = ?`, int(tab)); err != nil {
		return fmt.Errorf("failed to delete session %d: %w", tab, err)
	}
	return nil
}

// List returns all records ordered by tab.
func (s *SQLite) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tab_id, identifier, session_id, last_capture, updated_at FROM sessions ORDER BY tab_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (Record, error) {
	var (
		rec     Record
		tab     int
		updated int64
	)
	if err := sc.Scan(&tab, &rec.Identifier, &rec.SessionID, &rec.LastCapture, &updated); err != nil {
		return Record{}, err
	}
	rec.TabID = protocol.TabID(tab)
	rec.UpdatedAt = time.Unix(0, updated).UTC()
	return rec, nil
}
