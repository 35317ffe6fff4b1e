package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const cursorsDDL = `
CREATE TABLE IF NOT EXISTS cursors (
	wallet     TEXT PRIMARY KEY,
	marker     TEXT NOT NULL,
	updated_at DATETIME NOT NULL
);
`

// SQLiteCursors persists cursors to a sqlite database.
type SQLiteCursors struct {
	*cursorMap
	db *sql.DB
}

// OpenSQLiteCursors opens (and migrates) the database at path and loads all
// stored cursors into memory.
func OpenSQLiteCursors(path string) (*SQLiteCursors, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening db: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	if _, err := db.Exec(cursorsDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("schema migration: %w", err)
	}

	initial, err := loadCursors(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteCursors{cursorMap: newCursorMap(initial), db: db}, nil
}

func loadCursors(db *sql.DB) (map[string]Marker, error) {
	rows, err := db.Query(`SELECT wallet, marker FROM cursors`)
	if err != nil {
		return nil, fmt.Errorf("load cursors: %w", err)
	}
	defer rows.Close()

	out := make(map[string]Marker)
	for rows.Next() {
		var wallet, marker string
		if err := rows.Scan(&wallet, &marker); err != nil {
			return nil, fmt.Errorf("scan cursor: %w", err)
		}
		out[CursorKey(wallet)] = Marker(marker)
	}
	return out, rows.Err()
}

// Flush upserts every cursor changed since the last flush in one transaction.
func (s *SQLiteCursors) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.dirty) == 0 {
		return nil
	}
	changed := s.takeDirty()

	if err := s.upsert(ctx, changed); err != nil {
		s.restoreDirty(changed)
		return err
	}
	return nil
}

func (s *SQLiteCursors) upsert(ctx context.Context, changed map[string]Marker) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin flush: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for wallet, marker := range changed {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO cursors (wallet, marker, updated_at)
			VALUES (?, ?, ?)
			ON CONFLICT(wallet) DO UPDATE SET
				marker = excluded.marker,
				updated_at = excluded.updated_at`,
			wallet, string(marker), now,
		)
		if err != nil {
			return fmt.Errorf("upsert cursor %s: %w", wallet, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit flush: %w", err)
	}
	return nil
}

func (s *SQLiteCursors) Close() error {
	if err := s.Flush(context.Background()); err != nil {
		s.db.Close()
		return err
	}
	return s.db.Close()
}
