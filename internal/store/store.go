// Package store caches scan results in a local SQLite database so
// rescans only decode files that changed on disk.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"musicman/internal/metadata"
)

const schema = `
CREATE TABLE IF NOT EXISTS songs (
	path        TEXT PRIMARY KEY,
	mtime       INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	genre       TEXT NOT NULL,
	year        TEXT NOT NULL,
	normalized  INTEGER NOT NULL
);
`

// Store is a per-file metadata cache keyed by path and modification time.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the cache database at the given path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	// SQLite supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
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
		return nil, fmt.Errorf("failed to initialize cache schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the cached metadata for a path. The entry only hits when the
// stored modification time matches, so edits on disk invalidate it.
func (s *Store) Get(path string, mtime time.Time) (metadata.Info, bool) {
	row := s.db.QueryRow(
		"SELECT mtime, duration_ms, genre, year, normalized FROM songs WHERE path = ?",
		path,
	)

	var storedMtime, durationMS int64
	var normalized int
	var info metadata.Info
	if err := row.Scan(&storedMtime, &durationMS, &info.Genre, &info.Year, &normalized); err != nil {
		return metadata.Info{}, false
	}

	if storedMtime != mtime.UnixNano() {
		return metadata.Info{}, false
	}

	info.Duration = time.Duration(durationMS) * time.Millisecond
	info.Normalized = normalized != 0
	return info, true
}

// Put upserts the cached metadata for a path.
func (s *Store) Put(path string, mtime time.Time, info metadata.Info) error {
	normalized := 0
	if info.Normalized {
		normalized = 1
	}

	_, err := s.db.Exec(`
		INSERT INTO songs (path, mtime, duration_ms, genre, year, normalized)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			mtime = excluded.mtime,
			duration_ms = excluded.duration_ms,
			genre = excluded.genre,
			year = excluded.year,
			normalized = excluded.normalized`,
		path, mtime.UnixNano(), info.Duration.Milliseconds(), info.Genre, info.Year, normalized,
	)
	if err != nil {
		return fmt.Errorf("failed to cache %s: %w", path, err)
	}
	return nil
}

// Delete removes a single cached entry.
func (s *Store) Delete(path string) error {
	_, err := s.db.Exec("DELETE FROM songs WHERE path = ?", path)
	return err
}

// Prune deletes entries whose path is not in the given list and returns
// the number of removed rows. Called after a scan with the surviving paths.
func (s *Store) Prune(keep []string) (int, error) {
	keepSet := make(map[string]bool, len(keep))
	for _, p := range keep {
		keepSet[p] = true
	}

	rows, err := s.db.Query("SELECT path FROM songs")
	if err != nil {
		return 0, fmt.Errorf("failed to list cached paths: %w", err)
	}
	defer rows.Close()

	var stale []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return 0, err
		}
		if !keepSet[p] {
			stale = append(stale, p)
		}
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, p := range stale {
		if err := s.Delete(p); err != nil {
			return 0, err
		}
	}
	return len(stale), nil
}
