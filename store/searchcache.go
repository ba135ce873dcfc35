package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SearchCache is a disposable SQLite-backed index over record names, kept purely to
// make "find a credential by name" fast without decrypting the whole store file. It
// stores no secrets — no fields, no ciphertext, not even which MasterKey owns a
// record's plaintext — only names, whether a name is currently live or a tombstone,
// and the commit timestamp. Names and timestamps are encrypted inside the store file
// but kept in plain text here. Losing or corrupting this cache never loses data:
// Store.Open never reads from it, and Rebuild can always regenerate it from the live
// Store.
//
// Grounded on the teacher's internal/db/sqlite.go (Open/Migrate pattern, 0600
// permissions) and test/cleanup_duplicates.go (ad hoc sqlite query helpers), adapted
// from "sqlite as the authoritative credential table" to "sqlite as a non-authoritative
// cache alongside the authoritative flat file".
type SearchCache struct {
	db   *sql.DB
	path string
}

const createSearchCacheSchema = `
CREATE TABLE IF NOT EXISTS record_names (
	name       TEXT NOT NULL,
	timestamp  INTEGER NOT NULL,
	deleted    INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_record_names_name ON record_names(name);
`

// OpenSearchCache opens (creating if necessary) a SQLite search cache at path.
func OpenSearchCache(path string) (*SearchCache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("store: create search cache directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(2000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open search cache: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping search cache: %w", err)
	}
	if _, err := db.Exec(createSearchCacheSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate search cache: %w", err)
	}
	if err := os.Chmod(path, 0o600); err != nil && !os.IsNotExist(err) {
		db.Close()
		return nil, fmt.Errorf("store: chmod search cache: %w", err)
	}

	return &SearchCache{db: db, path: path}, nil
}

// Close releases the underlying SQLite handle.
func (c *SearchCache) Close() error {
	return c.db.Close()
}

// Rebuild replaces the cache's contents with the store's current index and history, so
// a stale or corrupted cache file never needs anything more than a rebuild.
func (c *SearchCache) Rebuild(s *Store) error {
	s.mu.Lock()
	type row struct {
		name    string
		ts      uint64
		deleted bool
	}
	var rows []row
	for name, idx := range s.index {
		rec := s.arena.At(idx)
		ts, _ := rec.Timestamp()
		rows = append(rows, row{name: name, ts: ts, deleted: rec.IsDeleted()})
	}
	// History rows are superseded revisions or tombstones, never live, so they are
	// flagged deleted and Search skips them.
	for _, idx := range s.history {
		rec := s.arena.At(idx)
		ts, _ := rec.Timestamp()
		rows = append(rows, row{name: rec.Name(), ts: ts, deleted: true})
	}
	s.mu.Unlock()

	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin search cache rebuild: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM record_names`); err != nil {
		tx.Rollback()
		return fmt.Errorf("store: clear search cache: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO record_names(name, timestamp, deleted) VALUES (?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("store: prepare search cache insert: %w", err)
	}
	for _, r := range rows {
		deletedFlag := 0
		if r.deleted {
			deletedFlag = 1
		}
		if _, err := stmt.Exec(r.name, r.ts, deletedFlag); err != nil {
			stmt.Close()
			tx.Rollback()
			return fmt.Errorf("store: insert search cache row: %w", err)
		}
	}
	stmt.Close()
	return tx.Commit()
}

// Search returns distinct currently-live record names matching a SQL LIKE pattern
// (e.g. "%github%"), most recently touched first.
func (c *SearchCache) Search(pattern string) ([]string, error) {
	rows, err := c.db.Query(
		`SELECT DISTINCT name FROM record_names WHERE deleted = 0 AND name LIKE ? ORDER BY timestamp DESC`,
		pattern,
	)
	if err != nil {
		return nil, fmt.Errorf("store: search cache query: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("store: search cache scan: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
