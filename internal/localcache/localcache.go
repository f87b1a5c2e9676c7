// Package localcache persists the active session on the device in a SQLite
// database so a restarted process can resume it.
package localcache

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/meltforce/tempo/internal/store"
)

// Cache is a store.LocalCache backed by SQLite.
type Cache struct {
	db *sql.DB
}

var _ store.LocalCache = (*Cache)(nil)

// Open opens (or creates) the cache database at dir/session.db.
func Open(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating state dir %s: %w", dir, err)
	}

	dbPath := filepath.Join(dir, "session.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening session cache: %w", err)
	}
	// One connection serialises writers.
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{
		`PRAGMA journal_mode = WAL`,
		`PRAGMA synchronous = FULL`,
		`CREATE TABLE IF NOT EXISTS active_session (
			owner        TEXT PRIMARY KEY,
			data         BLOB NOT NULL,
			last_updated TIMESTAMP NOT NULL,
			saved_at     TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("initialising session cache: %w", err)
		}
	}

	return &Cache{db: db}, nil
}

// Load returns the serialized session cached for owner, or store.ErrNotFound.
func (c *Cache) Load(owner string) ([]byte, error) {
	var data []byte
	err := c.db.QueryRow(`SELECT data FROM active_session WHERE owner = ?`, owner).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading cached session: %w", err)
	}
	return data, nil
}

// Save replaces the session cached for owner.
func (c *Cache) Save(owner string, data []byte, lastUpdated time.Time) error {
	_, err := c.db.Exec(
		`INSERT OR REPLACE INTO active_session (owner, data, last_updated) VALUES (?, ?, ?)`,
		owner, data, lastUpdated.UTC(),
	)
	if err != nil {
		return fmt.Errorf("writing cached session: %w", err)
	}
	return nil
}

// Delete removes the session cached for owner. Deleting nothing is not an
// error.
func (c *Cache) Delete(owner string) error {
	if _, err := c.db.Exec(`DELETE FROM active_session WHERE owner = ?`, owner); err != nil {
		return fmt.Errorf("deleting cached session: %w", err)
	}
	return nil
}

// LastUpdated returns the last update instant recorded for owner.
func (c *Cache) LastUpdated(owner string) (time.Time, error) {
	var ts time.Time
	err := c.db.QueryRow(`SELECT last_updated FROM active_session WHERE owner = ?`, owner).Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, store.ErrNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("reading cached session time: %w", err)
	}
	return ts, nil
}

// Close closes the database.
func (c *Cache) Close() error {
	return c.db.Close()
}
