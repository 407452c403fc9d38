package fncache

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/loom/cas"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS entries (
	version     TEXT NOT NULL,
	fingerprint TEXT NOT NULL,
	data_id     TEXT NOT NULL,
	PRIMARY KEY (version, fingerprint)
) WITHOUT ROWID;
`

// SQLiteCache is a function cache backed by a single SQLite file in WAL
// mode. Updates are UPSERTs, so a newer evaluation at the same fingerprint
// atomically replaces the previous entry.
type SQLiteCache struct {
	db *sql.DB
}

// OpenSQLiteCache creates or opens a SQLite-backed cache at path. The
// connection configuration mirrors the SQLite CAS database.
func OpenSQLiteCache(path string) (*SQLiteCache, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite cache: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open sqlite cache: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply cache schema: %w", err)
	}

	return &SQLiteCache{db: db}, nil
}

// Get returns the recorded DataID, or ok=false on a miss. An entry that
// fails to parse is treated as a miss.
func (c *SQLiteCache) Get(ctx context.Context, fingerprint string, props Props) (cas.DataID, bool, error) {
	var text string
	err := c.db.QueryRowContext(ctx,
		"SELECT data_id FROM entries WHERE version = ? AND fingerprint = ?",
		props.Version, fingerprint).Scan(&text)
	if err == sql.ErrNoRows {
		return cas.DataID{}, false, nil
	}
	if err != nil {
		return cas.DataID{}, false, fmt.Errorf("get cache entry %s: %w", fingerprint, err)
	}

	id, err := cas.ParseDataID(text)
	if err != nil {
		return cas.DataID{}, false, nil
	}
	return id, true, nil
}

// Update records id for fingerprint, overwriting any previous entry.
func (c *SQLiteCache) Update(ctx context.Context, fingerprint string, props Props, id cas.DataID) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO entries (version, fingerprint, data_id) VALUES (?, ?, ?)
		 ON CONFLICT (version, fingerprint) DO UPDATE SET data_id = excluded.data_id`,
		props.Version, fingerprint, id.String())
	if err != nil {
		return fmt.Errorf("update cache entry %s: %w", fingerprint, err)
	}
	return nil
}

// Close closes the underlying connection.
func (c *SQLiteCache) Close() error {
	return c.db.Close()
}
