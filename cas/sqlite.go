package cas

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS objects (
	id   TEXT PRIMARY KEY,
	refs TEXT NOT NULL,
	data BLOB NOT NULL
) WITHOUT ROWID;
`

// SQLiteDatabase is a CAS database backed by a single SQLite file in WAL
// mode. One object per row, keyed by the textual DataID. Puts use
// INSERT OR IGNORE: equal content always carries equal bytes, so the first
// writer wins and later writers are no-ops.
type SQLiteDatabase struct {
	db *sql.DB
}

// OpenSQLiteDatabase creates or opens a SQLite-backed database at path.
//
// The connection is configured the same way as every other SQLite store in
// this codebase:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode
//   - 5-second busy timeout for lock contention
//   - a single writer connection to avoid SQLITE_BUSY errors
func OpenSQLiteDatabase(path string) (*SQLiteDatabase, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite cas: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open sqlite cas: %w", err)
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
		return nil, fmt.Errorf("apply cas schema: %w", err)
	}

	return &SQLiteDatabase{db: db}, nil
}

// Contains reports whether id is stored.
func (s *SQLiteDatabase) Contains(ctx context.Context, id DataID) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM objects WHERE id = ?", id.String()).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("contains %s: %w", id, err)
	}
	return true, nil
}

// Get returns the stored object, or nil if absent.
func (s *SQLiteDatabase) Get(ctx context.Context, id DataID) (*Object, error) {
	var refsJSON string
	var data []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT refs, data FROM objects WHERE id = ?", id.String()).Scan(&refsJSON, &data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", id, err)
	}

	var refs []DataID
	if err := json.Unmarshal([]byte(refsJSON), &refs); err != nil {
		return nil, fmt.Errorf("get %s: decode refs: %w", id, err)
	}
	return &Object{Refs: refs, Data: data}, nil
}

// Identify computes the canonical DataID without writing.
func (s *SQLiteDatabase) Identify(_ context.Context, refs []DataID, data []byte) (DataID, error) {
	return Identify(refs, data), nil
}

// Put stores (refs, data) idempotently and returns its DataID.
func (s *SQLiteDatabase) Put(ctx context.Context, refs []DataID, data []byte) (DataID, error) {
	id := Identify(refs, data)
	if err := s.write(ctx, id, refs, data); err != nil {
		return DataID{}, err
	}
	return id, nil
}

// PutID stores under a caller-known ID, verifying it is the true digest.
func (s *SQLiteDatabase) PutID(ctx context.Context, id DataID, refs []DataID, data []byte) (DataID, error) {
	if err := verifyKnownID(id, refs, data); err != nil {
		return DataID{}, err
	}
	if err := s.write(ctx, id, refs, data); err != nil {
		return DataID{}, err
	}
	return id, nil
}

// Features reports that IDs are preserved.
func (s *SQLiteDatabase) Features() Features {
	return Features{PreservesIDs: true}
}

// Close closes the underlying connection.
func (s *SQLiteDatabase) Close() error {
	return s.db.Close()
}

func (s *SQLiteDatabase) write(ctx context.Context, id DataID, refs []DataID, data []byte) error {
	if refs == nil {
		refs = []DataID{}
	}
	refsJSON, err := json.Marshal(refs)
	if err != nil {
		return fmt.Errorf("put %s: encode refs: %w", id, err)
	}
	if data == nil {
		data = []byte{}
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO objects (id, refs, data) VALUES (?, ?, ?)",
		id.String(), string(refsJSON), data)
	if err != nil {
		return fmt.Errorf("put %s: %w", id, err)
	}
	return nil
}
