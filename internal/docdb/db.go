// Package docdb is the local replicated-document database: revisioned JSON
// documents with tombstones, a change feed ordered by commit, and
// non-replicated key/value slots for replication checkpoints.
package docdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

const currentVersion = 1

var (
	// ErrNotFound is returned when a document id does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrConflict is returned when a write names a revision that is not the
	// current one.
	ErrConflict = errors.New("document update conflict")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("database closed")
)

// DB is one local document database backed by a single SQLite file.
type DB struct {
	db   *sql.DB
	path string

	// mu serializes writes so that sequence numbers and feed delivery follow
	// commit order.
	mu     sync.Mutex
	closed bool

	subMu   sync.Mutex
	subs    map[int]func(Doc)
	nextSub int
}

// Open opens (or creates) the database at path and runs migrations.
func Open(path string) (*DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec pragma %q: %w", p, err)
		}
	}

	d := &DB{db: db, path: path, subs: make(map[int]func(Doc))}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return d, nil
}

// OpenMemory creates an in-memory database for testing.
func OpenMemory() (*DB, error) {
	return Open(":memory:")
}

// Path returns the file the database was opened from.
func (d *DB) Path() string { return d.path }

// Close releases the database and drops every subscription.
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true

	d.subMu.Lock()
	d.subs = make(map[int]func(Doc))
	d.subMu.Unlock()

	return d.db.Close()
}

func (d *DB) migrate() error {
	var version int
	err := d.db.QueryRow("PRAGMA user_version").Scan(&version)
	if err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}

	if version >= currentVersion {
		return nil
	}

	if version < 1 {
		if err := d.migrateV1(); err != nil {
			return err
		}
	}

	_, err = d.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentVersion))
	return err
}

func (d *DB) migrateV1() error {
	const ddl = `
	CREATE TABLE IF NOT EXISTS docs (
		id          TEXT PRIMARY KEY,
		rev         TEXT NOT NULL,
		deleted     INTEGER NOT NULL DEFAULT 0,
		body        TEXT NOT NULL DEFAULT '{}',
		seq         INTEGER NOT NULL,
		origin      TEXT NOT NULL DEFAULT '',
		updated_at  TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now'))
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_docs_seq ON docs(seq);

	CREATE TABLE IF NOT EXISTS local (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := d.db.Exec(ddl)
	return err
}

// Clear removes every document and checkpoint and resets the sequence. No
// change events are emitted.
func (d *DB) Clear(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}

	for _, stmt := range []string{`DELETE FROM docs`, `DELETE FROM local`} {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("clear database: %w", err)
		}
	}
	if _, err := d.db.ExecContext(ctx, `VACUUM`); err != nil {
		return fmt.Errorf("vacuum: %w", err)
	}
	return nil
}
