// Package database is the local SQLite store behind the engine: the
// cluster/subcluster directory, per-subcluster keyword corpora, filter
// rows, and the cached binding-configuration documents.
package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// DB wraps the store shared by the registry, the reconciler, and the
// corpus writers.
type DB struct {
	conn *sql.DB
	path string
}

// Open creates or opens the store at the given path. Pragmas ride the
// DSN so every pooled connection carries them. The pool is capped at a
// single connection: the sync fan-out upserts corpora concurrently and
// SQLite admits only one writer at a time.
func Open(dbPath string) (*DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)",
		dbPath,
	)
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if err := migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	return &DB{conn: conn, path: dbPath}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}
