package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the event log database. The default backend is a local SQLite
// file; a Postgres DSN switches the same schema and queries to pgx.
type DB struct {
	conn   *sql.DB
	driver string
}

// Connect opens the event log described by configuration: dsn wins when set,
// otherwise the SQLite file at path is opened or created.
func Connect(path, dsn string) (*DB, error) {
	if dsn != "" {
		return OpenDSN(dsn)
	}
	return Open(path)
}

// Open opens or creates the SQLite database at the given path.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database dir: %w", err)
	}
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	conn.SetMaxOpenConns(1)
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	return &DB{conn: conn, driver: "sqlite3"}, nil
}

// OpenDSN connects to a Postgres event log.
func OpenDSN(dsn string) (*DB, error) {
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &DB{conn: conn, driver: "pgx"}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.conn.Close()
}

// Conn returns the underlying *sql.DB for advanced queries.
func (d *DB) Conn() *sql.DB {
	return d.conn
}

// Query runs a read query, rewriting placeholders for the active driver.
func (d *DB) Query(query string, args ...interface{}) (*sql.Rows, error) {
	return d.conn.Query(d.rebind(query), args...)
}

// rebind rewrites ? placeholders to $1..$n for Postgres. Queries are written
// in SQLite style throughout the package.
func (d *DB) rebind(query string) string {
	if d.driver != "pgx" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS schema_version (
    version    INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS phase_events (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id     TEXT NOT NULL,
    issue_ref  TEXT NOT NULL,
    pipeline   TEXT NOT NULL,
    phase      TEXT,
    event      TEXT NOT NULL CHECK(event IN ('run_started','phase_started','phase_completed','phase_warned','phase_failed','run_completed','run_aborted')),
    exit_code  INTEGER,
    detail     TEXT,
    timestamp  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_phase_run ON phase_events(run_id, id);
`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS schema_version (
    version    INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS phase_events (
    id         BIGSERIAL PRIMARY KEY,
    run_id     TEXT NOT NULL,
    issue_ref  TEXT NOT NULL,
    pipeline   TEXT NOT NULL,
    phase      TEXT,
    event      TEXT NOT NULL CHECK(event IN ('run_started','phase_started','phase_completed','phase_warned','phase_failed','run_completed','run_aborted')),
    exit_code  INTEGER,
    detail     TEXT,
    timestamp  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_phase_run ON phase_events(run_id, id);
`

// Migrate applies the schema for the active driver.
func (d *DB) Migrate() error {
	var count int
	err := d.conn.QueryRow(d.rebind("SELECT COUNT(*) FROM schema_version WHERE version = ?"), 1).Scan(&count)
	if err == nil && count > 0 {
		return nil
	}

	schema := schemaSQLite
	if d.driver == "pgx" {
		schema = schemaPostgres
	}

	tx, err := d.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(schema); err != nil {
		return fmt.Errorf("apply schema v1: %w", err)
	}
	if _, err := tx.Exec(d.rebind("INSERT INTO schema_version (version, applied_at) VALUES (?, ?)"), 1, nowUTC()); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return tx.Commit()
}
