package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore keeps documents in a single SQLite table. Updates run in an
// IMMEDIATE transaction (write lock taken at BEGIN) after an in-process
// keyed mutex, so concurrent writers queue instead of failing with SQLITE_BUSY.
type SQLiteStore struct {
	db       *sql.DB
	readOnly bool
	locks    *keyedMutex
}

// NewSQLiteStore creates a new SQLite store. The DSN is a file path,
// optionally with query parameters; the directory is created if missing.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN not set")
	}

	path := sqlitePath(cfg.DSN)
	if path != "" && path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
			slog.Error("NewSQLiteStore: failed to create database directory", "dir", dir, "error", err)
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", sqliteDSN(cfg.DSN))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}
	if _, err := db.Exec(sqliteMigrations); err != nil {
		db.Close()
		slog.Error("NewSQLiteStore: failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("NewSQLiteStore: migrations applied", "path", path)
	return &SQLiteStore{db: db, readOnly: cfg.ReadOnly, locks: newKeyedMutex()}, nil
}

// sqlitePath strips the file: scheme and query parameters.
func sqlitePath(dsn string) string {
	p := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	return p
}

// sqliteDSN adds the transaction and busy-timeout parameters the update
// path relies on, unless the caller set them.
func sqliteDSN(dsn string) string {
	params := []string{}
	if !strings.Contains(dsn, "_txlock=") {
		params = append(params, "_txlock=immediate")
	}
	if !strings.Contains(dsn, "_busy_timeout=") && !strings.Contains(dsn, "_timeout=") {
		params = append(params, "_busy_timeout=5000")
	}
	if len(params) == 0 {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(params, "&")
}

// Get implements DocumentStore.
func (s *SQLiteStore) Get(ctx context.Context, id string) ([]byte, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	var doc []byte
	err := s.db.QueryRowContext(ctx, `SELECT document FROM conversations WHERE id = ? AND document IS NOT NULL`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		observe(BackendSQLite, "get", ErrNotFound)
		return nil, ErrNotFound
	}
	if err != nil {
		observe(BackendSQLite, "get", err)
		slog.Error("SQLiteStore.Get: query failed", "conversationID", id, "error", err)
		return nil, fmt.Errorf("failed to get conversation %s: %w", id, err)
	}
	observe(BackendSQLite, "get", nil)
	return doc, nil
}

// Update implements DocumentStore.
func (s *SQLiteStore) Update(ctx context.Context, id string, fn UpdateFunc) (err error) {
	if err := validateID(id); err != nil {
		return err
	}
	if s.readOnly {
		return ErrReadOnly
	}
	start := time.Now()
	defer func() { observeUpdate(BackendSQLite, start, err) }()

	unlock := s.locks.Lock(id)
	defer unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var current []byte
	err = tx.QueryRowContext(ctx, `SELECT document FROM conversations WHERE id = ?`, id).Scan(&current)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to read conversation %s: %w", id, err)
	}

	next, err := fn(current)
	if err != nil || next == nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO conversations (id, document, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET document = excluded.document, updated_at = excluded.updated_at`, id, next)
	if err != nil {
		slog.Error("SQLiteStore.Update: write failed", "conversationID", id, "error", err)
		return fmt.Errorf("failed to write conversation %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit conversation %s: %w", id, err)
	}
	slog.Debug("SQLiteStore.Update: conversation written", "conversationID", id, "bytes", len(next))
	return nil
}

// List implements DocumentStore.
func (s *SQLiteStore) List(ctx context.Context) ([]string, error) {
	ids, err := listIDs(ctx, s.db, `SELECT id FROM conversations WHERE document IS NOT NULL ORDER BY id`)
	observe(BackendSQLite, "list", err)
	return ids, err
}

// Close implements DocumentStore.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func listIDs(ctx context.Context, db *sql.DB, query string) ([]string, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan conversation id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conversation ids: %w", err)
	}
	return ids, nil
}
