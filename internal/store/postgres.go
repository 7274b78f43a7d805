package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore keeps documents in a PostgreSQL table and serializes
// updates with SELECT ... FOR UPDATE row locks.
type PostgresStore struct {
	db       *sql.DB
	readOnly bool
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}
	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		db.Close()
		slog.Error("NewPostgresStore: ping failed", "error", err)
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	if !cfg.ReadOnly {
		if _, err := db.Exec(postgresMigrations); err != nil {
			db.Close()
			slog.Error("NewPostgresStore: failed to run migrations", "error", err)
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		slog.Debug("NewPostgresStore: migrations applied")
	}
	return &PostgresStore{db: db, readOnly: cfg.ReadOnly}, nil
}

// Get implements DocumentStore.
func (s *PostgresStore) Get(ctx context.Context, id string) ([]byte, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	var doc []byte
	err := s.db.QueryRowContext(ctx, `SELECT document FROM conversations WHERE id = $1 AND document IS NOT NULL`, id).Scan(&doc)
	if err == sql.ErrNoRows {
		observe(BackendPostgres, "get", ErrNotFound)
		return nil, ErrNotFound
	}
	if err != nil {
		observe(BackendPostgres, "get", err)
		slog.Error("PostgresStore.Get: query failed", "conversationID", id, "error", err)
		return nil, fmt.Errorf("failed to get conversation %s: %w", id, err)
	}
	observe(BackendPostgres, "get", nil)
	return doc, nil
}

// Update implements DocumentStore. The placeholder insert guarantees a row
// exists to lock, so first writes on one id also serialize.
func (s *PostgresStore) Update(ctx context.Context, id string, fn UpdateFunc) (err error) {
	if err := validateID(id); err != nil {
		return err
	}
	if s.readOnly {
		return ErrReadOnly
	}
	start := time.Now()
	defer func() { observeUpdate(BackendPostgres, start, err) }()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT INTO conversations (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, id); err != nil {
		return fmt.Errorf("failed to reserve conversation %s: %w", id, err)
	}
	var current []byte
	if err := tx.QueryRowContext(ctx, `SELECT document FROM conversations WHERE id = $1 FOR UPDATE`, id).Scan(&current); err != nil {
		return fmt.Errorf("failed to lock conversation %s: %w", id, err)
	}

	next, err := fn(current)
	if err != nil {
		return err
	}
	if next == nil {
		return tx.Commit()
	}
	if _, err := tx.ExecContext(ctx, `UPDATE conversations SET document = $2, updated_at = NOW() WHERE id = $1`, id, next); err != nil {
		slog.Error("PostgresStore.Update: write failed", "conversationID", id, "error", err)
		return fmt.Errorf("failed to write conversation %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit conversation %s: %w", id, err)
	}
	slog.Debug("PostgresStore.Update: conversation written", "conversationID", id, "bytes", len(next))
	return nil
}

// List implements DocumentStore.
func (s *PostgresStore) List(ctx context.Context) ([]string, error) {
	ids, err := listIDs(ctx, s.db, `SELECT id FROM conversations WHERE document IS NOT NULL ORDER BY id`)
	observe(BackendPostgres, "list", err)
	return ids, err
}

// Close implements DocumentStore.
func (s *PostgresStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
