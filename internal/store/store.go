// Package store provides document storage backends for conversation records.
//
// Every backend stores one opaque byte document per conversation id and
// offers a read-modify-write Update that is serialized per id: a keyed mutex
// and file lock for flat files, row locks for PostgreSQL, an immediate
// transaction for SQLite and WATCH/MULTI compare-and-swap for Redis.
// Updates on different ids never wait on each other.
package store

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/rosebeck482/hapa-chat/internal/metrics"
)

var (
	// ErrNotFound is returned by Get for an id that has never been written.
	ErrNotFound = errors.New("document not found")
	// ErrReadOnly is returned by Update on a store opened read-only.
	ErrReadOnly = errors.New("store is read-only")
	// ErrInvalidID is returned for an empty conversation id.
	ErrInvalidID = errors.New("invalid conversation id")
	// ErrConflict is returned when an optimistic update kept losing races.
	ErrConflict = errors.New("too many concurrent updates")
)

// UpdateFunc receives the current document (nil when none exists) and
// returns the replacement. Returning nil bytes and no error leaves the
// document untouched. Backends using compare-and-swap may call it more than
// once, so it must not have side effects.
type UpdateFunc func(current []byte) ([]byte, error)

// DocumentStore is a key-value store of conversation documents.
type DocumentStore interface {
	// Get returns the stored document or ErrNotFound.
	Get(ctx context.Context, id string) ([]byte, error)
	// Update runs fn under per-id exclusion and persists its result atomically.
	Update(ctx context.Context, id string, fn UpdateFunc) error
	// List returns all stored ids in ascending order.
	List(ctx context.Context) ([]string, error)
	// Close releases the backend's resources.
	Close() error
}

// Backend names returned by DetectDSNType.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Opts holds configuration options for store implementations.
type Opts struct {
	DSN       string
	Dir       string
	ReadOnly  bool
	KeyPrefix string
}

// Option is a functional option for configuring stores.
type Option func(*Opts)

// WithDSN sets the connection string. Its shape selects the backend.
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithDir sets the directory used by the flat-file backend.
func WithDir(dir string) Option {
	return func(o *Opts) { o.Dir = dir }
}

// WithReadOnly opens the store for reading only; the flat-file backend then
// skips the state-directory lock so exports can run beside a live server.
func WithReadOnly(readOnly bool) Option {
	return func(o *Opts) { o.ReadOnly = readOnly }
}

// WithKeyPrefix sets the Redis key namespace.
func WithKeyPrefix(prefix string) Option {
	return func(o *Opts) { o.KeyPrefix = prefix }
}

// DetectDSNType determines the backend from a DSN. An empty DSN selects the
// flat-file backend.
func DetectDSNType(dsn string) string {
	d := strings.TrimSpace(strings.ToLower(dsn))
	switch {
	case d == "":
		return BackendFile
	case d == "memory" || d == ":memory:" || d == "mem://":
		return BackendMemory
	case strings.HasPrefix(d, "file://") || strings.HasPrefix(d, "dir:"):
		return BackendFile
	case strings.HasPrefix(d, "postgres://") || strings.HasPrefix(d, "postgresql://"),
		strings.Contains(d, "host=") || strings.Contains(d, "dbname=") || strings.Contains(d, "user="):
		return BackendPostgres
	case strings.HasPrefix(d, "redis://") || strings.HasPrefix(d, "rediss://") || strings.HasPrefix(d, "unix://"):
		return BackendRedis
	default:
		return BackendSQLite
	}
}

// New opens the backend selected by the DSN.
func New(opts ...Option) (DocumentStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	kind := DetectDSNType(cfg.DSN)
	slog.Debug("store.New: opening document store", "backend", kind, "readOnly", cfg.ReadOnly)

	switch kind {
	case BackendMemory:
		return NewInMemoryStore(), nil
	case BackendFile:
		dir := cfg.Dir
		if rest, ok := cutAnyPrefix(cfg.DSN, "file://", "dir:"); ok && rest != "" {
			dir = rest
		}
		return NewFileStore(dir, opts...)
	case BackendPostgres:
		return NewPostgresStore(opts...)
	case BackendRedis:
		return NewRedisStore(opts...)
	default:
		return NewSQLiteStore(opts...)
	}
}

func cutAnyPrefix(s string, prefixes ...string) (string, bool) {
	for _, p := range prefixes {
		if len(s) >= len(p) && strings.EqualFold(s[:len(p)], p) {
			return s[len(p):], true
		}
	}
	return s, false
}

func validateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrInvalidID
	}
	return nil
}

// observe records one operation outcome for the metrics endpoint.
func observe(backend, op string, err error) {
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		result = "not_found"
	case errors.Is(err, ErrConflict):
		result = "conflict"
	default:
		result = "error"
	}
	metrics.StoreOpsTotal.WithLabelValues(backend, op, result).Inc()
}

func observeUpdate(backend string, start time.Time, err error) {
	metrics.StoreUpdateDuration.WithLabelValues(backend).Observe(time.Since(start).Seconds())
	observe(backend, "update", err)
}
