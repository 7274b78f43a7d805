package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rosebeck482/hapa-chat/internal/lockfile"
)

// DefaultDirPermissions defines the default permissions for state directories.
const DefaultDirPermissions = 0o755

// DefaultStateDir is used when no directory is configured.
const DefaultStateDir = "conversation_logs"

const (
	filePrefix = "conversation_"
	fileSuffix = ".json"
)

// FileStore keeps one JSON file per conversation. Writes go to a temp file
// that is fsynced and renamed over the target, so readers only ever see a
// complete document. Updates on one id are serialized in-process by a keyed
// mutex and across processes by a per-file flock.
type FileStore struct {
	dir      string
	readOnly bool
	locks    *keyedMutex
	dirLock  *lockfile.Lock
}

// NewFileStore opens (and creates) dir. Unless read-only, it takes the
// state-directory lock so two servers cannot share the directory.
func NewFileStore(dir string, opts ...Option) (*FileStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if dir == "" {
		dir = DefaultStateDir
	}
	s := &FileStore{dir: dir, readOnly: cfg.ReadOnly, locks: newKeyedMutex()}

	if cfg.ReadOnly {
		if _, err := os.Stat(dir); err != nil {
			return nil, fmt.Errorf("failed to open state directory %s: %w", dir, err)
		}
		slog.Debug("NewFileStore: opened read-only", "dir", dir)
		return s, nil
	}

	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("NewFileStore: failed to create state directory", "dir", dir, "error", err)
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	lock, err := lockfile.AcquireLock(dir)
	if err != nil {
		return nil, err
	}
	s.dirLock = lock
	slog.Debug("NewFileStore: state directory ready", "dir", dir)
	return s, nil
}

// Dir returns the state directory.
func (s *FileStore) Dir() string { return s.dir }

// Path returns the file that holds id.
func (s *FileStore) Path(id string) string {
	return filepath.Join(s.dir, filePrefix+url.QueryEscape(id)+fileSuffix)
}

// Get implements DocumentStore.
func (s *FileStore) Get(_ context.Context, id string) ([]byte, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path(id))
	if errors.Is(err, fs.ErrNotExist) {
		observe(BackendFile, "get", ErrNotFound)
		return nil, ErrNotFound
	}
	if err != nil {
		observe(BackendFile, "get", err)
		return nil, fmt.Errorf("failed to read conversation %s: %w", id, err)
	}
	observe(BackendFile, "get", nil)
	return data, nil
}

// Update implements DocumentStore.
func (s *FileStore) Update(ctx context.Context, id string, fn UpdateFunc) (err error) {
	if err := validateID(id); err != nil {
		return err
	}
	if s.readOnly {
		return ErrReadOnly
	}
	start := time.Now()
	defer func() { observeUpdate(BackendFile, start, err) }()

	unlock := s.locks.Lock(id)
	defer unlock()

	path := s.Path(id)
	flock, err := lockfile.LockPath(path + ".lock")
	if err != nil {
		return err
	}
	defer flock.Release()

	if err := ctx.Err(); err != nil {
		return err
	}

	current, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		current = nil
	} else if err != nil {
		return fmt.Errorf("failed to read conversation %s: %w", id, err)
	}

	next, err := fn(current)
	if err != nil || next == nil {
		return err
	}
	if err := writeAtomic(path, next); err != nil {
		slog.Error("FileStore.Update: failed to write conversation", "conversationID", id, "error", err)
		return err
	}
	slog.Debug("FileStore.Update: conversation written", "conversationID", id, "bytes", len(next))
	return nil
}

// writeAtomic writes data next to path and renames it into place.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		slog.Warn("writeAtomic: failed to chmod temp file", "path", tmpName, "error", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		d.Close()
	}
	return nil
}

// List implements DocumentStore.
func (s *FileStore) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		observe(BackendFile, "list", err)
		return nil, fmt.Errorf("failed to list state directory: %w", err)
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		id, err := url.QueryUnescape(strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix))
		if err != nil {
			slog.Warn("FileStore.List: skipping undecodable file name", "file", name, "error", err)
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	observe(BackendFile, "list", nil)
	return ids, nil
}

// Close releases the state-directory lock.
func (s *FileStore) Close() error {
	if s.dirLock == nil {
		return nil
	}
	err := s.dirLock.Release()
	s.dirLock = nil
	return err
}
