package store

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// InMemoryStore keeps documents in a map. It is used for tests and for
// running without persistence.
type InMemoryStore struct {
	mu    sync.RWMutex
	docs  map[string][]byte
	locks *keyedMutex
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{docs: make(map[string][]byte), locks: newKeyedMutex()}
}

// Get implements DocumentStore.
func (s *InMemoryStore) Get(_ context.Context, id string) ([]byte, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	s.mu.RLock()
	doc, ok := s.docs[id]
	s.mu.RUnlock()
	if !ok {
		observe(BackendMemory, "get", ErrNotFound)
		return nil, ErrNotFound
	}
	observe(BackendMemory, "get", nil)
	return append([]byte(nil), doc...), nil
}

// Update implements DocumentStore.
func (s *InMemoryStore) Update(ctx context.Context, id string, fn UpdateFunc) (err error) {
	if err := validateID(id); err != nil {
		return err
	}
	start := time.Now()
	defer func() { observeUpdate(BackendMemory, start, err) }()

	unlock := s.locks.Lock(id)
	defer unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	current, ok := s.docs[id]
	s.mu.RUnlock()
	if ok {
		current = append([]byte(nil), current...)
	}

	next, err := fn(current)
	if err != nil || next == nil {
		return err
	}

	s.mu.Lock()
	s.docs[id] = append([]byte(nil), next...)
	s.mu.Unlock()
	slog.Debug("InMemoryStore.Update: document stored", "conversationID", id, "bytes", len(next))
	return nil
}

// List implements DocumentStore.
func (s *InMemoryStore) List(_ context.Context) ([]string, error) {
	s.mu.RLock()
	ids := make([]string, 0, len(s.docs))
	for id := range s.docs {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)
	observe(BackendMemory, "list", nil)
	return ids, nil
}

// Put overwrites a document without going through Update. Tests use it to
// plant corrupt records.
func (s *InMemoryStore) Put(id string, doc []byte) {
	s.mu.Lock()
	s.docs[id] = append([]byte(nil), doc...)
	s.mu.Unlock()
}

// Close implements DocumentStore.
func (s *InMemoryStore) Close() error { return nil }
