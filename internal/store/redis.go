package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces conversation keys in Redis.
const DefaultKeyPrefix = "hapa:"

// maxCASAttempts bounds the WATCH/MULTI retry loop.
const maxCASAttempts = 16

// RedisStore keeps each document under its own key and serializes updates
// with optimistic WATCH/MULTI transactions. A set indexes the known ids.
type RedisStore struct {
	client   *redis.Client
	prefix   string
	readOnly bool
}

// NewRedisStore connects to the redis:// DSN.
func NewRedisStore(opts ...Option) (*RedisStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("redis DSN not set")
	}
	ropts, err := redis.ParseURL(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis DSN: %w", err)
	}
	client := redis.NewClient(ropts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		slog.Error("NewRedisStore: ping failed", "addr", ropts.Addr, "error", err)
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return NewRedisStoreFromClient(client, cfg.KeyPrefix, cfg.ReadOnly), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client, prefix string, readOnly bool) *RedisStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	slog.Debug("NewRedisStore: redis store ready", "prefix", prefix)
	return &RedisStore{client: client, prefix: prefix, readOnly: readOnly}
}

func (s *RedisStore) key(id string) string { return s.prefix + "conversation:" + id }

func (s *RedisStore) indexKey() string { return s.prefix + "conversations" }

// Get implements DocumentStore.
func (s *RedisStore) Get(ctx context.Context, id string) ([]byte, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	doc, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		observe(BackendRedis, "get", ErrNotFound)
		return nil, ErrNotFound
	}
	if err != nil {
		observe(BackendRedis, "get", err)
		return nil, fmt.Errorf("failed to get conversation %s: %w", id, err)
	}
	observe(BackendRedis, "get", nil)
	return doc, nil
}

// Update implements DocumentStore. fn may run several times when another
// writer changes the key between WATCH and EXEC.
func (s *RedisStore) Update(ctx context.Context, id string, fn UpdateFunc) (err error) {
	if err := validateID(id); err != nil {
		return err
	}
	if s.readOnly {
		return ErrReadOnly
	}
	start := time.Now()
	defer func() { observeUpdate(BackendRedis, start, err) }()

	key := s.key(id)
	txf := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			current = nil
		} else if err != nil {
			return fmt.Errorf("failed to read conversation %s: %w", id, err)
		}
		next, err := fn(current)
		if err != nil || next == nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, 0)
			pipe.SAdd(ctx, s.indexKey(), id)
			return nil
		})
		return err
	}

	for attempt := 1; attempt <= maxCASAttempts; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			slog.Debug("RedisStore.Update: conversation written", "conversationID", id, "attempt", attempt)
			return nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
		slog.Debug("RedisStore.Update: optimistic update lost a race, retrying", "conversationID", id, "attempt", attempt)
	}
	slog.Error("RedisStore.Update: giving up after repeated conflicts", "conversationID", id)
	return fmt.Errorf("%w: conversation %s", ErrConflict, id)
}

// List implements DocumentStore.
func (s *RedisStore) List(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, s.indexKey()).Result()
	observe(BackendRedis, "list", err)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

// Close implements DocumentStore.
func (s *RedisStore) Close() error { return s.client.Close() }

// FlushPrefix deletes every key under the store's prefix. Tests use it to
// isolate runs against a shared server.
func (s *RedisStore) FlushPrefix(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, strings.TrimSuffix(s.prefix, ":")+":*", 100).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}
