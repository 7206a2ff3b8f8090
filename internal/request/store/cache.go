package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/JiaqinWu/CGHPI-Request-System/internal/request/entity"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultCacheTTL is how long a loaded table is served without re-reading.
const DefaultCacheTTL = 600 * time.Second

// TableCache holds at most one copy of the whole table.
type TableCache interface {
	Get(ctx context.Context) ([]entity.Request, bool, error)
	Set(ctx context.Context, rows []entity.Request, ttl time.Duration) error
	Clear(ctx context.Context) error
}

// CachedStore is a read-through cache in front of a RecordStore. Writes go
// straight to the inner store; callers clear the cache after a write.
// A load that overlaps an Invalidate is returned but not cached.
type CachedStore struct {
	inner  RecordStore
	cache  TableCache
	ttl    time.Duration
	logger *zap.Logger

	mu  sync.Mutex
	gen uint64
}

// NewCachedStore wraps inner. A ttl of zero uses DefaultCacheTTL.
func NewCachedStore(inner RecordStore, cache TableCache, ttl time.Duration, logger *zap.Logger) *CachedStore {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedStore{inner: inner, cache: cache, ttl: ttl, logger: logger}
}

// LoadAll serves the cached table or loads and caches it. Cache backend
// errors fall through to the inner store.
func (s *CachedStore) LoadAll(ctx context.Context) ([]entity.Request, error) {
	rows, ok, err := s.cache.Get(ctx)
	if err != nil {
		s.logger.Warn("Table cache read failed", zap.Error(err))
	}
	if ok {
		return rows, nil
	}

	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()

	rows, err = s.inner.LoadAll(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		s.logger.Debug("Table changed during load, not caching")
		return cloneRows(rows), nil
	}
	if err := s.cache.Set(ctx, rows, s.ttl); err != nil {
		s.logger.Warn("Table cache write failed", zap.Error(err))
	}
	return cloneRows(rows), nil
}

// WriteAll writes through to the inner store.
func (s *CachedStore) WriteAll(ctx context.Context, rows []entity.Request) error {
	return s.inner.WriteAll(ctx, rows)
}

// Invalidate drops the whole cached table and discards any load still in
// flight.
func (s *CachedStore) Invalidate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	return s.cache.Clear(ctx)
}

// MemoryCache is an in-process TableCache.
type MemoryCache struct {
	mu      sync.Mutex
	rows    []entity.Request
	expires time.Time
	valid   bool
	now     func() time.Time
}

// NewMemoryCache returns an empty in-process cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{now: time.Now}
}

// Get returns a copy so callers may mutate what they receive.
func (c *MemoryCache) Get(ctx context.Context) ([]entity.Request, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.valid || !c.now().Before(c.expires) {
		c.valid = false
		c.rows = nil
		return nil, false, nil
	}
	return cloneRows(c.rows), true, nil
}

func (c *MemoryCache) Set(ctx context.Context, rows []entity.Request, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rows = cloneRows(rows)
	c.expires = c.now().Add(ttl)
	c.valid = true
	return nil
}

func (c *MemoryCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rows = nil
	c.valid = false
	return nil
}

// RedisCache stores the table as one JSON value with an expiry.
type RedisCache struct {
	rdb *redis.Client
	key string
}

// NewRedisCache returns a cache under key.
func NewRedisCache(rdb *redis.Client, key string) *RedisCache {
	if key == "" {
		key = "requestdesk:requests"
	}
	return &RedisCache{rdb: rdb, key: key}
}

func (c *RedisCache) Get(ctx context.Context) ([]entity.Request, bool, error) {
	data, err := c.rdb.Get(ctx, c.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	var rows []entity.Request
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, false, fmt.Errorf("decode cached table: %w", err)
	}
	return rows, true, nil
}

func (c *RedisCache) Set(ctx context.Context, rows []entity.Request, ttl time.Duration) error {
	data, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("encode table: %w", err)
	}
	if err := c.rdb.Set(ctx, c.key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (c *RedisCache) Clear(ctx context.Context) error {
	if err := c.rdb.Del(ctx, c.key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func cloneRows(rows []entity.Request) []entity.Request {
	if rows == nil {
		return nil
	}
	out := make([]entity.Request, len(rows))
	for i, r := range rows {
		out[i] = r.Clone()
	}
	return out
}
