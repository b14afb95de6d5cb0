package poi

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Cache stores POI counts by key.
type Cache interface {
	// Get returns the cached count and whether it was found.
	Get(ctx context.Context, key string) (int, bool, error)
	// Set stores a count for ttl.
	Set(ctx context.Context, key string, count int, ttl time.Duration) error
}

// RedisCache is a Cache backed by Redis.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache creates a Redis-backed cache. Keys are stored under prefix.
func NewRedisCache(client *redis.Client, prefix string) *RedisCache {
	if prefix == "" {
		prefix = "poi:"
	}
	return &RedisCache{client: client, prefix: prefix}
}

// Get returns the cached count for key.
func (c *RedisCache) Get(ctx context.Context, key string) (int, bool, error) {
	n, err := c.client.Get(ctx, c.prefix+key).Int()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("redis get: %w", err)
	}
	return n, true, nil
}

// Set stores count for key with the given TTL.
func (c *RedisCache) Set(ctx context.Context, key string, count int, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.prefix+key, count, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// MemoryCache is an in-process Cache for single-instance deployments and tests.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	count     int
	expiresAt time.Time
}

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry)}
}

// Get returns the cached count for key if it has not expired.
func (c *MemoryCache) Get(_ context.Context, key string) (int, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok || time.Now().After(e.expiresAt) {
		return 0, false, nil
	}
	return e.count, true, nil
}

// Set stores count for key with the given TTL. Expired entries are dropped on write.
func (c *MemoryCache) Set(_ context.Context, key string, count int, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
		}
	}
	c.entries[key] = memoryEntry{count: count, expiresAt: now.Add(ttl)}
	return nil
}

// CachedSearcherConfig holds configuration for a CachedSearcher.
type CachedSearcherConfig struct {
	// Searcher answers cache misses.
	Searcher Searcher

	// Cache stores counts.
	Cache Cache

	// TTL is how long counts are cached (default: 24 hours).
	TTL time.Duration

	// GridSize quantizes bounding boxes in degrees (default: 0.005 ~ 550m).
	GridSize float64

	// Logger for cache operations.
	Logger zerolog.Logger
}

// CachedSearcher caches counts from another Searcher. Cache failures are logged and bypassed.
type CachedSearcher struct {
	searcher Searcher
	cache    Cache
	ttl      time.Duration
	gridSize float64
	logger   zerolog.Logger
}

// NewCachedSearcher wraps a Searcher with a cache.
func NewCachedSearcher(cfg CachedSearcherConfig) *CachedSearcher {
	ttl := cfg.TTL
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	gridSize := cfg.GridSize
	if gridSize == 0 {
		gridSize = 0.005
	}
	return &CachedSearcher{
		searcher: cfg.Searcher,
		cache:    cfg.Cache,
		ttl:      ttl,
		gridSize: gridSize,
		logger:   cfg.Logger,
	}
}

// Count returns the cached count or asks the wrapped Searcher.
func (s *CachedSearcher) Count(ctx context.Context, box BoundingBox, categories []Category) (int, error) {
	key := s.cacheKey(box, categories)

	n, ok, err := s.cache.Get(ctx, key)
	switch {
	case err != nil:
		s.logger.Warn().Err(err).Str("cache_key", key).Msg("poi cache read failed")
	case ok:
		s.logger.Debug().Str("cache_key", key).Int("count", n).Msg("poi cache hit")
		return n, nil
	}

	n, err = s.searcher.Count(ctx, box, categories)
	if err != nil {
		return 0, err
	}

	if err := s.cache.Set(ctx, key, n, s.ttl); err != nil {
		s.logger.Warn().Err(err).Str("cache_key", key).Msg("poi cache write failed")
	}
	return n, nil
}

// cacheKey builds a key from the sorted categories and the box snapped outward to the grid.
// Format: {cat1,cat2}:{minLat},{minLon},{maxLat},{maxLon}.
func (s *CachedSearcher) cacheKey(box BoundingBox, categories []Category) string {
	names := make([]string, len(categories))
	for i, c := range categories {
		names[i] = string(c)
	}
	slices.Sort(names)
	names = slices.Compact(names)

	down := func(v float64) float64 { return math.Floor(v/s.gridSize) * s.gridSize }
	up := func(v float64) float64 { return math.Ceil(v/s.gridSize) * s.gridSize }

	return fmt.Sprintf("%s:%.4f,%.4f,%.4f,%.4f",
		strings.Join(names, ","),
		down(box.MinLat), down(box.MinLon),
		up(box.MaxLat), up(box.MaxLon),
	)
}
