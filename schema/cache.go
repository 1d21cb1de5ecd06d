package schema

import (
	"container/list"
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/mjones3/event-governance-poc-sub000/contracts"
)

const (
	defaultCacheTTL      = 30 * time.Minute
	defaultCacheCapacity = 1000
)

// Cache is an in-memory, time-bounded schema cache with LRU eviction.
// Lookups that miss share a single in-flight registry fetch per subject so a
// cold start or mass eviction cannot stampede the registry.
type Cache struct {
	registry Registry
	ttl      time.Duration
	capacity int
	logger   *slog.Logger

	mu      sync.Mutex
	entries map[string]*cacheEntry
	order   *list.List // front = most recently used

	group singleflight.Group

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

type cacheEntry struct {
	subject   string
	schema    *contracts.Schema
	expiresAt time.Time
	elem      *list.Element
}

// CacheOption configures the cache.
type CacheOption func(*Cache)

// WithTTL sets the entry time-to-live.
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *Cache) {
		c.ttl = ttl
	}
}

// WithCapacity sets the maximum number of cached subjects.
func WithCapacity(capacity int) CacheOption {
	return func(c *Cache) {
		c.capacity = capacity
	}
}

// WithCacheLogger sets the logger.
func WithCacheLogger(logger *slog.Logger) CacheOption {
	return func(c *Cache) {
		c.logger = logger
	}
}

// NewCache creates a schema cache backed by the registry collaborator.
func NewCache(registry Registry, options ...CacheOption) *Cache {
	c := &Cache{
		registry: registry,
		ttl:      defaultCacheTTL,
		capacity: defaultCacheCapacity,
		logger:   slog.Default(),
		entries:  make(map[string]*cacheEntry),
		order:    list.New(),
	}

	for _, opt := range options {
		opt(c)
	}

	return c
}

// Get returns the schema for subject, fetching from the registry on a miss
// or after expiry. Returns an error satisfying
// errors.Is(err, contracts.ErrRegistryUnavailable) when the registry cannot
// be reached and no cached entry exists.
func (c *Cache) Get(ctx context.Context, subject string) (*contracts.Schema, error) {
	if schema, ok := c.lookup(subject); ok {
		c.hits.Add(1)
		return schema, nil
	}
	c.misses.Add(1)

	result, err, _ := c.group.Do(subject, func() (interface{}, error) {
		// Another caller in the same flight may have populated the entry
		// between our miss and acquiring the flight.
		if schema, ok := c.lookup(subject); ok {
			return schema, nil
		}

		schema, err := c.registry.FetchLatestSchema(ctx, subject)
		if err != nil {
			if errors.Is(err, contracts.ErrSchemaNotFound) {
				return nil, &contracts.RegistryError{Subject: subject, Op: "fetchLatestSchema", Err: err}
			}
			c.logger.Error("schema registry fetch failed",
				"subject", subject,
				"error", err,
			)
			return nil, &contracts.RegistryError{
				Subject: subject,
				Op:      "fetchLatestSchema",
				Err:     errors.Join(contracts.ErrRegistryUnavailable, err),
			}
		}

		c.store(subject, schema)
		c.logger.Debug("schema cached",
			"subject", subject,
			"version", schema.Version,
		)
		return schema, nil
	})
	if err != nil {
		return nil, err
	}

	return result.(*contracts.Schema), nil
}

// Invalidate drops the cached entry for subject, forcing the next lookup to
// fetch from the registry.
func (c *Cache) Invalidate(subject string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[subject]; ok {
		c.order.Remove(entry.elem)
		delete(c.entries, subject)
	}
}

// Len returns the number of cached subjects.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// CacheStats is a point-in-time snapshot of cache counters.
type CacheStats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Size      int
}

// Stats returns current cache counters.
func (c *Cache) Stats() CacheStats {
	return CacheStats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Size:      c.Len(),
	}
}

// lookup returns a live cached schema, evicting the entry lazily when it has
// expired.
func (c *Cache) lookup(subject string) (*contracts.Schema, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[subject]
	if !ok {
		return nil, false
	}

	if time.Now().After(entry.expiresAt) {
		c.order.Remove(entry.elem)
		delete(c.entries, subject)
		return nil, false
	}

	c.order.MoveToFront(entry.elem)
	return entry.schema, true
}

func (c *Cache) store(subject string, schema *contracts.Schema) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries[subject]; ok {
		existing.schema = schema
		existing.expiresAt = time.Now().Add(c.ttl)
		c.order.MoveToFront(existing.elem)
		return
	}

	entry := &cacheEntry{
		subject:   subject,
		schema:    schema,
		expiresAt: time.Now().Add(c.ttl),
	}
	entry.elem = c.order.PushFront(entry)
	c.entries[subject] = entry

	for c.capacity > 0 && len(c.entries) > c.capacity {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		evicted := oldest.Value.(*cacheEntry)
		c.order.Remove(oldest)
		delete(c.entries, evicted.subject)
		c.evictions.Add(1)
	}
}
