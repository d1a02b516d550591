package objectdb

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/yokosogithub/GeoGit-sub002/pkg/model"
	"github.com/yokosogithub/GeoGit-sub002/pkg/storage"
)

const (
	DefaultCacheEntries = 50_000
	DefaultCacheTTL     = 30 * time.Second
)

type CacheConfig struct {
	MaxEntries int64
	TTL        time.Duration
}

// Cache keeps recently read split trees in memory. Split trees are the
// objects diff walks revisit the most; leaf trees, features and commits go
// straight to the wrapped database.
type Cache struct {
	storage.ObjectDatabase
	cache *ristretto.Cache
	ttl   time.Duration
}

// NewCache wraps db.
func NewCache(db storage.ObjectDatabase, config CacheConfig) (*Cache, error) {
	if config.MaxEntries <= 0 {
		config.MaxEntries = DefaultCacheEntries
	}
	if config.TTL <= 0 {
		config.TTL = DefaultCacheTTL
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: config.MaxEntries * 10,
		MaxCost:     config.MaxEntries,
		BufferItems: 64,
		Metrics:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("create object cache: %w", err)
	}
	return &Cache{ObjectDatabase: db, cache: cache, ttl: config.TTL}, nil
}

func cacheKey(id model.ObjectId) string {
	return string(id[:])
}

func (c *Cache) Get(ctx context.Context, id model.ObjectId) (model.RevObject, error) {
	if v, ok := c.cache.Get(cacheKey(id)); ok {
		return v.(model.RevObject), nil
	}
	obj, err := c.ObjectDatabase.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if tree, ok := obj.(*model.Tree); ok && !tree.IsLeaf() {
		c.cache.SetWithTTL(cacheKey(id), obj, 1, c.ttl)
	}
	return obj, nil
}

func (c *Cache) Delete(ctx context.Context, id model.ObjectId) (bool, error) {
	c.cache.Del(cacheKey(id))
	return c.ObjectDatabase.Delete(ctx, id)
}

func (c *Cache) DeleteAll(ctx context.Context, ids []model.ObjectId, listener storage.BulkOpListener) (int, error) {
	for _, id := range ids {
		c.cache.Del(cacheKey(id))
	}
	return c.ObjectDatabase.DeleteAll(ctx, ids, listener)
}

func (c *Cache) NewObjectInserter() *storage.ObjectInserter {
	return storage.NewObjectInserter(c)
}

// Wait blocks until pending cache writes are visible.
func (c *Cache) Wait() {
	c.cache.Wait()
}

// Invalidate drops every cached entry.
func (c *Cache) Invalidate() {
	c.cache.Clear()
}

// Stats returns cache hits and misses.
func (c *Cache) Stats() (hits, misses uint64) {
	return c.cache.Metrics.Hits(), c.cache.Metrics.Misses()
}

// Close releases the cache. The wrapped database is left open.
func (c *Cache) Close() {
	c.cache.Close()
}
