package lookup

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/pkg/logger"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/pkg/redis"
)

const keyPrefix = "postings:"

// Backend is the key-value store behind the cache. *redis.Client
// satisfies it.
type Backend interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

type cachedPostings struct {
	Found    bool     `json:"found"`
	Postings []uint64 `json:"postings,omitempty"`
}

// Cache memoises posting lists of one final index. Keys carry the index
// fingerprint, so entries of a replaced index are never served.
type Cache struct {
	backend Backend
	ttl     time.Duration
	group   singleflight.Group
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

func NewCache(backend Backend, ttl time.Duration) *Cache {
	return &Cache{
		backend: backend,
		ttl:     ttl,
		logger:  logger.WithComponent("posting-cache"),
	}
}

func (c *Cache) get(ctx context.Context, key string) (cachedPostings, bool) {
	data, err := c.backend.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.misses.Add(1)
		return cachedPostings{}, false
	}
	var v cachedPostings
	if err := json.Unmarshal([]byte(data), &v); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.misses.Add(1)
		return cachedPostings{}, false
	}
	c.hits.Add(1)
	return v, true
}

func (c *Cache) set(ctx context.Context, key string, v cachedPostings) {
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.backend.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrLoad returns the cached postings for term, calling load on a miss.
// Concurrent misses for the same key share one load. Cache failures are
// logged and fall through to load.
func (c *Cache) GetOrLoad(
	ctx context.Context,
	fingerprint, term string,
	load func() (index.PostingList, bool, error),
) (index.PostingList, bool, error) {
	key := buildKey(fingerprint, term)
	if v, ok := c.get(ctx, key); ok {
		return v.Postings, v.Found, nil
	}
	val, err, _ := c.group.Do(key, func() (any, error) {
		postings, found, err := load()
		if err != nil {
			return nil, err
		}
		v := cachedPostings{Found: found, Postings: postings}
		c.set(ctx, key, v)
		return v, nil
	})
	if err != nil {
		return nil, false, err
	}
	v := val.(cachedPostings)
	return v.Postings, v.Found, nil
}

// Invalidate drops every cached posting list.
func (c *Cache) Invalidate(ctx context.Context) error {
	deleted, err := c.backend.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating posting cache: %w", err)
	}
	c.logger.Info("posting cache invalidated", "keys_deleted", deleted)
	return nil
}

func (c *Cache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func buildKey(fingerprint, term string) string {
	return keyPrefix + fingerprint + ":" + term
}
