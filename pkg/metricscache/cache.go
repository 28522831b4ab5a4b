/*
Copyright © 2025 Atlas Authors
SPDX-License-Identifier: Apache-2.0
*/
package metricscache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/tpotmap/atlas/pkg/errors"
)

const numShards = 8

// Stats is a point-in-time cache summary.
type Stats struct {
	Name      string `json:"name"`
	Entries   int    `json:"entries"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
}

// Cache is a sharded LRU+TTL cache keyed on structural hashes of
// normalized parameter sets. Concurrent misses for the same key coalesce:
// one goroutine computes, the rest wait on its result. A hit is
// indistinguishable from a miss except for timing.
type Cache struct {
	name   string
	shards [numShards]*expirable.LRU[string, any]
	group  singleflight.Group

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// New creates a named cache with a per-shard capacity derived from
// maxEntries and the given TTL.
func New(name string, maxEntries int, ttl time.Duration) *Cache {
	if maxEntries < numShards {
		maxEntries = numShards
	}
	c := &Cache{name: name}
	perShard := maxEntries / numShards
	for i := range c.shards {
		c.shards[i] = expirable.NewLRU[string, any](perShard, func(string, any) {
			c.evictions.Add(1)
			evictionsTotal.WithLabelValues(name).Inc()
		}, ttl)
	}
	return c
}

func (c *Cache) shard(key string) *expirable.LRU[string, any] {
	h := fnv.New32a()
	h.Write([]byte(key))
	return c.shards[h.Sum32()%numShards]
}

// Get returns the cached value for key, if present.
func (c *Cache) Get(key string) (any, bool) {
	v, ok := c.shard(key).Get(key)
	if ok {
		c.hits.Add(1)
		hitsTotal.WithLabelValues(c.name).Inc()
	} else {
		c.misses.Add(1)
		missesTotal.WithLabelValues(c.name).Inc()
	}
	return v, ok
}

// GetOrCompute returns the cached value for key, computing and storing it
// on a miss. Concurrent callers with the same key share one computation.
// The returned bool reports whether the value came from cache.
func (c *Cache) GetOrCompute(ctx context.Context, key string, compute func(ctx context.Context) (any, error)) (any, bool, error) {
	if v, ok := c.Get(key); ok {
		return v, true, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		// Re-check: another caller may have populated the entry between
		// the miss and the singleflight admission.
		if v, ok := c.shard(key).Get(key); ok {
			return v, nil
		}
		v, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		c.shard(key).Add(key, v)
		return v, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v, false, nil
}

// Add stores a value directly.
func (c *Cache) Add(key string, v any) {
	c.shard(key).Add(key, v)
}

// Invalidate removes entries whose key starts with prefix. An empty prefix
// clears the whole cache. Returns the number of removed entries.
func (c *Cache) Invalidate(prefix string) int {
	removed := 0
	for _, s := range c.shards {
		for _, k := range s.Keys() {
			if prefix == "" || strings.HasPrefix(k, prefix) {
				if s.Remove(k) {
					removed++
				}
			}
		}
	}
	return removed
}

// Stats returns the current counters.
func (c *Cache) Stats() Stats {
	entries := 0
	for _, s := range c.shards {
		entries += s.Len()
	}
	return Stats{
		Name:      c.name,
		Entries:   entries,
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
}

// Key builds a cache key from a prefix and a sequence of parameters. The
// parameters are JSON-encoded in order and digested, so any two calls with
// structurally equal inputs produce the same key, and the prefix remains
// available for targeted invalidation.
func Key(prefix string, parts ...any) (string, error) {
	d := sha256.New()
	for _, p := range parts {
		b, err := json.Marshal(p)
		if err != nil {
			return "", errors.Wrap(errors.ErrCodeInternal, fmt.Sprintf("encoding cache key part %T", p), err)
		}
		d.Write(b)
		d.Write([]byte{0})
	}
	return prefix + ":" + hex.EncodeToString(d.Sum(nil)[:16]), nil
}
