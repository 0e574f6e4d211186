// Package cache implements the process-local, read-mostly, copy-on-write
// cache the typo corrector's serialized BK-trees live in (spec §4.I, §5
// "BK-tree cache is read-mostly, copy-on-write; writers replace the entry
// atomically"). It wraps the teacher's internal/cache two-tier pattern
// (_teacher_tiered_cache.go.ref: in-process L1 + Redis L2, TTL-bounded)
// but narrowed to the one shape this core needs: opaque compressed blobs
// keyed by dataset, not the teacher's general tag-indexed KV cache.
package cache

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"

	"github.com/devflowinc/trieve-sub001/internal/errs"
)

// DefaultTTL is the BK-tree cache lifetime from spec §4.I: "cached in a
// shared store keyed by dataset with a 24-hour TTL; an in-process LRU
// wraps this with the same TTL."
const DefaultTTL = 24 * time.Hour

type entry struct {
	data      []byte
	expiresAt time.Time
}

// BlobCache is a two-tier byte-blob cache: an in-process LRU (L1) in
// front of Redis (L2), both bounded by the same TTL so a process restart
// never serves a key past its shared-store expiry (spec §4.I, §5).
type BlobCache struct {
	l1        *lru.Cache[string, entry]
	l2        *redis.Client
	ttl       time.Duration
	keyPrefix string
}

func NewBlobCache(l2 *redis.Client, l1Size int, ttl time.Duration, keyPrefix string) *BlobCache {
	if l1Size <= 0 {
		l1Size = 256
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	l1, _ := lru.New[string, entry](l1Size)
	return &BlobCache{l1: l1, l2: l2, ttl: ttl, keyPrefix: keyPrefix}
}

func (c *BlobCache) redisKey(key string) string {
	return c.keyPrefix + key
}

// Get checks L1 first, then L2; an L2 hit repopulates L1 so subsequent
// reads on this process avoid the round-trip (spec §5 "read-mostly").
func (c *BlobCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if v, ok := c.l1.Get(key); ok {
		if time.Now().Before(v.expiresAt) {
			return v.data, true, nil
		}
		c.l1.Remove(key)
	}

	if c.l2 == nil {
		return nil, false, nil
	}
	data, err := c.l2.Get(ctx, c.redisKey(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errs.Transient(errs.CodeQueueIO, "bk-tree cache read failed", err)
	}

	c.l1.Add(key, entry{data: data, expiresAt: time.Now().Add(c.ttl)})
	return data, true, nil
}

// Set replaces the cached blob atomically in both tiers (spec §5:
// "writers replace the entry atomically" — there is no partial update of
// an existing cached BK-tree, only whole-value swap).
func (c *BlobCache) Set(ctx context.Context, key string, value []byte) error {
	c.l1.Add(key, entry{data: value, expiresAt: time.Now().Add(c.ttl)})
	if c.l2 == nil {
		return nil
	}
	if err := c.l2.Set(ctx, c.redisKey(key), value, c.ttl).Err(); err != nil {
		return errs.Transient(errs.CodeQueueIO, "bk-tree cache write failed", err)
	}
	return nil
}

func (c *BlobCache) Invalidate(key string) {
	c.l1.Remove(key)
}
