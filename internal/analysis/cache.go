package analysis

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	defaultCacheSize = 128
	defaultCacheTTL  = 30 * time.Minute
)

type cacheEntry struct {
	result   Result
	storedAt time.Time
}

// resultCache is an LRU of finished analyses with a per-entry TTL.
type resultCache struct {
	entries *lru.Cache[string, cacheEntry]
	ttl     time.Duration
	now     func() time.Time
}

// newResultCache returns nil when size is negative, which disables caching.
func newResultCache(size int, ttl time.Duration) *resultCache {
	if size < 0 {
		return nil
	}
	if size == 0 {
		size = defaultCacheSize
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	entries, err := lru.New[string, cacheEntry](size)
	if err != nil {
		return nil
	}
	return &resultCache{entries: entries, ttl: ttl, now: time.Now}
}

func (c *resultCache) get(key string) (Result, bool) {
	if c == nil {
		return Result{}, false
	}
	entry, ok := c.entries.Get(key)
	if !ok {
		return Result{}, false
	}
	if c.now().Sub(entry.storedAt) >= c.ttl {
		c.entries.Remove(key)
		return Result{}, false
	}
	return entry.result, true
}

func (c *resultCache) put(key string, result Result) {
	if c == nil {
		return
	}
	c.entries.Add(key, cacheEntry{result: result, storedAt: c.now()})
}

// cacheKey hashes every input that changes the answer.
func cacheKey(parts ...string) string {
	h := sha256.New()
	for _, part := range parts {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
