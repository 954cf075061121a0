package market

import (
	"sync"
	"time"
)

// 中文说明：
// 行情/新闻代理使用的小型 TTL 缓存：Get 返回值与是否仍新鲜，过期由调用方决定回源。
// 单写者场景，无淘汰策略。

type cacheEntry struct {
	value    any
	storedAt time.Time
}

// TTLCache 按 key 缓存任意值，超过 ttl 视为过期。
type TTLCache struct {
	ttl time.Duration

	mu      sync.RWMutex
	entries map[string]cacheEntry
	now     func() time.Time
}

func NewTTLCache(ttl time.Duration) *TTLCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &TTLCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// Get 返回缓存值与新鲜标记；不存在时返回 (nil, false)。
// 过期条目仍返回旧值（fresh=false），供"上游失败时回退旧数据"使用。
func (c *TTLCache) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	return e.value, c.now().Sub(e.storedAt) < c.ttl
}

func (c *TTLCache) Put(key string, value any) {
	c.mu.Lock()
	c.entries[key] = cacheEntry{value: value, storedAt: c.now()}
	c.mu.Unlock()
}
