package dedup

import (
	"sync"
	"time"

	"github.com/bits-and-blooms/bitset"
	"github.com/twmb/murmur3"
)

// Cache 有界的时间窗去重缓存
// kafka 投递语义是 at-least-once，推给 socket 前用它压成 at-most-once；
// 作为依赖显式注入，不做包级单例，测试各自持有独立实例
//
// 布隆位图做快速前置判断（可能见过才查表），精确判断靠带过期时间的表；
// 超出容量时按插入顺序淘汰最老的条目
type Cache struct {
	mu       sync.Mutex
	ttl      time.Duration
	capacity int

	bloom   *bitset.BitSet
	entries map[string]time.Time
	order   []string // 插入顺序，用于容量淘汰

	now func() time.Time // 测试注入
}

// New 创建去重缓存；capacity <= 0 默认 4096，ttl <= 0 默认 30 秒
func New(capacity int, ttl time.Duration) *Cache {
	if capacity <= 0 {
		capacity = 4096
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Cache{
		ttl:      ttl,
		capacity: capacity,
		bloom:    bitset.New(uint(capacity) * 16),
		entries:  make(map[string]time.Time, capacity),
		now:      time.Now,
	}
}

// bloomPositions 两个独立的 murmur3 哈希位
func (c *Cache) bloomPositions(key string) (uint, uint) {
	h1, h2 := murmur3.SeedSum64(1, []byte(key)), murmur3.SeedSum64(2, []byte(key))
	n := uint(c.bloom.Len())
	return uint(h1) % n, uint(h2) % n
}

// Seen 判断 key 是否在窗口内出现过；未出现则记录并返回 false
func (c *Cache) Seen(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	p1, p2 := c.bloomPositions(key)

	if c.bloom.Test(p1) && c.bloom.Test(p2) {
		if expiry, ok := c.entries[key]; ok && now.Before(expiry) {
			return true
		}
	}

	c.evictLocked(now)
	c.entries[key] = now.Add(c.ttl)
	c.order = append(c.order, key)
	c.bloom.Set(p1)
	c.bloom.Set(p2)
	return false
}

// evictLocked 清理过期条目；仍超容量则淘汰最老条目
// 布隆位图不支持删除，条目批量换代时整体重建
func (c *Cache) evictLocked(now time.Time) {
	if len(c.entries) < c.capacity {
		return
	}

	kept := c.order[:0]
	for _, key := range c.order {
		expiry, ok := c.entries[key]
		if !ok || !now.Before(expiry) {
			delete(c.entries, key)
			continue
		}
		kept = append(kept, key)
	}
	c.order = kept

	for len(c.entries) >= c.capacity && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}

	c.bloom.ClearAll()
	for key := range c.entries {
		p1, p2 := c.bloomPositions(key)
		c.bloom.Set(p1)
		c.bloom.Set(p2)
	}
}

// Len 当前记录的条目数
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
