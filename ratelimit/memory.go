package ratelimit

import (
	"time"

	cache "github.com/patrickmn/go-cache"
)

// MemoryStore is the in-process CounterStore, backed by a TTL cache.
// Buckets expire on their own; the janitor sweeps leftovers.
type MemoryStore struct {
	c *cache.Cache
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{c: cache.New(time.Minute, 5*time.Minute)}
}

func (m *MemoryStore) Get(key string) (int, bool) {
	v, ok := m.c.Get(key)
	if !ok {
		return 0, false
	}
	n, ok := v.(int)
	return n, ok
}

func (m *MemoryStore) Put(key string, n int, ttl time.Duration) {
	m.c.Set(key, n, ttl)
}
