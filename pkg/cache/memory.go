package cache

import (
    "context"
    "sync"
    "time"
)

// MemoryCache in-process cache used in tests and single-node setups
type MemoryCache struct {
    mu      sync.RWMutex
    entries map[string]memoryEntry
}

type memoryEntry struct {
    value     []byte
    expiresAt time.Time
}

func NewMemoryCache() *MemoryCache {
    return &MemoryCache{entries: make(map[string]memoryEntry)}
}

func (c *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
    buf := make([]byte, len(value))
    copy(buf, value)

    var expiresAt time.Time
    if ttl > 0 {
        expiresAt = time.Now().Add(ttl)
    }

    c.mu.Lock()
    c.entries[key] = memoryEntry{value: buf, expiresAt: expiresAt}
    c.mu.Unlock()
    return nil
}

func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
    c.mu.RLock()
    entry, ok := c.entries[key]
    c.mu.RUnlock()

    if !ok {
        return nil, ErrMiss
    }
    if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
        c.mu.Lock()
        delete(c.entries, key)
        c.mu.Unlock()
        return nil, ErrMiss
    }

    buf := make([]byte, len(entry.value))
    copy(buf, entry.value)
    return buf, nil
}

func (c *MemoryCache) Delete(ctx context.Context, key string) error {
    c.mu.Lock()
    delete(c.entries, key)
    c.mu.Unlock()
    return nil
}
