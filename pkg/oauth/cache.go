package oauth

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"
)

// CacheManager persists the entities of a CacheRecord. The response handler
// only writes to it; it never reads back during response handling.
type CacheManager interface {
	// SaveCacheRecord stores the account and credentials of record.
	SaveCacheRecord(ctx context.Context, record *CacheRecord) error
}

// cacheEntry represents a single cached item with expiration.
type cacheEntry[V any] struct {
	value     V
	expiresAt time.Time
	key       string
}

// lruCache implements an in-memory LRU cache with optional per-entry TTL.
// A zero expiresAt never expires.
type lruCache[V any] struct {
	mu          sync.Mutex
	maxSize     int
	items       map[string]*list.Element
	lruList     *list.List
	stopCleanup chan struct{}
	cleanupOnce sync.Once
}

// newLRUCache creates a new LRU cache with the specified maximum size.
func newLRUCache[V any](maxSize int) *lruCache[V] {
	if maxSize <= 0 {
		maxSize = 1000
	}

	cache := &lruCache[V]{
		maxSize:     maxSize,
		items:       make(map[string]*list.Element),
		lruList:     list.New(),
		stopCleanup: make(chan struct{}),
	}

	go cache.cleanupExpired()

	return cache
}

// Get retrieves a value by key.
func (c *lruCache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	elem, ok := c.items[key]
	if !ok {
		return zero, false
	}

	entry := elem.Value.(*cacheEntry[V])
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		c.removeElement(elem)
		return zero, false
	}

	c.lruList.MoveToFront(elem)
	return entry.value, true
}

// Set stores a value. A non-positive ttl keeps the entry until it is evicted.
func (c *lruCache[V]) Set(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}

	if elem, ok := c.items[key]; ok {
		entry := elem.Value.(*cacheEntry[V])
		entry.value = value
		entry.expiresAt = expiresAt
		c.lruList.MoveToFront(elem)
		return
	}

	elem := c.lruList.PushFront(&cacheEntry[V]{
		value:     value,
		expiresAt: expiresAt,
		key:       key,
	})
	c.items[key] = elem

	if c.lruList.Len() > c.maxSize {
		if oldest := c.lruList.Back(); oldest != nil {
			c.removeElement(oldest)
		}
	}
}

// Delete removes a key from the cache.
func (c *lruCache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.removeElement(elem)
	}
}

// Len returns the number of entries, including expired ones not yet swept.
func (c *lruCache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lruList.Len()
}

// Clear removes all entries.
func (c *lruCache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*list.Element)
	c.lruList.Init()
}

// removeElement must be called with the lock held.
func (c *lruCache[V]) removeElement(elem *list.Element) {
	entry := elem.Value.(*cacheEntry[V])
	delete(c.items, entry.key)
	c.lruList.Remove(elem)
}

func (c *lruCache[V]) cleanupExpired() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.removeExpiredEntries()
		case <-c.stopCleanup:
			return
		}
	}
}

func (c *lruCache[V]) removeExpiredEntries() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	var toRemove []*list.Element
	for elem := c.lruList.Front(); elem != nil; elem = elem.Next() {
		entry := elem.Value.(*cacheEntry[V])
		if !entry.expiresAt.IsZero() && now.After(entry.expiresAt) {
			toRemove = append(toRemove, elem)
		}
	}
	for _, elem := range toRemove {
		c.removeElement(elem)
	}
}

// Close stops the cleanup goroutine.
func (c *lruCache[V]) Close() {
	c.cleanupOnce.Do(func() {
		close(c.stopCleanup)
	})
}

// MemoryCache is an in-memory CacheManager. Accounts and credentials are kept
// in separate LRU maps keyed by their cache keys. Credentials expire with the
// configured TTL or, for access tokens, at their own expiry if sooner.
type MemoryCache struct {
	accounts    *lruCache[*AccountEntity]
	credentials *lruCache[Credential]
	ttl         time.Duration
}

// NewMemoryCache creates a MemoryCache from cfg. A zero TTL keeps entries
// until they are evicted by size.
func NewMemoryCache(cfg CacheConfig) *MemoryCache {
	return &MemoryCache{
		accounts:    newLRUCache[*AccountEntity](cfg.MaxSize),
		credentials: newLRUCache[Credential](cfg.MaxSize),
		ttl:         cfg.TTL,
	}
}

// SaveCacheRecord stores every non-nil entity of record.
func (m *MemoryCache) SaveCacheRecord(ctx context.Context, record *CacheRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if record == nil {
		return fmt.Errorf("%w: cache record is nil", ErrInvalidConfiguration)
	}

	if record.Account != nil {
		m.accounts.Set(record.Account.CacheKey(), record.Account, m.ttl)
	}
	if record.IDToken != nil {
		m.credentials.Set(record.IDToken.CacheKey(), record.IDToken, m.ttl)
	}
	if record.AccessToken != nil {
		m.credentials.Set(record.AccessToken.CacheKey(), record.AccessToken, m.accessTokenTTL(record.AccessToken))
	}
	if record.RefreshToken != nil {
		m.credentials.Set(record.RefreshToken.CacheKey(), record.RefreshToken, m.ttl)
	}
	return nil
}

func (m *MemoryCache) accessTokenTTL(at *AccessTokenEntity) time.Duration {
	if at.ExpiresOn.IsZero() {
		return m.ttl
	}
	remaining := time.Until(at.ExpiresOn)
	if remaining <= 0 {
		// Already expired; keep it for the shortest possible time.
		return time.Nanosecond
	}
	if m.ttl > 0 && m.ttl < remaining {
		return m.ttl
	}
	return remaining
}

// Account returns the cached account for key.
func (m *MemoryCache) Account(key string) (*AccountEntity, bool) {
	return m.accounts.Get(key)
}

// Credential returns the cached credential for key.
func (m *MemoryCache) Credential(key string) (Credential, bool) {
	return m.credentials.Get(key)
}

// Len returns the number of cached accounts and credentials.
func (m *MemoryCache) Len() int {
	return m.accounts.Len() + m.credentials.Len()
}

// Clear removes every cached entity.
func (m *MemoryCache) Clear() {
	m.accounts.Clear()
	m.credentials.Clear()
}

// Close stops background cleanup.
func (m *MemoryCache) Close() {
	m.accounts.Close()
	m.credentials.Close()
}

// noopCache discards records (caching disabled).
type noopCache struct{}

func (noopCache) SaveCacheRecord(ctx context.Context, record *CacheRecord) error { return nil }
