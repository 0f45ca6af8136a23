package cache

import (
	"container/list"
	"sync"
	"time"
)

type languageEntry struct {
	key       string
	languages []string
	expiresAt time.Time
}

// LanguageCache remembers a conversation's resolved target-language set
// for a bounded time, so repeated fanout to the same conversation does not
// re-hit the Store on every message. Entries expire after a fixed TTL
// (default 5 minutes) and the cache itself is capped at 100 conversations
// (spec §4.7), evicting the oldest entry by insertion order on overflow —
// the same container/list+map pattern as orchestrator.ProcessedTaskSet and
// cache.TranslationCache, rather than Go's randomized map iteration.
type LanguageCache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	entries  map[string]*list.Element
	order    *list.List // front = most recently inserted, back = oldest
}

// NewLanguageCache builds a cache with the given capacity and TTL. Zero
// values default to the spec's named bounds: 100 entries, 5 minutes.
func NewLanguageCache(capacity int, ttl time.Duration) *LanguageCache {
	if capacity <= 0 {
		capacity = 100
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &LanguageCache{
		capacity: capacity,
		ttl:      ttl,
		entries:  make(map[string]*list.Element, capacity),
		order:    list.New(),
	}
}

// Get returns the cached target-language set for a conversation key, if
// present and not yet expired. An expired entry is removed on read.
func (c *LanguageCache) Get(conversationKey string) ([]string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[conversationKey]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*languageEntry)
	if time.Now().After(entry.expiresAt) {
		c.removeElement(el)
		return nil, false
	}
	return entry.languages, true
}

// Has reports whether a conversation key is cached and unexpired, without
// removing it if expired.
func (c *LanguageCache) Has(conversationKey string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[conversationKey]
	if !ok {
		return false
	}
	return !time.Now().After(el.Value.(*languageEntry).expiresAt)
}

// Set stores a conversation's resolved target-language set, evicting the
// oldest entry (by insertion order) first if the cache is already full.
func (c *LanguageCache) Set(conversationKey string, languages []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, exists := c.entries[conversationKey]; exists {
		entry := el.Value.(*languageEntry)
		entry.languages = languages
		entry.expiresAt = time.Now().Add(c.ttl)
		c.order.MoveToFront(el)
		return
	}

	if c.order.Len() >= c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.removeElement(oldest)
		}
	}

	el := c.order.PushFront(&languageEntry{
		key:       conversationKey,
		languages: languages,
		expiresAt: time.Now().Add(c.ttl),
	})
	c.entries[conversationKey] = el
}

// Delete drops a conversation's cached language set immediately, used
// when a member joins/leaves or changes their preferred language.
func (c *LanguageCache) Delete(conversationKey string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[conversationKey]; ok {
		c.removeElement(el)
	}
}

// Invalidate is an alias for Delete, kept for call sites that already
// speak in terms of invalidation rather than the spec's "delete".
func (c *LanguageCache) Invalidate(conversationKey string) {
	c.Delete(conversationKey)
}

// Clear empties the cache, used in tests and on conversation teardown.
func (c *LanguageCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element, c.capacity)
	c.order.Init()
}

// CleanExpired sweeps every entry and removes those past their TTL,
// returning the number removed. Unlike Get/Has this does not wait for a
// lookup to reclaim expired memory, for callers that sweep periodically.
func (c *LanguageCache) CleanExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	removed := 0
	for el := c.order.Back(); el != nil; {
		prev := el.Prev()
		if now.After(el.Value.(*languageEntry).expiresAt) {
			c.removeElement(el)
			removed++
		}
		el = prev
	}
	return removed
}

// Size returns the current number of cached conversations, spec §4.7's
// "size" operation.
func (c *LanguageCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Len is an alias for Size, kept for existing callers.
func (c *LanguageCache) Len() int {
	return c.Size()
}

// removeElement drops a list element and its map entry together. Callers
// must hold c.mu.
func (c *LanguageCache) removeElement(el *list.Element) {
	c.order.Remove(el)
	delete(c.entries, el.Value.(*languageEntry).key)
}
