package llm

import (
	"strings"
	"sync"
	"time"

	"github.com/Veraticus/finbot/internal/model"
)

type cacheEntry struct {
	expiry time.Time
	intent model.Intent
}

// intentCache remembers recent classifications of identical messages.
// Expired entries are dropped on access and when the cache grows past
// maxEntries.
type intentCache struct {
	entries    map[string]cacheEntry
	now        func() time.Time
	ttl        time.Duration
	maxEntries int
	mu         sync.Mutex
}

func newIntentCache(ttl time.Duration) *intentCache {
	if ttl == 0 {
		ttl = 5 * time.Minute
	}

	return &intentCache{
		entries:    make(map[string]cacheEntry),
		now:        time.Now,
		ttl:        ttl,
		maxEntries: 1024,
	}
}

// cacheKey normalizes message text so trivially different spellings share
// an entry.
func cacheKey(text string) string {
	return strings.ToLower(strings.Join(strings.Fields(text), " "))
}

func (c *intentCache) get(key string) (model.Intent, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return model.Intent{}, false
	}
	if c.now().After(entry.expiry) {
		delete(c.entries, key)
		return model.Intent{}, false
	}
	return entry.intent, true
}

func (c *intentCache) set(key string, intent model.Intent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if len(c.entries) >= c.maxEntries {
		for k, entry := range c.entries {
			if now.After(entry.expiry) {
				delete(c.entries, k)
			}
		}
	}
	if len(c.entries) >= c.maxEntries {
		c.entries = make(map[string]cacheEntry)
	}

	c.entries[key] = cacheEntry{
		intent: intent,
		expiry: now.Add(c.ttl),
	}
}

func (c *intentCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
