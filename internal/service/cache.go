package service

import (
	"sync"
	"time"
)

// priceCache is an in-process TTL cache of current prices keyed by ticker.
// It is purely advisory: a miss is always safe and correctness never
// depends on a hit. Lifecycle is tied to process uptime.
type priceCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]priceEntry
}

type priceEntry struct {
	price    float64
	cachedAt time.Time
}

func newPriceCache(ttl time.Duration) *priceCache {
	return &priceCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]priceEntry),
	}
}

// Get returns the cached price for ticker if present and fresh.
func (c *priceCache) Get(ticker string) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[ticker]
	if !ok || c.now().Sub(entry.cachedAt) > c.ttl {
		return 0, false
	}
	return entry.price, true
}

// Set stores a price for ticker.
func (c *priceCache) Set(ticker string, price float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[ticker] = priceEntry{price: price, cachedAt: c.now()}
}
