package services

import (
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"

	"market-search/models"
)

// DefaultFreshness is how long a region response is reused.
const DefaultFreshness = 60 * time.Second

type cacheEntry struct {
	items     []*models.Listing
	fetchedAt time.Time
}

// ResponseCache holds the most recent listings per (region, keyword, filter).
// Freshness is judged against the injected clock; the store TTL only bounds
// memory.
type ResponseCache struct {
	store  *ristretto.Cache
	window time.Duration
	now    func() time.Time
}

// NewResponseCache creates a cache with the given freshness window. now may be
// nil.
func NewResponseCache(window time.Duration, now func() time.Time) (*ResponseCache, error) {
	if window <= 0 {
		window = DefaultFreshness
	}
	if now == nil {
		now = time.Now
	}
	store, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e4,
		MaxCost:     1e3,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create response cache: %w", err)
	}
	return &ResponseCache{store: store, window: window, now: now}, nil
}

// CacheKey identifies one upstream search.
func CacheKey(regionID models.ID, keyword string, filter models.SearchFilter) string {
	return fmt.Sprintf("%s|%s|%t", regionID, keyword, filter.OnlyOnSale)
}

// Window returns the freshness window.
func (c *ResponseCache) Window() time.Duration { return c.window }

// Get returns the cached items and the freshness left when the entry is
// younger than the window. An entry exactly as old as the window is expired.
func (c *ResponseCache) Get(key string) ([]*models.Listing, time.Duration, bool) {
	v, ok := c.store.Get(key)
	if !ok {
		return nil, 0, false
	}
	entry, ok := v.(*cacheEntry)
	if !ok {
		return nil, 0, false
	}
	age := c.now().Sub(entry.fetchedAt)
	if age >= c.window {
		c.store.Del(key)
		return nil, 0, false
	}
	return entry.items, c.window - age, true
}

// Fresh reports whether key would be served from the cache.
func (c *ResponseCache) Fresh(key string) bool {
	_, _, ok := c.Get(key)
	return ok
}

// Put stores items fetched now. The write is visible to Get on return.
func (c *ResponseCache) Put(key string, items []*models.Listing) {
	entry := &cacheEntry{items: items, fetchedAt: c.now()}
	// Keep the entry around a little past the window so Get decides expiry.
	c.store.SetWithTTL(key, entry, 1, 2*c.window)
	c.store.Wait()
}

// Close releases the store's background goroutines.
func (c *ResponseCache) Close() {
	c.store.Close()
}
