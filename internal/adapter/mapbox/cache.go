package mapbox

import (
	"container/list"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/couchcryptid/atmosfault-service/internal/domain"
	"github.com/couchcryptid/atmosfault-service/internal/observability"
	"github.com/jonboulle/clockwork"
)

// CachedGeocoder wraps a Geocoder with a size- and TTL-bounded LRU cache.
// Successful lookups are cached whether or not they matched anything;
// errors are never cached.
type CachedGeocoder struct {
	inner   domain.Geocoder
	cache   *lruCache
	metrics *observability.Metrics
}

// NewCachedGeocoder creates a cache decorator around a geocoder.
func NewCachedGeocoder(inner domain.Geocoder, maxEntries int, ttl time.Duration, clock clockwork.Clock, metrics *observability.Metrics) *CachedGeocoder {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &CachedGeocoder{
		inner:   inner,
		cache:   newLRUCache(maxEntries, ttl, clock),
		metrics: metrics,
	}
}

func (c *CachedGeocoder) ForwardGeocode(ctx context.Context, city, country string) (domain.GeocodingResult, error) {
	key := fmt.Sprintf("fwd:%s|%s", strings.ToUpper(strings.TrimSpace(city)), NormalizeCountry(country))
	if result, ok := c.cache.get(key); ok {
		c.metrics.GeocodeCache.WithLabelValues("forward", "hit").Inc()
		return result, nil
	}
	c.metrics.GeocodeCache.WithLabelValues("forward", "miss").Inc()

	result, err := c.inner.ForwardGeocode(ctx, city, country)
	if err != nil {
		return result, err
	}
	c.cache.put(key, result)
	return result, nil
}

func (c *CachedGeocoder) ReverseGeocode(ctx context.Context, lat, lon float64) (domain.GeocodingResult, error) {
	key := fmt.Sprintf("rev:%.4f,%.4f", lat, lon)
	if result, ok := c.cache.get(key); ok {
		c.metrics.GeocodeCache.WithLabelValues("reverse", "hit").Inc()
		return result, nil
	}
	c.metrics.GeocodeCache.WithLabelValues("reverse", "miss").Inc()

	result, err := c.inner.ReverseGeocode(ctx, lat, lon)
	if err != nil {
		return result, err
	}
	c.cache.put(key, result)
	return result, nil
}

// Len returns the number of cached entries, including expired ones not yet evicted.
func (c *CachedGeocoder) Len() int {
	return c.cache.len()
}

// lruCache is a mutex-guarded LRU of GeocodingResults with per-entry expiry.
// The front of order is the most recently used key.
type lruCache struct {
	mu         sync.Mutex
	maxEntries int
	ttl        time.Duration
	clock      clockwork.Clock
	items      map[string]*list.Element
	order      *list.List
}

type cacheItem struct {
	key       string
	value     domain.GeocodingResult
	expiresAt time.Time
}

func newLRUCache(maxEntries int, ttl time.Duration, clock clockwork.Clock) *lruCache {
	return &lruCache{
		maxEntries: max(maxEntries, 1),
		ttl:        ttl,
		clock:      clock,
		items:      make(map[string]*list.Element),
		order:      list.New(),
	}
}

func (c *lruCache) get(key string) (domain.GeocodingResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return domain.GeocodingResult{}, false
	}
	item := el.Value.(*cacheItem)
	if c.expired(item) {
		c.drop(el)
		return domain.GeocodingResult{}, false
	}
	c.order.MoveToFront(el)
	return item.value, true
}

func (c *lruCache) put(key string, value domain.GeocodingResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.clock.Now().Add(c.ttl)
	if el, ok := c.items[key]; ok {
		item := el.Value.(*cacheItem)
		item.value, item.expiresAt = value, expiresAt
		c.order.MoveToFront(el)
		return
	}

	c.items[key] = c.order.PushFront(&cacheItem{key: key, value: value, expiresAt: expiresAt})
	for c.order.Len() > c.maxEntries {
		c.drop(c.order.Back())
	}
}

func (c *lruCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// expired treats a zero ttl as no expiry.
func (c *lruCache) expired(item *cacheItem) bool {
	return c.ttl > 0 && !c.clock.Now().Before(item.expiresAt)
}

func (c *lruCache) drop(el *list.Element) {
	delete(c.items, el.Value.(*cacheItem).key)
	c.order.Remove(el)
}
