package mapbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/couchcryptid/atmosfault-service/internal/domain"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mock for cache tests ---

type countingGeocoder struct {
	forwardCalls int
	reverseCalls int
	result       domain.GeocodingResult
	err          error
}

func (m *countingGeocoder) ForwardGeocode(_ context.Context, _, _ string) (domain.GeocodingResult, error) {
	m.forwardCalls++
	return m.result, m.err
}

func (m *countingGeocoder) ReverseGeocode(_ context.Context, _, _ float64) (domain.GeocodingResult, error) {
	m.reverseCalls++
	return m.result, m.err
}

var cacheEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestCache(inner domain.Geocoder, size int, ttl time.Duration) (*CachedGeocoder, *clockwork.FakeClock) {
	clock := clockwork.NewFakeClockAt(cacheEpoch)
	return NewCachedGeocoder(inner, size, ttl, clock, testMetrics()), clock
}

// --- CachedGeocoder tests ---

func TestCachedGeocoder_ForwardCacheHit(t *testing.T) {
	inner := &countingGeocoder{
		result: domain.GeocodingResult{Lat: 51.3, Lon: 12.4, PlaceName: "Leipzig", FormattedAddress: "Leipzig, Germany"},
	}
	cached, _ := newTestCache(inner, 10, 30*time.Minute)

	r1, err := cached.ForwardGeocode(context.Background(), "LEIPZIG", "DE")
	require.NoError(t, err)
	assert.Equal(t, "Leipzig", r1.PlaceName)

	r2, err := cached.ForwardGeocode(context.Background(), "Leipzig", "Germany")
	require.NoError(t, err)
	assert.Equal(t, "Leipzig", r2.PlaceName)

	assert.Equal(t, 1, inner.forwardCalls, "should only call inner once")
	assert.Equal(t, 1.0, testutil.ToFloat64(cached.metrics.GeocodeCache.WithLabelValues("forward", "hit")))
}

func TestCachedGeocoder_ReverseCacheHit(t *testing.T) {
	inner := &countingGeocoder{
		result: domain.GeocodingResult{FormattedAddress: "Austin, TX"},
	}
	cached, _ := newTestCache(inner, 10, 30*time.Minute)

	_, err := cached.ReverseGeocode(context.Background(), 30.2672, -97.7431)
	require.NoError(t, err)

	_, err = cached.ReverseGeocode(context.Background(), 30.26721, -97.74312)
	require.NoError(t, err)

	assert.Equal(t, 1, inner.reverseCalls, "should only call inner once")
}

func TestCachedGeocoder_ExpiresAfterTTL(t *testing.T) {
	inner := &countingGeocoder{result: domain.GeocodingResult{FormattedAddress: "Paris, France"}}
	cached, clock := newTestCache(inner, 10, 30*time.Minute)

	_, _ = cached.ForwardGeocode(context.Background(), "PARIS", "FR")
	clock.Advance(29 * time.Minute)
	_, _ = cached.ForwardGeocode(context.Background(), "PARIS", "FR")
	assert.Equal(t, 1, inner.forwardCalls)

	clock.Advance(time.Minute)
	_, _ = cached.ForwardGeocode(context.Background(), "PARIS", "FR")
	assert.Equal(t, 2, inner.forwardCalls)
}

func TestCachedGeocoder_CachesMissesNotErrors(t *testing.T) {
	inner := &countingGeocoder{}
	cached, _ := newTestCache(inner, 10, time.Hour)

	r, err := cached.ForwardGeocode(context.Background(), "NOWHERE", "")
	require.NoError(t, err)
	assert.False(t, r.Found())
	_, _ = cached.ForwardGeocode(context.Background(), "NOWHERE", "")
	assert.Equal(t, 1, inner.forwardCalls, "confirmed miss should be cached")

	inner.err = errors.New("boom")
	_, err = cached.ForwardGeocode(context.Background(), "ELSEWHERE", "")
	require.Error(t, err)
	inner.err = nil
	_, err = cached.ForwardGeocode(context.Background(), "ELSEWHERE", "")
	require.NoError(t, err)
	assert.Equal(t, 3, inner.forwardCalls, "errors must not be cached")
}

func TestCachedGeocoder_DifferentKeysMiss(t *testing.T) {
	inner := &countingGeocoder{
		result: domain.GeocodingResult{PlaceName: "Place", FormattedAddress: "Place"},
	}
	cached, _ := newTestCache(inner, 10, time.Hour)

	_, _ = cached.ForwardGeocode(context.Background(), "EAST MIDLANDS", "GB")
	_, _ = cached.ForwardGeocode(context.Background(), "EAST MIDLANDS", "US")

	assert.Equal(t, 2, inner.forwardCalls)
}

// --- LRU cache unit tests ---

func newTestLRU(size int) (*lruCache, *clockwork.FakeClock) {
	clock := clockwork.NewFakeClockAt(cacheEpoch)
	return newLRUCache(size, time.Hour, clock), clock
}

func TestLRUCache_BasicGetPut(t *testing.T) {
	c, _ := newTestLRU(3)

	c.put("a", domain.GeocodingResult{PlaceName: "A"})
	c.put("b", domain.GeocodingResult{PlaceName: "B"})

	result, ok := c.get("a")
	assert.True(t, ok)
	assert.Equal(t, "A", result.PlaceName)

	_, ok = c.get("missing")
	assert.False(t, ok)
}

func TestLRUCache_Eviction(t *testing.T) {
	c, _ := newTestLRU(2)

	c.put("a", domain.GeocodingResult{PlaceName: "A"})
	c.put("b", domain.GeocodingResult{PlaceName: "B"})
	c.put("c", domain.GeocodingResult{PlaceName: "C"}) // evicts "a"

	_, ok := c.get("a")
	assert.False(t, ok, "a should have been evicted")

	result, ok := c.get("b")
	assert.True(t, ok)
	assert.Equal(t, "B", result.PlaceName)

	result, ok = c.get("c")
	assert.True(t, ok)
	assert.Equal(t, "C", result.PlaceName)
}

func TestLRUCache_AccessPromotesEntry(t *testing.T) {
	c, _ := newTestLRU(2)

	c.put("a", domain.GeocodingResult{PlaceName: "A"})
	c.put("b", domain.GeocodingResult{PlaceName: "B"})

	// Access "a" to promote it
	c.get("a")

	// Insert "c": should evict "b" (LRU), not "a"
	c.put("c", domain.GeocodingResult{PlaceName: "C"})

	_, ok := c.get("a")
	assert.True(t, ok, "a was accessed recently, should not be evicted")

	_, ok = c.get("b")
	assert.False(t, ok, "b should have been evicted")
}

func TestLRUCache_UpdateExistingRefreshesExpiry(t *testing.T) {
	c, clock := newTestLRU(2)

	c.put("a", domain.GeocodingResult{PlaceName: "A1"})
	clock.Advance(50 * time.Minute)
	c.put("a", domain.GeocodingResult{PlaceName: "A2"})
	clock.Advance(50 * time.Minute)

	result, ok := c.get("a")
	assert.True(t, ok)
	assert.Equal(t, "A2", result.PlaceName)
}

func TestLRUCache_ExpiredEntryIsDropped(t *testing.T) {
	c, clock := newTestLRU(2)

	c.put("a", domain.GeocodingResult{PlaceName: "A"})
	clock.Advance(time.Hour)

	_, ok := c.get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.len())
}
