package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/couchcryptid/atmosfault-service/internal/domain"
)

// TrackingCache keeps provider payloads in a map keyed by external id.
type TrackingCache struct {
	mu      sync.RWMutex
	records map[string]domain.CachedTrackingRecord
}

// NewTrackingCache returns an empty cache.
func NewTrackingCache() *TrackingCache {
	return &TrackingCache{records: make(map[string]domain.CachedTrackingRecord)}
}

// Get returns a copy of the record for externalID, or nil if absent.
func (c *TrackingCache) Get(_ context.Context, externalID string) (*domain.CachedTrackingRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rec, ok := c.records[externalID]
	if !ok {
		return nil, nil
	}
	rec.Payload = slices.Clone(rec.Payload)
	return &rec, nil
}

// Upsert stores rec, keeping CreatedAt from any existing record.
func (c *TrackingCache) Upsert(_ context.Context, rec domain.CachedTrackingRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.records[rec.ExternalID]; ok {
		rec.CreatedAt = existing.CreatedAt
	} else if rec.CreatedAt.IsZero() {
		rec.CreatedAt = rec.RefreshedAt
	}
	rec.Payload = slices.Clone(rec.Payload)
	c.records[rec.ExternalID] = rec
	return nil
}

// DeleteRefreshedBefore removes records refreshed strictly before cutoff.
func (c *TrackingCache) DeleteRefreshedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var n int64
	for id, rec := range c.records {
		if rec.RefreshedAt.Before(cutoff) {
			delete(c.records, id)
			n++
		}
	}
	return n, nil
}

// Ping always succeeds.
func (c *TrackingCache) Ping(context.Context) error { return nil }
