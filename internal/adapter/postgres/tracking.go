package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/couchcryptid/atmosfault-service/internal/domain"
)

// TrackingCache persists provider payloads in the tracking_cache table.
type TrackingCache struct {
	db *sql.DB
}

// NewTrackingCache returns a tracking cache backed by db.
func NewTrackingCache(db *sql.DB) *TrackingCache {
	return &TrackingCache{db: db}
}

// Get returns the cached record for externalID, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (c *TrackingCache) Get(ctx context.Context, externalID string) (*domain.CachedTrackingRecord, error) {
	rec := domain.CachedTrackingRecord{ExternalID: externalID}
	err := c.db.QueryRowContext(ctx,
		`SELECT payload, refreshed_at, created_at FROM tracking_cache WHERE external_id = $1`,
		externalID).Scan(&rec.Payload, &rec.RefreshedAt, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get tracking %s: %w", externalID, err)
	}
	rec.RefreshedAt = rec.RefreshedAt.UTC()
	rec.CreatedAt = rec.CreatedAt.UTC()
	return &rec, nil
}

// Upsert inserts the record or replaces its payload and refresh time, keeping created_at.
func (c *TrackingCache) Upsert(ctx context.Context, rec domain.CachedTrackingRecord) error {
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = rec.RefreshedAt
	}
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO tracking_cache (external_id, payload, refreshed_at, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (external_id) DO UPDATE SET
			payload = EXCLUDED.payload,
			refreshed_at = EXCLUDED.refreshed_at`,
		rec.ExternalID, rec.Payload, rec.RefreshedAt.UTC(), createdAt.UTC())
	if err != nil {
		return fmt.Errorf("upsert tracking %s: %w", rec.ExternalID, err)
	}
	return nil
}

// DeleteRefreshedBefore removes records last refreshed before cutoff.
func (c *TrackingCache) DeleteRefreshedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM tracking_cache WHERE refreshed_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete tracking records: %w", err)
	}
	return res.RowsAffected()
}

// Ping checks database connectivity.
func (c *TrackingCache) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}
