package domain

import (
	"context"
	"time"
)

// TelemetryFeed serves the hourly telemetry shards.
type TelemetryFeed interface {
	// FetchBatch returns the well-formed elements of one shard and the number of
	// elements that were dropped as malformed.
	FetchBatch(ctx context.Context, batchIndex int) (samples []RawSample, skipped int, err error)
}

// TelemetryStore persists samples keyed by (BatchIndex, Ordinal).
type TelemetryStore interface {
	// UpsertSamples writes one chunk atomically. Existing keys have their
	// position, altitude and ObservedAt overwritten; their ID is kept.
	UpsertSamples(ctx context.Context, samples []TelemetrySample) error

	// FindInBox returns at most limit samples whose coordinates fall inside box.
	FindInBox(ctx context.Context, box BoundingBox, limit int) ([]TelemetrySample, error)

	// ListByOrdinal returns samples sharing an ordinal across batches, ordered by batch index.
	ListByOrdinal(ctx context.Context, ordinal, limit int) ([]TelemetrySample, error)

	// DeleteObservedBefore removes samples last observed before cutoff.
	DeleteObservedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// TrackingCache persists provider payloads keyed by external id.
type TrackingCache interface {
	// Get returns the record for id, or nil if none exists.
	// It returns an error only for storage failures, not for missing rows.
	Get(ctx context.Context, externalID string) (*CachedTrackingRecord, error)

	// Upsert inserts or replaces the record, keeping the original CreatedAt.
	Upsert(ctx context.Context, rec CachedTrackingRecord) error

	// DeleteRefreshedBefore removes records last refreshed before cutoff.
	DeleteRefreshedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// TrackingProvider performs live tracking lookups.
type TrackingProvider interface {
	// Track returns the validated payload for trackingNumber. Unknown numbers
	// yield ErrNotFound; transport and payload failures ErrUpstreamUnavailable.
	Track(ctx context.Context, trackingNumber string) (*ProviderResponse, error)
}

// WeatherProvider looks up current conditions at a coordinate.
type WeatherProvider interface {
	CurrentWeather(ctx context.Context, lat, lon float64) (*Weather, error)
}

// SyncEventPublisher announces ingestion outcomes. Callers treat it as best-effort.
type SyncEventPublisher interface {
	PublishSyncEvent(ctx context.Context, event SyncEvent) error
}

// Pinger is implemented by stores that can report connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}
