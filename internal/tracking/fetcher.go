// Package tracking answers tracking lookups. Fetcher is the cache-aside layer
// in front of the tracking provider; Assembler turns provider payloads and
// telemetry samples into a TrackingResponse with best-effort enrichment.
package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/couchcryptid/atmosfault-service/internal/domain"
	"github.com/couchcryptid/atmosfault-service/internal/observability"
)

const (
	// DefaultCacheTTL is how long a cached payload is served without a live call.
	DefaultCacheTTL = 5 * time.Minute

	// DefaultProviderTimeout bounds a live provider call when none is configured.
	DefaultProviderTimeout = 10 * time.Second
)

// Fetcher serves provider payloads from the tracking cache while they are
// fresh and refreshes them from the provider otherwise. Stale data is never
// returned when the live call fails.
type Fetcher struct {
	cache    domain.TrackingCache
	provider domain.TrackingProvider
	logger   *slog.Logger
	metrics  *observability.Metrics
	clock    clockwork.Clock
	ttl      time.Duration
	timeout  time.Duration

	inflight singleflight.Group
}

// NewFetcher creates a Fetcher. A non-positive ttl uses DefaultCacheTTL and a
// non-positive timeout uses DefaultProviderTimeout.
func NewFetcher(cache domain.TrackingCache, provider domain.TrackingProvider, logger *slog.Logger, metrics *observability.Metrics, ttl, timeout time.Duration, clock clockwork.Clock) *Fetcher {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if timeout <= 0 {
		timeout = DefaultProviderTimeout
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Fetcher{
		cache:    cache,
		provider: provider,
		logger:   logger,
		metrics:  metrics,
		clock:    clock,
		ttl:      ttl,
		timeout:  timeout,
	}
}

// Get returns the payload for externalID. Errors wrap ErrNotFound when the
// provider does not know the id, ErrRateLimited when it throttled us and
// ErrUpstreamUnavailable when it could not be reached or answered with garbage.
//
// Concurrent misses for one id share a single provider call. That call is
// detached from any caller's cancellation and bounded by the provider
// timeout; a caller whose ctx ends stops waiting without affecting the others.
func (f *Fetcher) Get(ctx context.Context, externalID string) (*domain.ProviderResponse, error) {
	if resp, ok := f.fromCache(ctx, externalID); ok {
		return resp, nil
	}

	flight := f.inflight.DoChan(externalID, func() (any, error) {
		return f.fetchLive(context.WithoutCancel(ctx), externalID)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-flight:
		if res.Shared {
			f.logger.Debug("joined in-flight provider call", "tracking_number", externalID)
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*domain.ProviderResponse), nil
	}
}

// Cleanup deletes cache records last refreshed more than olderThan ago.
func (f *Fetcher) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := f.clock.Now().Add(-olderThan)
	n, err := f.cache.DeleteRefreshedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("clean tracking cache: %w: %w", domain.ErrStorage, err)
	}
	f.logger.Info("tracking cache cleaned", "deleted", n, "cutoff", cutoff)
	return n, nil
}

func (f *Fetcher) fromCache(ctx context.Context, externalID string) (*domain.ProviderResponse, bool) {
	rec, err := f.cache.Get(ctx, externalID)
	if err != nil {
		f.logger.Warn("tracking cache read failed", "tracking_number", externalID, "error", err)
		f.metrics.TrackingCacheLookups.WithLabelValues("error").Inc()
		return nil, false
	}
	if rec == nil {
		f.metrics.TrackingCacheLookups.WithLabelValues("miss").Inc()
		return nil, false
	}
	if !rec.Fresh(f.clock.Now(), f.ttl) {
		f.metrics.TrackingCacheLookups.WithLabelValues("stale").Inc()
		return nil, false
	}

	resp, err := decodePayload(rec.Payload)
	if err != nil {
		f.logger.Warn("discarding undecodable cached payload", "tracking_number", externalID, "error", err)
		f.metrics.TrackingCacheLookups.WithLabelValues("error").Inc()
		return nil, false
	}
	f.metrics.TrackingCacheLookups.WithLabelValues("hit").Inc()
	return resp, true
}

func (f *Fetcher) fetchLive(ctx context.Context, externalID string) (*domain.ProviderResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	resp, err := f.provider.Track(ctx, externalID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			f.metrics.ProviderCalls.WithLabelValues("not_found").Inc()
		} else {
			f.metrics.ProviderCalls.WithLabelValues("error").Inc()
			f.logger.Warn("provider lookup failed", "tracking_number", externalID, "error", err)
		}
		return nil, err
	}
	if err := resp.Validate(); err != nil {
		f.metrics.ProviderCalls.WithLabelValues("error").Inc()
		return nil, err
	}
	f.metrics.ProviderCalls.WithLabelValues("success").Inc()

	payload, err := json.Marshal(resp)
	if err != nil {
		f.logger.Warn("encode payload for cache", "tracking_number", externalID, "error", err)
		return resp, nil
	}
	rec := domain.CachedTrackingRecord{
		ExternalID:  externalID,
		Payload:     payload,
		RefreshedAt: f.clock.Now(),
	}
	if err := f.cache.Upsert(ctx, rec); err != nil {
		f.logger.Warn("tracking cache write failed", "tracking_number", externalID, "error", err)
	}
	return resp, nil
}

func decodePayload(payload []byte) (*domain.ProviderResponse, error) {
	var resp domain.ProviderResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, fmt.Errorf("decode cached payload: %w", err)
	}
	if err := resp.Validate(); err != nil {
		return nil, err
	}
	return &resp, nil
}
