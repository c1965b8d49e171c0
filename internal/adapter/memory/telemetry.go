// Package memory provides in-process implementations of the telemetry store
// and tracking cache for local runs and tests.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/couchcryptid/atmosfault-service/internal/domain"
)

type sampleKey struct {
	batch   int
	ordinal int
}

// TelemetryStore keeps samples in a map keyed by (BatchIndex, Ordinal).
// It is safe for concurrent use.
type TelemetryStore struct {
	mu      sync.RWMutex
	samples map[sampleKey]domain.TelemetrySample
}

// NewTelemetryStore returns an empty store.
func NewTelemetryStore() *TelemetryStore {
	return &TelemetryStore{samples: make(map[sampleKey]domain.TelemetrySample)}
}

// UpsertSamples writes the chunk atomically. Existing samples keep their ID.
func (s *TelemetryStore) UpsertSamples(_ context.Context, samples []domain.TelemetrySample) error {
	for _, smp := range samples {
		if !domain.ValidBatchIndex(smp.BatchIndex) || smp.Ordinal < 0 {
			return fmt.Errorf("invalid sample key (%d, %d)", smp.BatchIndex, smp.Ordinal)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, smp := range samples {
		k := sampleKey{smp.BatchIndex, smp.Ordinal}
		if existing, ok := s.samples[k]; ok {
			smp.ID = existing.ID
		}
		s.samples[k] = smp
	}
	return nil
}

// FindInBox returns up to limit samples inside box, ordered by key.
func (s *TelemetryStore) FindInBox(_ context.Context, box domain.BoundingBox, limit int) ([]domain.TelemetrySample, error) {
	s.mu.RLock()
	var out []domain.TelemetrySample
	for _, smp := range s.samples {
		if box.Contains(smp.Latitude, smp.Longitude) {
			out = append(out, smp)
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(out, byKey)
	return truncate(out, limit), nil
}

// ListByOrdinal returns samples with the given ordinal ordered by batch index.
func (s *TelemetryStore) ListByOrdinal(_ context.Context, ordinal, limit int) ([]domain.TelemetrySample, error) {
	s.mu.RLock()
	var out []domain.TelemetrySample
	for k, smp := range s.samples {
		if k.ordinal == ordinal {
			out = append(out, smp)
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(out, byKey)
	return truncate(out, limit), nil
}

// DeleteObservedBefore removes samples observed strictly before cutoff.
func (s *TelemetryStore) DeleteObservedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for k, smp := range s.samples {
		if smp.ObservedAt.Before(cutoff) {
			delete(s.samples, k)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored samples.
func (s *TelemetryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.samples)
}

// Get returns the sample stored under (batchIndex, ordinal).
func (s *TelemetryStore) Get(batchIndex, ordinal int) (domain.TelemetrySample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	smp, ok := s.samples[sampleKey{batchIndex, ordinal}]
	return smp, ok
}

// Ping always succeeds.
func (s *TelemetryStore) Ping(context.Context) error { return nil }

func byKey(a, b domain.TelemetrySample) int {
	if c := cmp.Compare(a.BatchIndex, b.BatchIndex); c != 0 {
		return c
	}
	return cmp.Compare(a.Ordinal, b.Ordinal)
}

func truncate(samples []domain.TelemetrySample, limit int) []domain.TelemetrySample {
	if limit > 0 && len(samples) > limit {
		return samples[:limit]
	}
	return samples
}
