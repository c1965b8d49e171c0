package ingest_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couchcryptid/atmosfault-service/internal/adapter/memory"
	"github.com/couchcryptid/atmosfault-service/internal/domain"
	"github.com/couchcryptid/atmosfault-service/internal/ingest"
	"github.com/couchcryptid/atmosfault-service/internal/observability"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockFeed struct {
	mu      sync.Mutex
	batches map[int][]domain.RawSample
	skipped map[int]int
	errs    map[int]error
	failN   map[int]int // fail the first N fetches of a batch
	calls   map[int]int
}

func newMockFeed() *mockFeed {
	return &mockFeed{
		batches: map[int][]domain.RawSample{},
		skipped: map[int]int{},
		errs:    map[int]error{},
		failN:   map[int]int{},
		calls:   map[int]int{},
	}
}

func (m *mockFeed) FetchBatch(_ context.Context, batchIndex int) ([]domain.RawSample, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[batchIndex]++
	if err := m.errs[batchIndex]; err != nil {
		return nil, 0, err
	}
	if m.calls[batchIndex] <= m.failN[batchIndex] {
		return nil, 0, domain.ErrUpstreamUnavailable
	}
	return m.batches[batchIndex], m.skipped[batchIndex], nil
}

type failingStore struct {
	*memory.TelemetryStore
	failAfter int // number of successful UpsertSamples calls before failing
	calls     atomic.Int64
}

func (f *failingStore) UpsertSamples(ctx context.Context, samples []domain.TelemetrySample) error {
	if int(f.calls.Add(1)) > f.failAfter {
		return errors.New("disk full")
	}
	return f.TelemetryStore.UpsertSamples(ctx, samples)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.SyncEvent
	err    error
}

func (r *recordingPublisher) PublishSyncEvent(_ context.Context, e domain.SyncEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return r.err
}

func newTestMetrics() *observability.Metrics {
	return observability.NewMetricsForTesting()
}

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func raws(n int) []domain.RawSample {
	out := make([]domain.RawSample, n)
	for i := range out {
		out[i] = domain.RawSample{Ordinal: i, Latitude: float64(i%90) - 45, Longitude: float64(i%360) - 180, Altitude: float64(i % 25)}
	}
	return out
}

// --- tests ---

func TestIngestBatch_SingleElement(t *testing.T) {
	feed := newMockFeed()
	feed.batches[5] = []domain.RawSample{{Ordinal: 0, Latitude: 10, Longitude: 20, Altitude: 3}}
	store := memory.NewTelemetryStore()
	clock := clockwork.NewFakeClockAt(epoch)

	p := ingest.New(feed, store, slog.Default(), newTestMetrics(), 0, ingest.WithClock(clock))

	n, err := p.IngestBatch(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, store.Len())

	got, ok := store.Get(5, 0)
	require.True(t, ok)
	want := domain.TelemetrySample{Latitude: 10, Longitude: 20, Altitude: 3, BatchIndex: 5, Ordinal: 0, ObservedAt: epoch}
	if diff := cmp.Diff(want, got, cmpopts.IgnoreFields(domain.TelemetrySample{}, "ID")); diff != "" {
		t.Errorf("sample mismatch (-want +got):\n%s", diff)
	}
	assert.NotEmpty(t, got.ID)
	assert.Equal(t, "ATM-05000000", got.SourceID())
}

func TestIngestBatch_InvalidIndex(t *testing.T) {
	feed := newMockFeed()
	p := ingest.New(feed, memory.NewTelemetryStore(), slog.Default(), newTestMetrics(), 0)

	for _, idx := range []int{-1, 24, 100} {
		_, err := p.IngestBatch(context.Background(), idx)
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrValidation)
	}
	assert.Empty(t, feed.calls)
}

func TestIngestBatch_Idempotent(t *testing.T) {
	feed := newMockFeed()
	feed.batches[3] = raws(250)
	store := memory.NewTelemetryStore()
	clock := clockwork.NewFakeClockAt(epoch)
	p := ingest.New(feed, store, slog.Default(), newTestMetrics(), 100, ingest.WithClock(clock))

	_, err := p.IngestBatch(context.Background(), 3)
	require.NoError(t, err)
	first, _ := store.Get(3, 42)

	clock.Advance(time.Hour)
	n, err := p.IngestBatch(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, 250, n)
	assert.Equal(t, 250, store.Len())

	second, _ := store.Get(3, 42)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, epoch.Add(time.Hour), second.ObservedAt)
}

func TestIngestBatch_SkipsMalformedKeepingOrdinals(t *testing.T) {
	feed := newMockFeed()
	feed.batches[0] = []domain.RawSample{
		{Ordinal: 0, Latitude: 1, Longitude: 2, Altitude: 3},
		{Ordinal: 2, Latitude: 95, Longitude: 2, Altitude: 3}, // latitude out of range
		{Ordinal: 3, Latitude: 4, Longitude: 5, Altitude: 6},
	}
	feed.skipped[0] = 1 // ordinal 1 dropped by the feed decoder
	store := memory.NewTelemetryStore()
	pub := &recordingPublisher{}
	p := ingest.New(feed, store, slog.Default(), newTestMetrics(), 0, ingest.WithPublisher(pub))

	n, err := p.IngestBatch(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, ok := store.Get(0, 3)
	assert.True(t, ok)
	_, ok = store.Get(0, 2)
	assert.False(t, ok)

	require.Len(t, pub.events, 1)
	assert.Equal(t, 2, pub.events[0].Skipped)
	assert.True(t, pub.events[0].Success)
}

func TestIngestBatch_ChunkFailureReturnsPrefix(t *testing.T) {
	feed := newMockFeed()
	feed.batches[7] = raws(25)
	store := &failingStore{TelemetryStore: memory.NewTelemetryStore(), failAfter: 2}
	pub := &recordingPublisher{}
	p := ingest.New(feed, store, slog.Default(), newTestMetrics(), 10, ingest.WithPublisher(pub))

	n, err := p.IngestBatch(context.Background(), 7)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStorage)
	assert.Equal(t, 20, n)
	assert.Equal(t, 20, store.Len())

	require.Len(t, pub.events, 1)
	assert.False(t, pub.events[0].Success)
	assert.Equal(t, 20, pub.events[0].Count)
	assert.NotEmpty(t, pub.events[0].Error)
}

func TestIngestBatch_PublisherFailureDoesNotFailBatch(t *testing.T) {
	feed := newMockFeed()
	feed.batches[1] = raws(3)
	pub := &recordingPublisher{err: errors.New("broker down")}
	p := ingest.New(feed, memory.NewTelemetryStore(), slog.Default(), newTestMetrics(), 0, ingest.WithPublisher(pub))

	n, err := p.IngestBatch(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Len(t, pub.events, 1)
}

func TestIngestBatch_RetriesFeed(t *testing.T) {
	feed := newMockFeed()
	feed.batches[9] = raws(4)
	feed.failN[9] = 2
	p := ingest.New(feed, memory.NewTelemetryStore(), slog.Default(), newTestMetrics(), 0,
		ingest.WithFetchRetry(3, time.Millisecond))

	n, err := p.IngestBatch(context.Background(), 9)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, 3, feed.calls[9])
}

func TestIngestBatch_FeedFailureExhaustsRetries(t *testing.T) {
	feed := newMockFeed()
	feed.failN[9] = 5
	p := ingest.New(feed, memory.NewTelemetryStore(), slog.Default(), newTestMetrics(), 0,
		ingest.WithFetchRetry(2, time.Millisecond))

	n, err := p.IngestBatch(context.Background(), 9)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
	assert.Zero(t, n)
	assert.Equal(t, 2, feed.calls[9])
}

func TestIngestAll_FailingBatchRecordsZero(t *testing.T) {
	for _, concurrency := range []int{1, 6} {
		feed := newMockFeed()
		for i := 0; i < domain.BatchCount; i++ {
			feed.batches[i] = raws(i + 1)
		}
		feed.errs[4] = domain.ErrUpstreamUnavailable
		store := memory.NewTelemetryStore()
		pub := &recordingPublisher{}
		p := ingest.New(feed, store, slog.Default(), newTestMetrics(), 0,
			ingest.WithConcurrency(concurrency), ingest.WithPublisher(pub))

		summary, err := p.IngestAll(context.Background())
		require.NoError(t, err)
		require.Len(t, summary.PerBatch, domain.BatchCount)

		want := 0
		for i, r := range summary.PerBatch {
			assert.Equal(t, i, r.Hour)
			if i == 4 {
				assert.Zero(t, r.Count)
				continue
			}
			assert.Equal(t, i+1, r.Count)
			want += i + 1
		}
		assert.Equal(t, want, summary.Total)
		assert.Equal(t, want, store.Len())
		assert.Len(t, pub.events, domain.BatchCount)
	}
}

func TestIngestAll_CancelledContext(t *testing.T) {
	feed := newMockFeed()
	p := ingest.New(feed, memory.NewTelemetryStore(), slog.Default(), newTestMetrics(), 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := p.IngestAll(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, summary.PerBatch)
	assert.Empty(t, feed.calls)
}

func TestSweep_DeletesOldSamples(t *testing.T) {
	store := memory.NewTelemetryStore()
	require.NoError(t, store.UpsertSamples(context.Background(), []domain.TelemetrySample{
		{ID: "old", BatchIndex: 0, Ordinal: 0, ObservedAt: epoch.Add(-10 * 24 * time.Hour)},
		{ID: "fresh", BatchIndex: 0, Ordinal: 1, ObservedAt: epoch.Add(-time.Hour)},
	}))
	clock := clockwork.NewFakeClockAt(epoch)
	p := ingest.New(newMockFeed(), store, slog.Default(), newTestMetrics(), 0, ingest.WithClock(clock))

	n, err := p.Sweep(context.Background(), 7*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 1, store.Len())
}

func TestRun_SyncsOnStartAndEachTick(t *testing.T) {
	feed := newMockFeed()
	feed.batches[0] = raws(1)
	clock := clockwork.NewFakeClockAt(epoch)
	p := ingest.New(feed, memory.NewTelemetryStore(), slog.Default(), newTestMetrics(), 0, ingest.WithClock(clock))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx, time.Hour) }()

	calls := func() int {
		feed.mu.Lock()
		defer feed.mu.Unlock()
		return feed.calls[0]
	}

	require.Eventually(t, func() bool { return calls() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(time.Hour)
	require.Eventually(t, func() bool { return calls() == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
