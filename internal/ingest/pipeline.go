package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/atmosfault-service/internal/domain"
	"github.com/couchcryptid/atmosfault-service/internal/observability"
	"github.com/couchcryptid/storm-data-shared/retry"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
)

// DefaultChunkSize bounds the number of samples written per store call.
const DefaultChunkSize = 1000

// Summary is the outcome of a full sync.
type Summary struct {
	Total    int                  `json:"totalRecords"`
	PerBatch []domain.BatchResult `json:"hourResults"`
}

// Pipeline fetches feed shards and upserts them into the telemetry store.
type Pipeline struct {
	feed      domain.TelemetryFeed
	store     domain.TelemetryStore
	publisher domain.SyncEventPublisher
	logger    *slog.Logger
	metrics   *observability.Metrics
	clock     clockwork.Clock

	chunkSize      int
	concurrency    int
	fetchAttempts  int
	initialBackoff time.Duration
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithClock sets the clock used to stamp samples and compute sweep cutoffs.
func WithClock(c clockwork.Clock) Option {
	return func(p *Pipeline) { p.clock = c }
}

// WithPublisher announces a SyncEvent after every batch.
func WithPublisher(pub domain.SyncEventPublisher) Option {
	return func(p *Pipeline) { p.publisher = pub }
}

// WithConcurrency lets IngestAll work on up to n batches at once.
func WithConcurrency(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithFetchRetry retries failed feed fetches with exponential backoff.
func WithFetchRetry(attempts int, initialBackoff time.Duration) Option {
	return func(p *Pipeline) {
		if attempts > 0 {
			p.fetchAttempts = attempts
		}
		p.initialBackoff = initialBackoff
	}
}

// New creates a Pipeline. A non-positive chunkSize uses DefaultChunkSize.
func New(feed domain.TelemetryFeed, store domain.TelemetryStore, logger *slog.Logger, metrics *observability.Metrics, chunkSize int, opts ...Option) *Pipeline {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	p := &Pipeline{
		feed:          feed,
		store:         store,
		logger:        logger,
		metrics:       metrics,
		clock:         clockwork.NewRealClock(),
		chunkSize:     chunkSize,
		concurrency:   1,
		fetchAttempts: 1,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// IngestBatch fetches one shard and upserts it. On a storage failure the
// returned count covers the chunks written before the failure.
func (p *Pipeline) IngestBatch(ctx context.Context, batchIndex int) (int, error) {
	if !domain.ValidBatchIndex(batchIndex) {
		return 0, fmt.Errorf("batch index %d must be between 0 and %d: %w", batchIndex, domain.BatchCount-1, domain.ErrValidation)
	}
	start := time.Now()

	raws, skipped, err := p.fetch(ctx, batchIndex)
	if err != nil {
		err = fmt.Errorf("fetch batch %02d: %w", batchIndex, err)
		p.finish(ctx, batchIndex, 0, skipped, start, err)
		return 0, err
	}

	samples, invalid := toSamples(batchIndex, raws, p.clock.Now())
	skipped += invalid

	count, err := p.upsert(ctx, batchIndex, samples)
	p.finish(ctx, batchIndex, count, skipped, start, err)
	return count, err
}

// IngestAll ingests every batch. A failing batch is recorded with count 0
// and does not stop the others. The summary is ordered by batch index.
func (p *Pipeline) IngestAll(ctx context.Context) (Summary, error) {
	p.logger.Info("full sync started", "batches", domain.BatchCount, "concurrency", p.concurrency)

	var summary Summary
	var err error
	if p.concurrency > 1 {
		summary, err = p.ingestConcurrent(ctx)
	} else {
		summary, err = p.ingestSequential(ctx)
	}

	p.logger.Info("full sync finished", "total_records", summary.Total, "batches", len(summary.PerBatch))
	return summary, err
}

func (p *Pipeline) ingestSequential(ctx context.Context) (Summary, error) {
	summary := Summary{PerBatch: make([]domain.BatchResult, 0, domain.BatchCount)}
	for i := 0; i < domain.BatchCount; i++ {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		n, err := p.IngestBatch(ctx, i)
		if err != nil {
			n = 0
		}
		summary.PerBatch = append(summary.PerBatch, domain.BatchResult{Hour: i, Count: n})
		summary.Total += n
	}
	return summary, nil
}

func (p *Pipeline) ingestConcurrent(ctx context.Context) (Summary, error) {
	results := make([]domain.BatchResult, domain.BatchCount)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	for i := 0; i < domain.BatchCount; i++ {
		results[i] = domain.BatchResult{Hour: i}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			// Failures are isolated per batch and already logged.
			if n, err := p.IngestBatch(gctx, i); err == nil {
				results[i].Count = n
			}
			return nil
		})
	}
	_ = g.Wait()

	summary := Summary{PerBatch: results}
	for _, r := range results {
		summary.Total += r.Count
	}
	return summary, ctx.Err()
}

// Sweep deletes samples observed more than olderThan ago.
func (p *Pipeline) Sweep(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := p.clock.Now().Add(-olderThan)
	n, err := p.store.DeleteObservedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete samples before %s: %w", cutoff.Format(time.RFC3339), wrapStorage(err))
	}
	p.metrics.SamplesSwept.Add(float64(n))
	p.logger.Info("retention sweep complete", "cutoff", cutoff, "deleted", n)
	return n, nil
}

// Run performs a full sync immediately and then once per interval until
// the context is cancelled.
func (p *Pipeline) Run(ctx context.Context, interval time.Duration) error {
	p.logger.Info("sync loop started", "interval", interval)
	ticker := p.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := p.IngestAll(ctx); err != nil && ctx.Err() == nil {
			p.logger.Error("full sync failed", "error", err)
		}

		select {
		case <-ctx.Done():
			p.logger.Info("sync loop stopping", "reason", ctx.Err())
			return nil
		case <-ticker.Chan():
		}
	}
}

func (p *Pipeline) fetch(ctx context.Context, batchIndex int) ([]domain.RawSample, int, error) {
	backoff := p.initialBackoff
	maxBackoff := 5 * time.Second

	var lastErr error
	for attempt := 1; attempt <= p.fetchAttempts; attempt++ {
		raws, skipped, err := p.feed.FetchBatch(ctx, batchIndex)
		if err == nil {
			return raws, skipped, nil
		}
		lastErr = err
		if ctx.Err() != nil || attempt == p.fetchAttempts {
			break
		}
		p.logger.Warn("feed fetch failed, retrying",
			"batch", batchIndex, "attempt", attempt, "backoff", backoff, "error", err)
		if !retry.SleepWithContext(ctx, backoff) {
			break
		}
		backoff = retry.NextBackoff(backoff, maxBackoff)
	}
	return nil, 0, lastErr
}

func (p *Pipeline) upsert(ctx context.Context, batchIndex int, samples []domain.TelemetrySample) (int, error) {
	written := 0
	for start := 0; start < len(samples); start += p.chunkSize {
		chunk := samples[start:min(start+p.chunkSize, len(samples))]
		if err := p.store.UpsertSamples(ctx, chunk); err != nil {
			return written, fmt.Errorf("upsert batch %02d chunk at %d: %w", batchIndex, start, wrapStorage(err))
		}
		written += len(chunk)
		p.logger.Debug("chunk upserted", "batch", batchIndex, "offset", start, "size", len(chunk))
	}
	return written, nil
}

// finish records metrics, logs and publishes the outcome of one batch.
func (p *Pipeline) finish(ctx context.Context, batchIndex, count, skipped int, start time.Time, err error) {
	p.metrics.IngestBatchDuration.Observe(time.Since(start).Seconds())
	p.metrics.SamplesUpserted.Add(float64(count))
	p.metrics.SamplesSkipped.Add(float64(skipped))

	event := domain.SyncEvent{
		BatchIndex:  batchIndex,
		Count:       count,
		Skipped:     skipped,
		Success:     err == nil,
		CompletedAt: p.clock.Now().UTC(),
	}
	if err != nil {
		event.Error = err.Error()
		p.metrics.IngestBatches.WithLabelValues("error").Inc()
		p.logger.Error("batch ingest failed", "batch", batchIndex, "written", count, "error", err)
	} else {
		p.metrics.IngestBatches.WithLabelValues("success").Inc()
		p.logger.Info("batch ingested", "batch", batchIndex, "count", count, "skipped", skipped)
	}

	if p.publisher == nil {
		return
	}
	if perr := p.publisher.PublishSyncEvent(ctx, event); perr != nil {
		p.logger.Warn("publish sync event failed", "batch", batchIndex, "error", perr)
	}
}

func wrapStorage(err error) error {
	if errors.Is(err, domain.ErrStorage) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrStorage, err)
}
