package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/couchcryptid/atmosfault-service/internal/adapter/dhl"
	httpadapter "github.com/couchcryptid/atmosfault-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/atmosfault-service/internal/adapter/kafka"
	"github.com/couchcryptid/atmosfault-service/internal/adapter/mapbox"
	"github.com/couchcryptid/atmosfault-service/internal/adapter/openweather"
	"github.com/couchcryptid/atmosfault-service/internal/adapter/windborne"
	"github.com/couchcryptid/atmosfault-service/internal/config"
	"github.com/couchcryptid/atmosfault-service/internal/correlation"
	"github.com/couchcryptid/atmosfault-service/internal/ingest"
	"github.com/couchcryptid/atmosfault-service/internal/observability"
	"github.com/couchcryptid/atmosfault-service/internal/storage"
	"github.com/couchcryptid/atmosfault-service/internal/tracking"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores, err := storage.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open stores", "error", err)
		os.Exit(1)
	}

	// Sync events are published only when KAFKA_BROKERS is set.
	pipelineOpts := []ingest.Option{
		ingest.WithConcurrency(cfg.IngestConcurrency),
		ingest.WithFetchRetry(3, 200*time.Millisecond),
	}
	var publisher *kafkaadapter.Publisher
	if cfg.SyncEventsEnabled() {
		publisher = kafkaadapter.NewPublisher(cfg.KafkaBrokers, cfg.SyncEventsTopic, logger)
		pipelineOpts = append(pipelineOpts, ingest.WithPublisher(publisher))
		logger.Info("sync events enabled", "topic", cfg.SyncEventsTopic, "brokers", cfg.KafkaBrokers)
	}
	feed := windborne.NewClient(cfg.FeedBaseURL, cfg.FeedTimeout, logger)
	pipeline := ingest.New(feed, stores.Telemetry, logger, metrics, cfg.IngestChunkSize, pipelineOpts...)

	provider := dhl.NewClient(cfg.DHLAPIKey, cfg.DHLBaseURL, cfg.ProviderTimeout, logger, metrics)
	fetcher := tracking.NewFetcher(stores.Tracking, provider, logger, metrics, cfg.TrackingCacheTTL, cfg.ProviderTimeout, nil)
	engine := correlation.New(stores.Telemetry, nil, logger, metrics, cfg.CorrelationQueryLimit)

	assemblerOpts := []tracking.AssemblerOption{tracking.WithCorrelator(engine, cfg.CorrelationRadiusKm)}

	// Initialize geocoder (feature-flagged via MAPBOX_ENABLED / MAPBOX_TOKEN).
	if cfg.MapboxEnabled {
		client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, logger, metrics)
		geocoder := mapbox.NewCachedGeocoder(client, cfg.MapboxCacheSize, cfg.MapboxCacheTTL, nil, metrics)
		assemblerOpts = append(assemblerOpts, tracking.WithGeocoder(geocoder))
		metrics.GeocodeEnabled.Set(1)
		logger.Info("mapbox geocoding enabled", "cache_size", cfg.MapboxCacheSize, "cache_ttl", cfg.MapboxCacheTTL, "timeout", cfg.MapboxTimeout)
	} else {
		logger.Info("mapbox geocoding disabled")
	}
	if cfg.WeatherEnabled() {
		weather := openweather.NewClient(cfg.OpenWeatherAPIKey, cfg.OpenWeatherBaseURL, cfg.WeatherTimeout, logger)
		assemblerOpts = append(assemblerOpts, tracking.WithWeather(weather))
	} else {
		logger.Info("weather enrichment disabled")
	}
	assembler := tracking.NewAssembler(fetcher, stores.Telemetry, logger, metrics, assemblerOpts...)

	srv := httpadapter.NewServer(cfg.HTTPAddr, httpadapter.Readiness(stores.Pingers), assembler, pipeline, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	// Start the periodic sync loop when SYNC_INTERVAL is set.
	syncDone := make(chan struct{})
	go func() {
		defer close(syncDone)
		if cfg.SyncInterval <= 0 {
			return
		}
		if err := pipeline.Run(ctx, cfg.SyncInterval); err != nil {
			logger.Error("sync loop error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	select {
	case <-syncDone:
	case <-shutdownCtx.Done():
		logger.Warn("sync loop did not stop before shutdown timeout")
	}
	if err := publisher.Close(); err != nil {
		logger.Error("kafka publisher close error", "error", err)
	}
	if err := stores.Close(); err != nil {
		logger.Error("store close error", "error", err)
	}

	logger.Info("shutdown complete")
}
