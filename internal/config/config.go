package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Store drivers accepted by STORE_DRIVER and TRACKING_CACHE_DRIVER.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
	DriverBadger   = "badger"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Storage.
	StoreDriver         string
	TrackingCacheDriver string
	DatabaseURL         string
	AutoMigrate         bool
	BadgerPath          string
	RetentionDays       int

	// Tracking provider and cache-aside settings.
	DHLAPIKey        string
	DHLBaseURL       string
	ProviderTimeout  time.Duration
	TrackingCacheTTL time.Duration

	// Telemetry feed ingestion.
	FeedBaseURL       string
	FeedTimeout       time.Duration
	IngestChunkSize   int
	IngestConcurrency int
	SyncInterval      time.Duration // 0 disables the background sync loop

	// Mapbox geocoding configuration.
	MapboxToken     string
	MapboxEnabled   bool
	MapboxTimeout   time.Duration
	MapboxCacheSize int
	MapboxCacheTTL  time.Duration

	// OpenWeatherMap configuration.
	OpenWeatherAPIKey  string
	OpenWeatherBaseURL string
	WeatherTimeout     time.Duration

	// Correlation engine.
	CorrelationRadiusKm   float64
	CorrelationQueryLimit int

	// Sync event publishing (disabled when no brokers are configured).
	KafkaBrokers    []string
	SyncEventsTopic string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	providerTimeout, err := parseDuration("PROVIDER_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	cacheTTL, err := parseDuration("TRACKING_CACHE_TTL", "5m")
	if err != nil {
		return nil, err
	}
	feedTimeout, err := parseDuration("FEED_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	mapboxTimeout, err := parseDuration("MAPBOX_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	mapboxCacheTTL, err := parseDuration("MAPBOX_CACHE_TTL", "30m")
	if err != nil {
		return nil, err
	}
	weatherTimeout, err := parseDuration("WEATHER_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}

	var syncInterval time.Duration
	if os.Getenv("SYNC_INTERVAL") != "" {
		if syncInterval, err = parseDuration("SYNC_INTERVAL", ""); err != nil {
			return nil, err
		}
	}

	chunkSize, err := parseInt("INGEST_CHUNK_SIZE", 1000, 1, 5000)
	if err != nil {
		return nil, err
	}
	concurrency, err := parseInt("INGEST_CONCURRENCY", 1, 1, 24)
	if err != nil {
		return nil, err
	}
	queryLimit, err := parseInt("CORRELATION_QUERY_LIMIT", 50, 1, 1000)
	if err != nil {
		return nil, err
	}
	retentionDays, err := parseInt("RETENTION_DAYS", 7, 1, 3650)
	if err != nil {
		return nil, err
	}

	radius, err := strconv.ParseFloat(sharedcfg.EnvOrDefault("CORRELATION_RADIUS_KM", "1000"), 64)
	if err != nil || radius <= 0 {
		return nil, errors.New("invalid CORRELATION_RADIUS_KM")
	}

	mapboxToken := os.Getenv("MAPBOX_TOKEN")
	mapboxEnabled := mapboxToken != ""
	if v := os.Getenv("MAPBOX_ENABLED"); v != "" {
		mapboxEnabled = v == "true"
	}

	storeDriver := sharedcfg.EnvOrDefault("STORE_DRIVER", DriverPostgres)

	var brokers []string
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		brokers = sharedcfg.ParseBrokers(v)
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		StoreDriver:         storeDriver,
		TrackingCacheDriver: sharedcfg.EnvOrDefault("TRACKING_CACHE_DRIVER", storeDriver),
		DatabaseURL:         sharedcfg.EnvOrDefault("DATABASE_URL", "postgres://localhost:5432/atmosfault?sslmode=disable"),
		AutoMigrate:         os.Getenv("DB_AUTO_MIGRATE") == "true",
		BadgerPath:          sharedcfg.EnvOrDefault("BADGER_PATH", "data/badger"),
		RetentionDays:       retentionDays,

		DHLAPIKey:        os.Getenv("DHL_API_KEY"),
		DHLBaseURL:       sharedcfg.EnvOrDefault("DHL_BASE_URL", "https://api-eu.dhl.com/track/shipments"),
		ProviderTimeout:  providerTimeout,
		TrackingCacheTTL: cacheTTL,

		FeedBaseURL:       sharedcfg.EnvOrDefault("FEED_BASE_URL", "https://a.windbornesystems.com/treasure"),
		FeedTimeout:       feedTimeout,
		IngestChunkSize:   chunkSize,
		IngestConcurrency: concurrency,
		SyncInterval:      syncInterval,

		MapboxToken:     mapboxToken,
		MapboxEnabled:   mapboxEnabled,
		MapboxTimeout:   mapboxTimeout,
		MapboxCacheSize: parseMapboxCacheSize(),
		MapboxCacheTTL:  mapboxCacheTTL,

		OpenWeatherAPIKey:  os.Getenv("OPENWEATHER_API_KEY"),
		OpenWeatherBaseURL: sharedcfg.EnvOrDefault("OPENWEATHER_BASE_URL", "https://api.openweathermap.org/data/2.5/weather"),
		WeatherTimeout:     weatherTimeout,

		CorrelationRadiusKm:   radius,
		CorrelationQueryLimit: queryLimit,

		KafkaBrokers:    brokers,
		SyncEventsTopic: sharedcfg.EnvOrDefault("SYNC_EVENTS_TOPIC", "telemetry-sync-events"),
	}

	switch cfg.StoreDriver {
	case DriverPostgres, DriverMemory:
	default:
		return nil, fmt.Errorf("invalid STORE_DRIVER %q: want postgres or memory", cfg.StoreDriver)
	}
	switch cfg.TrackingCacheDriver {
	case DriverPostgres, DriverMemory, DriverBadger:
	default:
		return nil, fmt.Errorf("invalid TRACKING_CACHE_DRIVER %q: want postgres, badger or memory", cfg.TrackingCacheDriver)
	}
	if cfg.usesPostgres() && cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required when a postgres driver is selected")
	}
	if cfg.MapboxEnabled && cfg.MapboxToken == "" {
		return nil, errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}

	return cfg, nil
}

// WeatherEnabled reports whether weather enrichment has credentials.
func (c *Config) WeatherEnabled() bool {
	return c.OpenWeatherAPIKey != ""
}

// SyncEventsEnabled reports whether ingestion outcomes are published to Kafka.
func (c *Config) SyncEventsEnabled() bool {
	return len(c.KafkaBrokers) > 0 && c.SyncEventsTopic != ""
}

func (c *Config) usesPostgres() bool {
	return c.StoreDriver == DriverPostgres || c.TrackingCacheDriver == DriverPostgres
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseInt(key string, def, minVal, maxVal int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < minVal || n > maxVal {
		return 0, fmt.Errorf("invalid %s: must be between %d and %d", key, minVal, maxVal)
	}
	return n, nil
}

func parseMapboxCacheSize() int {
	if s := os.Getenv("MAPBOX_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 1000
}
