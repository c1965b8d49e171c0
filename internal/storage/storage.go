// Package storage opens the telemetry store and tracking cache selected by
// STORE_DRIVER and TRACKING_CACHE_DRIVER.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/couchcryptid/atmosfault-service/internal/adapter/badger"
	"github.com/couchcryptid/atmosfault-service/internal/adapter/memory"
	"github.com/couchcryptid/atmosfault-service/internal/adapter/postgres"
	"github.com/couchcryptid/atmosfault-service/internal/config"
	"github.com/couchcryptid/atmosfault-service/internal/domain"
)

// Stores bundles the persistence collaborators. Close releases them.
type Stores struct {
	Telemetry domain.TelemetryStore
	Tracking  domain.TrackingCache
	Pingers   []domain.Pinger

	closers []io.Closer
}

// Open builds the stores described by cfg. Postgres connections are shared
// between the two stores when both use it.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Stores, error) {
	s := &Stores{}

	var db *sql.DB
	pg := func() (*sql.DB, error) {
		if db != nil {
			return db, nil
		}
		if cfg.AutoMigrate {
			if err := postgres.Migrate(cfg.DatabaseURL, "up"); err != nil {
				return nil, fmt.Errorf("auto-migrate: %w", err)
			}
			logger.Info("database migrations applied")
		}
		conn, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		db = conn
		s.closers = append(s.closers, conn)
		return db, nil
	}

	switch cfg.StoreDriver {
	case config.DriverPostgres:
		conn, err := pg()
		if err != nil {
			return nil, errors.Join(err, s.Close())
		}
		store := postgres.NewTelemetryStore(conn)
		s.Telemetry = store
		s.Pingers = append(s.Pingers, store)
	case config.DriverMemory:
		store := memory.NewTelemetryStore()
		s.Telemetry = store
		s.Pingers = append(s.Pingers, store)
	default:
		return nil, fmt.Errorf("unsupported STORE_DRIVER %q", cfg.StoreDriver)
	}

	switch cfg.TrackingCacheDriver {
	case config.DriverPostgres:
		conn, err := pg()
		if err != nil {
			return nil, errors.Join(err, s.Close())
		}
		s.Tracking = postgres.NewTrackingCache(conn)
	case config.DriverBadger:
		kv, err := badger.Open(cfg.BadgerPath)
		if err != nil {
			return nil, errors.Join(err, s.Close())
		}
		s.closers = append(s.closers, closerFunc(kv.Close))
		cache, err := badger.NewTrackingCache(kv, time.Duration(cfg.RetentionDays)*24*time.Hour)
		if err != nil {
			return nil, errors.Join(err, s.Close())
		}
		s.closers = append(s.closers, cache)
		s.Tracking = cache
		s.Pingers = append(s.Pingers, cache)
	case config.DriverMemory:
		s.Tracking = memory.NewTrackingCache()
	default:
		return nil, errors.Join(fmt.Errorf("unsupported TRACKING_CACHE_DRIVER %q", cfg.TrackingCacheDriver), s.Close())
	}

	logger.Info("stores opened", "telemetry", cfg.StoreDriver, "tracking_cache", cfg.TrackingCacheDriver)
	return s, nil
}

// Close releases stores in reverse order of opening.
func (s *Stores) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
