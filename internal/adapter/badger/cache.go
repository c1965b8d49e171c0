// Package badger implements the tracking cache on an embedded BadgerDB with
// zstd-compressed payloads, for single-node deployments without Postgres.
package badger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/klauspost/compress/zstd"

	"github.com/couchcryptid/atmosfault-service/internal/domain"
)

const (
	keyPrefix  = "track:"
	headerSize = 16 // refreshed_at, created_at as unix nanos
)

// Open opens a Badger database at path. An empty path opens an in-memory database.
func Open(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return db, nil
}

// TrackingCache stores provider payloads keyed by external id. Entries carry a
// Badger TTL so abandoned ids expire even if no cleanup runs.
type TrackingCache struct {
	db      *badger.DB
	ttl     time.Duration
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewTrackingCache wraps db. A positive ttl bounds how long entries survive
// after their last refresh.
func NewTrackingCache(db *badger.DB, ttl time.Duration) (*TrackingCache, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		_ = enc.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &TrackingCache{db: db, ttl: ttl, encoder: enc, decoder: dec}, nil
}

// Get returns the record for externalID, or nil if none exists.
func (c *TrackingCache) Get(_ context.Context, externalID string) (*domain.CachedTrackingRecord, error) {
	var rec *domain.CachedTrackingRecord
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(externalID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			r, err := c.decode(externalID, val)
			if err != nil {
				return err
			}
			rec = r
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get tracking %s: %w", externalID, err)
	}
	return rec, nil
}

// Upsert writes the record, keeping the CreatedAt of any existing entry.
func (c *TrackingCache) Upsert(_ context.Context, rec domain.CachedTrackingRecord) error {
	err := c.db.Update(func(txn *badger.Txn) error {
		createdAt := rec.CreatedAt
		item, err := txn.Get(key(rec.ExternalID))
		switch {
		case err == nil:
			if err := item.Value(func(val []byte) error {
				if len(val) >= headerSize {
					createdAt = time.Unix(0, int64(binary.BigEndian.Uint64(val[8:16]))).UTC()
				}
				return nil
			}); err != nil {
				return err
			}
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}
		if createdAt.IsZero() {
			createdAt = rec.RefreshedAt
		}

		entry := badger.NewEntry(key(rec.ExternalID), c.encode(rec.Payload, rec.RefreshedAt, createdAt))
		if c.ttl > 0 {
			entry = entry.WithTTL(c.ttl)
		}
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("upsert tracking %s: %w", rec.ExternalID, err)
	}
	return nil
}

// DeleteRefreshedBefore removes entries last refreshed before cutoff.
func (c *TrackingCache) DeleteRefreshedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var stale [][]byte
	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			if err := item.Value(func(val []byte) error {
				if len(val) < headerSize {
					stale = append(stale, item.KeyCopy(nil))
					return nil
				}
				refreshed := time.Unix(0, int64(binary.BigEndian.Uint64(val[:8])))
				if refreshed.Before(cutoff) {
					stale = append(stale, item.KeyCopy(nil))
				}
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scan tracking cache: %w", err)
	}

	wb := c.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range stale {
		if err := wb.Delete(k); err != nil {
			return 0, fmt.Errorf("delete tracking entry: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("flush deletes: %w", err)
	}
	return int64(len(stale)), nil
}

// Ping reports whether the database is still open.
func (c *TrackingCache) Ping(context.Context) error {
	if c.db.IsClosed() {
		return errors.New("badger database is closed")
	}
	return nil
}

// Close releases the compression codecs. The database is owned by the caller.
func (c *TrackingCache) Close() error {
	c.decoder.Close()
	return c.encoder.Close()
}

func (c *TrackingCache) encode(payload []byte, refreshedAt, createdAt time.Time) []byte {
	buf := make([]byte, headerSize, headerSize+len(payload))
	binary.BigEndian.PutUint64(buf[:8], uint64(refreshedAt.UnixNano()))
	binary.BigEndian.PutUint64(buf[8:16], uint64(createdAt.UnixNano()))
	return c.encoder.EncodeAll(payload, buf)
}

func (c *TrackingCache) decode(externalID string, val []byte) (*domain.CachedTrackingRecord, error) {
	if len(val) < headerSize {
		return nil, fmt.Errorf("tracking entry %s truncated", externalID)
	}
	payload, err := c.decoder.DecodeAll(val[headerSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("decompress tracking entry %s: %w", externalID, err)
	}
	return &domain.CachedTrackingRecord{
		ExternalID:  externalID,
		Payload:     payload,
		RefreshedAt: time.Unix(0, int64(binary.BigEndian.Uint64(val[:8]))).UTC(),
		CreatedAt:   time.Unix(0, int64(binary.BigEndian.Uint64(val[8:16]))).UTC(),
	}, nil
}

func key(externalID string) []byte {
	return []byte(keyPrefix + externalID)
}
