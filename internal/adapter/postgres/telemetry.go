package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/couchcryptid/atmosfault-service/internal/domain"
)

const sampleColumns = "id, batch_index, ordinal, latitude, longitude, altitude, observed_at"

// TelemetryStore persists telemetry samples in the telemetry_samples table.
type TelemetryStore struct {
	db *sql.DB
}

// NewTelemetryStore returns a telemetry store backed by db.
func NewTelemetryStore(db *sql.DB) *TelemetryStore {
	return &TelemetryStore{db: db}
}

// UpsertSamples writes the chunk in a single transaction. Conflicting
// (batch_index, ordinal) rows keep their id and take the new position.
func (s *TelemetryStore) UpsertSamples(ctx context.Context, samples []domain.TelemetrySample) error {
	if len(samples) == 0 {
		return nil
	}
	query, args := buildUpsert(samples)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("upsert %d samples: %w", len(samples), err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert: %w", err)
	}
	return nil
}

// FindInBox returns up to limit samples inside box ordered by (batch_index, ordinal).
func (s *TelemetryStore) FindInBox(ctx context.Context, box domain.BoundingBox, limit int) ([]domain.TelemetrySample, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sampleColumns+` FROM telemetry_samples
		 WHERE latitude BETWEEN $1 AND $2 AND longitude BETWEEN $3 AND $4
		 ORDER BY batch_index, ordinal
		 LIMIT $5`,
		box.MinLat, box.MaxLat, box.MinLon, box.MaxLon, limitOrAll(limit))
	if err != nil {
		return nil, fmt.Errorf("find in box: %w", err)
	}
	return scanSamples(rows)
}

// ListByOrdinal returns samples sharing ordinal across batches, ordered by batch index.
func (s *TelemetryStore) ListByOrdinal(ctx context.Context, ordinal, limit int) ([]domain.TelemetrySample, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sampleColumns+` FROM telemetry_samples
		 WHERE ordinal = $1
		 ORDER BY batch_index
		 LIMIT $2`,
		ordinal, limitOrAll(limit))
	if err != nil {
		return nil, fmt.Errorf("list by ordinal: %w", err)
	}
	return scanSamples(rows)
}

// DeleteObservedBefore removes samples observed before cutoff and returns how many were deleted.
func (s *TelemetryStore) DeleteObservedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM telemetry_samples WHERE observed_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete samples: %w", err)
	}
	return res.RowsAffected()
}

// Ping checks database connectivity.
func (s *TelemetryStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// buildUpsert renders one multi-row INSERT ... ON CONFLICT statement for samples.
func buildUpsert(samples []domain.TelemetrySample) (string, []any) {
	var b strings.Builder
	b.WriteString(`INSERT INTO telemetry_samples (` + sampleColumns + `) VALUES `)

	args := make([]any, 0, len(samples)*7)
	for i, smp := range samples {
		if i > 0 {
			b.WriteString(", ")
		}
		n := i * 7
		fmt.Fprintf(&b, "($%d, $%d, $%d, $%d, $%d, $%d, $%d)", n+1, n+2, n+3, n+4, n+5, n+6, n+7)
		args = append(args, smp.ID, smp.BatchIndex, smp.Ordinal, smp.Latitude, smp.Longitude, smp.Altitude, smp.ObservedAt.UTC())
	}
	b.WriteString(` ON CONFLICT (batch_index, ordinal) DO UPDATE SET
		latitude = EXCLUDED.latitude,
		longitude = EXCLUDED.longitude,
		altitude = EXCLUDED.altitude,
		observed_at = EXCLUDED.observed_at`)
	return b.String(), args
}

func scanSamples(rows *sql.Rows) ([]domain.TelemetrySample, error) {
	defer rows.Close()

	var out []domain.TelemetrySample
	for rows.Next() {
		var smp domain.TelemetrySample
		if err := rows.Scan(&smp.ID, &smp.BatchIndex, &smp.Ordinal, &smp.Latitude, &smp.Longitude, &smp.Altitude, &smp.ObservedAt); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		smp.ObservedAt = smp.ObservedAt.UTC()
		out = append(out, smp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate samples: %w", err)
	}
	return out, nil
}

// limitOrAll maps a non-positive limit to NULL, which Postgres treats as LIMIT ALL.
func limitOrAll(limit int) any {
	if limit <= 0 {
		return nil
	}
	return limit
}
