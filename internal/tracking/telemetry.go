package tracking

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/couchcryptid/atmosfault-service/internal/domain"
)

const (
	staleAfter          = 24 * time.Hour
	upperAtmosphere     = "Upper Atmosphere"
	launchCeilingKm     = 1.0
	deliveryAltitudeKm  = 20.0
	fastClimbAltitudeKm = 10.0
)

// assembleTelemetry follows one ordinal across every stored batch. The
// lowest batch index is the most recent shard and drives the current state.
func (a *Assembler) assembleTelemetry(ctx context.Context, id string, ordinal int) (*domain.TrackingResponse, error) {
	samples, err := a.store.ListByOrdinal(ctx, ordinal, maxTelemetrySamples)
	if err != nil {
		return nil, fmt.Errorf("list samples for %s: %w: %w", id, domain.ErrStorage, err)
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("no samples for %s: %w", id, domain.ErrNotFound)
	}
	slices.SortFunc(samples, func(x, y domain.TelemetrySample) int {
		return cmp.Compare(x.BatchIndex, y.BatchIndex)
	})

	now := a.clock.Now()
	latest := samples[0]
	status := telemetryStatus(latest.Altitude, latest.ObservedAt, now)

	resp := &domain.TrackingResponse{
		TrackingNumber:    id,
		Status:            status,
		CurrentLocation:   sampleLocation(latest),
		Timeline:          make([]domain.TimelineEvent, 0, len(samples)),
		EstimatedDelivery: telemetryEstimate(status, latest.Altitude, latest.ObservedAt),
		Metadata: domain.Metadata{
			SampleID:   latest.ID,
			Ordinal:    &latest.Ordinal,
			BatchIndex: &latest.BatchIndex,
		},
	}
	if status == domain.StatusDelivered {
		resp.Metadata.Destination = upperAtmosphere
	}
	for _, smp := range samples {
		st := telemetryStatus(smp.Altitude, smp.ObservedAt, now)
		resp.Timeline = append(resp.Timeline, domain.TimelineEvent{
			Status:      st,
			Timestamp:   smp.ObservedAt,
			Location:    sampleLocation(smp),
			Description: telemetryDescription(st, smp),
		})
	}

	a.labelPosition(ctx, resp)
	a.attachWeather(ctx, resp)
	return resp, nil
}

// labelPosition fills the current location's place name from a reverse geocode.
func (a *Assembler) labelPosition(ctx context.Context, resp *domain.TrackingResponse) {
	loc := &resp.CurrentLocation
	if a.geocoder == nil || !loc.HasCoordinates() {
		return
	}
	res, err := a.geocoder.ReverseGeocode(ctx, *loc.Latitude, *loc.Longitude)
	if err != nil {
		a.enrichmentFailed("geocode", resp.TrackingNumber, err)
		return
	}
	if !res.Found() {
		return
	}
	loc.City = res.PlaceName
	loc.CountryCode = res.CountryCode
	loc.Country = res.CountryCode
}

func telemetryStatus(altitude float64, observedAt, now time.Time) domain.PackageStatus {
	switch {
	case now.Sub(observedAt) > staleAfter:
		return domain.StatusFailed
	case altitude < launchCeilingKm:
		return domain.StatusPending
	case altitude < deliveryAltitudeKm:
		return domain.StatusInTransit
	default:
		return domain.StatusDelivered
	}
}

func telemetryEstimate(status domain.PackageStatus, altitude float64, observedAt time.Time) *time.Time {
	var eta time.Time
	switch status {
	case domain.StatusPending:
		eta = observedAt.Add(8 * time.Hour)
	case domain.StatusInTransit:
		if altitude < fastClimbAltitudeKm {
			eta = observedAt.Add(4 * time.Hour)
		} else {
			eta = observedAt.Add(2 * time.Hour)
		}
	case domain.StatusDelivered:
		eta = observedAt
	default:
		return nil
	}
	return &eta
}

func telemetryDescription(status domain.PackageStatus, smp domain.TelemetrySample) string {
	switch status {
	case domain.StatusPending:
		return fmt.Sprintf("Hour %d: At origin facility", smp.BatchIndex)
	case domain.StatusInTransit:
		return fmt.Sprintf("Hour %d: In transit - altitude %.1f km", smp.BatchIndex, smp.Altitude)
	case domain.StatusDelivered:
		return fmt.Sprintf("Hour %d: Delivered to destination", smp.BatchIndex)
	default:
		return fmt.Sprintf("Hour %d: Delivery failed", smp.BatchIndex)
	}
}

func sampleLocation(smp domain.TelemetrySample) domain.Location {
	lat, lon, alt := smp.Latitude, smp.Longitude, smp.Altitude
	ts := smp.ObservedAt
	return domain.Location{
		Latitude:  &lat,
		Longitude: &lon,
		Altitude:  &alt,
		Timestamp: &ts,
	}
}
