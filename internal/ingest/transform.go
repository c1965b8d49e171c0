package ingest

import (
	"math"
	"time"

	"github.com/couchcryptid/atmosfault-service/internal/domain"
	"github.com/google/uuid"
)

// toSamples stamps raw feed elements with their batch key and observation
// time. Elements with out-of-range coordinates are dropped and counted; the
// rest keep the ordinal they had in the shard.
func toSamples(batchIndex int, raws []domain.RawSample, observedAt time.Time) ([]domain.TelemetrySample, int) {
	samples := make([]domain.TelemetrySample, 0, len(raws))
	invalid := 0
	observedAt = observedAt.UTC()

	for _, r := range raws {
		if !validRaw(r) {
			invalid++
			continue
		}
		samples = append(samples, domain.TelemetrySample{
			ID:         uuid.NewString(),
			Latitude:   r.Latitude,
			Longitude:  r.Longitude,
			Altitude:   r.Altitude,
			BatchIndex: batchIndex,
			Ordinal:    r.Ordinal,
			ObservedAt: observedAt,
		})
	}
	return samples, invalid
}

func validRaw(r domain.RawSample) bool {
	for _, v := range []float64{r.Latitude, r.Longitude, r.Altitude} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return r.Ordinal >= 0 &&
		r.Latitude >= -90 && r.Latitude <= 90 &&
		r.Longitude >= -180 && r.Longitude <= 180
}
