package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// BatchCount is the number of hourly shards published by the telemetry feed.
const BatchCount = 24

// sourceIDRe matches telemetry-backed tracking numbers: ATM-<2-digit batch><6-digit ordinal>.
var sourceIDRe = regexp.MustCompile(`^ATM-(\d{2})(\d{6})$`)

// RawSample is one [lat, lon, alt] element of a feed shard. Ordinal is the
// element's position in the shard, preserved even when neighbours are skipped.
type RawSample struct {
	Ordinal   int
	Latitude  float64
	Longitude float64
	Altitude  float64
}

// TelemetrySample is a stored positional sample. (BatchIndex, Ordinal) is unique.
type TelemetrySample struct {
	ID         string    `json:"id"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Altitude   float64   `json:"altitude"` // km
	BatchIndex int       `json:"batchIndex"`
	Ordinal    int       `json:"ordinal"`
	ObservedAt time.Time `json:"observedAt"`
}

// SourceID renders the sample's public identifier, e.g. "ATM-05000042".
func (s TelemetrySample) SourceID() string {
	return FormatSourceID(s.BatchIndex, s.Ordinal)
}

// FormatSourceID renders a batch index and ordinal as an ATM tracking number.
func FormatSourceID(batchIndex, ordinal int) string {
	return fmt.Sprintf("ATM-%02d%06d", batchIndex, ordinal)
}

// ParseSourceID extracts the batch index and ordinal from an ATM tracking number.
// ok is false when the string is not a telemetry-backed id or the batch is out of range.
func ParseSourceID(id string) (batchIndex, ordinal int, ok bool) {
	m := sourceIDRe.FindStringSubmatch(id)
	if m == nil {
		return 0, 0, false
	}
	batchIndex, _ = strconv.Atoi(m[1])
	ordinal, _ = strconv.Atoi(m[2])
	if !ValidBatchIndex(batchIndex) {
		return 0, 0, false
	}
	return batchIndex, ordinal, true
}

// ValidBatchIndex reports whether i names one of the hourly shards.
func ValidBatchIndex(i int) bool {
	return i >= 0 && i < BatchCount
}

// SyncEvent records the outcome of ingesting one batch.
type SyncEvent struct {
	BatchIndex  int       `json:"batch_index"`
	Count       int       `json:"count"`
	Skipped     int       `json:"skipped"`
	Success     bool      `json:"success"`
	Error       string    `json:"error,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}

// BatchResult is one row of a full sync summary.
type BatchResult struct {
	Hour  int `json:"hour"`
	Count int `json:"count"`
}
