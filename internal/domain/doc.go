// Package domain models tracked objects, atmospheric telemetry, and the blame
// chain that ties the two together.
//
// # Data Sources
//
// Telemetry comes from a balloon constellation feed that publishes 24 hourly
// shards, "00.json" through "23.json". Each shard is a JSON array of
// [latitude, longitude, altitude_km] triples. The position of a triple within
// its shard is its ordinal; the shard number is its batch index. Together they
// form the natural key of a [TelemetrySample], which makes re-ingesting a shard
// an overwrite rather than an append.
//
// Tracking data comes from a carrier API keyed by tracking number. Responses
// are validated into a [ProviderResponse] at the adapter boundary and cached as
// opaque JSON in a [CachedTrackingRecord].
//
// # Tracking Numbers
//
// Two families are accepted:
//
//	ATM-HHIIIIII  telemetry-backed: HH is the batch index (00-23) and IIIIII the
//	              ordinal. The object is followed across all batches sharing
//	              that ordinal.
//	anything else carrier-backed: looked up through the tracking cache.
//
// # Threat Classification
//
// Candidates are classified by altitude (km):
//
//	Threat:   <5 PEACEFUL | <10 TURBULENT | <15 CHAOTIC | <20 APOCALYPTIC | else DOOMED
//	Category: <3 PRESSURE_WARFARE | <8 TURBULENCE_NIGHTMARE | <15 JET_STREAM_CHAOS
//	          | <20 ALTITUDE_MADNESS | else ATMOSPHERIC_HOSTAGE
//
// Severity (0-100) weights altitude and proximity equally:
//
//	severity = min(round(clamp(alt/25, 0, 1)*50 + max(0, 1-dist/1000)*50), 100)
//
// The overall severity index is the rounded mean of the five most severe
// candidates, bucketed at 20/40/60/80 into the same five threat tiers.
package domain
