// Package correlation ranks stored telemetry samples near a location and
// turns them into a blame chain: per-candidate threat, category and severity,
// an aggregate severity index and a narrative for that index.
//
// Scoring is deterministic. Only the flavour text of each candidate is chosen
// at random, through an injected Picker, so tests can pin it.
package correlation
