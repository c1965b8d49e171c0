package domain

import "errors"

// Error taxonomy shared by every component. Callers wrap these with context
// using fmt.Errorf("...: %w", err) and classify with errors.Is.
var (
	// ErrNotFound marks an unknown or malformed tracking number. Terminal; surfaced as 404.
	ErrNotFound = errors.New("not found")

	// ErrUpstreamUnavailable marks a timeout, non-2xx response or malformed payload
	// from an external collaborator.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrValidation marks malformed caller input, e.g. a batch index outside 0-23.
	ErrValidation = errors.New("validation failed")

	// ErrStorage marks a read or write failure against the telemetry store or tracking cache.
	ErrStorage = errors.New("storage failure")

	// ErrRateLimited marks a request rejected by the tracking provider's rate limit.
	ErrRateLimited = errors.New("rate limited")
)
