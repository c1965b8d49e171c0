package correlation

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/couchcryptid/atmosfault-service/internal/domain"
	"github.com/couchcryptid/atmosfault-service/internal/observability"
)

const (
	// DefaultRadiusKm applies when a caller passes a non-positive radius.
	DefaultRadiusKm = 1000

	// DefaultQueryLimit caps the number of rows fetched from the store per request.
	DefaultQueryLimit = 50

	maxCandidates = 10
	indexWindow   = 5
)

// Picker chooses an index in [0, n). *rand.Rand satisfies it.
type Picker interface {
	IntN(n int) int
}

type globalPicker struct{}

func (globalPicker) IntN(n int) int { return rand.IntN(n) }

// Engine correlates a subject location with nearby telemetry samples.
type Engine struct {
	store   domain.TelemetryStore
	picker  Picker
	logger  *slog.Logger
	metrics *observability.Metrics
	limit   int
}

// New creates an Engine. A nil picker uses the process-wide random source;
// a non-positive limit uses DefaultQueryLimit.
func New(store domain.TelemetryStore, picker Picker, logger *slog.Logger, metrics *observability.Metrics, limit int) *Engine {
	if picker == nil {
		picker = globalPicker{}
	}
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	return &Engine{
		store:   store,
		picker:  picker,
		logger:  logger,
		metrics: metrics,
		limit:   limit,
	}
}

// Correlate returns the blame chain for subject, or nil when the subject has
// no coordinates. Store failures wrap domain.ErrStorage.
func (e *Engine) Correlate(ctx context.Context, subject domain.Location, radiusKm float64) (*domain.BlameChain, error) {
	if !subject.HasCoordinates() {
		return nil, nil
	}
	if radiusKm <= 0 {
		radiusKm = DefaultRadiusKm
	}
	start := time.Now()

	lat, lon := *subject.Latitude, *subject.Longitude
	box := domain.BoundingBoxAround(lat, lon, radiusKm)

	samples, err := e.store.FindInBox(ctx, box, e.limit)
	if err != nil {
		return nil, fmt.Errorf("find samples near (%.4f, %.4f): %w", lat, lon, wrapStorage(err))
	}

	candidates := make([]domain.Candidate, 0, len(samples))
	for _, s := range samples {
		d := domain.HaversineKm(lat, lon, s.Latitude, s.Longitude)
		if d > radiusKm {
			continue
		}
		candidates = append(candidates, e.candidate(s, d))
	}

	slices.SortFunc(candidates, rank)
	if len(candidates) > maxCandidates {
		candidates = candidates[:maxCandidates]
	}

	index := severityIndex(candidates)
	chain := &domain.BlameChain{
		SubjectLocation: subject,
		Candidates:      candidates,
		OverallThreat:   domain.ThreatForSeverity(index),
		SeverityIndex:   index,
		Narrative:       Narrative(index),
	}

	e.metrics.CorrelationCandidates.Observe(float64(len(candidates)))
	e.metrics.CorrelationDuration.Observe(time.Since(start).Seconds())
	e.logger.Debug("correlated location",
		"latitude", lat,
		"longitude", lon,
		"radius_km", radiusKm,
		"rows", len(samples),
		"candidates", len(candidates),
		"severity_index", index,
	)
	return chain, nil
}

func (e *Engine) candidate(s domain.TelemetrySample, distanceKm float64) domain.Candidate {
	category := domain.CategoryForAltitude(s.Altitude)
	return domain.Candidate{
		SourceID:         s.SourceID(),
		Latitude:         s.Latitude,
		Longitude:        s.Longitude,
		Altitude:         s.Altitude,
		ObservedAt:       s.ObservedAt,
		ThreatLevel:      domain.ThreatForAltitude(s.Altitude),
		Category:         category,
		DistanceKm:       distanceKm,
		Severity:         domain.Severity(s.Altitude, distanceKm),
		Explanation:      explanation(e.picker, category, s.Altitude),
		ScientificReason: scientificReason(category, s.Altitude),
	}
}

// rank orders by severity desc, then distance asc, then source id asc.
func rank(a, b domain.Candidate) int {
	if c := cmp.Compare(b.Severity, a.Severity); c != 0 {
		return c
	}
	if c := cmp.Compare(a.DistanceKm, b.DistanceKm); c != 0 {
		return c
	}
	return cmp.Compare(a.SourceID, b.SourceID)
}

// severityIndex is the rounded mean severity of the leading candidates.
func severityIndex(ranked []domain.Candidate) int {
	n := min(len(ranked), indexWindow)
	if n == 0 {
		return 0
	}
	sum := 0
	for _, c := range ranked[:n] {
		sum += c.Severity
	}
	return min(int(math.Round(float64(sum)/float64(n))), 100)
}

func wrapStorage(err error) error {
	return fmt.Errorf("%w: %w", domain.ErrStorage, err)
}
