package tracking

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/atmosfault-service/internal/domain"
	"github.com/couchcryptid/atmosfault-service/internal/observability"
)

const (
	maxTrackingNumberLen = 100
	telemetryPrefix      = "ATM-"
	maxTelemetrySamples  = 100
)

var trackingNumberRe = regexp.MustCompile(`^[A-Za-z0-9-]+$`)

// PayloadSource yields validated provider payloads. *Fetcher satisfies it.
type PayloadSource interface {
	Get(ctx context.Context, externalID string) (*domain.ProviderResponse, error)
}

// Correlator builds a blame chain around a location. *correlation.Engine satisfies it.
type Correlator interface {
	Correlate(ctx context.Context, subject domain.Location, radiusKm float64) (*domain.BlameChain, error)
}

// Assembler builds tracking responses for both tracking number families.
type Assembler struct {
	payloads   PayloadSource
	store      domain.TelemetryStore
	geocoder   domain.Geocoder
	weather    domain.WeatherProvider
	correlator Correlator
	radiusKm   float64
	logger     *slog.Logger
	metrics    *observability.Metrics
	clock      clockwork.Clock
}

// AssemblerOption configures an Assembler.
type AssemblerOption func(*Assembler)

// WithGeocoder resolves event cities to coordinates and telemetry positions to place names.
func WithGeocoder(g domain.Geocoder) AssemblerOption {
	return func(a *Assembler) { a.geocoder = g }
}

// WithWeather attaches current conditions at the current location.
func WithWeather(w domain.WeatherProvider) AssemblerOption {
	return func(a *Assembler) { a.weather = w }
}

// WithCorrelator attaches a blame chain to shipment responses.
func WithCorrelator(c Correlator, radiusKm float64) AssemblerOption {
	return func(a *Assembler) {
		a.correlator = c
		a.radiusKm = radiusKm
	}
}

// WithAssemblerClock sets the clock used for status ageing and delivery estimates.
func WithAssemblerClock(c clockwork.Clock) AssemblerOption {
	return func(a *Assembler) { a.clock = c }
}

// NewAssembler creates an Assembler. Enrichment collaborators are optional.
func NewAssembler(payloads PayloadSource, store domain.TelemetryStore, logger *slog.Logger, metrics *observability.Metrics, opts ...AssemblerOption) *Assembler {
	a := &Assembler{
		payloads: payloads,
		store:    store,
		logger:   logger,
		metrics:  metrics,
		clock:    clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Assemble returns the tracking response for trackingNumber. Malformed and
// unknown numbers yield domain.ErrNotFound. Enrichment never fails the call.
func (a *Assembler) Assemble(ctx context.Context, trackingNumber string) (*domain.TrackingResponse, error) {
	id := strings.TrimSpace(trackingNumber)
	if !validTrackingNumber(id) {
		return nil, fmt.Errorf("tracking number %q: %w", trackingNumber, domain.ErrNotFound)
	}

	if strings.HasPrefix(strings.ToUpper(id), telemetryPrefix) {
		_, ordinal, ok := domain.ParseSourceID(strings.ToUpper(id))
		if !ok {
			return nil, fmt.Errorf("telemetry id %q: %w", id, domain.ErrNotFound)
		}
		return a.assembleTelemetry(ctx, strings.ToUpper(id), ordinal)
	}
	return a.assembleShipment(ctx, id)
}

func validTrackingNumber(id string) bool {
	return id != "" && len(id) <= maxTrackingNumberLen && trackingNumberRe.MatchString(id)
}

// attachWeather sets resp.Weather when the current location has coordinates.
func (a *Assembler) attachWeather(ctx context.Context, resp *domain.TrackingResponse) {
	loc := resp.CurrentLocation
	if a.weather == nil || !loc.HasCoordinates() {
		return
	}
	w, err := a.weather.CurrentWeather(ctx, *loc.Latitude, *loc.Longitude)
	if err != nil {
		a.enrichmentFailed("weather", resp.TrackingNumber, err)
		return
	}
	resp.Weather = w
}

func (a *Assembler) attachBlame(ctx context.Context, resp *domain.TrackingResponse) {
	if a.correlator == nil {
		return
	}
	chain, err := a.correlator.Correlate(ctx, resp.CurrentLocation, a.radiusKm)
	if err != nil {
		a.enrichmentFailed("correlation", resp.TrackingNumber, err)
		return
	}
	resp.Blame = chain
}

func (a *Assembler) enrichmentFailed(kind, trackingNumber string, err error) {
	a.metrics.EnrichmentFailures.WithLabelValues(kind).Inc()
	a.logger.Warn("enrichment failed", "kind", kind, "tracking_number", trackingNumber, "error", err)
}
