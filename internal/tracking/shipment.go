package tracking

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/couchcryptid/atmosfault-service/internal/domain"
)

const unknownPlace = "Unknown"

func (a *Assembler) assembleShipment(ctx context.Context, id string) (*domain.TrackingResponse, error) {
	payload, err := a.payloads.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if payload == nil || len(payload.Shipments) == 0 {
		return nil, fmt.Errorf("no shipments for %s: %w", id, domain.ErrNotFound)
	}
	s := payload.Shipments[0]

	trackingNumber := s.ID
	if trackingNumber == "" {
		trackingNumber = id
	}

	// Providers disagree on event order; the timeline is oldest first.
	events := slices.Clone(s.Events)
	slices.SortStableFunc(events, func(x, y domain.ShipmentEvent) int {
		return x.Timestamp.Compare(y.Timestamp)
	})

	g := newRequestGeocoder(a, trackingNumber)
	resp := &domain.TrackingResponse{
		TrackingNumber:    trackingNumber,
		Status:            mapProviderStatus(s.Status.StatusCode),
		Origin:            addressPlace(s.Origin),
		Destination:       addressPlace(s.Destination),
		Timeline:          make([]domain.TimelineEvent, 0, len(events)),
		EstimatedDelivery: a.shipmentEstimate(s.Status),
		Metadata: domain.Metadata{
			Service:     s.Service,
			ProductName: s.ProductName,
			TotalPieces: s.TotalPieces,
			PieceIDs:    pieceIDs(s),
		},
	}
	for _, e := range events {
		resp.Timeline = append(resp.Timeline, domain.TimelineEvent{
			Status:      mapProviderStatus(e.StatusCode),
			Timestamp:   e.Timestamp,
			Location:    g.locate(ctx, e.Location, e.Timestamp),
			Description: e.Description,
		})
	}
	if n := len(resp.Timeline); n > 0 {
		resp.CurrentLocation = resp.Timeline[n-1].Location
	} else {
		resp.CurrentLocation = g.locate(ctx, s.Status.Location, s.Status.Timestamp)
	}

	a.attachWeather(ctx, resp)
	a.attachBlame(ctx, resp)
	return resp, nil
}

func mapProviderStatus(code string) domain.PackageStatus {
	switch strings.ToLower(code) {
	case "delivered":
		return domain.StatusDelivered
	case "transit":
		return domain.StatusInTransit
	case "failure":
		return domain.StatusFailed
	case "pending":
		return domain.StatusPending
	default:
		return domain.StatusInTransit
	}
}

func (a *Assembler) shipmentEstimate(status domain.ShipmentEvent) *time.Time {
	var eta time.Time
	switch strings.ToLower(status.StatusCode) {
	case "delivered":
		if status.Timestamp.IsZero() {
			return nil
		}
		eta = status.Timestamp
	case "transit":
		eta = a.clock.Now().UTC().AddDate(0, 0, 3)
	default:
		eta = a.clock.Now().UTC().AddDate(0, 0, 5)
	}
	return &eta
}

// pieceIDs collects the distinct piece ids seen across the shipment, in order of appearance.
func pieceIDs(s domain.Shipment) []string {
	var out []string
	seen := make(map[string]struct{})
	add := func(ids []string) {
		for _, id := range ids {
			if _, ok := seen[id]; ok || id == "" {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	add(s.Status.PieceIDs)
	for _, e := range s.Events {
		add(e.PieceIDs)
	}
	return out
}

// parseLocality splits a "CITY - STATE - COUNTRY" locality. Single-part
// localities are a bare city name. An explicit country code wins over the
// parsed country.
func parseLocality(addr *domain.Address) (city, country, countryCode string) {
	city, country = unknownPlace, unknownPlace
	if addr == nil {
		return city, country, ""
	}

	parts := strings.Split(addr.Locality, " - ")
	if c := strings.TrimSpace(parts[0]); c != "" {
		city = c
	}
	if len(parts) > 2 {
		if c := strings.TrimSpace(parts[2]); c != "" {
			country = c
		}
	}
	if cc := strings.TrimSpace(addr.CountryCode); cc != "" {
		country = cc
		countryCode = cc
	}
	return city, country, countryCode
}

func addressPlace(addr domain.Address) *domain.Place {
	city, country, _ := parseLocality(&addr)
	return &domain.Place{City: city, Country: country}
}

// requestGeocoder memoizes forward lookups for the lifetime of one request
// so repeated event cities cost one call.
type requestGeocoder struct {
	a              *Assembler
	trackingNumber string
	seen           map[string]domain.GeocodingResult
}

func newRequestGeocoder(a *Assembler, trackingNumber string) *requestGeocoder {
	return &requestGeocoder{a: a, trackingNumber: trackingNumber, seen: make(map[string]domain.GeocodingResult)}
}

func (g *requestGeocoder) locate(ctx context.Context, addr *domain.Address, ts time.Time) domain.Location {
	city, country, countryCode := parseLocality(addr)
	loc := domain.Location{City: city, Country: country, CountryCode: countryCode}
	if !ts.IsZero() {
		loc.Timestamp = &ts
	}
	if g.a.geocoder == nil || city == unknownPlace {
		return loc
	}

	bias := countryCode
	if bias == "" && country != unknownPlace {
		bias = country
	}
	key := strings.ToUpper(city) + "|" + strings.ToUpper(bias)
	res, ok := g.seen[key]
	if !ok {
		var err error
		res, err = g.a.geocoder.ForwardGeocode(ctx, city, bias)
		if err != nil {
			g.a.enrichmentFailed("geocode", g.trackingNumber, err)
		}
		g.seen[key] = res
	}
	if res.Found() {
		lat, lon := res.Lat, res.Lon
		loc.Latitude = &lat
		loc.Longitude = &lon
	}
	return loc
}
