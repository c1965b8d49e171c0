package domain

import (
	"fmt"
	"time"
)

// CachedTrackingRecord is one row of the tracking cache. At most one exists per ExternalID.
type CachedTrackingRecord struct {
	ExternalID  string
	Payload     []byte
	RefreshedAt time.Time
	CreatedAt   time.Time
}

// Fresh reports whether the record was refreshed less than ttl before now.
func (r CachedTrackingRecord) Fresh(now time.Time, ttl time.Duration) bool {
	return now.Sub(r.RefreshedAt) < ttl
}

// Address is a carrier address as reported by the provider.
// Locality is usually "CITY - STATE - COUNTRY" or just a city name.
type Address struct {
	Locality    string `json:"locality,omitempty"`
	CountryCode string `json:"countryCode,omitempty"`
}

// ShipmentEvent is one checkpoint in a shipment's history.
type ShipmentEvent struct {
	Timestamp   time.Time `json:"timestamp"`
	Location    *Address  `json:"location,omitempty"`
	StatusCode  string    `json:"statusCode"`
	Status      string    `json:"status,omitempty"`
	Description string    `json:"description,omitempty"`
	PieceIDs    []string  `json:"pieceIds,omitempty"`
}

// Shipment is the validated subset of a provider shipment we rely on.
type Shipment struct {
	ID          string          `json:"id"`
	Service     string          `json:"service,omitempty"`
	Origin      Address         `json:"origin"`
	Destination Address         `json:"destination"`
	Status      ShipmentEvent   `json:"status"`
	Events      []ShipmentEvent `json:"events"`
	ProductName string          `json:"productName,omitempty"`
	TotalPieces int             `json:"totalPieces,omitempty"`
}

// ProviderResponse is a validated tracking provider payload.
type ProviderResponse struct {
	Shipments []Shipment `json:"shipments"`
}

// Validate rejects payloads with missing identifiers or timestamps.
// Errors wrap ErrUpstreamUnavailable.
func (p *ProviderResponse) Validate() error {
	if p == nil {
		return fmt.Errorf("empty provider payload: %w", ErrUpstreamUnavailable)
	}
	for i, s := range p.Shipments {
		if s.ID == "" {
			return fmt.Errorf("shipment %d has no id: %w", i, ErrUpstreamUnavailable)
		}
		for j, e := range s.Events {
			if e.Timestamp.IsZero() {
				return fmt.Errorf("shipment %s event %d has no timestamp: %w", s.ID, j, ErrUpstreamUnavailable)
			}
		}
	}
	return nil
}

// PackageStatus is the normalized delivery state.
type PackageStatus string

const (
	StatusPending   PackageStatus = "pending"
	StatusInTransit PackageStatus = "in_transit"
	StatusDelivered PackageStatus = "delivered"
	StatusFailed    PackageStatus = "failed"
)

// Location is a point on a tracked route. Coordinates are omitted when unknown.
type Location struct {
	City        string     `json:"city,omitempty"`
	Country     string     `json:"country,omitempty"`
	CountryCode string     `json:"countryCode,omitempty"`
	Timestamp   *time.Time `json:"timestamp,omitempty"`
	Latitude    *float64   `json:"latitude,omitempty"`
	Longitude   *float64   `json:"longitude,omitempty"`
	Altitude    *float64   `json:"altitude,omitempty"`
}

// HasCoordinates reports whether both latitude and longitude are known.
func (l Location) HasCoordinates() bool {
	return l.Latitude != nil && l.Longitude != nil
}

// Place is an origin or destination summary.
type Place struct {
	City    string `json:"city"`
	Country string `json:"country"`
}

// TimelineEvent is derived per request from provider events or telemetry samples.
type TimelineEvent struct {
	Status      PackageStatus `json:"status"`
	Timestamp   time.Time     `json:"timestamp"`
	Location    Location      `json:"location"`
	Description string        `json:"description"`
}

// Metadata carries source-specific details.
type Metadata struct {
	Service     string   `json:"service,omitempty"`
	ProductName string   `json:"productName,omitempty"`
	TotalPieces int      `json:"totalPieces,omitempty"`
	PieceIDs    []string `json:"pieceIds,omitempty"`

	SampleID    string `json:"balloonId,omitempty"`
	Ordinal     *int   `json:"arrayIndex,omitempty"`
	BatchIndex  *int   `json:"snapshotHour,omitempty"`
	Destination string `json:"destination,omitempty"`
}

// Weather is the current conditions at a coordinate.
type Weather struct {
	Temperature   float64 `json:"temperature"` // Celsius
	FeelsLike     float64 `json:"feelsLike"`
	Pressure      float64 `json:"pressure"` // hPa
	Humidity      float64 `json:"humidity"` // %
	WindSpeed     float64 `json:"windSpeed"` // m/s
	WindDirection float64 `json:"windDirection"` // degrees
	Description   string  `json:"description"`
	Icon          string  `json:"icon"`
	Clouds        float64 `json:"clouds"` // %
}

// TrackingResponse is the assembled answer for one tracking number.
type TrackingResponse struct {
	TrackingNumber    string          `json:"trackingNumber"`
	Status            PackageStatus   `json:"status"`
	CurrentLocation   Location        `json:"currentLocation"`
	Origin            *Place          `json:"origin,omitempty"`
	Destination       *Place          `json:"destination,omitempty"`
	Timeline          []TimelineEvent `json:"timeline"`
	EstimatedDelivery *time.Time      `json:"estimatedDelivery"`
	Metadata          Metadata        `json:"metadata"`
	Blame             *BlameChain     `json:"blame,omitempty"`
	Weather           *Weather        `json:"weather,omitempty"`
}
