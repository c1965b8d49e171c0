// Package dhl looks up shipments through the DHL Shipment Tracking API.
package dhl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/couchcryptid/atmosfault-service/internal/adapter/httpclient"
	"github.com/couchcryptid/atmosfault-service/internal/domain"
	"github.com/couchcryptid/atmosfault-service/internal/observability"
)

// DefaultBaseURL is the unified tracking endpoint.
const DefaultBaseURL = "https://api-eu.dhl.com/track/shipments"

// Client implements domain.TrackingProvider.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewClient creates a DHL tracking client. An empty baseURL uses DefaultBaseURL.
func NewClient(apiKey, baseURL string, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: httpclient.New(timeout),
		logger:     logger,
		metrics:    metrics,
	}
}

// Track fetches and validates the shipments for trackingNumber. A 404 or an
// empty shipment list yields domain.ErrNotFound and a 429 domain.ErrRateLimited.
// A client without an API key fails with a plain configuration error.
func (c *Client) Track(ctx context.Context, trackingNumber string) (*domain.ProviderResponse, error) {
	if c.apiKey == "" {
		return nil, errMissingAPIKey
	}

	params := url.Values{
		"trackingNumber": {trackingNumber},
		"service":        {"express"},
		"language":       {"en"},
		"offset":         {"0"},
		"limit":          {"5"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("DHL-API-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.ProviderDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("dhl request: %w: %w", domain.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("dhl shipment %s: %w", trackingNumber, domain.ErrNotFound)
	case resp.StatusCode == http.StatusTooManyRequests:
		c.logger.Warn("dhl api rate limit reached", "tracking_number", trackingNumber)
		return nil, fmt.Errorf("dhl api status %d: %w", resp.StatusCode, domain.ErrRateLimited)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn("dhl api error", "status", resp.StatusCode, "tracking_number", trackingNumber)
		return nil, fmt.Errorf("dhl api status %d: %s: %w", resp.StatusCode, body, domain.ErrUpstreamUnavailable)
	}

	var wire response
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("decode dhl response: %w: %w", domain.ErrUpstreamUnavailable, err)
	}

	out, err := wire.toDomain()
	if err != nil {
		return nil, err
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	if len(out.Shipments) == 0 {
		return nil, fmt.Errorf("dhl shipment %s: %w", trackingNumber, domain.ErrNotFound)
	}
	return out, nil
}

// DHL API response types.

type response struct {
	Shipments []shipment `json:"shipments"`
}

type address struct {
	AddressLocality string `json:"addressLocality"`
	CountryCode     string `json:"countryCode"`
}

type place struct {
	Address *address `json:"address"`
}

type event struct {
	Timestamp   string   `json:"timestamp"`
	Location    *place   `json:"location"`
	StatusCode  string   `json:"statusCode"`
	Status      string   `json:"status"`
	Description string   `json:"description"`
	PieceIDs    []string `json:"pieceIds"`
}

type shipment struct {
	ID          string  `json:"id"`
	Service     string  `json:"service"`
	Origin      *place  `json:"origin"`
	Destination *place  `json:"destination"`
	Status      *event  `json:"status"`
	Events      []event `json:"events"`
	Details     *struct {
		Product *struct {
			ProductName string `json:"productName"`
		} `json:"product"`
		TotalNumberOfPieces int `json:"totalNumberOfPieces"`
	} `json:"details"`
}

var (
	errBadTimestamp  = errors.New("unparseable timestamp")
	errMissingAPIKey = errors.New("dhl api key not configured")
)

func (r response) toDomain() (*domain.ProviderResponse, error) {
	out := &domain.ProviderResponse{Shipments: make([]domain.Shipment, 0, len(r.Shipments))}
	for _, s := range r.Shipments {
		ds := domain.Shipment{
			ID:          s.ID,
			Service:     s.Service,
			Origin:      s.Origin.toDomain(),
			Destination: s.Destination.toDomain(),
			Events:      make([]domain.ShipmentEvent, 0, len(s.Events)),
		}
		if s.Status != nil {
			// A missing status timestamp is tolerated; event timestamps are not.
			st, _ := s.Status.toDomain()
			ds.Status = st
		}
		for i, e := range s.Events {
			de, err := e.toDomain()
			if err != nil {
				return nil, fmt.Errorf("shipment %s event %d: %w: %w", s.ID, i, domain.ErrUpstreamUnavailable, err)
			}
			ds.Events = append(ds.Events, de)
		}
		if s.Details != nil {
			ds.TotalPieces = s.Details.TotalNumberOfPieces
			if s.Details.Product != nil {
				ds.ProductName = s.Details.Product.ProductName
			}
		}
		out.Shipments = append(out.Shipments, ds)
	}
	return out, nil
}

func (p *place) toDomain() domain.Address {
	if p == nil || p.Address == nil {
		return domain.Address{}
	}
	return domain.Address{Locality: p.Address.AddressLocality, CountryCode: p.Address.CountryCode}
}

func (e event) toDomain() (domain.ShipmentEvent, error) {
	ts, err := parseTimestamp(e.Timestamp)
	out := domain.ShipmentEvent{
		Timestamp:   ts,
		StatusCode:  e.StatusCode,
		Status:      e.Status,
		Description: e.Description,
		PieceIDs:    e.PieceIDs,
	}
	if e.Location != nil && e.Location.Address != nil {
		addr := e.Location.toDomain()
		out.Location = &addr
	}
	return out, err
}

// DHL emits both zoned and local timestamps.
var timestampLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02T15:04"}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", errBadTimestamp, s)
}
