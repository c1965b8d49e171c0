// Package openweather fetches current conditions from OpenWeatherMap.
package openweather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/couchcryptid/atmosfault-service/internal/adapter/httpclient"
	"github.com/couchcryptid/atmosfault-service/internal/domain"
)

// DefaultBaseURL is the current-weather endpoint.
const DefaultBaseURL = "https://api.openweathermap.org/data/2.5/weather"

// Client implements domain.WeatherProvider.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a weather client. An empty baseURL uses DefaultBaseURL.
func NewClient(apiKey, baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: httpclient.New(timeout),
		logger:     logger,
	}
}

// CurrentWeather returns metric conditions at (lat, lon).
func (c *Client) CurrentWeather(ctx context.Context, lat, lon float64) (*domain.Weather, error) {
	params := url.Values{
		"lat":   {strconv.FormatFloat(lat, 'f', -1, 64)},
		"lon":   {strconv.FormatFloat(lon, 'f', -1, 64)},
		"appid": {c.apiKey},
		"units": {"metric"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("weather request: %w: %w", domain.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn("weather api error", "status", resp.StatusCode)
		return nil, fmt.Errorf("weather api status %d: %s: %w", resp.StatusCode, body, domain.ErrUpstreamUnavailable)
	}

	var wire response
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("decode weather response: %w: %w", domain.ErrUpstreamUnavailable, err)
	}
	if wire.Main == nil {
		return nil, fmt.Errorf("weather response has no main block: %w", domain.ErrUpstreamUnavailable)
	}
	return wire.toDomain(), nil
}

// OpenWeatherMap response types.

type response struct {
	Main *struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		Pressure  float64 `json:"pressure"`
		Humidity  float64 `json:"humidity"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
		Deg   float64 `json:"deg"`
	} `json:"wind"`
	Weather []struct {
		Description string `json:"description"`
		Icon        string `json:"icon"`
	} `json:"weather"`
	Clouds struct {
		All float64 `json:"all"`
	} `json:"clouds"`
}

func (r response) toDomain() *domain.Weather {
	w := &domain.Weather{
		Temperature:   r.Main.Temp,
		FeelsLike:     r.Main.FeelsLike,
		Pressure:      r.Main.Pressure,
		Humidity:      r.Main.Humidity,
		WindSpeed:     r.Wind.Speed,
		WindDirection: r.Wind.Deg,
		Clouds:        r.Clouds.All,
	}
	if len(r.Weather) > 0 {
		w.Description = r.Weather[0].Description
		w.Icon = r.Weather[0].Icon
	}
	return w
}
