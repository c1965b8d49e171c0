// Package windborne reads the hourly balloon telemetry shards.
package windborne

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/couchcryptid/atmosfault-service/internal/adapter/httpclient"
	"github.com/couchcryptid/atmosfault-service/internal/domain"
)

// DefaultBaseURL is the public WindBorne treasure endpoint.
const DefaultBaseURL = "https://a.windbornesystems.com/treasure"

// maxBodyBytes caps a single shard download.
const maxBodyBytes = 64 << 20

// Client implements domain.TelemetryFeed over HTTP. Shard N lives at
// {baseURL}/{NN}.json and holds an array of [lat, lon, alt] triples.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// NewClient creates a feed client. An empty baseURL uses DefaultBaseURL.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: httpclient.New(timeout),
		baseURL:    strings.TrimRight(baseURL, "/"),
		logger:     logger,
	}
}

// FetchBatch downloads one shard. Elements that are not three finite numbers
// are dropped and counted; the others keep their array position as Ordinal.
// Transport, status and top-level decode failures wrap domain.ErrUpstreamUnavailable.
func (c *Client) FetchBatch(ctx context.Context, batchIndex int) ([]domain.RawSample, int, error) {
	if !domain.ValidBatchIndex(batchIndex) {
		return nil, 0, fmt.Errorf("batch index %d: %w", batchIndex, domain.ErrValidation)
	}
	u := fmt.Sprintf("%s/%02d.json", c.baseURL, batchIndex)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("fetch %s: %w: %w", u, domain.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, 0, fmt.Errorf("feed status %d for %s: %s: %w", resp.StatusCode, u, body, domain.ErrUpstreamUnavailable)
	}

	var elements []json.RawMessage
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&elements); err != nil {
		return nil, 0, fmt.Errorf("decode shard %02d: %w: %w", batchIndex, domain.ErrUpstreamUnavailable, err)
	}

	samples, skipped := decodeElements(elements)
	if skipped > 0 {
		c.logger.Warn("dropped malformed feed elements", "batch", batchIndex, "skipped", skipped, "kept", len(samples))
	}
	return samples, skipped, nil
}

func decodeElements(elements []json.RawMessage) ([]domain.RawSample, int) {
	samples := make([]domain.RawSample, 0, len(elements))
	skipped := 0
	for i, raw := range elements {
		s, ok := decodeElement(raw)
		if !ok {
			skipped++
			continue
		}
		s.Ordinal = i
		samples = append(samples, s)
	}
	return samples, skipped
}

func decodeElement(raw json.RawMessage) (domain.RawSample, bool) {
	var triple []*float64
	if err := json.Unmarshal(raw, &triple); err != nil || len(triple) < 3 {
		return domain.RawSample{}, false
	}
	for _, v := range triple[:3] {
		if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
			return domain.RawSample{}, false
		}
	}
	return domain.RawSample{
		Latitude:  *triple[0],
		Longitude: *triple[1],
		Altitude:  *triple[2],
	}, true
}
