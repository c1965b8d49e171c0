package windborne

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/couchcryptid/atmosfault-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(baseURL string) *Client {
	return NewClient(baseURL, 5*time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestFetchBatch_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/treasure/05.json", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `[[10.0, 20.0, 3.0], [-45.5, 170.25, 18.7]]`)
	}))
	defer srv.Close()

	samples, skipped, err := testClient(srv.URL+"/treasure/").FetchBatch(context.Background(), 5)
	require.NoError(t, err)
	assert.Zero(t, skipped)
	require.Len(t, samples, 2)
	assert.Equal(t, domain.RawSample{Ordinal: 0, Latitude: 10, Longitude: 20, Altitude: 3}, samples[0])
	assert.Equal(t, domain.RawSample{Ordinal: 1, Latitude: -45.5, Longitude: 170.25, Altitude: 18.7}, samples[1])
}

func TestFetchBatch_SkipsMalformedElements(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `[
			[1, 2, 3],
			[1, 2],
			null,
			[1, null, 3],
			"garbage",
			[4, 5, 6, 7],
			[7, 8, 9]
		]`)
	}))
	defer srv.Close()

	samples, skipped, err := testClient(srv.URL).FetchBatch(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 4, skipped)
	require.Len(t, samples, 3)
	assert.Equal(t, 0, samples[0].Ordinal)
	assert.Equal(t, 5, samples[1].Ordinal)
	assert.Equal(t, 6, samples[2].Ordinal)
	assert.Equal(t, 9.0, samples[2].Altitude)
}

func TestFetchBatch_NullElementIsSkipped(t *testing.T) {
	// json.Unmarshal of null into a slice leaves it nil, so length check rejects it.
	s, ok := decodeElement([]byte("null"))
	assert.False(t, ok)
	assert.Zero(t, s)
}

func TestFetchBatch_Non200IsUpstreamUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()

	_, _, err := testClient(srv.URL).FetchBatch(context.Background(), 23)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
}

func TestFetchBatch_CorruptBodyIsUpstreamUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `[[1,2,3], [4,5`)
	}))
	defer srv.Close()

	_, _, err := testClient(srv.URL).FetchBatch(context.Background(), 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
}

func TestFetchBatch_InvalidIndex(t *testing.T) {
	_, _, err := testClient("http://127.0.0.1:1").FetchBatch(context.Background(), 24)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestFetchBatch_CancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `[]`)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := testClient(srv.URL).FetchBatch(ctx, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
}
