package observability

import (
	"log/slog"
	"testing"

	"github.com/couchcryptid/atmosfault-service/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_RespectsLevel(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"warn":    slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
	}
	for level, want := range tests {
		logger := NewLogger(&config.Config{LogLevel: level, LogFormat: "text"})
		require.NotNil(t, logger)
		assert.True(t, logger.Enabled(t.Context(), want), level)
		assert.False(t, logger.Enabled(t.Context(), want-1), level)
	}
}

func TestMetrics_RegisterOnFreshRegistry(t *testing.T) {
	m := NewMetricsForTesting()
	reg := prometheus.NewRegistry()
	require.NoError(t, func() error {
		for _, c := range m.collectors() {
			if err := reg.Register(c); err != nil {
				return err
			}
		}
		return nil
	}())

	m.IngestBatches.WithLabelValues("success").Inc()
	m.SamplesUpserted.Add(3)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IngestBatches.WithLabelValues("success")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.SamplesUpserted))
}
