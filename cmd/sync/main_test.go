package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/couchcryptid/atmosfault-service/internal/domain"
	"github.com/couchcryptid/atmosfault-service/internal/ingest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		args []string
		want command
	}{
		{[]string{"all"}, command{name: "all"}},
		{[]string{"0"}, command{name: "hour", arg: 0}},
		{[]string{"23"}, command{name: "hour", arg: 23}},
		{[]string{"cleanup"}, command{name: "cleanup"}},
		{[]string{"cleanup", "14"}, command{name: "cleanup", arg: 14}},
		{[]string{"cleanup", "soon"}, command{name: "cleanup"}},
		{[]string{"cache-cleanup", "3"}, command{name: "cache-cleanup", arg: 3}},
	}
	for _, tt := range tests {
		got, err := parseCommand(tt.args)
		require.NoError(t, err, tt.args)
		assert.Equal(t, tt.want, got, tt.args)
	}
}

func TestParseCommand_Errors(t *testing.T) {
	_, err := parseCommand([]string{"backfill"})
	require.ErrorIs(t, err, errUsage)

	_, err = parseCommand([]string{"24"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "between 0 and 23")

	_, err = parseCommand([]string{"-1"})
	require.Error(t, err)
}

func TestCommandDays(t *testing.T) {
	assert.Equal(t, 7, command{name: "cleanup"}.days(7))
	assert.Equal(t, 30, command{name: "cleanup", arg: 30}.days(7))
}

func TestRun_NoArgs(t *testing.T) {
	err := run(context.Background(), nil, &bytes.Buffer{})
	require.ErrorIs(t, err, errUsage)
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	printSummary(&buf, ingest.Summary{
		Total:    15,
		PerBatch: []domain.BatchResult{{Hour: 0, Count: 10}, {Hour: 5, Count: 5}},
	})

	out := buf.String()
	assert.Contains(t, out, "Total records processed: 15")
	assert.Contains(t, out, "  Hour 00: 10 records\n")
	assert.Contains(t, out, "  Hour 05: 5 records\n")
}
