// Command sync runs one-off telemetry syncs and retention cleanups against
// the configured stores.
//
// Usage:
//
//	go run ./cmd/sync all                  sync all 24 hours
//	go run ./cmd/sync <hour>               sync one hour (0-23)
//	go run ./cmd/sync cleanup [days]       delete samples older than N days
//	go run ./cmd/sync cache-cleanup [days] delete tracking cache rows older than N days
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/couchcryptid/atmosfault-service/internal/adapter/windborne"
	"github.com/couchcryptid/atmosfault-service/internal/config"
	"github.com/couchcryptid/atmosfault-service/internal/domain"
	"github.com/couchcryptid/atmosfault-service/internal/ingest"
	"github.com/couchcryptid/atmosfault-service/internal/observability"
	"github.com/couchcryptid/atmosfault-service/internal/storage"
	"github.com/couchcryptid/atmosfault-service/internal/tracking"
)

var errUsage = errors.New("usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			printUsage(os.Stdout)
		} else {
			fmt.Fprintln(os.Stderr, "\nError:", err)
		}
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, err := parseCommand(args)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	stores, err := storage.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = stores.Close() }()

	feed := windborne.NewClient(cfg.FeedBaseURL, cfg.FeedTimeout, logger)
	pipeline := ingest.New(feed, stores.Telemetry, logger, metrics, cfg.IngestChunkSize,
		ingest.WithConcurrency(cfg.IngestConcurrency),
		ingest.WithFetchRetry(3, 200*time.Millisecond),
	)

	switch cmd.name {
	case "all":
		fmt.Fprintln(out, "Syncing all 24 hours of balloon data...")
		summary, err := pipeline.IngestAll(ctx)
		if err != nil {
			return err
		}
		printSummary(out, summary)
	case "hour":
		fmt.Fprintf(out, "Syncing hour %d...\n", cmd.arg)
		n, err := pipeline.IngestBatch(ctx, cmd.arg)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "\nSync complete! Processed %d records\n", n)
	case "cleanup":
		days := cmd.days(cfg.RetentionDays)
		fmt.Fprintf(out, "Cleaning up data older than %d days...\n", days)
		n, err := pipeline.Sweep(ctx, time.Duration(days)*24*time.Hour)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "\nCleanup complete! Deleted %d samples\n", n)
	case "cache-cleanup":
		days := cmd.days(cfg.RetentionDays)
		fmt.Fprintf(out, "Cleaning up tracking cache entries older than %d days...\n", days)
		fetcher := tracking.NewFetcher(stores.Tracking, nil, logger, metrics, cfg.TrackingCacheTTL, cfg.ProviderTimeout, nil)
		n, err := fetcher.Cleanup(ctx, time.Duration(days)*24*time.Hour)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "\nCleanup complete! Deleted %d entries\n", n)
	}
	return nil
}

type command struct {
	name string
	arg  int // hour for "hour", day count for cleanups (0 means default)
}

func (c command) days(def int) int {
	if c.arg > 0 {
		return c.arg
	}
	return def
}

func parseCommand(args []string) (command, error) {
	switch args[0] {
	case "all":
		return command{name: "all"}, nil
	case "cleanup", "cache-cleanup":
		c := command{name: args[0]}
		if len(args) > 1 {
			// Unparseable or non-positive day counts fall back to the default.
			if n, err := strconv.Atoi(args[1]); err == nil && n > 0 {
				c.arg = n
			}
		}
		return c, nil
	}

	hour, err := strconv.Atoi(args[0])
	if err != nil {
		return command{}, errUsage
	}
	if hour < 0 || hour >= domain.BatchCount {
		return command{}, errors.New("hour must be between 0 and 23")
	}
	return command{name: "hour", arg: hour}, nil
}

func printSummary(out io.Writer, summary ingest.Summary) {
	fmt.Fprintln(out, "\nSync complete!")
	fmt.Fprintf(out, "Total records processed: %d\n", summary.Total)
	fmt.Fprintln(out, "\nBreakdown by hour:")
	for _, r := range summary.PerBatch {
		fmt.Fprintf(out, "  Hour %02d: %d records\n", r.Hour, r.Count)
	}
}

func printUsage(out io.Writer) {
	fmt.Fprintln(out, "Usage:")
	fmt.Fprintln(out, "  sync all                  - Sync all 24 hours")
	fmt.Fprintln(out, "  sync <hour>               - Sync specific hour (0-23)")
	fmt.Fprintln(out, "  sync cleanup [days]       - Cleanup samples older than N days (default: RETENTION_DAYS)")
	fmt.Fprintln(out, "  sync cache-cleanup [days] - Cleanup tracking cache entries older than N days")
}
