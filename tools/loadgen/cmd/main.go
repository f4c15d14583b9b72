// Package main is the CLI entry point for the ledger load generator.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clinicpos/tools/loadgen/internal/runner"
)

var (
	baseURL  string
	qps      float64
	workers  int
	duration time.Duration
	products int
	actorID  string
)

func init() {
	flag.StringVar(&baseURL, "url", "http://localhost:8080", "Ledger API base URL")
	flag.Float64Var(&qps, "qps", 50, "Steady request rate across all workers")
	flag.IntVar(&workers, "workers", 8, "Number of concurrent request loops")
	flag.DurationVar(&duration, "duration", time.Minute, "How long to run (e.g. 5m, 1h)")
	flag.DurationVar(&duration, "d", time.Minute, "How long to run (shorthand)")
	flag.IntVar(&products, "products", 20, "Synthetic product IDs to seed the pool with")
	flag.StringVar(&actorID, "actor", "", "Actor UUID stamped on requests (random if empty)")

	flag.Usage = printUsage
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `loadgen - synthetic POS traffic for the ledger

USAGE:
    loadgen -url <base-url> [options]

DESCRIPTION:
    Registers a load-test location, then drives a weighted mix of receipts,
    allocation previews, adjustments and ledger queries. Identifiers from
    responses feed later requests, so adjustments hit batches that exist.

OPTIONS:
    -url <url>        Ledger API base URL (default http://localhost:8080)
    -qps <n>          Steady request rate (default 50)
    -workers <n>      Concurrent request loops (default 8)
    -duration, -d     Run length (default 1m)
    -products <n>     Synthetic product IDs to seed (default 20)
    -actor <uuid>     Actor stamped on requests (random if empty)

EXAMPLES:
    loadgen -url http://localhost:8080 -qps 200 -d 5m
    loadgen -url https://ledger.staging.clinic.local -workers 32
`)
}

func main() {
	flag.Parse()

	cfg := runner.DefaultConfig()
	cfg.BaseURL = baseURL
	cfg.QPS = qps
	cfg.Workers = workers
	cfg.Duration = duration
	cfg.Products = products
	cfg.ActorID = actorID

	r := runner.New(cfg)
	defer r.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Seeding against %s...\n", baseURL)
	if err := r.Seed(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Running %v at %.0f qps with %d workers\n", duration, qps, workers)
	start := time.Now()
	poolStats, err := r.Run(ctx)
	elapsed := time.Since(start)
	if err != nil {
		fmt.Fprintf(os.Stderr, "run failed: %v\n", err)
		os.Exit(1)
	}

	total, succeeded, rejected, failed, skipped := r.StatsSnapshot()
	fmt.Printf("\nDone in %v\n", elapsed.Round(time.Second))
	fmt.Printf("  requests:  %d (%.1f/s)\n", total, float64(total)/elapsed.Seconds())
	fmt.Printf("  succeeded: %d\n", succeeded)
	fmt.Printf("  rejected:  %d (4xx ledger answers)\n", rejected)
	fmt.Printf("  failed:    %d\n", failed)
	fmt.Printf("  skipped:   %d (pool had no value yet)\n", skipped)
	fmt.Printf("  pool:      %d values, %.1f%% hit rate\n", poolStats.TotalValues, poolStats.HitRate())

	if failed > 0 {
		os.Exit(1)
	}
}
