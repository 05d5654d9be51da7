// Package main checks that runs are reproducible: either by simulating the
// configured run twice, or by replaying a stored run and diffing it.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"causal-commerce-lab/internal/bootstrap"
	"causal-commerce-lab/internal/engine"
	"causal-commerce-lab/internal/observability"
	"causal-commerce-lab/internal/verification"
)

func main() {
	bootstrap.LoadEnvFile(".env")

	var cfgFlags bootstrap.ConfigFlags
	cfgFlags.Register(flag.CommandLine)
	runID := flag.String("run-id", "", "Stored run to replay (default: simulate the configured run twice)")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage")
	fixtures := flag.Bool("fixtures", false, "Generate synthetic order items for the horizon")
	fixtureSeed := flag.Uint64("fixture-seed", 1, "Seed of the synthetic order stream")
	outputJSON := flag.Bool("json", false, "Output as JSON")
	flag.Parse()

	logger := log.New(os.Stderr, "[verify] ", log.LstdFlags)

	cfg, err := cfgFlags.Resolve()
	if err != nil {
		logger.Fatalf("Invalid configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, shutting down...", sig)
		cancel()
	}()

	stores, cleanup, err := bootstrap.OpenStores(ctx, bootstrap.StoreOptions{
		PostgresDSN:   *postgresDSN,
		ClickHouseDSN: *clickhouseDSN,
		UseMemory:     *useMemory,
	}, logger)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	if *fixtures {
		if _, err := bootstrap.LoadFixtureOrders(ctx, stores, cfg, *fixtureSeed); err != nil {
			logger.Fatalf("Failed to load fixtures: %v", err)
		}
	}

	e, err := engine.New(engine.Options{Stores: stores, Config: cfg, Metrics: observability.DefaultMetrics})
	if err != nil {
		logger.Fatalf("Failed to create engine: %v", err)
	}

	var report *verification.VerificationReport
	if *runID != "" {
		report, err = verification.NewReplayVerifier(e, stores).VerifyRun(ctx, *runID)
		switch {
		case errors.Is(err, verification.ErrRunNotFound):
			logger.Fatalf("Run %s not found", *runID)
		case errors.Is(err, verification.ErrConfigMismatch):
			logger.Fatalf("%v (pass the flags or -config that produced the run)", err)
		case err != nil:
			logger.Fatalf("Replay failed: %v", err)
		}
	} else {
		days, items, err := e.Inputs(ctx)
		if err != nil {
			logger.Fatalf("Failed to load inputs: %v", err)
		}
		report, err = verification.VerifyDeterminism(ctx, e, days, items)
		if err != nil {
			logger.Fatalf("Determinism check failed: %v", err)
		}
	}

	if *outputJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			logger.Fatalf("Failed to encode output: %v", err)
		}
	} else {
		printReport(report)
	}

	if !report.Match {
		os.Exit(1)
	}
}

func printReport(r *verification.VerificationReport) {
	status := "MATCH"
	if !r.Match {
		status = "MISMATCH"
	}
	fmt.Printf("=== Verification: %s ===\n", r.RunID)
	fmt.Printf("Result: %s\n\n", status)

	fmt.Println("Invariant checks:")
	for _, c := range r.Checks {
		mark := "PASS"
		if !c.Pass {
			mark = "FAIL"
		}
		fmt.Printf("  [%s] %s (threshold %s, actual %s)\n", mark, c.Name, c.Threshold, c.Actual)
	}

	if len(r.Divergences) > 0 {
		fmt.Printf("\nDivergences (%d):\n", len(r.Divergences))
		for i, d := range r.Divergences {
			if i == 20 {
				fmt.Printf("  ... %d more\n", len(r.Divergences)-i)
				break
			}
			fmt.Printf("  %s\n", d)
		}
	}
}
