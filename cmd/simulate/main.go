// Package main runs one seeded simulation: load inputs, simulate, persist,
// and export the observed and ground-truth tables.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"causal-commerce-lab/internal/bootstrap"
	"causal-commerce-lab/internal/engine"
	"causal-commerce-lab/internal/export"
	"causal-commerce-lab/internal/observability"
	"causal-commerce-lab/internal/pipeline"
)

func main() {
	// Load .env file if exists
	bootstrap.LoadEnvFile(".env")

	// Parse flags (env vars as defaults)
	var cfgFlags bootstrap.ConfigFlags
	cfgFlags.Register(flag.CommandLine)
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL/ClickHouse")
	migrate := flag.Bool("migrate", false, "Apply embedded migrations before running")
	fixtures := flag.Bool("fixtures", false, "Generate synthetic order items for the horizon")
	fixtureSeed := flag.Uint64("fixture-seed", 1, "Seed of the synthetic order stream")
	outputDir := flag.String("output-dir", "", "Output directory for run files (overrides config)")
	dwhDir := flag.String("dwh-dir", "", "Flat directory mirroring the latest run (overrides config)")
	s3Bucket := flag.String("s3-bucket", os.Getenv("S3_BUCKET"), "S3 bucket for exports (overrides config)")
	s3Prefix := flag.String("s3-prefix", os.Getenv("S3_PREFIX"), "S3 key prefix")
	s3Endpoint := flag.String("s3-endpoint", os.Getenv("S3_ENDPOINT"), "Custom S3 endpoint (MinIO, LocalStack)")
	s3Region := flag.String("s3-region", os.Getenv("AWS_REGION"), "S3 region")
	verbose := flag.Bool("verbose", false, "Verbose output")
	flag.Parse()

	logger := log.New(os.Stdout, "[simulate] ", log.LstdFlags)

	cfg, err := cfgFlags.Resolve()
	if err != nil {
		logger.Fatalf("Invalid configuration: %v", err)
	}
	if *outputDir != "" {
		cfg.Output.Dir = *outputDir
	}
	if *dwhDir != "" {
		cfg.Output.DWHDir = *dwhDir
	}
	if *s3Bucket != "" {
		cfg.Output.S3Bucket = *s3Bucket
	}
	if *s3Prefix != "" {
		cfg.Output.S3Prefix = *s3Prefix
	}
	if cfg.Output.Dir == "" {
		cfg.Output.Dir = "output"
	}

	// Create context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, cancelling run...", sig)
		cancel()
	}()

	// Create stores
	stores, cleanup, err := bootstrap.OpenStores(ctx, bootstrap.StoreOptions{
		PostgresDSN:   *postgresDSN,
		ClickHouseDSN: *clickhouseDSN,
		UseMemory:     *useMemory,
		Migrate:       *migrate,
	}, logger)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	if *fixtures {
		n, err := bootstrap.LoadFixtureOrders(ctx, stores, cfg, *fixtureSeed)
		if err != nil {
			logger.Fatalf("Failed to load fixtures: %v", err)
		}
		logger.Printf("Loaded %d fixture order items", n)
	}

	// Run the engine
	e, err := engine.New(engine.Options{
		Stores:  stores,
		Config:  cfg,
		Metrics: observability.DefaultMetrics,
		Verbose: *verbose,
	})
	if err != nil {
		logger.Fatalf("Failed to create engine: %v", err)
	}

	start := time.Now()
	res, err := e.Run(ctx)
	if err != nil {
		logger.Fatalf("Run failed: %v", err)
	}
	logger.Printf("Run %s completed in %v (persisted=%t)", res.Run.RunID, time.Since(start), res.Persisted)

	// Export
	sinks := []export.Sink{export.NewFileSink(cfg.Output.Dir, cfg.Output.DWHDir)}
	if cfg.Output.S3Bucket != "" {
		s3Sink, err := export.NewS3Sink(ctx, export.S3Options{
			Bucket:   cfg.Output.S3Bucket,
			Prefix:   cfg.Output.S3Prefix,
			Region:   *s3Region,
			Endpoint: *s3Endpoint,
		})
		if err != nil {
			logger.Fatalf("Failed to create S3 sink: %v", err)
		}
		sinks = append(sinks, s3Sink)
	}

	out := pipeline.NewOutputPipeline(export.NewExporter(observability.DefaultMetrics, sinks...))
	report, err := out.Run(ctx, res)
	if err != nil {
		logger.Fatalf("Export failed: %v", err)
	}

	run := res.Run
	fmt.Printf("\n=== Run %s ===\n", run.RunID)
	fmt.Printf("  Tier:            %s (seed %d)\n", run.Tier, run.Seed)
	fmt.Printf("  Orders:          %d (paid %d, bounced %d)\n", run.Orders, run.PaidOrders, run.BouncedOrders)
	fmt.Printf("  Total spend:     %.2f\n", run.TotalSpend)
	fmt.Printf("  Attributed cost: %.2f\n", run.AttributedCost)
	fmt.Printf("  Wasted spend:    %.2f\n", run.WastedSpend)
	fmt.Printf("  Mislabeled:      %d, dropped days: %d\n", res.Observed.Mislabeled, len(res.Observed.DroppedDays))
	fmt.Printf("  Data version:    %s\n", report.Reproducibility.DataVersion)
	fmt.Printf("  Files:           %s/%s\n", cfg.Output.Dir, run.RunID)

	if !report.DataQuality.AllChecksPassed {
		for _, c := range report.DataQuality.Checks {
			if !c.Pass {
				logger.Printf("Invariant check failed: %s (%s)", c.Name, c.Actual)
			}
		}
		os.Exit(1)
	}
}
