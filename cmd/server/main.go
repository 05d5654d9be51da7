// Package main serves stored simulation results over HTTP and runs
// simulations on demand (POST /runs) or on a schedule.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"causal-commerce-lab/internal/bootstrap"
	"causal-commerce-lab/internal/config"
	"causal-commerce-lab/internal/engine"
	"causal-commerce-lab/internal/export"
	"causal-commerce-lab/internal/httpapi"
	"causal-commerce-lab/internal/observability"
	"causal-commerce-lab/internal/pipeline"
	"causal-commerce-lab/internal/storage"
)

// Server holds the stores and the configuration of triggered runs.
type Server struct {
	stores      *storage.Stores
	cfgFlags    bootstrap.ConfigFlags
	outputDir   string
	fixtures    bool
	fixtureSeed uint64
	logger      *log.Logger

	runMu sync.Mutex // scheduled and triggered runs never overlap
}

func main() {
	// Load .env file if exists
	bootstrap.LoadEnvFile(".env")

	// Parse flags (env vars as defaults)
	s := &Server{}
	s.cfgFlags.Register(flag.CommandLine)
	addr := flag.String("addr", envOr("HTTP_ADDR", ":8080"), "HTTP listen address")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL/ClickHouse")
	migrate := flag.Bool("migrate", false, "Apply embedded migrations on start")
	flag.BoolVar(&s.fixtures, "fixtures", false, "Generate synthetic order items before each run")
	flag.Uint64Var(&s.fixtureSeed, "fixture-seed", 1, "Seed of the synthetic order stream")
	flag.StringVar(&s.outputDir, "output-dir", envOr("OUTPUT_DIR", "output"), "Output directory for run files")
	runInterval := flag.Duration("run-interval", 0, "Run the configured simulation on this interval (0 disables)")
	flag.Parse()

	// Setup logger
	s.logger = log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	// Fail fast on a bad configuration
	if _, err := s.cfgFlags.Resolve(); err != nil {
		s.logger.Fatalf("Invalid configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stores, cleanup, err := bootstrap.OpenStores(ctx, bootstrap.StoreOptions{
		PostgresDSN:   *postgresDSN,
		ClickHouseDSN: *clickhouseDSN,
		UseMemory:     *useMemory,
		Migrate:       *migrate,
	}, s.logger)
	if err != nil {
		s.logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()
	s.stores = stores

	api := httpapi.New(httpapi.Options{
		Stores:     stores,
		Metrics:    observability.DefaultMetrics,
		BaseConfig: s.cfgFlags.Resolve,
		Run:        s.run,
		Logger:     log.New(os.Stdout, "[http] ", log.LstdFlags),
	})
	srv := &http.Server{
		Addr:              *addr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		s.logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		shutdownCtx, done := context.WithTimeout(context.Background(), 30*time.Second)
		defer done()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Printf("HTTP shutdown error: %v", err)
		}
	}()

	if *runInterval > 0 {
		go s.runScheduler(ctx, *runInterval)
	}

	s.logger.Printf("Starting HTTP server on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Fatalf("HTTP server error: %v", err)
	}
	s.logger.Println("Shutdown complete")
}

// run executes one simulation and exports its files.
func (s *Server) run(ctx context.Context, cfg *config.Config) (*engine.Result, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if s.fixtures {
		if _, err := bootstrap.LoadFixtureOrders(ctx, s.stores, cfg, s.fixtureSeed); err != nil {
			return nil, err
		}
	}

	e, err := engine.New(engine.Options{
		Stores:  s.stores,
		Config:  cfg,
		Metrics: observability.DefaultMetrics,
	})
	if err != nil {
		return nil, err
	}
	res, err := e.Run(ctx)
	if err != nil {
		return nil, err
	}

	outDir := s.outputDir
	if cfg.Output.Dir != "" {
		outDir = cfg.Output.Dir
	}
	exporter := export.NewExporter(observability.DefaultMetrics, export.NewFileSink(outDir, cfg.Output.DWHDir))
	if _, err := pipeline.NewOutputPipeline(exporter).Run(ctx, res); err != nil {
		return res, err
	}
	return res, nil
}

// runScheduler runs the configured simulation on a ticker.
func (s *Server) runScheduler(ctx context.Context, interval time.Duration) {
	s.logger.Printf("Starting run scheduler (interval: %v)...", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cfg, err := s.cfgFlags.Resolve()
			if err != nil {
				s.logger.Printf("Scheduled run skipped: %v", err)
				continue
			}
			start := time.Now()
			res, err := s.run(ctx, cfg)
			if err != nil {
				s.logger.Printf("Scheduled run error: %v", err)
				continue
			}
			s.logger.Printf("Scheduled run %s completed in %v (persisted=%t)", res.Run.RunID, time.Since(start), res.Persisted)
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
