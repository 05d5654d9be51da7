// Package bootstrap holds the wiring shared by the binaries: env loading,
// configuration flags, store selection and fixture loading.
package bootstrap

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"causal-commerce-lab/internal/calendar"
	"causal-commerce-lab/internal/config"
	"causal-commerce-lab/internal/pipeline"
	"causal-commerce-lab/internal/seasonality"
	"causal-commerce-lab/internal/storage"
	"causal-commerce-lab/internal/storage/clickhouse"
	"causal-commerce-lab/internal/storage/memory"
	"causal-commerce-lab/internal/storage/migrations"
	"causal-commerce-lab/internal/storage/postgres"
)

// LoadEnvFile loads environment variables from a .env file if it exists.
// Existing variables are not overridden.
func LoadEnvFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return // File doesn't exist, use system env vars
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.Trim(strings.TrimSpace(parts[1]), `"'`)

		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}

// ConfigFlags are the simulation flags shared by the binaries.
type ConfigFlags struct {
	Path     string
	Tier     string
	Training bool
	Seed     string
	Start    string
	End      string
	Quality  string
}

// Register binds the flags to fs with environment-variable defaults.
func (f *ConfigFlags) Register(fs *flag.FlagSet) {
	fs.StringVar(&f.Path, "config", os.Getenv("SIM_CONFIG"), "TOML configuration file")
	fs.StringVar(&f.Tier, "tier", os.Getenv("SIM_TIER"), "Difficulty tier (easy, medium, hard)")
	fs.BoolVar(&f.Training, "training", false, "Use the training profile (CPC mode, lagged inventory)")
	fs.StringVar(&f.Seed, "seed", os.Getenv("SIM_SEED"), "PRNG seed (overrides the tier seed)")
	fs.StringVar(&f.Start, "start", "", "Horizon start date (YYYY-MM-DD)")
	fs.StringVar(&f.End, "end", "", "Horizon end date (YYYY-MM-DD)")
	fs.StringVar(&f.Quality, "quality", os.Getenv("SIM_DATA_QUALITY"), "Observed data quality (clean, messy, nightmare)")
}

// Resolve builds and validates the configuration described by the flags.
// Flags override the file, the file overrides the defaults.
func (f *ConfigFlags) Resolve() (*config.Config, error) {
	var cfg *config.Config
	switch {
	case f.Path != "":
		loaded, err := config.Load(f.Path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	case f.Training:
		tier := f.Tier
		if tier == "" {
			tier = config.Default().Run.Tier
		}
		cfg = config.Training(tier)
	default:
		cfg = config.Default()
	}

	if f.Tier != "" {
		cfg.Run.Tier = f.Tier
	}
	if f.Seed != "" {
		seed, err := strconv.ParseUint(f.Seed, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: seed %q: %v", config.ErrInvalidConfig, f.Seed, err)
		}
		cfg.Run.Seed = &seed
	}
	if f.Start != "" {
		cfg.Run.StartDate = f.Start
	}
	if f.End != "" {
		cfg.Run.EndDate = f.End
	}
	if f.Quality != "" {
		cfg.Run.DataQuality = f.Quality
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// StoreOptions selects the storage backends.
type StoreOptions struct {
	PostgresDSN   string
	ClickHouseDSN string
	UseMemory     bool
	Migrate       bool // apply embedded migrations before use
}

// OpenStores creates the stores. Postgres holds the relational tables,
// ClickHouse the analytics tables; either may be omitted, in which case
// its tables stay in memory.
func OpenStores(ctx context.Context, opts StoreOptions, logger *log.Logger) (*storage.Stores, func(), error) {
	stores := memory.NewStores()
	if opts.UseMemory {
		logger.Println("Using in-memory storage")
		return stores, func() {}, nil
	}

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if opts.PostgresDSN != "" {
		pool, err := postgres.NewPool(ctx, opts.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		closers = append(closers, pool.Close)
		if opts.Migrate {
			if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("postgres migrations: %w", err)
			}
		}
		postgres.AttachStores(stores, pool)
		logger.Println("Postgres stores attached")
	}

	if opts.ClickHouseDSN != "" {
		var (
			conn *clickhouse.Conn
			err  error
		)
		if opts.Migrate {
			conn, err = migrations.RunClickhouseMigrations(ctx, opts.ClickHouseDSN)
		} else {
			conn, err = clickhouse.NewConn(ctx, opts.ClickHouseDSN)
		}
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("connect to clickhouse: %w", err)
		}
		closers = append(closers, func() { conn.Close() })
		clickhouse.AttachStores(stores, conn)
		logger.Println("ClickHouse stores attached")
	}

	if len(closers) == 0 {
		logger.Println("No DSN configured, using in-memory storage")
	}
	return stores, cleanup, nil
}

// LoadFixtureOrders generates the synthetic order stream for cfg's horizon
// and stores it. Items already present are kept.
func LoadFixtureOrders(ctx context.Context, stores *storage.Stores, cfg *config.Config, seed uint64) (int, error) {
	start, end, err := cfg.Horizon()
	if err != nil {
		return 0, err
	}
	policy, err := seasonality.Lookup(cfg.Market.Seasonality)
	if err != nil {
		return 0, err
	}
	days, err := calendar.Build(start, end, policy)
	if err != nil {
		return 0, err
	}

	items := pipeline.GenerateOrderItems(days, pipeline.DefaultFixtureOptions(seed))
	if err := pipeline.LoadFixtures(ctx, stores.OrderItems, items); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return 0, nil
		}
		return 0, err
	}
	return len(items), nil
}
