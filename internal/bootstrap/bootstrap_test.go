package bootstrap

import (
	"context"
	"errors"
	"flag"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"

	"causal-commerce-lab/internal/config"
)

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "# comment\nSIM_TEST_A=one\nSIM_TEST_B = \"two\"\nbroken line\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SIM_TEST_A", "preset")
	t.Setenv("SIM_TEST_B", "")

	LoadEnvFile(path)

	if got := os.Getenv("SIM_TEST_A"); got != "preset" {
		t.Errorf("SIM_TEST_A = %q, existing value must win", got)
	}
	if got := os.Getenv("SIM_TEST_B"); got != "two" {
		t.Errorf("SIM_TEST_B = %q, want two", got)
	}
}

func parseFlags(t *testing.T, args ...string) *ConfigFlags {
	t.Helper()
	var f ConfigFlags
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	f.Register(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return &f
}

func TestConfigFlags_Resolve(t *testing.T) {
	cfg, err := parseFlags(t, "-tier", "hard", "-seed", "9", "-start", "2017-11-01", "-end", "2017-11-30", "-quality", "clean").Resolve()
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if cfg.Run.Tier != "hard" || cfg.Run.Seed == nil || *cfg.Run.Seed != 9 {
		t.Errorf("unexpected run config: %+v", cfg.Run)
	}
	if cfg.Run.StartDate != "2017-11-01" || cfg.Run.EndDate != "2017-11-30" || cfg.Run.DataQuality != "clean" {
		t.Errorf("unexpected horizon: %+v", cfg.Run)
	}

	training, err := parseFlags(t, "-training", "-tier", "easy").Resolve()
	if err != nil {
		t.Fatalf("Resolve training failed: %v", err)
	}
	if training.Attribution.Inventory != config.InventoryLagged {
		t.Errorf("training profile inventory = %q", training.Attribution.Inventory)
	}
}

func TestConfigFlags_Invalid(t *testing.T) {
	for _, args := range [][]string{
		{"-seed", "minus-one"},
		{"-tier", "legendary"},
		{"-start", "2018-01-02", "-end", "2018-01-01"},
	} {
		if _, err := parseFlags(t, args...).Resolve(); !errors.Is(err, config.ErrInvalidConfig) {
			t.Errorf("%v: expected ErrInvalidConfig, got %v", args, err)
		}
	}
}

func TestOpenStores_MemoryAndFixtures(t *testing.T) {
	ctx := context.Background()
	logger := log.New(io.Discard, "", 0)

	stores, cleanup, err := OpenStores(ctx, StoreOptions{UseMemory: true}, logger)
	if err != nil {
		t.Fatalf("OpenStores failed: %v", err)
	}
	defer cleanup()

	cfg, err := parseFlags(t, "-start", "2017-11-01", "-end", "2017-11-07").Resolve()
	if err != nil {
		t.Fatal(err)
	}

	n, err := LoadFixtureOrders(ctx, stores, cfg, 5)
	if err != nil {
		t.Fatalf("LoadFixtureOrders failed: %v", err)
	}
	if n == 0 {
		t.Fatal("no fixture items loaded")
	}

	// second load is a no-op
	again, err := LoadFixtureOrders(ctx, stores, cfg, 5)
	if err != nil || again != 0 {
		t.Errorf("second load = (%d, %v), want (0, nil)", again, err)
	}

	items, err := stores.OrderItems.GetByDateRange(ctx, 20171101, 20171107)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != n {
		t.Errorf("stored %d items, loaded %d", len(items), n)
	}
}
