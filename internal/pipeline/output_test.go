package pipeline

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"causal-commerce-lab/internal/calendar"
	"causal-commerce-lab/internal/config"
	"causal-commerce-lab/internal/engine"
	"causal-commerce-lab/internal/export"
	"causal-commerce-lab/internal/observability"
	"causal-commerce-lab/internal/seasonality"
)

var fixedTime = time.Date(2025, 1, 4, 12, 0, 0, 0, time.UTC)

func simulate(t *testing.T, quality string) *engine.Result {
	t.Helper()
	cfg := config.Default()
	cfg.Run.StartDate = "2017-11-01"
	cfg.Run.EndDate = "2017-11-30"
	cfg.Run.DataQuality = quality

	e, err := engine.New(engine.Options{
		Config:  cfg,
		Metrics: observability.NewMetricsWith(prometheus.NewRegistry(), "test"),
	})
	if err != nil {
		t.Fatalf("engine.New failed: %v", err)
	}
	e.WithClock(func() time.Time { return fixedTime })

	start, end, _ := cfg.Horizon()
	days, err := calendar.Build(start, end, seasonality.Default())
	if err != nil {
		t.Fatalf("calendar.Build failed: %v", err)
	}
	opts := DefaultFixtureOptions(1)
	opts.OrdersPerDay = 40
	res, err := e.Simulate(context.Background(), days, GenerateOrderItems(days, opts))
	if err != nil {
		t.Fatalf("Simulate failed: %v", err)
	}
	return res
}

func testExporter(sinks ...export.Sink) *export.Exporter {
	return export.NewExporter(observability.NewMetricsWith(prometheus.NewRegistry(), "test"), sinks...)
}

func TestOutputPipeline_Run(t *testing.T) {
	root := t.TempDir()
	dwh := t.TempDir()
	res := simulate(t, "messy")

	p := NewOutputPipeline(testExporter(export.NewFileSink(root, dwh))).
		WithClock(func() time.Time { return fixedTime })
	report, err := p.Run(context.Background(), res)
	if err != nil {
		t.Fatalf("Pipeline run failed: %v", err)
	}

	files := []string{
		FileMarketingDaily, FileAttribution, FileTruthAttribution,
		FileItemCosts, FileDailyPnL, FileChannelSummary, FileRunReport,
	}
	for _, f := range files {
		for _, dir := range []string{filepath.Join(root, res.Run.RunID), dwh} {
			if _, err := os.Stat(filepath.Join(dir, f)); os.IsNotExist(err) {
				t.Errorf("Expected file %s does not exist in %s", f, dir)
			}
		}
	}

	if !report.DataQuality.AllChecksPassed {
		for _, c := range report.DataQuality.Checks {
			if !c.Pass {
				t.Errorf("check %q failed: %s", c.Name, c.Actual)
			}
		}
	}
	if report.Reproducibility.GeneratorVersion != GeneratorVersion {
		t.Errorf("GeneratorVersion = %q", report.Reproducibility.GeneratorVersion)
	}
	if len(report.Reproducibility.DataVersion) != 12 {
		t.Errorf("DataVersion = %q, want 12 hex chars", report.Reproducibility.DataVersion)
	}
	if !strings.Contains(report.Reproducibility.ReplayCommand, "-seed") {
		t.Errorf("ReplayCommand = %q", report.Reproducibility.ReplayCommand)
	}
}

func TestOutputPipeline_Deterministic(t *testing.T) {
	var outputs [][]export.File
	for run := 0; run < 2; run++ {
		res := simulate(t, "messy")
		_, files := NewOutputPipeline(testExporter()).
			WithClock(func() time.Time { return fixedTime }).
			Render(res)
		outputs = append(outputs, files)
	}

	if len(outputs[0]) != len(outputs[1]) {
		t.Fatalf("file count differs: %d vs %d", len(outputs[0]), len(outputs[1]))
	}
	for i := range outputs[0] {
		a, b := outputs[0][i], outputs[1][i]
		if a.Name != b.Name || !bytes.Equal(a.Data, b.Data) {
			t.Errorf("file %s differs between runs", a.Name)
		}
	}
}

func TestOutputPipeline_ObservedVsTruth(t *testing.T) {
	res := simulate(t, "nightmare")
	_, files := NewOutputPipeline(testExporter()).Render(res)

	byName := map[string]string{}
	for _, f := range files {
		byName[f.Name] = string(f.Data)
	}

	if res.Observed.Mislabeled > 0 {
		if !strings.Contains(byName[FileAttribution], "Unknown") {
			t.Error("observed attribution should carry Unknown labels")
		}
		if strings.Contains(byName[FileTruthAttribution], "Unknown") {
			t.Error("truth attribution must not carry Unknown labels")
		}
	}

	truthRows := strings.Count(byName[FileTruthAttribution], "\n")
	observedRows := strings.Count(byName[FileAttribution], "\n")
	if truthRows != observedRows {
		t.Errorf("observed attribution has %d lines, truth %d", observedRows, truthRows)
	}
}

func TestOutputPipeline_NoSinks(t *testing.T) {
	res := simulate(t, "clean")
	if _, err := NewOutputPipeline(testExporter()).Run(context.Background(), res); err != export.ErrNoSinks {
		t.Errorf("expected ErrNoSinks, got %v", err)
	}
}

func TestComputeDataVersion_ChangesWithOutputs(t *testing.T) {
	res := simulate(t, "clean")
	tables := TablesFromResult(res)
	before := computeDataVersion(tables)

	tables.DailyPnL[0].TotalSpend += 1
	if after := computeDataVersion(tables); after == before {
		t.Error("data version unchanged after P&L edit")
	}
}
