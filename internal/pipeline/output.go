package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"causal-commerce-lab/internal/domain"
	"causal-commerce-lab/internal/engine"
	"causal-commerce-lab/internal/export"
	"causal-commerce-lab/internal/reporting"
	"causal-commerce-lab/internal/verification"
)

// GeneratorVersion is stamped into every run report.
const GeneratorVersion = "1.0.0"

// Output file names.
const (
	FileMarketingDaily   = "fact_marketing_daily.csv"
	FileAttribution      = "fact_attribution.csv"
	FileTruthAttribution = "truth_attribution.csv"
	FileItemCosts        = "fact_item_costs.csv"
	FileDailyPnL         = "fact_daily_pnl.csv"
	FileChannelSummary   = "channel_summary.csv"
	FileRunReport        = "RUN_REPORT.md"
)

const (
	contentTypeCSV      = "text/csv"
	contentTypeMarkdown = "text/markdown"
)

// OutputPipeline renders the tables and report of a run and hands them to
// the exporter.
type OutputPipeline struct {
	exporter      *export.Exporter
	reportGen     *reporting.Generator
	replayCommand string
}

// NewOutputPipeline creates a pipeline writing through exporter.
func NewOutputPipeline(exporter *export.Exporter) *OutputPipeline {
	return &OutputPipeline{
		exporter:  exporter,
		reportGen: reporting.NewGenerator(nil),
	}
}

// WithClock sets a custom clock function for deterministic output.
func (p *OutputPipeline) WithClock(clock func() time.Time) *OutputPipeline {
	p.reportGen = p.reportGen.WithClock(clock)
	return p
}

// WithReplayCommand overrides the command recorded in the report.
func (p *OutputPipeline) WithReplayCommand(cmd string) *OutputPipeline {
	p.replayCommand = cmd
	return p
}

// Run renders the output files of res and exports them.
func (p *OutputPipeline) Run(ctx context.Context, res *engine.Result) (*reporting.Report, error) {
	report, files := p.Render(res)
	if err := p.exporter.Export(ctx, res.Run.RunID, files); err != nil {
		return report, err
	}
	log.Printf("[pipeline] run %s: %d files exported to %s",
		res.Run.RunID, len(files), strings.Join(p.exporter.Sinks(), ", "))
	return report, nil
}

// Render builds the report and the output files without writing anything.
// Observed tables go to the fact_* files; ground truth keeps its own file.
func (p *OutputPipeline) Render(res *engine.Result) (*reporting.Report, []export.File) {
	tables := TablesFromResult(res)
	report := p.reportGen.Generate(tables)

	// 1. Invariant checks
	checks := verification.CheckInvariants(res)
	report.DataQuality.Checks = checks
	report.DataQuality.AllChecksPassed = verification.AllPass(checks)

	// 2. Reproducibility metadata
	report.Reproducibility.GeneratorVersion = GeneratorVersion
	report.Reproducibility.DataVersion = computeDataVersion(tables)
	report.Reproducibility.ReplayCommand = p.buildReplayCommand(res)

	// 3. Files
	files := []export.File{
		csvFile(FileMarketingDaily, reporting.RenderExposureCSV(tables.ObservedExposure)),
		csvFile(FileAttribution, reporting.RenderAttributionCSV(tables.ObservedAttributions)),
		csvFile(FileTruthAttribution, reporting.RenderAttributionCSV(tables.Attributions)),
		csvFile(FileItemCosts, reporting.RenderItemCostsCSV(tables.ItemCosts)),
		csvFile(FileDailyPnL, reporting.RenderDailyPnLCSV(tables.DailyPnL)),
		csvFile(FileChannelSummary, reporting.RenderChannelSummaryCSV(report.Channels)),
		{Name: FileRunReport, Data: []byte(reporting.RenderMarkdown(report)), ContentType: contentTypeMarkdown},
	}
	return report, files
}

// TablesFromResult converts an engine result into report tables,
// including the observed copies.
func TablesFromResult(res *engine.Result) *reporting.Tables {
	observedAttrs := res.Observed.Attributions
	if observedAttrs == nil {
		observedAttrs = res.Attributions
	}
	observedExp := res.Observed.Exposure
	if observedExp == nil {
		observedExp = res.Exposure
	}
	return &reporting.Tables{
		Run:                  res.Run,
		Exposure:             res.Exposure,
		Attributions:         res.Attributions,
		ItemCosts:            res.ItemCosts,
		DailyPnL:             res.DailyPnL,
		ObservedAttributions: observedAttrs,
		ObservedExposure:     observedExp,
		Mislabeled:           res.Observed.Mislabeled,
		DroppedDays:          res.Observed.DroppedDays,
	}
}

func (p *OutputPipeline) buildReplayCommand(res *engine.Result) string {
	if p.replayCommand != "" {
		return p.replayCommand
	}
	return fmt.Sprintf("go run ./cmd/simulate -tier %s -seed %d -start %s -end %s",
		res.Run.Tier, res.Run.Seed,
		domain.FormatDateID(res.Run.StartDateID), domain.FormatDateID(res.Run.EndDateID))
}

// computeDataVersion hashes the ground-truth attribution and daily P&L so any
// change in outputs shows up in the report.
func computeDataVersion(t *reporting.Tables) string {
	h := sha256.New()

	// Part 1: attribution (order_id + channel + cost)
	attrParts := make([]string, 0, len(t.Attributions))
	for _, a := range t.Attributions {
		attrParts = append(attrParts, fmt.Sprintf("%s|%s|%s|%.6f", a.OrderID, a.Channel, a.Reason, a.AcquisitionCost))
	}
	sort.Strings(attrParts)
	h.Write([]byte("ATTRIBUTION\n"))
	h.Write([]byte(strings.Join(attrParts, "\n")))

	// Part 2: daily P&L
	pnlParts := make([]string, 0, len(t.DailyPnL))
	for _, p := range t.DailyPnL {
		pnlParts = append(pnlParts, fmt.Sprintf("%d|%.6f|%.6f|%.6f", p.DateID, p.TotalSpend, p.AttributedCost, p.WastedSpend))
	}
	sort.Strings(pnlParts)
	h.Write([]byte("\nPNL\n"))
	h.Write([]byte(strings.Join(pnlParts, "\n")))

	return hex.EncodeToString(h.Sum(nil))[:12]
}

func csvFile(name, body string) export.File {
	return export.File{Name: name, Data: []byte(body), ContentType: contentTypeCSV}
}
