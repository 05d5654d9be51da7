package verification

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"causal-commerce-lab/internal/domain"
	"causal-commerce-lab/internal/engine"
	"causal-commerce-lab/internal/storage"
)

var (
	// ErrRunNotFound is returned when run ID doesn't exist.
	ErrRunNotFound = errors.New("run not found")

	// ErrConfigMismatch is returned when the engine's configuration does not
	// produce the requested run_id.
	ErrConfigMismatch = errors.New("configuration does not produce this run")
)

// VerificationReport contains the result of verifying one run.
type VerificationReport struct {
	RunID       string
	Match       bool              // true if no divergences and every check passed
	Divergences []FieldDivergence // stored vs replayed
	Checks      []Check           // invariants of the replayed run
}

// ReplayVerifier re-runs stored runs and compares them field by field.
type ReplayVerifier struct {
	engine *engine.Engine
	stores *storage.Stores
}

// NewReplayVerifier creates a verifier. The engine must be built with the
// same stores and the configuration that produced the run.
func NewReplayVerifier(e *engine.Engine, stores *storage.Stores) *ReplayVerifier {
	return &ReplayVerifier{engine: e, stores: stores}
}

// VerifyRun replays the run and compares run row, attribution and daily P&L.
func (v *ReplayVerifier) VerifyRun(ctx context.Context, runID string) (*VerificationReport, error) {
	// 1. Load stored run
	stored, err := v.stores.Runs.GetByID(ctx, runID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	if v.engine.RunID() != runID {
		return nil, fmt.Errorf("%w: engine run_id %s, requested %s", ErrConfigMismatch, v.engine.RunID(), runID)
	}

	// 2. Replay simulation over the stored inputs
	days, items, err := v.engine.Inputs(ctx)
	if err != nil {
		return nil, err
	}
	replayed, err := v.engine.Simulate(ctx, days, items)
	if err != nil {
		return nil, err
	}

	// 3. Compare results
	attrs, err := v.stores.Attribution.GetByRunID(ctx, runID)
	if err != nil {
		return nil, err
	}
	pnl, err := v.stores.DailyPnL.GetByRunID(ctx, runID)
	if err != nil {
		return nil, err
	}

	report := &VerificationReport{RunID: runID}
	report.Divergences = append(report.Divergences, CompareRuns(*stored, replayed.Run)...)
	report.Divergences = append(report.Divergences, CompareAttributions(deref(attrs), replayed.Attributions)...)
	report.Divergences = append(report.Divergences, CompareDailyPnL(deref(pnl), replayed.DailyPnL)...)
	report.Checks = CheckInvariants(replayed)
	report.Match = len(report.Divergences) == 0 && AllPass(report.Checks)
	return report, nil
}

// VerifyDeterminism simulates the same inputs twice and reports any
// difference between the two passes, including the observed copies.
func VerifyDeterminism(ctx context.Context, e *engine.Engine, days []domain.CalendarDay, items []domain.OrderItem) (*VerificationReport, error) {
	first, err := e.Simulate(ctx, days, items)
	if err != nil {
		return nil, err
	}
	second, err := e.Simulate(ctx, days, items)
	if err != nil {
		return nil, err
	}

	report := &VerificationReport{RunID: first.Run.RunID}
	report.Divergences = append(report.Divergences, CompareRuns(first.Run, second.Run)...)
	report.Divergences = append(report.Divergences, CompareAttributions(first.Attributions, second.Attributions)...)
	report.Divergences = append(report.Divergences, CompareDailyPnL(first.DailyPnL, second.DailyPnL)...)
	if !reflect.DeepEqual(first.Exposure, second.Exposure) {
		report.Divergences = append(report.Divergences, FieldDivergence{Field: "Exposure", Expected: len(first.Exposure), Actual: len(second.Exposure)})
	}
	if !reflect.DeepEqual(first.Observed, second.Observed) {
		report.Divergences = append(report.Divergences, FieldDivergence{Field: "Observed", Expected: first.Observed.Mislabeled, Actual: second.Observed.Mislabeled})
	}
	report.Checks = CheckInvariants(first)
	report.Match = len(report.Divergences) == 0 && AllPass(report.Checks)
	return report, nil
}

func deref[T any](ptrs []*T) []T {
	out := make([]T, len(ptrs))
	for i, p := range ptrs {
		out[i] = *p
	}
	return out
}
