package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"causal-commerce-lab/internal/config"
	"causal-commerce-lab/internal/domain"
	"causal-commerce-lab/internal/engine"
	"causal-commerce-lab/internal/reporting"
	"causal-commerce-lab/internal/storage"
)

// ErrRunInProgress is returned when a run is triggered while another is running.
var ErrRunInProgress = errors.New("a run is already in progress")

const maxRunRequestBytes = 1 << 16

// RunRequest overrides the base configuration for one triggered run.
type RunRequest struct {
	Tier        string  `json:"tier,omitempty"`
	Seed        *uint64 `json:"seed,omitempty"`
	StartDate   string  `json:"start_date,omitempty"`
	EndDate     string  `json:"end_date,omitempty"`
	DataQuality string  `json:"data_quality,omitempty"`
}

// Apply copies the non-empty fields onto cfg.
func (req RunRequest) Apply(cfg *config.Config) {
	if req.Tier != "" {
		cfg.Run.Tier = req.Tier
	}
	if req.Seed != nil {
		seed := *req.Seed
		cfg.Run.Seed = &seed
	}
	if req.StartDate != "" {
		cfg.Run.StartDate = req.StartDate
	}
	if req.EndDate != "" {
		cfg.Run.EndDate = req.EndDate
	}
	if req.DataQuality != "" {
		cfg.Run.DataQuality = req.DataQuality
	}
}

// RunResponse is returned by POST /runs.
type RunResponse struct {
	Run       domain.Run `json:"run"`
	Persisted bool       `json:"persisted"`
	Mislabels int        `json:"observed_mislabels"`
	Dropped   []int      `json:"observed_dropped_days"`
}

func (a *API) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := a.stores.Runs.List(r.Context())
	if err != nil {
		a.storeError(w, err)
		return
	}
	if runs == nil {
		runs = []*domain.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (a *API) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := a.stores.Runs.GetByID(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		a.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (a *API) handleDailyPnL(w http.ResponseWriter, r *http.Request) {
	runID, ok := a.requireRun(w, r)
	if !ok {
		return
	}
	rows, err := a.stores.DailyPnL.GetByRunID(r.Context(), runID)
	if err != nil {
		a.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(rows))
}

// handleAttribution returns all results of a run, or one order with ?order_id=.
func (a *API) handleAttribution(w http.ResponseWriter, r *http.Request) {
	runID, ok := a.requireRun(w, r)
	if !ok {
		return
	}
	if orderID := r.URL.Query().Get("order_id"); orderID != "" {
		res, err := a.stores.Attribution.GetByOrder(r.Context(), runID, orderID)
		if err != nil {
			a.storeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
		return
	}
	rows, err := a.stores.Attribution.GetByRunID(r.Context(), runID)
	if err != nil {
		a.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(rows))
}

// handleExposure returns exposure rows, optionally limited with ?from=&to= (YYYY-MM-DD).
func (a *API) handleExposure(w http.ResponseWriter, r *http.Request) {
	runID, ok := a.requireRun(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	if q.Get("from") == "" && q.Get("to") == "" {
		rows, err := a.stores.Exposure.GetByRunID(r.Context(), runID)
		if err != nil {
			a.storeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, nonNil(rows))
		return
	}

	from, err := parseDateParam(q.Get("from"), 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	to, err := parseDateParam(q.Get("to"), 99991231)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	rows, err := a.stores.Exposure.GetByDateRange(r.Context(), runID, from, to)
	if err != nil {
		a.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(rows))
}

// handleReport renders the stored run report; markdown unless ?format=json.
func (a *API) handleReport(w http.ResponseWriter, r *http.Request) {
	report, err := a.reportGen.GenerateForRun(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		a.storeError(w, err)
		return
	}
	if r.URL.Query().Get("format") == "json" {
		writeJSON(w, http.StatusOK, report)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, reporting.RenderMarkdown(report))
}

// handleTriggerRun runs one simulation synchronously. Only one run at a time.
func (a *API) handleTriggerRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if r.Body != nil {
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRunRequestBytes))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			status := http.StatusBadRequest
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				status = http.StatusRequestEntityTooLarge
			}
			writeError(w, status, fmt.Errorf("decode request: %w", err))
			return
		}
	}

	cfg, err := a.baseConfig()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	req.Apply(cfg)
	if err := cfg.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if !a.begin() {
		writeError(w, http.StatusConflict, ErrRunInProgress)
		return
	}
	start := time.Now()
	res, err := a.run(r.Context(), cfg)
	a.finish(res, err)
	if err != nil {
		a.logger.Printf("run failed after %v: %v", time.Since(start), err)
		status := http.StatusInternalServerError
		if errors.Is(err, config.ErrInvalidConfig) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err)
		return
	}
	a.logger.Printf("run %s completed in %v (persisted=%t)", res.Run.RunID, time.Since(start), res.Persisted)

	status := http.StatusCreated
	if !res.Persisted {
		status = http.StatusOK
	}
	writeJSON(w, status, RunResponse{
		Run:       res.Run,
		Persisted: res.Persisted,
		Mislabels: res.Observed.Mislabeled,
		Dropped:   nonNilInts(res.Observed.DroppedDays),
	})
}

func (a *API) begin() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return false
	}
	a.running = true
	return true
}

func (a *API) finish(res *engine.Result, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.running = false
	a.runs++
	if err != nil {
		a.lastErr = err.Error()
		return
	}
	a.lastErr = ""
	a.lastRun = res.Run.RunID
}

func (a *API) engineRun(ctx context.Context, cfg *config.Config) (*engine.Result, error) {
	e, err := engine.New(engine.Options{Stores: a.stores, Config: cfg, Metrics: a.metrics})
	if err != nil {
		return nil, err
	}
	return e.Run(ctx)
}

// requireRun resolves the runID URL parameter to a stored run.
func (a *API) requireRun(w http.ResponseWriter, r *http.Request) (string, bool) {
	runID := chi.URLParam(r, "runID")
	if _, err := a.stores.Runs.GetByID(r.Context(), runID); err != nil {
		a.storeError(w, err)
		return "", false
	}
	return runID, true
}

func parseDateParam(s string, fallback int) (int, error) {
	if s == "" {
		return fallback, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return 0, fmt.Errorf("%w: bad date %q", storage.ErrInvalidInput, s)
	}
	return domain.DateIDOf(t), nil
}

func nonNil[T any](rows []*T) []*T {
	if rows == nil {
		return []*T{}
	}
	return rows
}

func nonNilInts(v []int) []int {
	if v == nil {
		return []int{}
	}
	return v
}
