// Package httpapi serves stored run results and triggers new runs over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"causal-commerce-lab/internal/config"
	"causal-commerce-lab/internal/engine"
	"causal-commerce-lab/internal/observability"
	"causal-commerce-lab/internal/reporting"
	"causal-commerce-lab/internal/storage"
)

// RunFunc executes one simulation for cfg.
type RunFunc func(ctx context.Context, cfg *config.Config) (*engine.Result, error)

// Options configures the API.
type Options struct {
	Stores  *storage.Stores
	Metrics *observability.Metrics // nil uses the default registry

	// BaseConfig returns a fresh configuration for POST /runs.
	// Defaults to config.Default.
	BaseConfig func() (*config.Config, error)

	// Run overrides how triggered runs are executed.
	// Defaults to engine.Run against Stores.
	Run RunFunc

	Logger *log.Logger
}

// API holds the handlers and the state of triggered runs.
type API struct {
	stores     *storage.Stores
	metrics    *observability.Metrics
	baseConfig func() (*config.Config, error)
	run        RunFunc
	reportGen  *reporting.Generator
	logger     *log.Logger
	started    time.Time

	mu      sync.Mutex
	running bool
	lastRun string
	lastErr string
	runs    int
}

// New creates the API.
func New(opts Options) *API {
	a := &API{
		stores:     opts.Stores,
		metrics:    opts.Metrics,
		baseConfig: opts.BaseConfig,
		run:        opts.Run,
		reportGen:  reporting.NewGenerator(opts.Stores),
		logger:     opts.Logger,
		started:    time.Now(),
	}
	if a.metrics == nil {
		a.metrics = observability.DefaultMetrics
	}
	if a.logger == nil {
		a.logger = log.New(os.Stdout, "[http] ", log.LstdFlags)
	}
	if a.baseConfig == nil {
		a.baseConfig = func() (*config.Config, error) { return config.Default(), nil }
	}
	if a.run == nil {
		a.run = a.engineRun
	}
	return a
}

// Router builds the chi router.
func (a *API) Router() http.Handler {
	mux := chi.NewRouter()
	mux.Use(middleware.RequestID)
	mux.Use(middleware.Recoverer)
	mux.Use(a.instrument)

	mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) })
	mux.Handle("/metrics", observability.Handler())
	mux.Get("/status", a.handleStatus)

	mux.Route("/runs", func(r chi.Router) {
		r.Get("/", a.handleListRuns)
		r.Post("/", a.handleTriggerRun)
		r.Route("/{runID}", func(r chi.Router) {
			r.Get("/", a.handleGetRun)
			r.Get("/pnl", a.handleDailyPnL)
			r.Get("/attribution", a.handleAttribution)
			r.Get("/exposure", a.handleExposure)
			r.Get("/report", a.handleReport)
		})
	})
	return mux
}

// instrument records request counts and latency per route pattern.
func (a *API) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		a.metrics.RecordHTTPRequest(route, status, time.Since(start).Seconds())
	})
}

// StatusResponse is the JSON response for /status.
type StatusResponse struct {
	Status  string `json:"status"`
	Uptime  string `json:"uptime"`
	Running bool   `json:"running"`
	Runs    int    `json:"runs"`
	LastRun string `json:"last_run,omitempty"`
	LastErr string `json:"last_error,omitempty"`
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	resp := StatusResponse{
		Status:  "running",
		Uptime:  time.Since(a.started).Round(time.Second).String(),
		Running: a.running,
		Runs:    a.runs,
		LastRun: a.lastRun,
		LastErr: a.lastErr,
	}
	a.mu.Unlock()
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", " ")
	enc.Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// storeError maps storage sentinels to HTTP status codes.
func (a *API) storeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, storage.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err)
	default:
		a.logger.Printf("store error: %v", err)
		writeError(w, http.StatusInternalServerError, err)
	}
}
