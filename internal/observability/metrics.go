// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Run metrics
	RunsTotal     *prometheus.CounterVec
	RunDuration   *prometheus.HistogramVec
	PhaseDuration *prometheus.HistogramVec

	// Attribution metrics
	OrdersAttributed *prometheus.CounterVec
	ClicksProduced   prometheus.Counter
	ClicksConsumed   prometheus.Counter

	// Money metrics
	SpendTotal          prometheus.Counter
	AttributedCostTotal prometheus.Counter
	WastedSpendTotal    prometheus.Counter
	LastRunWasteRatio   prometheus.Gauge

	// Chaos metrics
	ObservedMislabels   prometheus.Counter
	DroppedExposureDays prometheus.Counter

	// Export metrics
	FilesExported *prometheus.CounterVec
	ExportErrors  *prometheus.CounterVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Health metrics
	LastSuccessfulRun prometheus.Gauge
}

// NewMetrics creates a new Metrics instance registered with the default registry.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer, namespace)
}

// NewMetricsWith creates a new Metrics instance registered with reg.
func NewMetricsWith(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = "causal_commerce_lab"
	}
	f := promauto.With(reg)

	return &Metrics{
		// Run metrics
		RunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "runs_total",
			Help:      "Total number of simulation runs by tier and status",
		}, []string{"tier", "status"}),
		RunDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "run_duration_seconds",
			Help:      "Simulation run duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
		}, []string{"tier"}),
		PhaseDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "phase_duration_seconds",
			Help:      "Duration of each engine phase in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"phase"}),

		// Attribution metrics
		OrdersAttributed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "attribution",
			Name:      "orders_total",
			Help:      "Total number of orders attributed by reason",
		}, []string{"reason"}),
		ClicksProduced: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "attribution",
			Name:      "clicks_produced_total",
			Help:      "Total number of simulated clicks placed in inventory",
		}),
		ClicksConsumed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "attribution",
			Name:      "clicks_consumed_total",
			Help:      "Total number of clicks consumed by matched or bounced orders",
		}),

		// Money metrics
		SpendTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "finance",
			Name:      "spend_total",
			Help:      "Total simulated marketing spend",
		}),
		AttributedCostTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "finance",
			Name:      "attributed_cost_total",
			Help:      "Total spend attributed to orders",
		}),
		WastedSpendTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "finance",
			Name:      "wasted_spend_total",
			Help:      "Total spend not attributed to any order",
		}),
		LastRunWasteRatio: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "finance",
			Name:      "last_run_waste_ratio",
			Help:      "Wasted spend divided by total spend for the most recent run",
		}),

		// Chaos metrics
		ObservedMislabels: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chaos",
			Name:      "mislabels_total",
			Help:      "Total number of observed orders relabelled Unknown",
		}),
		DroppedExposureDays: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chaos",
			Name:      "dropped_days_total",
			Help:      "Total number of days removed from observed exposure",
		}),

		// Export metrics
		FilesExported: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "export",
			Name:      "files_total",
			Help:      "Total number of files written by sink",
		}, []string{"sink"}),
		ExportErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "export",
			Name:      "errors_total",
			Help:      "Total number of export failures by sink",
		}, []string{"sink"}),

		// Database metrics
		DBQueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// HTTP metrics
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by route and status code",
		}, []string{"route", "code"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),

		// Health metrics
		LastSuccessfulRun: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_run_timestamp",
			Help:      "Unix timestamp of last successful simulation run",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordRun records a finished run.
func (m *Metrics) RecordRun(tier, status string, durationSeconds float64) {
	m.RunsTotal.WithLabelValues(tier, status).Inc()
	m.RunDuration.WithLabelValues(tier).Observe(durationSeconds)
}

// RecordPhase records the duration of one engine phase.
func (m *Metrics) RecordPhase(phase string, durationSeconds float64) {
	m.PhaseDuration.WithLabelValues(phase).Observe(durationSeconds)
}

// RecordOrders adds attributed order counts keyed by reason.
func (m *Metrics) RecordOrders(byReason map[string]int) {
	for reason, n := range byReason {
		if n > 0 {
			m.OrdersAttributed.WithLabelValues(reason).Add(float64(n))
		}
	}
}

// RecordClicks adds produced and consumed click totals.
func (m *Metrics) RecordClicks(produced, consumed int64) {
	m.ClicksProduced.Add(float64(produced))
	m.ClicksConsumed.Add(float64(consumed))
}

// RecordSpend adds a run's money totals and sets the waste ratio gauge.
func (m *Metrics) RecordSpend(spend, attributed, wasted float64) {
	m.SpendTotal.Add(spend)
	m.AttributedCostTotal.Add(attributed)
	m.WastedSpendTotal.Add(wasted)
	if spend > 0 {
		m.LastRunWasteRatio.Set(wasted / spend)
	} else {
		m.LastRunWasteRatio.Set(0)
	}
}

// RecordChaos adds the observed-data degradation of a run.
func (m *Metrics) RecordChaos(mislabels, droppedDays int) {
	m.ObservedMislabels.Add(float64(mislabels))
	m.DroppedExposureDays.Add(float64(droppedDays))
}

// RecordExport records files written by a sink, or a failure.
func (m *Metrics) RecordExport(sink string, files int, err error) {
	if err != nil {
		m.ExportErrors.WithLabelValues(sink).Inc()
		return
	}
	m.FilesExported.WithLabelValues(sink).Add(float64(files))
}

// RecordDBQuery records database query metrics.
func (m *Metrics) RecordDBQuery(database, operation string, seconds float64, err error) {
	m.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		m.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// RecordHTTPRequest records one served request.
func (m *Metrics) RecordHTTPRequest(route string, code int, seconds float64) {
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.HTTPDuration.WithLabelValues(route).Observe(seconds)
}

// RecordRunSuccess records a successful run on the default metrics.
func RecordRunSuccess(tier string, durationSeconds float64, finishedUnix int64) {
	DefaultMetrics.RecordRun(tier, "success", durationSeconds)
	DefaultMetrics.LastSuccessfulRun.Set(float64(finishedUnix))
}

// RecordRunFailure records a failed run on the default metrics.
func RecordRunFailure(tier string, durationSeconds float64) {
	DefaultMetrics.RecordRun(tier, "failure", durationSeconds)
}
