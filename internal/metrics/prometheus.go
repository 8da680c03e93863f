// Package metrics records step, test case and tab counters for a run and
// exposes them in Prometheus format, over HTTP or as a textfile.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"

	"github.com/example/erp/tools/acctest/internal/metadata"
	"github.com/example/erp/tools/acctest/internal/runner"
	"github.com/example/erp/tools/acctest/internal/step"
)

// Prometheus metric names.
const (
	MetricStepsTotal             = "acctest_steps_total"
	MetricCasesTotal             = "acctest_cases_total"
	MetricRequestDurationSeconds = "acctest_request_duration_seconds"
	MetricTabsTotal              = "acctest_tabs_total"
)

// Tab results recorded by ObserveTab.
const (
	TabCompleted = "completed"
	TabFailed    = "failed"
)

// PrometheusExporter holds the run's metrics in its own registry.
//
// Thread Safety: Safe for concurrent use by multiple goroutines.
type PrometheusExporter struct {
	mu sync.RWMutex

	config   PrometheusExporterConfig
	registry *prometheus.Registry

	stepsTotal             *prometheus.CounterVec
	casesTotal             *prometheus.CounterVec
	requestDurationSeconds *prometheus.HistogramVec
	tabsTotal              *prometheus.CounterVec

	server  *http.Server
	ln      net.Listener
	running bool

	lastError error
}

// PrometheusExporterConfig holds configuration for the Prometheus exporter.
type PrometheusExporterConfig struct {
	// Addr is the listen address for the metrics endpoint.
	// Default: ":9090"
	Addr string

	// Path is the URL path for the metrics endpoint.
	// Default: /metrics
	Path string

	// Namespace is the metric name prefix.
	// Default: "acctest"
	Namespace string

	// HistogramBuckets are the histogram buckets for request duration.
	// Default: prometheus.DefBuckets
	HistogramBuckets []float64
}

// DefaultPrometheusExporterConfig returns default configuration.
func DefaultPrometheusExporterConfig() PrometheusExporterConfig {
	return PrometheusExporterConfig{
		Addr:             ":9090",
		Path:             "/metrics",
		Namespace:        "acctest",
		HistogramBuckets: prometheus.DefBuckets,
	}
}

// NewPrometheusExporter creates a new Prometheus exporter.
func NewPrometheusExporter(config PrometheusExporterConfig) *PrometheusExporter {
	defaults := DefaultPrometheusExporterConfig()
	if config.Addr == "" {
		config.Addr = defaults.Addr
	}
	if config.Path == "" {
		config.Path = defaults.Path
	}
	if config.Namespace == "" {
		config.Namespace = defaults.Namespace
	}
	if len(config.HistogramBuckets) == 0 {
		config.HistogramBuckets = defaults.HistogramBuckets
	}

	exporter := &PrometheusExporter{
		config:   config,
		registry: prometheus.NewRegistry(),
	}
	exporter.initMetrics()

	return exporter
}

func (e *PrometheusExporter) initMetrics() {
	e.stepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: e.config.Namespace,
			Name:      "steps_total",
			Help:      "Total number of flow steps processed, by action and outcome.",
		},
		[]string{"action", "outcome"},
	)

	e.casesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: e.config.Namespace,
			Name:      "cases_total",
			Help:      "Total number of test cases run, by tab and status.",
		},
		[]string{"tab", "status"},
	)

	e.requestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: e.config.Namespace,
			Name:      "request_duration_seconds",
			Help:      "Duration of API calls made by steps, in seconds.",
			Buckets:   e.config.HistogramBuckets,
		},
		[]string{"action"},
	)

	e.tabsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: e.config.Namespace,
			Name:      "tabs_total",
			Help:      "Total number of tabs processed, by result.",
		},
		[]string{"result"},
	)

	e.registry.MustRegister(
		e.stepsTotal,
		e.casesTotal,
		e.requestDurationSeconds,
		e.tabsTotal,
	)
}

// ObserveStep records one step. It matches step.WithStepHook.
func (e *PrometheusExporter) ObserveStep(action metadata.Action, outcome step.Outcome, duration time.Duration) {
	e.stepsTotal.WithLabelValues(string(action), string(outcome)).Inc()
	if duration > 0 {
		e.requestDurationSeconds.WithLabelValues(string(action)).Observe(duration.Seconds())
	}
}

// ObserveCase records one test case. It matches runner.WithCaseHook.
func (e *PrometheusExporter) ObserveCase(tab string, o runner.Outcome) {
	e.casesTotal.WithLabelValues(tab, string(o.Status)).Inc()
}

// ObserveTab records one tab.
func (e *PrometheusExporter) ObserveTab(r runner.TabResult) {
	result := TabCompleted
	if r.Err != nil {
		result = TabFailed
	}
	e.tabsTotal.WithLabelValues(result).Inc()
}

// Start starts the HTTP server for the metrics endpoint.
func (e *PrometheusExporter) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return nil
	}

	ln, err := net.Listen("tcp", e.config.Addr)
	if err != nil {
		return fmt.Errorf("starting Prometheus exporter: %w", err)
	}
	e.ln = ln

	mux := http.NewServeMux()
	mux.Handle(e.config.Path, promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	e.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := e.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.mu.Lock()
			e.lastError = err
			e.mu.Unlock()
		}
	}()

	e.running = true
	return nil
}

// Stop stops the HTTP server.
func (e *PrometheusExporter) Stop(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return nil
	}

	e.running = false

	if e.server != nil {
		return e.server.Shutdown(ctx)
	}
	return nil
}

// Address returns the URL of the metrics endpoint once started.
func (e *PrometheusExporter) Address() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.ln == nil {
		return ""
	}
	return fmt.Sprintf("http://%s%s", e.ln.Addr().String(), e.config.Path)
}

// IsRunning returns whether the exporter is running.
func (e *PrometheusExporter) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// LastError returns the last error from the HTTP server, if any.
func (e *PrometheusExporter) LastError() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastError
}

// WriteTextfile writes the current metrics in text format, for node_exporter's
// textfile collector.
func (e *PrometheusExporter) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, e.registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}

// Registry returns the Prometheus registry.
func (e *PrometheusExporter) Registry() *prometheus.Registry {
	return e.registry
}

// Gather collects all metrics from the registry.
func (e *PrometheusExporter) Gather() ([]*dto.MetricFamily, error) {
	return e.registry.Gather()
}
